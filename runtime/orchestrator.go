// Package runtime holds the live state of the chat: who is connected and how
// a message reaches them. It contains no persistence.
package runtime

import (
	"context"
	"duo-chat/contract"
	"duo-chat/runtime/workers"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator owns the background workers of the server and runs them
// under supervision.
type Orchestrator struct {
	mu         sync.Mutex
	log        *slog.Logger
	supervisor contract.ISupervisor
	registry   contract.IPresenceRegistry
	files      contract.IFileStore
	intervals  Intervals
	started    bool
}

type Intervals struct {
	Metric           time.Duration
	Janitor          time.Duration
	PartialUploadTTL time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IPresenceRegistry, files contract.IFileStore, intervals Intervals) *Orchestrator {
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		registry:   registry,
		files:      files,
		intervals:  intervals,
	}
}

// Start registers every worker and blocks until the context is canceled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true
	o.supervisor.Add(
		workers.NewTelemetryWorker(o.log, o.registry, o.intervals.Metric),
		workers.NewUploadJanitorWorker(o.log, o.files, o.intervals.Janitor, o.intervals.PartialUploadTTL),
	)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop cancels the supervised context. Start returns once every worker is done.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
