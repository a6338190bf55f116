package workers

import (
	"context"
	"duo-chat/contract"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// TelemetryWorker periodically logs the server's own resource usage along
// with the number of connected participants.
type TelemetryWorker struct {
	log            *slog.Logger
	registry       contract.IPresenceRegistry
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, registry contract.IPresenceRegistry, metricInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{
		log:            log,
		registry:       registry,
		metricInterval: metricInterval,
	}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process metrics unavailable", "error", err)
		proc = nil
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			w.report(proc)
		}
	}
}

func (w *TelemetryWorker) report(proc *process.Process) {
	attrs := []any{"online", w.registry.Count()}
	if proc != nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			attrs = append(attrs, "cpu_percent", cpu)
		} else {
			w.log.Debug("Error while finding process cpu usage", "error", err)
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			attrs = append(attrs, "rss_bytes", mem.RSS)
		} else {
			w.log.Debug("Error while finding process memory usage", "error", err)
		}
		if n, err := proc.NumThreads(); err == nil {
			attrs = append(attrs, "threads", n)
		}
	}
	w.log.Info("Telemetry", attrs...)
}
