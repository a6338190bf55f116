package workers

import (
	"context"
	"duo-chat/contract"
	"log/slog"
	"time"
)

// UploadJanitorWorker removes partial uploads left behind by a crash or a
// connection that vanished mid-stream.
type UploadJanitorWorker struct {
	log      *slog.Logger
	files    contract.IFileStore
	interval time.Duration
	ttl      time.Duration
}

func NewUploadJanitorWorker(log *slog.Logger, files contract.IFileStore, interval, ttl time.Duration) *UploadJanitorWorker {
	return &UploadJanitorWorker{log: log, files: files, interval: interval, ttl: ttl}
}

// Run purges once at startup, then on every tick.
func (w *UploadJanitorWorker) Run(ctx context.Context) error {
	w.purge()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.purge()
		}
	}
}

func (w *UploadJanitorWorker) purge() {
	removed, err := w.files.PurgePartials(w.ttl)
	if err != nil {
		w.log.Warn("Failed to purge partial uploads", "error", err)
		return
	}
	if removed > 0 {
		w.log.Info("Partial uploads purged", "count", removed)
	}
}
