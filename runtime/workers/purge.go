package workers

import (
	"context"
	"eventmaster/domain"
	"log/slog"
	"time"
)

type Purger interface {
	Namespaces(ctx context.Context) ([]domain.Namespace, error)
	PurgeNamespace(ctx context.Context, ns domain.Namespace, now time.Time) (int, error)
}

// PurgeWorker drops expired tombstones of every namespace on each tick.
type PurgeWorker struct {
	purger   Purger
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

func NewPurgeWorker(purger Purger, interval time.Duration, log *slog.Logger) *PurgeWorker {
	return &PurgeWorker{purger: purger, interval: interval, now: time.Now, log: log}
}

func (w *PurgeWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (w *PurgeWorker) Tick(ctx context.Context) error {
	namespaces, err := w.purger.Namespaces(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, ns := range namespaces {
		n, err := w.purger.PurgeNamespace(ctx, ns, w.now())
		if err != nil {
			w.log.Error("Tombstone purge failed", "namespace", ns, "error", err)
			continue
		}
		total += n
	}
	if total > 0 {
		w.log.Info("Purge pass done", "tombstones", total, "namespaces", len(namespaces))
	}
	return nil
}
