package workers

import (
	"context"
	stderrors "errors"
	"eventmaster/domain"
	"eventmaster/errors"
	"eventmaster/reconcile"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

type Syncer interface {
	Namespaces(ctx context.Context) ([]domain.Namespace, error)
	ReconcileNamespace(ctx context.Context, ns domain.Namespace) (reconcile.Report, error)
}

// SyncWorker reconciles every known namespace, plus the configured ones, on
// each tick. Per-namespace failures are logged and retried on the next tick.
type SyncWorker struct {
	syncer     Syncer
	namespaces []domain.Namespace
	interval   time.Duration
	log        *slog.Logger
}

func NewSyncWorker(syncer Syncer, interval time.Duration, log *slog.Logger, namespaces ...domain.Namespace) *SyncWorker {
	return &SyncWorker{syncer: syncer, namespaces: namespaces, interval: interval, log: log}
}

func (w *SyncWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.Tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one pass. It only fails when the namespaces cannot be listed.
func (w *SyncWorker) Tick(ctx context.Context) error {
	known, err := w.syncer.Namespaces(ctx)
	if err != nil {
		return err
	}
	for _, ns := range lo.Uniq(append(append([]domain.Namespace{}, w.namespaces...), known...)) {
		if ctx.Err() != nil {
			return nil
		}
		report, err := w.syncer.ReconcileNamespace(ctx, ns)
		switch {
		case stderrors.Is(err, errors.ErrNoRemote):
			w.log.Debug("No remote configured, nothing to sync")
			return nil
		case stderrors.Is(err, errors.ErrConflictUnresolved):
			w.log.Warn("Conflicts waiting for resolution", "namespace", ns, "ids", report.Unresolved)
		case err != nil:
			w.log.Error("Reconciliation failed", "namespace", ns, "error", err)
		default:
			w.log.Debug("Reconciled", "namespace", ns, "pulled", report.Pulled, "pushed", report.Pushed)
		}
	}
	return nil
}
