package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"eventmaster/domain"
	"eventmaster/internal"
	"eventmaster/runtime/workers"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run background sync and purge, and expose /metrics and /inspect",
		Long: `Run the supervised background workers until interrupted:
  - periodic sync of every known namespace (SYNC_INTERVAL)
  - periodic tombstone purge (PURGE_INTERVAL)
  - HTTP on METRICS_ADDR with /metrics, /diagnostics and /inspect?prefix=`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := opts.Context(cmd)
			app, err := opts.App(ctx)
			if err != nil {
				return err
			}
			cfg := app.Config

			namespaces := []domain.Namespace{app.Resolver.Resolve(ctx)}
			supervisor := workers.NewSupervisor(app.Log, cfg.RestartInterval)
			supervisor.Add(
				workers.NewSyncWorker(app.Reconciler, cfg.SyncInterval, app.Log, namespaces...),
				workers.NewPurgeWorker(app.Reconciler, cfg.PurgeInterval, app.Log),
				NewHTTPWorker(cfg.MetricsAddr, NewMux(app), app.Log),
			)
			app.Log.Info("Serving", "addr", cfg.MetricsAddr, "sync_interval", cfg.SyncInterval,
				"purge_interval", cfg.PurgeInterval, "namespaces", namespaces)
			supervisor.Run(ctx)
			app.Log.Info("Serve stopped")
			return nil
		},
	}
}

// NewMux exposes Prometheus metrics, the diagnostics snapshot and the store inspector.
func NewMux(app *App) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(app.Diag.GetLatest())
	})
	mux.Handle("/inspect", internal.NewInspectHandler(app.Store, func() map[string]any {
		stats := app.Diag.GetLatest()
		return map[string]any{
			"read_failures":     stats.ReadFailures,
			"corrupt_records":   stats.CorruptRecords,
			"write_failures":    stats.WriteFailures,
			"sync_conflicts":    stats.SyncConflicts,
			"tombstones_purged": stats.TombstonesPurged,
		}
	}))
	return mux
}

// HTTPWorker runs an HTTP server until its context is canceled.
type HTTPWorker struct {
	srv *http.Server
	log *slog.Logger
}

func NewHTTPWorker(addr string, handler http.Handler, log *slog.Logger) *HTTPWorker {
	return &HTTPWorker{
		srv: &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		log: log,
	}
}

func (h *HTTPWorker) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- h.srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.srv.Shutdown(shutdownCtx); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			h.log.Warn("HTTP shutdown failed", "error", err)
		}
		return nil
	}
}
