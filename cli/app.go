package cli

import (
	"context"
	"eventmaster/auth"
	"eventmaster/internal"
	"eventmaster/moderation"
	"eventmaster/observability"
	"eventmaster/projection"
	"eventmaster/reconcile"
	"eventmaster/repositories"
	"eventmaster/runtime"
	"eventmaster/search"
	"eventmaster/services"
	"eventmaster/storage"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// App wires every component from the configuration.
type App struct {
	Config     internal.Config
	Log        *slog.Logger
	Store      storage.Persistence
	Diag       *observability.Diagnostics
	Records    *repositories.RecordStore
	Resolver   *auth.Resolver
	Events     *services.EventService
	Chats      *services.ChatService
	Sessions   *services.SessionService
	Reconciler *reconcile.Reconciler
	Agenda     *projection.Agenda
	Index      *search.Index
	Now        func() time.Time
	closers    []func() error
}

// NewApp opens the configured store and assembles the application on it.
func NewApp(ctx context.Context, cfg internal.Config, log *slog.Logger) (*App, error) {
	store, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	app, err := Assemble(ctx, cfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	app.closers = append(app.closers, store.Close)
	return app, nil
}

func OpenStore(cfg internal.Config, log *slog.Logger) (storage.Persistence, error) {
	switch cfg.StorageBackend {
	case "sqlite":
		if err := ensureDir(cfg.SqliteFilepath); err != nil {
			return nil, err
		}
		return storage.OpenSqlite(cfg.SqliteFilepath)
	default:
		badgerCfg := storage.DefaultBadgerConfig(cfg.BadgerFilepath)
		badgerCfg.Logger = log
		return storage.OpenBadger(badgerCfg)
	}
}

// Assemble builds the application on an open store. The store is not closed by Close.
func Assemble(ctx context.Context, cfg internal.Config, store storage.Persistence, log *slog.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	charReplacement, err := internal.CharacterRune(cfg.CharReplacement)
	if err != nil {
		return nil, err
	}
	moderator, err := moderation.NewModerator(cfg.Words(), charReplacement, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build moderator: %w", err)
	}

	app := &App{Config: cfg, Log: log, Store: store, Now: time.Now}
	app.Diag = observability.NewDiagnostics(log, cfg.DiagnosticsCapacity)
	app.Records = repositories.NewRecordStore(store, app.Diag, log)
	sequence := repositories.NewSequence(store, log)
	tracker := reconcile.NewTracker(store, app.Records, app.Diag, log, cfg.DeviceID)

	// Explicit user first, then a signed token, then the stored sign-in
	stored := auth.NewStoredSession(store)
	signer := auth.NewSigner(cfg.SessionSecret, cfg.SessionTTL)
	provider := auth.ChainSession{auth.ContextSession{}, auth.NewTokenSession(signer), stored}
	app.Resolver = auth.NewResolver(provider, log)
	locks := runtime.NewLocks()

	app.Events = services.NewEventService(app.Records, sequence, tracker, app.Resolver, locks, log,
		services.WithLocation(loc),
		services.WithChatCascade(cfg.CascadeChatOnDelete))
	app.Chats = services.NewChatService(app.Records, app.Resolver, locks, log,
		services.WithModerator(moderator),
		services.WithLanguageDetection(cfg.DetectLanguage))
	app.Sessions = services.NewSessionService(stored, provider, signer, app.Resolver)

	remote, closeRemote, err := openRemote(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeRemote != nil {
		app.closers = append(app.closers, closeRemote)
	}
	app.Reconciler = reconcile.NewReconciler(app.Records, sequence, tracker, remote, app.Resolver, locks, app.Diag, log,
		reconcile.WithPolicy(reconcile.Policy(cfg.ConflictPolicy)),
		reconcile.WithTombstoneGrace(cfg.TombstoneGrace))

	app.Agenda = projection.NewAgenda(loc)
	app.Index = search.NewIndex(log)
	return app, nil
}

func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

func openRemote(ctx context.Context, cfg internal.Config) (reconcile.Remote, func() error, error) {
	switch cfg.Remote {
	case "memory":
		return reconcile.NewMemoryRemote(), nil, nil
	case "file":
		if err := ensureDir(cfg.RemotePath); err != nil {
			return nil, nil, err
		}
		store, err := storage.OpenSqlite(cfg.RemotePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open file remote: %w", err)
		}
		return reconcile.NewStoreRemote(store), store.Close, nil
	case "mongo":
		client, err := reconcile.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		remote := reconcile.NewMongoRemote(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection))
		if err = remote.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return remote, func() error { return client.Disconnect(context.Background()) }, nil
	}
	return nil, nil, nil
}

func ensureDir(path string) error {
	if path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
