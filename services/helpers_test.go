package services

import (
	"context"
	"eventmaster/auth"
	"eventmaster/observability"
	"eventmaster/reconcile"
	"eventmaster/repositories"
	"eventmaster/runtime"
	"eventmaster/storage"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type env struct {
	store    storage.Persistence
	records  *repositories.RecordStore
	tracker  *reconcile.Tracker
	diag     *observability.Diagnostics
	events   *EventService
	chats    *ChatService
	resolver *auth.Resolver
}

func newEnv(t *testing.T, store storage.Persistence, opts ...EventOption) env {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	if store == nil {
		cfg := storage.InMemoryBadgerConfig()
		cfg.Logger = log
		badger, err := storage.OpenBadger(cfg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = badger.Close() })
		store = badger
	}
	diag := observability.NewDiagnostics(log, 10)
	records := repositories.NewRecordStore(store, diag, log)
	tracker := reconcile.NewTracker(store, records, diag, log, "device-a")
	resolver := auth.NewResolver(auth.ContextSession{}, log)
	locks := runtime.NewLocks()
	opts = append([]EventOption{
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	}, opts...)
	return env{
		store:    store,
		records:  records,
		tracker:  tracker,
		diag:     diag,
		resolver: resolver,
		events: NewEventService(records, repositories.NewSequence(store, log), tracker,
			resolver, locks, log, opts...),
		chats: NewChatService(records, resolver, locks, log,
			WithChatClock(func() time.Time { return fixedNow })),
	}
}

func as(user string) context.Context {
	return auth.WithUser(context.Background(), auth.User{ID: user})
}
