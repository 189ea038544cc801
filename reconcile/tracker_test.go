package reconcile_test

import (
	"context"
	"eventmaster/domain"
	"eventmaster/observability"
	"eventmaster/reconcile"
	"eventmaster/repositories"
	"eventmaster/storage"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTracker(t *testing.T, store storage.Persistence, deviceID string) (*reconcile.Tracker, *observability.Diagnostics) {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	diag := observability.NewDiagnostics(log, 10)
	records := repositories.NewRecordStore(store, diag, log)
	return reconcile.NewTracker(store, records, diag, log, deviceID), diag
}

func TestTracker_DeviceIDIsGeneratedOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, err := storage.OpenSqlite(":memory:")
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })

	first, _ := newTracker(t, store, "")
	id := first.DeviceID(ctx)
	req.NotEmpty(id)
	req.Equal(id, first.DeviceID(ctx))

	second, _ := newTracker(t, store, "")
	req.Equal(id, second.DeviceID(ctx))
	req.Equal("u1/"+id, second.Origin(ctx, "u1"))

	configured, _ := newTracker(t, store, "laptop")
	req.Equal("laptop", configured.DeviceID(ctx))
}

func TestTracker_StateRoundTrip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, err := storage.OpenSqlite(":memory:")
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })
	tracker, _ := newTracker(t, store, "a")
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	state := tracker.Load(ctx, "u1")
	state.Touch(1, "u1/a", at)
	state.Tombstone(2, "u1/a", at, domain.Event{ID: 2, Nombre: "Boda"})
	entry, err := tracker.Entry("u1", state)
	req.NoError(err)
	req.NoError(store.Write(ctx, entry))

	loaded := tracker.Load(ctx, "u1")
	req.Equal(int64(2), loaded.Clock)
	req.Equal(reconcile.Dirty, loaded.Entries[1].State)
	req.True(loaded.Entries[2].Deleted)
	req.Equal("Boda", loaded.Entries[2].Snapshot.Nombre)

	namespaces, err := tracker.Namespaces(ctx)
	req.NoError(err)
	req.Equal([]domain.Namespace{"u1"}, namespaces)
}

func TestTracker_CorruptStateIsQuarantined(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store, err := storage.OpenSqlite(":memory:")
	req.NoError(err)
	t.Cleanup(func() { _ = store.Close() })
	tracker, diag := newTracker(t, store, "a")
	req.NoError(store.Write(ctx, storage.Put(repositories.SyncKey("u1"), []byte("{broken"))))

	state := tracker.Load(ctx, "u1")
	req.Empty(state.Entries)
	req.Zero(state.Clock)

	stats := diag.GetLatest()
	req.Equal(uint64(1), stats.CorruptRecords)
	req.True(strings.HasPrefix(stats.RecentFailures[0].QuarantineKey, repositories.SyncKey("u1")))

	// The quarantined copy is not mistaken for a namespace.
	namespaces, err := tracker.Namespaces(ctx)
	req.NoError(err)
	req.Equal([]domain.Namespace{"u1"}, namespaces)
}

func TestSyncState_TouchKeepsConflicts(t *testing.T) {
	req := require.New(t)
	at := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	state := reconcile.NewSyncState()
	state.Observe(5)

	entry := state.Touch(1, "o", at)
	req.Equal(int64(6), entry.Version)
	req.Equal(reconcile.Dirty, entry.State)

	entry.State = reconcile.Conflicted
	entry = state.Touch(1, "o", at)
	req.Equal(reconcile.Conflicted, entry.State)
	req.Equal(int64(7), entry.Version)

	accepted := state.Accept(reconcile.RemoteRecord{ID: 1, Version: 9, UpdatedAt: at, Deleted: true},
		&domain.Event{ID: 1, Nombre: "Boda"})
	req.Equal(reconcile.Clean, accepted.State)
	req.Equal(int64(9), accepted.SyncedVersion)
	req.Equal("Boda", accepted.Snapshot.Nombre)
	req.Equal(at, *accepted.DeletedAt)
}
