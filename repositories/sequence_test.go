package repositories_test

import (
	"context"
	"eventmaster/domain"
	"eventmaster/repositories"
	"eventmaster/storage"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestNextID(t *testing.T) {
	req := require.New(t)
	req.Equal(int64(1), repositories.NextID(nil))
	req.Equal(int64(8), repositories.NextID([]domain.Event{{ID: 3}, {ID: 7}, {ID: 2}}))
}

func TestSequence_NeverReusesIds(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, store, _ := newTestStore(t)
	seq := repositories.NewSequence(store, logs.GetLoggerFromLevel(slog.LevelError))

	id, entry := seq.Next(ctx, "u1", nil)
	req.Equal(int64(1), id)
	req.NoError(store.Write(ctx, entry))

	id, entry = seq.Next(ctx, "u1", []domain.Event{{ID: 1}})
	req.Equal(int64(2), id)
	req.NoError(store.Write(ctx, entry))

	// Highest record deleted: the counter still moves forward.
	id, _ = seq.Next(ctx, "u1", []domain.Event{{ID: 1}})
	req.Equal(int64(3), id)

	// Other namespaces have their own counter.
	id, _ = seq.Next(ctx, "u2", nil)
	req.Equal(int64(1), id)
}

func TestSequence_RecordsAheadOfCounterWin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, store, _ := newTestStore(t)
	seq := repositories.NewSequence(store, logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(store.Write(ctx, storage.Put(repositories.CounterKey("u1"), []byte("2"))))

	id, _ := seq.Next(ctx, "u1", []domain.Event{{ID: 9}})
	req.Equal(int64(10), id)
}

func TestSequence_CorruptCounterDegrades(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, store, _ := newTestStore(t)
	seq := repositories.NewSequence(store, logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(store.Write(ctx, storage.Put(repositories.CounterKey("u1"), []byte("not-a-number"))))

	id, entry := seq.Next(ctx, "u1", []domain.Event{{ID: 4}})
	req.Equal(int64(5), id)
	req.Equal("5", string(entry.Value))
}

func TestSequence_Observe(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, store, _ := newTestStore(t)
	seq := repositories.NewSequence(store, logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(store.Write(ctx, storage.Put(repositories.CounterKey("u1"), []byte("5"))))

	_, ok := seq.Observe(ctx, "u1", 3)
	req.False(ok)
	entry, ok := seq.Observe(ctx, "u1", 7)
	req.True(ok)
	req.Equal("7", string(entry.Value))
}

func TestSequence_NextAbove(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	_, store, _ := newTestStore(t)
	seq := repositories.NewSequence(store, logs.GetLoggerFromLevel(slog.LevelError))
	req.NoError(store.Write(ctx, storage.Put(repositories.CounterKey("u1"), []byte("4"))))

	id, _ := seq.NextAbove(ctx, "u1", 2)
	req.Equal(int64(5), id)
	id, entry := seq.NextAbove(ctx, "u1", 11)
	req.Equal(int64(12), id)
	req.Equal("12", string(entry.Value))
}
