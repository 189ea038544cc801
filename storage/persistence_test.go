package storage

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

type persistenceSuite struct {
	suite.Suite
	open  func(t *testing.T) (Persistence, error)
	store Persistence
}

func (s *persistenceSuite) SetupTest() {
	store, err := s.open(s.T())
	s.Require().NoError(err)
	s.store = store
}

func (s *persistenceSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func TestBadgerPersistence(t *testing.T) {
	suite.Run(t, &persistenceSuite{open: func(t *testing.T) (Persistence, error) {
		cfg := InMemoryBadgerConfig()
		cfg.Logger = logs.GetLoggerFromLevel(slog.LevelError)
		return OpenBadger(cfg)
	}})
}

func TestBadgerPersistence_OnDisk(t *testing.T) {
	suite.Run(t, &persistenceSuite{open: func(t *testing.T) (Persistence, error) {
		return OpenBadger(DefaultBadgerConfig(filepath.Join(t.TempDir(), "badger")))
	}})
}

func TestSqlitePersistence(t *testing.T) {
	suite.Run(t, &persistenceSuite{open: func(t *testing.T) (Persistence, error) {
		return OpenSqlite(":memory:")
	}})
}

func (s *persistenceSuite) TestReadMissingKey() {
	value, ok, err := s.store.Read(context.Background(), "events_nobody")
	s.Require().NoError(err)
	s.Require().False(ok)
	s.Require().Nil(value)
}

func (s *persistenceSuite) TestWriteThenRead() {
	ctx := context.Background()
	s.Require().NoError(s.store.Write(ctx, Put("events_u1", []byte(`{"a":1}`))))
	s.Require().NoError(s.store.Write(ctx, Put("events_u1", []byte(`{"a":2}`))))

	value, ok, err := s.store.Read(ctx, "events_u1")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Require().Equal(`{"a":2}`, string(value))
}

func (s *persistenceSuite) TestBatchIsAtomicWithDeletes() {
	ctx := context.Background()
	s.Require().NoError(s.store.Write(ctx, Put("a", []byte("1")), Put("b", []byte("2"))))
	s.Require().NoError(s.store.Write(ctx, Put("c", []byte("3")), Remove("a")))

	_, ok, err := s.store.Read(ctx, "a")
	s.Require().NoError(err)
	s.Require().False(ok)

	keys, err := s.store.Keys(ctx, "")
	s.Require().NoError(err)
	s.Require().Equal([]string{"b", "c"}, keys)
}

func (s *persistenceSuite) TestCancelledWriteLeavesNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Require().Error(s.store.Write(ctx, Put("x", []byte("1")), Put("y", []byte("2"))))

	keys, err := s.store.Keys(context.Background(), "")
	s.Require().NoError(err)
	s.Require().Empty(keys)
}

func (s *persistenceSuite) TestKeysByPrefix() {
	ctx := context.Background()
	s.Require().NoError(s.store.Write(ctx,
		Put("sync_u2", []byte("{}")),
		Put("sync_u1", []byte("{}")),
		Put("events_u1", []byte("[]")),
	))
	keys, err := s.store.Keys(ctx, "sync_")
	s.Require().NoError(err)
	s.Require().Equal([]string{"sync_u1", "sync_u2"}, keys)

	s.Require().NoError(s.store.Delete(ctx, "sync_u1"))
	keys, err = s.store.Keys(ctx, "sync_")
	s.Require().NoError(err)
	s.Require().Equal([]string{"sync_u2"}, keys)
}
