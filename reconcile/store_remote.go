package reconcile

import (
	"context"
	"encoding/json"
	"eventmaster/domain"
	"eventmaster/storage"
	"fmt"
	"sync"
	"time"
)

const remotePrefix = "remote:"

// StoreRemote serves a remote out of any Persistence, typically a SQLite file
// shared by several local stores. One key holds a namespace's records.
type StoreRemote struct {
	mu    sync.Mutex
	store storage.Persistence
}

func NewStoreRemote(store storage.Persistence) *StoreRemote {
	return &StoreRemote{store: store}
}

func (s *StoreRemote) Pull(ctx context.Context, ns domain.Namespace) ([]RemoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, err := s.load(ctx, ns)
	if err != nil {
		return nil, err
	}
	out := make([]RemoteRecord, 0, len(byID))
	for _, rr := range byID {
		out = append(out, rr)
	}
	sortRecords(out)
	return out, nil
}

func (s *StoreRemote) Push(ctx context.Context, ns domain.Namespace, records []RemoteRecord) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, err := s.load(ctx, ns)
	if err != nil {
		return nil, err
	}
	var stale []int64
	for _, rr := range records {
		if !newer(byID, rr) {
			stale = append(stale, rr.ID)
			continue
		}
		byID[rr.ID] = rr
	}
	if len(stale) == len(records) {
		return stale, nil
	}
	return stale, s.save(ctx, ns, byID)
}

func (s *StoreRemote) Purge(ctx context.Context, ns domain.Namespace, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, err := s.load(ctx, ns)
	if err != nil {
		return 0, err
	}
	purged := purgeTombstones(byID, cutoff)
	if purged == 0 {
		return 0, nil
	}
	if err = s.save(ctx, ns, byID); err != nil {
		return 0, err
	}
	return purged, nil
}

func (s *StoreRemote) save(ctx context.Context, ns domain.Namespace, byID map[int64]RemoteRecord) error {
	all := make([]RemoteRecord, 0, len(byID))
	for _, rr := range byID {
		all = append(all, rr)
	}
	sortRecords(all)
	raw, err := json.Marshal(all)
	if err != nil {
		return err
	}
	return s.store.Write(ctx, storage.Put(remotePrefix+ns.String(), raw))
}

func (s *StoreRemote) load(ctx context.Context, ns domain.Namespace) (map[int64]RemoteRecord, error) {
	raw, ok, err := s.store.Read(ctx, remotePrefix+ns.String())
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]RemoteRecord)
	if !ok {
		return byID, nil
	}
	var records []RemoteRecord
	if err = json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode remote %s: %w", ns, err)
	}
	for _, rr := range records {
		byID[rr.ID] = rr
	}
	return byID, nil
}
