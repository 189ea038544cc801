//go:generate go run go.uber.org/mock/mockgen -source=remote.go -destination=../mocks/mock_remote.go -package=mocks
package reconcile

import (
	"context"
	"eventmaster/domain"
	"sort"
	"sync"
	"time"
)

// RemoteRecord is the wire form of a record on the remote source of truth.
// Event is nil for a tombstone.
type RemoteRecord struct {
	ID        int64         `json:"id" bson:"id"`
	Version   int64         `json:"version" bson:"version"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updatedAt"`
	Origin    string        `json:"origin" bson:"origin"`
	Deleted   bool          `json:"deleted" bson:"deleted"`
	Event     *domain.Event `json:"event,omitempty" bson:"event,omitempty"`
}

// Remote is the source of truth shared by every device of a namespace.
// Push upserts by record id and never replaces a stored record with one of
// an equal or lower version: it returns the ids it refused. Purge drops tombstones last updated at or before
// cutoff and returns how many went.
type Remote interface {
	Pull(ctx context.Context, ns domain.Namespace) ([]RemoteRecord, error)
	Push(ctx context.Context, ns domain.Namespace, records []RemoteRecord) ([]int64, error)
	Purge(ctx context.Context, ns domain.Namespace, cutoff time.Time) (int, error)
}

// MemoryRemote keeps records in process. Devices sharing one instance see each other.
type MemoryRemote struct {
	mu      sync.RWMutex
	records map[domain.Namespace]map[int64]RemoteRecord
}

func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{records: make(map[domain.Namespace]map[int64]RemoteRecord)}
}

func (m *MemoryRemote) Pull(ctx context.Context, ns domain.Namespace) ([]RemoteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RemoteRecord, 0, len(m.records[ns]))
	for _, rr := range m.records[ns] {
		out = append(out, cloneRecord(rr))
	}
	sortRecords(out)
	return out, nil
}

func (m *MemoryRemote) Push(ctx context.Context, ns domain.Namespace, records []RemoteRecord) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.records[ns]
	if !ok {
		byID = make(map[int64]RemoteRecord)
		m.records[ns] = byID
	}
	var stale []int64
	for _, rr := range records {
		if !newer(byID, rr) {
			stale = append(stale, rr.ID)
			continue
		}
		byID[rr.ID] = cloneRecord(rr)
	}
	return stale, nil
}

func (m *MemoryRemote) Purge(ctx context.Context, ns domain.Namespace, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return purgeTombstones(m.records[ns], cutoff), nil
}

// newer reports whether rr may replace what byID holds for its id.
func newer(byID map[int64]RemoteRecord, rr RemoteRecord) bool {
	stored, ok := byID[rr.ID]
	return !ok || stored.Version < rr.Version
}

func purgeTombstones(byID map[int64]RemoteRecord, cutoff time.Time) int {
	purged := 0
	for id, rr := range byID {
		if rr.Deleted && !rr.UpdatedAt.After(cutoff) {
			delete(byID, id)
			purged++
		}
	}
	return purged
}

func cloneRecord(rr RemoteRecord) RemoteRecord {
	if rr.Event != nil {
		e := *rr.Event
		rr.Event = &e
	}
	return rr
}

func sortRecords(records []RemoteRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
