package reconcile

import (
	"eventmaster/domain"
	"sort"
	"time"
)

type State string

const (
	Clean      State = "clean"
	Dirty      State = "dirty"
	Conflicted State = "conflicted"
)

type Policy string

const (
	PolicyLWW    Policy = "lww"
	PolicyManual Policy = "manual"
)

// Entry is the sync bookkeeping of one record. A deleted record keeps its
// entry as a tombstone until it is purged.
type Entry struct {
	ID            int64         `json:"id"`
	State         State         `json:"state"`
	Version       int64         `json:"version"`
	SyncedVersion int64         `json:"syncedVersion"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Origin        string        `json:"origin"`
	Deleted       bool          `json:"deleted,omitempty"`
	DeletedAt     *time.Time    `json:"deletedAt,omitempty"`
	Snapshot      *domain.Event `json:"snapshot,omitempty"`
	Remote        *RemoteRecord `json:"remote,omitempty"`
}

// SyncState is persisted per namespace next to the collections.
// Clock is a Lamport clock, separate from record ids.
type SyncState struct {
	SchemaVersion int              `json:"schemaVersion"`
	Clock         int64            `json:"clock"`
	Entries       map[int64]*Entry `json:"entries"`
}

func NewSyncState() *SyncState {
	return &SyncState{SchemaVersion: stateSchemaVersion, Entries: make(map[int64]*Entry)}
}

func (s *SyncState) Next() int64 {
	s.Clock++
	return s.Clock
}

// Observe moves the clock past a version seen elsewhere.
func (s *SyncState) Observe(version int64) {
	if version > s.Clock {
		s.Clock = version
	}
}

// Touch records a local change. A Conflicted record stays Conflicted until resolved.
func (s *SyncState) Touch(id int64, origin string, now time.Time) *Entry {
	e := s.entry(id)
	e.Version = s.Next()
	e.UpdatedAt = now
	e.Origin = origin
	e.Deleted = false
	e.DeletedAt = nil
	e.Snapshot = nil
	if e.State != Conflicted {
		e.State = Dirty
	}
	return e
}

// Tombstone records a local delete, keeping the last content for a later restore.
func (s *SyncState) Tombstone(id int64, origin string, now time.Time, last domain.Event) *Entry {
	e := s.Touch(id, origin, now)
	e.Deleted = true
	e.DeletedAt = &now
	e.Snapshot = &last
	return e
}

// Accept overwrites the entry with a record coming from the remote.
func (s *SyncState) Accept(rr RemoteRecord, previous *domain.Event) *Entry {
	e := s.entry(rr.ID)
	e.State = Clean
	e.Version = rr.Version
	e.SyncedVersion = rr.Version
	e.UpdatedAt = rr.UpdatedAt
	e.Origin = rr.Origin
	e.Remote = nil
	e.Deleted = rr.Deleted
	e.DeletedAt = nil
	e.Snapshot = nil
	if rr.Deleted {
		at := rr.UpdatedAt
		e.DeletedAt = &at
		e.Snapshot = previous
	}
	return e
}

// Rekey moves the entry of id from to id to and records the move as a new
// local change, so the record is pushed under its new id.
func (s *SyncState) Rekey(from, to int64) *Entry {
	e := s.entry(from)
	delete(s.Entries, from)
	e.ID = to
	if e.Snapshot != nil {
		snapshot := *e.Snapshot
		snapshot.ID = to
		e.Snapshot = &snapshot
	}
	e.Version = s.Next()
	e.State = Dirty
	e.Remote = nil
	s.Entries[to] = e
	return e
}

// Sorted returns copies of the entries ordered by record id.
func (s *SyncState) Sorted() []Entry {
	out := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *SyncState) entry(id int64) *Entry {
	e, ok := s.Entries[id]
	if !ok {
		e = &Entry{ID: id}
		s.Entries[id] = e
	}
	return e
}
