package repositories

import (
	"context"
	"eventmaster/domain"
	"eventmaster/errors"
	"eventmaster/observability"
	"eventmaster/storage"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

type IRecordStore interface {
	LoadEvents(ctx context.Context, ns domain.Namespace) []domain.Event
	LoadChats(ctx context.Context, ns domain.Namespace) []domain.ChatMessage
	SaveEvents(ctx context.Context, ns domain.Namespace, events []domain.Event) error
	SaveChats(ctx context.Context, ns domain.Namespace, messages []domain.ChatMessage) error
	GetEvent(ctx context.Context, ns domain.Namespace, id int64) *domain.Event
	EventsEntry(ns domain.Namespace, events []domain.Event) (storage.Entry, error)
	ChatsEntry(ns domain.Namespace, messages []domain.ChatMessage) (storage.Entry, error)
	Commit(ctx context.Context, kind domain.Kind, entries ...storage.Entry) error
}

// RecordStore owns the per-namespace Event and ChatMessage collections.
// Reads never fail: an unreadable collection is served empty and reported
// through Diagnostics. Writes always report failure.
type RecordStore struct {
	store storage.Persistence
	diag  *observability.Diagnostics
	log   *slog.Logger
	now   func() time.Time
}

func NewRecordStore(store storage.Persistence, diag *observability.Diagnostics, log *slog.Logger) *RecordStore {
	return &RecordStore{store: store, diag: diag, log: log, now: time.Now}
}

func (r *RecordStore) LoadEvents(ctx context.Context, ns domain.Namespace) []domain.Event {
	return loadAll(ctx, r, ns, domain.KindEvents, EventsKey(ns), decodeLegacyArray[domain.Event])
}

func (r *RecordStore) LoadChats(ctx context.Context, ns domain.Namespace) []domain.ChatMessage {
	return loadAll(ctx, r, ns, domain.KindChats, ChatsKey(ns), decodeLegacyChats)
}

func (r *RecordStore) GetEvent(ctx context.Context, ns domain.Namespace, id int64) *domain.Event {
	event, ok := lo.Find(r.LoadEvents(ctx, ns), func(e domain.Event) bool { return e.ID == id })
	if !ok {
		return nil
	}
	return &event
}

func (r *RecordStore) SaveEvents(ctx context.Context, ns domain.Namespace, events []domain.Event) error {
	entry, err := r.EventsEntry(ns, events)
	if err != nil {
		return err
	}
	return r.Commit(ctx, domain.KindEvents, entry)
}

func (r *RecordStore) SaveChats(ctx context.Context, ns domain.Namespace, messages []domain.ChatMessage) error {
	entry, err := r.ChatsEntry(ns, messages)
	if err != nil {
		return err
	}
	return r.Commit(ctx, domain.KindChats, entry)
}

func (r *RecordStore) EventsEntry(ns domain.Namespace, events []domain.Event) (storage.Entry, error) {
	return entry(EventsKey(ns), events)
}

func (r *RecordStore) ChatsEntry(ns domain.Namespace, messages []domain.ChatMessage) (storage.Entry, error) {
	return entry(ChatsKey(ns), messages)
}

// Commit writes a batch prepared by the entry builders in one atomic call.
func (r *RecordStore) Commit(ctx context.Context, kind domain.Kind, entries ...storage.Entry) error {
	if err := r.store.Write(ctx, entries...); err != nil {
		r.diag.IncrWriteFailures(string(kind))
		return fmt.Errorf("%w: %w", errors.ErrStorageWrite, err)
	}
	return nil
}

func entry[T any](key string, records []T) (storage.Entry, error) {
	raw, err := encode(records)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("%w: encode %s: %w", errors.ErrStorageWrite, key, err)
	}
	return storage.Put(key, raw), nil
}

func loadAll[T any](ctx context.Context, r *RecordStore, ns domain.Namespace, kind domain.Kind,
	key string, legacy func([]byte) ([]T, error)) []T {
	raw, ok, err := r.store.Read(ctx, key)
	if err != nil {
		r.diag.RecordReadFailure(observability.ReadFailure{
			Namespace: ns.String(),
			Kind:      string(kind),
			Key:       key,
			Reason:    fmt.Errorf("%w: %w", errors.ErrStorageRead, err).Error(),
			At:        r.now().UTC(),
		})
		return []T{}
	}
	if !ok {
		return []T{}
	}
	records, version, err := decode(raw, legacy)
	if err != nil {
		r.diag.RecordReadFailure(observability.ReadFailure{
			Namespace:     ns.String(),
			Kind:          string(kind),
			Key:           key,
			QuarantineKey: r.Quarantine(ctx, key, raw),
			Reason:        err.Error(),
			Corrupt:       true,
			At:            r.now().UTC(),
		})
		return []T{}
	}
	if version < SchemaVersion {
		r.log.Debug("Legacy collection read, migrated on next write", "key", key, "schema_version", version)
	}
	if records == nil {
		return []T{}
	}
	return records
}

// Quarantine copies undecodable bytes aside so the next save cannot
// silently discard them. It returns the key used, or "" if the copy failed.
func (r *RecordStore) Quarantine(ctx context.Context, key string, raw []byte) string {
	qKey := fmt.Sprintf("%s%s%d", key, corruptInfix, r.now().UnixNano())
	if err := r.store.Write(ctx, storage.Put(qKey, raw)); err != nil {
		r.log.Error("Failed to quarantine corrupt collection", "key", key, "error", err)
		return ""
	}
	return qKey
}
