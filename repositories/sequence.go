package repositories

import (
	"context"
	"eventmaster/domain"
	"eventmaster/storage"
	"log/slog"
	"strconv"

	"github.com/samber/lo"
)

// NextID derives the next event id from the existing ones: max + 1, or 1.
func NextID(existing []domain.Event) int64 {
	return lo.Reduce(existing, func(max int64, e domain.Event, _ int) int64 {
		return lo.Max([]int64{max, e.ID})
	}, 0) + 1
}

// Sequence persists the highest id handed out per namespace so ids are
// never reused after the highest record is deleted.
type Sequence struct {
	store storage.Persistence
	log   *slog.Logger
}

func NewSequence(store storage.Persistence, log *slog.Logger) *Sequence {
	return &Sequence{store: store, log: log}
}

// Next returns max(counter, NextID(existing)-1) + 1 and the counter entry to
// commit in the same batch as the collection. An unreadable counter degrades
// to the derived id.
func (s *Sequence) Next(ctx context.Context, ns domain.Namespace, existing []domain.Event) (int64, storage.Entry) {
	return s.NextAbove(ctx, ns, NextID(existing)-1)
}

// NextAbove returns max(counter, floor) + 1 and the counter entry, for ids
// that must also clear records the collection does not hold.
func (s *Sequence) NextAbove(ctx context.Context, ns domain.Namespace, floor int64) (int64, storage.Entry) {
	id := lo.Max([]int64{s.current(ctx, ns), floor}) + 1
	return id, s.entry(ns, id)
}

// Observe returns the counter entry raising it to at least id.
// ok is false when the counter is already there.
func (s *Sequence) Observe(ctx context.Context, ns domain.Namespace, id int64) (storage.Entry, bool) {
	if s.current(ctx, ns) >= id {
		return storage.Entry{}, false
	}
	return s.entry(ns, id), true
}

func (s *Sequence) current(ctx context.Context, ns domain.Namespace) int64 {
	raw, ok, err := s.store.Read(ctx, CounterKey(ns))
	if err != nil {
		s.log.Warn("Id counter unreadable, deriving from records", "namespace", ns, "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	current, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		s.log.Warn("Id counter corrupt, deriving from records", "namespace", ns, "value", string(raw))
		return 0
	}
	return current
}

func (s *Sequence) entry(ns domain.Namespace, id int64) storage.Entry {
	return storage.Put(CounterKey(ns), []byte(strconv.FormatInt(id, 10)))
}
