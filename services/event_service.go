package services

import (
	"context"
	stderrors "errors"
	"eventmaster/contract"
	"eventmaster/domain"
	"eventmaster/errors"
	"eventmaster/reconcile"
	"eventmaster/repositories"
	"eventmaster/storage"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/lo"
)

type IEventService interface {
	Create(ctx context.Context, draft domain.EventDraft) (domain.Event, error)
	Update(ctx context.Context, id int64, patch domain.EventPatch) (domain.Event, error)
	Delete(ctx context.Context, id int64) error
	Restore(ctx context.Context, event domain.Event) (domain.Event, error)
	RestoreDeleted(ctx context.Context, id int64) (domain.Event, error)
	Get(ctx context.Context, id int64) (domain.Event, error)
	List(ctx context.Context) []domain.Event
}

type EventOption func(*EventService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) EventOption {
	return func(s *EventService) { s.now = now }
}

// WithLocation sets where "today" and "now" are evaluated for schedule checks.
func WithLocation(loc *time.Location) EventOption {
	return func(s *EventService) { s.loc = loc }
}

// WithChatCascade deletes an event's chat messages together with the event.
func WithChatCascade(enabled bool) EventOption {
	return func(s *EventService) { s.cascadeChats = enabled }
}

// EventService is the mutation engine for events. Every operation resolves
// the namespace, holds its lock and commits one atomic batch.
type EventService struct {
	records      *repositories.RecordStore
	sequence     *repositories.Sequence
	tracker      *reconcile.Tracker
	resolver     contract.IResolver
	locks        contract.ILocks
	log          *slog.Logger
	now          func() time.Time
	loc          *time.Location
	cascadeChats bool
}

func NewEventService(records *repositories.RecordStore, sequence *repositories.Sequence,
	tracker *reconcile.Tracker, resolver contract.IResolver, locks contract.ILocks,
	log *slog.Logger, opts ...EventOption) *EventService {
	s := &EventService{
		records:  records,
		sequence: sequence,
		tracker:  tracker,
		resolver: resolver,
		locks:    locks,
		log:      log,
		now:      time.Now,
		loc:      time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EventService) Create(ctx context.Context, draft domain.EventDraft) (domain.Event, error) {
	// 1. Shape and schedule, before touching storage
	fields, err := fieldErrors(domain.ValidateStruct(draft))
	if err != nil {
		return domain.Event{}, err
	}
	now := s.now().In(s.loc)
	fields = append(fields, domain.CheckSchedule(draft.Fecha, draft.Hora, now)...)
	if len(fields) > 0 {
		return domain.Event{}, errors.NewValidationError(fields...)
	}

	ns := s.resolver.Resolve(ctx)
	unlock := s.locks.Lock(ns)
	defer unlock()

	// 2. Duplicate detection on the current collection
	events := s.records.LoadEvents(ctx, ns)
	if dup, ok := findDuplicate(events, domain.DedupKey(draft.Nombre, draft.Fecha), 0); ok {
		return domain.Event{}, fmt.Errorf("%w: %q on %s (id %d)", errors.ErrDuplicateEvent, dup.Nombre, dup.Fecha, dup.ID)
	}

	// 3. Allocate the id and commit collection, counter and sync state together
	id, counterEntry := s.sequence.Next(ctx, ns, events)
	event := draft.ToEvent(id)
	events = append(events, event)

	state := s.tracker.Load(ctx, ns)
	state.Touch(id, s.tracker.Origin(ctx, ns), stamp(now))
	if err = s.commit(ctx, ns, events, state, counterEntry); err != nil {
		return domain.Event{}, err
	}
	s.log.Info("Event created", "namespace", ns, "id", id, "fecha", event.Fecha)
	return event, nil
}

// Update merges patch into the event. A patch that changes nothing is not written.
// The not-in-the-past rule only applies on creation.
func (s *EventService) Update(ctx context.Context, id int64, patch domain.EventPatch) (domain.Event, error) {
	if err := domain.ValidateStruct(patch); err != nil {
		return domain.Event{}, err
	}
	ns := s.resolver.Resolve(ctx)
	unlock := s.locks.Lock(ns)
	defer unlock()

	events := s.records.LoadEvents(ctx, ns)
	_, idx, found := lo.FindIndexOf(events, func(e domain.Event) bool { return e.ID == id })
	if !found {
		return domain.Event{}, fmt.Errorf("%w: event %d", errors.ErrNotFound, id)
	}
	existing := events[idx]
	merged := patch.Apply(existing)
	if merged.Equal(existing) {
		return existing, nil
	}
	if dup, ok := findDuplicate(events, merged.DedupKey(), id); ok {
		return domain.Event{}, fmt.Errorf("%w: %q on %s (id %d)", errors.ErrDuplicateEvent, dup.Nombre, dup.Fecha, dup.ID)
	}
	events[idx] = merged

	state := s.tracker.Load(ctx, ns)
	state.Touch(id, s.tracker.Origin(ctx, ns), stamp(s.now()))
	if err := s.commit(ctx, ns, events, state); err != nil {
		return domain.Event{}, err
	}
	s.log.Info("Event updated", "namespace", ns, "id", id)
	return merged, nil
}

// Delete is idempotent. The deleted content is kept in the tombstone so it can be restored.
func (s *EventService) Delete(ctx context.Context, id int64) error {
	ns := s.resolver.Resolve(ctx)
	unlock := s.locks.Lock(ns)
	defer unlock()

	events := s.records.LoadEvents(ctx, ns)
	removed, idx, found := lo.FindIndexOf(events, func(e domain.Event) bool { return e.ID == id })
	if !found {
		s.log.Debug("Delete of a missing event ignored", "namespace", ns, "id", id)
		return nil
	}
	events = append(events[:idx:idx], events[idx+1:]...)

	state := s.tracker.Load(ctx, ns)
	state.Tombstone(id, s.tracker.Origin(ctx, ns), stamp(s.now()), removed)

	var extra []storage.Entry
	eventID := strconv.FormatInt(id, 10)
	chats := s.records.LoadChats(ctx, ns)
	kept := lo.Reject(chats, func(m domain.ChatMessage, _ int) bool { return m.EventID == eventID })
	orphans := len(chats) - len(kept)
	switch {
	case orphans == 0:
	case s.cascadeChats:
		chatsEntry, err := s.records.ChatsEntry(ns, kept)
		if err != nil {
			return err
		}
		extra = append(extra, chatsEntry)
	default:
		s.log.Warn("Deleted event leaves orphan chat messages", "namespace", ns, "id", id, "messages", orphans)
	}

	if err := s.commit(ctx, ns, events, state, extra...); err != nil {
		return err
	}
	s.log.Info("Event deleted", "namespace", ns, "id", id, "cascaded_messages", len(extra) > 0)
	return nil
}

// Restore re-inserts a deleted event under its original id. The event is
// held to the creation rules except the one about dates in the past.
func (s *EventService) Restore(ctx context.Context, event domain.Event) (domain.Event, error) {
	var fields []errors.FieldError
	if event.ID <= 0 {
		fields = append(fields, errors.FieldError{Field: "id", Rule: "gt", Message: "must be a positive id"})
	}
	for _, part := range []any{event.ToDraft(), event.Confirmaciones} {
		partFields, err := fieldErrors(domain.ValidateStruct(part))
		if err != nil {
			return domain.Event{}, err
		}
		fields = append(fields, partFields...)
	}
	if len(fields) > 0 {
		return domain.Event{}, errors.NewValidationError(fields...)
	}
	ns := s.resolver.Resolve(ctx)
	unlock := s.locks.Lock(ns)
	defer unlock()
	return s.restoreLocked(ctx, ns, event)
}

// RestoreDeleted restores an event from its tombstone, as it was stored.
func (s *EventService) RestoreDeleted(ctx context.Context, id int64) (domain.Event, error) {
	ns := s.resolver.Resolve(ctx)
	unlock := s.locks.Lock(ns)
	defer unlock()

	entry, ok := s.tracker.Load(ctx, ns).Entries[id]
	if !ok || !entry.Deleted || entry.Snapshot == nil {
		return domain.Event{}, fmt.Errorf("%w: no deleted event %d", errors.ErrNotFound, id)
	}
	return s.restoreLocked(ctx, ns, *entry.Snapshot)
}

func (s *EventService) restoreLocked(ctx context.Context, ns domain.Namespace, event domain.Event) (domain.Event, error) {
	events := s.records.LoadEvents(ctx, ns)
	if lo.ContainsBy(events, func(e domain.Event) bool { return e.ID == event.ID }) {
		return domain.Event{}, fmt.Errorf("%w: event %d", errors.ErrAlreadyExists, event.ID)
	}
	if dup, ok := findDuplicate(events, event.DedupKey(), event.ID); ok {
		return domain.Event{}, fmt.Errorf("%w: %q on %s (id %d)", errors.ErrDuplicateEvent, dup.Nombre, dup.Fecha, dup.ID)
	}
	events = append(events, event)

	var extra []storage.Entry
	if counterEntry, ok := s.sequence.Observe(ctx, ns, event.ID); ok {
		extra = append(extra, counterEntry)
	}
	state := s.tracker.Load(ctx, ns)
	state.Touch(event.ID, s.tracker.Origin(ctx, ns), stamp(s.now()))
	if err := s.commit(ctx, ns, events, state, extra...); err != nil {
		return domain.Event{}, err
	}
	s.log.Info("Event restored", "namespace", ns, "id", event.ID)
	return event, nil
}

func (s *EventService) Get(ctx context.Context, id int64) (domain.Event, error) {
	event := s.records.GetEvent(ctx, s.resolver.Resolve(ctx), id)
	if event == nil {
		return domain.Event{}, fmt.Errorf("%w: event %d", errors.ErrNotFound, id)
	}
	return *event, nil
}

func (s *EventService) List(ctx context.Context) []domain.Event {
	return s.records.LoadEvents(ctx, s.resolver.Resolve(ctx))
}

func (s *EventService) commit(ctx context.Context, ns domain.Namespace, events []domain.Event,
	state *reconcile.SyncState, extra ...storage.Entry) error {
	eventsEntry, err := s.records.EventsEntry(ns, events)
	if err != nil {
		return err
	}
	stateEntry, err := s.tracker.Entry(ns, state)
	if err != nil {
		return err
	}
	entries := append([]storage.Entry{eventsEntry, stateEntry}, extra...)
	return s.records.Commit(ctx, domain.KindEvents, entries...)
}

func findDuplicate(events []domain.Event, key string, exceptID int64) (domain.Event, bool) {
	return lo.Find(events, func(e domain.Event) bool {
		return e.ID != exceptID && e.DedupKey() == key
	})
}

// fieldErrors unwraps a validation failure into its fields. Any other error is returned as is.
func fieldErrors(err error) ([]errors.FieldError, error) {
	if err == nil {
		return nil, nil
	}
	var vErr *errors.ValidationError
	if stderrors.As(err, &vErr) {
		return vErr.Fields, nil
	}
	return nil, err
}

// stamp is the wall-clock time recorded for sync, at millisecond precision.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
