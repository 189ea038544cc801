package reconcile

import (
	"context"
	stderrors "errors"
	"eventmaster/contract"
	"eventmaster/domain"
	"eventmaster/errors"
	"eventmaster/observability"
	"eventmaster/repositories"
	"eventmaster/storage"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/lo"
)

const DefaultTombstoneGrace = 720 * time.Hour

// Report summarizes one reconciliation of a namespace.
type Report struct {
	Namespace  domain.Namespace `json:"namespace"`
	Pulled     int              `json:"pulled"`
	Pushed     int              `json:"pushed"`
	Adopted    int              `json:"adopted"`
	Conflicts  int              `json:"conflicts"`
	LocalWins  int              `json:"localWins"`
	RemoteWins int              `json:"remoteWins"`
	Unresolved []int64          `json:"unresolved,omitempty"`
	Rekeyed    []Rekey          `json:"rekeyed,omitempty"`
	Duplicates []Duplicate      `json:"duplicates,omitempty"`
	Clock      int64            `json:"clock"`
}

// Rekey is a local record moved to a fresh id because another device
// published an unrelated record under its id first.
type Rekey struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Duplicate is a local event sharing name and date with a pulled one.
// Both are kept, the user picks which one goes.
type Duplicate struct {
	ID int64 `json:"id"`
	Of int64 `json:"of"`
}

// Status is the sync bookkeeping of a namespace.
type Status struct {
	Namespace domain.Namespace `json:"namespace"`
	DeviceID  string           `json:"deviceId"`
	Clock     int64            `json:"clock"`
	Entries   []Entry          `json:"entries"`
}

type Option func(*Reconciler)

func WithPolicy(p Policy) Option {
	return func(r *Reconciler) { r.policy = p }
}

func WithTombstoneGrace(grace time.Duration) Option {
	return func(r *Reconciler) { r.grace = grace }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler brings the local collections of a namespace in line with a Remote.
// It shares the namespace locks of the mutation engine.
type Reconciler struct {
	records  *repositories.RecordStore
	sequence *repositories.Sequence
	tracker  *Tracker
	remote   Remote
	resolver contract.IResolver
	locks    contract.ILocks
	diag     *observability.Diagnostics
	log      *slog.Logger
	policy   Policy
	grace    time.Duration
	now      func() time.Time
}

func NewReconciler(records *repositories.RecordStore, sequence *repositories.Sequence, tracker *Tracker,
	remote Remote, resolver contract.IResolver, locks contract.ILocks, diag *observability.Diagnostics,
	log *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		records:  records,
		sequence: sequence,
		tracker:  tracker,
		remote:   remote,
		resolver: resolver,
		locks:    locks,
		diag:     diag,
		log:      log,
		policy:   PolicyLWW,
		grace:    DefaultTombstoneGrace,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reconciler) Reconcile(ctx context.Context) (Report, error) {
	return r.ReconcileNamespace(ctx, r.resolver.Resolve(ctx))
}

// ReconcileNamespace pulls the remote, merges it into the local records,
// pushes what is still Dirty and persists records and sync state in one batch.
// Under PolicyManual, conflicts are returned as joined *errors.ConflictError
// after everything else has been applied.
func (r *Reconciler) ReconcileNamespace(ctx context.Context, ns domain.Namespace) (Report, error) {
	report := Report{Namespace: ns}
	if r.remote == nil {
		return report, errors.ErrNoRemote
	}
	unlock := r.locks.Lock(ns)
	defer unlock()

	remoteRecords, err := r.remote.Pull(ctx, ns)
	if err != nil {
		return report, fmt.Errorf("pull %s: %w", ns, err)
	}
	sortRecords(remoteRecords)

	view := newView(r.records.LoadEvents(ctx, ns))
	state := r.tracker.Load(ctx, ns)
	origin := r.tracker.Origin(ctx, ns)
	now := r.now().UTC().Truncate(time.Millisecond)

	// Records written before sync tracking existed are treated as local changes.
	for _, id := range view.ids() {
		if _, ok := state.Entries[id]; !ok {
			state.Touch(id, origin, now)
			report.Adopted++
		}
	}

	var (
		conflicts []error
		extra     []storage.Entry
		counter   storage.Entry
		floor     = highestID(view, state, remoteRecords)
		pulled    = make(map[int64]bool)
	)
	take := func(rr RemoteRecord) {
		view.apply(state, rr)
		pulled[rr.ID] = !rr.Deleted && rr.Event != nil
	}
	for _, rr := range remoteRecords {
		state.Observe(rr.Version)
		e, known := state.Entries[rr.ID]
		if known && e.SyncedVersion == 0 && e.Origin != rr.Origin {
			// Created here and never pushed: the remote record is another event that got the same id.
			to, counterEntry := r.sequence.NextAbove(ctx, ns, floor)
			view.rekey(rr.ID, to)
			state.Rekey(rr.ID, to)
			floor, counter = to, counterEntry
			report.Rekeyed = append(report.Rekeyed, Rekey{From: rr.ID, To: to})
			known = false
		}
		switch {
		case !known:
			if rr.Deleted && now.Sub(rr.UpdatedAt) >= r.grace {
				// Past the grace window the tombstone is only waiting to be purged.
				continue
			}
			take(rr)
			report.Pulled++
		case e.State == Clean:
			if rr.Version > e.Version {
				take(rr)
				report.Pulled++
			}
		case rr.Version <= e.SyncedVersion:
			// Remote unchanged since the last sync, the pending local change wins.
		default:
			report.Conflicts++
			if r.policy == PolicyManual {
				remoteCopy := cloneRecord(rr)
				e.State = Conflicted
				e.Remote = &remoteCopy
				report.Unresolved = append(report.Unresolved, rr.ID)
				conflicts = append(conflicts, &errors.ConflictError{
					Namespace:       ns.String(),
					ID:              rr.ID,
					LocalVersion:    e.Version,
					RemoteVersion:   rr.Version,
					LocalUpdatedAt:  e.UpdatedAt,
					RemoteUpdatedAt: rr.UpdatedAt,
				})
				continue
			}
			if remoteWins(*e, rr) {
				take(rr)
				report.RemoteWins++
				continue
			}
			e.SyncedVersion = rr.Version
			e.Version = state.Next()
			e.State = Dirty
			e.Remote = nil
			report.LocalWins++
		}
	}
	if len(report.Rekeyed) > 0 {
		extra = append(extra, counter)
		chatsEntry, moved, err := r.moveChats(ctx, ns, report.Rekeyed)
		if err != nil {
			return report, err
		}
		if moved {
			extra = append(extra, chatsEntry)
		}
		r.log.Warn("Local events moved to new ids", "namespace", ns, "rekeyed", report.Rekeyed)
	}
	report.Duplicates = view.duplicates(pulled)
	for _, d := range report.Duplicates {
		r.log.Warn("Pulled event duplicates a local one", "namespace", ns, "id", d.ID, "of", d.Of)
	}

	var pushErr error
	if pending := r.pending(state, view); len(pending) > 0 {
		stale, err := r.remote.Push(ctx, ns, pending)
		if err != nil {
			pushErr = fmt.Errorf("push %s: %w", ns, err)
		} else {
			// Refused records met a newer remote version pushed since the pull.
			// They stay Dirty and are settled against it on the next pass.
			refused := lo.Keyify(stale)
			for _, rr := range pending {
				if _, ok := refused[rr.ID]; ok {
					continue
				}
				e := state.Entries[rr.ID]
				e.State = Clean
				e.SyncedVersion = e.Version
				report.Pushed++
			}
			if len(stale) > 0 {
				r.log.Info("Remote moved on during sync, records kept pending", "namespace", ns, "ids", stale)
			}
		}
	}
	report.Clock = state.Clock

	if err = r.persist(ctx, ns, view, state, extra...); err != nil {
		return report, stderrors.Join(append([]error{err, pushErr}, conflicts...)...)
	}
	r.diag.AddSyncConflicts(report.Conflicts)
	r.log.Info("Namespace reconciled",
		"namespace", ns,
		"pulled", report.Pulled,
		"pushed", report.Pushed,
		"conflicts", report.Conflicts,
		"unresolved", len(report.Unresolved),
		"rekeyed", len(report.Rekeyed),
		"duplicates", len(report.Duplicates),
	)
	return report, stderrors.Join(append([]error{pushErr}, conflicts...)...)
}

// Resolve settles a Conflicted record, keeping the local copy (pushed on the
// next reconciliation) or taking the stashed remote copy.
func (r *Reconciler) Resolve(ctx context.Context, id int64, keepLocal bool) (Entry, error) {
	ns := r.resolver.Resolve(ctx)
	unlock := r.locks.Lock(ns)
	defer unlock()

	state := r.tracker.Load(ctx, ns)
	e, ok := state.Entries[id]
	if !ok || e.State != Conflicted || e.Remote == nil {
		return Entry{}, fmt.Errorf("%w: no conflict on record %d", errors.ErrNotFound, id)
	}
	view := newView(r.records.LoadEvents(ctx, ns))
	if keepLocal {
		e.SyncedVersion = e.Remote.Version
		e.Version = state.Next()
		e.State = Dirty
		e.Remote = nil
	} else {
		view.apply(state, *e.Remote)
	}
	if err := r.persist(ctx, ns, view, state); err != nil {
		return Entry{}, err
	}
	return *state.Entries[id], nil
}

func (r *Reconciler) Purge(ctx context.Context, now time.Time) (int, error) {
	return r.PurgeNamespace(ctx, r.resolver.Resolve(ctx), now)
}

// PurgeNamespace drops Clean tombstones older than the grace window, locally
// and on the remote. Dirty tombstones are kept until they have been pushed.
func (r *Reconciler) PurgeNamespace(ctx context.Context, ns domain.Namespace, now time.Time) (int, error) {
	unlock := r.locks.Lock(ns)
	defer unlock()

	if r.remote != nil {
		remotePurged, err := r.remote.Purge(ctx, ns, now.Add(-r.grace))
		if err != nil {
			return 0, fmt.Errorf("purge remote %s: %w", ns, err)
		}
		if remotePurged > 0 {
			r.log.Info("Remote tombstones purged", "namespace", ns, "count", remotePurged)
		}
	}

	state := r.tracker.Load(ctx, ns)
	purged := 0
	for id, e := range state.Entries {
		if e.Deleted && e.State == Clean && e.DeletedAt != nil && now.Sub(*e.DeletedAt) >= r.grace {
			delete(state.Entries, id)
			purged++
		}
	}
	if purged == 0 {
		return 0, nil
	}
	entry, err := r.tracker.Entry(ns, state)
	if err != nil {
		return 0, err
	}
	if err = r.records.Commit(ctx, kindSync, entry); err != nil {
		return 0, err
	}
	r.diag.AddTombstonesPurged(purged)
	r.log.Info("Tombstones purged", "namespace", ns, "count", purged)
	return purged, nil
}

func (r *Reconciler) Status(ctx context.Context) Status {
	ns := r.resolver.Resolve(ctx)
	unlock := r.locks.Lock(ns)
	defer unlock()
	state := r.tracker.Load(ctx, ns)
	return Status{
		Namespace: ns,
		DeviceID:  r.tracker.DeviceID(ctx),
		Clock:     state.Clock,
		Entries:   state.Sorted(),
	}
}

// Namespaces lists the namespaces known to the tracker, for background workers.
func (r *Reconciler) Namespaces(ctx context.Context) ([]domain.Namespace, error) {
	return r.tracker.Namespaces(ctx)
}

func (r *Reconciler) pending(state *SyncState, view *view) []RemoteRecord {
	var out []RemoteRecord
	for _, e := range state.Sorted() {
		if e.State != Dirty {
			continue
		}
		rr := RemoteRecord{
			ID:        e.ID,
			Version:   e.Version,
			UpdatedAt: e.UpdatedAt,
			Origin:    e.Origin,
			Deleted:   e.Deleted,
		}
		if !e.Deleted {
			event, ok := view.byID[e.ID]
			if !ok {
				continue
			}
			rr.Event = &event
		}
		out = append(out, rr)
	}
	return out
}

// moveChats points the chat messages of re-keyed events at their new ids.
func (r *Reconciler) moveChats(ctx context.Context, ns domain.Namespace, moves []Rekey) (storage.Entry, bool, error) {
	to := lo.SliceToMap(moves, func(m Rekey) (string, string) {
		return strconv.FormatInt(m.From, 10), strconv.FormatInt(m.To, 10)
	})
	chats := r.records.LoadChats(ctx, ns)
	moved := false
	for i, m := range chats {
		if id, ok := to[m.EventID]; ok {
			chats[i].EventID = id
			moved = true
		}
	}
	if !moved {
		return storage.Entry{}, false, nil
	}
	entry, err := r.records.ChatsEntry(ns, chats)
	if err != nil {
		return storage.Entry{}, false, err
	}
	return entry, true, nil
}

func (r *Reconciler) persist(ctx context.Context, ns domain.Namespace, view *view, state *SyncState, extra ...storage.Entry) error {
	eventsEntry, err := r.records.EventsEntry(ns, view.events())
	if err != nil {
		return err
	}
	stateEntry, err := r.tracker.Entry(ns, state)
	if err != nil {
		return err
	}
	return r.records.Commit(ctx, kindSync, append([]storage.Entry{eventsEntry, stateEntry}, extra...)...)
}

// highestID is the largest id held by the collection, the sync state or the remote.
func highestID(view *view, state *SyncState, records []RemoteRecord) int64 {
	ids := append(view.ids(), lo.Keys(state.Entries)...)
	ids = append(ids, lo.Map(records, func(rr RemoteRecord, _ int) int64 { return rr.ID })...)
	return lo.Max(ids)
}

// remoteWins applies last-writer-wins: later updatedAt wins, an exact tie goes
// to the lexicographically greater origin.
func remoteWins(local Entry, remote RemoteRecord) bool {
	switch {
	case remote.UpdatedAt.After(local.UpdatedAt):
		return true
	case remote.UpdatedAt.Before(local.UpdatedAt):
		return false
	default:
		return remote.Origin > local.Origin
	}
}

// view is the working copy of the events collection, keeping storage order.
type view struct {
	order []int64
	byID  map[int64]domain.Event
}

func newView(events []domain.Event) *view {
	v := &view{byID: make(map[int64]domain.Event, len(events))}
	for _, e := range events {
		if _, dup := v.byID[e.ID]; !dup {
			v.order = append(v.order, e.ID)
		}
		v.byID[e.ID] = e
	}
	return v
}

func (v *view) ids() []int64 {
	out := make([]int64, len(v.order))
	copy(out, v.order)
	return out
}

// apply writes a remote record into the view. Remote records are not refused
// for sharing a name and date with a local one, see duplicates.
func (v *view) apply(state *SyncState, rr RemoteRecord) {
	previous, had := v.byID[rr.ID]
	if rr.Deleted || rr.Event == nil {
		delete(v.byID, rr.ID)
		var snapshot *domain.Event
		if had {
			snapshot = &previous
		}
		rr.Deleted = true
		state.Accept(rr, snapshot)
		return
	}
	event := *rr.Event
	event.ID = rr.ID
	if !had {
		v.order = append(v.order, rr.ID)
	}
	v.byID[rr.ID] = event
	state.Accept(rr, nil)
}

// rekey moves a record to another id, keeping its place in storage order.
func (v *view) rekey(from, to int64) {
	for i, id := range v.order {
		if id == from {
			v.order[i] = to
		}
	}
	if event, ok := v.byID[from]; ok {
		delete(v.byID, from)
		event.ID = to
		v.byID[to] = event
	}
}

// duplicates pairs every live record that was not pulled with the pulled
// record sharing its dedup key.
func (v *view) duplicates(pulled map[int64]bool) []Duplicate {
	byKey := make(map[string]int64)
	for _, id := range v.order {
		if e, ok := v.byID[id]; ok && pulled[id] {
			if _, seen := byKey[e.DedupKey()]; !seen {
				byKey[e.DedupKey()] = id
			}
		}
	}
	var out []Duplicate
	for _, id := range v.order {
		e, ok := v.byID[id]
		if !ok || pulled[id] {
			continue
		}
		if of, hit := byKey[e.DedupKey()]; hit {
			out = append(out, Duplicate{ID: id, Of: of})
		}
	}
	return out
}

func (v *view) events() []domain.Event {
	out := make([]domain.Event, 0, len(v.byID))
	for _, id := range v.order {
		if e, ok := v.byID[id]; ok {
			out = append(out, e)
		}
	}
	return out
}
