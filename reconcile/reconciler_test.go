package reconcile_test

import (
	"context"
	stderrors "errors"
	"eventmaster/auth"
	"eventmaster/domain"
	"eventmaster/errors"
	"eventmaster/mocks"
	"eventmaster/observability"
	"eventmaster/reconcile"
	"eventmaster/repositories"
	"eventmaster/runtime"
	"eventmaster/services"
	"eventmaster/storage"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// device is one local replica: its own store, clock and device id.
type device struct {
	id         string
	clock      time.Time
	store      storage.Persistence
	records    *repositories.RecordStore
	diag       *observability.Diagnostics
	events     *services.EventService
	reconciler *reconcile.Reconciler
}

func newDevice(t *testing.T, id string, remote reconcile.Remote, opts ...reconcile.Option) *device {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelError)
	cfg := storage.InMemoryBadgerConfig()
	cfg.Logger = log
	store, err := storage.OpenBadger(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d := &device{id: id, clock: t0, store: store}
	now := func() time.Time { return d.clock }
	d.diag = observability.NewDiagnostics(log, 10)
	d.records = repositories.NewRecordStore(store, d.diag, log)
	tracker := reconcile.NewTracker(store, d.records, d.diag, log, id)
	resolver := auth.NewResolver(auth.ContextSession{}, log)
	locks := runtime.NewLocks()
	sequence := repositories.NewSequence(store, log)
	d.events = services.NewEventService(d.records, sequence, tracker,
		resolver, locks, log, services.WithClock(now), services.WithLocation(time.UTC))
	d.reconciler = reconcile.NewReconciler(d.records, sequence, tracker, remote, resolver, locks, d.diag, log,
		append([]reconcile.Option{reconcile.WithClock(now)}, opts...)...)
	return d
}

func u1() context.Context {
	return auth.WithUser(context.Background(), auth.User{ID: "u1"})
}

func names(events []domain.Event) []string {
	return lo.Map(events, func(e domain.Event, _ int) string { return e.Nombre + "@" + e.Ubicacion })
}

type ReconcilerSuite struct {
	suite.Suite
	remote *reconcile.MemoryRemote
	a, b   *device
}

func TestReconcilerSuite(t *testing.T) {
	suite.Run(t, new(ReconcilerSuite))
}

func (s *ReconcilerSuite) SetupTest() {
	s.remote = reconcile.NewMemoryRemote()
	s.a = newDevice(s.T(), "device-a", s.remote)
	s.b = newDevice(s.T(), "device-b", s.remote)
}

func (s *ReconcilerSuite) sync(d *device) reconcile.Report {
	report, err := d.reconciler.Reconcile(u1())
	s.Require().NoError(err)
	return report
}

// shared creates Boda on a and lets b pick it up.
func (s *ReconcilerSuite) shared() domain.Event {
	event, err := s.a.events.Create(u1(), domain.EventDraft{
		Nombre: "Boda", Tipo: "Boda", Fecha: "2030-01-01", Hora: "18:00", Ubicacion: "Quito",
	})
	s.Require().NoError(err)
	s.Require().Equal(1, s.sync(s.a).Pushed)
	s.Require().Equal(1, s.sync(s.b).Pulled)
	return event
}

func (s *ReconcilerSuite) edit(d *device, at time.Time, id int64, ubicacion string) {
	d.clock = at
	_, err := d.events.Update(u1(), id, domain.EventPatch{Ubicacion: lo.ToPtr(ubicacion)})
	s.Require().NoError(err)
}

func (s *ReconcilerSuite) TestRecordsReachTheOtherDevice() {
	event := s.shared()
	s.Equal([]domain.Event{event}, s.b.records.LoadEvents(u1(), "u1"))

	s.edit(s.b, t0.Add(time.Minute), event.ID, "Cuenca")
	s.Equal(1, s.sync(s.b).Pushed)

	report := s.sync(s.a)
	s.Equal(1, report.Pulled)
	s.Zero(report.Conflicts)
	s.Equal([]string{"Boda@Cuenca"}, names(s.a.records.LoadEvents(u1(), "u1")))

	// Nothing changed anywhere: a second pass is a no-op.
	report = s.sync(s.a)
	s.Zero(report.Pulled)
	s.Zero(report.Pushed)
}

func (s *ReconcilerSuite) TestLastWriterWinsLocally() {
	event := s.shared()
	s.edit(s.a, t0.Add(time.Minute), event.ID, "Cuenca")
	s.sync(s.a)
	s.edit(s.b, t0.Add(2*time.Minute), event.ID, "Loja")

	report := s.sync(s.b)
	s.Equal(1, report.Conflicts)
	s.Equal(1, report.LocalWins)
	s.Equal(1, report.Pushed)
	s.Equal([]string{"Boda@Loja"}, names(s.b.records.LoadEvents(u1(), "u1")))

	s.sync(s.a)
	s.Equal([]string{"Boda@Loja"}, names(s.a.records.LoadEvents(u1(), "u1")))
	s.Equal(uint64(1), s.b.diag.GetLatest().SyncConflicts)
}

func (s *ReconcilerSuite) TestLastWriterWinsRemotely() {
	event := s.shared()
	s.edit(s.a, t0.Add(2*time.Minute), event.ID, "Cuenca")
	s.sync(s.a)
	s.edit(s.b, t0.Add(time.Minute), event.ID, "Loja")

	report := s.sync(s.b)
	s.Equal(1, report.RemoteWins)
	s.Zero(report.Pushed)
	s.Equal([]string{"Boda@Cuenca"}, names(s.b.records.LoadEvents(u1(), "u1")))

	status := s.b.reconciler.Status(u1())
	s.Require().Len(status.Entries, 1)
	s.Equal(reconcile.Clean, status.Entries[0].State)
	s.Equal("device-b", status.DeviceID)
}

func (s *ReconcilerSuite) TestEqualTimestampsGoToTheGreaterOrigin() {
	event := s.shared()
	at := t0.Add(time.Minute)
	s.edit(s.b, at, event.ID, "Loja")
	s.sync(s.b)
	s.edit(s.a, at, event.ID, "Cuenca")

	// "u1/device-b" > "u1/device-a"
	report := s.sync(s.a)
	s.Equal(1, report.RemoteWins)
	s.Equal([]string{"Boda@Loja"}, names(s.a.records.LoadEvents(u1(), "u1")))
}

func (s *ReconcilerSuite) TestManualPolicyStopsAtConflicts() {
	event := s.shared()
	s.b.reconciler = s.rebuild(s.b, reconcile.WithPolicy(reconcile.PolicyManual))

	s.edit(s.a, t0.Add(time.Minute), event.ID, "Cuenca")
	s.sync(s.a)
	s.edit(s.b, t0.Add(2*time.Minute), event.ID, "Loja")

	report, err := s.b.reconciler.Reconcile(u1())
	s.Require().ErrorIs(err, errors.ErrConflictUnresolved)
	var conflict *errors.ConflictError
	s.Require().True(stderrors.As(err, &conflict))
	s.Equal(event.ID, conflict.ID)
	s.Equal([]int64{event.ID}, report.Unresolved)
	s.Zero(report.Pushed)
	s.Equal([]string{"Boda@Loja"}, names(s.b.records.LoadEvents(u1(), "u1")))

	// A local edit does not clear the conflict.
	s.edit(s.b, t0.Add(3*time.Minute), event.ID, "Ambato")
	entry := s.b.reconciler.Status(u1()).Entries[0]
	s.Equal(reconcile.Conflicted, entry.State)

	resolved, err := s.b.reconciler.Resolve(u1(), event.ID, false)
	s.Require().NoError(err)
	s.Equal(reconcile.Clean, resolved.State)
	s.Equal([]string{"Boda@Cuenca"}, names(s.b.records.LoadEvents(u1(), "u1")))

	_, err = s.b.reconciler.Resolve(u1(), event.ID, false)
	s.ErrorIs(err, errors.ErrNotFound)
}

func (s *ReconcilerSuite) TestManualResolutionKeepingLocal() {
	event := s.shared()
	s.b.reconciler = s.rebuild(s.b, reconcile.WithPolicy(reconcile.PolicyManual))
	s.edit(s.a, t0.Add(time.Minute), event.ID, "Cuenca")
	s.sync(s.a)
	s.edit(s.b, t0.Add(2*time.Minute), event.ID, "Loja")
	_, err := s.b.reconciler.Reconcile(u1())
	s.Require().Error(err)

	resolved, err := s.b.reconciler.Resolve(u1(), event.ID, true)
	s.Require().NoError(err)
	s.Equal(reconcile.Dirty, resolved.State)

	s.Equal(1, s.sync(s.b).Pushed)
	s.sync(s.a)
	s.Equal([]string{"Boda@Loja"}, names(s.a.records.LoadEvents(u1(), "u1")))
}

func (s *ReconcilerSuite) TestDeletesPropagateAndTombstonesArePurged() {
	event := s.shared()
	s.a.clock = t0.Add(time.Hour)
	s.Require().NoError(s.a.events.Delete(u1(), event.ID))
	s.Equal(1, s.sync(s.a).Pushed)

	s.Equal(1, s.sync(s.b).Pulled)
	s.Empty(s.b.records.LoadEvents(u1(), "u1"))

	// The remote delete keeps the last content on b, so it can still be brought back.
	restored, err := s.b.events.RestoreDeleted(u1(), event.ID)
	s.Require().NoError(err)
	s.Equal(event, restored)

	deletedAt := t0.Add(time.Hour)
	purged, err := s.a.reconciler.Purge(u1(), deletedAt.Add(reconcile.DefaultTombstoneGrace-time.Second))
	s.Require().NoError(err)
	s.Zero(purged)
	purged, err = s.a.reconciler.Purge(u1(), deletedAt.Add(reconcile.DefaultTombstoneGrace))
	s.Require().NoError(err)
	s.Equal(1, purged)
	s.Empty(s.a.reconciler.Status(u1()).Entries)
	s.Equal(uint64(1), s.a.diag.GetLatest().TombstonesPurged)
}

func (s *ReconcilerSuite) TestDirtyTombstonesAreNotPurged() {
	event, err := s.a.events.Create(u1(), domain.EventDraft{
		Nombre: "Boda", Tipo: "Boda", Fecha: "2030-01-01", Hora: "18:00",
	})
	s.Require().NoError(err)
	s.Require().NoError(s.a.events.Delete(u1(), event.ID))

	purged, err := s.a.reconciler.Purge(u1(), t0.Add(10*reconcile.DefaultTombstoneGrace))
	s.Require().NoError(err)
	s.Zero(purged)
}

func (s *ReconcilerSuite) TestUntrackedRecordsAreAdopted() {
	s.Require().NoError(s.a.records.SaveEvents(u1(), "u1", []domain.Event{{ID: 4, Nombre: "Legado", Fecha: "2029-01-01"}}))

	report := s.sync(s.a)
	s.Equal(1, report.Adopted)
	s.Equal(1, report.Pushed)

	s.sync(s.b)
	s.Equal([]string{"Legado@"}, names(s.b.records.LoadEvents(u1(), "u1")))

	namespaces, err := s.b.reconciler.Namespaces(context.Background())
	s.Require().NoError(err)
	s.Equal([]domain.Namespace{"u1"}, namespaces)
}

func (s *ReconcilerSuite) create(d *device, nombre string) domain.Event {
	event, err := d.events.Create(u1(), domain.EventDraft{
		Nombre: nombre, Fecha: "2030-01-01", Hora: "18:00",
	})
	s.Require().NoError(err)
	return event
}

func (s *ReconcilerSuite) TestOfflineCreationsOnBothDevicesSurvive() {
	cena := s.create(s.a, "Cena")
	comida := s.create(s.b, "Comida")
	s.Require().Equal(cena.ID, comida.ID)

	s.sync(s.a)
	report := s.sync(s.b)
	s.Require().Len(report.Rekeyed, 1)
	moved := report.Rekeyed[0]
	s.Equal(comida.ID, moved.From)
	s.Greater(moved.To, cena.ID)
	s.Equal(1, report.Pulled)
	s.Equal(1, report.Pushed)
	s.Zero(report.Conflicts)

	s.sync(s.a)
	s.ElementsMatch([]string{"Cena@", "Comida@"}, names(s.a.records.LoadEvents(u1(), "u1")))
	s.ElementsMatch([]string{"Cena@", "Comida@"}, names(s.b.records.LoadEvents(u1(), "u1")))

	got, err := s.a.events.Get(u1(), moved.To)
	s.Require().NoError(err)
	s.Equal("Comida", got.Nombre)

	// The counter moved past the new id.
	next := s.create(s.b, "Bautizo")
	s.Greater(next.ID, moved.To)
}

func (s *ReconcilerSuite) TestRekeyedEventsKeepTheirChatMessages() {
	s.create(s.a, "Cena")
	comida := s.create(s.b, "Comida")
	chats := services.NewChatService(s.b.records, auth.NewResolver(auth.ContextSession{}, logs.GetLoggerFromLevel(slog.LevelError)),
		runtime.NewLocks(), logs.GetLoggerFromLevel(slog.LevelError))
	_, err := chats.AppendChatMessage(u1(), fmt.Sprint(comida.ID), domain.ChatDraft{Text: "llevo postre"})
	s.Require().NoError(err)

	s.sync(s.a)
	report := s.sync(s.b)
	s.Require().Len(report.Rekeyed, 1)

	messages := s.b.records.LoadChats(u1(), "u1")
	s.Require().Len(messages, 1)
	s.Equal(fmt.Sprint(report.Rekeyed[0].To), messages[0].EventID)
}

func (s *ReconcilerSuite) TestPulledDuplicatesAreReported() {
	s.create(s.a, "Uno")
	boda := s.create(s.a, "Boda")
	s.sync(s.a)
	local := s.create(s.b, "boda ")

	report := s.sync(s.b)
	s.Require().Len(report.Rekeyed, 1)
	s.Equal(local.ID, report.Rekeyed[0].From)
	moved := report.Rekeyed[0].To
	s.Equal([]reconcile.Duplicate{{ID: moved, Of: boda.ID}}, report.Duplicates)
	s.Len(s.b.records.LoadEvents(u1(), "u1"), 3)

	report = s.sync(s.a)
	s.Equal([]reconcile.Duplicate{{ID: boda.ID, Of: moved}}, report.Duplicates)
	s.Len(s.a.records.LoadEvents(u1(), "u1"), 3)

	// Reported once: nothing new was pulled.
	s.Empty(s.sync(s.b).Duplicates)
}

func (s *ReconcilerSuite) TestPurgedTombstonesDoNotComeBack() {
	event := s.shared()
	s.a.clock = t0.Add(time.Hour)
	s.Require().NoError(s.a.events.Delete(u1(), event.ID))
	s.sync(s.a)

	purged, err := s.a.reconciler.Purge(u1(), t0.Add(800*time.Hour))
	s.Require().NoError(err)
	s.Equal(1, purged)
	s.Empty(s.a.reconciler.Status(u1()).Entries)

	report := s.sync(s.a)
	s.Zero(report.Pulled)
	s.Empty(s.a.reconciler.Status(u1()).Entries)

	records, err := s.remote.Pull(u1(), "u1")
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *ReconcilerSuite) TestExpiredTombstonesAreNotPulled() {
	event := s.shared()
	s.a.clock = t0.Add(time.Hour)
	s.Require().NoError(s.a.events.Delete(u1(), event.ID))
	s.sync(s.a)

	c := newDevice(s.T(), "device-c", s.remote)
	c.clock = t0.Add(time.Hour + reconcile.DefaultTombstoneGrace)
	report := s.sync(c)
	s.Zero(report.Pulled)
	s.Empty(c.reconciler.Status(u1()).Entries)

	// Still inside the window on b.
	s.Equal(1, s.sync(s.b).Pulled)
}

// rebuild replaces d's reconciler with one using other options.
func (s *ReconcilerSuite) rebuild(d *device, opts ...reconcile.Option) *reconcile.Reconciler {
	return s.rebuildWith(d, s.remote, opts...)
}

func (s *ReconcilerSuite) rebuildWith(d *device, remote reconcile.Remote, opts ...reconcile.Option) *reconcile.Reconciler {
	log := logs.GetLoggerFromLevel(slog.LevelError)
	tracker := reconcile.NewTracker(d.store, d.records, d.diag, log, d.id)
	now := func() time.Time { return d.clock }
	return reconcile.NewReconciler(d.records, repositories.NewSequence(d.store, log), tracker, remote,
		auth.NewResolver(auth.ContextSession{}, log),
		runtime.NewLocks(), d.diag, log, append([]reconcile.Option{reconcile.WithClock(now)}, opts...)...)
}

// laggingRemote answers pulls with records read earlier, as a device racing
// another one sees the remote.
type laggingRemote struct {
	reconcile.Remote
	pulled []reconcile.RemoteRecord
}

func (l laggingRemote) Pull(context.Context, domain.Namespace) ([]reconcile.RemoteRecord, error) {
	return l.pulled, nil
}

func (s *ReconcilerSuite) TestRacingPushDoesNotRollTheRemoteBack() {
	event := s.shared()
	before, err := s.remote.Pull(u1(), "u1")
	s.Require().NoError(err)

	s.edit(s.b, t0.Add(time.Minute), event.ID, "Loja")
	s.sync(s.b)

	// a pulled before b pushed, both edits carry the same version.
	s.edit(s.a, t0.Add(2*time.Minute), event.ID, "Cuenca")
	report, err := s.rebuildWith(s.a, laggingRemote{Remote: s.remote, pulled: before}).Reconcile(u1())
	s.Require().NoError(err)
	s.Zero(report.Pushed)
	s.Equal(reconcile.Dirty, s.a.reconciler.Status(u1()).Entries[0].State)

	records, err := s.remote.Pull(u1(), "u1")
	s.Require().NoError(err)
	s.Equal("Loja", records[0].Event.Ubicacion)

	// The next pass meets b's edit and settles it by last writer wins.
	report = s.sync(s.a)
	s.Equal(1, report.LocalWins)
	s.Equal(1, report.Pushed)
	s.sync(s.b)
	s.Equal([]string{"Boda@Cuenca"}, names(s.b.records.LoadEvents(u1(), "u1")))
	s.Equal([]string{"Boda@Cuenca"}, names(s.a.records.LoadEvents(u1(), "u1")))
}

func TestReconciler_PushFailureKeepsRecordsDirty(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	d := newDevice(t, "device-a", remote)
	event, err := d.events.Create(u1(), domain.EventDraft{Nombre: "Boda", Fecha: "2030-01-01", Hora: "18:00"})
	req.NoError(err)

	remote.EXPECT().Pull(gomock.Any(), domain.Namespace("u1")).Return(nil, nil)
	remote.EXPECT().Push(gomock.Any(), domain.Namespace("u1"), gomock.Len(1)).Return(nil, fmt.Errorf("offline"))

	report, err := d.reconciler.Reconcile(u1())
	req.ErrorContains(err, "offline")
	req.Zero(report.Pushed)
	req.Equal(reconcile.Dirty, d.reconciler.Status(u1()).Entries[0].State)
	req.Equal([]domain.Event{event}, d.records.LoadEvents(u1(), "u1"))
}

func TestReconciler_PullFailureChangesNothing(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	remote := mocks.NewMockRemote(ctrl)
	d := newDevice(t, "device-a", remote)

	remote.EXPECT().Pull(gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("timeout"))

	_, err := d.reconciler.Reconcile(u1())
	req.ErrorContains(err, "timeout")
	req.Empty(d.reconciler.Status(u1()).Entries)
}

func TestReconciler_WithoutRemote(t *testing.T) {
	d := newDevice(t, "device-a", nil)
	_, err := d.reconciler.Reconcile(u1())
	require.ErrorIs(t, err, errors.ErrNoRemote)
}
