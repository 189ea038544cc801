package reconcile

import (
	"context"
	"encoding/json"
	"eventmaster/domain"
	"eventmaster/errors"
	"eventmaster/observability"
	"eventmaster/repositories"
	"eventmaster/storage"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	stateSchemaVersion = 1
	deviceIDKey        = "device_id"
	kindSync           = "sync"
)

// Tracker loads and encodes the per-namespace SyncState.
type Tracker struct {
	store      storage.Persistence
	records    *repositories.RecordStore
	diag       *observability.Diagnostics
	log        *slog.Logger
	deviceOnce sync.Once
	deviceID   string
}

// NewTracker uses deviceID to qualify origins. An empty deviceID is replaced
// by one generated once and persisted in the store.
func NewTracker(store storage.Persistence, records *repositories.RecordStore,
	diag *observability.Diagnostics, log *slog.Logger, deviceID string) *Tracker {
	return &Tracker{store: store, records: records, diag: diag, log: log, deviceID: deviceID}
}

// Load never fails: a missing state is fresh, an unreadable one is reported
// and quarantined like any other collection.
func (t *Tracker) Load(ctx context.Context, ns domain.Namespace) *SyncState {
	key := repositories.SyncKey(ns)
	raw, ok, err := t.store.Read(ctx, key)
	if err != nil {
		t.diag.RecordReadFailure(observability.ReadFailure{
			Namespace: ns.String(),
			Kind:      kindSync,
			Key:       key,
			Reason:    fmt.Errorf("%w: %w", errors.ErrStorageRead, err).Error(),
		})
		return NewSyncState()
	}
	if !ok {
		return NewSyncState()
	}
	state := NewSyncState()
	if err = json.Unmarshal(raw, state); err == nil && state.SchemaVersion > stateSchemaVersion {
		err = fmt.Errorf("unsupported schema version %d", state.SchemaVersion)
	}
	if err != nil {
		t.diag.RecordReadFailure(observability.ReadFailure{
			Namespace:     ns.String(),
			Kind:          kindSync,
			Key:           key,
			QuarantineKey: t.records.Quarantine(ctx, key, raw),
			Reason:        err.Error(),
			Corrupt:       true,
		})
		return NewSyncState()
	}
	if state.Entries == nil {
		state.Entries = make(map[int64]*Entry)
	}
	return state
}

func (t *Tracker) Entry(ns domain.Namespace, state *SyncState) (storage.Entry, error) {
	state.SchemaVersion = stateSchemaVersion
	raw, err := json.Marshal(state)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("%w: encode sync state: %w", errors.ErrStorageWrite, err)
	}
	return storage.Put(repositories.SyncKey(ns), raw), nil
}

// Origin identifies this device within ns. It breaks last-writer-wins ties.
func (t *Tracker) Origin(ctx context.Context, ns domain.Namespace) string {
	return ns.String() + "/" + t.DeviceID(ctx)
}

func (t *Tracker) DeviceID(ctx context.Context) string {
	t.deviceOnce.Do(func() {
		if t.deviceID != "" {
			return
		}
		raw, ok, err := t.store.Read(ctx, deviceIDKey)
		if err == nil && ok && len(raw) > 0 {
			t.deviceID = string(raw)
			return
		}
		t.deviceID = uuid.NewString()
		if err = t.store.Write(ctx, storage.Put(deviceIDKey, []byte(t.deviceID))); err != nil {
			t.log.Warn("Device id not persisted, origin changes on next run", "error", err)
		}
	})
	return t.deviceID
}

// Namespaces lists every namespace with a persisted sync state.
func (t *Tracker) Namespaces(ctx context.Context) ([]domain.Namespace, error) {
	keys, err := t.store.Keys(ctx, repositories.SyncPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Namespace, 0, len(keys))
	for _, k := range keys {
		if strings.Contains(k, ".corrupt.") {
			continue
		}
		out = append(out, domain.Namespace(strings.TrimPrefix(k, repositories.SyncPrefix)))
	}
	return out, nil
}
