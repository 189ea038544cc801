package observability

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const defaultRecentCapacity = 20

// ReadFailure is one collection that could not be read or decoded.
type ReadFailure struct {
	Namespace     string    `json:"namespace"`
	Kind          string    `json:"kind"`
	Key           string    `json:"key"`
	QuarantineKey string    `json:"quarantine_key,omitempty"`
	Reason        string    `json:"reason"`
	Corrupt       bool      `json:"corrupt"`
	At            time.Time `json:"at"`
}

// DiagnosticsStats is a point-in-time copy of the counters and recent failures.
type DiagnosticsStats struct {
	ReadFailures     uint64        `json:"read_failures"`
	CorruptRecords   uint64        `json:"corrupt_records"`
	WriteFailures    uint64        `json:"write_failures"`
	SyncConflicts    uint64        `json:"sync_conflicts"`
	TombstonesPurged uint64        `json:"tombstones_purged"`
	RecentFailures   []ReadFailure `json:"recent_failures"`
}

// Diagnostics records failures the store swallows so they stay observable.
// Every record is logged, counted and mirrored to Prometheus.
type Diagnostics struct {
	log      *slog.Logger
	mu       sync.RWMutex
	recent   []ReadFailure
	capacity int

	readFailures     uint64
	corruptRecords   uint64
	writeFailures    uint64
	syncConflicts    uint64
	tombstonesPurged uint64
}

func NewDiagnostics(log *slog.Logger, capacity int) *Diagnostics {
	if capacity <= 0 {
		capacity = defaultRecentCapacity
	}
	return &Diagnostics{
		log:      log,
		capacity: capacity,
		recent:   make([]ReadFailure, 0, capacity),
	}
}

// RecordReadFailure keeps the newest failures first, bounded by capacity.
func (d *Diagnostics) RecordReadFailure(f ReadFailure) {
	if f.At.IsZero() {
		f.At = time.Now().UTC()
	}
	atomic.AddUint64(&d.readFailures, 1)
	if f.Corrupt {
		atomic.AddUint64(&d.corruptRecords, 1)
		corruptRecordsTotal.WithLabelValues(f.Kind).Inc()
	}
	readFailuresTotal.WithLabelValues(f.Kind).Inc()

	d.log.Warn("Collection unreadable, serving it empty",
		"namespace", f.Namespace,
		"kind", f.Kind,
		"key", f.Key,
		"corrupt", f.Corrupt,
		"quarantine_key", f.QuarantineKey,
		"reason", f.Reason,
	)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent = append([]ReadFailure{f}, d.recent...)
	if len(d.recent) > d.capacity {
		d.recent = d.recent[:d.capacity]
	}
}

func (d *Diagnostics) IncrWriteFailures(kind string) {
	atomic.AddUint64(&d.writeFailures, 1)
	writeFailuresTotal.WithLabelValues(kind).Inc()
}

func (d *Diagnostics) AddSyncConflicts(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&d.syncConflicts, uint64(n))
	syncConflictsTotal.Add(float64(n))
}

func (d *Diagnostics) AddTombstonesPurged(n int) {
	if n <= 0 {
		return
	}
	atomic.AddUint64(&d.tombstonesPurged, uint64(n))
	tombstonesPurgedTotal.Add(float64(n))
}

func (d *Diagnostics) GetLatest() DiagnosticsStats {
	d.mu.RLock()
	recent := make([]ReadFailure, len(d.recent))
	copy(recent, d.recent)
	d.mu.RUnlock()

	return DiagnosticsStats{
		ReadFailures:     atomic.LoadUint64(&d.readFailures),
		CorruptRecords:   atomic.LoadUint64(&d.corruptRecords),
		WriteFailures:    atomic.LoadUint64(&d.writeFailures),
		SyncConflicts:    atomic.LoadUint64(&d.syncConflicts),
		TombstonesPurged: atomic.LoadUint64(&d.tombstonesPurged),
		RecentFailures:   recent,
	}
}
