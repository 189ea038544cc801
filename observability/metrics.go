package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventmaster",
		Subsystem: "storage",
		Name:      "read_failures_total",
		Help:      "Collections that could not be read and were served empty.",
	}, []string{"kind"})

	corruptRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventmaster",
		Subsystem: "storage",
		Name:      "corrupt_records_total",
		Help:      "Collections whose bytes failed to decode and were quarantined.",
	}, []string{"kind"})

	writeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventmaster",
		Subsystem: "storage",
		Name:      "write_failures_total",
		Help:      "Atomic batches that failed to commit.",
	}, []string{"kind"})

	syncConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventmaster",
		Subsystem: "sync",
		Name:      "conflicts_total",
		Help:      "Records found modified both locally and remotely.",
	})

	tombstonesPurgedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "eventmaster",
		Subsystem: "sync",
		Name:      "tombstones_purged_total",
		Help:      "Tombstones removed after their grace window.",
	})
)
