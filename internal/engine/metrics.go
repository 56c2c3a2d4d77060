package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	opCreate = "create"
	opList   = "list"
	opEdit   = "edit"
	opDelete = "delete"
	opPrune  = "prune"
)

var (
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "officehours_operations_total",
			Help: "Engine operations by outcome",
		},
		[]string{"operation", "status"},
	)
	affected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "officehours_occurrences_affected_total",
			Help: "Occurrences created, listed, changed or removed",
		},
		[]string{"operation"},
	)
	latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "officehours_operation_duration_seconds",
			Help:    "Time spent per engine operation, including store I/O",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RegisterMetrics registers the engine collectors with reg. Call once.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(operations, affected, latency)
}

func observe(op string, started time.Time, res *Result, err *error) {
	latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
	operations.WithLabelValues(op, statusOf(*err)).Inc()
	if *err == nil {
		affected.WithLabelValues(op).Add(float64(len(res.Occurrences)))
	}
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
