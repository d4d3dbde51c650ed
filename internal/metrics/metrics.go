// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "sessions_created_total",
		Help:      "Attendance sessions created by teachers.",
	})

	SessionsEnded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "sessions_ended_total",
		Help:      "Sessions ended manually.",
	})

	// ScanOutcomes is labelled by the outcome name, e.g. "recorded" or "session_expired".
	ScanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "scan_outcomes_total",
		Help:      "Scan attempts by terminal outcome.",
	}, []string{"outcome"})

	AuditWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "scan_audit_written_total",
		Help:      "Scan audit rows handled by the worker, by result.",
	}, []string{"result"})
)
