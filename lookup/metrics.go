package lookup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cathays",
		Subsystem: "lookup",
		Name:      "admitted_total",
		Help:      "Count of outputs persisted after admission, by kind.",
	}, []string{"kind"})

	admissionSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cathays",
		Subsystem: "lookup",
		Name:      "admission_skipped_total",
		Help:      "Count of admission notifications dropped, by reason.",
	}, []string{"reason"})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cathays",
		Subsystem: "lookup",
		Name:      "queries_total",
		Help:      "Count of lookup questions served, by query kind.",
	}, []string{"query"})
)
