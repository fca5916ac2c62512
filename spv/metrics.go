package spv

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enrichmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cathays",
		Subsystem: "spv",
		Name:      "enrichments_total",
		Help:      "Count of enrichment attempts by resulting state.",
	}, []string{"state"})

	sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cathays",
		Subsystem: "spv",
		Name:      "sweeps_total",
		Help:      "Count of completed pending-reconciliation sweeps.",
	})
)
