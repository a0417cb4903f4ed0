package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersObserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "transfers_observed_total",
			Help:      "Incoming transfers seen on the receiving address",
		},
	)

	SettlementsConfirmed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "confirmed_total",
			Help:      "Payment/booking pairs confirmed",
		},
	)

	SettlementAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "anomalies_total",
			Help:      "Reconcilable anomalies by reason",
		},
		[]string{"reason"},
	)

	PostCommitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "post_commit_failures_total",
			Help:      "Failures after the confirm commit point, by stage",
		},
		[]string{"stage"},
	)

	AllocationExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "allocator",
			Name:      "exhausted_total",
			Help:      "Allocation attempts that ran out of amount variants",
		},
	)

	RecordsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sweeper",
			Name:      "expired_total",
			Help:      "Stale records cancelled by the sweeper, by record type",
		},
		[]string{"record"},
	)
)
