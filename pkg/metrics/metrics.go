package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CopyDecisions tracks copy handler outcomes
	CopyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipseal_copy_decisions_total",
			Help: "Total number of copy decisions",
		},
		[]string{"action", "reason"},
	)

	// PasteDecisions tracks paste handler outcomes
	PasteDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipseal_paste_decisions_total",
			Help: "Total number of paste decisions",
		},
		[]string{"action", "reason"},
	)

	// BindingsTotal tracks bindings established per chain
	BindingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipseal_bindings_total",
			Help: "Total number of address bindings",
		},
		[]string{"chain"},
	)

	// TamperWarnings tracks warnings raised by the integrity monitor
	TamperWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipseal_tamper_warnings_total",
			Help: "Total number of tamper warnings",
		},
		[]string{"source", "reason"},
	)

	// ChannelDegraded counts binds that fell back to memory only
	ChannelDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipseal_channel_degraded_total",
			Help: "Total number of binds kept in memory only",
		},
	)

	// WatchedTargets tracks targets under mutation watch
	WatchedTargets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clipseal_watched_targets",
			Help: "Number of targets under mutation watch",
		},
	)

	// PollLatency tracks clipboard poll duration
	PollLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clipseal_poll_latency_seconds",
			Help:    "Clipboard poll latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
