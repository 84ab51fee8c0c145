package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Inbound
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebot_updates_total",
			Help: "Inbound updates by kind",
		},
		[]string{"kind"}, // "message", "media", "callback"
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharebot_command_duration_seconds",
			Help:    "Command handler duration",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 15, 60},
		},
		[]string{"command", "status"},
	)

	// Vault
	ItemsStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharebot_items_staged_total",
			Help: "Items accepted into staging buffers",
		},
	)

	ItemsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharebot_items_rejected_total",
			Help: "Items that failed the liveness probe",
		},
	)

	BatchesCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharebot_batches_committed_total",
			Help: "Batches committed",
		},
	)

	BatchesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebot_batches_deleted_total",
			Help: "Batches removed",
		},
		[]string{"reason"}, // "owner" or "expired"
	)

	// Delivery
	ClustersDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebot_clusters_delivered_total",
			Help: "Delivery clusters by outcome",
		},
		[]string{"status"}, // "ok" or "failed"
	)

	DeliveryRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharebot_delivery_retries_total",
			Help: "Cluster send retries",
		},
	)

	// Sweeper
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sharebot_sweep_duration_seconds",
			Help:    "Expiry sweep duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	// Broadcast
	BroadcastSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebot_broadcast_sends_total",
			Help: "Broadcast copies by outcome",
		},
		[]string{"status"},
	)

	BroadcastsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sharebot_broadcasts_active",
			Help: "Broadcasts currently dispatching",
		},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharebot_events_published_total",
			Help: "Domain events forwarded to the broker",
		},
		[]string{"type", "status"},
	)
)
