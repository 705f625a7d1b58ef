package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Record results
const (
	RecordAccepted  = "accepted"
	RecordMalformed = "malformed"
)

// Delivery results
const (
	DeliveryOK     = "delivered"
	DeliveryFailed = "failed"
)

var (
	// Stream metrics
	StreamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wikifeed_stream_connected",
			Help: "Whether the event stream is connected (1 = connected, 0 = disconnected)",
		},
	)

	StreamReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wikifeed_stream_reconnects_total",
			Help: "Total number of reconnect attempts after a lost or failed connection",
		},
	)

	FramesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wikifeed_frames_skipped_total",
			Help: "Total number of non-message frames discarded",
		},
	)

	// Ingest metrics
	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikifeed_records_total",
			Help: "Total number of stream records by result",
		},
		[]string{"result"},
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikifeed_events_total",
			Help: "Total number of normalized events by kind",
		},
		[]string{"kind"},
	)

	// Dispatch metrics
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikifeed_deliveries_total",
			Help: "Total number of deliveries by result",
		},
		[]string{"result"},
	)

	DeliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wikifeed_delivery_duration_seconds",
			Help:    "Time spent in a single delivery in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchMatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wikifeed_dispatch_matches",
			Help:    "Number of subscriptions matched per event",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
	)

	// Registry metrics
	SubscriptionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wikifeed_subscriptions_total",
			Help: "Total number of registered subscriptions",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(StreamConnected)
	prometheus.MustRegister(StreamReconnectsTotal)
	prometheus.MustRegister(FramesSkippedTotal)
	prometheus.MustRegister(RecordsTotal)
	prometheus.MustRegister(EventsTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(DispatchMatches)
	prometheus.MustRegister(SubscriptionsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
