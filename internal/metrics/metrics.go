package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engigen_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "engigen_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
		},
		[]string{"method", "route"},
	)

	// Conversation metrics
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engigen_sessions_created_total",
			Help: "Total chat sessions created",
		},
		[]string{"domain"},
	)

	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engigen_messages_sent_total",
			Help: "Total user messages sent to the model",
		},
		[]string{"domain"},
	)

	StreamFragments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engigen_stream_fragments_total",
			Help: "Total reply fragments received from the model",
		},
	)

	StreamErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engigen_stream_errors_total",
			Help: "Total failed reply streams",
		},
	)

	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engigen_stream_duration_seconds",
			Help:    "Time from send to the end of the reply stream",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	LiveConnectors = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engigen_live_connectors",
			Help: "Model connectors cached for the running process",
		},
	)

	// Persistence metrics
	PersistenceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engigen_persistence_failures_total",
			Help: "Failed loads and saves of the session state",
		},
		[]string{"op"},
	)

	PersistenceLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engigen_persistence_save_seconds",
			Help:    "Session state save latency",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
	)
)
