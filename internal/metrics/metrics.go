package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broom_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broom_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broom_messages_appended_total",
			Help: "Total messages appended",
		},
		[]string{"kind"},
	)

	ActiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broom_realtime_subscriptions",
			Help: "Open realtime room subscriptions",
		},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broom_ws_clients",
			Help: "Connected WebSocket clients",
		},
	)

	// Payment metrics
	PaymentsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broom_payments_settled_total",
			Help: "Payment handshakes by outcome",
		},
		[]string{"outcome"}, // completed, cancelled, failed, timeout, rejected
	)

	PaymentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broom_payment_duration_seconds",
			Help:    "Time from payment request to settlement",
			Buckets: []float64{.01, .1, .5, 1, 5, 15, 30, 60},
		},
	)

	// Publish failures after a committed insert
	PublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broom_realtime_publish_failures_total",
			Help: "Insert events that could not be broadcast",
		},
	)
)
