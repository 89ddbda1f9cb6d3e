package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one runner. Each runner owns
// its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	tradesDetected      *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	pollErrors          *prometheus.CounterVec
	valuationRefreshes  *prometheus.CounterVec
	valuationItems      prometheus.Gauge
	notificationSeconds prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		tradesDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horizon",
			Name:      "trades_detected_total",
			Help:      "Trades seen for the first time by a watcher.",
		}, []string{"account", "direction"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horizon",
			Name:      "notifications_total",
			Help:      "Notification attempts by outcome.",
		}, []string{"account", "direction", "outcome"}),
		pollErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horizon",
			Name:      "poll_errors_total",
			Help:      "Failed trade list polls.",
		}, []string{"account", "direction"}),
		valuationRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "horizon",
			Name:      "valuation_refreshes_total",
			Help:      "Valuation snapshot refreshes by result.",
		}, []string{"result"}),
		valuationItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "horizon",
			Name:      "valuation_items",
			Help:      "Items in the current valuation snapshot.",
		}),
		notificationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "horizon",
			Name:      "notification_duration_seconds",
			Help:      "Time from trade fetch to delivery.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
