package surge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/albertbausili/surge/pkg/exchange"
)

var (
	connectionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "surge_connections_opened_total",
			Help: "Total number of connections opened",
		},
	)

	connectionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "surge_connections_closed_total",
			Help: "Total number of connections closed",
		},
	)

	connectionTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "surge_connection_timeouts_total",
			Help: "Total number of connection timeouts",
		},
	)

	fatalErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "surge_fatal_errors_total",
			Help: "Total number of fatal connection errors",
		},
		[]string{"kind"},
	)

	connectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "surge_connections_active",
			Help: "Current number of live connections",
		},
	)
)

// MetricsListener exports connection lifecycle events as Prometheus metrics.
type MetricsListener struct{}

func (MetricsListener) ConnectionOpen(*exchange.Context) {
	connectionsOpened.Inc()
	connectionsActive.Inc()
}

func (MetricsListener) ConnectionClosed(*exchange.Context) {
	connectionsClosed.Inc()
	connectionsActive.Dec()
}

func (MetricsListener) ConnectionTimeout(*exchange.Context) {
	connectionTimeouts.Inc()
}

func (MetricsListener) FatalIOError(error, *exchange.Context) {
	fatalErrors.WithLabelValues("io").Inc()
}

func (MetricsListener) FatalProtocolError(error, *exchange.Context) {
	fatalErrors.WithLabelValues("protocol").Inc()
}
