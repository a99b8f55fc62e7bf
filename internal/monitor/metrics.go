package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	commandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ems_commands_total",
		Help: "Total commands executed, by kind and outcome.",
	}, []string{"kind", "outcome"})

	activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ems_active_sessions",
		Help: "Number of currently active session server slots.",
	})
)

func init() {
	prometheus.MustRegister(commandsTotal, activeSessions)
}

func observeCommand(kind, outcome string) {
	commandsTotal.WithLabelValues(kind, outcome).Inc()
}

// SetActiveSessions reports the session server's current slot
// occupancy for the ems_active_sessions gauge.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

func metricsHandler() http.Handler {
	return promhttp.Handler()
}
