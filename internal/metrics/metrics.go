// Package metrics registers the Prometheus collectors used across the bot.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the bot.
type Metrics struct {
	CommandsHandled    *prometheus.CounterVec
	QRGenerated        *prometheus.CounterVec
	BroadcastDelivered *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			CommandsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_handled_total",
				Help:      "Total chat commands handled, by command.",
			}, []string{"command"}),
			QRGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "qr_generated_total",
				Help:      "Total QR generation attempts by outcome.",
			}, []string{"outcome"}),
			BroadcastDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "broadcast_messages_total",
				Help:      "Total broadcast deliveries by outcome.",
			}, []string{"outcome"}),
		}

		prometheus.MustRegister(
			metricsInstance.CommandsHandled,
			metricsInstance.QRGenerated,
			metricsInstance.BroadcastDelivered,
		)
	})
	return metricsInstance
}
