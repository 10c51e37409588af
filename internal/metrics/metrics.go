package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the Prometheus collectors shared by the services.
type Metrics struct {
	registry *prometheus.Registry

	BrokerPublished       *prometheus.CounterVec
	BrokerConsumed        *prometheus.CounterVec
	Transitions           *prometheus.CounterVec
	Compensations         *prometheus.CounterVec
	OrphanedOrders        prometheus.Counter
	ReconciledOrders      *prometheus.CounterVec
	OutboxRelayed         *prometheus.CounterVec
	EscrowRequestDuration *prometheus.HistogramVec
	NotificationsSent     *prometheus.CounterVec
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BrokerPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobber_broker_published_total",
				Help: "Messages published to the broker",
			},
			[]string{"exchange", "outcome"},
		),
		BrokerConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobber_broker_consumed_total",
				Help: "Messages consumed from the broker by settlement",
			},
			[]string{"queue", "outcome"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobber_order_transitions_total",
				Help: "Order state transitions attempted",
			},
			[]string{"transition", "outcome"},
		),
		Compensations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobber_compensations_total",
				Help: "Order creation compensations",
			},
			[]string{"outcome"},
		),
		OrphanedOrders: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "jobber_orphaned_orders_total",
				Help: "Orders left behind after a failed compensation",
			},
		),
		ReconciledOrders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobber_reconciled_orders_total",
				Help: "Orders examined by the reconciliation sweep",
			},
			[]string{"outcome"},
		),
		OutboxRelayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobber_outbox_relayed_total",
				Help: "Outbox messages published by the relay",
			},
			[]string{"outcome"},
		),
		EscrowRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobber_escrow_request_duration_seconds",
				Help:    "Duration of escrow gateway requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		NotificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobber_notifications_total",
				Help: "Notifications and emails produced",
			},
			[]string{"channel"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BrokerPublished,
		m.BrokerConsumed,
		m.Transitions,
		m.Compensations,
		m.OrphanedOrders,
		m.ReconciledOrders,
		m.OutboxRelayed,
		m.EscrowRequestDuration,
		m.NotificationsSent,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
