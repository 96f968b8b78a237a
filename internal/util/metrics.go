package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Total number of committed stock movements",
	}, []string{"kind"})

	TransfersFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_failed_total",
		Help: "Total number of rejected stock movements",
	}, []string{"reason"})

	TransferLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_transfer_latency_seconds",
		Help:    "Latency of transfer transactions",
		Buckets: prometheus.DefBuckets,
	})

	RequestsDecidedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transfer_requests_decided_total",
		Help: "Total number of transfer requests by final status",
	}, []string{"status"})

	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "customer_orders_created_total",
		Help: "Total number of customer orders created",
	}, []string{"platform"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "customer_order_transitions_total",
		Help: "Total number of order lifecycle transitions",
	}, []string{"transition", "result"})

	ImportLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "import_lines_total",
		Help: "Total number of POS lines processed by outcome",
	}, []string{"outcome"})

	ExternalCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "external_call_latency_seconds",
		Help:    "Latency of courier and POS calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "op", "result"})

	EventsPublishFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_publish_failed_total",
		Help: "Total number of events that could not be written to Kafka",
	})

	ProjectionUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_projection_updates_total",
		Help: "Total number of balance read-model updates",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
