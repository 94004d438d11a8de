package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsBookedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_booked_total",
		Help: "Total number of sessions booked",
	})

	SessionsScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_scheduled_total",
		Help: "Total number of sessions confirmed paid and scheduled",
	})

	SessionsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_completed_total",
		Help: "Total number of sessions completed",
	})

	SessionsCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_cancelled_total",
		Help: "Total number of sessions cancelled",
	}, []string{"refund_tier"})

	SessionsNoShowTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_no_show_total",
		Help: "Total number of sessions marked no-show",
	})

	RefundsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_issued_total",
		Help: "Total number of gateway refunds confirmed",
	})

	RefundedCentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunded_cents_total",
		Help: "Total cents refunded through the gateway",
	})

	PayoutsRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_requested_total",
		Help: "Total number of payout requests",
	})

	PayoutsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_completed_total",
		Help: "Total number of payouts transferred",
	})

	PayoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_failed_total",
		Help: "Total number of failed payout requests",
	}, []string{"reason"})

	ReconciliationPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconciliation_pending",
		Help: "Reconciliation records confirmed by the gateway but not yet applied locally",
	})

	ReconciliationAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_applied_total",
		Help: "Total number of reconciliation records applied by the background reconciler",
	})

	GatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_calls_total",
		Help: "Total number of payment gateway calls",
	}, []string{"operation", "outcome"})

	GatewayCallLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_call_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

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
