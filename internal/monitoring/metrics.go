package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 收件循环指标
	IntakeCycles        prometheus.Counter
	IntakeCycleFailures prometheus.Counter
	IntakeCycleDuration prometheus.Histogram
	MessagesSeen        prometheus.Counter
	MessagesSkipped     prometheus.Counter // 已有对应草稿而跳过的来信

	// 草稿指标
	DraftsCreated      prometheus.Counter
	DraftsReconciled   prometheus.Counter // 补建远端草稿成功
	GenerationFailures prometheus.Counter

	// 决策指标
	DecisionsTotal *prometheus.CounterVec // outcome: sent / rejected
	DecisionErrors *prometheus.CounterVec

	// 网关指标
	GatewayErrors *prometheus.CounterVec // op 维度
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoreply_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "autoreply_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		IntakeCycles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_intake_cycles_total",
			Help: "Total number of intake cycles run",
		}),
		IntakeCycleFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_intake_cycle_failures_total",
			Help: "Intake cycles that failed before processing messages",
		}),
		IntakeCycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoreply_intake_cycle_duration_seconds",
			Help:    "Duration of intake cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		MessagesSeen: promauto.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_messages_seen_total",
			Help: "Unread messages returned by the mailbox gateway",
		}),
		MessagesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_messages_skipped_total",
			Help: "Messages skipped because a draft already exists",
		}),

		DraftsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_drafts_created_total",
			Help: "Draft rows created by intake",
		}),
		DraftsReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_drafts_reconciled_total",
			Help: "Provider drafts re-created by reconciliation",
		}),
		GenerationFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "autoreply_generation_failures_total",
			Help: "Reply generation failures",
		}),

		DecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoreply_decisions_total",
				Help: "Draft decisions by outcome",
			},
			[]string{"outcome"},
		),
		DecisionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoreply_decision_errors_total",
				Help: "Draft decision failures by operation",
			},
			[]string{"operation"},
		),

		GatewayErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoreply_gateway_errors_total",
				Help: "Mailbox gateway errors by operation",
			},
			[]string{"op"},
		),
	}
}

// RecordHTTPRequest 记录一次 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDecision 记录一次决策结果
func (m *Metrics) RecordDecision(outcome string) {
	m.DecisionsTotal.WithLabelValues(outcome).Inc()
}

// RecordDecisionError 记录一次决策失败
func (m *Metrics) RecordDecisionError(operation string) {
	m.DecisionErrors.WithLabelValues(operation).Inc()
}

// RecordGatewayError 记录一次网关错误
func (m *Metrics) RecordGatewayError(op string) {
	m.GatewayErrors.WithLabelValues(op).Inc()
}
