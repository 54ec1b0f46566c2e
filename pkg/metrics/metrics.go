package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 决策创建计数
	DecisionCreatedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_created_count",
			Help: "Total number of decisions created",
		},
		[]string{"status"}, // status: proposed, auto_approved, ignored
	)

	// 决策状态转换计数
	DecisionTransitionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_transition_count",
			Help: "Total number of decision lifecycle transitions",
		},
		[]string{"event", "to"},
	)

	// 规则匹配延迟（毫秒）
	RuleMatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rule_match_duration_ms",
			Help:    "Rule snapshot evaluation latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1ms to ~400ms
		},
		[]string{"outcome"}, // outcome: rule, heuristic
	)

	// 丢弃的信号计数
	SignalDroppedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_dropped_count",
			Help: "Total number of raw records dropped before the pipeline",
		},
		[]string{"reason"},
	)

	// 执行重试计数
	ExecutionRetryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execution_retry_count",
			Help: "Total number of decision execution retries",
		},
		[]string{"decision_type"},
	)
)

// IncrementDecisionCreated 增加决策创建计数
func IncrementDecisionCreated(status string) {
	DecisionCreatedCount.WithLabelValues(status).Inc()
}

// IncrementDecisionTransition 增加状态转换计数
func IncrementDecisionTransition(event, to string) {
	DecisionTransitionCount.WithLabelValues(event, to).Inc()
}

// RecordRuleMatchDuration 记录规则匹配延迟
func RecordRuleMatchDuration(outcome string, duration time.Duration) {
	RuleMatchDuration.WithLabelValues(outcome).Observe(float64(duration.Microseconds()) / 1000.0)
}

// IncrementSignalDropped 增加信号丢弃计数
func IncrementSignalDropped(reason string) {
	SignalDroppedCount.WithLabelValues(reason).Inc()
}

// IncrementExecutionRetry 增加执行重试计数
func IncrementExecutionRetry(decisionType string) {
	ExecutionRetryCount.WithLabelValues(decisionType).Inc()
}
