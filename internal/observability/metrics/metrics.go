package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rulemaster_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rulemaster_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rulemaster_oracle_request_duration_seconds",
		Help:    "Duration of text generation oracle calls",
		Buckets: []float64{.25, .5, 1, 2, 4, 8, 16, 32},
	}, []string{"provider", "result"})

	rulesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rulemaster_rules_created_total",
		Help: "Count of stored rules by creation source",
	}, []string{"source"})

	promptIntents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rulemaster_chat_intents_total",
		Help: "Count of chat prompts by classified intent",
	}, []string{"intent"})

	rulesGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rulemaster_rules",
		Help: "Number of stored rules by state",
	}, []string{"state"})

	departmentsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rulemaster_departments",
		Help: "Number of distinct rule departments",
	})

	identityCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rulemaster_identity_requests_total",
		Help: "Count of identity provider admin calls by operation and result",
	}, []string{"operation", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveOracle records the duration of one oracle call with a result label.
func ObserveOracle(provider, result string, duration time.Duration) {
	oracleDuration.WithLabelValues(provider, result).Observe(duration.Seconds())
}

// ObserveRuleCreated counts a stored rule. source is manual, nlp or chat.
func ObserveRuleCreated(source string) {
	rulesCreated.WithLabelValues(source).Inc()
}

// ObserveIntent counts a classified chat prompt.
func ObserveIntent(intent string) {
	promptIntents.WithLabelValues(intent).Inc()
}

// ObserveIdentityCall counts an identity provider call.
func ObserveIdentityCall(operation, result string) {
	identityCalls.WithLabelValues(operation, result).Inc()
}

// SetRuleCounts sets the rule gauges from aggregate counts.
func SetRuleCounts(active, inactive, departments int) {
	rulesGauge.WithLabelValues("active").Set(float64(clamp(active)))
	rulesGauge.WithLabelValues("inactive").Set(float64(clamp(inactive)))
	departmentsGauge.Set(float64(clamp(departments)))
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
