package dialogue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the orchestrator.
type Metrics struct {
	TurnsTotal         *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	TurnDuration       *prometheus.HistogramVec
	RetrievalFailures  prometheus.Counter
	EvidenceLevelTotal *prometheus.CounterVec
	QueryRewrites      prometheus.Counter
}

// NewMetrics registers the dialogue metrics once per process.
//
// Metrics:
//   - healthqa_dialogue_turns_total{outcome}
//   - healthqa_dialogue_errors_total{kind}
//   - healthqa_dialogue_turn_duration_seconds{outcome}
//   - healthqa_dialogue_retrieval_failures_total
//   - healthqa_dialogue_evidence_total{level}
//   - healthqa_dialogue_query_rewrites_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			TurnsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "healthqa_dialogue_turns_total",
					Help: "Completed dialogue turns by outcome",
				},
				[]string{"outcome"},
			),
			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "healthqa_dialogue_errors_total",
					Help: "Failed dialogue turns by error kind",
				},
				[]string{"kind"},
			),
			TurnDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "healthqa_dialogue_turn_duration_seconds",
					Help:    "Duration of dialogue turns in seconds",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
				},
				[]string{"outcome"},
			),
			RetrievalFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "healthqa_dialogue_retrieval_failures_total",
					Help: "Turns that degraded because retrieval failed",
				},
			),
			EvidenceLevelTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "healthqa_dialogue_evidence_total",
					Help: "Evidence returned to users by level",
				},
				[]string{"level"},
			),
			QueryRewrites: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "healthqa_dialogue_query_rewrites_total",
					Help: "Queries merged with a clarification answer",
				},
			),
		}
	})
	return globalMetrics
}
