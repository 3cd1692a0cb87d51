// Package metrics records LLM usage per ticket run and aggregates it back
// out of Prometheus for the reporting surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"autopatch/pkg/config"
)

// Token type label values.
const (
	TokenTypePrompt     = "prompt"
	TokenTypeCompletion = "completion"
)

// UsageRecorder counts LLM tokens and cost per run and model.
type UsageRecorder struct {
	tokensTotal *prometheus.CounterVec
	costsTotal  *prometheus.CounterVec
}

// NewUsageRecorder registers the LLM usage metrics on the default registry.
func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopatch_llm_tokens_total",
				Help: "Total LLM tokens by run, model, and token type",
			},
			[]string{"run_id", "model", "type"},
		),
		costsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autopatch_llm_costs_total",
				Help: "Total LLM cost in USD by run and model",
			},
			[]string{"run_id", "model"},
		),
	}
}

// RecordUsage counts one completion's token usage and its derived cost.
func (r *UsageRecorder) RecordUsage(runID, model string, promptTokens, completionTokens int64, costUSD float64) {
	r.tokensTotal.WithLabelValues(runID, model, TokenTypePrompt).Add(float64(promptTokens))
	r.tokensTotal.WithLabelValues(runID, model, TokenTypeCompletion).Add(float64(completionTokens))
	r.costsTotal.WithLabelValues(runID, model).Add(costUSD)
}

// Cost computes the USD cost of a completion from the model's per-million
// token pricing.
func Cost(model config.ModelConfig, promptTokens, completionTokens int64) float64 {
	return float64(promptTokens)/1e6*model.CpmTokensIn +
		float64(completionTokens)/1e6*model.CpmTokensOut
}
