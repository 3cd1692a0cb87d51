package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunMetrics represents aggregated LLM usage for one ticket run.
type RunMetrics struct {
	RunID            string  `json:"run_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService provides methods to query usage metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// scalarQuery runs a sum query and returns its single sample, or zero when
// the series does not exist yet.
func (q *QueryService) scalarQuery(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetRunMetrics retrieves aggregated token and cost metrics for a run,
// summed across every model the run used.
func (q *QueryService) GetRunMetrics(ctx context.Context, runID string) (*RunMetrics, error) {
	metrics := &RunMetrics{RunID: runID}

	prompt, err := q.scalarQuery(ctx,
		fmt.Sprintf(`sum(autopatch_llm_tokens_total{run_id=%q, type="prompt"})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(prompt)

	completion, err := q.scalarQuery(ctx,
		fmt.Sprintf(`sum(autopatch_llm_tokens_total{run_id=%q, type="completion"})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = int64(completion)

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	cost, err := q.scalarQuery(ctx,
		fmt.Sprintf(`sum(autopatch_llm_costs_total{run_id=%q})`, runID))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	metrics.TotalCost = cost

	return metrics, nil
}

// GetRunMetricsByModel retrieves run metrics broken down by model, showing
// which models were used and their individual costs.
func (q *QueryService) GetRunMetricsByModel(ctx context.Context, runID string) (map[string]*RunMetrics, error) {
	result := make(map[string]*RunMetrics)

	modelsQuery := fmt.Sprintf(`group by (model) (autopatch_llm_tokens_total{run_id=%q})`, runID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	for _, modelName := range models {
		metrics := &RunMetrics{RunID: runID}

		prompt, err := q.scalarQuery(ctx,
			fmt.Sprintf(`sum(autopatch_llm_tokens_total{run_id=%q, model=%q, type="prompt"})`, runID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		metrics.PromptTokens = int64(prompt)

		completion, err := q.scalarQuery(ctx,
			fmt.Sprintf(`sum(autopatch_llm_tokens_total{run_id=%q, model=%q, type="completion"})`, runID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		metrics.CompletionTokens = int64(completion)

		metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

		cost, err := q.scalarQuery(ctx,
			fmt.Sprintf(`sum(autopatch_llm_costs_total{run_id=%q, model=%q})`, runID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query cost for model %s: %w", modelName, err)
		}
		metrics.TotalCost = cost

		result[modelName] = metrics
	}

	return result, nil
}
