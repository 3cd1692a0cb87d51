package metrics

import (
	"context"

	"autopatch/pkg/config"
	"autopatch/pkg/synth/llm"
	"autopatch/pkg/utils"
)

// RecordingClient wraps an llm.Client and counts each completion's usage
// against the run. Token counts are estimates from the local tokenizer; the
// providers' own usage fields are not surfaced by the completion layer.
type RecordingClient struct {
	inner    llm.Client
	counter  *utils.TokenCounter
	model    config.ModelConfig
	recorder *UsageRecorder
	runID    string
}

// NewRecordingClient wraps client with usage recording for one run.
func NewRecordingClient(client llm.Client, counter *utils.TokenCounter, model config.ModelConfig, recorder *UsageRecorder, runID string) *RecordingClient {
	return &RecordingClient{
		inner:    client,
		counter:  counter,
		model:    model,
		recorder: recorder,
		runID:    runID,
	}
}

// Complete implements llm.Client.
func (c *RecordingClient) Complete(ctx context.Context, in llm.Request) (llm.Response, error) {
	resp, err := c.inner.Complete(ctx, in)
	if err != nil {
		return resp, err
	}

	var promptTokens int64
	for _, msg := range in.Messages {
		promptTokens += int64(c.counter.CountTokens(msg.Content))
	}
	completionTokens := int64(c.counter.CountTokens(resp.Content))

	c.recorder.RecordUsage(c.runID, c.inner.ModelName(), promptTokens, completionTokens,
		Cost(c.model, promptTokens, completionTokens))
	return resp, nil
}

// ModelName implements llm.Client.
func (c *RecordingClient) ModelName() string {
	return c.inner.ModelName()
}
