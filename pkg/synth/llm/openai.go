package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const providerOpenAI = "openai"

// OpenAIClient wraps the official OpenAI SDK behind the Client interface,
// using the Responses API.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient creates a GPT-backed client.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements Client. The Responses API takes a single input
// string, so the conversation is flattened with role prefixes.
func (c *OpenAIClient) Complete(ctx context.Context, in Request) (Response, error) {
	var inputText string
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case RoleSystem:
			inputText += fmt.Sprintf("System: %s\n\n", msg.Content)
		case RoleAssistant:
			inputText += fmt.Sprintf("Assistant: %s\n\n", msg.Content)
		default:
			inputText += msg.Content
		}
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(inputText)},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return Response{}, classify(providerOpenAI, err)
	}
	if resp == nil {
		return Response{}, NewError(providerOpenAI, ErrTypeEmptyResponse, 0, "nil response from OpenAI API", nil)
	}

	content := resp.OutputText()
	if content == "" {
		return Response{}, NewError(providerOpenAI, ErrTypeEmptyResponse, 0, "empty output from OpenAI API", nil)
	}

	return Response{Content: content, StopReason: string(resp.Status)}, nil
}

// ModelName implements Client.
func (c *OpenAIClient) ModelName() string {
	return c.model
}
