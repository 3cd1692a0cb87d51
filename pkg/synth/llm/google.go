package llm

import (
	"context"

	"google.golang.org/genai"
)

const providerGoogle = "google"

// GoogleClient wraps the Google GenAI SDK behind the Client interface.
type GoogleClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewGoogleClient creates a Gemini-backed client. SDK client creation
// requires a context, so it is deferred to the first Complete call.
func NewGoogleClient(apiKey, model string) *GoogleClient {
	return &GoogleClient{apiKey: apiKey, model: model}
}

// Complete implements Client.
func (c *GoogleClient) Complete(ctx context.Context, in Request) (Response, error) {
	if c.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return Response{}, classify(providerGoogle, err)
		}
		c.client = client
	}

	systemInstruction, conversation, err := SplitSystem(in.Messages)
	if err != nil {
		return Response{}, NewError(providerGoogle, ErrTypeBadRequest, 0, err.Error(), err)
	}

	contents := make([]*genai.Content, 0, len(conversation))
	for i := range conversation {
		msg := &conversation[i]
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: int32(in.MaxTokens),
	}
	if systemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return Response{}, classify(providerGoogle, err)
	}
	if result == nil || result.Text() == "" {
		return Response{}, NewError(providerGoogle, ErrTypeEmptyResponse, 0, "empty response from Gemini API", nil)
	}

	return Response{Content: result.Text(), StopReason: "end_turn"}, nil
}

// ModelName implements Client.
func (c *GoogleClient) ModelName() string {
	return c.model
}
