package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	providerOllama    = "ollama"
	defaultOllamaHost = "http://localhost:11434"
)

// OllamaClient wraps the Ollama API client behind the Client interface.
// Ollama is a local runtime for open-source models.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates an Ollama-backed client. hostURL is the server
// URL, e.g. "http://localhost:11434".
func NewOllamaClient(hostURL, model string) *OllamaClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsedURL, _ = url.Parse(defaultOllamaHost)
	}
	return &OllamaClient{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, in Request) (Response, error) {
	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		messages = append(messages, api.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}

	var response api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "connection refused") {
			return Response{}, NewError(providerOllama, ErrTypeTransient, 0, "Ollama server not reachable", err)
		}
		return Response{}, classify(providerOllama, err)
	}

	if response.Message.Content == "" {
		return Response{}, NewError(providerOllama, ErrTypeEmptyResponse, 0, "empty response from Ollama", nil)
	}

	return Response{
		Content:    response.Message.Content,
		StopReason: ollamaStopReason(&response),
	}, nil
}

// ModelName implements Client.
func (c *OllamaClient) ModelName() string {
	return c.model
}

func ollamaStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}
