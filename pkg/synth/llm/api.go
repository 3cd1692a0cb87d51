// Package llm provides the model-client interface and backend
// implementations used by the change synthesizer.
package llm

import (
	"context"
	"fmt"
)

// Role of a message in a completion request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TemperatureDeterministic is used for content synthesis. Slight randomness
// avoids the model getting stuck in loops across repair rounds.
const TemperatureDeterministic = 0.2

// Message is one entry of a completion conversation.
type Message struct {
	Role    Role
	Content string
}

// Request is a completion request.
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

// Response is a completion response.
type Response struct {
	Content    string
	StopReason string // end_turn, max_tokens, etc.
}

// Client is the minimal surface the synthesizer needs from a model backend.
type Client interface {
	Complete(ctx context.Context, in Request) (Response, error)
	ModelName() string
}

// NewRequest builds a request with synthesis defaults.
func NewRequest(messages []Message, maxTokens int) Request {
	return Request{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: TemperatureDeterministic,
	}
}

// SystemMessage is a convenience constructor.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage is a convenience constructor.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SplitSystem separates system messages from the conversation and merges
// consecutive user messages, the shape both Anthropic and Gemini expect.
func SplitSystem(messages []Message) (systemPrompt string, rest []Message, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var system string
	var merged []Message
	for i := range messages {
		msg := messages[i]
		switch msg.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case RoleAssistant:
			merged = append(merged, msg)
		default:
			if n := len(merged); n > 0 && merged[n-1].Role == RoleUser {
				merged[n-1].Content += "\n\n" + msg.Content
				continue
			}
			merged = append(merged, Message{Role: RoleUser, Content: msg.Content})
		}
	}

	if len(merged) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}
	if merged[0].Role != RoleUser {
		return "", nil, fmt.Errorf("first non-system message must be user role, got %s", merged[0].Role)
	}
	if merged[len(merged)-1].Role != RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got %s", merged[len(merged)-1].Role)
	}
	return system, merged, nil
}
