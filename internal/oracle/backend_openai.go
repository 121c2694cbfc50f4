// internal/oracle/backend_openai.go
//
// Oracle backend for OpenAI-compatible chat APIs (OpenAI, OpenRouter,
// vLLM gateways). Selected when an API key is configured.

package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIBackend implements Backend on top of sashabaranov/go-openai.
type OpenAIBackend struct {
	client *openai.Client
	model  string
}

// NewOpenAIBackend constructs a backend. baseURL may be empty for the
// stock OpenAI endpoint.
func NewOpenAIBackend(apiKey, baseURL, model string, timeout time.Duration) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai backend requires an API key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &OpenAIBackend{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Chat sends one exchange and returns the raw reply text. JSON response
// format is requested; schema validation still happens on our side.
func (b *OpenAIBackend) Chat(ctx context.Context, system string, msgs []Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, m := range msgs {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.model,
		Messages:    messages,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai chat: empty reply")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
