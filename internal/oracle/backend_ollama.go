// internal/oracle/backend_ollama.go
//
// Oracle backend talking to a local Ollama server through its native API.
// This is the default backend: the game runs fully offline against any
// local chat model.

package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaBackend implements Backend on top of github.com/ollama/ollama/api.
type OllamaBackend struct {
	client *api.Client
	model  string
}

// NewOllamaBackend constructs a backend for baseURL (e.g.
// http://localhost:11434). A trailing /v1 suffix is tolerated and stripped;
// the native API lives at the bare host.
func NewOllamaBackend(baseURL, model string, timeout time.Duration) (*OllamaBackend, error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/v1")
	u, err := url.Parse(strings.TrimSuffix(trimmed, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url %q: %w", baseURL, err)
	}
	client := api.NewClient(u, &http.Client{Timeout: timeout})
	return &OllamaBackend{client: client, model: model}, nil
}

// Chat sends one exchange and returns the raw reply text.
// Ollama's JSON mode is requested so the model is nudged toward the shapes
// the schema package expects; validation still happens on our side.
func (b *OllamaBackend) Chat(ctx context.Context, system string, msgs []Message) (string, error) {
	messages := make([]api.Message, 0, len(msgs)+1)
	messages = append(messages, api.Message{Role: "system", Content: system})
	for _, m := range msgs {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    b.model,
		Messages: messages,
		Stream:   &stream,
		Format:   json.RawMessage(`"json"`),
		Options: map[string]any{
			"temperature": 0.2,
		},
	}

	var sb strings.Builder
	err := b.client.Chat(ctx, req, func(r api.ChatResponse) error {
		sb.WriteString(r.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	out := strings.TrimSpace(sb.String())
	if out == "" {
		return "", fmt.Errorf("ollama chat: empty reply")
	}
	return out, nil
}
