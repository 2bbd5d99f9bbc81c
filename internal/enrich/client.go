package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/diralist-hq/diralist-harvester/pkg/httpclient"
)

// Completer sends one instruction + payload pair to a text-extraction model
// and returns the raw model output.
type Completer interface {
	Complete(ctx context.Context, instruction, payload string) (string, error)
}

// ClientConfig configures the chat-completions extraction client.
type ClientConfig struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// ChatClient implements Completer against OpenAI-compatible chat APIs.
type ChatClient struct {
	endpoint string
	model    string
	apiKey   string
	client   httpclient.Client
}

var _ Completer = (*ChatClient)(nil)

// NewChatClient builds a client from configuration. A nil http client gets a
// default resty transport with the configured timeout.
func NewChatClient(cfg ClientConfig, client httpclient.Client) *ChatClient {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		client = httpclient.NewRestyClient(timeout)
	}
	return &ChatClient{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   cfg.APIKey,
		client:   client,
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete posts the payload as a user message and returns the model content.
func (c *ChatClient) Complete(ctx context.Context, instruction, payload string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("chat client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("chat client misconfigured")
	}

	body := map[string]any{
		"model":       c.model,
		"temperature": 0.4,
		"response_format": map[string]string{
			"type": "json_object",
		},
		"messages": []map[string]string{
			{"role": "system", "content": instruction},
			{"role": "user", "content": payload},
		},
		"stream": false,
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}

	resp, err := c.client.PostJSON(ctx, c.endpoint, headers, body)
	if err != nil {
		return "", fmt.Errorf("extraction request: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("extraction service status %d: %s", resp.StatusCode(), bodySnippet(resp.Body()))
	}

	var parsed chatResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("decode extraction envelope: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("extraction service returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 512 {
		return s[:512] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
