package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HTTPConfig configures the chat-completion gateway.
type HTTPConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HTTPGateway calls an OpenAI-compatible chat completions endpoint, one
// request per prompt. The conversation id is forwarded as the user field so
// provider-side logs can group a player's calls.
type HTTPGateway struct {
	cfg    HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPGateway builds the gateway. The HTTP client timeout is a backstop;
// the per-prompt timeout governs individual calls.
func NewHTTPGateway(cfg HTTPConfig, logger *zap.Logger) *HTTPGateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	User     string        `json:"user,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *HTTPGateway) Send(ctx context.Context, prompt Prompt) (string, error) {
	if prompt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, prompt.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model:    g.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt.Text}},
		User:     prompt.ConversationID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build agent request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("agent call for %s: %w", prompt.SenderID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("agent call for %s: status %d: %s", prompt.SenderID, resp.StatusCode, snippet)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode agent reply for %s: %w", prompt.SenderID, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("agent reply for %s: no choices", prompt.SenderID)
	}
	return parsed.Choices[0].Message.Content, nil
}
