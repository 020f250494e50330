// Package ollama implements completion.Service against a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bookrag/internal/completion"
	"bookrag/internal/httpclient"
)

// Config configures the Ollama chat client.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

type Client struct {
	url         string
	model       string
	temperature float32
	http        *httpclient.Client
}

// NewClient returns a client for the /api/chat endpoint of cfg.BaseURL.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		url:         strings.TrimRight(cfg.BaseURL, "/") + "/api/chat",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		http:        httpclient.New(cfg.Timeout, 2),
	}
}

func (c *Client) Complete(ctx context.Context, req completion.Request) (string, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	messages := make([]message, 0, 2)
	if s := strings.TrimSpace(req.System); s != "" {
		messages = append(messages, message{Role: "system", Content: s})
	}
	messages = append(messages, message{Role: "user", Content: req.Prompt})

	body := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
		"options": map[string]any{
			"temperature": c.temperature,
		},
	}
	payload, err := c.http.PostJSON(ctx, c.url, body)
	if err != nil {
		return "", fmt.Errorf("ollama %s: %w", req.Role, err)
	}

	var response struct {
		Message    message `json:"message"`
		DoneReason string  `json:"done_reason"`
		Error      string  `json:"error"`
	}
	if err := json.Unmarshal(payload, &response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if response.Error != "" {
		return "", fmt.Errorf("ollama: %s", response.Error)
	}
	content := strings.TrimSpace(response.Message.Content)
	if content == "" && response.DoneReason != "stop" {
		return "", fmt.Errorf("empty response from ollama (done_reason=%q)", response.DoneReason)
	}
	return content, nil
}
