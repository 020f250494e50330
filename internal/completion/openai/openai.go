// Package openai implements completion.Service with the OpenAI chat
// completions API and compatible servers.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bookrag/internal/completion"
	"bookrag/internal/httpclient"
)

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
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

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// NewClient reads the API key from cfg.APIKeyEnv and fails when it is unset.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if key == "" {
		return nil, fmt.Errorf("%s environment variable not set", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	hc := httpclient.New(cfg.Timeout, 3)
	hc.Header.Set("Authorization", "Bearer "+key)
	return &Client{
		url:         strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:       cfg.Model,
		temperature: cfg.Temperature,
		http:        hc,
	}, nil
}

func (c *Client) Complete(ctx context.Context, req completion.Request) (string, error) {
	var messages []chatMessage
	if s := strings.TrimSpace(req.System); s != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := c.http.PostJSON(ctx, c.url, chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", req.Role, err)
	}
	var out chatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("%s completion: decode response: %w", req.Role, err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices returned from chat completion")
	}
	choice := out.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	// An empty reply is only an answer when the model stopped on its own.
	if content == "" && choice.FinishReason != "stop" {
		return "", fmt.Errorf("empty completion (finish_reason=%q)", choice.FinishReason)
	}
	return content, nil
}
