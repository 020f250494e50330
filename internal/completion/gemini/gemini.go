// Package gemini implements completion.Service with Google Gemini models.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"bookrag/internal/completion"
)

// Config configures the Gemini provider.
type Config struct {
	APIKeyEnv   string
	Model       string
	Temperature float32
}

// generateFunc runs one GenerateContent round trip and returns the candidate text.
type generateFunc func(ctx context.Context, system, prompt string) (string, error)

// Provider generates stage answers with a Gemini model.
type Provider struct {
	generate generateFunc
	closer   func() error
}

// New creates a genai client authenticated with the key in cfg.APIKeyEnv.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	apiKey := os.Getenv(cfg.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set", cfg.APIKeyEnv)
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create new gemini client: %w", err)
	}

	generate := func(ctx context.Context, system, prompt string) (string, error) {
		// GenerativeModel carries mutable settings; build one per call.
		model := client.GenerativeModel(cfg.Model)
		model.SetTemperature(cfg.Temperature)
		if system != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(system))
		}
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", fmt.Errorf("failed to generate content: %w", err)
		}
		return candidateText(resp)
	}
	return &Provider{generate: generate, closer: client.Close}, nil
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("no candidates returned from Gemini")
	}
	candidate := resp.Candidates[0]
	var b strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
	}
	// No text is a valid reply only when generation stopped normally.
	if strings.TrimSpace(b.String()) == "" && candidate.FinishReason != genai.FinishReasonStop {
		return "", fmt.Errorf("empty content returned from Gemini (finish reason %v)", candidate.FinishReason)
	}
	return b.String(), nil
}

func (p *Provider) Complete(ctx context.Context, req completion.Request) (string, error) {
	out, err := p.generate(ctx, strings.TrimSpace(req.System), req.Prompt)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", req.Role, err)
	}
	return strings.TrimSpace(out), nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
