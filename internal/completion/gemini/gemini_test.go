package gemini

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/completion"
)

func TestNew_RequiresKey(t *testing.T) {
	t.Setenv("BOOKRAG_TEST_GEMINI_KEY", "")
	_, err := New(context.Background(), Config{APIKeyEnv: "BOOKRAG_TEST_GEMINI_KEY"})
	assert.ErrorContains(t, err, "BOOKRAG_TEST_GEMINI_KEY")
}

func TestComplete(t *testing.T) {
	var gotSystem, gotPrompt string
	p := &Provider{generate: func(_ context.Context, system, prompt string) (string, error) {
		gotSystem, gotPrompt = system, prompt
		return " Warbreaker \n", nil
	}}
	out, err := p.Complete(context.Background(), completion.Request{
		Role:   completion.RoleHistoryCollector,
		System: "  list titles ",
		Prompt: "I read Warbreaker",
	})
	require.NoError(t, err)
	assert.Equal(t, "Warbreaker", out)
	assert.Equal(t, "list titles", gotSystem)
	assert.Equal(t, "I read Warbreaker", gotPrompt)
	assert.NoError(t, p.Close())
}

func TestComplete_Errors(t *testing.T) {
	p := &Provider{generate: func(context.Context, string, string) (string, error) {
		return "", errors.New("quota exceeded")
	}}
	_, err := p.Complete(context.Background(), completion.Request{Role: completion.RoleResearcher})
	assert.ErrorContains(t, err, "researcher")
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestComplete_BlankReply(t *testing.T) {
	p := &Provider{generate: func(context.Context, string, string) (string, error) { return " \n", nil }}
	out, err := p.Complete(context.Background(), completion.Request{Role: completion.RoleHistoryCollector})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCandidateText(t *testing.T) {
	_, err := candidateText(&genai.GenerateContentResponse{})
	assert.Error(t, err)

	_, err = candidateText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}})
	assert.Error(t, err)

	_, err = candidateText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonSafety,
	}}})
	assert.Error(t, err)

	out, err := candidateText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		FinishReason: genai.FinishReasonStop,
	}}})
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = candidateText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("Raoden "), genai.Text("is a prince.")}},
	}}})
	require.NoError(t, err)
	assert.Equal(t, "Raoden is a prince.", out)
}
