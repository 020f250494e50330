package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookrag/internal/completion"
	"bookrag/internal/httpclient"
)

func TestNewClient_RequiresKey(t *testing.T) {
	t.Setenv("BOOKRAG_TEST_CHAT_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "BOOKRAG_TEST_CHAT_KEY"})
	assert.ErrorContains(t, err, "BOOKRAG_TEST_CHAT_KEY")
}

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.InDelta(t, 0.2, req.Temperature, 1e-6)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "You are the researcher.", req.Messages[0].Content)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "Who is Raoden?", req.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Raoden is a prince.  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	t.Setenv("BOOKRAG_TEST_CHAT_KEY", "secret")
	c, err := NewClient(Config{BaseURL: srv.URL + "/v1", APIKeyEnv: "BOOKRAG_TEST_CHAT_KEY", Model: "gpt-test", Temperature: 0.2})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), completion.Request{
		Role:   completion.RoleResearcher,
		System: "You are the researcher.",
		Prompt: "Who is Raoden?",
	})
	require.NoError(t, err)
	assert.Equal(t, "Raoden is a prince.", out)
}

func TestComplete_Errors(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want string
	}{
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
		{"empty content", http.StatusOK, `{"choices":[{"message":{"content":""},"finish_reason":"length"}]}`, "length"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, "401"},
	}
	t.Setenv("BOOKRAG_TEST_CHAT_KEY", "secret")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "BOOKRAG_TEST_CHAT_KEY", Timeout: time.Second})
			require.NoError(t, err)
			_, err = c.Complete(context.Background(), completion.Request{Role: completion.RoleResponder, Prompt: "q"})
			assert.ErrorContains(t, err, tc.want)
			if tc.code >= 400 {
				var se *httpclient.StatusError
				assert.ErrorAs(t, err, &se)
			}
		})
	}
}

func TestComplete_BlankReplyAfterStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"\n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	t.Setenv("BOOKRAG_TEST_CHAT_KEY", "secret")
	c, err := NewClient(Config{BaseURL: srv.URL, APIKeyEnv: "BOOKRAG_TEST_CHAT_KEY", Timeout: time.Second})
	require.NoError(t, err)
	out, err := c.Complete(context.Background(), completion.Request{Role: completion.RoleHistoryCollector, Prompt: "none of them"})
	require.NoError(t, err)
	assert.Empty(t, out)
}
