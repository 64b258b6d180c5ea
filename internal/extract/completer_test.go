package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/resilience"
	"github.com/sells-group/policy-tracker/pkg/anthropic"
)

func TestOpenAICompleter(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": `{"confidence":0.5}`}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 30, "completion_tokens": 7, "total_tokens": 37},
		})
	}))
	defer ts.Close()

	c := NewOpenAICompleter("sk-test", "gpt-4o-mini", ts.URL+"/v1")
	out, err := c.Complete(context.Background(), Prompt{System: "sys", User: "usr", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, `{"confidence":0.5}`, out.Text)
	assert.Equal(t, 30, out.InputTokens)
	assert.Equal(t, 7, out.OutputTokens)
	assert.Equal(t, "gpt-4o-mini", out.Model)

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAICompleter_StatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	c := NewOpenAICompleter("sk-test", "gpt-4o-mini", ts.URL+"/v1")
	_, err := c.Complete(context.Background(), Prompt{User: "usr"})
	var se *resilience.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Status)
	assert.True(t, resilience.IsTransient(err))
}

type fakeAnthropic struct {
	resp *anthropic.MessageResponse
	err  error
	req  anthropic.MessageRequest
}

func (f *fakeAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.req = req
	return f.resp, f.err
}

func TestAnthropicCompleter(t *testing.T) {
	t.Parallel()

	f := &fakeAnthropic{resp: &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: "{}"}},
		Usage:   anthropic.TokenUsage{InputTokens: 11, OutputTokens: 3},
	}}
	c := NewAnthropicCompleter(f, "claude-haiku-4-5-20251001")
	out, err := c.Complete(context.Background(), Prompt{System: "s", User: "u", MaxTokens: 99, Temperature: 0.3})
	require.NoError(t, err)
	assert.Equal(t, "{}", out.Text)
	assert.Equal(t, "claude-haiku-4-5-20251001", out.Model)
	assert.Equal(t, int64(99), f.req.MaxTokens)
	assert.Equal(t, "s", f.req.System)

	f.err = &anthropic.APIError{StatusCode: 529, Message: "overloaded"}
	_, err = c.Complete(context.Background(), Prompt{User: "u"})
	var se *resilience.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 529, se.Status)
}

func TestNewCompleter(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Extract.Provider = "anthropic"
	_, err := NewCompleter(cfg)
	assert.Error(t, err)

	cfg.Anthropic.Key = "k"
	cfg.Anthropic.Model = "claude-haiku-4-5-20251001"
	c, err := NewCompleter(cfg)
	require.NoError(t, err)
	assert.Equal(t, "claude-haiku-4-5-20251001", c.Model())

	cfg.Extract.Provider = "openai"
	cfg.OpenAI.Key = "k"
	cfg.OpenAI.Model = "gpt-4o-mini"
	c, err = NewCompleter(cfg)
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompleter{}, c)

	cfg.Extract.Provider = "gemini"
	_, err = NewCompleter(cfg)
	assert.Error(t, err)
}
