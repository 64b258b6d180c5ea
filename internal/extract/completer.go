package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"

	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/resilience"
	"github.com/sells-group/policy-tracker/pkg/anthropic"
)

// Prompt is a single-turn completion request.
type Prompt struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float32
}

// Completion is the raw answer of a completion backend.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer is a generative text backend.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (*Completion, error)
	Model() string
}

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicCompleter wraps client.
func NewAnthropicCompleter(client anthropic.Client, model string) *AnthropicCompleter {
	return &AnthropicCompleter{client: client, model: model}
}

// Model returns the configured model id.
func (c *AnthropicCompleter) Model() string { return c.model }

// Complete sends p as one user turn.
func (c *AnthropicCompleter) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	temp := float64(p.Temperature)
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   int64(p.MaxTokens),
		System:      p.System,
		Messages:    []anthropic.Message{{Role: "user", Content: p.User}},
		Temperature: &temp,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, &resilience.StatusError{Service: "anthropic", Status: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &Completion{
		Text:         resp.Text(),
		Model:        model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// OpenAICompleter calls an OpenAI-compatible chat completion endpoint.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter builds a client for key. A non-empty baseURL points it
// at a compatible gateway.
func NewOpenAICompleter(key, model, baseURL string) *OpenAICompleter {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompleter{client: openai.NewClientWithConfig(cfg), model: model}
}

// Model returns the configured model id.
func (c *OpenAICompleter) Model() string { return c.model }

// Complete sends p as a system and a user message.
func (c *OpenAICompleter) Complete(ctx context.Context, p Prompt) (*Completion, error) {
	var msgs []openai.ChatCompletionMessage
	if p.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &resilience.StatusError{Service: "openai", Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return nil, &resilience.StatusError{Service: "openai", Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
		}
		return nil, eris.Wrap(err, "openai: chat completion")
	}

	out := &Completion{
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if out.Model == "" {
		out.Model = c.model
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
	}
	return out, nil
}

// NewCompleter picks the backend named by extract.provider.
func NewCompleter(cfg *config.Config) (Completer, error) {
	switch cfg.Extract.Provider {
	case "", "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("extract: anthropic.key is required")
		}
		return NewAnthropicCompleter(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model), nil
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, eris.New("extract: openai.key is required")
		}
		return NewOpenAICompleter(cfg.OpenAI.Key, cfg.OpenAI.Model, cfg.OpenAI.BaseURL), nil
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Extract.Provider)
	}
}
