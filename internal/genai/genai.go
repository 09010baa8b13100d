// Package genai provides motivational text generation using the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNoChoicesReturned is returned when the API answers without any choice.
var ErrNoChoicesReturned = errors.New("no choices returned")

// Defaults
const (
	DefaultModel   = openai.ChatModelGPT4oMini
	DefaultTimeout = 30 * time.Second
	defaultSystem  = "You are a warm, concise self-improvement coach inside a chat bot. " +
		"Keep answers under 80 words. Plain text or simple Markdown only."
)

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat     chatService
	model    openai.ChatModel
	system   string
	timeout  time.Duration
	language string
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model, e.g. "gpt-4o-mini".
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithLanguage asks the model to answer in the given language.
func WithLanguage(lang string) Option {
	return func(o *Opts) { o.Language = lang }
}

// WithTimeout bounds each generation call.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)

	c := &Client{
		chat:     &cli.Chat.Completions,
		model:    DefaultModel,
		system:   defaultSystem,
		timeout:  DefaultTimeout,
		language: cfg.Language,
	}
	if cfg.Model != "" {
		c.model = openai.ChatModel(cfg.Model)
	}
	if cfg.Timeout > 0 {
		c.timeout = cfg.Timeout
	}
	slog.Debug("genai.NewClient: client ready", "model", c.model, "language", c.language, "baseURL_set", cfg.BaseURL != "")
	return c, nil
}

// GeneratePrompt generates a response based on the provided system and user prompts.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	}
	start := time.Now()
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("Client.GeneratePrompt: completion failed", "model", c.model, "error", err, "elapsed", time.Since(start))
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	slog.Debug("Client.GeneratePrompt: completion received", "model", c.model, "elapsed", time.Since(start))
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Generate answers a single prompt with the client's coaching system prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	system := c.system
	if c.language != "" {
		system += " Always reply in " + c.language + "."
	}
	return c.GeneratePrompt(ctx, system, prompt)
}
