package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrUnavailable means the model server could not be reached or did
	// not answer within the timeout. Classification falls back to
	// heuristics on this error; generation propagates it.
	ErrUnavailable = errors.New("inference unavailable")

	// ErrParse means the model answered but the structured output could
	// not be parsed.
	ErrParse = errors.New("malformed inference output")
)

const maxAttempts = 3

// Client talks to a local OpenAI-compatible model server (e.g. LM Studio).
// A semaphore caps in-flight requests so concurrent sync work cannot
// overload the single-model server.
type Client struct {
	api     openai.Client
	model   string
	timeout time.Duration
	sem     *semaphore.Weighted
	log     *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	MaxInflight int64
	Logger      *slog.Logger
}

// New creates a client for the configured endpoint.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("llm base URL is not set")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm model is not set")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	api := openai.NewClient(
		option.WithBaseURL(opts.BaseURL),
		option.WithAPIKey(opts.APIKey),
	)

	return &Client{
		api:     api,
		model:   opts.Model,
		timeout: opts.Timeout,
		sem:     semaphore.NewWeighted(opts.MaxInflight),
		log:     opts.Logger,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends one prompt and returns the generated text. Transport
// failures are retried with backoff; a still-failing call returns
// ErrUnavailable.
func (c *Client) Complete(ctx context.Context, system, prompt string, maxTokens int64, temperature float64) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer c.sem.Release(1)

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.Chat.Completions.New(callCtx, params)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%w: empty response", ErrUnavailable)
			}
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}

		c.log.Warn("inference call failed",
			"attempt", attempt, "model", c.model, "error", err)
		if attempt < maxAttempts {
			select {
			case <-time.After(time.Duration(1<<attempt) * time.Second):
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}
	}

	return "", fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// Verify checks connectivity with a tiny completion and returns the
// active model name.
func (c *Client) Verify(ctx context.Context) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage("test"),
		},
		MaxTokens: openai.Int(10),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return c.model, nil
}

// EstimateTokens gives a rough token count for budgeting prompts.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// TruncateForContext trims text to approximately maxTokens.
func TruncateForContext(text string, maxTokens int) string {
	if EstimateTokens(text) <= maxTokens {
		return text
	}
	return TruncateChars(text, maxTokens*4) + "... [truncated]"
}

// TruncateChars cuts s to at most n bytes without splitting a rune.
func TruncateChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// StripFences removes markdown code fences models wrap JSON answers in.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
