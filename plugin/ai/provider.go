// Package ai provides the LLM provider used by recipe ranking and
// synthesis, plus the prompt catalog.
package ai

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	errs "github.com/hearthfire/cookforge/internal/errors"
)

// Config holds the AI provider configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	MaxRetries int
	Timeout    time.Duration
	// RequestsPerMinute throttles outbound calls. Zero disables the
	// limiter.
	RequestsPerMinute int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.openai.com/v1",
		ChatModel:  "gpt-4o-mini",
		MaxRetries: 3,
		Timeout:    30 * time.Second,
	}
}

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string
	Content string
}

// Chatter is the chat-completion surface consumed by workflows.
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Provider is the OpenAI-compatible chat provider.
type Provider struct {
	client  *openai.Client
	config  *Config
	limiter *rate.Limiter
}

// NewProvider creates a provider from config.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: limiter,
	}, nil
}

// Chat performs a chat completion with retry and rate limiting. The
// context is observed during the call, so fan-out cancellation takes
// effect mid-request.
func (p *Provider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", errs.ContextCanceled(err)
		}
	}

	llmMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		llmMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	req := openai.ChatCompletionRequest{
		Model:    p.config.ChatModel,
		Messages: llmMessages,
	}

	var result string
	err := p.doWithRetry(ctx, func(ctx context.Context) error {
		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errs.LLMUnavailable("empty chat response", nil)
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// doWithRetry runs fn with exponential backoff, giving up early on
// context cancellation.
func (p *Provider) doWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := 500 * time.Millisecond

	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		err := fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return errs.ContextCanceled(ctx.Err())
		}

		if attempt < p.config.MaxRetries-1 {
			slog.Warn("chat completion failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return errs.ContextCanceled(ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	if errors.Is(lastErr, context.DeadlineExceeded) {
		return errs.Timeout("chat completion timed out after retries")
	}
	return errs.LLMUnavailable("chat completion failed after retries", lastErr)
}

var _ Chatter = (*Provider)(nil)
