package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker/v2"

	"github.com/maltedev/market-scout/internal/metrics"
)

var (
	ErrNotConfigured  = errors.New("LLM not configured")
	ErrLLMUnavailable = errors.New("LLM unavailable")
)

const DefaultSystemPrompt = "You are a helpful assistant."

// Client is the text completion capability. A nil Client means no LLM is
// configured; callers check for nil before calling.
type Client interface {
	Complete(ctx context.Context, prompt, systemPrompt string) (string, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	MaxTokens   int64
	Temperature float64
}

type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient calls the Messages API behind a circuit breaker so a dead
// endpoint fails fast instead of stalling every analysis.
type AnthropicClient struct {
	messages messagesAPI
	cfg      Config
	breaker  *gobreaker.CircuitBreaker[string]
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New returns ErrNotConfigured, and a nil Client, when cfg has no API key.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return newAnthropicClient(&client.Messages, cfg, logger, m), nil
}

func newAnthropicClient(messages messagesAPI, cfg Config, logger *slog.Logger, m *metrics.Metrics) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	logger = logger.With("component", "llm", "model", cfg.Model)

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
		},
	})

	logger.Info("LLM client initialized")

	return &AnthropicClient{
		messages: messages,
		cfg:      cfg,
		breaker:  breaker,
		metrics:  m,
		logger:   logger,
	}
}

func (c *AnthropicClient) Complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}

	text, err := c.breaker.Execute(func() (string, error) {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return c.complete(cctx, prompt, systemPrompt)
	})
	if err != nil {
		c.metrics.ObserveLLM(metrics.OutcomeError)
		c.logger.Error("LLM call failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	c.metrics.ObserveLLM(metrics.OutcomeOK)
	return text, nil
}

func (c *AnthropicClient) complete(ctx context.Context, prompt, systemPrompt string) (string, error) {
	msg, err := c.messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: anthropic.Float(c.cfg.Temperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}
