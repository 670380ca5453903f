package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// LLMCaller runs chat completions with a per-call timeout and retries
// responses rejected by a validator.
type LLMCaller struct {
	LLM         llms.Model
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	Backoff     time.Duration
	Logger      *slog.Logger
}

// NewLLMCaller returns a caller with 3 attempts and a one second linear backoff.
func NewLLMCaller(llm llms.Model, temperature float64, timeout time.Duration) *LLMCaller {
	return &LLMCaller{
		LLM:         llm,
		Temperature: temperature,
		Timeout:     timeout,
		MaxRetries:  3,
		Backoff:     time.Second,
		Logger:      slog.Default(),
	}
}

// generateWithRetry attempts to generate content and validates it using the provided function.
// It retries up to MaxRetries times if the LLM fails or the validator returns an error.
func (c *LLMCaller) generateWithRetry(ctx context.Context, messages []llms.MessageContent, jsonMode bool, validator func(string) error) (string, error) {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	opts := []llms.CallOption{llms.WithTemperature(c.Temperature)}
	if jsonMode {
		opts = append(opts, llms.WithJSONMode())
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			c.logger().Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.Backoff * time.Duration(i)): // Linear backoff
			}
		}

		content, err := c.generate(ctx, messages, opts)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}

		if validator != nil {
			if err := validator(content); err != nil {
				lastErr = fmt.Errorf("validation failed: %w", err)
				continue
			}
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

func (c *LLMCaller) generate(ctx context.Context, messages []llms.MessageContent, opts []llms.CallOption) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	resp, err := c.LLM.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func (c *LLMCaller) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// chatMessages renders the system and human templates into a two message prompt.
func chatMessages(system, human prompts.PromptTemplate, values map[string]any) ([]llms.MessageContent, error) {
	sys, err := system.Format(values)
	if err != nil {
		return nil, fmt.Errorf("failed to render system prompt: %w", err)
	}
	hum, err := human.Format(values)
	if err != nil {
		return nil, fmt.Errorf("failed to render human prompt: %w", err)
	}
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, sys),
		llms.TextParts(llms.ChatMessageTypeHuman, hum),
	}, nil
}

// stripCodeFence removes a surrounding ```json fence some models add in JSON mode.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
