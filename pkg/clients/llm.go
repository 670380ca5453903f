package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/site-gpt/pkg/config"
)

// NewLLM returns the chat model for the configured provider.
func NewLLM(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	if cfg.APIKey() == "" {
		return nil, fmt.Errorf("%w for provider %s", config.ErrMissingCredential, cfg.Provider)
	}

	switch cfg.Provider {
	case config.ProviderGoogle:
		llm, err := GoogleAI(ctx, cfg.GoogleApiKey, cfg.ChatModel)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case config.ProviderOpenAI:
		llm, err := OpenAI(cfg.OpenAIApiKey, cfg.ChatModel, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
}
