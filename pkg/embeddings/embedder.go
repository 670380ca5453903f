package embeddings

import (
	"context"
	"fmt"

	"github.com/mikeboe/site-gpt/pkg/clients"
	"github.com/mikeboe/site-gpt/pkg/config"
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// New returns the embedder matching the configured provider.
func New(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch cfg.Provider {
	case config.ProviderGoogle:
		e, err := NewGoogleEmbedder(ctx, cfg.EmbeddingModel, cfg.GoogleApiKey)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.ProviderOpenAI:
		llm, err := clients.OpenAI(cfg.OpenAIApiKey, cfg.ChatModel, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		e, err := NewOpenAIEmbedder(llm)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Provider)
	}
}
