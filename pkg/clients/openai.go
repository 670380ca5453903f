package clients

import (
	"fmt"

	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIDefaultModel is the chat model used when none is configured.
const OpenAIDefaultModel = "gpt-4.1-nano-2025-04-14"

// OpenAI creates an OpenAI chat model that can also serve embeddings for embeddingModel.
func OpenAI(apiKey, model, embeddingModel string) (*openai.LLM, error) {
	if model == "" {
		model = OpenAIDefaultModel
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if embeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(embeddingModel))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return llm, nil
}
