package clients

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/googleai"
)

// GoogleDefaultModel is the Gemini chat model used when none is configured.
const GoogleDefaultModel = "gemini-3-flash-preview"

// GoogleAI creates a Gemini chat model through the Gemini API.
func GoogleAI(ctx context.Context, apiKey, model string) (*googleai.GoogleAI, error) {
	if model == "" {
		model = GoogleDefaultModel
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
		googleai.WithHarmThreshold(googleai.HarmBlockOnlyHigh),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google ai client: %w", err)
	}
	return llm, nil
}
