package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LLMSynthesizer asks a chat model to pick and combine the best candidates.
// Preference for higher scores is an instruction to the model, not a filter.
type LLMSynthesizer struct {
	Caller *LLMCaller
	Logger *slog.Logger
}

func NewLLMSynthesizer(caller *LLMCaller) *LLMSynthesizer {
	return &LLMSynthesizer{Caller: caller, Logger: slog.Default()}
}

// Synthesize implements Synthesizer.
func (s *LLMSynthesizer) Synthesize(ctx context.Context, question string, candidates []CandidateAnswer) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	logCandidates(s.Logger, question, candidates)

	messages, err := chatMessages(synthesizeSystemPrompt, synthesizeHumanPrompt, map[string]any{
		"answers":  candidates,
		"question": question,
	})
	if err != nil {
		return "", err
	}

	answer, err := s.Caller.generateWithRetry(ctx, messages, false, func(content string) error {
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("empty answer")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	return answer, nil
}

// TopScoreSynthesizer returns the best candidate verbatim with its source.
// Ties go to the earliest candidate.
type TopScoreSynthesizer struct{}

// Synthesize implements Synthesizer.
func (TopScoreSynthesizer) Synthesize(_ context.Context, _ string, candidates []CandidateAnswer) (string, error) {
	if len(candidates) == 0 {
		return "", ErrNoCandidates
	}
	best := 0
	for i, c := range candidates {
		if c.Score > candidates[best].Score {
			best = i
		}
	}
	c := candidates[best]
	if c.Source == "" {
		return c.Answer, nil
	}
	return fmt.Sprintf("%s\n\nSource: %s", c.Answer, c.Source), nil
}

// FallbackSynthesizer uses Fallback when Primary fails.
type FallbackSynthesizer struct {
	Primary  Synthesizer
	Fallback Synthesizer
	Logger   *slog.Logger
}

// Synthesize implements Synthesizer.
func (f *FallbackSynthesizer) Synthesize(ctx context.Context, question string, candidates []CandidateAnswer) (string, error) {
	answer, err := f.Primary.Synthesize(ctx, question, candidates)
	if err == nil {
		return answer, nil
	}
	if ctx.Err() != nil || f.Fallback == nil {
		return "", err
	}
	if f.Logger != nil {
		f.Logger.Warn("Synthesis failed, using top scored answer", "error", err)
	}
	return f.Fallback.Synthesize(ctx, question, candidates)
}

func logCandidates(logger *slog.Logger, question string, candidates []CandidateAnswer) {
	if logger == nil {
		return
	}
	for i, c := range candidates {
		logger.Info("Candidate answer", "question", question, "index", i, "score", c.Score, "source", c.Source)
	}
}

var (
	_ Synthesizer = (*LLMSynthesizer)(nil)
	_ Synthesizer = TopScoreSynthesizer{}
	_ Synthesizer = (*FallbackSynthesizer)(nil)
)
