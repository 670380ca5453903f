package qa

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// fakeLLM answers GenerateContent with respond, recording every call.
type fakeLLM struct {
	mu      sync.Mutex
	respond func(system, human string) (string, error)
	calls   []llms.CallOptions
	humans  []string
	systems []string
}

func (f *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	var system, human string
	for _, m := range messages {
		for _, p := range m.Parts {
			text, ok := p.(llms.TextContent)
			if !ok {
				continue
			}
			switch m.Role {
			case llms.ChatMessageTypeSystem:
				system += text.Text
			case llms.ChatMessageTypeHuman:
				human += text.Text
			}
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.systems = append(f.systems, system)
	f.humans = append(f.humans, human)
	f.mu.Unlock()

	out, err := f.respond(system, human)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (f *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testCaller(llm llms.Model) *LLMCaller {
	c := NewLLMCaller(llm, 0.1, 0)
	c.Backoff = 0
	return c
}

// stubJudge returns fixed similarities.
type stubJudge struct {
	scores []float64
	err    error
	calls  int
}

func (s *stubJudge) Similarities(_ context.Context, _ string, history []string) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.scores, nil
}

// stubAnswerer answers "from <text>" with a score taken from scores[text].
type stubAnswerer struct {
	scores map[string]int
	fail   map[string]bool
}

func (s *stubAnswerer) AnswerChunk(_ context.Context, _ string, chunk Chunk) (CandidateAnswer, error) {
	if s.fail[chunk.Text] {
		return CandidateAnswer{}, errors.New("service unavailable")
	}
	return CandidateAnswer{Answer: "from " + chunk.Text, Score: s.scores[chunk.Text], Source: "ignored"}, nil
}

// stubRetriever returns fixed chunks.
type stubRetriever struct {
	chunks []Chunk
	err    error
	calls  int
}

func (s *stubRetriever) Retrieve(context.Context, string) ([]Chunk, error) {
	s.calls++
	return s.chunks, s.err
}

// joinSynth concatenates answers and sources.
type joinSynth struct {
	calls int
	err   error
}

func (j *joinSynth) Synthesize(_ context.Context, _ string, candidates []CandidateAnswer) (string, error) {
	j.calls++
	if j.err != nil {
		return "", j.err
	}
	var parts []string
	for _, c := range candidates {
		parts = append(parts, c.Answer+" ("+c.Source+")")
	}
	return strings.Join(parts, "; "), nil
}
