package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunks(texts ...string) []Chunk {
	out := make([]Chunk, len(texts))
	for i, text := range texts {
		out[i] = Chunk{Text: text, Source: "https://example.com/" + text, Position: i}
	}
	return out
}

func TestGeneratePreservesOrder(t *testing.T) {
	answerer := &stubAnswerer{scores: map[string]int{"c0": 1, "c1": 5, "c2": 3}}
	for _, workers := range []int{1, 2, 8} {
		t.Run(fmt.Sprintf("%d workers", workers), func(t *testing.T) {
			gen := NewAnswerGenerator(answerer, workers)
			in := chunks("c0", "c1", "c2")

			got, failures := gen.Generate(context.Background(), "q", in)
			assert.Empty(t, failures)

			require.Len(t, got, 3)
			for i := range in {
				assert.Equal(t, in[i].Source, got[i].Source)
				assert.Equal(t, "from "+in[i].Text, got[i].Answer)
			}
		})
	}
}

func TestGenerateSkipsFailedChunks(t *testing.T) {
	answerer := &stubAnswerer{
		scores: map[string]int{"c0": 2, "c2": 4},
		fail:   map[string]bool{"c1": true},
	}
	gen := NewAnswerGenerator(answerer, 3)

	got, failures := gen.Generate(context.Background(), "q", chunks("c0", "c1", "c2"))

	require.Len(t, got, 2)
	assert.Equal(t, "https://example.com/c0", got[0].Source)
	assert.Equal(t, "https://example.com/c2", got[1].Source)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], ErrGenerationFailed)
	assert.Contains(t, failures[0].Error(), "c1")
}

func TestGenerateRejectsOutOfRangeScores(t *testing.T) {
	answerer := &stubAnswerer{scores: map[string]int{"ok": 5, "high": 6, "low": -1}}
	gen := NewAnswerGenerator(answerer, 2)

	got, failures := gen.Generate(context.Background(), "q", chunks("ok", "high", "low"))

	require.Len(t, got, 1)
	assert.Equal(t, 5, got[0].Score)
	assert.Len(t, failures, 2)
	for _, c := range got {
		assert.GreaterOrEqual(t, c.Score, MinScore)
		assert.LessOrEqual(t, c.Score, MaxScore)
	}
}

func TestGenerateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := NewAnswerGenerator(&stubAnswerer{}, 2)

	got, failures := gen.Generate(ctx, "q", chunks("a", "b"))
	assert.Empty(t, got)
	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0], context.Canceled)
}

func TestParseCandidate(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    CandidateAnswer
		wantErr bool
	}{
		{"json", `{"answer": "The moon is 384,400 km away.", "score": 5}`, CandidateAnswer{Answer: "The moon is 384,400 km away.", Score: 5}, false},
		{"json zero", `{"answer": "I don't know", "score": 0}`, CandidateAnswer{Answer: "I don't know", Score: 0}, false},
		{"fenced", "```json\n{\"answer\": \"yes\", \"score\": 3}\n```", CandidateAnswer{Answer: "yes", Score: 3}, false},
		{"text form", "Answer: It costs $20.\nScore: 4", CandidateAnswer{Answer: "It costs $20.", Score: 4}, false},
		{"text multiline", "Answer: line one\nline two\n\nScore: 2.", CandidateAnswer{Answer: "line one\nline two", Score: 2}, false},
		{"score too high", `{"answer": "x", "score": 9}`, CandidateAnswer{}, true},
		{"score negative", "Answer: x\nScore: -1", CandidateAnswer{}, true},
		{"fractional score", `{"answer": "x", "score": 2.5}`, CandidateAnswer{}, true},
		{"missing score", `{"answer": "x"}`, CandidateAnswer{}, true},
		{"empty answer", `{"answer": "  ", "score": 1}`, CandidateAnswer{}, true},
		{"prose", "The moon is far away.", CandidateAnswer{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCandidate(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMAnswererGroundsOnChunk(t *testing.T) {
	llm := &fakeLLM{respond: func(system, human string) (string, error) {
		if strings.Contains(system, "384,400 km from Earth") && strings.Contains(human, "moon") {
			return `{"answer": "About 384,400 km.", "score": 5}`, nil
		}
		return `{"answer": "I don't know", "score": 0}`, nil
	}}
	gen := NewAnswerGenerator(NewLLMAnswerer(testCaller(llm)), 2)

	in := []Chunk{
		{Text: "The Moon orbits 384,400 km from Earth.", Source: "https://x/moon"},
		{Text: "Our pricing page lists three plans.", Source: "https://x/pricing"},
	}
	got, failures := gen.Generate(context.Background(), "How far is the moon?", in)
	require.Empty(t, failures)
	require.Len(t, got, 2)

	assert.Equal(t, CandidateAnswer{Answer: "About 384,400 km.", Score: 5, Source: "https://x/moon"}, got[0])
	assert.Equal(t, CandidateAnswer{Answer: "I don't know", Score: 0, Source: "https://x/pricing"}, got[1])
	assert.Equal(t, 2, llm.callCount(), "one call per chunk, score included")
}

func TestLLMAnswererRetriesInvalidScore(t *testing.T) {
	responses := []string{
		`{"answer": "maybe", "score": 11}`,
		`{"answer": "yes", "score": 4}`,
	}
	llm := &fakeLLM{}
	llm.respond = func(string, string) (string, error) {
		return responses[llm.callCount()-1], nil
	}
	a := NewLLMAnswerer(testCaller(llm))

	got, err := a.AnswerChunk(context.Background(), "q", Chunk{Text: "t", Source: "s"})
	require.NoError(t, err)
	assert.Equal(t, CandidateAnswer{Answer: "yes", Score: 4, Source: "s"}, got)
	assert.Equal(t, 2, llm.callCount())
}

func TestLLMAnswererServiceDown(t *testing.T) {
	llm := &fakeLLM{respond: func(string, string) (string, error) {
		return "", errors.New("503 service unavailable")
	}}
	gen := NewAnswerGenerator(NewLLMAnswerer(testCaller(llm)), 1)

	got, failures := gen.Generate(context.Background(), "q", chunks("a"))
	assert.Empty(t, got)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], ErrGenerationFailed)
}
