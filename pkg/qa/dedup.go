package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

const (
	// NeverAsked is the textual form of a dedup miss.
	NeverAsked = "Never been asked"
	// SimilarityThreshold is the lowest similarity that counts as a repeat.
	SimilarityThreshold = 0.5
)

// Match is the deduplicator's verdict: an index into history, or not found.
type Match struct {
	Index int
	Found bool
}

// NotFound is the dedup miss.
var NotFound = Match{Index: -1}

// String renders the match as the history index or NeverAsked.
func (m Match) String() string {
	if !m.Found {
		return NeverAsked
	}
	return strconv.Itoa(m.Index)
}

// ParseMatch accepts exactly an integer index within [0, historyLen) or the
// NeverAsked sentinel (a trailing period is tolerated).
func ParseMatch(raw string, historyLen int) (Match, error) {
	s := strings.TrimSpace(raw)
	if strings.TrimSuffix(s, ".") == NeverAsked {
		return NotFound, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return NotFound, fmt.Errorf("%w: %q", ErrMalformedJudgment, raw)
	}
	if i < 0 || i >= historyLen {
		return NotFound, fmt.Errorf("%w: index %d outside history of %d", ErrMalformedJudgment, i, historyLen)
	}
	return Match{Index: i, Found: true}, nil
}

// Decide applies the selection rule to one similarity per history entry: the
// maximum wins, ties go to the largest index, and a maximum below threshold
// is not found.
func Decide(similarities []float64, threshold float64) (Match, error) {
	best := -1
	for i, s := range similarities {
		if math.IsNaN(s) || s < 0 || s > 1 {
			return NotFound, fmt.Errorf("%w: similarity %d is %v, want [0,1]", ErrMalformedJudgment, i, s)
		}
		if best < 0 || s >= similarities[best] {
			best = i
		}
	}
	if best < 0 || similarities[best] < threshold {
		return NotFound, nil
	}
	return Match{Index: best, Found: true}, nil
}

// Deduplicator finds an earlier question equivalent to a new one.
type Deduplicator struct {
	Judge     SimilarityJudge
	Threshold float64
	Logger    *slog.Logger
}

// NewDeduplicator uses SimilarityThreshold.
func NewDeduplicator(judge SimilarityJudge) *Deduplicator {
	return &Deduplicator{Judge: judge, Threshold: SimilarityThreshold, Logger: slog.Default()}
}

// Find returns the index of the history record answering the same question.
// Empty history is a miss without consulting the judge.
func (d *Deduplicator) Find(ctx context.Context, question string, history []QueryRecord) (Match, error) {
	if len(history) == 0 {
		return NotFound, nil
	}

	questions := make([]string, len(history))
	for i, rec := range history {
		questions[i] = rec.Question
	}

	similarities, err := d.Judge.Similarities(ctx, question, questions)
	if err != nil {
		return NotFound, err
	}
	if len(similarities) != len(questions) {
		return NotFound, fmt.Errorf("%w: got %d similarities for %d questions", ErrMalformedJudgment, len(similarities), len(questions))
	}

	match, err := Decide(similarities, d.Threshold)
	if err != nil {
		return NotFound, err
	}
	if d.Logger != nil {
		d.Logger.Debug("Dedup decision", "question", question, "match", match.String(), "similarities", similarities)
	}
	return match, nil
}

// LLMJudge asks a chat model for per-question similarities.
type LLMJudge struct {
	Caller *LLMCaller
}

func NewLLMJudge(caller *LLMCaller) *LLMJudge {
	return &LLMJudge{Caller: caller}
}

// Similarities implements SimilarityJudge. The model must answer with
// {"similarities": [...]}; a bare index or NeverAsked verdict is also
// accepted and turned into a one-hot score list. Anything else is
// ErrMalformedJudgment.
func (j *LLMJudge) Similarities(ctx context.Context, question string, history []string) ([]float64, error) {
	messages, err := chatMessages(judgeSystemPrompt, judgeHumanPrompt, map[string]any{
		"count":    len(history),
		"history":  history,
		"question": question,
	})
	if err != nil {
		return nil, err
	}

	var scores []float64
	_, err = j.Caller.generateWithRetry(ctx, messages, true, func(content string) error {
		s, perr := ParseSimilarities(content, len(history))
		if perr != nil {
			return perr
		}
		scores = s
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMalformedJudgment) {
			return nil, err
		}
		return nil, fmt.Errorf("similarity judgment: %w", err)
	}
	return scores, nil
}

// ParseSimilarities decodes a judge response for a history of n questions.
func ParseSimilarities(raw string, n int) ([]float64, error) {
	body := stripCodeFence(raw)

	if strings.HasPrefix(body, "{") {
		var resp struct {
			Similarities []float64 `json:"similarities"`
		}
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedJudgment, err)
		}
		if len(resp.Similarities) != n {
			return nil, fmt.Errorf("%w: got %d similarities for %d questions", ErrMalformedJudgment, len(resp.Similarities), n)
		}
		return resp.Similarities, nil
	}

	match, err := ParseMatch(body, n)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, n)
	if match.Found {
		scores[match.Index] = 1
	}
	return scores, nil
}

var _ SimilarityJudge = (*LLMJudge)(nil)
