package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// AnswerGenerator produces one candidate answer per chunk using a bounded
// pool of workers.
type AnswerGenerator struct {
	Answerer ChunkAnswerer
	Workers  int
	Logger   *slog.Logger
}

func NewAnswerGenerator(answerer ChunkAnswerer, workers int) *AnswerGenerator {
	return &AnswerGenerator{Answerer: answerer, Workers: workers, Logger: slog.Default()}
}

// Generate returns the candidates in chunk order. Chunks whose answer could
// not be produced, or came back with a score outside [0,5], are left out and
// reported in failures, each wrapping ErrGenerationFailed.
func (g *AnswerGenerator) Generate(ctx context.Context, question string, chunks []Chunk) (candidates []CandidateAnswer, failures []error) {
	workers := g.Workers
	if workers <= 0 {
		workers = 1
	}

	results := make([]*CandidateAnswer, len(chunks))
	errs := make([]error, len(chunks))

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, chunk := range chunks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("%w: chunk %d (%s): %w", ErrGenerationFailed, i, chunk.Source, err)
				return nil
			}
			cand, err := g.Answerer.AnswerChunk(ctx, question, chunk)
			if err == nil && (cand.Score < MinScore || cand.Score > MaxScore) {
				err = fmt.Errorf("score %d outside [%d,%d]", cand.Score, MinScore, MaxScore)
			}
			if err != nil {
				errs[i] = fmt.Errorf("%w: chunk %d (%s): %w", ErrGenerationFailed, i, chunk.Source, err)
				return nil
			}
			cand.Source = chunk.Source
			results[i] = &cand
			return nil
		})
	}
	_ = eg.Wait()

	for i := range chunks {
		if errs[i] != nil {
			g.logger().Warn("Skipping chunk", "source", chunks[i].Source, "error", errs[i])
			failures = append(failures, errs[i])
			continue
		}
		candidates = append(candidates, *results[i])
	}
	return candidates, failures
}

func (g *AnswerGenerator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// LLMAnswerer answers from one chunk with a single chat call that returns
// both the answer and its score.
type LLMAnswerer struct {
	Caller *LLMCaller
}

func NewLLMAnswerer(caller *LLMCaller) *LLMAnswerer {
	return &LLMAnswerer{Caller: caller}
}

// AnswerChunk implements ChunkAnswerer.
func (a *LLMAnswerer) AnswerChunk(ctx context.Context, question string, chunk Chunk) (CandidateAnswer, error) {
	messages, err := chatMessages(answerSystemPrompt, answerHumanPrompt, map[string]any{
		"context":  chunk.Text,
		"question": question,
	})
	if err != nil {
		return CandidateAnswer{}, err
	}

	var cand CandidateAnswer
	_, err = a.Caller.generateWithRetry(ctx, messages, true, func(content string) error {
		c, perr := ParseCandidate(content)
		if perr != nil {
			return perr
		}
		cand = c
		return nil
	})
	if err != nil {
		return CandidateAnswer{}, err
	}
	cand.Source = chunk.Source
	return cand, nil
}

var (
	errMissingAnswer = errors.New("missing answer")
	textCandidate    = regexp.MustCompile(`(?is)^\s*answer:\s*(.*?)\s*score:\s*(-?\d+)\s*\.?\s*$`)
)

// ParseCandidate reads {"answer": "...", "score": N}, or the plain
// "Answer: ... Score: N" form. The score must be an integer in [0,5].
func ParseCandidate(raw string) (CandidateAnswer, error) {
	body := stripCodeFence(raw)

	var answer, score string
	if strings.HasPrefix(body, "{") {
		var resp struct {
			Answer string      `json:"answer"`
			Score  json.Number `json:"score"`
		}
		dec := json.NewDecoder(strings.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&resp); err != nil {
			return CandidateAnswer{}, fmt.Errorf("invalid answer json: %w", err)
		}
		answer, score = resp.Answer, resp.Score.String()
	} else if m := textCandidate.FindStringSubmatch(body); m != nil {
		answer, score = m[1], m[2]
	} else {
		return CandidateAnswer{}, fmt.Errorf("unrecognised answer format: %q", raw)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return CandidateAnswer{}, errMissingAnswer
	}
	n, err := strconv.Atoi(score)
	if err != nil {
		return CandidateAnswer{}, fmt.Errorf("score %q is not an integer", score)
	}
	if n < MinScore || n > MaxScore {
		return CandidateAnswer{}, fmt.Errorf("score %d outside [%d,%d]", n, MinScore, MaxScore)
	}
	return CandidateAnswer{Answer: answer, Score: n}, nil
}

var _ ChunkAnswerer = (*LLMAnswerer)(nil)
