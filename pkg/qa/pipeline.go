package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Result is the outcome of one question.
type Result struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	// Cached is true when the answer was reused from history.
	Cached bool `json:"cached"`
	// MatchedIndex is the reused history record, or -1.
	MatchedIndex int `json:"matched_index"`
	// RecordIndex is the history index of the record written for this question.
	RecordIndex int               `json:"record_index"`
	Candidates  []CandidateAnswer `json:"candidates,omitempty"`
	Failed      int               `json:"failed_chunks"`
}

// Markdown returns the answer with dollar signs escaped.
func (r *Result) Markdown() string {
	return EscapeDollars(r.Answer)
}

// Pipeline sequences dedup, retrieval, per-chunk generation and synthesis.
type Pipeline struct {
	Dedup       *Deduplicator
	Generator   *AnswerGenerator
	Synthesizer Synthesizer
	Logger      *slog.Logger
}

// Ask answers question against retriever and records the result in history.
// A repeated question returns the earlier answer without retrieval. Dedup
// failures count as a miss. Nothing is recorded when the question fails.
func (p *Pipeline) Ask(ctx context.Context, retriever Retriever, history *History, question string) (*Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if retriever == nil {
		return nil, ErrIndexNotReady
	}

	logger := p.logger()
	records := history.Records()

	match := NotFound
	if p.Dedup != nil {
		m, err := p.Dedup.Find(ctx, question, records)
		switch {
		case err == nil:
			match = m
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			logger.Warn("Dedup failed, answering fresh", "question", question, "error", err)
		}
	}

	if match.Found {
		cached := records[match.Index]
		idx := history.Append(QueryRecord{Question: question, Answer: cached.Answer})
		logger.Info("Answered from history", "question", question, "matched", match.Index)
		return &Result{
			Question:     question,
			Answer:       cached.Answer,
			Cached:       true,
			MatchedIndex: match.Index,
			RecordIndex:  idx,
		}, nil
	}

	chunks, err := retriever.Retrieve(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	logger.Info("Retrieved chunks", "question", question, "count", len(chunks))

	candidates, failures := p.Generator.Generate(ctx, question, chunks)
	if len(candidates) == 0 {
		if len(failures) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrNoCandidates, errors.Join(failures...))
		}
		return nil, ErrNoCandidates
	}

	answer, err := p.Synthesizer.Synthesize(ctx, question, candidates)
	if err != nil {
		return nil, err
	}

	idx := history.Append(QueryRecord{Question: question, Answer: answer})
	return &Result{
		Question:     question,
		Answer:       answer,
		MatchedIndex: -1,
		RecordIndex:  idx,
		Candidates:   candidates,
		Failed:       len(failures),
	}, nil
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Options configures NewLLMPipeline.
type Options struct {
	Temperature float64
	Timeout     time.Duration
	Workers     int
	Logger      *slog.Logger
}

// NewLLMPipeline backs every stage with llm. Synthesis falls back to the top
// scored candidate if the synthesis call fails.
func NewLLMPipeline(llm llms.Model, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	caller := NewLLMCaller(llm, opts.Temperature, opts.Timeout)
	caller.Logger = logger

	dedup := NewDeduplicator(NewLLMJudge(caller))
	dedup.Logger = logger
	gen := NewAnswerGenerator(NewLLMAnswerer(caller), opts.Workers)
	gen.Logger = logger
	synth := NewLLMSynthesizer(caller)
	synth.Logger = logger

	return &Pipeline{
		Dedup:     dedup,
		Generator: gen,
		Synthesizer: &FallbackSynthesizer{
			Primary:  synth,
			Fallback: TopScoreSynthesizer{},
			Logger:   logger,
		},
		Logger: logger,
	}
}
