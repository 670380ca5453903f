// Package qa answers questions about an indexed site: it deduplicates against
// the session history, generates one scored answer per retrieved chunk and
// synthesizes a cited final answer.
package qa

import (
	"context"
	"errors"
)

var (
	// ErrMalformedJudgment is returned when the similarity judge's response
	// does not have one of the accepted shapes.
	ErrMalformedJudgment = errors.New("malformed similarity judgment")
	// ErrGenerationFailed marks a chunk whose candidate answer could not be produced.
	ErrGenerationFailed = errors.New("answer generation failed")
	// ErrNoCandidates is returned when every chunk failed or nothing was retrieved.
	ErrNoCandidates = errors.New("no candidate answers")
	// ErrIndexNotReady is returned when retrieval runs before the site index is built.
	ErrIndexNotReady = errors.New("site index not ready")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

// MinScore and MaxScore bound a candidate's helpfulness score.
const (
	MinScore = 0
	MaxScore = 5
)

// Chunk is a read-only slice of indexed page text.
type Chunk struct {
	Text     string  `json:"text"`
	Source   string  `json:"source"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// QueryRecord is one resolved question and the answer given for it.
type QueryRecord struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// CandidateAnswer is the answer drawn from a single chunk.
type CandidateAnswer struct {
	Answer string `json:"answer"`
	Score  int    `json:"score"`
	Source string `json:"source"`
}

// Retriever returns the chunks most similar to a question, best first.
type Retriever interface {
	Retrieve(ctx context.Context, question string) ([]Chunk, error)
}

// SimilarityJudge scores how similar question is to each entry of history,
// returning one value in [0,1] per entry.
type SimilarityJudge interface {
	Similarities(ctx context.Context, question string, history []string) ([]float64, error)
}

// ChunkAnswerer answers question from the text of a single chunk.
type ChunkAnswerer interface {
	AnswerChunk(ctx context.Context, question string, chunk Chunk) (CandidateAnswer, error)
}

// Synthesizer combines candidate answers into the final cited answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, question string, candidates []CandidateAnswer) (string, error)
}
