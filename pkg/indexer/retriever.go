package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/mikeboe/site-gpt/pkg/embeddings"
	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/vectorstore"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// Retriever answers similarity queries against one built site index.
type Retriever struct {
	Store    vectorstore.Store
	Embedder embeddings.Embedder
	TopK     int
	// Timeout bounds embedding the question. Zero means no limit.
	Timeout time.Duration
}

func NewRetriever(store vectorstore.Store, embedder embeddings.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{Store: store, Embedder: embedder, TopK: topK}
}

// Retrieve returns up to TopK chunks ordered by descending similarity.
func (r *Retriever) Retrieve(ctx context.Context, question string) ([]qa.Chunk, error) {
	if r == nil || r.Store == nil || r.Embedder == nil {
		return nil, ErrIndexNotReady
	}

	emb, err := r.embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	results, err := r.Store.SimilaritySearch(ctx, emb, r.TopK)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	chunks := make([]qa.Chunk, len(results))
	for i, res := range results {
		chunks[i] = qa.Chunk{
			Text:     res.Document.Content,
			Source:   vectorstore.Source(res.Document),
			Position: vectorstore.Position(res.Document, i),
			Score:    res.Score,
		}
	}
	return chunks, nil
}

func (r *Retriever) embed(ctx context.Context, question string) ([]float32, error) {
	ctx, cancel := callContext(ctx, r.Timeout)
	defer cancel()
	return r.Embedder.EmbedText(ctx, question)
}

// WithTopK returns a retriever over the same index returning k chunks.
func (r *Retriever) WithTopK(k int) *Retriever {
	if r == nil {
		return nil
	}
	out := NewRetriever(r.Store, r.Embedder, k)
	out.Timeout = r.Timeout
	return out
}

var _ qa.Retriever = (*Retriever)(nil)
