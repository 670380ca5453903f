package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"
)

// MemoryStore is an in-process index using brute-force cosine similarity.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	docs      []Document
	norms     []float64
}

// NewMemoryStore creates an empty store. A zero dimension is fixed by the
// first added document.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dimension: dimension}
}

// AddDocuments adds documents with embeddings to the vector store
func (s *MemoryStore) AddDocuments(_ context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, doc := range docs {
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("document %d has no embedding", i)
		}
		if s.dimension == 0 {
			s.dimension = len(doc.Embedding)
		}
		if len(doc.Embedding) != s.dimension {
			return fmt.Errorf("document %d: vector dimension mismatch: got %d, want %d", i, len(doc.Embedding), s.dimension)
		}
	}

	for _, doc := range docs {
		if doc.ID == "" {
			doc.ID = strconv.Itoa(len(s.docs))
		}
		s.docs = append(s.docs, doc)
		s.norms = append(s.norms, norm(doc.Embedding))
	}
	return nil
}

// SimilaritySearch returns the topK most similar documents. Equal scores keep
// insertion order.
func (s *MemoryStore) SimilaritySearch(_ context.Context, queryEmbedding []float32, topK int) ([]SimilaritySearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if topK <= 0 {
		return nil, errors.New("topK must be positive")
	}
	if len(s.docs) == 0 {
		return nil, nil
	}
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: got %d, want %d", len(queryEmbedding), s.dimension)
	}

	qNorm := norm(queryEmbedding)
	results := make([]SimilaritySearchResult, len(s.docs))
	for i, doc := range s.docs {
		results[i] = SimilaritySearchResult{
			Document: doc,
			Score:    cosine(doc.Embedding, queryEmbedding, s.norms[i], qNorm),
		}
	}

	slices.SortStableFunc(results, func(a, b SimilaritySearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

// MemoryBackend hands out a fresh MemoryStore per site.
type MemoryBackend struct{}

func (MemoryBackend) NewStore(_ context.Context, _ string, dimension int) (Store, error) {
	return NewMemoryStore(dimension), nil
}
