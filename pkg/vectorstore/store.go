// Package vectorstore holds embedded chunks and answers nearest-neighbour queries.
package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Document represents a document with embeddings
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Embedding []float32              `json:"embedding,omitempty"`
}

// SimilaritySearchResult represents a search result with score
type SimilaritySearchResult struct {
	Document Document
	Score    float64
}

// Store is a similarity index over embedded documents. Results are ordered
// by descending score.
type Store interface {
	AddDocuments(ctx context.Context, docs []Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int) ([]SimilaritySearchResult, error)
}

// Backend creates an empty Store for one site.
type Backend interface {
	NewStore(ctx context.Context, siteURL string, dimension int) (Store, error)
}

// CollectionName derives a stable table/collection name for a site.
func CollectionName(siteURL string) string {
	sum := sha256.Sum256([]byte(siteURL))
	return "site_" + hex.EncodeToString(sum[:8])
}

// Position reads the "position" metadata of doc, accepting the integer and
// JSON number forms. fallback is returned when it is missing.
func Position(doc Document, fallback int) int {
	switch v := doc.Metadata["position"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return fallback
}

// Source reads the "source" metadata of doc.
func Source(doc Document) string {
	s, _ := doc.Metadata["source"].(string)
	return s
}
