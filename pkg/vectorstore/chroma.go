package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	chromaembeddings "github.com/amikos-tech/chroma-go/pkg/embeddings"
)

// ChromaStore keeps one site's chunks in a Chroma collection.
type ChromaStore struct {
	collection chromago.Collection
	name       string
	site       string
}

// AddDocuments adds documents with embeddings to the collection
func (s *ChromaStore) AddDocuments(ctx context.Context, docs []Document) error {
	for i, doc := range docs {
		pos := Position(doc, i)
		embedding := chromaembeddings.NewEmbeddingFromFloat32(doc.Embedding)
		metadata := chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("site", s.site),
			chromago.NewStringAttribute("source", Source(doc)),
			chromago.NewIntAttribute("position", int64(pos)),
		)

		err := s.collection.Add(ctx,
			chromago.WithIDs(chromago.DocumentID(fmt.Sprintf("%s-%d", s.name, pos))),
			chromago.WithTexts(doc.Content),
			chromago.WithEmbeddings(embedding),
			chromago.WithMetadatas(metadata),
		)
		if err != nil {
			return fmt.Errorf("failed to add chunk %d to chroma: %w", pos, err)
		}
	}
	return nil
}

// SimilaritySearch queries the collection with the embedding.
func (s *ChromaStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int) ([]SimilaritySearchResult, error) {
	results, err := s.collection.Query(ctx,
		chromago.WithQueryEmbeddings(chromaembeddings.NewEmbeddingFromFloat32(queryEmbedding)),
		chromago.WithNResults(topK),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chroma: %w", err)
	}

	documentGroups := results.GetDocumentsGroups()
	metadataGroups := results.GetMetadatasGroups()
	distanceGroups := results.GetDistancesGroups()
	if len(documentGroups) == 0 {
		return nil, nil
	}

	var out []SimilaritySearchResult
	for i, d := range documentGroups[0] {
		doc := Document{Content: d.ContentString(), Metadata: map[string]interface{}{}}
		if len(metadataGroups) > 0 && i < len(metadataGroups[0]) && metadataGroups[0][i] != nil {
			// DocumentMetadata has no map accessor, so go through JSON.
			raw, err := json.Marshal(metadataGroups[0][i])
			if err == nil {
				err = json.Unmarshal(raw, &doc.Metadata)
			}
			if err != nil {
				slog.Warn("Could not decode chroma metadata", "error", err)
			}
		}

		score := 0.0
		if len(distanceGroups) > 0 && i < len(distanceGroups[0]) {
			score = 1 - float64(distanceGroups[0][i])
		}
		out = append(out, SimilaritySearchResult{Document: doc, Score: score})
	}
	return out, nil
}

// ChromaBackend stores every site in a cosine-space collection.
type ChromaBackend struct {
	Client chromago.Client
}

// NewChromaBackend connects to the Chroma server at baseURL.
func NewChromaBackend(baseURL string) (*ChromaBackend, error) {
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return &ChromaBackend{Client: client}, nil
}

func (b *ChromaBackend) NewStore(ctx context.Context, siteURL string, _ int) (Store, error) {
	name := CollectionName(siteURL)
	collection, err := b.Client.GetOrCreateCollection(ctx, name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("site", siteURL),
				chromago.NewStringAttribute("hnsw:space", "cosine"),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection %s: %w", name, err)
	}

	// drop chunks from an earlier crawl of the same site
	if err := collection.Delete(ctx, chromago.WithWhereDelete(chromago.EqString("site", siteURL))); err != nil {
		return nil, fmt.Errorf("failed to clear collection %s: %w", name, err)
	}

	return &ChromaStore{collection: collection, name: name, site: siteURL}, nil
}

// Close releases the client.
func (b *ChromaBackend) Close() error {
	return b.Client.Close()
}
