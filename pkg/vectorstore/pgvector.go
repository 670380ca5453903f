package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/mikeboe/site-gpt/pkg/database"
)

// PGVectorStore keeps one site's chunks in a pgvector table.
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if !database.ValidIdentifier(tableName) {
		return nil, fmt.Errorf("invalid table name %q", tableName)
	}
	return &PGVectorStore{pool: pool, tableName: tableName}, nil
}

func insertSQL(table string) string {
	return fmt.Sprintf("INSERT INTO %s (position, content, metadata, embedding) VALUES ($1, $2, $3, $4)",
		pgx.Identifier{table}.Sanitize())
}

// searchSQL orders by cosine distance, then by position so equal distances
// keep crawl order.
func searchSQL(table string) string {
	return fmt.Sprintf(`SELECT id::text AS id, content, metadata, 1 - (embedding <=> $1) AS similarity
FROM %s
ORDER BY embedding <=> $1, position
LIMIT $2`, pgx.Identifier{table}.Sanitize())
}

// AddDocuments inserts the chunks in one batch.
func (vs *PGVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	query := insertSQL(vs.tableName)
	batch := &pgx.Batch{}
	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("chunk %d: failed to marshal metadata: %w", i, err)
		}
		batch.Queue(query, Position(doc, i), doc.Content, meta, pgvector.NewVector(doc.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk %d into %s: %w", i, vs.tableName, err)
		}
	}
	return nil
}

type chunkRow struct {
	ID         string  `db:"id"`
	Content    string  `db:"content"`
	Metadata   []byte  `db:"metadata"`
	Similarity float64 `db:"similarity"`
}

// SimilaritySearch returns the topK chunks closest to queryEmbedding.
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int) ([]SimilaritySearchResult, error) {
	rows, err := vs.pool.Query(ctx, searchSQL(vs.tableName), pgvector.NewVector(queryEmbedding), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[chunkRow])
	if err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}

	results := make([]SimilaritySearchResult, len(found))
	for i, row := range found {
		doc := Document{ID: row.ID, Content: row.Content}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &doc.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", row.ID, err)
			}
		}
		results[i] = SimilaritySearchResult{Document: doc, Score: row.Similarity}
	}
	return results, nil
}

// PGVectorBackend stores each site in its own table.
type PGVectorBackend struct {
	DB *database.PostgresDB
}

func (b *PGVectorBackend) NewStore(ctx context.Context, siteURL string, dimension int) (Store, error) {
	table := CollectionName(siteURL)
	if err := b.DB.PrepareSiteTable(ctx, table, dimension); err != nil {
		return nil, err
	}
	store, err := NewPGVectorStore(b.DB.Pool, table)
	if err != nil {
		return nil, err
	}
	return store, nil
}
