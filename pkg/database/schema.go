package database

import (
	"context"
	"fmt"
)

// hnsw indexes are limited to 2000 dimensions; wider vectors use exact search.
const maxIndexedDimension = 2000

// SiteTableDDL returns the statements creating the chunk table of one site.
func SiteTableDDL(table string, dimension int) ([]string, error) {
	if !ValidIdentifier(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimension)
	}

	stmts := []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	position INTEGER NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB,
	embedding vector(%d) NOT NULL
)`, table, dimension)}
	if dimension <= maxIndexedDimension {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx ON %[1]s USING hnsw (embedding vector_cosine_ops)", table))
	}
	return append(stmts, fmt.Sprintf("TRUNCATE TABLE %s", table)), nil
}

// PrepareSiteTable makes sure an empty chunk table exists for one site.
// Rows from an earlier crawl are removed so the index reflects the current
// crawl only.
func (db *PostgresDB) PrepareSiteTable(ctx context.Context, table string, dimension int) error {
	stmts, err := SiteTableDDL(table, dimension)
	if err != nil {
		return err
	}
	if err := db.EnsureVectorExtension(ctx); err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare table %s: %w", table, err)
		}
	}
	return nil
}
