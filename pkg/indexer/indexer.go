// Package indexer turns a sitemap into a searchable site index and serves
// retrieval over it.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/schema"

	"github.com/mikeboe/site-gpt/pkg/crawler"
	"github.com/mikeboe/site-gpt/pkg/embeddings"
	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/vectorstore"
)

// ErrIndexNotReady is returned by retrieval before a site has been indexed.
var ErrIndexNotReady = qa.ErrIndexNotReady

// ErrEmptySite is returned when no page of the sitemap had any text.
var ErrEmptySite = errors.New("site has no indexable text")

const defaultEmbedBatch = 64

// Crawler downloads the pages of a sitemap.
type Crawler interface {
	Crawl(ctx context.Context, sitemapURL string) ([]schema.Document, error)
}

// logRedirector is implemented by crawlers whose log output can be sent to
// a per-build logger.
type logRedirector interface {
	WithLogger(*slog.Logger) *crawler.Crawler
}

// Splitter cuts page documents into chunks.
type Splitter interface {
	SplitDocuments(docs []schema.Document) ([]schema.Document, error)
}

// Indexer builds the index of one site: crawl, split, embed, store.
type Indexer struct {
	Crawler    Crawler
	Splitter   Splitter
	Embedder   embeddings.Embedder
	Backend    vectorstore.Backend
	TopK       int
	EmbedBatch int
	// Timeout bounds each embedding call. Zero means no limit.
	Timeout time.Duration
	Logger  *slog.Logger
}

// New returns an indexer with the default embedding batch size.
func New(c Crawler, s Splitter, e embeddings.Embedder, backend vectorstore.Backend, topK int) *Indexer {
	return &Indexer{
		Crawler:    c,
		Splitter:   s,
		Embedder:   e,
		Backend:    backend,
		TopK:       topK,
		EmbedBatch: defaultEmbedBatch,
		Logger:     slog.Default(),
	}
}

// Build indexes the site behind sitemapURL and returns a retriever over it.
// Progress is logged to logger, or to ix.Logger when logger is nil.
func (ix *Indexer) Build(ctx context.Context, sitemapURL string, logger *slog.Logger) (*Retriever, error) {
	if err := crawler.ValidateSitemapURL(sitemapURL); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = ix.logger()
	}
	start := time.Now()

	c := ix.Crawler
	if r, ok := c.(logRedirector); ok {
		c = r.WithLogger(logger)
	}
	logger = logger.With("sitemap", sitemapURL)

	pages, err := c.Crawl(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("crawl failed: %w", err)
	}

	chunks, err := ix.Splitter.SplitDocuments(pages)
	if err != nil {
		return nil, fmt.Errorf("split failed: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptySite, sitemapURL)
	}
	logger.Info("Split site", "pages", len(pages), "chunks", len(chunks))

	vectors, err := ix.embed(ctx, chunks, logger)
	if err != nil {
		return nil, err
	}

	store, err := ix.Backend.NewStore(ctx, sitemapURL, len(vectors[0]))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{
			ID:        uuid.NewString(),
			Content:   c.PageContent,
			Metadata:  c.Metadata,
			Embedding: vectors[i],
		}
	}
	if err := store.AddDocuments(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	logger.Info("Site indexed", "chunks", len(docs), "duration", time.Since(start))
	r := NewRetriever(store, ix.Embedder, ix.TopK)
	r.Timeout = ix.Timeout
	return r, nil
}

func (ix *Indexer) embed(ctx context.Context, chunks []schema.Document, logger *slog.Logger) ([][]float32, error) {
	batch := ix.EmbedBatch
	if batch <= 0 {
		batch = defaultEmbedBatch
	}

	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.PageContent)
		}

		out, err := ix.embedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d failed: %w", start, end, err)
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(out), len(texts))
		}
		vectors = append(vectors, out...)
		logger.Debug("Embedded chunks", "from", start, "to", end)
	}
	return vectors, nil
}

func (ix *Indexer) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := callContext(ctx, ix.Timeout)
	defer cancel()
	return ix.Embedder.EmbedTexts(ctx, texts)
}

// callContext bounds one external call by timeout when it is positive.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (ix *Indexer) logger() *slog.Logger {
	if ix.Logger != nil {
		return ix.Logger
	}
	return slog.Default()
}
