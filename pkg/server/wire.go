package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/site-gpt/pkg/clients"
	"github.com/mikeboe/site-gpt/pkg/config"
	"github.com/mikeboe/site-gpt/pkg/crawler"
	"github.com/mikeboe/site-gpt/pkg/database"
	"github.com/mikeboe/site-gpt/pkg/embeddings"
	"github.com/mikeboe/site-gpt/pkg/indexer"
	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/session"
	"github.com/mikeboe/site-gpt/pkg/splitter"
	"github.com/mikeboe/site-gpt/pkg/vectorstore"
)

// NewBackend opens the vector backend named by cfg.VectorBackend. The
// returned func releases it.
func NewBackend(ctx context.Context, cfg *config.Config) (vectorstore.Backend, func(), error) {
	switch cfg.VectorBackend {
	case "", "memory":
		return vectorstore.MemoryBackend{}, func() {}, nil
	case "pgvector":
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureVectorExtension(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return &vectorstore.PGVectorBackend{DB: db}, db.Close, nil
	case "chroma":
		backend, err := vectorstore.NewChromaBackend(cfg.ChromaURL)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() {
			if err := backend.Close(); err != nil {
				slog.Warn("Failed to close chroma client", "error", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// NewFromConfig wires the full assistant: LLM, embedder, crawler, splitter,
// vector backend, index cache, pipeline and session store.
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Service, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	llm, err := clients.NewLLM(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create llm: %w", err)
	}
	embedder, err := embeddings.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	backend, closeBackend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector backend: %w", err)
	}

	c := crawler.New(crawler.Options{
		RequestsPerSecond: cfg.CrawlRPS,
		Concurrency:       cfg.CrawlConcurrency,
		MaxPages:          cfg.MaxPages,
		Timeout:           cfg.CallTimeout,
	})
	s := splitter.NewTokenTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	ix := indexer.New(c, s, embedder, backend, cfg.TopK)
	ix.Timeout = cfg.CallTimeout

	pipeline := qa.NewLLMPipeline(llm, qa.Options{
		Temperature: cfg.Temperature,
		Timeout:     cfg.CallTimeout,
		Workers:     cfg.AnswerWorkers,
	})

	svc := NewService(indexer.NewCache(ix), pipeline, session.NewStore())
	slog.Info("Assistant ready", "provider", cfg.Provider, "model", cfg.ChatModel, "vector_backend", cfg.VectorBackend)
	return svc, closeBackend, nil
}
