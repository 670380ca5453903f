package indexer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Builder builds the retriever for a sitemap.
type Builder interface {
	Build(ctx context.Context, sitemapURL string, logger *slog.Logger) (*Retriever, error)
}

// Stats counts cache activity.
type Stats struct {
	Sites    int `json:"sites"`
	Builds   int `json:"builds"`
	Failures int `json:"failures"`
	Hits     int `json:"hits"`
}

// Cache keeps one index per sitemap URL for the life of the process.
// Concurrent loads of the same URL share a single build. Failed builds are
// not remembered, so the next load retries.
//
// A build is detached from the cancellation of the caller that started it,
// so callers sharing it are not failed by one of them going away. BuildTimeout
// bounds it instead.
type Cache struct {
	Builder      Builder
	BuildTimeout time.Duration
	Logger       *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*Retriever
	stats   Stats
}

func NewCache(b Builder) *Cache {
	return &Cache{Builder: b, Logger: slog.Default(), entries: make(map[string]*Retriever)}
}

// Load returns the index for sitemapURL, building it on first use. Build
// progress goes to logger when this call starts the build. Load returns early
// with ctx's error if ctx ends first; the build itself carries on.
func (c *Cache) Load(ctx context.Context, sitemapURL string, logger *slog.Logger) (*Retriever, error) {
	if r, ok := c.lookup(sitemapURL, true); ok {
		return r, nil
	}
	if logger == nil {
		logger = c.logger()
	}

	ch := c.group.DoChan(sitemapURL, func() (any, error) {
		if r, ok := c.lookup(sitemapURL, false); ok {
			return r, nil
		}
		bctx, cancel := callContext(context.WithoutCancel(ctx), c.BuildTimeout)
		defer cancel()
		r, err := c.Builder.Build(bctx, sitemapURL, logger)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.stats.Builds++
		if err != nil {
			c.stats.Failures++
			return nil, err
		}
		if c.entries == nil {
			c.entries = make(map[string]*Retriever)
		}
		c.entries[sitemapURL] = r
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			logger.Error("Index build failed", "sitemap", sitemapURL, "error", res.Err)
			return nil, res.Err
		}
		if res.Shared {
			logger.Debug("Joined in-flight index build", "sitemap", sitemapURL)
		}
		return res.Val.(*Retriever), nil
	}
}

// Get returns an already built index without building.
func (c *Cache) Get(sitemapURL string) (*Retriever, error) {
	if r, ok := c.lookup(sitemapURL, false); ok {
		return r, nil
	}
	return nil, ErrIndexNotReady
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Sites = len(c.entries)
	return s
}

func (c *Cache) lookup(sitemapURL string, countHit bool) (*Retriever, bool) {
	if countHit {
		c.mu.Lock()
		defer c.mu.Unlock()
	} else {
		c.mu.RLock()
		defer c.mu.RUnlock()
	}
	r, ok := c.entries[sitemapURL]
	if ok && countHit {
		c.stats.Hits++
	}
	return r, ok
}

func (c *Cache) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
