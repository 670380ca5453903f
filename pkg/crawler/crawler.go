// Package crawler downloads every page listed in a sitemap at a bounded rate.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mikeboe/site-gpt/pkg/extractor"
)

const (
	// DefaultRequestsPerSecond is the crawl rate used when none is configured.
	DefaultRequestsPerSecond = 5
	maxPageBytes             = 5 << 20
)

// Options configures a Crawler.
type Options struct {
	RequestsPerSecond float64
	Concurrency       int
	MaxPages          int
	Timeout           time.Duration
}

// Crawler fetches sitemap pages through a shared rate limiter.
type Crawler struct {
	Client      *http.Client
	Limiter     *rate.Limiter
	Concurrency int
	MaxPages    int
	UserAgent   string
	Logger      *slog.Logger
}

// New creates a crawler. Zero options fall back to 5 requests per second,
// 4 concurrent fetches and a 30 second request timeout.
func New(opts Options) *Crawler {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &Crawler{
		Client:      &http.Client{Timeout: opts.Timeout},
		Limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
		Concurrency: opts.Concurrency,
		MaxPages:    opts.MaxPages,
		UserAgent:   "site-gpt/1.0 (+sitemap crawler)",
		Logger:      slog.Default(),
	}
}

// Crawl fetches every page of the sitemap and returns one document per page
// with non-empty text, in sitemap order. Any failed page aborts the crawl.
func (c *Crawler) Crawl(ctx context.Context, sitemapURL string) ([]schema.Document, error) {
	pages, err := c.FetchSitemap(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: %s lists no pages", ErrInvalidSitemap, sitemapURL)
	}
	if c.MaxPages > 0 && len(pages) > c.MaxPages {
		c.Logger.Warn("Truncating crawl", "pages", len(pages), "max", c.MaxPages)
		pages = pages[:c.MaxPages]
	}

	c.Logger.Info("Starting crawl", "sitemap", sitemapURL, "pages", len(pages), "rps", float64(c.Limiter.Limit()))

	results := make([]*schema.Document, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Concurrency)

	for i, page := range pages {
		g.Go(func() error {
			if err := c.Limiter.Wait(gctx); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrFetch, page, err)
			}
			doc, err := c.fetchPage(gctx, page, i)
			if err != nil {
				return err
			}
			results[i] = doc
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		c.Logger.Error("Crawl failed", "sitemap", sitemapURL, "error", err)
		return nil, err
	}

	docs := make([]schema.Document, 0, len(results))
	for _, doc := range results {
		if doc != nil {
			docs = append(docs, *doc)
		}
	}

	c.Logger.Info("Crawl complete", "sitemap", sitemapURL, "documents", len(docs))
	return docs, nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string, position int) (*schema.Document, error) {
	body, err := c.get(ctx, pageURL, maxPageBytes)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	html, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, pageURL, err)
	}

	title := extractor.Title(html)
	text := extractor.Extract(html)
	if text == "" {
		c.Logger.Debug("Skipping empty page", "url", pageURL)
		return nil, nil
	}

	c.Logger.Debug("Fetched page", "url", pageURL, "chars", len(text))
	return &schema.Document{
		PageContent: text,
		Metadata: map[string]any{
			"source": pageURL,
			"title":  title,
			"page":   position,
		},
	}, nil
}

// WithLogger returns a copy of c that logs to l. The copy shares the client
// and the rate limiter with c.
func (c *Crawler) WithLogger(l *slog.Logger) *Crawler {
	cp := *c
	cp.Logger = l
	return &cp
}
