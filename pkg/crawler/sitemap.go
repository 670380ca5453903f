package crawler

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

var (
	// ErrInvalidSitemap is returned when the URL is not a sitemap reference or
	// the fetched document is not a sitemap.
	ErrInvalidSitemap = errors.New("invalid sitemap")
	// ErrFetch is returned when a sitemap or page cannot be downloaded.
	ErrFetch = errors.New("fetch failed")
)

const (
	maxSitemapBytes = 10 << 20
	maxSitemapDepth = 3
)

// SitemapEntry is a <url> or <sitemap> element.
type SitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// SitemapDocument holds either a <urlset> or a <sitemapindex>.
type SitemapDocument struct {
	XMLName  xml.Name
	URLs     []SitemapEntry `xml:"url"`
	Sitemaps []SitemapEntry `xml:"sitemap"`
}

// IsIndex reports whether the document is a sitemap index.
func (d *SitemapDocument) IsIndex() bool {
	return d.XMLName.Local == "sitemapindex"
}

// ValidateSitemapURL rejects URLs that do not look like a sitemap before any
// network work happens.
func ValidateSitemapURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: please write down a sitemap URL", ErrInvalidSitemap)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidSitemap, raw)
	}
	if !strings.Contains(raw, ".xml") {
		return fmt.Errorf("%w: please write down a sitemap URL (got %q)", ErrInvalidSitemap, raw)
	}
	return nil
}

// ParseSitemap decodes a sitemap or sitemap index.
func ParseSitemap(r io.Reader) (*SitemapDocument, error) {
	var doc SitemapDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSitemap, err)
	}
	switch doc.XMLName.Local {
	case "urlset", "sitemapindex":
		return &doc, nil
	default:
		return nil, fmt.Errorf("%w: unexpected root element <%s>", ErrInvalidSitemap, doc.XMLName.Local)
	}
}

// FetchSitemap downloads the sitemap at sitemapURL and returns the page URLs
// it lists, following nested sitemap indexes. Order follows the documents and
// duplicates are dropped.
func (c *Crawler) FetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	seen := make(map[string]bool)
	var pages []string
	if err := c.collectSitemap(ctx, sitemapURL, 0, seen, &pages); err != nil {
		return nil, err
	}
	c.Logger.Info("Fetched sitemap", "url", sitemapURL, "pages", len(pages))
	return pages, nil
}

func (c *Crawler) collectSitemap(ctx context.Context, sitemapURL string, depth int, seen map[string]bool, pages *[]string) error {
	if depth >= maxSitemapDepth {
		c.Logger.Warn("Skipping nested sitemap, too deep", "url", sitemapURL, "depth", depth)
		return nil
	}

	body, err := c.get(ctx, sitemapURL, maxSitemapBytes)
	if err != nil {
		return err
	}
	defer body.Close()

	doc, err := ParseSitemap(body)
	if err != nil {
		return fmt.Errorf("%s: %w", sitemapURL, err)
	}

	if doc.IsIndex() {
		for _, sm := range doc.Sitemaps {
			loc := strings.TrimSpace(sm.Loc)
			if loc == "" || seen["sitemap:"+loc] {
				continue
			}
			seen["sitemap:"+loc] = true
			if err := c.collectSitemap(ctx, loc, depth+1, seen, pages); err != nil {
				return err
			}
		}
		return nil
	}

	for _, entry := range doc.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true
		*pages = append(*pages, loc)
	}
	return nil
}

// get performs a GET and returns the body, capped at limit bytes.
func (c *Crawler) get(ctx context.Context, rawURL string, limit int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s: status %d", ErrFetch, rawURL, resp.StatusCode)
	}

	return limitedBody{Reader: io.LimitReader(resp.Body, limit), Closer: resp.Body}, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}
