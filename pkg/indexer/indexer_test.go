package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/site-gpt/pkg/crawler"
	"github.com/mikeboe/site-gpt/pkg/splitter"
	"github.com/mikeboe/site-gpt/pkg/vectorstore"
)

var vocabulary = []string{"pricing", "moon", "contact", "team"}

// keywordEmbedder counts vocabulary words; the last dimension keeps vectors non-zero.
type keywordEmbedder struct {
	batches int
	err     error
}

func (e *keywordEmbedder) EmbedText(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float32, len(vocabulary)+1)
	v[len(vocabulary)] = 0.1
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		for i, k := range vocabulary {
			if w == k {
				v[i]++
			}
		}
	}
	return v, nil
}

func (e *keywordEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedText(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/pricing": `<html><body><header>Menu pricing moon</header><p>Our pricing starts at $10 per month.</p></body></html>`,
		"/moon":    `<html><body><p>The moon is far away from the team.</p></body></html>`,
		"/contact": `<html><body><p>Contact us by email.</p><footer>pricing pricing</footer></body></html>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprintf(w, `<urlset><url><loc>http://%[1]s/pricing</loc></url><url><loc>http://%[1]s/moon</loc></url><url><loc>http://%[1]s/contact</loc></url></urlset>`, r.Host)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestIndexer(e *keywordEmbedder) *Indexer {
	c := crawler.New(crawler.Options{RequestsPerSecond: 1000, Concurrency: 2})
	s := splitter.NewRecursiveCharacterTextSplitter(1000, 0, nil)
	ix := New(c, s, e, vectorstore.MemoryBackend{}, 2)
	ix.EmbedBatch = 2
	return ix
}

func TestBuildAndRetrieve(t *testing.T) {
	srv := newSite(t)
	e := &keywordEmbedder{}
	ix := newTestIndexer(e)

	r, err := ix.Build(context.Background(), srv.URL+"/sitemap.xml", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, e.batches, "3 chunks in batches of 2")

	chunks, err := r.Retrieve(context.Background(), "What is your pricing?")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, srv.URL+"/pricing", chunks[0].Source)
	assert.Equal(t, "Our pricing starts at $10 per month.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Position)
	assert.GreaterOrEqual(t, chunks[0].Score, chunks[1].Score)

	chunks, err = r.Retrieve(context.Background(), "moon")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/moon", chunks[0].Source)
	assert.Equal(t, 1, chunks[0].Position)
}

func TestBuildErrors(t *testing.T) {
	srv := newSite(t)

	t.Run("not a sitemap url", func(t *testing.T) {
		_, err := newTestIndexer(&keywordEmbedder{}).Build(context.Background(), srv.URL+"/pricing", nil)
		assert.ErrorIs(t, err, crawler.ErrInvalidSitemap)
	})

	t.Run("missing sitemap", func(t *testing.T) {
		_, err := newTestIndexer(&keywordEmbedder{}).Build(context.Background(), srv.URL+"/missing.xml", nil)
		assert.ErrorIs(t, err, crawler.ErrFetch)
	})

	t.Run("embedding fails", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		_, err := newTestIndexer(&keywordEmbedder{err: boom}).Build(context.Background(), srv.URL+"/sitemap.xml", nil)
		assert.ErrorIs(t, err, boom)
	})
}

func TestRetrieverNotReady(t *testing.T) {
	var r *Retriever
	_, err := r.Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrIndexNotReady)

	_, err = (&Retriever{}).Retrieve(context.Background(), "q")
	assert.ErrorIs(t, err, ErrIndexNotReady)
}

func TestRetrieverTopKDefault(t *testing.T) {
	store := vectorstore.NewMemoryStore(len(vocabulary) + 1)
	e := &keywordEmbedder{}
	for i := 0; i < 6; i++ {
		v, _ := e.EmbedText(context.Background(), "team")
		require.NoError(t, store.AddDocuments(context.Background(), []vectorstore.Document{{
			ID:        fmt.Sprint(i),
			Content:   "team",
			Metadata:  map[string]any{"source": "https://x/team", "position": i},
			Embedding: v,
		}}))
	}

	r := NewRetriever(store, e, 0)
	chunks, err := r.Retrieve(context.Background(), "team")
	require.NoError(t, err)
	require.Len(t, chunks, DefaultTopK)
	for i, c := range chunks {
		assert.Equal(t, i, c.Position, "ties keep insertion order")
	}
}

func TestBuildLogsToGivenLogger(t *testing.T) {
	srv := newSite(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := newTestIndexer(&keywordEmbedder{}).Build(context.Background(), srv.URL+"/sitemap.xml", logger)
	require.NoError(t, err)

	logs := buf.String()
	for _, msg := range []string{"Fetched sitemap", "Starting crawl", "Crawl complete", "Split site", "Embedded chunks", "Site indexed"} {
		assert.Contains(t, logs, msg)
	}
}

// hangingEmbedder blocks until its context ends.
type hangingEmbedder struct{}

func (hangingEmbedder) EmbedText(ctx context.Context, _ string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingEmbedder) EmbedTexts(ctx context.Context, _ []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEmbeddingCallsTimeOut(t *testing.T) {
	t.Run("retrieve", func(t *testing.T) {
		r := NewRetriever(vectorstore.NewMemoryStore(2), hangingEmbedder{}, 2)
		r.Timeout = 20 * time.Millisecond

		_, err := r.Retrieve(context.Background(), "q")
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		_, err = r.WithTopK(1).Retrieve(context.Background(), "q")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("build", func(t *testing.T) {
		srv := newSite(t)
		c := crawler.New(crawler.Options{RequestsPerSecond: 1000, Concurrency: 2})
		ix := New(c, splitter.NewRecursiveCharacterTextSplitter(1000, 0, nil), hangingEmbedder{}, vectorstore.MemoryBackend{}, 2)
		ix.Timeout = 20 * time.Millisecond

		_, err := ix.Build(context.Background(), srv.URL+"/sitemap.xml", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("built retriever inherits timeout", func(t *testing.T) {
		srv := newSite(t)
		ix := newTestIndexer(&keywordEmbedder{})
		ix.Timeout = time.Second

		r, err := ix.Build(context.Background(), srv.URL+"/sitemap.xml", nil)
		require.NoError(t, err)
		assert.Equal(t, time.Second, r.Timeout)
	})
}
