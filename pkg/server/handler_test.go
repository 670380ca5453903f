package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/site-gpt/pkg/indexer"
	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/session"
	"github.com/mikeboe/site-gpt/pkg/vectorstore"
)

const siteURL = "https://example.com/sitemap.xml"

type constEmbedder struct{}

func (constEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (e constEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.EmbedText(ctx, texts[i])
	}
	return out, nil
}

// gatedBuilder builds a one-chunk index once release is closed.
type gatedBuilder struct {
	release chan struct{}
	mu      sync.Mutex
	err     error
}

func (b *gatedBuilder) Build(ctx context.Context, url string, _ *slog.Logger) (*indexer.Retriever, error) {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	err := b.err
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	store := vectorstore.NewMemoryStore(2)
	err = store.AddDocuments(ctx, []vectorstore.Document{{
		Content:   "The Pro plan costs $49.",
		Metadata:  map[string]any{"source": "https://example.com/pricing", "position": 0},
		Embedding: []float32{1, 0},
	}})
	if err != nil {
		return nil, err
	}
	return indexer.NewRetriever(store, constEmbedder{}, 2), nil
}

// echoAnswerer answers with the chunk text.
type echoAnswerer struct{}

func (echoAnswerer) AnswerChunk(_ context.Context, _ string, chunk qa.Chunk) (qa.CandidateAnswer, error) {
	return qa.CandidateAnswer{Answer: chunk.Text, Score: 4}, nil
}

// exactJudge treats identical questions as repeats.
type exactJudge struct{}

func (exactJudge) Similarities(_ context.Context, question string, history []string) ([]float64, error) {
	out := make([]float64, len(history))
	for i, h := range history {
		if strings.EqualFold(h, question) {
			out[i] = 1
		}
	}
	return out, nil
}

func newTestService(b indexer.Builder) *Service {
	pipeline := &qa.Pipeline{
		Dedup:       qa.NewDeduplicator(exactJudge{}),
		Generator:   qa.NewAnswerGenerator(echoAnswerer{}, 1),
		Synthesizer: qa.TopScoreSynthesizer{},
	}
	return NewService(indexer.NewCache(b), pipeline, session.NewStore())
}

func newRouter(s *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(s, nil).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestSessionQuestionFlow(t *testing.T) {
	b := &gatedBuilder{release: make(chan struct{})}
	svc := newTestService(b)
	r := newRouter(svc)

	w := do(t, r, http.MethodPost, "/api/sessions", gin.H{"url": siteURL})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[sessionResponse](t, w)
	assert.Equal(t, siteURL, created.SiteURL)
	assert.Equal(t, StatusPending, created.Index.Status)
	path := "/api/sessions/" + created.ID.String()

	w = do(t, r, http.MethodPost, path+"/questions", gin.H{"question": "How much is Pro?"})
	assert.Equal(t, http.StatusConflict, w.Code, "index still building")

	close(b.release)
	svc.Wait()

	w = do(t, r, http.MethodPost, path+"/questions", gin.H{"question": "How much is Pro?"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[AnswerResponse](t, w)
	assert.Equal(t, "The Pro plan costs $49.\n\nSource: https://example.com/pricing", first.Answer)
	assert.Equal(t, "The Pro plan costs \\$49.\n\nSource: https://example.com/pricing", first.Markdown)
	assert.False(t, first.Cached)
	assert.Equal(t, -1, first.MatchedIndex)

	w = do(t, r, http.MethodPost, path+"/questions", gin.H{"question": "how much is pro?"})
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[AnswerResponse](t, w)
	assert.True(t, second.Cached)
	assert.Equal(t, 0, second.MatchedIndex)
	assert.Equal(t, first.Answer, second.Answer)

	w = do(t, r, http.MethodGet, path+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]qa.QueryRecord](t, w)
	require.Len(t, history, 2)
	assert.Equal(t, "how much is pro?", history[1].Question)

	w = do(t, r, http.MethodDelete, path+"/history", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, path+"/history", nil)
	assert.Empty(t, decode[[]qa.QueryRecord](t, w))

	w = do(t, r, http.MethodGet, "/api/sites/"+created.Index.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, StatusReady, decode[Job](t, w).Status)

	w = do(t, r, http.MethodGet, "/api/sites/"+created.Index.ID.String()+"/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]LogEntry](t, w)
	require.Len(t, logs, 2)
	assert.Equal(t, "Indexing site", logs[0].Message)
	assert.Equal(t, "Site ready", logs[1].Message)
	assert.Contains(t, string(logs[0].Metadata), siteURL)

	w = do(t, r, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChangeSiteClearsHistory(t *testing.T) {
	svc := newTestService(&gatedBuilder{})
	r := newRouter(svc)

	sess, _, err := svc.CreateSession(siteURL)
	require.NoError(t, err)
	svc.Wait()
	_, err = svc.Ask(context.Background(), sess.ID, "How much is Pro?")
	require.NoError(t, err)

	w := do(t, r, http.MethodPut, "/api/sessions/"+sess.ID.String(), gin.H{"url": siteURL})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, sess.History.Len())

	w = do(t, r, http.MethodPut, "/api/sessions/"+sess.ID.String(), gin.H{"url": "https://other.example.com/sitemap.xml"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, sess.History.Len())
	svc.Wait()
}

func TestIndexSiteReusesJob(t *testing.T) {
	svc := newTestService(&gatedBuilder{})
	r := newRouter(svc)

	w := do(t, r, http.MethodPost, "/api/sites", gin.H{"url": siteURL})
	require.Equal(t, http.StatusAccepted, w.Code)
	first := decode[Job](t, w)

	w = do(t, r, http.MethodPost, "/api/sites", gin.H{"url": siteURL})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, first.ID, decode[Job](t, w).ID)

	svc.Wait()
	w = do(t, r, http.MethodGet, "/api/sites", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]Job](t, w), 1)

	w = do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"builds":1`)
}

func TestFailedIndexJobIsRetried(t *testing.T) {
	b := &gatedBuilder{err: errors.New("sitemap unreachable")}
	svc := newTestService(b)

	job, err := svc.IndexSite(siteURL)
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "sitemap unreachable")

	logs, err := svc.GetJobLogs(job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "ERROR", logs[len(logs)-1].Level)

	b.mu.Lock()
	b.err = nil
	b.mu.Unlock()

	retry, err := svc.IndexSite(siteURL)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, retry.ID)
	svc.Wait()

	got, err = svc.GetJob(retry.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReady, got.Status)
}

func TestErrorStatuses(t *testing.T) {
	svc := newTestService(&gatedBuilder{})
	r := newRouter(svc)
	sess, _, err := svc.CreateSession(siteURL)
	require.NoError(t, err)
	svc.Wait()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"not a sitemap", http.MethodPost, "/api/sessions", gin.H{"url": "https://example.com/"}, http.StatusBadRequest},
		{"missing url", http.MethodPost, "/api/sites", gin.H{}, http.StatusBadRequest},
		{"bad uuid", http.MethodGet, "/api/sessions/nope", nil, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/" + uuid.NewString(), nil, http.StatusNotFound},
		{"unknown job", http.MethodGet, "/api/sites/" + uuid.NewString(), nil, http.StatusNotFound},
		{"empty question", http.MethodPost, "/api/sessions/" + sess.ID.String() + "/questions", gin.H{"question": "  "}, http.StatusBadRequest},
		{"question to unknown session", http.MethodPost, "/api/sessions/" + uuid.NewString() + "/questions", gin.H{"question": "q"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(qa.ErrNoCandidates))
	assert.Equal(t, http.StatusConflict, statusFor(qa.ErrIndexNotReady))
	assert.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("%w: %w", ErrIndexFailed, errors.New("dns"))))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestSearch(t *testing.T) {
	svc := newTestService(&gatedBuilder{})
	r := newRouter(svc)
	sess, _, err := svc.CreateSession(siteURL)
	require.NoError(t, err)
	svc.Wait()
	path := "/api/sessions/" + sess.ID.String() + "/search"

	w := do(t, r, http.MethodGet, path+"?q=pro&top_k=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	chunks := decode[[]qa.Chunk](t, w)
	require.Len(t, chunks, 1)
	assert.Equal(t, "https://example.com/pricing", chunks[0].Source)

	w = do(t, r, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, r, http.MethodGet, path+"?q=pro&top_k=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
