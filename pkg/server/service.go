package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/site-gpt/pkg/crawler"
	"github.com/mikeboe/site-gpt/pkg/indexer"
	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/session"
)

var (
	// ErrJobNotFound is returned for unknown index job ids.
	ErrJobNotFound = errors.New("index job not found")
	// ErrIndexFailed is returned when asking about a site whose last index
	// job failed. It wraps the job's error.
	ErrIndexFailed = errors.New("site indexing failed")
)

type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusRunning JobStatus = "running"
	StatusReady   JobStatus = "ready"
	StatusFailed  JobStatus = "failed"
)

// Service is the application layer shared by the HTTP API, the MCP tools and
// the CLI.
type Service struct {
	Indexes  *indexer.Cache
	Pipeline *qa.Pipeline
	Sessions *session.Store
	Logger   *slog.Logger

	mu    sync.RWMutex
	jobs  map[uuid.UUID]*Job
	byURL map[string]*Job
	wg    sync.WaitGroup
}

func NewService(indexes *indexer.Cache, pipeline *qa.Pipeline, sessions *session.Store) *Service {
	return &Service{
		Indexes:  indexes,
		Pipeline: pipeline,
		Sessions: sessions,
		Logger:   slog.Default(),
		jobs:     make(map[uuid.UUID]*Job),
		byURL:    make(map[string]*Job),
	}
}

// Job tracks the background indexing of one site.
type Job struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	logs *jobLog
	err  error
}

// IndexSite starts indexing url in the background. A site that is already
// indexed or being indexed returns its existing job; a failed one is retried.
func (s *Service) IndexSite(url string) (Job, error) {
	if err := crawler.ValidateSitemapURL(url); err != nil {
		return Job{}, err
	}

	s.mu.Lock()
	if job, ok := s.byURL[url]; ok && job.Status != StatusFailed {
		out := *job
		s.mu.Unlock()
		return out, nil
	}
	now := time.Now()
	job := &Job{
		ID:        uuid.New(),
		URL:       url,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		logs:      &jobLog{},
	}
	s.jobs[job.ID] = job
	s.byURL[url] = job
	out := *job
	s.mu.Unlock()

	// Start background worker
	s.wg.Add(1)
	go s.runWorker(job)

	return out, nil
}

func (s *Service) GetJob(id uuid.UUID) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return *job, nil
}

// ListJobs returns the index jobs, newest first.
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	return jobs
}

func (s *Service) GetJobLogs(id uuid.UUID) ([]LogEntry, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.logs.snapshot(), nil
}

// Wait blocks until every background index job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) runWorker(job *Job) {
	defer s.wg.Done()
	ctx := context.Background()

	s.setStatus(job, StatusRunning, nil)

	jobLogger := slog.New(NewJobLogHandler(job.logs, s.logger().Handler())).
		With("job_id", job.ID.String(), "url", job.URL)
	jobLogger.Info("Indexing site")
	start := time.Now()

	if _, err := s.Indexes.Load(ctx, job.URL, jobLogger); err != nil {
		s.failJob(job, jobLogger, err)
		return
	}

	s.setStatus(job, StatusReady, nil)
	jobLogger.Info("Site ready", "duration", time.Since(start).String())
}

func (s *Service) failJob(job *Job, logger *slog.Logger, err error) {
	logger.Error("Indexing failed", "error", err)
	s.setStatus(job, StatusFailed, err)
}

func (s *Service) setStatus(job *Job, status JobStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = status
	job.err = err
	job.Error = ""
	if err != nil {
		job.Error = fmt.Sprintf("Indexing failed: %v", err)
	}
	job.UpdatedAt = time.Now()
}

// indexFailure returns the error of url's index job if that job failed.
func (s *Service) indexFailure(url string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.byURL[url]
	if !ok || job.Status != StatusFailed {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrIndexFailed, job.err)
}

// CreateSession opens a session on url and starts indexing it if needed.
func (s *Service) CreateSession(url string) (*session.Session, Job, error) {
	job, err := s.IndexSite(url)
	if err != nil {
		return nil, Job{}, err
	}
	return s.Sessions.Create(url), job, nil
}

// ChangeSite points session id at url. Switching sites clears the history.
func (s *Service) ChangeSite(id uuid.UUID, url string) (*session.Session, Job, error) {
	sess, err := s.Sessions.Get(id)
	if err != nil {
		return nil, Job{}, err
	}
	job, err := s.IndexSite(url)
	if err != nil {
		return nil, Job{}, err
	}
	if sess.SetSite(url) {
		s.logger().Info("Session switched site, history cleared", "session_id", id.String(), "url", url)
	}
	return sess, job, nil
}

// LoadSite indexes url synchronously and opens a session on it.
func (s *Service) LoadSite(ctx context.Context, url string) (*session.Session, error) {
	if err := crawler.ValidateSitemapURL(url); err != nil {
		return nil, err
	}
	if _, err := s.Indexes.Load(ctx, url, s.logger()); err != nil {
		return nil, err
	}
	return s.Sessions.Create(url), nil
}

// Ask answers question in session id. It fails with qa.ErrIndexNotReady while
// the session's site is still being indexed, and with ErrIndexFailed once
// indexing has failed.
func (s *Service) Ask(ctx context.Context, id uuid.UUID, question string) (*qa.Result, error) {
	sess, err := s.Sessions.Get(id)
	if err != nil {
		return nil, err
	}

	var retriever qa.Retriever
	if r, err := s.Indexes.Get(sess.SiteURL()); err == nil {
		retriever = r
	}
	res, err := s.Pipeline.Ask(ctx, retriever, sess.History, question)
	if errors.Is(err, qa.ErrIndexNotReady) {
		if ferr := s.indexFailure(sess.SiteURL()); ferr != nil {
			return nil, ferr
		}
	}
	return res, err
}

// Search returns the indexed chunks of the session's site closest to query.
func (s *Service) Search(ctx context.Context, id uuid.UUID, query string, topK int) ([]qa.Chunk, error) {
	sess, err := s.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	r, err := s.Indexes.Get(sess.SiteURL())
	if err != nil {
		if ferr := s.indexFailure(sess.SiteURL()); ferr != nil {
			return nil, ferr
		}
		return nil, err
	}
	s.logger().Info("Search content", "query", query, "topK", topK, "url", sess.SiteURL())
	return r.WithTopK(topK).Retrieve(ctx, query)
}

func (s *Service) History(id uuid.UUID) ([]qa.QueryRecord, error) {
	sess, err := s.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.History.Records(), nil
}

func (s *Service) ResetHistory(id uuid.UUID) error {
	return s.Sessions.ResetHistory(id)
}

func (s *Service) DeleteSession(id uuid.UUID) error {
	return s.Sessions.Delete(id)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
