// Package session keeps the per-user question history for a loaded site.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/site-gpt/pkg/qa"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Session binds a site to its question history.
type Session struct {
	ID        uuid.UUID   `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	History   *qa.History `json:"-"`

	mu      sync.RWMutex
	siteURL string
}

// SiteURL returns the sitemap URL currently loaded in the session.
func (s *Session) SiteURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.siteURL
}

// SetSite loads siteURL into the session. Switching to a different site
// clears the history; reloading the same site keeps it.
func (s *Session) SetSite(siteURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.siteURL == siteURL {
		return false
	}
	s.siteURL = siteURL
	s.History.Reset()
	return true
}

// Snapshot is the serialisable view of a session.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	SiteURL   string    `json:"site_url"`
	Questions int       `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:        s.ID,
		SiteURL:   s.SiteURL(),
		Questions: s.History.Len(),
		CreatedAt: s.CreatedAt,
	}
}

// Store is an in-memory session registry.
type Store struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{sessions: make(map[uuid.UUID]*Session), now: time.Now}
}

// Create starts an empty session on siteURL.
func (st *Store) Create(siteURL string) *Session {
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: st.now(),
		History:   qa.NewHistory(),
		siteURL:   siteURL,
	}
	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()
	return s
}

func (st *Store) Get(id uuid.UUID) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (st *Store) Delete(id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(st.sessions, id)
	return nil
}

// ResetHistory clears the history of session id.
func (st *Store) ResetHistory(id uuid.UUID) error {
	s, err := st.Get(id)
	if err != nil {
		return err
	}
	s.History.Reset()
	return nil
}

// List returns all sessions, newest first.
func (st *Store) List() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
