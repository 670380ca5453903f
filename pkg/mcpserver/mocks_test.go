package mcpserver

import (
	"context"

	"github.com/google/uuid"

	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/session"
)

type mockAssistant struct {
	sessions *session.Store
	loadErr  error
	loaded   []string
	asked    []string
	topK     int
}

func newMockAssistant() *mockAssistant {
	return &mockAssistant{sessions: session.NewStore()}
}

func (m *mockAssistant) LoadSite(_ context.Context, url string) (*session.Session, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.loaded = append(m.loaded, url)
	return m.sessions.Create(url), nil
}

func (m *mockAssistant) Ask(_ context.Context, id uuid.UUID, question string) (*qa.Result, error) {
	sess, err := m.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	m.asked = append(m.asked, question)
	answer := "It costs $5."
	idx := sess.History.Append(qa.QueryRecord{Question: question, Answer: answer})
	return &qa.Result{Question: question, Answer: answer, MatchedIndex: -1, RecordIndex: idx}, nil
}

func (m *mockAssistant) Search(_ context.Context, id uuid.UUID, query string, topK int) ([]qa.Chunk, error) {
	if _, err := m.sessions.Get(id); err != nil {
		return nil, err
	}
	m.topK = topK
	return []qa.Chunk{
		{Text: "Pro costs $49.", Source: "https://example.com/pricing", Score: 0.9},
		{Text: "Contact sales.", Source: "https://example.com/contact", Score: 0.5},
	}, nil
}

func (m *mockAssistant) History(id uuid.UUID) ([]qa.QueryRecord, error) {
	sess, err := m.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.History.Records(), nil
}

func (m *mockAssistant) ResetHistory(id uuid.UUID) error {
	return m.sessions.ResetHistory(id)
}
