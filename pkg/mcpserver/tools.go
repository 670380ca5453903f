package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// LoadSiteInput is the input schema for the load_site tool.
type LoadSiteInput struct {
	URL string `json:"url" jsonschema:"the sitemap URL of the website, ending in .xml"`
}

// SessionOutput identifies a session and its site.
type SessionOutput struct {
	SessionID string `json:"session_id"`
	SiteURL   string `json:"site_url"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"session returned by load_site; omit to start a new session on url"`
	URL       string `json:"url,omitempty" jsonschema:"sitemap URL used when no session_id is given"`
	Question  string `json:"question" jsonschema:"the question about the website"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	SessionID    string `json:"session_id"`
	Answer       string `json:"answer"`
	Markdown     string `json:"markdown"`
	Cached       bool   `json:"cached"`
	MatchedIndex int    `json:"matched_index"`
}

// SearchInput is the input schema for the search_site tool.
type SearchInput struct {
	SessionID string `json:"session_id" jsonschema:"the session id"`
	Query     string `json:"query" jsonschema:"the search query"`
	TopK      int    `json:"top_k,omitempty" jsonschema:"number of chunks to return (default 5)"`
}

// SearchOutput is the output schema for the search_site tool.
type SearchOutput struct {
	Results string `json:"results"`
	Count   int    `json:"count"`
}

// SessionInput names an existing session.
type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"the session id"`
}

// HistoryOutput lists the questions asked in a session.
type HistoryOutput struct {
	Records []HistoryRecord `json:"records"`
	Count   int             `json:"count"`
}

// HistoryRecord is one question and its answer.
type HistoryRecord struct {
	Index    int    `json:"index"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ResetOutput confirms a history reset.
type ResetOutput struct {
	SessionID string `json:"session_id"`
	Cleared   bool   `json:"cleared"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "load_site",
		Description: "Crawl and index a website from its sitemap and open a question session on it",
	}, s.handleLoadSite)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Ask a question about an indexed website; answers cite the pages they came from",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_site",
		Description: "Semantic search over the indexed pages of a session's website",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "history",
		Description: "List the questions and answers of a session",
	}, s.handleHistory)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "reset_history",
		Description: "Forget the questions asked in a session",
	}, s.handleResetHistory)
}

func (s *Server) handleLoadSite(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input LoadSiteInput,
) (*mcp.CallToolResult, SessionOutput, error) {
	sess, err := s.assistant.LoadSite(ctx, input.URL)
	if err != nil {
		return nil, SessionOutput{}, err
	}
	return nil, SessionOutput{SessionID: sess.ID.String(), SiteURL: sess.SiteURL()}, nil
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	var id uuid.UUID
	switch {
	case input.SessionID != "":
		parsed, err := parseSessionID(input.SessionID)
		if err != nil {
			return nil, AskOutput{}, err
		}
		id = parsed
	case input.URL != "":
		sess, err := s.assistant.LoadSite(ctx, input.URL)
		if err != nil {
			return nil, AskOutput{}, err
		}
		id = sess.ID
	default:
		return nil, AskOutput{}, ErrMissingTarget
	}

	res, err := s.assistant.Ask(ctx, id, input.Question)
	if err != nil {
		return nil, AskOutput{}, err
	}
	return nil, AskOutput{
		SessionID:    id.String(),
		Answer:       res.Answer,
		Markdown:     res.Markdown(),
		Cached:       res.Cached,
		MatchedIndex: res.MatchedIndex,
	}, nil
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	id, err := parseSessionID(input.SessionID)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	topK := input.TopK
	if topK <= 0 {
		topK = 5
	}

	chunks, err := s.assistant.Search(ctx, id, input.Query, topK)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	formatted := make([]string, len(chunks))
	for i, c := range chunks {
		formatted[i] = fmt.Sprintf("[Source]: %s\n[Content]: %s\n[score]: %.3f", c.Source, c.Text, c.Score)
	}
	return nil, SearchOutput{Results: strings.Join(formatted, "\n\n"), Count: len(chunks)}, nil
}

func (s *Server) handleHistory(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, HistoryOutput, error) {
	id, err := parseSessionID(input.SessionID)
	if err != nil {
		return nil, HistoryOutput{}, err
	}
	records, err := s.assistant.History(id)
	if err != nil {
		return nil, HistoryOutput{}, err
	}

	out := HistoryOutput{Records: make([]HistoryRecord, len(records)), Count: len(records)}
	for i, rec := range records {
		out.Records[i] = HistoryRecord{Index: i, Question: rec.Question, Answer: rec.Answer}
	}
	return nil, out, nil
}

func (s *Server) handleResetHistory(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input SessionInput,
) (*mcp.CallToolResult, ResetOutput, error) {
	id, err := parseSessionID(input.SessionID)
	if err != nil {
		return nil, ResetOutput{}, err
	}
	if err := s.assistant.ResetHistory(id); err != nil {
		return nil, ResetOutput{}, err
	}
	return nil, ResetOutput{SessionID: id.String(), Cleared: true}, nil
}

func parseSessionID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid session_id %q: %w", raw, err)
	}
	return id, nil
}
