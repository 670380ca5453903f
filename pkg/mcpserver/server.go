// Package mcpserver exposes the site assistant as MCP tools.
package mcpserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/session"
)

// Version is the MCP server version.
const Version = "1.0.0"

var (
	// ErrMissingAssistant is returned when no assistant is provided.
	ErrMissingAssistant = errors.New("mcp: assistant is required")
	// ErrMissingTarget is returned by ask when neither a session nor a site is given.
	ErrMissingTarget = errors.New("mcp: session_id or url is required")
)

// Assistant is the application surface the tools drive.
type Assistant interface {
	LoadSite(ctx context.Context, url string) (*session.Session, error)
	Ask(ctx context.Context, id uuid.UUID, question string) (*qa.Result, error)
	Search(ctx context.Context, id uuid.UUID, query string, topK int) ([]qa.Chunk, error)
	History(id uuid.UUID) ([]qa.QueryRecord, error)
	ResetHistory(id uuid.UUID) error
}

// Server is the MCP server for the site assistant.
type Server struct {
	assistant Assistant
	server    *mcp.Server
}

func NewServer(assistant Assistant) (*Server, error) {
	if assistant == nil {
		return nil, ErrMissingAssistant
	}

	impl := &mcp.Implementation{
		Name:    "site-gpt",
		Version: Version,
	}

	s := &Server{
		assistant: assistant,
		server:    mcp.NewServer(impl, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP handler for mounting under /mcp.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
