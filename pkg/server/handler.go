package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikeboe/site-gpt/pkg/crawler"
	"github.com/mikeboe/site-gpt/pkg/qa"
	"github.com/mikeboe/site-gpt/pkg/session"
)

type Handler struct {
	Service *Service
	// MCP serves the streamable MCP endpoint when set.
	MCP http.Handler
}

func NewHandler(s *Service, mcp http.Handler) *Handler {
	return &Handler{Service: s, MCP: mcp}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.MCP != nil {
		r.Any("/mcp", gin.WrapH(h.MCP))
	}

	api := r.Group("/api")
	{
		api.POST("/sites", h.indexSite)
		api.GET("/sites", h.listJobs)
		api.GET("/sites/:id", h.getJob)
		api.GET("/sites/:id/logs", h.getJobLogs)

		api.POST("/sessions", h.createSession)
		api.GET("/sessions/:id", h.getSession)
		api.PUT("/sessions/:id", h.changeSite)
		api.DELETE("/sessions/:id", h.deleteSession)
		api.POST("/sessions/:id/questions", h.ask)
		api.GET("/sessions/:id/search", h.search)
		api.GET("/sessions/:id/history", h.getHistory)
		api.DELETE("/sessions/:id/history", h.resetHistory)
	}
}

type siteRequest struct {
	URL string `json:"url" binding:"required"`
}

type questionRequest struct {
	Question string `json:"question"`
}

// AnswerResponse is returned for every answered question.
type AnswerResponse struct {
	Question     string               `json:"question"`
	Answer       string               `json:"answer"`
	Markdown     string               `json:"markdown"`
	Cached       bool                 `json:"cached"`
	MatchedIndex int                  `json:"matched_index"`
	RecordIndex  int                  `json:"record_index"`
	Candidates   []qa.CandidateAnswer `json:"candidates,omitempty"`
	FailedChunks int                  `json:"failed_chunks"`
}

type sessionResponse struct {
	session.Snapshot
	Index Job `json:"index"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "indexes": h.Service.Indexes.Stats()})
}

func (h *Handler) indexSite(c *gin.Context) {
	var req siteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.Service.IndexSite(req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.Service.ListJobs())
}

func (h *Handler) getJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := h.Service.GetJob(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (h *Handler) getJobLogs(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	logs, err := h.Service.GetJobLogs(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *Handler) createSession(c *gin.Context) {
	var req siteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, job, err := h.Service.CreateSession(req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{Snapshot: sess.Snapshot(), Index: job})
}

func (h *Handler) getSession(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sess, err := h.Service.Sessions.Get(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *Handler) changeSite(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req siteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, job, err := h.Service.ChangeSite(id, req.URL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{Snapshot: sess.Snapshot(), Index: job})
}

func (h *Handler) deleteSession(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.Service.DeleteSession(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ask(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Service.Ask(c.Request.Context(), id, req.Question)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, AnswerResponse{
		Question:     res.Question,
		Answer:       res.Answer,
		Markdown:     res.Markdown(),
		Cached:       res.Cached,
		MatchedIndex: res.MatchedIndex,
		RecordIndex:  res.RecordIndex,
		Candidates:   res.Candidates,
		FailedChunks: res.Failed,
	})
}

func (h *Handler) search(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing q"})
		return
	}
	topK, err := strconv.Atoi(c.DefaultQuery("top_k", "5"))
	if err != nil || topK <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a positive integer"})
		return
	}

	chunks, err := h.Service.Search(c.Request.Context(), id, query, topK)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, chunks)
}

func (h *Handler) getHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	records, err := h.Service.History(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) resetHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.Service.ResetHistory(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, crawler.ErrInvalidSitemap), errors.Is(err, qa.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotFound), errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, qa.ErrIndexNotReady):
		return http.StatusConflict
	case errors.Is(err, qa.ErrNoCandidates), errors.Is(err, crawler.ErrFetch), errors.Is(err, ErrIndexFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
