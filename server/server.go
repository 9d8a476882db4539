// Package server exposes the memory pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/aschepis/recalld/memory"
	"github.com/aschepis/recalld/store"
)

const (
	snapshotMessageLimit = 16
	snapshotFactLimit    = 20
	aggregateSummaryMax  = 3
)

// Server holds the HTTP surface and its dependencies.
type Server struct {
	echo   *echo.Echo
	store  *store.Store
	orch   *memory.Orchestrator
	logger zerolog.Logger
}

// New builds the echo server and registers all routes.
func New(st *store.Store, orch *memory.Orchestrator, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:   e,
		store:  st,
		orch:   orch,
		logger: logger.With().Str("component", "server").Logger(),
	}
	e.Use(s.requestLogger)

	e.GET("/healthz", s.handleHealth)
	api := e.Group("/api")
	api.POST("/chat", s.handleChat)
	api.GET("/memory/:user_id", s.handleMemorySnapshot)
	api.GET("/aggregate/:user_id", s.handleAggregate)

	return s
}

// Echo exposes the underlying router, mainly for tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		s.logger.Info().
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Int("status", c.Response().Status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
		return err
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	UserID    string  `json:"user_id"`
	SessionID *string `json:"session_id,omitempty"`
	Message   string  `json:"message"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	result, err := s.orch.HandleTurn(c.Request().Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", req.UserID).Msg("Chat turn failed")
		return echo.NewHTTPError(http.StatusBadGateway, "chat turn failed")
	}
	return c.JSON(http.StatusOK, result)
}

// MemorySnapshot is the body of GET /api/memory/:user_id.
type MemorySnapshot struct {
	UserID          string          `json:"user_id"`
	Messages        []store.Message `json:"messages"`
	SessionSummary  *store.Summary  `json:"session_summary,omitempty"`
	LifetimeSummary *store.Summary  `json:"lifetime_summary,omitempty"`
	RecentFacts     []string        `json:"recent_facts"`
}

func (s *Server) handleMemorySnapshot(c echo.Context) error {
	userID := c.Param("user_id")
	ctx := c.Request().Context()

	sessionID := c.QueryParam("session_id")
	var sessionFilter *string
	if sessionID != "" {
		sessionFilter = &sessionID
	}

	messages, err := s.store.LastNMessages(ctx, userID, sessionFilter, snapshotMessageLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load messages")
	}
	sessionSummary, err := s.store.LatestSummary(ctx, userID, store.ScopeSession, sessionFilter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load session summary")
	}
	lifetime, err := s.store.LatestSummary(ctx, userID, store.ScopeUser, nil)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load lifetime summary")
	}
	facts, err := s.store.LastNEpisodicFacts(ctx, userID, snapshotFactLimit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load facts")
	}

	return c.JSON(http.StatusOK, MemorySnapshot{
		UserID:          userID,
		Messages:        messages,
		SessionSummary:  sessionSummary,
		LifetimeSummary: lifetime,
		RecentFacts:     facts,
	})
}

// AggregateResponse is the body of GET /api/aggregate/:user_id.
type AggregateResponse struct {
	UserID          string                    `json:"user_id"`
	MessagesPerDay  []store.DailyMessageCount `json:"messages_per_day"`
	RecentSummaries []store.Summary           `json:"recent_summaries"`
}

func (s *Server) handleAggregate(c echo.Context) error {
	userID := c.Param("user_id")
	ctx := c.Request().Context()

	counts, err := s.store.DailyMessageCounts(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to aggregate messages")
	}
	summaries, err := s.store.AllSessionSummaries(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load summaries")
	}
	if len(summaries) > aggregateSummaryMax {
		summaries = summaries[:aggregateSummaryMax]
	}

	return c.JSON(http.StatusOK, AggregateResponse{
		UserID:          userID,
		MessagesPerDay:  counts,
		RecentSummaries: summaries,
	})
}
