package transport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rpggio/rollcall/internal/domain/edit"
	"github.com/rpggio/rollcall/internal/domain/stats"
	"github.com/rpggio/rollcall/internal/insight"
	"github.com/rpggio/rollcall/internal/snapshot"
)

// StatsService is the local replica as seen by HTTP handlers.
type StatsService interface {
	Current() stats.Record
	Refresh(ctx context.Context) stats.Record
}

// EditService defines edit session operations needed by admin routes.
type EditService interface {
	Open() edit.View
	Get(id string) (edit.View, error)
	SetField(id, field string, raw any) (edit.View, error)
	Reset(id string) (edit.View, error)
	Publish(ctx context.Context, id string) (*edit.PublishResult, error)
	Close(id string) error
}

// InsightService produces narrative insights.
type InsightService interface {
	Insights(ctx context.Context, rec stats.Record) *insight.Insight
}

// Config wires HTTP handlers. Optional handlers that are nil are not mounted.
type Config struct {
	Stats    StatsService
	Edits    EditService
	Insights InsightService

	AdminSecret string
	BaseURL     string

	WebSocket http.Handler
	Metrics   http.Handler
	MCP       http.Handler

	Logger *slog.Logger
}

// Server holds handler dependencies.
type Server struct {
	stats    StatsService
	edits    EditService
	insights InsightService
	baseURL  string
	logger   *slog.Logger
}

// StatsResponse is the public form of a record.
type StatsResponse struct {
	Total       int        `json:"total"`
	Boys        int        `json:"boys"`
	Girls       int        `json:"girls"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Consistent  bool       `json:"consistent"`
}

// SnapshotResponse carries a share token for the current record.
type SnapshotResponse struct {
	Token    string `json:"token"`
	ShareURL string `json:"shareUrl,omitempty"`
}

// SetFieldRequest is the PATCH body for an edit session.
type SetFieldRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	srv := &Server{
		stats:    cfg.Stats,
		edits:    cfg.Edits,
		insights: cfg.Insights,
		baseURL:  cfg.BaseURL,
		logger:   logger,
	}

	r.Get("/health", srv.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", srv.handleStats)
		r.Get("/stats/snapshot", srv.handleSnapshot)
		r.Get("/insights", srv.handleInsights)

		if srv.edits != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(AdminMiddleware(cfg.AdminSecret))
				r.Post("/sessions", srv.handleOpenSession)
				r.Route("/sessions/{id}", func(r chi.Router) {
					r.Get("/", srv.handleGetSession)
					r.Patch("/", srv.handleSetField)
					r.Delete("/", srv.handleCloseSession)
					r.Post("/reset", srv.handleResetSession)
					r.Post("/publish", srv.handlePublish)
				})
			})
		}
	})

	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket)
	}
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
		r.Handle("/mcp/*", cfg.MCP)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("refresh") == "true" {
		s.stats.Refresh(r.Context())
	}

	// A token only shapes this response; the shared record changes through publish alone.
	rec := s.stats.Current()
	if token := q.Get(snapshot.QueryParam); token != "" {
		var err error
		rec, err = snapshot.Resolve(rec, token)
		if err != nil {
			s.logger.Debug("ignoring unreadable snapshot token", "error", err)
		}
	}

	WriteJSON(w, http.StatusOK, toStatsResponse(rec))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	token, err := snapshot.Encode(s.stats.Current())
	if err != nil {
		s.logger.Error("encoding snapshot", "error", err)
		WriteError(w, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	resp := SnapshotResponse{Token: token}
	if s.baseURL != "" {
		if resp.ShareURL, err = snapshot.ShareURL(s.baseURL, token); err != nil {
			s.logger.Warn("building share url", "error", err)
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	if s.insights == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	got := s.insights.Insights(r.Context(), s.stats.Current())
	if got == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, got)
}

func (s *Server) handleOpenSession(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusCreated, s.edits.Open())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.edits.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleSetField(w http.ResponseWriter, r *http.Request) {
	var req SetFieldRequest
	if err := DecodeJSON(r.Body, &req); err != nil {
		WriteError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}

	view, err := s.edits.SetField(chi.URLParam(r, "id"), req.Field, req.Value)
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.edits.Reset(chi.URLParam(r, "id"))
	if err != nil {
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	result, err := s.edits.Publish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.logger.Warn("publish failed", "error", err)
		WriteDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.edits.Close(chi.URLParam(r, "id")); err != nil {
		WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toStatsResponse(rec stats.Record) StatsResponse {
	out := StatsResponse{
		Total:      rec.Total,
		Boys:       rec.Boys,
		Girls:      rec.Girls,
		Consistent: rec.Consistent(),
	}
	if !rec.LastUpdated.IsZero() {
		ts := rec.LastUpdated.UTC()
		out.LastUpdated = &ts
	}
	return out
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()))
		})
	}
}
