// Package api exposes DevSentry's status HTTP surface: health, persisted
// scan history, and an on-demand scan trigger.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ptnguyen/devsentry/internal/config"
	"github.com/ptnguyen/devsentry/internal/monitor"
	"github.com/ptnguyen/devsentry/internal/storage"
)

// SourceOpener opens a fresh event source for an on-demand scan.
type SourceOpener = monitor.SourceOpener

// Server serves the status API.
type Server struct {
	cfg        config.ServerConfig
	store      *storage.Store
	runner     *monitor.Runner
	openSource SourceOpener
	logger     *zap.Logger
	version    string
}

// New creates a status API server.
func New(cfg config.ServerConfig, store *storage.Store, runner *monitor.Runner, openSource SourceOpener, logger *zap.Logger, version string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		store:      store,
		runner:     runner,
		openSource: openSource,
		logger:     logger,
		version:    version,
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)
		r.Post("/scan", s.handleScan)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("status API listening", zap.String("addr", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": s.version,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	sessions, err := s.store.RecentSessions(limit)
	if err != nil {
		s.logger.Error("listing sessions failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if sessions == nil {
		sessions = []storage.SessionRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
		return
	}
	row, err := s.store.Session(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	if err != nil {
		s.logger.Error("reading session failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
		return
	}
	if _, err := s.store.Session(id); errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	} else if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	events, err := s.store.SessionEvents(id)
	if err != nil {
		s.logger.Error("reading session events failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	if events == nil {
		events = []storage.StoredEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleScan runs one scan session synchronously and reports its outcome.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil || s.openSource == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scanning not configured"})
		return
	}

	src, closeFn, err := s.openSource()
	if err != nil {
		s.logger.Error("opening event source failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "event source unavailable"})
		return
	}
	if closeFn != nil {
		defer closeFn()
	}

	out, err := s.runner.RunOnce(r.Context(), src)
	if err != nil {
		s.logger.Error("scan failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "scan failed"})
		return
	}

	resp := map[string]any{
		"session_id":  out.SessionID,
		"state":       out.Session.State().String(),
		"matched":     out.Session.MatchCount(),
		"examined":    out.Session.Examined(),
		"cap_reached": out.Session.CapReached(),
	}
	if res := out.Session.Result(); res != nil {
		resp["result"] = res
		resp["from_cache"] = out.FromCache
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
