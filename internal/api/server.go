// Package api exposes the HTTP interface for the crawl service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/commonground/newscrawler/internal/archive"
	"github.com/commonground/newscrawler/internal/crawl"
	"github.com/commonground/newscrawler/internal/health"
	"github.com/commonground/newscrawler/internal/pool"
	"github.com/commonground/newscrawler/internal/store"
)

// Server wires HTTP handlers to the orchestrator, session store and
// background pool.
type Server struct {
	router   chi.Router
	sessions *store.SessionStore
	orch     *crawl.Orchestrator
	pool     *pool.Pool
	archiver archive.Archiver
	checker  *health.Checker
	clock    crawl.Clock
	metrics  http.Handler
	history  *HistoryHandler
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. metricsHandler
// is mounted at /metrics and metricsMW wraps every route; pass nil to omit
// either. history may be nil when no archive database is configured.
func NewServer(
	sessions *store.SessionStore,
	orch *crawl.Orchestrator,
	p *pool.Pool,
	archiver archive.Archiver,
	checker *health.Checker,
	clock crawl.Clock,
	metricsHandler http.Handler,
	metricsMW func(http.Handler) http.Handler,
	history *HistoryHandler,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if archiver == nil {
		archiver = archive.Noop{}
	}
	s := &Server{
		sessions: sessions,
		orch:     orch,
		pool:     p,
		archiver: archiver,
		checker:  checker,
		clock:    clock,
		metrics:  metricsHandler,
		history:  history,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if metricsMW != nil {
		r.Use(metricsMW)
	}

	r.Post("/crawl", s.startCrawl)
	r.Get("/sessions", s.listSessions)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Delete("/", s.deleteSession)
	})
	r.Get("/health", s.health)
	if history != nil {
		history.Routes(r)
	}
	if metricsHandler != nil {
		r.Get("/metrics", metricsHandler.ServeHTTP)
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawl.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := crawl.NewSession(req, s.clock)
	if err := s.sessions.Put(session); err != nil {
		if errors.Is(err, store.ErrSessionExists) {
			writeError(w, http.StatusConflict, "session already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	task := func(ctx context.Context) {
		s.orch.Run(ctx, req, session)
		if err := s.sessions.MoveToCompleted(session.ID()); err != nil {
			s.logger.Warn("move session to completed",
				zap.String("session_id", session.ID()), zap.Error(err))
		}
		if err := s.archiver.Save(ctx, session.Snapshot()); err != nil {
			s.logger.Warn("archive session",
				zap.String("session_id", session.ID()), zap.Error(err))
		}
	}
	if err := s.pool.Submit(task); err != nil {
		// Undo the reservation so the id can be retried later.
		s.sessions.Remove(session.ID())
		writeError(w, http.StatusServiceUnavailable, "crawler is at capacity, try again later")
		return
	}

	writeJSON(w, http.StatusAccepted, session.Snapshot())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) listSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.sessions.AllIDs()
	summaries := make([]sessionSummary, 0, len(ids))
	for _, id := range ids {
		session, err := s.sessions.Get(id)
		if err != nil {
			continue
		}
		snap := session.Snapshot()
		summaries = append(summaries, sessionSummary{
			SessionID: snap.SessionID,
			Status:    snap.Status,
			Progress:  snap.Progress,
			StartTime: snap.StartTime,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": summaries,
		"total":    len(summaries),
	})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if err := s.sessions.Delete(sessionID); err != nil {
		switch {
		case errors.Is(err, store.ErrSessionActive):
			writeError(w, http.StatusConflict, "session is still running")
		default:
			writeError(w, http.StatusNotFound, "session not found")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": sessionID, "status": "deleted"})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	backendUp, brokerUp := false, false
	mode := health.ModeStandalone
	if s.checker != nil {
		backendUp, brokerUp = s.checker.Status()
		mode = s.checker.Mode()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"activeSessions":   len(s.sessions.ActiveIDs()),
		"totalSessions":    len(s.sessions.AllIDs()),
		"backendConnected": backendUp,
		"brokerConnected":  brokerUp,
		"systemStatus":     string(mode),
	})
}

type sessionSummary struct {
	SessionID string       `json:"sessionId"`
	Status    crawl.Status `json:"status"`
	Progress  int          `json:"progress"`
	StartTime time.Time    `json:"startTime"`
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
