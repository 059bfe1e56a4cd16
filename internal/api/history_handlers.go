package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/commonground/newscrawler/internal/archive"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	historyTimeout      = 3 * time.Second
)

// HistoryHandler exposes read-only endpoints over archived sessions.
type HistoryHandler struct {
	reader  archive.HistoryReader
	timeout time.Duration
	logger  *zap.Logger
}

// NewHistoryHandler wires the archive reader and logger.
func NewHistoryHandler(reader archive.HistoryReader, logger *zap.Logger) *HistoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryHandler{
		reader:  reader,
		timeout: historyTimeout,
		logger:  logger,
	}
}

// Routes mounts the history endpoints on r.
func (h *HistoryHandler) Routes(r chi.Router) {
	r.Get("/history", h.ListSessions)
	r.Get("/history/{session_id}", h.GetSession)
}

// ListSessions handles GET /history?status=&limit=&offset=. It returns a
// JSON object {"sessions": [...]} on success, 400 for invalid filters, 503
// when no archive database is configured, or 500 if the query fails.
func (h *HistoryHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "session archive unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !validHistoryStatus(status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	records, err := h.reader.ListSessions(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list archived sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if records == nil {
		records = []archive.HistoryRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": records})
}

// GetSession handles GET /history/{session_id}. It returns the archived row
// on success, 404 when no row exists, 503 when no archive database is
// configured, or 500 otherwise.
func (h *HistoryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		writeError(w, http.StatusServiceUnavailable, "session archive unavailable")
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	record, err := h.reader.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, archive.ErrNotArchived) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("get archived session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func validHistoryStatus(s string) bool {
	switch s {
	case "completed", "failed":
		return true
	default:
		return false
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
