// Package http provides the admin and observability HTTP surface:
// health, metrics, usage lookups, and manual aggregation runs.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/himawari-bot/himawari/app"
	"github.com/himawari-bot/himawari/domain/budget"
	"github.com/himawari-bot/himawari/ports"
)

// Deps contains dependencies for the admin handler.
type Deps struct {
	Usage       *app.UsageService
	Aggregator  *app.AggregationService
	Archive     ports.ArchiveStore
	DailyLimit  int64
	Metrics     http.Handler // nil disables the metrics endpoint
	MetricsPath string
	Version     string
	Logger      zerolog.Logger
}

// Handler provides the admin API endpoints.
type Handler struct {
	usage      *app.UsageService
	aggregator *app.AggregationService
	archive    ports.ArchiveStore
	dailyLimit int64
	version    string
	logger     zerolog.Logger
}

// NewRouter builds the admin router.
func NewRouter(deps Deps) chi.Router {
	h := &Handler{
		usage:      deps.Usage,
		aggregator: deps.Aggregator,
		archive:    deps.Archive,
		dailyLimit: deps.DailyLimit,
		version:    deps.Version,
		logger:     deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.Health)
	r.Get("/version", h.Version)
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/usage/{userID}/recent", h.RecentUsage)
		r.Get("/usage/{userID}/remaining", h.RemainingBudget)
		r.Post("/aggregations/{date}", h.RunAggregation)
		r.Get("/aggregations/{date}", h.DailyTotals)
	})

	return r
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Version reports the build version.
func (h *Handler) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "himawari",
		"version": h.version,
	})
}

// usageEventResponse is one ledger row in API responses.
type usageEventResponse struct {
	ID            int64  `json:"id"`
	InteractionID string `json:"interaction_id"`
	Command       string `json:"command"`
	Model         string `json:"model"`
	InputTokens   int64  `json:"input_tokens"`
	OutputTokens  int64  `json:"output_tokens"`
	TotalTokens   int64  `json:"total_tokens"`
	Timestamp     string `json:"timestamp"`
}

// RecentUsage returns a user's most recent ledger rows, newest first.
// The limit query parameter caps the row count.
func (h *Handler) RecentUsage(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	events, err := h.usage.ListRecentByUser(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("recent usage lookup failed")
		writeError(w, http.StatusInternalServerError, "ledger_error", "failed to read usage ledger")
		return
	}

	out := make([]usageEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, usageEventResponse{
			ID:            e.ID,
			InteractionID: e.InteractionID,
			Command:       e.Command,
			Model:         e.Model,
			InputTokens:   e.InputTokens,
			OutputTokens:  e.OutputTokens,
			TotalTokens:   e.TotalTokens,
			Timestamp:     e.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"events":  out,
	})
}

// RemainingBudget returns a user's remaining daily token budget.
func (h *Handler) RemainingBudget(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	remaining, err := h.usage.RemainingDailyTokens(r.Context(), userID, h.dailyLimit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("budget lookup failed")
		writeError(w, http.StatusInternalServerError, "ledger_error", "failed to read usage ledger")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":   userID,
		"limit":     h.dailyLimit,
		"remaining": remaining,
	})
}

// RunAggregation archives one calendar date on demand. Re-running a
// date replaces its archive with freshly computed totals.
func (h *Handler) RunAggregation(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, _, err := budget.DayWindow(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	rows, err := h.aggregator.RunForDate(r.Context(), date)
	if err != nil {
		h.logger.Error().Err(err).Str("usage_date", date).Msg("manual aggregation failed")
		writeError(w, http.StatusInternalServerError, "aggregation_failed", "aggregation run failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"usage_date": date,
		"rows":       rows,
	})
}

// dailyTotalResponse is one archived per-user summary row.
type dailyTotalResponse struct {
	UserID       string `json:"user_id"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalTokens  int64  `json:"total_tokens"`
}

// DailyTotals returns the archived totals for one calendar date.
func (h *Handler) DailyTotals(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if _, _, err := budget.DayWindow(date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	totals, err := h.archive.DailyTotals(r.Context(), date)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no archive for that date")
			return
		}
		h.logger.Error().Err(err).Str("usage_date", date).Msg("archive lookup failed")
		writeError(w, http.StatusInternalServerError, "archive_error", "failed to read archive")
		return
	}

	out := make([]dailyTotalResponse, 0, len(totals))
	for _, t := range totals {
		out = append(out, dailyTotalResponse{
			UserID:       t.UserID,
			InputTokens:  t.InputTokens,
			OutputTokens: t.OutputTokens,
			TotalTokens:  t.TotalTokens,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usage_date": date,
		"totals":     out,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
