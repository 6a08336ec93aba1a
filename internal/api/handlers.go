package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/maltedev/market-scout/internal/jobs"
	"github.com/maltedev/market-scout/internal/models"
	"github.com/maltedev/market-scout/internal/queue"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	pendingWarnThreshold     = 1000
	deadLetterErrorThreshold = 100
)

// JobService is the part of the job manager the handlers use.
type JobService interface {
	Submit(ctx context.Context, keyword string) (*models.Run, error)
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, limit int) ([]*models.Run, error)
	QueueSize() int
}

// OutboxStats reports outbox backlog. Nil when persistence is disabled.
type OutboxStats interface {
	Counts(ctx context.Context) (pending, deadLetter int64, err error)
}

type Handlers struct {
	jobs   JobService
	outbox OutboxStats
	logger *slog.Logger
}

func NewHandlers(jobs JobService, outbox OutboxStats, logger *slog.Logger) *Handlers {
	return &Handlers{
		jobs:   jobs,
		outbox: outbox,
		logger: logger.With("component", "api"),
	}
}

type CreateAnalysisRequest struct {
	Keyword string `json:"keyword"`
}

type CreateAnalysisResponse struct {
	RunID   string           `json:"run_id"`
	Status  models.RunStatus `json:"status"`
	Message string           `json:"message"`
}

type ListAnalysesResponse struct {
	Runs      []*models.Run `json:"runs"`
	Count     int           `json:"count"`
	QueueSize int           `json:"queue_size"`
}

// CreateAnalysis queues a keyword analysis.
func (h *Handlers) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CreateAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	run, err := h.jobs.Submit(r.Context(), req.Keyword)
	switch {
	case errors.Is(err, jobs.ErrInvalidKeyword):
		h.respondError(w, http.StatusBadRequest, "keyword is required")
		return
	case errors.Is(err, queue.ErrQueueFull), errors.Is(err, queue.ErrQueueClosed):
		h.respondError(w, http.StatusServiceUnavailable, "analysis queue unavailable")
		return
	case err != nil:
		h.logger.Error("failed to submit analysis", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create analysis")
		return
	}

	h.respondJSON(w, http.StatusAccepted, CreateAnalysisResponse{
		RunID:   run.ID,
		Status:  run.Status,
		Message: "Analysis queued",
	})
}

// GetAnalysis returns run status and, once finished, its report.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "runID")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	run, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, models.ErrRunNotFound) {
		h.respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get analysis", "id", id, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get analysis")
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.jobs.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list analyses", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}

	h.respondJSON(w, http.StatusOK, ListAnalysesResponse{
		Runs:      runs,
		Count:     len(runs),
		QueueSize: h.jobs.QueueSize(),
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":     "ok",
		"queue_size": h.jobs.QueueSize(),
	}
	status := http.StatusOK

	if h.outbox != nil {
		pending, deadLetter, err := h.outbox.Counts(r.Context())
		if err != nil {
			h.logger.Warn("failed to read outbox counts", "error", err)
			health["status"] = "degraded"
			health["message"] = "outbox unavailable"
		} else {
			health["outbox"] = map[string]interface{}{
				"pending":     pending,
				"dead_letter": deadLetter,
			}
			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > deadLetterErrorThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
