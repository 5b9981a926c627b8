package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fortuna/hoopelo/internal/backfill"
)

// BackfillService is the part of the rebuild service the API needs
type BackfillService interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
	GetStatus(ctx context.Context) (*backfill.StatusSummary, error)
}

// BackfillHandler proxies API calls to the backfill service.
type BackfillHandler struct {
	service BackfillService
}

// NewBackfillHandler wires the REST layer to the backfill service.
func NewBackfillHandler(service BackfillService) *BackfillHandler {
	return &BackfillHandler{service: service}
}

type apiBackfillRequest struct {
	SinceDate string  `json:"since_date"`
	KFactor   float64 `json:"k_factor"`
	DryRun    bool    `json:"dry_run"`
}

// HandleBackfillRequest handles POST /api/v1/backfill
func (h *BackfillHandler) HandleBackfillRequest(w http.ResponseWriter, r *http.Request) {
	var req apiBackfillRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}

	backfillReq := backfill.Request{
		KFactor: req.KFactor,
		DryRun:  req.DryRun,
	}

	if req.SinceDate != "" {
		since, err := time.Parse("2006-01-02", req.SinceDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid since_date format (YYYY-MM-DD)", err)
			return
		}
		backfillReq.Since = &since
	}

	job, err := h.service.Enqueue(r.Context(), backfillReq)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, backfill.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		respondError(w, status, "Failed to enqueue backfill job", err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"job": jobPayload(job),
	})
}

// HandleBackfillStatus handles GET /api/v1/backfill/status
func (h *BackfillHandler) HandleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch status", err)
		return
	}

	payload := buildStatusPayload(summary)
	respondJSON(w, http.StatusOK, payload)
}

func buildStatusPayload(summary *backfill.StatusSummary) map[string]interface{} {
	response := map[string]interface{}{
		"status":  "idle",
		"message": "No active jobs",
		"history": []map[string]interface{}{},
	}

	if summary.ActiveJob != nil {
		response["status"] = summary.ActiveJob.Status
		if summary.ActiveJob.StatusMessage.Valid {
			response["message"] = summary.ActiveJob.StatusMessage.String
		}
		response["active_job"] = jobPayload(summary.ActiveJob)
	}

	history := make([]map[string]interface{}, 0, len(summary.History))
	for _, job := range summary.History {
		history = append(history, jobPayload(job))
	}

	response["history"] = history
	return response
}

func jobPayload(job *backfill.Job) map[string]interface{} {
	if job == nil {
		return nil
	}

	payload := map[string]interface{}{
		"job_id":           job.JobID,
		"job_type":         job.JobType,
		"status":           job.Status,
		"progress_current": job.ProgressCurrent,
		"progress_total":   job.ProgressTotal,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}

	if job.StatusMessage.Valid {
		payload["status_message"] = job.StatusMessage.String
	}
	payload["dry_run"] = job.DryRun
	if job.SinceDate.Valid {
		payload["since_date"] = job.SinceDate.Time.Format("2006-01-02")
	}
	if job.KFactor.Valid {
		payload["k_factor"] = job.KFactor.Float64
	}
	if len(job.PlayerIDs) > 0 {
		payload["player_ids"] = job.PlayerIDs
	}
	if job.StartedAt.Valid {
		payload["started_at"] = job.StartedAt.Time
	}
	if job.CompletedAt.Valid {
		payload["completed_at"] = job.CompletedAt.Time
	}
	if job.LastError.Valid {
		payload["last_error"] = job.LastError.String
	}

	return payload
}
