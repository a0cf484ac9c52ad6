package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"command-center/core/engine"
	"command-center/core/models"
	"command-center/core/repository"
	"command-center/core/spec"

	"github.com/gorilla/mux"
)

const maxSpecBytes = 1 << 20

// JobArchive looks up jobs evicted from the registry
type JobArchive interface {
	GetJob(ctx context.Context, id string) (models.JobState, error)
}

// EventJournal returns the recorded events of a job
type EventJournal interface {
	GetJobEvents(ctx context.Context, jobID string, limit int) ([]models.JobUpdateEvent, error)
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	engine  *engine.Engine
	archive JobArchive
	journal EventJournal
}

// NewJobHandler creates a new job handler. archive and journal may be nil.
func NewJobHandler(eng *engine.Engine, archive JobArchive, journal EventJournal) *JobHandler {
	return &JobHandler{
		engine:  eng,
		archive: archive,
		journal: journal,
	}
}

// SubmitJobRequest wraps a YAML job spec in a JSON body
type SubmitJobRequest struct {
	SpecYAML string `json:"spec_yaml"`
}

// SubmitJobResponse represents the response after submitting a job
type SubmitJobResponse struct {
	ID        string           `json:"id"`
	Variant   models.Variant   `json:"variant"`
	Status    models.JobStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}

// SubmitScaffold handles POST /v1/jobs/scaffold
func (h *JobHandler) SubmitScaffold(w http.ResponseWriter, r *http.Request) {
	var req models.ScaffoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := h.engine.SubmitScaffold(req)
	h.accepted(w, id, err)
}

// SubmitUplink handles POST /v1/jobs/uplink
func (h *JobHandler) SubmitUplink(w http.ResponseWriter, r *http.Request) {
	var req models.UplinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := h.engine.SubmitUplink(req)
	h.accepted(w, id, err)
}

// SubmitRemote handles POST /v1/jobs/remote
func (h *JobHandler) SubmitRemote(w http.ResponseWriter, r *http.Request) {
	var req models.RemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := h.engine.SubmitRemote(req)
	h.accepted(w, id, err)
}

// SubmitJob handles POST /v1/jobs. The body is either a raw YAML job spec or
// a JSON object carrying one in spec_yaml.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSpecBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	specYAML := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req SubmitJobRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		specYAML = req.SpecYAML
	}

	sub, err := spec.ParseJobSpec(specYAML)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job spec: "+err.Error())
		return
	}
	id, err := h.engine.Submit(sub)
	h.accepted(w, id, err)
}

func (h *JobHandler) accepted(w http.ResponseWriter, id string, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	state, err := h.engine.Registry().Get(id)
	if err != nil {
		// already evicted; the id is still valid for archive lookups
		writeJSON(w, http.StatusAccepted, SubmitJobResponse{ID: id})
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitJobResponse{
		ID:        state.ID,
		Variant:   state.Variant,
		Status:    state.Status,
		CreatedAt: state.CreatedAt,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	job, err := h.engine.Registry().Get(jobID)
	if errors.Is(err, repository.ErrJobNotFound) && h.archive != nil {
		job, err = h.archive.GetJob(r.Context(), jobID)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusParam := r.URL.Query().Get("status")
	variantParam := r.URL.Query().Get("variant")
	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		n, err := strconv.Atoi(limitParam)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	items := make([]models.JobState, 0)
	for _, job := range h.engine.Registry().List() {
		if statusParam != "" && string(job.Status) != statusParam {
			continue
		}
		if variantParam != "" && string(job.Variant) != variantParam {
			continue
		}
		items = append(items, job)
		if len(items) == limit {
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

// ApprovePlan handles POST /v1/jobs/{id}/approve
func (h *JobHandler) ApprovePlan(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if err := h.engine.ApprovePlan(r.Context(), jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID})
}

// RefineRequest carries feedback on a proposed plan
type RefineRequest struct {
	Feedback string `json:"feedback"`
}

// RefinePlan handles POST /v1/jobs/{id}/refine
func (h *JobHandler) RefinePlan(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	var req RefineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := h.engine.RefinePlan(r.Context(), jobID, req.Feedback); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID})
}

// MergePR handles POST /v1/jobs/{id}/merge
func (h *JobHandler) MergePR(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	sha, err := h.engine.MergePR(r.Context(), jobID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     jobID,
		"status": string(models.JobStatusMerged),
		"sha":    sha,
	})
}

// CancelJob handles POST /v1/jobs/{id}/cancel
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	if _, err := h.engine.Registry().Get(jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.engine.Cancel(jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID})
}

// GetJobEvents handles GET /v1/jobs/{id}/events
func (h *JobHandler) GetJobEvents(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if h.journal == nil {
		writeError(w, http.StatusNotImplemented, "Event journal is not configured")
		return
	}

	events, err := h.journal.GetJobEvents(r.Context(), jobID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch events: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": events,
	})
}

// ListRecipes handles GET /v1/recipes
func (h *JobHandler) ListRecipes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": h.engine.Recipes().List(),
	})
}
