package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/flexinfer/mentatlab/services/specializer-go/internal/config"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/flowstore"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/schedule"
	"github.com/flexinfer/mentatlab/services/specializer-go/internal/service"
)

// maxBodyBytes bounds request bodies; templates are the largest documents.
const maxBodyBytes = 1 << 20

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	svc     *service.Service
	config  *config.Config
	logger  *slog.Logger
	limiter *RateLimiter
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *service.Service, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		svc:     svc,
		config:  cfg,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking the template and the store.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		h.logger.Warn("not ready", "error", err)
		writeErrorResponse(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavail, "not ready", nil)
		return
	}
	tmpl := h.svc.Template()
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ready",
		"template_version": tmpl.Version,
	})
}

// --- Specializations ---

// CreateSpecialization handles POST /api/v1/specializations
func (h *Handlers) CreateSpecialization(w http.ResponseWriter, r *http.Request) {
	var req service.SpecializeRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.specialize(w, r, req)
}

// UpdateSpecialization handles PUT /api/v1/specializations/{id}
func (h *Handlers) UpdateSpecialization(w http.ResponseWriter, r *http.Request) {
	var req service.SpecializeRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.AgentID = mux.Vars(r)["id"]
	h.specialize(w, r, req)
}

func (h *Handlers) specialize(w http.ResponseWriter, r *http.Request, req service.SpecializeRequest) {
	out, err := h.svc.Specialize(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if out.Flow.Revision == 1 {
		status = http.StatusCreated
	}
	h.respondJSON(w, status, out)
}

// ListSpecializations handles GET /api/v1/specializations
func (h *Handlers) ListSpecializations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := &flowstore.ListOptions{Provider: q.Get("provider")}
	var err error
	if opts.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit", nil)
		return
	}
	if opts.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid offset", nil)
		return
	}

	flows, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if flows == nil {
		flows = []*flowstore.Flow{}
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"specializations": flows,
		"count":           len(flows),
	})
}

// GetSpecialization handles GET /api/v1/specializations/{id}
func (h *Handlers) GetSpecialization(w http.ResponseWriter, r *http.Request) {
	flow, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, flow)
}

// GetWorkflow handles GET /api/v1/specializations/{id}/workflow and returns
// the generated document exactly as it is handed to the orchestration engine.
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(flow.Workflow)
}

// DeleteSpecialization handles DELETE /api/v1/specializations/{id}
func (h *Handlers) DeleteSpecialization(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Scheduling ---

// PreviewScheduleRequest is the request body for a schedule preview.
type PreviewScheduleRequest struct {
	Schedule schedule.Config    `json:"schedule"`
	Holidays []schedule.Holiday `json:"holidays,omitempty"`
}

// PreviewSchedule handles POST /api/v1/schedule/preview
func (h *Handlers) PreviewSchedule(w http.ResponseWriter, r *http.Request) {
	var req PreviewScheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"text": h.svc.PreviewSchedule(req.Schedule, req.Holidays),
	})
}

// --- Templates ---

// CurrentTemplate handles GET /api/v1/templates/current
func (h *Handlers) CurrentTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl := h.svc.Template()
	if tmpl == nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavail, "no template loaded", nil)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":      tmpl.Name,
		"version":   tmpl.Version,
		"loaded_at": tmpl.LoadedAt.Format(time.RFC3339),
	})
}

// TemplateDocument handles GET /api/v1/templates/current/document and
// returns the loaded template exactly as it was read.
func (h *Handlers) TemplateDocument(w http.ResponseWriter, r *http.Request) {
	tmpl := h.svc.Template()
	if tmpl == nil {
		writeErrorResponse(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavail, "no template loaded", nil)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Template-Version", tmpl.Version)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(tmpl.Raw())
}

// ValidateTemplate handles POST /api/v1/templates/validate. The body is the
// candidate template document itself.
func (h *Handlers) ValidateTemplate(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "could not read body", nil)
		return
	}

	rep := h.svc.ValidateTemplate(data)
	status := http.StatusOK
	if !rep.Schema.Valid {
		status = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, status, rep)
}

// ReloadTemplate handles POST /api/v1/templates/reload
func (h *Handlers) ReloadTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := h.svc.ReloadTemplate(r.Context())
	if err != nil {
		h.logger.Error("template reload failed", "error", err)
		writeErrorResponse(w, r, http.StatusUnprocessableEntity, ErrCodeBadRequest, "template reload failed", map[string]interface{}{
			"reason": err.Error(),
		})
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"name":    tmpl.Name,
		"version": tmpl.Version,
	})
}

// --- Helper Methods ---

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body", map[string]interface{}{
			"reason": err.Error(),
		})
		return false
	}
	return true
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, "error", err, "status", status, "request_id", GetRequestID(r.Context(), r))
	}
	writeErrorResponse(w, r, status, code, message, nil)
}
