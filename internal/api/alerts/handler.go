package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmarcwatch/dmarcwatch/internal/alerting"
	"github.com/dmarcwatch/dmarcwatch/internal/models"
	"github.com/dmarcwatch/dmarcwatch/internal/storage"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeConflict         = "CONFLICT"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler handles alert history and evaluation endpoints.
type Handler struct {
	manager   *alerting.Manager
	evaluator *alerting.Evaluator
	timeout   time.Duration
}

// NewHandler creates an alert API handler. timeout bounds each
// storage-backed call; zero means no bound beyond the request context.
func NewHandler(manager *alerting.Manager, evaluator *alerting.Evaluator, timeout time.Duration) *Handler {
	return &Handler{manager: manager, evaluator: evaluator, timeout: timeout}
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// writeEngineError maps typed engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error, op string) {
	var notFound *alerting.NotFoundError
	if errors.As(err, &notFound) {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return
	}
	var invalidState *alerting.InvalidStateError
	if errors.As(err, &invalidState) {
		jsonError(w, http.StatusConflict, errCodeConflict, invalidState.Error())
		return
	}
	log.Printf("%s error: %v", op, err)
	jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
}

// Request types
type CreateRequest struct {
	Type           string            `json:"type"`
	Severity       string            `json:"severity"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Domain         string            `json:"domain"`
	CurrentValue   float64           `json:"current_value"`
	ThresholdValue float64           `json:"threshold_value"`
	Metadata       map[string]string `json:"metadata"`
	Channels       []string          `json:"channels"`
	Force          bool              `json:"force"`
}

type TransitionRequest struct {
	UserID string `json:"user_id"`
	Note   string `json:"note"`
}

type BulkRequest struct {
	IDs    []string `json:"ids"`
	UserID string   `json:"user_id"`
	Note   string   `json:"note"`
}

type EvaluateRequest struct {
	Domain  string             `json:"domain"`
	Metrics map[string]float64 `json:"metrics"`
}

// Response types
type CreateResponse struct {
	Created bool                 `json:"created"`
	Alert   *models.AlertHistory `json:"alert,omitempty"`
}

type EvaluateResponse struct {
	Domain string                 `json:"domain"`
	Fired  int                    `json:"fired"`
	Alerts []*models.AlertHistory `json:"alerts"`
}

type ListResponse struct {
	Items   []*models.AlertHistory `json:"items"`
	Total   int64                  `json:"total"`
	Page    int                    `json:"page"`
	PerPage int                    `json:"per_page"`
}

// List returns alert history, newest first, with optional status, type,
// and domain filters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.HistoryFilter{Domain: r.URL.Query().Get("domain")}

	if s := r.URL.Query().Get("status"); s != "" {
		status, err := ValidateStatus(s)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		filter.Status = status
	}
	if t := r.URL.Query().Get("type"); t != "" {
		alertType, err := ValidateType(t)
		if err != nil {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		filter.Type = alertType
	}

	page := 1
	perPage := 50
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if pp := r.URL.Query().Get("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 && v <= 100 {
			perPage = v
		}
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	items, total, err := h.manager.List(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		log.Printf("list alerts error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if items == nil {
		items = []*models.AlertHistory{}
	}

	jsonOK(w, ListResponse{
		Items:   items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// GetByID returns one alert by id.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "alert id required")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	alert, err := h.manager.Get(ctx, id)
	if err != nil {
		writeEngineError(w, err, "get alert")
		return
	}
	jsonOK(w, alert)
}

// Create fires an alert manually. Suppression and cooldown still apply
// unless force is set; a skipped alert returns created=false.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	alertType, err := ValidateType(req.Type)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	severity, err := ValidateSeverity(req.Severity)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	alert, err := h.manager.Create(ctx, alerting.CreateRequest{
		Type:           alertType,
		Severity:       severity,
		Title:          req.Title,
		Message:        req.Message,
		Domain:         req.Domain,
		CurrentValue:   req.CurrentValue,
		ThresholdValue: req.ThresholdValue,
		Metadata:       req.Metadata,
		Channels:       req.Channels,
		Force:          req.Force,
	})
	if err != nil {
		log.Printf("create alert error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if alert == nil {
		// Suppressed or within cooldown.
		jsonOK(w, CreateResponse{Created: false})
		return
	}

	log.Printf("alert created via API: %s (%s)", alert.Title, alert.ID)
	jsonCreated(w, CreateResponse{Created: true, Alert: alert})
}

// Acknowledge moves an alert from created to acknowledged.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "acknowledge", h.manager.Acknowledge)
}

// Resolve moves an alert from created or acknowledged to resolved.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "resolve", h.manager.Resolve)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, id, userID, note string) (*models.AlertHistory, error)) {

	id := chi.URLParam(r, "id")
	if id == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "alert id required")
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if err := ValidateUserID(req.UserID); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	alert, err := fn(ctx, id, req.UserID, req.Note)
	if err != nil {
		writeEngineError(w, err, op)
		return
	}

	log.Printf("alert %s: %s by %s", op+"d", id, req.UserID)
	jsonOK(w, alert)
}

// BulkAcknowledge acknowledges a batch of alerts; failures are reported
// per id, never aborting the batch.
func (h *Handler) BulkAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.manager.BulkAcknowledge)
}

// BulkResolve resolves a batch of alerts with the same per-id isolation.
func (h *Handler) BulkResolve(w http.ResponseWriter, r *http.Request) {
	h.bulk(w, r, h.manager.BulkResolve)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, ids []string, userID, note string) *models.BulkResult) {

	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if err := ValidateIDs(req.IDs); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}
	if err := ValidateUserID(req.UserID); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	jsonOK(w, fn(ctx, req.IDs, req.UserID, req.Note))
}

// Evaluate runs all enabled rules against a domain's metric snapshot.
// This is the entry point for the external scheduler.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if len(req.Metrics) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "metrics is required")
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	fired, err := h.evaluator.Evaluate(ctx, req.Domain, req.Metrics)
	if err != nil {
		log.Printf("evaluate error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if fired == nil {
		fired = []*models.AlertHistory{}
	}

	jsonOK(w, EvaluateResponse{
		Domain: req.Domain,
		Fired:  len(fired),
		Alerts: fired,
	})
}
