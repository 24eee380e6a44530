package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"genquota/internal/identity"
	"genquota/internal/models"
	"genquota/internal/quota"
	"genquota/internal/storage"
	"genquota/internal/version"
)

// Handlers contains HTTP handlers for the quota API
type Handlers struct {
	quotaService quota.ServiceInterface
	resolver     *identity.Resolver
	store        storage.UsageStore
}

// NewHandlers creates a new handlers instance
func NewHandlers(quotaService quota.ServiceInterface, resolver *identity.Resolver, store storage.UsageStore) *Handlers {
	return &Handlers{
		quotaService: quotaService,
		resolver:     resolver,
		store:        store,
	}
}

// Quota handles quota check and record requests
// POST /api/v1/quota
//
// The action field in the body selects the operation: "check" reads the
// caller's quota state without consuming anything, "record" logs a completed
// generation attempt and consumes one unit on success.
func (h *Handlers) Quota(w http.ResponseWriter, r *http.Request) {
	var req models.QuotaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}

	// The fingerprint may also arrive as a header, which lets clients send
	// check requests without a body template.
	if req.Fingerprint == "" {
		req.Fingerprint = r.Header.Get("X-Fingerprint")
	}

	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	id, err := h.resolver.Resolve(r.Context(), r, req.Fingerprint)
	if err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, err.Error())
		return
	}

	switch req.Action {
	case models.ActionCheck:
		response, err := h.quotaService.Check(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSONResponse(w, http.StatusOK, response)

	case models.ActionRecord:
		response, err := h.quotaService.Record(r.Context(), id, req.Success, req.ErrorMessage)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		h.writeJSONResponse(w, http.StatusOK, response)

	default:
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest,
			fmt.Sprintf("unknown action: %s", req.Action))
	}
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = version.GetInfo().Version

	if err := h.store.Ping(r.Context()); err != nil {
		response.Status = models.StatusUnhealthy
		response.AddComponent("storage", models.StatusUnhealthy, err.Error())
		response.AddComponent("api", models.StatusHealthy, "API is operational")
		h.writeJSONResponse(w, http.StatusServiceUnavailable, response)
		return
	}

	response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	h.writeJSONResponse(w, http.StatusOK, response)
}

// writeServiceError maps quota service errors onto HTTP responses. Quota
// exhaustion gets the dedicated 429 body with counters; everything else gets
// the standard error envelope.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *quota.ServiceError
	if errors.As(err, &svcErr) {
		if svcErr.Code == models.ErrorCodeQuotaExceeded {
			h.writeJSONResponse(w, svcErr.StatusCode, models.NewQuotaExceededResponse(svcErr.Used))
			return
		}
		h.writeErrorResponse(w, svcErr.StatusCode, svcErr.Code, svcErr.Message)
		return
	}
	h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Internal server error")
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written; nothing more to send.
		fmt.Printf("Error encoding JSON response: %v\n", err)
	}
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	h.writeJSONResponse(w, statusCode, errorResp)
}
