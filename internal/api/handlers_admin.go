package api

import (
	"net/http"
	"strconv"
	"time"

	"genquota/internal/models"
)

// ListAttempts handles audit log queries for the admin surface
// GET /api/v1/admin/attempts?since=<RFC3339>&limit=<n>
// Requires an API key with the 'admin' permission.
func (h *Handlers) ListAttempts(w http.ResponseWriter, r *http.Request) {
	req := models.ListAttemptsRequest{
		Since: r.URL.Query().Get("since"),
	}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "limit must be an integer")
			return
		}
		req.Limit = limit
	}
	req.Normalize()

	since := time.Now().UTC().Add(-24 * time.Hour)
	if req.Since != "" {
		parsed, err := time.Parse(time.RFC3339, req.Since)
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "since must be an RFC3339 timestamp")
			return
		}
		since = parsed.UTC()
	}

	attempts, err := h.store.Attempts(r.Context(), since, req.Limit)
	if err != nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeUpstreamUnavailable, "failed to read attempt log")
		return
	}

	if attempts == nil {
		attempts = []*models.AttemptLog{}
	}

	h.writeJSONResponse(w, http.StatusOK, &models.ListAttemptsResponse{
		Attempts:   attempts,
		TotalCount: len(attempts),
		Since:      since,
	})
}

// UsageSummary handles daily usage aggregation for the admin surface
// GET /api/v1/admin/usage?date=<YYYY-MM-DD>
// The date defaults to the current UTC day.
func (h *Handlers) UsageSummary(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = models.Day(time.Now())
	} else if _, err := time.Parse(models.DateFormat, date); err != nil {
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeInvalidRequest, "date must be formatted YYYY-MM-DD")
		return
	}

	summary, err := h.store.UsageSummary(r.Context(), date)
	if err != nil {
		h.writeErrorResponse(w, http.StatusServiceUnavailable, models.ErrorCodeUpstreamUnavailable, "failed to read usage summary")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, summary)
}
