package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/leafsync/server/internal/models"
	"github.com/leafsync/server/internal/observability"
	"github.com/leafsync/server/internal/services"
)

// GuestHandler handles guest session endpoints
type GuestHandler struct {
	tracker *services.GuestTrackerService
}

// NewGuestHandler creates a new GuestHandler
func NewGuestHandler(tracker *services.GuestTrackerService) *GuestHandler {
	return &GuestHandler{tracker: tracker}
}

// ResolveSession creates or refreshes a guest session
// @Summary Resolve guest session
// @Description Create or refresh the quota session for an anonymous device
// @Tags guest
// @Accept json
// @Produce json
// @Param request body models.GuestSessionRequest true "Guest session request"
// @Success 200 {object} models.GuestSessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/guest/session [post]
func (h *GuestHandler) ResolveSession(w http.ResponseWriter, r *http.Request) {
	var req models.GuestSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	usage, err := h.tracker.ResolveSession(r.Context(), req.GuestID)
	if err != nil {
		h.writeGuestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.GuestSessionResponse{
		GuestID: req.GuestID,
		Limits:  h.tracker.Limits(),
		Usage:   *usage,
	})
}

// RecordUsage reports consumption of one gated action
// @Summary Record guest usage
// @Description Consume one unit of a quota-gated resource
// @Tags guest
// @Accept json
// @Produce json
// @Param request body models.GuestUsageRequest true "Usage request"
// @Success 200 {object} models.GuestSessionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /api/guest/usage [post]
func (h *GuestHandler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req models.GuestUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resource, err := models.ParseGuestResource(req.Resource)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	usage, err := h.tracker.RecordUsage(r.Context(), req.GuestID, resource)
	if err != nil {
		h.writeGuestError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, models.GuestSessionResponse{
		GuestID: req.GuestID,
		Limits:  h.tracker.Limits(),
		Usage:   *usage,
	})
}

// writeGuestError maps tracker errors to status codes. Validation failures
// are 400, a refused increment is 409, anything else is a generic 500
// without internals.
func (h *GuestHandler) writeGuestError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrEmptyGuestID), errors.Is(err, models.ErrGuestIDTooLong), errors.Is(err, models.ErrUnknownResource):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrLimitReached):
		writeError(w, http.StatusConflict, err.Error())
	default:
		observability.WithContext(r.Context()).Errorf("guest request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process guest session")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
