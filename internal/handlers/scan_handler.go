package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/leafsync/server/internal/models"
	"github.com/leafsync/server/internal/observability"
	"github.com/leafsync/server/internal/services"
)

// ScanHandler handles scan cache and sync endpoints
type ScanHandler struct {
	cache *services.ScanCacheService
}

// NewScanHandler creates a new ScanHandler
func NewScanHandler(cache *services.ScanCacheService) *ScanHandler {
	return &ScanHandler{cache: cache}
}

// Create caches a new diagnosis result
// @Summary Cache a scan
// @Description Cache a diagnosis result; queued for upload if offline
// @Tags scans
// @Accept json
// @Produce json
// @Param request body models.DiagnosisInput true "Diagnosis fields"
// @Success 201 {object} models.CachedDiagnosis
// @Failure 400 {object} models.ErrorResponse
// @Router /api/scans [post]
func (h *ScanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input models.DiagnosisInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	diagnosis, err := h.cache.AddToQueue(r.Context(), input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, diagnosis)
}

// History returns all cached diagnoses, newest first
// @Summary Scan history
// @Description All cached diagnoses ordered by timestamp descending
// @Tags scans
// @Produce json
// @Success 200 {object} models.ScanHistoryResponse
// @Router /api/scans/history [get]
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	scans := h.cache.CachedHistory()

	writeJSON(w, http.StatusOK, models.ScanHistoryResponse{
		Scans:      scans,
		TotalCount: len(scans),
	})
}

// Clear removes every cached and queued diagnosis
// @Summary Clear scan cache
// @Tags scans
// @Success 204 "Cache cleared"
// @Router /api/scans [delete]
func (h *ScanHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.cache.ClearCache()
	w.WriteHeader(http.StatusNoContent)
}

// TriggerSync runs one sync attempt
// @Summary Trigger sync
// @Description Upload queued diagnoses to the remote store
// @Tags sync
// @Produce json
// @Success 202 {object} models.SyncTriggerResponse
// @Router /api/sync [post]
func (h *ScanHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	uploaded, err := h.cache.SyncPendingScans(r.Context())

	response := models.SyncTriggerResponse{
		Uploaded: uploaded,
		Pending:  h.cache.PendingCount(),
	}
	if err != nil {
		// Queue is intact; the next attempt picks it up
		response.Error = err.Error()
		observability.WithContext(r.Context()).Warnf("manual sync failed: %v", err)
	}

	writeJSON(w, http.StatusAccepted, response)
}

// SyncStatus reports connectivity and queue state
// @Summary Sync status
// @Tags sync
// @Produce json
// @Success 200 {object} models.SyncStatusResponse
// @Router /api/sync/status [get]
func (h *ScanHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Status())
}

// SetConnectivity records the client-observed connectivity flag
// @Summary Set connectivity
// @Description Record online/offline; going online triggers one sync
// @Tags sync
// @Accept json
// @Produce json
// @Param request body models.ConnectivityRequest true "Connectivity"
// @Success 200 {object} models.SyncStatusResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/connectivity [post]
func (h *ScanHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var req models.ConnectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	h.cache.SetOnline(r.Context(), req.Online)

	writeJSON(w, http.StatusOK, h.cache.Status())
}
