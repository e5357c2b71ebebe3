package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsync/server/internal/middleware"
	"github.com/leafsync/server/internal/models"
	"github.com/leafsync/server/internal/repository"
	"github.com/leafsync/server/internal/services"
)

func newGuestRouter() *chi.Mux {
	repo := repository.NewMemoryGuestRepository()
	tracker := services.NewGuestTrackerService(repo, services.DefaultGuestTrackerConfig())
	handler := NewGuestHandler(tracker)

	r := chi.NewRouter()
	r.Use(middleware.CORS())
	r.Post("/api/guest/session", handler.ResolveSession)
	r.Post("/api/guest/usage", handler.RecordUsage)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGuestSessionEndpoint(t *testing.T) {
	t.Run("returns limits and usage for a new guest", func(t *testing.T) {
		router := newGuestRouter()

		rec := postJSON(t, router, "/api/guest/session", models.GuestSessionRequest{GuestID: "abc123"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

		var resp models.GuestSessionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "abc123", resp.GuestID)
		assert.Equal(t, 5, resp.Limits.MaxScans)
		assert.Zero(t, resp.Usage.Scans)
		assert.False(t, resp.Usage.HasReachedLimit)
		assert.Positive(t, resp.Usage.ExpiresAt)
	})

	t.Run("rejects a missing guest id with 400", func(t *testing.T) {
		router := newGuestRouter()

		rec := postJSON(t, router, "/api/guest/session", models.GuestSessionRequest{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp models.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("rejects an oversized guest id with 400", func(t *testing.T) {
		router := newGuestRouter()

		rec := postJSON(t, router, "/api/guest/session", models.GuestSessionRequest{GuestID: strings.Repeat("x", 101)})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed JSON with 400", func(t *testing.T) {
		router := newGuestRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/guest/session", strings.NewReader("{not json"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("answers preflight with permissive headers", func(t *testing.T) {
		router := newGuestRouter()

		req := httptest.NewRequest(http.MethodOptions, "/api/guest/session", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	})

	t.Run("rejects non-POST methods with 405", func(t *testing.T) {
		router := newGuestRouter()

		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			req := httptest.NewRequest(method, "/api/guest/session", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		}
	})
}

func TestGuestUsageEndpoint(t *testing.T) {
	t.Run("records usage and reports remaining quota", func(t *testing.T) {
		router := newGuestRouter()

		var resp models.GuestSessionResponse
		for i := 0; i < 3; i++ {
			rec := postJSON(t, router, "/api/guest/usage", models.GuestUsageRequest{GuestID: "abc123", Resource: "scan"})
			require.Equal(t, http.StatusOK, rec.Code)
			resp = models.GuestSessionResponse{}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		}

		assert.Equal(t, 3, resp.Usage.Scans)
		assert.Equal(t, 2, resp.Usage.RemainingScans)
		assert.False(t, resp.Usage.HasReachedLimit)
	})

	t.Run("returns 409 once the quota is exhausted", func(t *testing.T) {
		router := newGuestRouter()

		for i := 0; i < 5; i++ {
			rec := postJSON(t, router, "/api/guest/usage", models.GuestUsageRequest{GuestID: "abc123", Resource: "scan"})
			require.Equal(t, http.StatusOK, rec.Code, fmt.Sprintf("attempt %d", i+1))
		}

		rec := postJSON(t, router, "/api/guest/usage", models.GuestUsageRequest{GuestID: "abc123", Resource: "scan"})
		assert.Equal(t, http.StatusConflict, rec.Code)

		// Counter stays pinned at the maximum
		rec = postJSON(t, router, "/api/guest/session", models.GuestSessionRequest{GuestID: "abc123"})
		var resp models.GuestSessionResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, 5, resp.Usage.Scans)
		assert.True(t, resp.Usage.HasReachedLimit)
	})

	t.Run("rejects an unknown resource with 400", func(t *testing.T) {
		router := newGuestRouter()

		rec := postJSON(t, router, "/api/guest/usage", models.GuestUsageRequest{GuestID: "abc123", Resource: "upload"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
