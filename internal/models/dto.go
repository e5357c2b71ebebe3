package models

import "time"

// GuestSessionRequest for POST /api/guest/session
type GuestSessionRequest struct {
	GuestID string `json:"guestId"`
}

// GuestUsageRequest for POST /api/guest/usage
type GuestUsageRequest struct {
	GuestID  string `json:"guestId"`
	Resource string `json:"resource"`
}

// GuestSessionResponse is returned by both guest endpoints
type GuestSessionResponse struct {
	GuestID string      `json:"guestId"`
	Limits  GuestLimits `json:"limits"`
	Usage   GuestUsage  `json:"usage"`
}

// ScanHistoryResponse for GET /api/scans/history
type ScanHistoryResponse struct {
	Scans      []*CachedDiagnosis `json:"scans"`
	TotalCount int                `json:"totalCount"`
}

// SyncStatusResponse for GET /api/sync/status
type SyncStatusResponse struct {
	Online        bool       `json:"online"`
	CachedScans   int        `json:"cachedScans"`
	PendingScans  int        `json:"pendingScans"`
	LastSyncAt    *time.Time `json:"lastSyncAt,omitempty"`
	LastSyncError string     `json:"lastSyncError,omitempty"`
}

// SyncTriggerResponse for POST /api/sync
type SyncTriggerResponse struct {
	Uploaded int    `json:"uploaded"`
	Pending  int    `json:"pending"`
	Error    string `json:"error,omitempty"`
}

// ConnectivityRequest for POST /api/connectivity
type ConnectivityRequest struct {
	Online bool `json:"online"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse for health checks
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
