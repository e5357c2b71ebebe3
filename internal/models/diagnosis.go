package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SyncState tracks where a cached diagnosis sits in the upload queue
type SyncState string

const (
	SyncPending  SyncState = "pending"
	SyncInFlight SyncState = "inflight"
	SyncDone     SyncState = "done"
	SyncFailed   SyncState = "failed"
)

// CachedDiagnosis represents a scan result retained locally, whether or not
// it has been delivered to the remote store yet
type CachedDiagnosis struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Plant     string    `json:"plant"`
	Issue     string    `json:"issue"`
	Cause     string    `json:"cause,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Synced    bool      `json:"synced"`

	// Queue bookkeeping. Synced stays the authoritative flag: a diagnosis
	// is queued exactly when Synced is false.
	Status      SyncState  `json:"status"`
	Attempts    int        `json:"attempts,omitempty"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
}

// DiagnosisInput holds the caller-supplied fields of a new scan result
type DiagnosisInput struct {
	Image string `json:"image"`
	Plant string `json:"plant"`
	Issue string `json:"issue"`
	Cause string `json:"cause,omitempty"`
}

// NewCachedDiagnosis creates a new CachedDiagnosis with validation.
// A diagnosis captured while online is born synced; one captured offline
// starts pending.
func NewCachedDiagnosis(input DiagnosisInput, online bool) (*CachedDiagnosis, error) {
	if strings.TrimSpace(input.Image) == "" {
		return nil, ErrEmptyImage
	}
	if strings.TrimSpace(input.Plant) == "" {
		return nil, ErrEmptyPlant
	}
	if strings.TrimSpace(input.Issue) == "" {
		return nil, ErrEmptyIssue
	}

	status := SyncPending
	if online {
		status = SyncDone
	}

	return &CachedDiagnosis{
		ID:        uuid.New().String(),
		Image:     input.Image,
		Plant:     input.Plant,
		Issue:     input.Issue,
		Cause:     input.Cause,
		Timestamp: time.Now().UTC(),
		Synced:    online,
		Status:    status,
	}, nil
}

// Errors
type DiagnosisError struct {
	Message string
}

func (e DiagnosisError) Error() string {
	return e.Message
}

var (
	ErrEmptyImage         = DiagnosisError{"image reference cannot be empty"}
	ErrEmptyPlant         = DiagnosisError{"plant cannot be empty"}
	ErrEmptyIssue         = DiagnosisError{"issue cannot be empty"}
	ErrRemoteUnavailable  = DiagnosisError{"remote scan store unavailable"}
	ErrPersistenceFailure = DiagnosisError{"local persistence failed"}
)
