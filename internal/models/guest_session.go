package models

import (
	"strings"
	"time"
)

// MaxGuestIDLength caps the opaque device token supplied by clients
const MaxGuestIDLength = 100

// GuestResource names an action gated by the guest quota
type GuestResource string

const (
	ResourceScan     GuestResource = "scan"
	ResourceHistory  GuestResource = "history"
	ResourceFavorite GuestResource = "favorite"
)

// GuestLimits holds the fixed per-resource maximums for anonymous usage
type GuestLimits struct {
	MaxScans     int `json:"maxScans"`
	MaxHistory   int `json:"maxHistory"`
	MaxFavorites int `json:"maxFavorites"`
}

// GuestSession tracks quota consumption for one anonymous device
type GuestSession struct {
	GuestID    string    `json:"guestId"`
	Scans      int       `json:"scans"`
	History    int       `json:"history"`
	Favorites  int       `json:"favorites"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// NewGuestSession creates a zeroed session for a validated guest ID
func NewGuestSession(guestID string, now time.Time) (*GuestSession, error) {
	if err := ValidateGuestID(guestID); err != nil {
		return nil, err
	}
	return &GuestSession{
		GuestID:    guestID,
		CreatedAt:  now,
		LastActive: now,
	}, nil
}

// ValidateGuestID checks the client-supplied token
func ValidateGuestID(guestID string) error {
	if strings.TrimSpace(guestID) == "" {
		return ErrEmptyGuestID
	}
	if len(guestID) > MaxGuestIDLength {
		return ErrGuestIDTooLong
	}
	return nil
}

// ParseGuestResource maps a wire value to a known resource
func ParseGuestResource(s string) (GuestResource, error) {
	switch GuestResource(s) {
	case ResourceScan, ResourceHistory, ResourceFavorite:
		return GuestResource(s), nil
	}
	return "", ErrUnknownResource
}

// Count returns the session's counter for a resource
func (s *GuestSession) Count(resource GuestResource) int {
	switch resource {
	case ResourceScan:
		return s.Scans
	case ResourceHistory:
		return s.History
	case ResourceFavorite:
		return s.Favorites
	}
	return 0
}

// Increment bumps the counter for a resource by one
func (s *GuestSession) Increment(resource GuestResource) {
	switch resource {
	case ResourceScan:
		s.Scans++
	case ResourceHistory:
		s.History++
	case ResourceFavorite:
		s.Favorites++
	}
}

// Limit returns the configured maximum for a resource
func (l GuestLimits) Limit(resource GuestResource) int {
	switch resource {
	case ResourceScan:
		return l.MaxScans
	case ResourceHistory:
		return l.MaxHistory
	case ResourceFavorite:
		return l.MaxFavorites
	}
	return 0
}

// GuestUsage is the snapshot returned to clients after every contact
type GuestUsage struct {
	Scans              int   `json:"scans"`
	History            int   `json:"history"`
	Favorites          int   `json:"favorites"`
	HasReachedLimit    bool  `json:"hasReachedLimit"`
	RemainingScans     int   `json:"remainingScans"`
	RemainingHistory   int   `json:"remainingHistory"`
	RemainingFavorites int   `json:"remainingFavorites"`
	ExpiresAt          int64 `json:"expiresAt"`
}

// Usage derives the client-facing snapshot from the session state
func (s *GuestSession) Usage(limits GuestLimits, lifetime time.Duration) GuestUsage {
	return GuestUsage{
		Scans:              s.Scans,
		History:            s.History,
		Favorites:          s.Favorites,
		HasReachedLimit:    s.Scans >= limits.MaxScans || s.History >= limits.MaxHistory || s.Favorites >= limits.MaxFavorites,
		RemainingScans:     remaining(limits.MaxScans, s.Scans),
		RemainingHistory:   remaining(limits.MaxHistory, s.History),
		RemainingFavorites: remaining(limits.MaxFavorites, s.Favorites),
		ExpiresAt:          s.LastActive.Add(lifetime).UnixMilli(),
	}
}

func remaining(max, used int) int {
	if used >= max {
		return 0
	}
	return max - used
}

// Errors
type GuestError struct {
	Message string
}

func (e GuestError) Error() string {
	return e.Message
}

var (
	ErrEmptyGuestID    = GuestError{"guestId is required"}
	ErrGuestIDTooLong  = GuestError{"guestId exceeds maximum length"}
	ErrUnknownResource = GuestError{"unknown resource"}
	ErrLimitReached    = GuestError{"usage limit reached"}
)
