package repository

import (
	"context"
	"time"

	"github.com/leafsync/server/internal/models"
)

// GuestSessionRepo defines the interface for guest session persistence.
// Get returns nil, nil when no session exists for the guest ID.
type GuestSessionRepo interface {
	Get(ctx context.Context, guestID string) (*models.GuestSession, error)
	Put(ctx context.Context, session *models.GuestSession) error
	Delete(ctx context.Context, guestID string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}
