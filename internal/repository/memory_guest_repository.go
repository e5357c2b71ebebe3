package repository

import (
	"context"
	"sync"
	"time"

	"github.com/leafsync/server/internal/models"
)

// MemoryGuestRepository keeps guest sessions in process memory. It is the
// default backend; sessions are lost on restart.
type MemoryGuestRepository struct {
	mu       sync.Mutex
	sessions map[string]*models.GuestSession
}

// NewMemoryGuestRepository creates an empty in-memory session store
func NewMemoryGuestRepository() *MemoryGuestRepository {
	return &MemoryGuestRepository{
		sessions: make(map[string]*models.GuestSession),
	}
}

// Get retrieves a session by guest ID
func (r *MemoryGuestRepository) Get(ctx context.Context, guestID string) (*models.GuestSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[guestID]
	if !ok {
		return nil, nil
	}

	// Copy so callers never mutate the stored record directly
	copied := *session
	return &copied, nil
}

// Put inserts or replaces a session
func (r *MemoryGuestRepository) Put(ctx context.Context, session *models.GuestSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *session
	r.sessions[session.GuestID] = &copied
	return nil
}

// Delete removes a session by guest ID
func (r *MemoryGuestRepository) Delete(ctx context.Context, guestID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, guestID)
	return nil
}

// DeleteExpiredBefore removes sessions idle since before the cutoff
func (r *MemoryGuestRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, session := range r.sessions {
		if session.LastActive.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}

	return removed, nil
}

// Count returns the number of tracked sessions
func (r *MemoryGuestRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions), nil
}
