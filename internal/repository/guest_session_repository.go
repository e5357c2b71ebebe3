package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/leafsync/server/internal/models"
)

// GuestSessionRepository handles guest session persistence (SQLite)
type GuestSessionRepository struct {
	db *sql.DB
}

// NewGuestSessionRepository creates a new GuestSessionRepository
func NewGuestSessionRepository(db *sql.DB) *GuestSessionRepository {
	return &GuestSessionRepository{db: db}
}

// Get retrieves a session by guest ID
func (r *GuestSessionRepository) Get(ctx context.Context, guestID string) (*models.GuestSession, error) {
	query := `
		SELECT guest_id, scans, history, favorites, created_at, last_active
		FROM guest_sessions WHERE guest_id = ?
	`

	var session models.GuestSession
	err := r.db.QueryRowContext(ctx, query, guestID).Scan(
		&session.GuestID,
		&session.Scans,
		&session.History,
		&session.Favorites,
		&session.CreatedAt,
		&session.LastActive,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// Put inserts or replaces a session
func (r *GuestSessionRepository) Put(ctx context.Context, session *models.GuestSession) error {
	query := `
		INSERT INTO guest_sessions (guest_id, scans, history, favorites, created_at, last_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guest_id) DO UPDATE SET
			scans = excluded.scans,
			history = excluded.history,
			favorites = excluded.favorites,
			last_active = excluded.last_active
	`

	_, err := r.db.ExecContext(ctx, query,
		session.GuestID,
		session.Scans,
		session.History,
		session.Favorites,
		session.CreatedAt,
		session.LastActive,
	)
	return err
}

// Delete removes a session by guest ID
func (r *GuestSessionRepository) Delete(ctx context.Context, guestID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM guest_sessions WHERE guest_id = ?`, guestID)
	return err
}

// DeleteExpiredBefore removes sessions idle since before the cutoff
func (r *GuestSessionRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM guest_sessions WHERE last_active < ?`, cutoff)
	if err != nil {
		return 0, err
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(removed), nil
}

// Count returns the number of tracked sessions
func (r *GuestSessionRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guest_sessions`).Scan(&count)
	return count, err
}
