package services

import (
	"context"
	"sync"
	"time"

	"github.com/leafsync/server/internal/models"
	"github.com/leafsync/server/internal/observability"
	"github.com/leafsync/server/internal/repository"
)

// GuestTrackerConfig fixes the quota parameters at startup
type GuestTrackerConfig struct {
	Limits          models.GuestLimits
	SessionLifetime time.Duration
	CleanupInterval time.Duration
}

// DefaultGuestTrackerConfig returns the stock limits: 5 of everything,
// 30 day sessions, hourly sweeps
func DefaultGuestTrackerConfig() GuestTrackerConfig {
	return GuestTrackerConfig{
		Limits:          models.GuestLimits{MaxScans: 5, MaxHistory: 5, MaxFavorites: 5},
		SessionLifetime: 30 * 24 * time.Hour,
		CleanupInterval: time.Hour,
	}
}

// GuestTrackerService enforces per-device quotas for anonymous users and
// expires idle sessions in a background sweep
type GuestTrackerService struct {
	repo repository.GuestSessionRepo
	cfg  GuestTrackerConfig

	mu       sync.Mutex
	stopChan chan struct{}
}

// NewGuestTrackerService creates a new GuestTrackerService
func NewGuestTrackerService(repo repository.GuestSessionRepo, cfg GuestTrackerConfig) *GuestTrackerService {
	return &GuestTrackerService{
		repo: repo,
		cfg:  cfg,
	}
}

// Limits returns the configured per-resource maximums
func (s *GuestTrackerService) Limits() models.GuestLimits {
	return s.cfg.Limits
}

// ResolveSession looks a session up by guest ID, creating a zeroed one if
// absent or expired, and slides the expiry window on every contact.
func (s *GuestTrackerService) ResolveSession(ctx context.Context, guestID string) (*models.GuestUsage, error) {
	session, err := s.resolve(ctx, guestID)
	if err != nil {
		return nil, err
	}

	usage := session.Usage(s.cfg.Limits, s.cfg.SessionLifetime)
	return &usage, nil
}

// RecordUsage reports consumption of one unit of a gated resource. A
// counter at its configured maximum is refused with ErrLimitReached rather
// than incremented past the cap.
func (s *GuestTrackerService) RecordUsage(ctx context.Context, guestID string, resource models.GuestResource) (*models.GuestUsage, error) {
	session, err := s.resolve(ctx, guestID)
	if err != nil {
		return nil, err
	}

	if session.Count(resource) >= s.cfg.Limits.Limit(resource) {
		return nil, models.ErrLimitReached
	}

	session.Increment(resource)
	session.LastActive = time.Now().UTC()
	if err := s.repo.Put(ctx, session); err != nil {
		return nil, err
	}

	usage := session.Usage(s.cfg.Limits, s.cfg.SessionLifetime)
	return &usage, nil
}

// resolve fetches or creates the session and refreshes lastActive. A
// session past its lifetime is treated as nonexistent even if the sweep
// has not removed it yet.
func (s *GuestTrackerService) resolve(ctx context.Context, guestID string) (*models.GuestSession, error) {
	if err := models.ValidateGuestID(guestID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	session, err := s.repo.Get(ctx, guestID)
	if err != nil {
		return nil, err
	}

	if session == nil || now.Sub(session.LastActive) > s.cfg.SessionLifetime {
		session, err = models.NewGuestSession(guestID, now)
		if err != nil {
			return nil, err
		}
	} else {
		session.LastActive = now
	}

	if err := s.repo.Put(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Start begins the background expiry sweep: once immediately, then on the
// configured period
func (s *GuestTrackerService) Start() {
	s.mu.Lock()
	if s.stopChan != nil {
		s.mu.Unlock()
		return // Already running
	}
	stop := make(chan struct{})
	s.stopChan = stop
	s.mu.Unlock()

	observability.Infof("guest session sweep started (every %s)", s.cfg.CleanupInterval)

	go s.RunCleanup(context.Background())

	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanup(context.Background())
			case <-stop:
				observability.Info("guest session sweep stopped")
				return
			}
		}
	}()
}

// Stop cancels the background sweep
func (s *GuestTrackerService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopChan == nil {
		return // Already stopped
	}
	close(s.stopChan)
	s.stopChan = nil
}

// RunCleanup removes every session idle for longer than the configured
// lifetime. This is the only path that deletes sessions.
func (s *GuestTrackerService) RunCleanup(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.cfg.SessionLifetime)

	removed, err := s.repo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		observability.Errorf("guest session sweep: %v", err)
		return
	}

	if removed > 0 {
		observability.Infof("guest session sweep removed %d expired sessions", removed)
	}
}
