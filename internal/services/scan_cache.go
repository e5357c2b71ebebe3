package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/leafsync/server/internal/models"
	"github.com/leafsync/server/internal/observability"
)

// Local persistence keys. Each holds a full JSON array, rewritten whole
// after every mutation.
const (
	cachedScansKey  = "leafsync:cached_scans"
	pendingScansKey = "leafsync:pending_scans"
)

// ScanCacheService retains diagnosis results regardless of connectivity and
// reconciles queued results with the remote store when it comes back.
//
// Invariant: every diagnosis in the queued collection also appears in the
// cached collection, and queued holds exactly the cached entries with
// Synced == false.
type ScanCacheService struct {
	store  KeyValueStore
	remote RemoteScanStore
	hub    *EventsHub

	mu          sync.Mutex
	online      bool
	syncing     bool
	cached      []*models.CachedDiagnosis
	queued      []*models.CachedDiagnosis
	lastSyncAt  *time.Time
	lastSyncErr string
}

// NewScanCacheService creates the cache and loads persisted state. The
// queue is rebuilt from the cached collection rather than trusted from its
// own key, so a crash between upload and persist cannot lose records.
func NewScanCacheService(store KeyValueStore, remote RemoteScanStore, hub *EventsHub) *ScanCacheService {
	s := &ScanCacheService{
		store:  store,
		remote: remote,
		hub:    hub,
		online: true,
	}
	s.load()
	return s
}

func (s *ScanCacheService) load() {
	data, err := s.store.Get(cachedScansKey)
	if err != nil {
		observability.Errorf("load cached scans: %v", err)
		return
	}
	if data == nil {
		return
	}

	var cached []*models.CachedDiagnosis
	if err := json.Unmarshal(data, &cached); err != nil {
		observability.Errorf("decode cached scans: %v", err)
		return
	}

	// Reconcile: anything not confirmed synced re-enters the queue, and a
	// pass that died mid-flight goes back to pending.
	var queued []*models.CachedDiagnosis
	for _, d := range cached {
		if d.Status == models.SyncInFlight {
			d.Status = models.SyncPending
		}
		if !d.Synced {
			queued = append(queued, d)
		}
	}

	s.cached = cached
	s.queued = queued
}

// Online reports the current connectivity flag
func (s *ScanCacheService) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// SetOnline records a connectivity change. The offline-to-online transition
// triggers exactly one sync attempt.
func (s *ScanCacheService) SetOnline(ctx context.Context, online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(EventConnectivity, map[string]bool{"online": online})
	}

	if online && !wasOnline {
		if _, err := s.SyncPendingScans(ctx); err != nil {
			observability.Warnf("sync on reconnect: %v", err)
		}
	}
}

// AddToQueue caches a new diagnosis. A result captured while online is
// stored already synced; offline results join the queue. Persistence
// trouble is logged, never surfaced: memory stays authoritative.
func (s *ScanCacheService) AddToQueue(ctx context.Context, input models.DiagnosisInput) (*models.CachedDiagnosis, error) {
	s.mu.Lock()
	diagnosis, err := models.NewCachedDiagnosis(input, s.online)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	s.cached = append(s.cached, diagnosis)
	if !diagnosis.Synced {
		s.queued = append(s.queued, diagnosis)
	}
	s.persistLocked()
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(EventScanCached, diagnosis)
	}

	return diagnosis, nil
}

// SyncPendingScans uploads due queued records in one batch. It is a no-op
// while offline, with an empty queue, or while another pass runs. Failure
// leaves the queue intact: attempts are counted per record and the next
// try is pushed out with exponential backoff.
func (s *ScanCacheService) SyncPendingScans(ctx context.Context) (int, error) {
	s.mu.Lock()
	if !s.online || len(s.queued) == 0 || s.syncing {
		s.mu.Unlock()
		return 0, nil
	}

	now := time.Now().UTC()
	var due []*models.CachedDiagnosis
	for _, d := range s.queued {
		if d.NextRetryAt == nil || !d.NextRetryAt.After(now) {
			due = append(due, d)
		}
	}
	if len(due) == 0 {
		s.mu.Unlock()
		return 0, nil
	}

	s.syncing = true
	for _, d := range due {
		d.Status = models.SyncInFlight
	}
	s.persistLocked()
	s.mu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(EventSyncStarted, map[string]int{"pending": len(due)})
	}

	err := s.remote.UploadBatch(ctx, due)

	s.mu.Lock()
	s.syncing = false

	if err != nil {
		for _, d := range due {
			d.Attempts++
			d.Status = models.SyncFailed
			retryAt := time.Now().UTC().Add(nextRetryDelay(d.Attempts))
			d.NextRetryAt = &retryAt
		}
		s.lastSyncErr = err.Error()
		s.persistLocked()
		s.mu.Unlock()

		observability.Warnf("sync failed, %d scans kept queued: %v", len(due), err)
		if s.hub != nil {
			s.hub.Broadcast(EventSyncFailed, map[string]string{"error": err.Error()})
		}
		return 0, err
	}

	uploaded := make(map[string]bool, len(due))
	for _, d := range due {
		d.Synced = true
		d.Status = models.SyncDone
		d.Attempts = 0
		d.NextRetryAt = nil
		uploaded[d.ID] = true
	}

	remaining := s.queued[:0]
	for _, d := range s.queued {
		if !uploaded[d.ID] {
			remaining = append(remaining, d)
		}
	}
	s.queued = remaining

	syncedAt := time.Now().UTC()
	s.lastSyncAt = &syncedAt
	s.lastSyncErr = ""
	s.persistLocked()
	s.mu.Unlock()

	observability.Infof("synced %d scans", len(due))
	if s.hub != nil {
		s.hub.Broadcast(EventSyncComplete, map[string]int{"uploaded": len(due)})
	}

	return len(due), nil
}

// CachedHistory returns all cached diagnoses, newest first
func (s *ScanCacheService) CachedHistory() []*models.CachedDiagnosis {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]*models.CachedDiagnosis, len(s.cached))
	copy(history, s.cached)

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.After(history[j].Timestamp)
	})

	return history
}

// PendingCount returns the number of queued diagnoses
func (s *ScanCacheService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued)
}

// Status reports connectivity and queue state
func (s *ScanCacheService) Status() models.SyncStatusResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.SyncStatusResponse{
		Online:        s.online,
		CachedScans:   len(s.cached),
		PendingScans:  len(s.queued),
		LastSyncAt:    s.lastSyncAt,
		LastSyncError: s.lastSyncErr,
	}
}

// ClearCache removes every cached and queued diagnosis. This is the only
// deletion path.
func (s *ScanCacheService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	s.queued = nil
	s.persistLocked()
}

// persistLocked rewrites both collections in full. Callers hold s.mu.
// Errors are absorbed: the in-memory state stays authoritative for the
// rest of the process lifetime.
func (s *ScanCacheService) persistLocked() {
	cached := s.cached
	if cached == nil {
		cached = []*models.CachedDiagnosis{}
	}
	queued := s.queued
	if queued == nil {
		queued = []*models.CachedDiagnosis{}
	}

	if data, err := json.Marshal(cached); err != nil {
		observability.Errorf("encode cached scans: %v", err)
	} else if err := s.store.Set(cachedScansKey, data); err != nil {
		observability.Errorf("persist cached scans: %v", err)
	}

	if data, err := json.Marshal(queued); err != nil {
		observability.Errorf("encode pending scans: %v", err)
	} else if err := s.store.Set(pendingScansKey, data); err != nil {
		observability.Errorf("persist pending scans: %v", err)
	}
}

// nextRetryDelay walks the exponential backoff schedule to the given
// attempt number
func nextRetryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.RandomizationFactor = 0.25
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Minute

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	return delay
}
