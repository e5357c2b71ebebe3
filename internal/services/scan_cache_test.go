package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leafsync/server/internal/models"
)

// memStore is an in-memory KeyValueStore for tests
type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(key string) ([]byte, error) {
	data, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (m *memStore) Set(key string, value []byte) error {
	copied := make([]byte, len(value))
	copy(copied, value)
	m.data[key] = copied
	return nil
}

func (m *memStore) Delete(key string) error {
	delete(m.data, key)
	return nil
}

// failingStore refuses all writes
type failingStore struct {
	*memStore
}

func (f *failingStore) Set(key string, value []byte) error {
	return errors.New("disk full")
}

// fakeRemote records batches and fails on demand
type fakeRemote struct {
	err     error
	batches [][]*models.CachedDiagnosis
}

func (r *fakeRemote) UploadBatch(ctx context.Context, scans []*models.CachedDiagnosis) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, scans)
	return nil
}

func offlineCache(store KeyValueStore, remote RemoteScanStore) *ScanCacheService {
	cache := NewScanCacheService(store, remote, nil)
	cache.SetOnline(context.Background(), false)
	return cache
}

var sampleScan = models.DiagnosisInput{Image: "img1", Plant: "tomato", Issue: "blight"}

func TestScanCacheAddToQueue(t *testing.T) {
	t.Run("offline scans are cached unsynced and queued", func(t *testing.T) {
		cache := offlineCache(newMemStore(), &fakeRemote{})

		diagnosis, err := cache.AddToQueue(context.Background(), sampleScan)

		require.NoError(t, err)
		assert.False(t, diagnosis.Synced)
		assert.Equal(t, 1, cache.PendingCount())

		history := cache.CachedHistory()
		require.Len(t, history, 1)
		assert.False(t, history[0].Synced)
	})

	t.Run("online scans are cached already synced", func(t *testing.T) {
		cache := NewScanCacheService(newMemStore(), &fakeRemote{}, nil)

		diagnosis, err := cache.AddToQueue(context.Background(), sampleScan)

		require.NoError(t, err)
		assert.True(t, diagnosis.Synced)
		assert.Zero(t, cache.PendingCount())
		assert.Len(t, cache.CachedHistory(), 1)
	})

	t.Run("queue always matches the unsynced subset of the cache", func(t *testing.T) {
		cache := offlineCache(newMemStore(), &fakeRemote{})

		for i := 0; i < 4; i++ {
			_, err := cache.AddToQueue(context.Background(), sampleScan)
			require.NoError(t, err)
		}

		unsynced := 0
		for _, d := range cache.CachedHistory() {
			if !d.Synced {
				unsynced++
			}
		}
		assert.Equal(t, unsynced, cache.PendingCount())
	})

	t.Run("rejects a scan without an image reference", func(t *testing.T) {
		cache := NewScanCacheService(newMemStore(), &fakeRemote{}, nil)

		_, err := cache.AddToQueue(context.Background(), models.DiagnosisInput{Plant: "tomato", Issue: "blight"})

		assert.ErrorIs(t, err, models.ErrEmptyImage)
		assert.Empty(t, cache.CachedHistory())
	})

	t.Run("persistence failure never surfaces to the caller", func(t *testing.T) {
		cache := offlineCache(&failingStore{newMemStore()}, &fakeRemote{})

		diagnosis, err := cache.AddToQueue(context.Background(), sampleScan)

		require.NoError(t, err)
		assert.NotNil(t, diagnosis)
		// Memory stays authoritative even though nothing was persisted
		assert.Len(t, cache.CachedHistory(), 1)
		assert.Equal(t, 1, cache.PendingCount())
	})
}

func TestScanCacheSync(t *testing.T) {
	t.Run("successful sync empties the queue and marks everything synced", func(t *testing.T) {
		remote := &fakeRemote{}
		cache := offlineCache(newMemStore(), remote)

		for i := 0; i < 3; i++ {
			_, err := cache.AddToQueue(context.Background(), sampleScan)
			require.NoError(t, err)
		}

		cache.SetOnline(context.Background(), true)

		assert.Zero(t, cache.PendingCount())
		require.Len(t, remote.batches, 1)
		assert.Len(t, remote.batches[0], 3)
		for _, d := range cache.CachedHistory() {
			assert.True(t, d.Synced)
			assert.Equal(t, models.SyncDone, d.Status)
		}
	})

	t.Run("no-op while offline", func(t *testing.T) {
		remote := &fakeRemote{}
		cache := offlineCache(newMemStore(), remote)

		_, err := cache.AddToQueue(context.Background(), sampleScan)
		require.NoError(t, err)

		uploaded, err := cache.SyncPendingScans(context.Background())

		require.NoError(t, err)
		assert.Zero(t, uploaded)
		assert.Empty(t, remote.batches)
		assert.Equal(t, 1, cache.PendingCount())
	})

	t.Run("no-op with an empty queue", func(t *testing.T) {
		remote := &fakeRemote{}
		cache := NewScanCacheService(newMemStore(), remote, nil)

		uploaded, err := cache.SyncPendingScans(context.Background())

		require.NoError(t, err)
		assert.Zero(t, uploaded)
		assert.Empty(t, remote.batches)
	})

	t.Run("remote failure keeps the queue intact for retry", func(t *testing.T) {
		remote := &fakeRemote{err: errors.New("connection refused")}
		cache := offlineCache(newMemStore(), remote)

		_, err := cache.AddToQueue(context.Background(), sampleScan)
		require.NoError(t, err)

		cache.SetOnline(context.Background(), true)

		assert.Equal(t, 1, cache.PendingCount())
		history := cache.CachedHistory()
		require.Len(t, history, 1)
		assert.False(t, history[0].Synced)
		assert.Equal(t, models.SyncFailed, history[0].Status)
		assert.Equal(t, 1, history[0].Attempts)
		require.NotNil(t, history[0].NextRetryAt)
		assert.True(t, history[0].NextRetryAt.After(time.Now().UTC()))
	})

	t.Run("failed items are not retried before their backoff elapses", func(t *testing.T) {
		remote := &fakeRemote{err: errors.New("connection refused")}
		cache := offlineCache(newMemStore(), remote)

		_, err := cache.AddToQueue(context.Background(), sampleScan)
		require.NoError(t, err)

		cache.SetOnline(context.Background(), true)

		// Remote recovers, but the item is still inside its backoff window
		remote.err = nil
		uploaded, err := cache.SyncPendingScans(context.Background())

		require.NoError(t, err)
		assert.Zero(t, uploaded)
		assert.Empty(t, remote.batches)
		assert.Equal(t, 1, cache.PendingCount())
	})

	t.Run("status reports the last sync error", func(t *testing.T) {
		remote := &fakeRemote{err: errors.New("connection refused")}
		cache := offlineCache(newMemStore(), remote)

		_, err := cache.AddToQueue(context.Background(), sampleScan)
		require.NoError(t, err)

		cache.SetOnline(context.Background(), true)

		status := cache.Status()
		assert.True(t, status.Online)
		assert.Equal(t, 1, status.PendingScans)
		assert.Contains(t, status.LastSyncError, "connection refused")
		assert.Nil(t, status.LastSyncAt)
	})

	t.Run("repeated online transitions do not re-sync a clean queue", func(t *testing.T) {
		remote := &fakeRemote{}
		cache := offlineCache(newMemStore(), remote)

		_, err := cache.AddToQueue(context.Background(), sampleScan)
		require.NoError(t, err)

		cache.SetOnline(context.Background(), true)
		cache.SetOnline(context.Background(), true)
		cache.SetOnline(context.Background(), false)
		cache.SetOnline(context.Background(), true)

		assert.Len(t, remote.batches, 1)
	})
}

func TestScanCacheHistoryOrdering(t *testing.T) {
	t.Run("history is sorted by timestamp descending for any insertion order", func(t *testing.T) {
		store := newMemStore()

		base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		persisted := []*models.CachedDiagnosis{
			{ID: "b", Image: "img", Plant: "p", Issue: "i", Timestamp: base.Add(time.Minute), Synced: true, Status: models.SyncDone},
			{ID: "c", Image: "img", Plant: "p", Issue: "i", Timestamp: base.Add(2 * time.Minute), Synced: true, Status: models.SyncDone},
			{ID: "a", Image: "img", Plant: "p", Issue: "i", Timestamp: base, Synced: true, Status: models.SyncDone},
		}
		data, err := json.Marshal(persisted)
		require.NoError(t, err)
		require.NoError(t, store.Set("leafsync:cached_scans", data))

		cache := NewScanCacheService(store, &fakeRemote{}, nil)

		history := cache.CachedHistory()
		require.Len(t, history, 3)
		assert.Equal(t, "c", history[0].ID)
		assert.Equal(t, "b", history[1].ID)
		assert.Equal(t, "a", history[2].ID)
	})
}

func TestScanCacheLoad(t *testing.T) {
	t.Run("queue is rebuilt from unsynced cached records", func(t *testing.T) {
		store := newMemStore()

		persisted := []*models.CachedDiagnosis{
			{ID: "done", Image: "img", Plant: "p", Issue: "i", Timestamp: time.Now().UTC(), Synced: true, Status: models.SyncDone},
			{ID: "lost", Image: "img", Plant: "p", Issue: "i", Timestamp: time.Now().UTC(), Synced: false, Status: models.SyncPending},
		}
		data, err := json.Marshal(persisted)
		require.NoError(t, err)
		require.NoError(t, store.Set("leafsync:cached_scans", data))
		// Stale pending key from a crash mid-sync
		require.NoError(t, store.Set("leafsync:pending_scans", []byte("[]")))

		cache := NewScanCacheService(store, &fakeRemote{}, nil)

		assert.Equal(t, 1, cache.PendingCount())
		assert.Len(t, cache.CachedHistory(), 2)
	})

	t.Run("in-flight records from a crashed pass return to pending", func(t *testing.T) {
		store := newMemStore()

		persisted := []*models.CachedDiagnosis{
			{ID: "x", Image: "img", Plant: "p", Issue: "i", Timestamp: time.Now().UTC(), Synced: false, Status: models.SyncInFlight},
		}
		data, err := json.Marshal(persisted)
		require.NoError(t, err)
		require.NoError(t, store.Set("leafsync:cached_scans", data))

		cache := NewScanCacheService(store, &fakeRemote{}, nil)

		history := cache.CachedHistory()
		require.Len(t, history, 1)
		assert.Equal(t, models.SyncPending, history[0].Status)
		assert.Equal(t, 1, cache.PendingCount())
	})
}

func TestScanCacheClear(t *testing.T) {
	t.Run("clear removes everything from memory and persistence", func(t *testing.T) {
		store := newMemStore()
		cache := offlineCache(store, &fakeRemote{})

		_, err := cache.AddToQueue(context.Background(), sampleScan)
		require.NoError(t, err)

		cache.ClearCache()

		assert.Empty(t, cache.CachedHistory())
		assert.Zero(t, cache.PendingCount())

		data, err := store.Get("leafsync:cached_scans")
		require.NoError(t, err)
		assert.JSONEq(t, "[]", string(data))
	})
}

func TestScanCachePersistence(t *testing.T) {
	t.Run("state survives a restart", func(t *testing.T) {
		store := newMemStore()
		cache := offlineCache(store, &fakeRemote{})

		_, err := cache.AddToQueue(context.Background(), sampleScan)
		require.NoError(t, err)

		reloaded := NewScanCacheService(store, &fakeRemote{}, nil)

		assert.Len(t, reloaded.CachedHistory(), 1)
		assert.Equal(t, 1, reloaded.PendingCount())
	})
}
