package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateGuestID(t *testing.T) {
	t.Run("accepts a normal token", func(t *testing.T) {
		assert.NoError(t, ValidateGuestID("abc123"))
	})

	t.Run("accepts exactly 100 characters", func(t *testing.T) {
		assert.NoError(t, ValidateGuestID(strings.Repeat("a", 100)))
	})

	t.Run("rejects 101 characters", func(t *testing.T) {
		err := ValidateGuestID(strings.Repeat("a", 101))
		assert.ErrorIs(t, err, ErrGuestIDTooLong)
	})

	t.Run("rejects empty and whitespace", func(t *testing.T) {
		assert.ErrorIs(t, ValidateGuestID(""), ErrEmptyGuestID)
		assert.ErrorIs(t, ValidateGuestID("   "), ErrEmptyGuestID)
	})
}

func TestParseGuestResource(t *testing.T) {
	t.Run("parses known resources", func(t *testing.T) {
		for _, name := range []string{"scan", "history", "favorite"} {
			resource, err := ParseGuestResource(name)
			require.NoError(t, err)
			assert.Equal(t, GuestResource(name), resource)
		}
	})

	t.Run("rejects unknown resource", func(t *testing.T) {
		_, err := ParseGuestResource("upload")
		assert.ErrorIs(t, err, ErrUnknownResource)
	})
}

func TestGuestSessionUsage(t *testing.T) {
	limits := GuestLimits{MaxScans: 5, MaxHistory: 5, MaxFavorites: 5}
	lifetime := 30 * 24 * time.Hour

	t.Run("fresh session has full remaining quota", func(t *testing.T) {
		session, err := NewGuestSession("abc123", time.Now().UTC())
		require.NoError(t, err)

		usage := session.Usage(limits, lifetime)

		assert.Zero(t, usage.Scans)
		assert.Zero(t, usage.History)
		assert.Zero(t, usage.Favorites)
		assert.False(t, usage.HasReachedLimit)
		assert.Equal(t, 5, usage.RemainingScans)
		assert.Equal(t, 5, usage.RemainingHistory)
		assert.Equal(t, 5, usage.RemainingFavorites)
	})

	t.Run("remaining floors at zero", func(t *testing.T) {
		session := &GuestSession{GuestID: "abc123", Scans: 7, LastActive: time.Now().UTC()}

		usage := session.Usage(limits, lifetime)

		assert.Equal(t, 0, usage.RemainingScans)
		assert.True(t, usage.HasReachedLimit)
	})

	t.Run("any counter at its maximum trips the limit", func(t *testing.T) {
		session := &GuestSession{GuestID: "abc123", Favorites: 5, LastActive: time.Now().UTC()}

		usage := session.Usage(limits, lifetime)

		assert.True(t, usage.HasReachedLimit)
		assert.Equal(t, 5, usage.RemainingScans)
		assert.Equal(t, 0, usage.RemainingFavorites)
	})

	t.Run("expiresAt derives from lastActive", func(t *testing.T) {
		lastActive := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		session := &GuestSession{GuestID: "abc123", LastActive: lastActive}

		usage := session.Usage(limits, lifetime)

		assert.Equal(t, lastActive.Add(lifetime).UnixMilli(), usage.ExpiresAt)
	})
}

func TestGuestSessionCounters(t *testing.T) {
	session := &GuestSession{GuestID: "abc123"}

	session.Increment(ResourceScan)
	session.Increment(ResourceScan)
	session.Increment(ResourceHistory)

	assert.Equal(t, 2, session.Count(ResourceScan))
	assert.Equal(t, 1, session.Count(ResourceHistory))
	assert.Equal(t, 0, session.Count(ResourceFavorite))
}
