// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := NewCache(t.TempDir(), ttl)
	require.NoError(t, err)
	return c
}

func TestCache_PutGet(t *testing.T) {
	c := newTestCache(t, time.Hour)

	require.NoError(t, c.Put("2301.07041", "flattened text"))

	text, ok := c.Get("2301.07041")
	assert.True(t, ok)
	assert.Equal(t, "flattened text", text)
}

func TestCache_GetNormalizesID(t *testing.T) {
	c := newTestCache(t, time.Hour)

	require.NoError(t, c.Put("2301.07041", "flattened text"))

	// Versioned and old-style ids resolve to the same entry key space.
	_, ok := c.Get("2301.07041v3")
	assert.True(t, ok)
}

func TestCache_Miss(t *testing.T) {
	c := newTestCache(t, time.Hour)

	_, ok := c.Get("2301.00000")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := newTestCache(t, time.Hour)
	require.NoError(t, c.Put("2301.07041", "stale text"))

	// Advance the clock past the TTL.
	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, ok := c.Get("2301.07041")
	assert.False(t, ok)

	// The expired entry was removed on read.
	entries, _, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, entries)
}

func TestCache_Overwrite(t *testing.T) {
	c := newTestCache(t, time.Hour)
	require.NoError(t, c.Put("2301.07041", "first"))
	require.NoError(t, c.Put("2301.07041", "second"))

	text, ok := c.Get("2301.07041")
	assert.True(t, ok)
	assert.Equal(t, "second", text)
}

func TestCache_ClearAndStats(t *testing.T) {
	c := newTestCache(t, time.Hour)
	require.NoError(t, c.Put("2301.00001", "aaa"))
	require.NoError(t, c.Put("2301.00002", "bbbb"))

	entries, bytes, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, entries)
	assert.Equal(t, int64(7), bytes)

	require.NoError(t, c.Clear())

	entries, _, err = c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, entries)
}

func TestCache_OldStyleIdentifier(t *testing.T) {
	c := newTestCache(t, time.Hour)

	require.NoError(t, c.Put("cond-mat/9901001", "old style"))

	text, ok := c.Get("cond-mat/9901001")
	assert.True(t, ok)
	assert.Equal(t, "old style", text)
}
