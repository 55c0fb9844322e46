package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	c := NewSnapshotCache()
	c.Set("key", "value", time.Minute)

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", got)
}

func TestGetMissing(t *testing.T) {
	c := NewSnapshotCache()
	_, ok := c.Get("absent")
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	c := NewSnapshotCache()
	c.Set("key", "value", 10*time.Millisecond)

	_, ok := c.Get("key")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("key")
	assert.False(t, ok)
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := NewSnapshotCache()
	c.Set("key", "value", 0)

	time.Sleep(10 * time.Millisecond)
	_, ok := c.Get("key")
	assert.True(t, ok)
}

func TestDeleteAndClear(t *testing.T) {
	c := NewSnapshotCache()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestOverwrite(t *testing.T) {
	c := NewSnapshotCache()
	c.Set("key", "old", time.Minute)
	c.Set("key", "new", time.Minute)

	got, ok := c.Get("key")
	require.True(t, ok)
	assert.Equal(t, "new", got)
}
