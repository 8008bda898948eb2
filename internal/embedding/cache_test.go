package embedding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCachePutGet(t *testing.T) {
	c := NewCache(time.Hour)
	vec := []float32{1, 2, 3}
	c.Put(Key("hello"), vec)

	got, ok := c.Get(Key("hello"))
	require.True(t, ok)
	assert.Equal(t, vec, got)

	_, ok = c.Get(Key("other"))
	assert.False(t, ok)
}

func TestCacheKeyTrimsWhitespace(t *testing.T) {
	assert.Equal(t, Key("hello"), Key("  hello \n"))
	assert.NotEqual(t, Key("hello"), Key("hello world"))
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.Put(Key("q"), []float32{1})
	_, ok := c.Get(Key("q"))
	require.True(t, ok)

	// Just inside the TTL.
	now = now.Add(time.Minute)
	_, ok = c.Get(Key("q"))
	assert.True(t, ok)

	// Past the TTL the entry expires and is evicted.
	now = now.Add(time.Second)
	_, ok = c.Get(Key("q"))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheRefreshAfterExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	c.Put(Key("q"), []float32{1})
	now = now.Add(2 * time.Minute)
	_, ok := c.Get(Key("q"))
	require.False(t, ok)

	c.Put(Key("q"), []float32{2})
	got, ok := c.Get(Key("q"))
	require.True(t, ok)
	assert.Equal(t, []float32{2}, got)
}
