package ttlcache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetAndGet(t *testing.T) {
	c := New[int](time.Minute, 10)

	c.Set("a", 1)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCache_Expiry(t *testing.T) {
	c := New[string](20*time.Millisecond, 10)

	c.Set("k", "v")
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestCache_GetOrCompute(t *testing.T) {
	c := New[string](time.Minute, 10)
	computes := 0

	compute := func() (string, error) {
		computes++
		return "value", nil
	}

	got, err := c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	got, err = c.GetOrCompute("k", compute)
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 1, computes, "second call must hit the cache")
}

func TestCache_GetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := New[string](time.Minute, 10)
	calls := 0

	_, err := c.GetOrCompute("k", func() (string, error) {
		calls++
		return "", errors.New("nope")
	})
	require.Error(t, err)

	got, err := c.GetOrCompute("k", func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestKey_NormalizesTerm(t *testing.T) {
	assert.Equal(t, Key("search_5", "Metformin"), Key("search_5", "  metformin "))
	assert.NotEqual(t, Key("search_5", "metformin"), Key("search_10", "metformin"))
}

func TestCache_DeleteAndLen(t *testing.T) {
	c := New[int](time.Minute, 10)

	c.Set("a", 1)
	c.Set("b", 2)
	assert.Equal(t, 2, c.Len())

	c.Delete("a")
	assert.Equal(t, 1, c.Len())

	c.Flush()
	assert.Zero(t, c.Len())
}
