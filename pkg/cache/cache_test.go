package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalview/vitalcore/pkg/domain"
	"github.com/vitalview/vitalcore/pkg/membrane"
)

func TestKeyComposition(t *testing.T) {
	t.Run("distinguishes domain, mode and params", func(t *testing.T) {
		base := Key(domain.KeyGlucose, false, map[string]any{"range": "7d"})
		assert.NotEqual(t, base, Key(domain.KeyHeartRate, false, map[string]any{"range": "7d"}))
		assert.NotEqual(t, base, Key(domain.KeyGlucose, true, map[string]any{"range": "7d"}))
		assert.NotEqual(t, base, Key(domain.KeyGlucose, false, map[string]any{"range": "30d"}))
	})

	t.Run("logically equal params share a key", func(t *testing.T) {
		a := Key(domain.KeySleep, false, map[string]any{"a": 1, "b": 2})
		b := Key(domain.KeySleep, false, map[string]any{"b": 2, "a": 1})
		assert.Equal(t, a, b, "JSON serialization sorts map keys")
	})

	t.Run("nil params are stable", func(t *testing.T) {
		assert.Equal(t, Key(domain.KeySpO2, true, nil), Key(domain.KeySpO2, true, nil))
	})
}

func TestResultCache(t *testing.T) {
	mem := membrane.New(nil)
	cacheKey := Key(domain.KeyGlucose, false, nil)

	sealed, err := mem.Seal(domain.KeyGlucose, map[string]any{"mgdl": 90})
	require.NoError(t, err)

	c := NewResultCache()

	_, ok := c.Get(cacheKey)
	assert.False(t, ok)

	c.Set(cacheKey, sealed)
	got, ok := c.Get(cacheKey)
	require.True(t, ok)
	assert.Equal(t, sealed.Epoch(), got.Epoch())

	// Replace-only: a new envelope swaps the entry wholesale.
	next, err := mem.Seal(domain.KeyGlucose, map[string]any{"mgdl": 102})
	require.NoError(t, err)
	c.Set(cacheKey, next)
	got, _ = c.Get(cacheKey)
	assert.Equal(t, next.Epoch(), got.Epoch())

	c.Invalidate(cacheKey)
	_, ok = c.Get(cacheKey)
	assert.False(t, ok)
}

func TestInvalidateDomain(t *testing.T) {
	mem := membrane.New(nil)
	c := NewResultCache()

	live, err := mem.Seal(domain.KeyHeartRate, map[string]any{"bpm": 70})
	require.NoError(t, err)
	demo, err := mem.Seal(domain.KeyHeartRate, map[string]any{"bpm": 64})
	require.NoError(t, err)
	other, err := mem.Seal(domain.KeySleep, map[string]any{"total_min": 420})
	require.NoError(t, err)

	c.Set(Key(domain.KeyHeartRate, false, nil), live)
	c.Set(Key(domain.KeyHeartRate, true, nil), demo)
	c.Set(Key(domain.KeySleep, false, nil), other)

	c.InvalidateDomain(domain.KeyHeartRate)

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(Key(domain.KeySleep, false, nil))
	assert.True(t, ok, "other domains must survive")
}
