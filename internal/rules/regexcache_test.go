package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexCacheCompilesOnce(t *testing.T) {
	cache := NewRegexCache()

	first, err := cache.Get(`^a+$`)
	require.NoError(t, err)
	second, err := cache.Get(`^a+$`)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestRegexCacheRejectsBadPattern(t *testing.T) {
	cache := NewRegexCache()

	_, err := cache.Get(`(unclosed`)
	assert.Error(t, err)
	assert.Equal(t, 0, cache.Len(), "failed compilations are not cached")
}

func TestRegexCacheInvalidate(t *testing.T) {
	cache := NewRegexCache()

	first, err := cache.Get(`^a+$`)
	require.NoError(t, err)

	cache.Invalidate(`^a+$`)
	assert.Equal(t, 0, cache.Len())

	again, err := cache.Get(`^a+$`)
	require.NoError(t, err)
	assert.NotSame(t, first, again)
}
