package scans

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheHitRatio(t *testing.T) {
	// FilesScanned includes cache hits, so every file served from the
	// cache means a ratio of exactly 1.0.
	fullyCached := Run{FilesScanned: 5, CacheHits: 5}
	assert.Equal(t, 1.0, fullyCached.CacheHitRatio())

	half := Run{FilesScanned: 10, CacheHits: 5}
	assert.Equal(t, 0.5, half.CacheHitRatio())

	cold := Run{FilesScanned: 10}
	assert.Equal(t, 0.0, cold.CacheHitRatio())

	empty := Run{}
	assert.Equal(t, 0.0, empty.CacheHitRatio())
}
