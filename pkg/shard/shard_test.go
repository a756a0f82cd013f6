package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_Deterministic(t *testing.T) {
	a := Of("tenant-a", 8)
	b := Of("tenant-a", 8)
	assert.Equal(t, a, b)
}

func TestOf_InRange(t *testing.T) {
	keys := []string{"tenant-a", "tenant-b", "long-tenant-identifier-123", ""}
	for _, k := range keys {
		idx := Of(k, 16)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 16)
	}
}

func TestOf_SpreadsAcrossShards(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 200; i++ {
		key := "tenant-" + string(rune('a'+i%26)) + string(rune('0'+i%10))
		seen[Of(key, 8)] = true
	}
	assert.Greater(t, len(seen), 1, "expected keys to land on more than one shard")
}
