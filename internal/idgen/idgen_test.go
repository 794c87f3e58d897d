package idgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextUint64IsUnique(t *testing.T) {
	g := New()
	seen := make(map[uint64]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := g.NextUint64()
		_, dup := seen[id]
		require.False(t, dup, "id %d collided", id)
		seen[id] = struct{}{}
	}
}

func TestNextUint64NeverZero(t *testing.T) {
	g := New()
	for i := 0; i < 100; i++ {
		require.NotZero(t, g.NextUint64())
	}
}
