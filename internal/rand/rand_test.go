package rand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCallID(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewCallID(CallIDLength)
		require.Len(t, id, CallIDLength)
		for _, r := range id {
			require.True(t, strings.ContainsRune(charset, r), "unexpected rune %q", r)
		}
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestReadFillsOddLengths(t *testing.T) {
	for _, n := range []int{1, 7, 8, 9, 17} {
		buf := make([]byte, n)
		defaultRandBytes.read(buf)
		require.Len(t, buf, n)
	}
}

func BenchmarkNewCallID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewCallID(CallIDLength)
	}
}
