// pkg/chunk/keys.go

package chunk

import (
	"sort"
	"strconv"
	"strings"
)

// KeyMarker starts every chunk key. Keys without it are not chunks.
const KeyMarker = "_"

// EncodeKey returns the storage key of chunk n, e.g. `_42`.
func EncodeKey(n int64) string {
	return KeyMarker + strconv.FormatInt(n, 10)
}

// DecodeKey returns the sequence number of a chunk key. It reports false for
// keys without the marker and for anything but a canonical non-negative
// decimal after it.
func DecodeKey(key string) (int64, bool) {
	if !strings.HasPrefix(key, KeyMarker) {
		return 0, false
	}
	s := key[len(KeyMarker):]
	if s == "" || s[0] < '0' || s[0] > '9' {
		return 0, false
	}
	// only the canonical form, so that two keys never share a number
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsChunkKey tells if key was produced by EncodeKey.
func IsChunkKey(key string) bool {
	_, ok := DecodeKey(key)
	return ok
}

// sequences filters chunk keys and returns their numbers in ascending order.
func sequences(keys []string) []int64 {
	seqs := make([]int64, 0, len(keys))
	for _, k := range keys {
		if n, ok := DecodeKey(k); ok {
			seqs = append(seqs, n)
		}
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}
