package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashKey derives a stable cache key from its parts. Parts are trimmed and
// separated by a NUL byte so ("ab", "c") and ("a", "bc") never collide.
func HashKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(strings.TrimSpace(p)))
	}
	return hex.EncodeToString(h.Sum(nil))
}
