package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateKey returns a SHA256 hex digest over parts. Parts are separated
// by a NUL byte so ("ab", "c") and ("a", "bc") produce different keys.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GenerateNamespacedKey prefixes a digest of parts with namespace so keys
// from different callers sharing one store never collide.
func GenerateNamespacedKey(namespace string, parts ...string) string {
	return strings.TrimSpace(namespace) + ":" + GenerateKey(parts...)
}
