package textutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	maxTokenLen   = 64
	keyPrefixLen  = 40
	keyDigestSize = 8
)

// SanitizeToken turns an owner or session identifier into a lowercase ASCII
// token that is safe to use as a single path element. Marks are stripped,
// every run of other characters becomes one underscore and the result is
// capped at 64 bytes. Empty results become "unknown".
func SanitizeToken(value string) string {
	value = StripMarks(strings.TrimSpace(value))
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(value) {
		if r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > maxTokenLen {
		out = strings.TrimRight(out[:maxTokenLen], "_-")
	}
	if out == "" {
		return "unknown"
	}
	return out
}

// PathKey returns a path element that is unique per trimmed identifier: a
// readable SanitizeToken prefix plus a digest of the exact value. Identifiers
// that sanitize alike ("Alice" and "alice") still get distinct keys.
func PathKey(value string) string {
	value = strings.TrimSpace(value)
	prefix := SanitizeToken(value)
	if len(prefix) > keyPrefixLen {
		prefix = strings.TrimRight(prefix[:keyPrefixLen], "_-")
	}
	sum := sha256.Sum256([]byte(value))
	return prefix + "-" + hex.EncodeToString(sum[:keyDigestSize])
}
