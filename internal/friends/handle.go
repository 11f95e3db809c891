// ABOUTME: Handle normalization for profile lookups
// ABOUTME: NFKC + Unicode case folding so visually equal handles compare equal

package friends

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeHandle canonicalizes a user-typed handle: trims spaces, drops a
// leading "@", applies NFKC and case folding. Returns "" for blank input.
func NormalizeHandle(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(h, "@")
	if h == "" {
		return ""
	}
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(norm.NFKC.String(h))
}
