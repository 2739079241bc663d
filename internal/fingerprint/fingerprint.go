// Package fingerprint derives a content identity for questions so that the
// same question imported twice can be recognised regardless of its id.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/qbank/internal/domain"
)

// Normalize joins the question and answer after cleaning each part.
// Each part is lowercased, trimmed and has its line endings normalized.
func Normalize(q domain.Question) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.TrimSpace(p)
		return p
	}

	// The separator keeps "ab"+"c" distinct from "a"+"bc".
	return normalizePart(q.Question) + "\n" + normalizePart(q.Answer)
}

// Of returns the SHA-256 of the normalized question as a hex string.
func Of(q domain.Question) string {
	sum := sha256.Sum256([]byte(Normalize(q)))
	return fmt.Sprintf("%x", sum)
}
