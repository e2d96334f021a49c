// Package fingerprint computes the stable content hash used as the
// deduplication and upsert key for opportunity signals.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// separator keeps adjacent fields from bleeding into each other ("ab"+"c" vs "a"+"bc").
const separator = "\x1f"

// Normalize applies NFKC normalization, Unicode case folding and
// whitespace collapsing so cosmetic differences hash identically.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s) // Casers are stateful; one per call
	return strings.Join(strings.Fields(s), " ")
}

// Compute returns the hex SHA-256 of the normalized title, description and source.
func Compute(title, description, source string) string {
	h := sha256.New()
	h.Write([]byte(Normalize(title)))
	h.Write([]byte(separator))
	h.Write([]byte(Normalize(description)))
	h.Write([]byte(separator))
	h.Write([]byte(Normalize(source)))
	return hex.EncodeToString(h.Sum(nil))
}
