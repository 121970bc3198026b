package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeTerm lower-cases and trims a token; term equality is by normalized text.
func NormalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}

// TermHash returns the stable cache key for a term. Lookups are always by
// hash, never by raw string, so keys stay bounded and case-insensitive.
func TermHash(term string) string {
	sum := sha256.Sum256([]byte(NormalizeTerm(term)))
	return hex.EncodeToString(sum[:])
}
