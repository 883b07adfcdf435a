// Package search implements query normalization, relation-graph
// expansion, and the feedback loop that tunes relation confidence.
package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a raw user query: NFKC compatibility folding
// (which unifies full-width and half-width forms), lowercasing, and
// whitespace collapse. Two raw queries with the same normalized form
// resolve identically.
//
// Normalize is pure and idempotent. Empty input normalizes to the empty
// string; the caller decides whether that is an error.
func Normalize(raw string) string {
	folded := norm.NFKC.String(raw)
	lowered := strings.ToLower(folded)
	return strings.Join(strings.Fields(lowered), " ")
}
