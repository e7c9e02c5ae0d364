package search

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeName folds a game name or query for comparison: composed Unicode,
// surrounding whitespace removed, lower case.
func normalizeName(raw string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(raw)))
}
