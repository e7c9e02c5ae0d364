package search

import (
	"strings"

	"gamecatalog/catalogservice/internal/domain"
)

type matchKind int

const (
	matchOther matchKind = iota
	matchPrefix
	matchExact
)

func classify(name, normalizedQuery string) matchKind {
	normalized := normalizeName(name)
	switch {
	case normalized == normalizedQuery:
		return matchExact
	case strings.HasPrefix(normalized, normalizedQuery):
		return matchPrefix
	default:
		return matchOther
	}
}

// Rank orders games as exact name matches, then prefix matches, then the
// rest. Input order is kept inside each group and the input is not modified.
func Rank(games []domain.Game, query string) []domain.Game {
	ranked := make([]domain.Game, 0, len(games))
	if len(games) == 0 {
		return ranked
	}
	normalizedQuery := normalizeName(query)

	var prefix, other []domain.Game
	for _, game := range games {
		switch classify(game.Name, normalizedQuery) {
		case matchExact:
			ranked = append(ranked, game)
		case matchPrefix:
			prefix = append(prefix, game)
		default:
			other = append(other, game)
		}
	}
	ranked = append(ranked, prefix...)
	return append(ranked, other...)
}

// HasGoodMatch reports whether any game name equals or starts with query.
func HasGoodMatch(games []domain.Game, query string) bool {
	normalizedQuery := normalizeName(query)
	for _, game := range games {
		if classify(game.Name, normalizedQuery) != matchOther {
			return true
		}
	}
	return false
}
