package query

import (
	"fmt"
	"strconv"
	"time"
)

const (
	// SearchLimit is the page size for both search strategies.
	SearchLimit = 100
	// MaxIDsPerQuery is the catalog's ceiling for ids in one `where id = (...)`.
	MaxIDsPerQuery = 20
	// PopularityConcurrentPlayers is the catalog's popularity_type for
	// concurrent players.
	PopularityConcurrentPlayers = 9
	// TopRatedMinRatingCount filters out games with too few ratings.
	TopRatedMinRatingCount = 40
)

var (
	detailFields = []string{
		"id", "name", "summary", "cover.image_id", "first_release_date",
		"genres.name", "platforms.name", "themes.name", "game_modes.name",
		"involved_companies.company.name",
	}
	summaryFields = []string{"id", "name", "cover.image_id"}
	listFields    = []string{
		"id", "name", "cover.image_id", "first_release_date", "rating", "total_rating_count",
	}
)

func ByID(id int64) (string, error) {
	if err := validateIDs([]int64{id}); err != nil {
		return "", err
	}
	return New().
		Fields(detailFields...).
		Where("id = " + strconv.FormatInt(id, 10)).
		Limit(1).
		String(), nil
}

func ByIDs(ids []int64) (string, error) {
	if err := validateIDs(ids); err != nil {
		return "", err
	}
	return New().
		Fields(summaryFields...).
		Where(fmt.Sprintf("id = (%s)", joinIDs(ids))).
		Limit(len(ids)).
		String(), nil
}

func FullTextSearch(text string) (string, error) {
	normalized, err := SearchText(text)
	if err != nil {
		return "", err
	}
	return New().
		Search(normalized).
		Fields(summaryFields...).
		Limit(SearchLimit).
		String(), nil
}

// PartialSearch matches names containing text anywhere, case-insensitively.
func PartialSearch(text string) (string, error) {
	normalized, err := SearchText(text)
	if err != nil {
		return "", err
	}
	return New().
		Fields(summaryFields...).
		Where("name ~ *" + Quote(normalized) + "*").
		Sort("popularity", Desc).
		Limit(SearchLimit).
		String(), nil
}

func TopRated(limit int) string {
	return New().
		Fields(listFields...).
		Where("rating != null").
		Where("cover != null").
		Where("rating_count > " + strconv.Itoa(TopRatedMinRatingCount)).
		Sort("rating", Desc).
		Limit(ClampLimit(limit)).
		String()
}

func MostPlayed(limit int) string {
	return New().
		Fields(listFields...).
		Where("total_rating_count != null").
		Where("cover != null").
		Sort("total_rating_count", Desc).
		Limit(ClampLimit(limit)).
		String()
}

func RecentlyReleased(limit int, now time.Time) string {
	return New().
		Fields(listFields...).
		Where("first_release_date != null").
		Where("first_release_date <= " + strconv.FormatInt(now.Unix(), 10)).
		Where("cover != null").
		Sort("first_release_date", Desc).
		Limit(ClampLimit(limit)).
		String()
}

// PopularityPrimitives targets the popularity_primitives collection.
func PopularityPrimitives(limit int) string {
	return New().
		Fields("game_id", "value").
		Where("popularity_type = " + strconv.Itoa(PopularityConcurrentPlayers)).
		Sort("value", Desc).
		Limit(ClampLimit(limit)).
		String()
}
