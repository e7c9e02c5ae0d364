package domain

import "time"

// Catalog collection names.
const (
	EntityGames                = "games"
	EntityPopularityPrimitives = "popularity_primitives"
)

type Cover struct {
	ImageID string `json:"image_id"`
}

type NamedRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

type Company struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

type InvolvedCompany struct {
	ID      int64    `json:"id,omitempty"`
	Company *Company `json:"company,omitempty"`
}

// Game is a catalog game record. Only the fields requested by the query
// projection are populated.
type Game struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Summary           string            `json:"summary,omitempty"`
	Cover             *Cover            `json:"cover,omitempty"`
	FirstReleaseDate  int64             `json:"first_release_date,omitempty"`
	Rating            float64           `json:"rating,omitempty"`
	RatingCount       int               `json:"rating_count,omitempty"`
	TotalRatingCount  int               `json:"total_rating_count,omitempty"`
	Genres            []NamedRef        `json:"genres,omitempty"`
	Platforms         []NamedRef        `json:"platforms,omitempty"`
	Themes            []NamedRef        `json:"themes,omitempty"`
	GameModes         []NamedRef        `json:"game_modes,omitempty"`
	InvolvedCompanies []InvolvedCompany `json:"involved_companies,omitempty"`
}

func (g Game) CoverImageID() string {
	if g.Cover == nil {
		return ""
	}
	return g.Cover.ImageID
}

func (g Game) ReleasedAt() *time.Time {
	if g.FirstReleaseDate <= 0 {
		return nil
	}
	released := time.Unix(g.FirstReleaseDate, 0).UTC()
	return &released
}

// PopularityPrimitive pairs a game with a score for one popularity metric.
type PopularityPrimitive struct {
	ID             int64   `json:"id,omitempty"`
	GameID         int64   `json:"game_id"`
	Value          float64 `json:"value"`
	PopularityType int     `json:"popularity_type,omitempty"`
}

// AccessToken is a bearer token for the catalog API.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at now.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && !t.ExpiresAt.IsZero() && now.Before(t.ExpiresAt)
}

type DiscoveryList string

const (
	DiscoveryTopRated         DiscoveryList = "top-rated"
	DiscoveryMostPlayed       DiscoveryList = "most-played"
	DiscoveryRecentlyReleased DiscoveryList = "recently-released"
	DiscoveryPopular          DiscoveryList = "popular"
)
