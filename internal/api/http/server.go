package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/query"
)

type SearchService interface {
	Search(ctx context.Context, text string) ([]domain.Game, error)
	GameByID(ctx context.Context, id int64) (*domain.Game, error)
	GamesByIDs(ctx context.Context, ids []int64) ([]domain.Game, error)
}

type DiscoveryService interface {
	TopRated(ctx context.Context, limit int) ([]domain.Game, error)
	MostPlayed(ctx context.Context, limit int) ([]domain.Game, error)
	RecentlyReleased(ctx context.Context, limit int) ([]domain.Game, error)
	PopularityWeighted(ctx context.Context, limit int) ([]domain.Game, error)
}

type Server struct {
	search       SearchService
	discovery    DiscoveryService
	logger       *slog.Logger
	imageBaseURL string
	defaultCover string
	coverClient  *http.Client
	rateLimit    float64
	rateBurst    int
}

const (
	defaultImageBaseURL = "https://images.igdb.com/igdb/image/upload"
	defaultCoverPath    = "/default_game_cover.jpg"
	maxSearchBodyBytes  = 4 << 10
	maxListLimit        = 100
	maxBatchIDs         = 500
	catalogErrorMessage = "failed to fetch from catalog"
)

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithDiscovery(discovery DiscoveryService) ServerOption {
	return func(s *Server) {
		s.discovery = discovery
	}
}

func WithImageBaseURL(baseURL string) ServerOption {
	return func(s *Server) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			s.imageBaseURL = trimmed
		}
	}
}

func WithDefaultCover(path string) ServerOption {
	return func(s *Server) {
		if trimmed := strings.TrimSpace(path); trimmed != "" {
			s.defaultCover = trimmed
		}
	}
}

// WithCoverClient sets the client used to fetch cover images.
func WithCoverClient(client *http.Client) ServerOption {
	return func(s *Server) {
		s.coverClient = client
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateLimit = rps
		s.rateBurst = burst
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:       searchService,
		logger:       slog.Default(),
		imageBaseURL: defaultImageBaseURL,
		defaultCover: defaultCoverPath,
		rateLimit:    50,
		rateBurst:    100,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	if server.coverClient == nil {
		server.coverClient = newCoverClient()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /games/search", s.handleSearch)
	mux.HandleFunc("POST /api/search", s.handleSearchJSON)
	mux.HandleFunc("GET /games/batch", s.handleBatch)
	mux.HandleFunc("GET /games/top-rated", s.handleDiscovery(domain.DiscoveryTopRated, 5))
	mux.HandleFunc("GET /games/most-played", s.handleDiscovery(domain.DiscoveryMostPlayed, 5))
	mux.HandleFunc("GET /games/recently-released", s.handleDiscovery(domain.DiscoveryRecentlyReleased, 5))
	mux.HandleFunc("GET /games/popular", s.handleDiscovery(domain.DiscoveryPopular, 10))
	mux.HandleFunc("GET /games/covers/{imageId}", s.handleCoverProxy)
	mux.HandleFunc("GET /games/{id}", s.handleGame)

	traced := otelhttp.NewHandler(requestIDMiddleware(loggingMiddleware(s.logger, mux)), "catalog-service",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateLimit, s.rateBurst, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.respondSearch(w, r, r.URL.Query().Get("q"))
}

type searchRequest struct {
	Query string `json:"query"`
}

func (s *Server) handleSearchJSON(w http.ResponseWriter, r *http.Request) {
	var payload searchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSearchBodyBytes)).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body")
		return
	}
	s.respondSearch(w, r, payload.Query)
}

func (s *Server) respondSearch(w http.ResponseWriter, r *http.Request, text string) {
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	games, err := s.search.Search(r.Context(), text)
	if err != nil {
		s.writeServiceError(w, r, "game search failed", err, slog.String("query", truncate(text, 80)))
		return
	}
	writeJSON(w, http.StatusOK, s.gameResponses(games))
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	id, err := query.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid game id")
		return
	}
	game, err := s.search.GameByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, "game lookup failed", err, slog.Int64("id", id))
		return
	}
	if game == nil {
		writeError(w, http.StatusNotFound, "not_found", "game not found")
		return
	}
	writeJSON(w, http.StatusOK, s.gameResponse(*game))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing ids parameter")
		return
	}
	ids, err := query.ParseIDs(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "no valid ids provided")
		return
	}
	if len(ids) > maxBatchIDs {
		writeError(w, http.StatusBadRequest, "invalid_request", "too many ids (max "+strconv.Itoa(maxBatchIDs)+")")
		return
	}
	games, err := s.search.GamesByIDs(r.Context(), ids)
	if err != nil {
		s.writeServiceError(w, r, "game batch lookup failed", err, slog.Int("ids", len(ids)))
		return
	}
	writeJSON(w, http.StatusOK, s.gameResponses(games))
}

func (s *Server) handleDiscovery(list domain.DiscoveryList, defaultLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.discovery == nil {
			writeError(w, http.StatusNotImplemented, "not_configured", "discovery service is not configured")
			return
		}
		limit, err := parsePositiveInt(r, "limit", defaultLimit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid limit")
			return
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}

		var games []domain.Game
		switch list {
		case domain.DiscoveryTopRated:
			games, err = s.discovery.TopRated(r.Context(), limit)
		case domain.DiscoveryMostPlayed:
			games, err = s.discovery.MostPlayed(r.Context(), limit)
		case domain.DiscoveryRecentlyReleased:
			games, err = s.discovery.RecentlyReleased(r.Context(), limit)
		default:
			games, err = s.discovery.PopularityWeighted(r.Context(), limit)
		}
		if err != nil {
			s.writeServiceError(w, r, "discovery list failed", err, slog.String("list", string(list)))
			return
		}
		writeJSON(w, http.StatusOK, s.gameResponses(games))
	}
}

// writeServiceError maps core errors to responses. Upstream details are
// logged but never returned to the client.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, message string, err error, attrs ...any) {
	if errors.Is(err, query.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if r.Context().Err() != nil {
		// Client went away.
		return
	}
	s.logger.Warn(message, append(attrs, slog.String("error", err.Error()))...)
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, "timeout", catalogErrorMessage)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", catalogErrorMessage)
}

type gameResponse struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Summary          string     `json:"summary,omitempty"`
	CoverImageID     string     `json:"coverImageId,omitempty"`
	CoverURL         string     `json:"coverUrl"`
	ReleasedAt       *time.Time `json:"releasedAt,omitempty"`
	Rating           float64    `json:"rating,omitempty"`
	TotalRatingCount int        `json:"totalRatingCount,omitempty"`
	Genres           []string   `json:"genres,omitempty"`
	Platforms        []string   `json:"platforms,omitempty"`
	Themes           []string   `json:"themes,omitempty"`
	GameModes        []string   `json:"gameModes,omitempty"`
	Companies        []string   `json:"companies,omitempty"`
}

func (s *Server) gameResponse(game domain.Game) gameResponse {
	response := gameResponse{
		ID:               game.ID,
		Name:             game.Name,
		Summary:          game.Summary,
		CoverImageID:     game.CoverImageID(),
		CoverURL:         s.coverURL(game.CoverImageID()),
		ReleasedAt:       game.ReleasedAt(),
		Rating:           game.Rating,
		TotalRatingCount: game.TotalRatingCount,
		Genres:           refNames(game.Genres),
		Platforms:        refNames(game.Platforms),
		Themes:           refNames(game.Themes),
		GameModes:        refNames(game.GameModes),
	}
	for _, involved := range game.InvolvedCompanies {
		if involved.Company != nil && involved.Company.Name != "" {
			response.Companies = append(response.Companies, involved.Company.Name)
		}
	}
	return response
}

func (s *Server) gameResponses(games []domain.Game) []gameResponse {
	out := make([]gameResponse, 0, len(games))
	for _, game := range games {
		out = append(out, s.gameResponse(game))
	}
	return out
}

func (s *Server) coverURL(imageID string) string {
	if imageID == "" {
		return s.defaultCover
	}
	return s.imageBaseURL + "/t_cover_big/" + imageID + ".jpg"
}

func refNames(refs []domain.NamedRef) []string {
	if len(refs) == 0 {
		return nil
	}
	names := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Name != "" {
			names = append(names, ref.Name)
		}
	}
	return names
}

func parsePositiveInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return 0, errors.New("invalid integer")
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
