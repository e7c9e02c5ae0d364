package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/metrics"
	"gamecatalog/catalogservice/internal/query"
	"gamecatalog/catalogservice/internal/telemetry"
)

// MaxResults caps the number of ranked search results.
const MaxResults = 20

const (
	strategyFullText = "full_text"
	strategyPartial  = "partial"
)

// Catalog runs game queries against the upstream catalog.
type Catalog interface {
	Games(ctx context.Context, body string) ([]domain.Game, error)
}

type Service struct {
	catalog Catalog
	logger  *slog.Logger
	tracer  trace.Tracer
}

type ServiceOption func(*Service)

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(catalog Catalog, opts ...ServiceOption) *Service {
	svc := &Service{
		catalog: catalog,
		logger:  slog.Default(),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Search runs a full-text catalog search and, when it yields no game whose
// name equals or starts with the query, replaces those results with a
// partial name match. The chosen results are ranked and capped at MaxResults.
func (s *Service) Search(ctx context.Context, raw string) ([]domain.Game, error) {
	text, err := query.SearchText(raw)
	if err != nil {
		return nil, err
	}
	startedAt := time.Now()
	ctx, span := s.tracer.Start(ctx, "search.Search", trace.WithAttributes(attribute.String("search.query", text)))
	defer span.End()

	strategy := strategyFullText
	games, err := s.runPhase(ctx, strategyFullText, text, query.FullTextSearch)
	if err != nil {
		return nil, recordSpanError(span, err)
	}
	if !HasGoodMatch(games, text) {
		strategy = strategyPartial
		games, err = s.runPhase(ctx, strategyPartial, text, query.PartialSearch)
		if err != nil {
			return nil, recordSpanError(span, err)
		}
	}
	metrics.SearchTotal.WithLabelValues(strategy).Inc()

	ranked := Rank(games, text)
	if len(ranked) > MaxResults {
		ranked = ranked[:MaxResults]
	}
	span.SetAttributes(
		attribute.String("search.strategy", strategy),
		attribute.Int("search.results", len(ranked)),
	)
	s.logger.Info("game search completed",
		slog.String("query", text),
		slog.String("strategy", strategy),
		slog.Int("results", len(ranked)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	return ranked, nil
}

func (s *Service) runPhase(ctx context.Context, strategy, text string, build func(string) (string, error)) ([]domain.Game, error) {
	ctx, span := s.tracer.Start(ctx, "search."+strategy)
	defer span.End()

	body, err := build(text)
	if err != nil {
		return nil, err
	}
	games, err := s.catalog.Games(ctx, body)
	if err != nil {
		return nil, recordSpanError(span, fmt.Errorf("%s search: %w", strategy, err))
	}
	span.SetAttributes(attribute.Int("search.candidates", len(games)))
	return games, nil
}

// GameByID returns the detailed record for id, or nil when the catalog has
// no such game.
func (s *Service) GameByID(ctx context.Context, id int64) (*domain.Game, error) {
	body, err := query.ByID(id)
	if err != nil {
		return nil, err
	}
	games, err := s.catalog.Games(ctx, body)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, nil
	}
	game := games[0]
	return &game, nil
}

// GamesByIDs fetches summary records for ids. Lists longer than the catalog's
// per-query ceiling are split into chunks fetched concurrently; results keep
// chunk order and a failing chunk fails the call.
func (s *Service) GamesByIDs(ctx context.Context, ids []int64) ([]domain.Game, error) {
	return FetchByIDs(ctx, s.catalog, ids)
}

// FetchByIDs is the chunked by-id lookup shared with the discovery lists.
func FetchByIDs(ctx context.Context, catalog Catalog, ids []int64) ([]domain.Game, error) {
	if len(ids) == 0 {
		return []domain.Game{}, nil
	}
	chunks := query.Chunk(ids, query.MaxIDsPerQuery)
	bodies := make([]string, len(chunks))
	for i, chunk := range chunks {
		body, err := query.ByIDs(chunk)
		if err != nil {
			return nil, err
		}
		bodies[i] = body
	}

	results := make([][]domain.Game, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, body := range bodies {
		g.Go(func() error {
			games, err := catalog.Games(gctx, body)
			if err != nil {
				return err
			}
			results[i] = games
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	games := make([]domain.Game, 0, len(ids))
	for _, chunk := range results {
		games = append(games, chunk...)
	}
	return games, nil
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
