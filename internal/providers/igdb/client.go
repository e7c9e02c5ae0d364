package igdb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/metrics"
)

const (
	defaultBaseURL   = "https://api.igdb.com/v4"
	maxResponseBytes = 4 << 20
	maxErrorBody     = 1024
)

var entityPattern = regexp.MustCompile(`^[a-z][a-z_]*$`)

// TokenSource supplies bearer tokens for catalog requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type invalidator interface {
	Invalidate()
}

// Config configures a Client. RateLimit is the outbound request rate in
// requests per second; zero disables limiting.
type Config struct {
	BaseURL   string
	ClientID  string
	Tokens    TokenSource
	Client    *http.Client
	RateLimit float64
	Logger    *slog.Logger
}

// Client issues authenticated queries against the catalog. It never retries.
type Client struct {
	baseURL  string
	clientID string
	tokens   TokenSource
	http     *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: strings.TrimSpace(cfg.ClientID),
		tokens:   cfg.Tokens,
		http:     httpClient,
		limiter:  limiter,
		logger:   logger,
	}
}

// Query posts body to the entity collection and decodes the JSON array
// response into dest.
func (c *Client) Query(ctx context.Context, entity, body string, dest any) error {
	if !entityPattern.MatchString(entity) {
		return fmt.Errorf("%w: %q", ErrInvalidEntity, entity)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+entity, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "text/plain")

	startedAt := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(entity, "network_error", startedAt)
		c.logger.Warn("catalog request failed",
			slog.String("entity", entity),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("catalog %s request: %w", entity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.observe(entity, strconv.Itoa(resp.StatusCode), startedAt)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := c.tokens.(invalidator); ok {
				inv.Invalidate()
			}
		}
		c.logger.Warn("catalog returned error status",
			slog.String("entity", entity),
			slog.Int("status", resp.StatusCode),
		)
		return &FetchError{
			Entity:     entity,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.observe(entity, "read_error", startedAt)
		return fmt.Errorf("catalog %s read body: %w", entity, err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		c.observe(entity, "decode_error", startedAt)
		return &FetchError{Entity: entity, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	c.observe(entity, "ok", startedAt)
	c.logger.Debug("catalog request completed",
		slog.String("entity", entity),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	return nil
}

func (c *Client) Games(ctx context.Context, body string) ([]domain.Game, error) {
	var games []domain.Game
	if err := c.Query(ctx, domain.EntityGames, body, &games); err != nil {
		return nil, err
	}
	if games == nil {
		games = []domain.Game{}
	}
	return games, nil
}

func (c *Client) PopularityPrimitives(ctx context.Context, body string) ([]domain.PopularityPrimitive, error) {
	var primitives []domain.PopularityPrimitive
	if err := c.Query(ctx, domain.EntityPopularityPrimitives, body, &primitives); err != nil {
		return nil, err
	}
	return primitives, nil
}

func (c *Client) observe(entity, status string, startedAt time.Time) {
	metrics.CatalogRequestsTotal.WithLabelValues(entity, status).Inc()
	metrics.CatalogRequestDuration.WithLabelValues(entity).Observe(time.Since(startedAt).Seconds())
}
