package igdb

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"gamecatalog/catalogservice/internal/domain"
	"gamecatalog/catalogservice/internal/metrics"
)

const (
	defaultAuthURL        = "https://id.twitch.tv/oauth2"
	defaultRefreshTimeout = 10 * time.Second
)

// CredentialConfig configures a CredentialCache. SingleFlight collapses
// concurrent refreshes into one token request.
type CredentialConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	Client       *http.Client
	SingleFlight bool
	Now          func() time.Time
	Logger       *slog.Logger
}

// CredentialCache holds one client-credentials bearer token and refreshes it
// on demand once it has expired. A failed refresh leaves the previous token in
// place so the next call tries again.
type CredentialCache struct {
	clientID     string
	oauth        clientcredentials.Config
	http         *http.Client
	singleFlight bool
	now          func() time.Time
	logger       *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	token domain.AccessToken
}

func NewCredentialCache(cfg CredentialConfig) *CredentialCache {
	authURL := strings.TrimRight(strings.TrimSpace(cfg.AuthURL), "/")
	if authURL == "" {
		authURL = defaultAuthURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialCache{
		clientID: strings.TrimSpace(cfg.ClientID),
		oauth: clientcredentials.Config{
			ClientID:     strings.TrimSpace(cfg.ClientID),
			ClientSecret: strings.TrimSpace(cfg.ClientSecret),
			TokenURL:     authURL + "/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		http:         httpClient,
		singleFlight: cfg.SingleFlight,
		now:          now,
		logger:       logger,
	}
}

func (c *CredentialCache) ClientID() string {
	return c.clientID
}

// Token returns the cached bearer token, fetching a new one when none is
// cached or the cached one has expired.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	if value, ok := c.cached(); ok {
		return value, nil
	}
	if !c.singleFlight {
		return c.refresh(ctx)
	}
	// The shared refresh outlives any single caller; each caller stops
	// waiting when its own context ends.
	refreshCtx := context.WithoutCancel(ctx)
	results := c.group.DoChan("token", func() (any, error) {
		if cached, ok := c.cached(); ok {
			return cached, nil
		}
		boundedCtx, cancel := context.WithTimeout(refreshCtx, c.refreshTimeout())
		defer cancel()
		return c.refresh(boundedCtx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil
	}
}

func (c *CredentialCache) refreshTimeout() time.Duration {
	if c.http.Timeout > 0 {
		return c.http.Timeout
	}
	return defaultRefreshTimeout
}

// Invalidate drops the cached token so the next call refreshes it.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.token.ExpiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *CredentialCache) cached() (string, bool) {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token.Valid(now) {
		return c.token.Value, true
	}
	return "", false
}

func (c *CredentialCache) refresh(ctx context.Context) (string, error) {
	startedAt := time.Now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	token, err := c.oauth.Token(ctx)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
		authErr := &AuthTokenError{Err: err}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			authErr.StatusCode = retrieveErr.Response.StatusCode
		}
		c.logger.Warn("catalog token refresh failed",
			slog.Int("status", authErr.StatusCode),
			slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
		)
		return "", authErr
	}
	metrics.TokenRefreshTotal.WithLabelValues("ok").Inc()

	expiresAt := c.expiresAt(token)
	if expiresAt.IsZero() {
		c.logger.Warn("catalog token response has no expiry; token will not be reused")
	}

	c.mu.Lock()
	c.token = domain.AccessToken{Value: token.AccessToken, ExpiresAt: expiresAt}
	c.mu.Unlock()

	c.logger.Debug("catalog token refreshed",
		slog.Time("expiresAt", expiresAt),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)
	return token.AccessToken, nil
}

// expiresAt places the token lifetime on the cache clock: now + expires_in.
func (c *CredentialCache) expiresAt(token *oauth2.Token) time.Time {
	if token.ExpiresIn > 0 {
		return c.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}
	if token.Expiry.IsZero() {
		return time.Time{}
	}
	remaining := time.Until(token.Expiry)
	if remaining <= 0 {
		return time.Time{}
	}
	return c.now().Add(remaining)
}
