package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr          string        `validate:"required"`
	LogLevel          string        `validate:"oneof=debug info warn warning error"`
	LogFormat         string        `validate:"oneof=text json"`
	ClientID          string        `validate:"required"`
	ClientSecret      string        `validate:"required"`
	AuthURL           string        `validate:"required,url"`
	CatalogURL        string        `validate:"required,url"`
	ImageURL          string        `validate:"required,url"`
	RequestTimeout    time.Duration `validate:"gt=0"`
	CatalogRateLimit  float64       `validate:"gt=0"`
	TokenSingleFlight bool
	RedisURL          string
	CacheTTL          time.Duration
	CacheDisabled     bool
	HTTPRateLimit     float64 `validate:"gt=0"`
	HTTPRateBurst     int     `validate:"gt=0"`
	OTLPEndpoint      string
	DefaultCoverImage string
}

// ConfigError reports configuration that prevents the service from starting.
type ConfigError struct {
	Fields []string
	Err    error
}

func (e *ConfigError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration (%s): %v", strings.Join(e.Fields, ", "), e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

var ErrMissingCredentials = errors.New("missing IGDB_CLIENT_ID or IGDB_CLIENT_SECRET")

var validate = validator.New()

// envFiles are loaded in order; values already present in the environment win.
var envFiles = []string{".env.local", ".env"}

// LoadConfig reads the environment and fails when the catalog credentials
// are absent.
func LoadConfig() (Config, error) {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	cfg := Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		ClientID:          strings.TrimSpace(os.Getenv("IGDB_CLIENT_ID")),
		ClientSecret:      strings.TrimSpace(os.Getenv("IGDB_CLIENT_SECRET")),
		AuthURL:           strings.TrimRight(getEnv("IGDB_AUTH_URL", "https://id.twitch.tv/oauth2"), "/"),
		CatalogURL:        strings.TrimRight(getEnv("IGDB_BASE_URL", "https://api.igdb.com/v4"), "/"),
		ImageURL:          strings.TrimRight(getEnv("IGDB_IMAGE_BASE_URL", "https://images.igdb.com/igdb/image/upload"), "/"),
		RequestTimeout:    time.Duration(getEnvInt("CATALOG_TIMEOUT_SECONDS", 15)) * time.Second,
		CatalogRateLimit:  float64(getEnvInt("CATALOG_RATE_LIMIT_RPS", 4)),
		TokenSingleFlight: getEnvBool("CATALOG_TOKEN_SINGLEFLIGHT", true),
		RedisURL:          getEnv("REDIS_URL", ""),
		CacheTTL:          time.Duration(getEnvInt("DISCOVERY_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled:     getEnvBool("DISCOVERY_CACHE_DISABLED", false),
		HTTPRateLimit:     float64(getEnvInt("HTTP_RATE_LIMIT_RPS", 50)),
		HTTPRateBurst:     getEnvInt("HTTP_RATE_LIMIT_BURST", 100),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DefaultCoverImage: getEnv("DEFAULT_COVER_IMAGE", "/default_game_cover.jpg"),
	}

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		var fields []string
		if cfg.ClientID == "" {
			fields = append(fields, "IGDB_CLIENT_ID")
		}
		if cfg.ClientSecret == "" {
			fields = append(fields, "IGDB_CLIENT_SECRET")
		}
		return Config{}, &ConfigError{Fields: fields, Err: ErrMissingCredentials}
	}

	if err := validate.Struct(cfg); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			fields := make([]string, 0, len(validationErrs))
			for _, fieldErr := range validationErrs {
				fields = append(fields, fieldErr.Field())
			}
			return Config{}, &ConfigError{Fields: fields, Err: err}
		}
		return Config{}, &ConfigError{Err: err}
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
