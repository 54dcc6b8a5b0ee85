package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	HTTPAddr          string
	DBDriver          string
	DBDSN             string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifeMins int

	AuthHMACSecret       string
	CORSOrigins          []string
	AdmitRateLimitPerMin int
	CatalogCacheSize     int
	CatalogCacheTTLSecs  int
	MaxAdmitRetries      int
	LogDebug             bool
}

// LoadConfig reads a .env file when one exists, then the process environment.
// Variables already set in the environment win over the file.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppEnv:               envOrDefault("APP_ENV", "development"),
		HTTPAddr:             envOrDefault("HTTP_ADDR", ":8080"),
		DBDriver:             envOrDefault("DB_DRIVER", "postgres"),
		DBDSN:                os.Getenv("DB_DSN"),
		DBMaxOpenConns:       intOrDefault("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       intOrDefault("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifeMins:    intOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		AuthHMACSecret:       os.Getenv("AUTH_HMAC_SECRET"),
		CORSOrigins:          listOrDefault("CORS_ORIGINS", nil),
		AdmitRateLimitPerMin: intOrDefault("RATE_LIMIT_PER_MINUTE", 30),
		CatalogCacheSize:     intOrDefault("CATALOG_CACHE_SIZE", 1024),
		CatalogCacheTTLSecs:  intOrDefault("CATALOG_CACHE_TTL_SECONDS", 60),
		MaxAdmitRetries:      intOrDefault("ADMIT_MAX_RETRIES", 1),
		LogDebug:             boolOrDefault("LOG_DEBUG", false),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if strings.TrimSpace(c.AuthHMACSecret) == "" {
		return errors.New("AUTH_HMAC_SECRET is required")
	}
	return nil
}

func (c Config) CatalogCacheTTL() time.Duration {
	return time.Duration(c.CatalogCacheTTLSecs) * time.Second
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsToInt(v string) int {
	n, _ := strconv.Atoi(v)
	return n
}

func intOrDefault(key string, fallback int) int {
	v := stringsToInt(os.Getenv(key))
	if v <= 0 {
		return fallback
	}
	return v
}

func boolOrDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func listOrDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
