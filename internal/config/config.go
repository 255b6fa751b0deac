package config

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds runtime configuration for the API server and the admin CLI.
type Config struct {
	Env       string `env:"APP_ENV,default=development"`
	VercelEnv string `env:"VERCEL_ENV"`
	Addr      string `env:"HTTP_ADDR,default=:8000"`
	BaseURL   string `env:"BASE_URL,default=http://localhost:8000"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	JWTSecret        string        `env:"JWT_SECRET"`
	LegacySecretKey  string        `env:"SECRET_KEY"`
	AccessTokenTTL   time.Duration `env:"ACCESS_TOKEN_TTL,default=30m"`
	EnableQueryToken bool          `env:"ENABLE_QUERY_TOKEN,default=false"`
	CookieSecure     string        `env:"COOKIE_SECURE"`

	GoogleClientID       string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret   string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI    string        `env:"GOOGLE_REDIRECT_URI"`
	OAuthSuccessRedirect string        `env:"OAUTH_SUCCESS_REDIRECT,default=/dashboard.html"`
	GoogleTimeout        time.Duration `env:"GOOGLE_TIMEOUT,default=10s"`

	N8NBaseURL    string        `env:"N8N_BASE_URL,default=http://localhost:5678"`
	N8NAPIKey     string        `env:"N8N_API_KEY"`
	N8NTimeout    time.Duration `env:"N8N_TIMEOUT,default=15s"`
	N8NMaxRetries uint64        `env:"N8N_MAX_RETRIES,default=3"`

	ReconcileSchedule string   `env:"RECONCILE_SCHEDULE,default=@every 15m"`
	AllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:8000,http://localhost:3000"`
	LoginRateLimit    int      `env:"LOGIN_RATE_LIMIT,default=20"`
	OTLPEndpoint      string   `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminUsername string `env:"ADMIN_USERNAME,default=admin"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// EphemeralKey is set when no signing key was configured outside production.
	EphemeralKey bool
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, err
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.GoogleRedirectURI == "" {
		c.GoogleRedirectURI = c.BaseURL + "/api/auth/google/callback"
	}
	if c.JWTSecret == "" {
		c.JWTSecret = c.LegacySecretKey
	}
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return errors.New("JWT_SECRET must be set in production")
		}
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return err
		}
		c.JWTSecret = hex.EncodeToString(key)
		c.EphemeralKey = true
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is empty")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	return nil
}

// IsProduction reports whether fail-closed production checks apply.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.VercelEnv, "production")
}

// SecureCookies defaults to true in production unless COOKIE_SECURE says otherwise.
func (c Config) SecureCookies() bool {
	if v, err := strconv.ParseBool(c.CookieSecure); err == nil {
		return v
	}
	return c.IsProduction()
}

// GoogleEnabled reports whether the Google login routes can be served.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}
