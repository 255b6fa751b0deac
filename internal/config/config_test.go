package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, c Config)
	}{
		{
			name: "defaults",
			env:  map[string]string{"DATABASE_URL": "memory://"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, ":8000", c.Addr)
				assert.Equal(t, 30*time.Minute, c.AccessTokenTTL)
				assert.Equal(t, "http://localhost:8000/api/auth/google/callback", c.GoogleRedirectURI)
				assert.Equal(t, uint64(3), c.N8NMaxRetries)
				assert.Equal(t, 10*time.Second, c.GoogleTimeout)
				assert.False(t, c.EnableQueryToken)
				assert.True(t, c.EphemeralKey)
				assert.Len(t, c.JWTSecret, 64)
				assert.False(t, c.SecureCookies())
			},
		},
		{
			name:    "production without key fails closed",
			env:     map[string]string{"DATABASE_URL": "memory://", "APP_ENV": "production"},
			wantErr: "JWT_SECRET must be set in production",
		},
		{
			name:    "vercel production without key fails closed",
			env:     map[string]string{"DATABASE_URL": "memory://", "VERCEL_ENV": "production"},
			wantErr: "JWT_SECRET must be set in production",
		},
		{
			name: "legacy secret key accepted",
			env:  map[string]string{"DATABASE_URL": "memory://", "APP_ENV": "production", "SECRET_KEY": "s3cret"},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "s3cret", c.JWTSecret)
				assert.False(t, c.EphemeralKey)
				assert.True(t, c.SecureCookies())
			},
		},
		{
			name:    "database url required",
			env:     map[string]string{"JWT_SECRET": "k"},
			wantErr: "DATABASE_URL is empty",
		},
		{
			name: "explicit redirect and trimmed base url",
			env: map[string]string{
				"DATABASE_URL":        "memory://",
				"JWT_SECRET":          "k",
				"BASE_URL":            "https://app.example.com/",
				"GOOGLE_REDIRECT_URI": "https://app.example.com/cb",
				"COOKIE_SECURE":       "false",
				"APP_ENV":             "production",
			},
			check: func(t *testing.T, c Config) {
				assert.Equal(t, "https://app.example.com", c.BaseURL)
				assert.Equal(t, "https://app.example.com/cb", c.GoogleRedirectURI)
				assert.False(t, c.SecureCookies())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load(context.Background(), envconfig.MapLookuper(tt.env))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
