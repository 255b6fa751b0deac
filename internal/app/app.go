// Package app wires configuration into the services shared by the API server
// and the admin CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"workflowai/internal/auth"
	"workflowai/internal/config"
	"workflowai/internal/db"
	"workflowai/internal/httpserver"
	"workflowai/internal/httpserver/handlers"
	"workflowai/internal/metrics"
	"workflowai/internal/n8n"
	"workflowai/internal/oauth"
	"workflowai/internal/store"
	"workflowai/internal/workflows"
)

const ServiceName = "workflowai-api"

type App struct {
	Cfg       config.Config
	Store     store.Store
	Metrics   *metrics.Metrics
	Engine    *n8n.Client
	Auth      *auth.Service
	Resolver  *auth.Resolver
	Workflows *workflows.Service
	OAuth     *oauth.Flow

	closers []func() error
	lg      *zap.SugaredLogger
}

// New opens the store and builds every service. Close releases what it opened.
func New(ctx context.Context, cfg config.Config, lg *zap.SugaredLogger) (*App, error) {
	st, closeStore, err := db.Open(ctx, cfg.DatabaseURL, lg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a := &App{Cfg: cfg, Store: st, Metrics: metrics.New(), lg: lg}
	a.closers = append(a.closers, closeStore)

	tokens, err := auth.NewTokens(cfg.JWTSecret)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Auth = auth.NewService(st.Users(), tokens, cfg.AccessTokenTTL, lg)
	a.Resolver = auth.NewResolver(tokens, st.Users(), lg, auth.ResolverOptions{
		AllowQueryToken: cfg.EnableQueryToken,
		Metrics:         a.Metrics,
	})
	a.Engine = n8n.New(cfg.N8NBaseURL, cfg.N8NAPIKey, lg, n8n.Options{
		Timeout:    cfg.N8NTimeout,
		MaxRetries: cfg.N8NMaxRetries,
		Metrics:    a.Metrics,
	})
	a.Workflows = workflows.NewService(st, a.Engine, lg, workflows.Options{Metrics: a.Metrics})

	if cfg.GoogleEnabled() {
		states, err := a.stateStore(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		google := oauth.NewGoogle(oauth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Timeout:      cfg.GoogleTimeout,
		})
		a.OAuth = oauth.NewFlow(google, states, st.Users(), a.Auth, lg)
	} else {
		lg.Infow("google sign-in disabled; GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}
	return a, nil
}

func (a *App) stateStore(ctx context.Context) (oauth.StateStore, error) {
	if a.Cfg.RedisURL == "" {
		return oauth.NewDBStateStore(a.Store.OAuthStates()), nil
	}
	opts, err := redis.ParseURL(a.Cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	a.lg.Infow("oauth states stored in redis", "addr", opts.Addr)
	return oauth.NewRedisStateStore(rdb), nil
}

// Handler builds the HTTP router for the API server.
func (a *App) Handler() http.Handler {
	return httpserver.NewRouter(httpserver.Deps{
		Auth:      a.Auth,
		Resolver:  a.Resolver,
		Workflows: a.Workflows,
		Templates: a.Store.Templates(),
		Users:     a.Store.Users(),
		OAuth:     a.OAuth,
		Metrics:   a.Metrics,
		Cookies: handlers.CookieOptions{
			Secure:     a.Cfg.SecureCookies(),
			SessionTTL: a.Cfg.AccessTokenTTL,
		},
		OAuthLanding:   a.Cfg.OAuthSuccessRedirect,
		AllowedOrigins: a.Cfg.AllowedOrigins,
		LoginRateLimit: a.Cfg.LoginRateLimit,
		ServiceName:    ServiceName,
	}, a.lg)
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
