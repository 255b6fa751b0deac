package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/metrics"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

// SessionCookie holds "Bearer <token>" for browser sessions.
const SessionCookie = "access_token"

const bearerPrefix = "Bearer "

// Resolver turns a request's session token into the user it belongs to.
type Resolver struct {
	tokens     *Tokens
	users      store.Users
	queryToken bool
	m          *metrics.Metrics
	lg         *zap.SugaredLogger
}

type ResolverOptions struct {
	// AllowQueryToken also accepts ?token=. Tokens in URLs end up in access
	// logs and browser history, so this is off unless explicitly enabled.
	AllowQueryToken bool
	Metrics         *metrics.Metrics
}

func NewResolver(tokens *Tokens, users store.Users, lg *zap.SugaredLogger, opts ResolverOptions) *Resolver {
	return &Resolver{tokens: tokens, users: users, queryToken: opts.AllowQueryToken, m: opts.Metrics, lg: lg}
}

// Extract returns the session token from the header, the session cookie, or
// (when enabled) the query string, in that order.
func (rs *Resolver) Extract(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, bearerPrefix) {
		if tok := strings.TrimSpace(strings.TrimPrefix(h, bearerPrefix)); tok != "" {
			return tok
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil && strings.HasPrefix(c.Value, bearerPrefix) {
		if tok := strings.TrimSpace(strings.TrimPrefix(c.Value, bearerPrefix)); tok != "" {
			return tok
		}
	}
	if rs.queryToken {
		return r.URL.Query().Get("token")
	}
	return ""
}

// Resolve validates raw and loads its user. The token must still be the
// user's current one; any older token is rejected.
func (rs *Resolver) Resolve(ctx context.Context, raw string) (*models.User, error) {
	if raw == "" {
		return nil, rs.fail("missing_token", nil)
	}
	email, err := rs.tokens.Parse(raw)
	if err != nil {
		return nil, rs.fail("invalid_token", err)
	}
	u, err := rs.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, rs.fail("unknown_user", nil)
		}
		return nil, err
	}
	if u.Token == "" || u.Token != raw {
		return nil, rs.fail("token_mismatch", nil)
	}
	return u, nil
}

func (rs *Resolver) fail(reason string, cause error) error {
	rs.m.AuthFailure(reason)
	if cause != nil {
		rs.lg.Debugw("token rejected", "reason", reason, "err", cause)
	} else {
		rs.lg.Debugw("token rejected", "reason", reason)
	}
	return apperr.ErrAuthenticationFailed
}

// Authenticate resolves the request's user and stores it in the context.
func (rs *Resolver) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := rs.Resolve(r.Context(), rs.Extract(r))
		if err != nil {
			if errors.Is(err, apperr.ErrAuthenticationFailed) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeDetail(w, http.StatusUnauthorized, apperr.Message(err))
				return
			}
			rs.lg.Errorw("resolve session", "err", err)
			writeDetail(w, http.StatusInternalServerError, apperr.Message(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

func writeDetail(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}
