package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/auth"
	"workflowai/internal/logger"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

// StateTTL bounds how long a login redirect stays valid.
const StateTTL = 10 * time.Minute

// ErrAuthFailed covers every callback failure after the state check.
var ErrAuthFailed = errors.New("authentication failed")

// Provider is the identity provider side of the flow.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*UserInfo, error)
}

// SessionIssuer opens a local session for a user.
type SessionIssuer interface {
	IssueSession(ctx context.Context, u *models.User) (string, error)
}

type Flow struct {
	provider Provider
	states   StateStore
	users    store.Users
	sessions SessionIssuer
	lg       *zap.SugaredLogger
}

func NewFlow(p Provider, states StateStore, users store.Users, sessions SessionIssuer, lg *zap.SugaredLogger) *Flow {
	return &Flow{provider: p, states: states, users: users, sessions: sessions, lg: lg}
}

// Begin creates and stores a fresh state and returns it with the redirect URL.
func (f *Flow) Begin(ctx context.Context) (state, redirect string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	state = base64.RawURLEncoding.EncodeToString(buf)
	if err := f.states.Save(ctx, state, StateTTL); err != nil {
		return "", "", fmt.Errorf("save oauth state: %w", err)
	}
	return state, f.provider.AuthCodeURL(state), nil
}

// Complete finishes a callback. cookieState is the value bound to the browser
// at Begin. It returns the signed-in user and their new session token.
func (f *Flow) Complete(ctx context.Context, code, state, cookieState string) (*models.User, string, error) {
	if code == "" {
		return nil, "", apperr.Validation("Missing authorization code")
	}
	if state == "" || state != cookieState {
		return nil, "", apperr.Validation("Invalid OAuth state")
	}
	ok, err := f.states.Consume(ctx, state)
	if err != nil {
		f.lg.Errorw("consume oauth state", "err", err)
		return nil, "", apperr.Validation("Invalid OAuth state")
	}
	if !ok {
		return nil, "", apperr.Validation("Invalid OAuth state")
	}

	info, err := f.provider.Exchange(ctx, code)
	if err != nil {
		f.lg.Warnw("google exchange failed", "code", logger.Redact(code), "err", err)
		return nil, "", ErrAuthFailed
	}
	u, err := f.upsertUser(ctx, info)
	if err != nil {
		f.lg.Errorw("map google account", "email", info.Email, "err", err)
		return nil, "", ErrAuthFailed
	}
	tok, err := f.sessions.IssueSession(ctx, u)
	if err != nil {
		f.lg.Errorw("issue session after google login", "user_id", u.ID, "err", err)
		return nil, "", ErrAuthFailed
	}
	f.lg.Infow("google login", "user_id", u.ID)
	return u, tok, nil
}

func (f *Flow) upsertUser(ctx context.Context, info *UserInfo) (*models.User, error) {
	u, err := f.users.ByEmail(ctx, info.Email)
	switch {
	case err == nil:
		if !u.IsActive {
			u.IsActive = true
			if err := f.users.Save(ctx, u); err != nil {
				return nil, err
			}
		}
		return u, nil
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	base := usernameBase(info)
	for i := 0; i < 5; i++ {
		name := base
		if i > 0 {
			name = base + "-" + uuid.NewString()[:8]
		}
		if _, err := f.users.ByUsername(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		u := &models.User{Email: info.Email, Username: name, IsActive: true}
		err := f.users.Create(ctx, u)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, err
		}
		// a concurrent callback may have created the same email
		if existing, err := f.users.ByEmail(ctx, info.Email); err == nil {
			return existing, nil
		}
	}
	return nil, errors.New("could not allocate a unique username")
}

var usernameJunk = regexp.MustCompile(`[^a-z0-9._-]+`)

func usernameBase(info *UserInfo) string {
	local := info.Email
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	name := usernameJunk.ReplaceAllString(strings.ToLower(local), "")
	if name == "" {
		name = usernameJunk.ReplaceAllString(strings.ToLower(strings.ReplaceAll(info.Name, " ", ".")), "")
	}
	if name == "" {
		name = "user"
	}
	return name
}

var _ SessionIssuer = (*auth.Service)(nil)
