package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"workflowai/internal/apperr"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

// Service implements password authentication and the per-user session slot.
type Service struct {
	users  store.Users
	tokens *Tokens
	ttl    time.Duration
	lg     *zap.SugaredLogger
}

func NewService(users store.Users, tokens *Tokens, ttl time.Duration, lg *zap.SugaredLogger) *Service {
	return &Service{users: users, tokens: tokens, ttl: ttl, lg: lg}
}

// TTL is the lifetime of tokens issued by this service.
func (s *Service) TTL() time.Duration {
	if s.ttl <= 0 {
		return DefaultTokenTTL
	}
	return s.ttl
}

var (
	dummyOnce sync.Once
	dummyHash []byte
)

// burnCompare spends roughly one bcrypt verification so unknown emails take
// as long as wrong passwords.
func burnCompare(pw string) {
	dummyOnce.Do(func() {
		dummyHash, _ = bcrypt.GenerateFromPassword([]byte("workflowai-dummy"), bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(pw))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Authenticate checks email and password. Unknown email, OAuth-only account
// and wrong password all return apperr.ErrAuthenticationFailed.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.users.ByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			burnCompare(password)
			return nil, apperr.ErrAuthenticationFailed
		}
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, apperr.ErrAuthenticationFailed
	}
	if NeedsRehash(u.PasswordHash) {
		s.rehash(ctx, u, password)
	}
	return u, nil
}

func (s *Service) rehash(ctx context.Context, u *models.User, password string) {
	hash, err := HashPassword(password)
	if err != nil {
		s.lg.Warnw("rehash password", "user_id", u.ID, "err", err)
		return
	}
	prev := u.PasswordHash
	u.PasswordHash = hash
	if err := s.users.Save(ctx, u); err != nil {
		u.PasswordHash = prev
		s.lg.Warnw("persist rehashed password", "user_id", u.ID, "err", err)
		return
	}
	s.lg.Infow("password rehashed", "user_id", u.ID)
}

// Login authenticates and opens a new session, replacing any previous one.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	tok, err := s.IssueSession(ctx, u)
	if err != nil {
		return "", nil, err
	}
	return tok, u, nil
}

// IssueSession signs a token for u and stores it as u's only valid token.
func (s *Service) IssueSession(ctx context.Context, u *models.User) (string, error) {
	tok, err := s.tokens.Issue(u.Email, s.TTL())
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	if err := s.users.SetToken(ctx, u.ID, tok); err != nil {
		return "", fmt.Errorf("persist token: %w", err)
	}
	u.Token = tok
	return tok, nil
}

func (s *Service) Logout(ctx context.Context, u *models.User) error {
	if err := s.users.SetToken(ctx, u.ID, ""); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	u.Token = ""
	return nil
}

// Signup registers an active, non-admin user.
func (s *Service) Signup(ctx context.Context, email, username, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	username = strings.TrimSpace(username)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, apperr.Validation("Invalid email address")
	}
	if username == "" {
		return nil, apperr.Validation("Username is required")
	}
	if password == "" {
		return nil, apperr.Validation("Password is required")
	}

	if err := s.checkAvailable(ctx, email, username); err != nil {
		return nil, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{Email: email, Username: username, PasswordHash: hash, IsActive: true}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// lost a race with a concurrent signup
			if err := s.checkAvailable(ctx, email, username); err != nil {
				return nil, err
			}
			return nil, apperr.Validation("Email already registered")
		}
		return nil, err
	}
	return u, nil
}

func (s *Service) checkAvailable(ctx context.Context, email, username string) error {
	if _, err := s.users.ByEmail(ctx, email); err == nil {
		return apperr.Validation("Email already registered")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if _, err := s.users.ByUsername(ctx, username); err == nil {
		return apperr.Validation("Username already registered")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return nil
}
