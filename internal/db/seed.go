package db

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/auth"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

// SeedAdmin creates an administrator when none with that email exists.
// An existing account with the email is promoted instead.
func SeedAdmin(ctx context.Context, st store.Store, email, username, password string, lg *zap.SugaredLogger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil
	}
	existing, err := st.Users().ByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.IsAdmin && existing.IsActive {
			return nil
		}
		existing.IsAdmin, existing.IsActive = true, true
		if err := st.Users().Save(ctx, existing); err != nil {
			return err
		}
		lg.Infow("promoted existing user to admin", "email", email)
		return nil
	case !errors.Is(err, apperr.ErrNotFound):
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := models.User{Email: email, Username: username, PasswordHash: hash, IsActive: true, IsAdmin: true}
	if err := st.Users().Create(ctx, &u); err != nil {
		return err
	}
	lg.Infow("seeded admin", "email", email)
	return nil
}
