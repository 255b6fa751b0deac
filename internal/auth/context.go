package auth

import (
	"context"

	"workflowai/internal/models"
)

type ctxKey string

const (
	userKey ctxKey = "currentUser"
)

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext returns the resolved user, or nil outside an authenticated route.
func FromContext(ctx context.Context) *models.User {
	if v, ok := ctx.Value(userKey).(*models.User); ok {
		return v
	}
	return nil
}
