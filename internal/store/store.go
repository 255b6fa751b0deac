// Package store declares the persistence contract used by the services.
// gormstore backs it with PostgreSQL; memstore keeps everything in process.
package store

import (
	"context"
	"errors"
	"time"

	"workflowai/internal/models"
)

// ErrDuplicate is returned when a unique column would be violated.
var ErrDuplicate = errors.New("duplicate key")

// Page bounds a listing. Limit <= 0 means DefaultLimit.
type Page struct {
	Skip  int
	Limit int
}

const (
	DefaultLimit = 100
	MaxLimit     = 100
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

type Users interface {
	Create(ctx context.Context, u *models.User) error
	ByID(ctx context.Context, id string) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, page Page) ([]models.User, error)
	Save(ctx context.Context, u *models.User) error
	// SetToken overwrites the user's session slot.
	SetToken(ctx context.Context, id, token string) error
}

type Workflows interface {
	Create(ctx context.Context, w *models.Workflow) error
	// Get returns the workflow only when it belongs to ownerID.
	Get(ctx context.Context, ownerID, id string) (*models.Workflow, error)
	List(ctx context.Context, ownerID string, page Page) ([]models.Workflow, error)
	// All returns every workflow regardless of owner, for reconciliation.
	All(ctx context.Context) ([]models.Workflow, error)
	// Update saves w only if the stored version still equals w.Version, then
	// bumps it. A stale version yields apperr.ErrConflict.
	Update(ctx context.Context, w *models.Workflow) error
	Delete(ctx context.Context, ownerID, id string) error
}

type ExecutionLogs interface {
	Create(ctx context.Context, l *models.ExecutionLog) error
	Get(ctx context.Context, userID, id string) (*models.ExecutionLog, error)
	ListByUser(ctx context.Context, userID string, page Page) ([]models.ExecutionLog, error)
	ListByWorkflow(ctx context.Context, userID, workflowID string, page Page) ([]models.ExecutionLog, error)
	UpdateStatus(ctx context.Context, id, status string, details []byte) error
}

type Templates interface {
	Create(ctx context.Context, t *models.Template) error
	Get(ctx context.Context, id string) (*models.Template, error)
	List(ctx context.Context, page Page) ([]models.Template, error)
	Save(ctx context.Context, t *models.Template) error
	Delete(ctx context.Context, id string) error
}

type OAuthStates interface {
	Save(ctx context.Context, state string, expiresAt time.Time) error
	// Consume deletes the state and reports whether it existed and was unexpired.
	Consume(ctx context.Context, state string, now time.Time) (bool, error)
}

// Store groups the repositories. Tx runs fn against a transactional view;
// a non-nil return rolls every change made through that view back.
type Store interface {
	Users() Users
	Workflows() Workflows
	ExecutionLogs() ExecutionLogs
	Templates() Templates
	OAuthStates() OAuthStates
	Tx(ctx context.Context, fn func(tx Store) error) error
}
