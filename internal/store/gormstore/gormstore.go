// Package gormstore implements store.Store on top of GORM.
package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"workflowai/internal/apperr"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) Users() store.Users                 { return users{s.db} }
func (s *Store) Workflows() store.Workflows         { return workflows{s.db} }
func (s *Store) ExecutionLogs() store.ExecutionLogs { return executionLogs{s.db} }
func (s *Store) Templates() store.Templates         { return templates{s.db} }
func (s *Store) OAuthStates() store.OAuthStates     { return oauthStates{s.db} }

func (s *Store) Tx(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// translate maps GORM errors onto the store/apperr vocabulary.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(what)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	default:
		return err
	}
}

// validID reports whether id can be compared against a uuid column. Postgres
// rejects malformed literals with an error instead of matching nothing.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type users struct{ db *gorm.DB }

func (r users) Create(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Create(u).Error, "User")
}

func (r users) ByID(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, apperr.NotFound("User")
	}
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "User")
	}
	return &u, nil
}

func (r users) ByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "email = ?", email).Error; err != nil {
		return nil, translate(err, "User")
	}
	return &u, nil
}

func (r users) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, "username = ?", username).Error; err != nil {
		return nil, translate(err, "User")
	}
	return &u, nil
}

func (r users) List(ctx context.Context, page store.Page) ([]models.User, error) {
	page = page.Normalize()
	var out []models.User
	err := r.db.WithContext(ctx).Order("created_at desc").Offset(page.Skip).Limit(page.Limit).Find(&out).Error
	return out, err
}

func (r users) Save(ctx context.Context, u *models.User) error {
	return translate(r.db.WithContext(ctx).Save(u).Error, "User")
}

func (r users) SetToken(ctx context.Context, id, token string) error {
	if !validID(id) {
		return apperr.NotFound("User")
	}
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("token", token)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

type workflows struct{ db *gorm.DB }

func (r workflows) Create(ctx context.Context, w *models.Workflow) error {
	if w.Version == 0 {
		w.Version = 1
	}
	return translate(r.db.WithContext(ctx).Omit("Owner").Create(w).Error, "Workflow")
}

func (r workflows) Get(ctx context.Context, ownerID, id string) (*models.Workflow, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Workflow")
	}
	var w models.Workflow
	if err := r.db.WithContext(ctx).First(&w, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		return nil, translate(err, "Workflow")
	}
	return &w, nil
}

func (r workflows) List(ctx context.Context, ownerID string, page store.Page) ([]models.Workflow, error) {
	page = page.Normalize()
	var out []models.Workflow
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).
		Order("created_at desc").Offset(page.Skip).Limit(page.Limit).Find(&out).Error
	return out, err
}

func (r workflows) All(ctx context.Context) ([]models.Workflow, error) {
	var out []models.Workflow
	err := r.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, err
}

func (r workflows) Update(ctx context.Context, w *models.Workflow) error {
	if !validID(w.ID) {
		return apperr.ErrConflict
	}
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ? AND owner_id = ? AND version = ?", w.ID, w.OwnerID, w.Version).
		Updates(map[string]any{
			"name":        w.Name,
			"description": w.Description,
			"is_active":   w.IsActive,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConflict
	}
	w.Version++
	w.UpdatedAt = now
	return nil
}

func (r workflows) Delete(ctx context.Context, ownerID, id string) error {
	if !validID(id) {
		return apperr.NotFound("Workflow")
	}
	res := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&models.Workflow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Workflow")
	}
	return nil
}

type executionLogs struct{ db *gorm.DB }

func (r executionLogs) Create(ctx context.Context, l *models.ExecutionLog) error {
	if l.ExecutionTime.IsZero() {
		l.ExecutionTime = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Omit("Workflow", "User").Create(l).Error, "Log")
}

func (r executionLogs) Get(ctx context.Context, userID, id string) (*models.ExecutionLog, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Log")
	}
	var l models.ExecutionLog
	if err := r.db.WithContext(ctx).First(&l, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		return nil, translate(err, "Log")
	}
	return &l, nil
}

func (r executionLogs) ListByUser(ctx context.Context, userID string, page store.Page) ([]models.ExecutionLog, error) {
	page = page.Normalize()
	var out []models.ExecutionLog
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("execution_time desc").Offset(page.Skip).Limit(page.Limit).Find(&out).Error
	return out, err
}

func (r executionLogs) ListByWorkflow(ctx context.Context, userID, workflowID string, page store.Page) ([]models.ExecutionLog, error) {
	if !validID(workflowID) {
		return nil, nil
	}
	page = page.Normalize()
	var out []models.ExecutionLog
	err := r.db.WithContext(ctx).Where("user_id = ? AND workflow_id = ?", userID, workflowID).
		Order("execution_time desc").Offset(page.Skip).Limit(page.Limit).Find(&out).Error
	return out, err
}

func (r executionLogs) UpdateStatus(ctx context.Context, id, status string, details []byte) error {
	if !validID(id) {
		return apperr.NotFound("Log")
	}
	res := r.db.WithContext(ctx).Model(&models.ExecutionLog{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "details": datatypes.JSON(details)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Log")
	}
	return nil
}

type templates struct{ db *gorm.DB }

func (r templates) Create(ctx context.Context, t *models.Template) error {
	return translate(r.db.WithContext(ctx).Create(t).Error, "Template")
}

func (r templates) Get(ctx context.Context, id string) (*models.Template, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Template")
	}
	var t models.Template
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err, "Template")
	}
	return &t, nil
}

func (r templates) List(ctx context.Context, page store.Page) ([]models.Template, error) {
	page = page.Normalize()
	var out []models.Template
	err := r.db.WithContext(ctx).Order("category, name").Offset(page.Skip).Limit(page.Limit).Find(&out).Error
	return out, err
}

func (r templates) Save(ctx context.Context, t *models.Template) error {
	return translate(r.db.WithContext(ctx).Save(t).Error, "Template")
}

func (r templates) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("Template")
	}
	res := r.db.WithContext(ctx).Delete(&models.Template{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Template")
	}
	return nil
}

type oauthStates struct{ db *gorm.DB }

func (r oauthStates) Save(ctx context.Context, state string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Create(&models.OAuthState{State: state, ExpiresAt: expiresAt}).Error
}

func (r oauthStates) Consume(ctx context.Context, state string, now time.Time) (bool, error) {
	var rows []models.OAuthState
	res := r.db.WithContext(ctx).Clauses(clause.Returning{}).
		Where("state = ?", state).Delete(&rows)
	if res.Error != nil {
		return false, res.Error
	}
	if len(rows) == 0 {
		return false, nil
	}
	// Opportunistic cleanup of abandoned logins.
	r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.OAuthState{})
	return rows[0].ExpiresAt.After(now), nil
}
