package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is an account. Token is the single active session slot: issuing a new
// session token overwrites it, and only a token equal to it resolves.
type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null;default:''" json:"-"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	Token        string    `gorm:"type:text" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Workflow references exactly one workflow on the remote engine.
type Workflow struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string    `gorm:"index;not null" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	RemoteWorkflowID string    `gorm:"column:remote_workflow_id;index;not null" json:"n8n_workflow_id"`
	IsActive         bool      `gorm:"not null;default:false" json:"is_active"`
	OwnerID          string    `gorm:"type:uuid;index;not null" json:"owner_id"`
	Version          int       `gorm:"not null;default:1" json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Owner User `gorm:"foreignKey:OwnerID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (w *Workflow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

// ExecutionLog records one run attempt. RemoteExecutionID is the engine's id
// for the run; Details holds the latest raw engine payload.
type ExecutionLog struct {
	ID                string         `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID        string         `gorm:"type:uuid;index;not null" json:"workflow_id"`
	UserID            string         `gorm:"type:uuid;index;not null" json:"user_id"`
	Status            string         `gorm:"not null" json:"status"`
	RemoteExecutionID string         `gorm:"index" json:"execution_id,omitempty"`
	ExecutionTime     time.Time      `gorm:"index;not null" json:"execution_time"`
	Details           datatypes.JSON `json:"details"`

	Workflow Workflow `gorm:"foreignKey:WorkflowID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	User     User     `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (l *ExecutionLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Template is an admin-managed catalog entry pointing at a remote workflow.
type Template struct {
	ID               string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string    `gorm:"index;not null" json:"name"`
	Description      string    `gorm:"type:text" json:"description"`
	RemoteWorkflowID string    `gorm:"column:remote_workflow_id;not null" json:"n8n_workflow_id"`
	Category         string    `gorm:"index" json:"category"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (t *Template) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// OAuthState is a pending authorization request, consumed once on callback.
type OAuthState struct {
	State     string    `gorm:"primaryKey;size:128"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (OAuthState) TableName() string { return "oauth_states" }
