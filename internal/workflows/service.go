// Package workflows keeps local workflow records and the n8n engine in step.
//
// Creates go remote first, deletes go remote first, and updates push to the
// engine inside the local transaction so a failed save rolls the row back.
// When the two sides diverge anyway the orphan sweep (Reconcile) repairs it.
package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/metrics"
	"workflowai/internal/models"
	"workflowai/internal/n8n"
	"workflowai/internal/store"
)

// Engine is the remote workflow engine. *n8n.Client implements it.
type Engine interface {
	CreateWorkflow(ctx context.Context, spec n8n.WorkflowSpec) (*n8n.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*n8n.Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, spec n8n.WorkflowSpec) (*n8n.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	Activate(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
	Execute(ctx context.Context, id string, payload json.RawMessage) (*n8n.ExecuteResult, error)
	GetExecution(ctx context.Context, id string) (*n8n.Execution, error)
	ListExecutions(ctx context.Context, workflowID string, limit int) ([]n8n.Execution, error)
	ActiveWorkflows(ctx context.Context) ([]n8n.Workflow, error)
}

var _ Engine = (*n8n.Client)(nil)

// StatusStarted is the status of a log written right after a manual run.
const StatusStarted = "started"

type CreateInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Connections json.RawMessage `json:"connections,omitempty"`
	TemplateID  string          `json:"template_id,omitempty"`
}

// UpdateInput carries only the fields to change. Version, when set, must
// match the stored version.
type UpdateInput struct {
	Name        *string         `json:"name,omitempty"`
	Description *string         `json:"description,omitempty"`
	IsActive    *bool           `json:"is_active,omitempty"`
	Nodes       json.RawMessage `json:"nodes,omitempty"`
	Connections json.RawMessage `json:"connections,omitempty"`
	Version     *int            `json:"version,omitempty"`
}

type ExecuteResult struct {
	LogID       string `json:"log_id"`
	ExecutionID string `json:"execution_id"`
}

type Options struct {
	// CleanupTimeout bounds compensating remote calls made after a local failure.
	CleanupTimeout time.Duration
	// DeleteRetries is how often a failed local delete is retried after the
	// remote delete succeeded.
	DeleteRetries uint64
	RetryBase     time.Duration
	Metrics       *metrics.Metrics
}

type Service struct {
	st     store.Store
	engine Engine
	lg     *zap.SugaredLogger
	m      *metrics.Metrics

	cleanupTimeout time.Duration
	deleteRetries  uint64
	retryBase      time.Duration
}

func NewService(st store.Store, engine Engine, lg *zap.SugaredLogger, opts Options) *Service {
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = 10 * time.Second
	}
	if opts.DeleteRetries == 0 {
		opts.DeleteRetries = 3
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 100 * time.Millisecond
	}
	return &Service{
		st:             st,
		engine:         engine,
		lg:             lg,
		m:              opts.Metrics,
		cleanupTimeout: opts.CleanupTimeout,
		deleteRetries:  opts.DeleteRetries,
		retryBase:      opts.RetryBase,
	}
}

func hasJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

// Create registers the workflow on the engine, then stores the local row.
// If the row cannot be stored the remote workflow is deleted again.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (_ *models.Workflow, err error) {
	defer func() { s.m.Sync("create", err) }()

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, apperr.Validation("Workflow name is required")
	}
	if in.TemplateID != "" {
		if err := s.applyTemplate(ctx, &in); err != nil {
			return nil, err
		}
	}

	remote, err := s.engine.CreateWorkflow(ctx, n8n.WorkflowSpec{
		Name:        in.Name,
		Nodes:       in.Nodes,
		Connections: in.Connections,
	})
	if err != nil {
		return nil, fmt.Errorf("create remote workflow: %w", err)
	}

	w := &models.Workflow{
		Name:             in.Name,
		Description:      in.Description,
		RemoteWorkflowID: remote.ID.String(),
		IsActive:         false,
		OwnerID:          ownerID,
		Version:          1,
	}
	if err := s.st.Workflows().Create(ctx, w); err != nil {
		s.compensateCreate(ctx, remote.ID.String())
		return nil, fmt.Errorf("store workflow: %w", err)
	}
	s.lg.Infow("workflow created", "workflow_id", w.ID, "remote_id", w.RemoteWorkflowID, "owner_id", ownerID)
	return w, nil
}

func (s *Service) applyTemplate(ctx context.Context, in *CreateInput) error {
	tpl, err := s.st.Templates().Get(ctx, in.TemplateID)
	if err != nil {
		return err
	}
	if in.Description == "" {
		in.Description = tpl.Description
	}
	if hasJSON(in.Nodes) {
		return nil
	}
	src, err := s.engine.GetWorkflow(ctx, tpl.RemoteWorkflowID)
	if err != nil {
		return fmt.Errorf("load template workflow: %w", err)
	}
	in.Nodes = src.Nodes
	if !hasJSON(in.Connections) {
		in.Connections = src.Connections
	}
	return nil
}

func (s *Service) compensateCreate(ctx context.Context, remoteID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()
	if err := s.engine.DeleteWorkflow(cctx, remoteID); err != nil {
		s.lg.Warnw("compensating remote delete failed", "remote_id", remoteID, "err", err)
		return
	}
	s.lg.Infow("removed remote workflow after local failure", "remote_id", remoteID)
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*models.Workflow, error) {
	return s.st.Workflows().Get(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID string, page store.Page) ([]models.Workflow, error) {
	return s.st.Workflows().List(ctx, ownerID, page)
}

// Update applies in atomically. Engine calls happen inside the transaction;
// an activation toggle is reverted when the local save fails.
func (s *Service) Update(ctx context.Context, ownerID, id string, in UpdateInput) (_ *models.Workflow, err error) {
	defer func() { s.m.Sync("update", err) }()

	var out *models.Workflow
	var undo func()
	err = s.st.Tx(ctx, func(tx store.Store) error {
		w, err := tx.Workflows().Get(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if in.Version != nil && *in.Version != w.Version {
			return apperr.ErrConflict
		}
		if in.Name != nil {
			name := strings.TrimSpace(*in.Name)
			if name == "" {
				return apperr.Validation("Workflow name is required")
			}
			w.Name = name
		}
		if in.Description != nil {
			w.Description = *in.Description
		}
		if hasJSON(in.Nodes) {
			spec, err := s.graphSpec(ctx, w, in)
			if err != nil {
				return err
			}
			if _, err := s.engine.UpdateWorkflow(ctx, w.RemoteWorkflowID, spec); err != nil {
				return err
			}
		}
		if in.IsActive != nil && *in.IsActive != w.IsActive {
			if err := s.setActive(ctx, w.RemoteWorkflowID, *in.IsActive); err != nil {
				return err
			}
			prev, remoteID := w.IsActive, w.RemoteWorkflowID
			undo = func() { s.revertActive(ctx, remoteID, prev) }
			w.IsActive = *in.IsActive
		}
		if err := tx.Workflows().Update(ctx, w); err != nil {
			return err
		}
		out = w
		return nil
	})
	if err != nil {
		if undo != nil {
			undo()
		}
		return nil, apperr.Operation("failed to update workflow", err)
	}
	return out, nil
}

// graphSpec builds the full-replace body for a graph update. Connections and
// settings not given in the request keep their current remote values.
func (s *Service) graphSpec(ctx context.Context, w *models.Workflow, in UpdateInput) (n8n.WorkflowSpec, error) {
	cur, err := s.engine.GetWorkflow(ctx, w.RemoteWorkflowID)
	if err != nil {
		return n8n.WorkflowSpec{}, err
	}
	spec := n8n.WorkflowSpec{
		Name:        w.Name,
		Nodes:       in.Nodes,
		Connections: cur.Connections,
		Settings:    cur.Settings,
	}
	if hasJSON(in.Connections) {
		spec.Connections = in.Connections
	}
	return spec, nil
}

func (s *Service) setActive(ctx context.Context, remoteID string, active bool) error {
	if active {
		return s.engine.Activate(ctx, remoteID)
	}
	return s.engine.Deactivate(ctx, remoteID)
}

func (s *Service) revertActive(ctx context.Context, remoteID string, active bool) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()
	if err := s.setActive(cctx, remoteID, active); err != nil {
		s.lg.Warnw("revert remote activation failed", "remote_id", remoteID, "active", active, "err", err)
	}
}

// Delete removes the remote workflow, then the local row and its logs. A
// remote failure leaves both sides untouched. A local failure after a
// successful remote delete is retried; the sweep picks up what remains.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (err error) {
	defer func() { s.m.Sync("delete", err) }()

	w, err := s.st.Workflows().Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.engine.DeleteWorkflow(ctx, w.RemoteWorkflowID); err != nil {
		if !apperr.IsUpstreamStatus(err, http.StatusNotFound) {
			return fmt.Errorf("delete remote workflow: %w", err)
		}
		s.lg.Infow("remote workflow already gone", "workflow_id", w.ID, "remote_id", w.RemoteWorkflowID)
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cleanupTimeout)
	defer cancel()
	b := retry.WithMaxRetries(s.deleteRetries, retry.NewExponential(s.retryBase))
	err = retry.Do(dctx, b, func(ctx context.Context) error {
		err := s.st.Workflows().Delete(ctx, ownerID, id)
		if err == nil || errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		s.lg.Errorw("local delete failed after remote delete; left for reconciliation",
			"workflow_id", w.ID, "remote_id", w.RemoteWorkflowID, "err", err)
		return apperr.Operation("failed to delete workflow", err)
	}
	s.lg.Infow("workflow deleted", "workflow_id", w.ID, "remote_id", w.RemoteWorkflowID)
	return nil
}

// Execute starts a run on the engine and records it as a started log.
func (s *Service) Execute(ctx context.Context, ownerID, id string, payload json.RawMessage) (_ *ExecuteResult, err error) {
	defer func() { s.m.Sync("execute", err) }()

	w, err := s.st.Workflows().Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Execute(ctx, w.RemoteWorkflowID, payload)
	if err != nil {
		return nil, fmt.Errorf("execute remote workflow: %w", err)
	}
	details := res.Raw
	if !hasJSON(details) {
		details = json.RawMessage(`{}`)
	}
	l := &models.ExecutionLog{
		WorkflowID:        w.ID,
		UserID:            ownerID,
		Status:            StatusStarted,
		RemoteExecutionID: res.ExecutionID.String(),
		ExecutionTime:     time.Now().UTC(),
		Details:           []byte(details),
	}
	if err := s.st.ExecutionLogs().Create(ctx, l); err != nil {
		s.lg.Errorw("execution started but log not stored", "workflow_id", w.ID, "execution_id", l.RemoteExecutionID, "err", err)
		return nil, fmt.Errorf("store execution log: %w", err)
	}
	return &ExecuteResult{LogID: l.ID, ExecutionID: l.RemoteExecutionID}, nil
}

// Executions lists a workflow's logs and refreshes them from the engine.
// Engine errors are logged and the stored logs returned as they are.
func (s *Service) Executions(ctx context.Context, ownerID, id string, page store.Page) ([]models.ExecutionLog, error) {
	w, err := s.st.Workflows().Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.st.ExecutionLogs().ListByWorkflow(ctx, ownerID, w.ID, page)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return logs, nil
	}

	// the page sits page.Skip entries below the newest execution
	remote, err := s.engine.ListExecutions(ctx, w.RemoteWorkflowID, max(page.Skip+len(logs), 20))
	if err != nil {
		s.lg.Warnw("list remote executions", "workflow_id", w.ID, "err", err)
		return logs, nil
	}
	byID := make(map[string]*n8n.Execution, len(remote))
	for i := range remote {
		byID[remote[i].ID.String()] = &remote[i]
	}
	for i := range logs {
		l := &logs[i]
		if l.RemoteExecutionID == "" {
			continue
		}
		e, ok := byID[l.RemoteExecutionID]
		if !ok {
			// executions started outside this service can push ours out of the listing
			if e, err = s.engine.GetExecution(ctx, l.RemoteExecutionID); err != nil {
				s.lg.Debugw("fetch remote execution", "log_id", l.ID, "execution_id", l.RemoteExecutionID, "err", err)
				continue
			}
		}
		s.refresh(ctx, l, e)
	}
	return logs, nil
}

// Logs lists the user's logs, newest first.
func (s *Service) Logs(ctx context.Context, userID string, page store.Page) ([]models.ExecutionLog, error) {
	return s.st.ExecutionLogs().ListByUser(ctx, userID, page)
}

// RefreshLog returns one of the user's logs with the engine's current state.
func (s *Service) RefreshLog(ctx context.Context, userID, logID string) (*models.ExecutionLog, error) {
	l, err := s.st.ExecutionLogs().Get(ctx, userID, logID)
	if err != nil {
		return nil, err
	}
	if l.RemoteExecutionID == "" {
		return l, nil
	}
	e, err := s.engine.GetExecution(ctx, l.RemoteExecutionID)
	if err != nil {
		s.lg.Warnw("fetch remote execution", "log_id", l.ID, "execution_id", l.RemoteExecutionID, "err", err)
		return l, nil
	}
	s.refresh(ctx, l, e)
	return l, nil
}

func (s *Service) refresh(ctx context.Context, l *models.ExecutionLog, e *n8n.Execution) {
	status := e.State()
	details := []byte(e.Raw)
	if !hasJSON(details) {
		details = l.Details
	}
	if status == l.Status && bytes.Equal(details, l.Details) {
		return
	}
	if err := s.st.ExecutionLogs().UpdateStatus(ctx, l.ID, status, details); err != nil {
		s.lg.Warnw("persist execution status", "log_id", l.ID, "err", err)
		return
	}
	l.Status, l.Details = status, details
}
