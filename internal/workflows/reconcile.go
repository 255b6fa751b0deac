package workflows

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"workflowai/internal/apperr"
)

// Reconcile deletes local workflows whose remote counterpart is gone (the
// engine answers 404). Other engine errors skip the row. Nothing is deleted
// unless the engine first answers an active-workflows query.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	if _, err := s.engine.ActiveWorkflows(ctx); err != nil {
		return 0, fmt.Errorf("engine probe: %w", err)
	}
	all, err := s.st.Workflows().All(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, w := range all {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		_, err := s.engine.GetWorkflow(ctx, w.RemoteWorkflowID)
		if err == nil {
			continue
		}
		if !apperr.IsUpstreamStatus(err, http.StatusNotFound) {
			s.lg.Debugw("reconcile: skip workflow", "workflow_id", w.ID, "err", err)
			continue
		}
		if err := s.st.Workflows().Delete(ctx, w.OwnerID, w.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			s.lg.Warnw("reconcile: delete orphan", "workflow_id", w.ID, "err", err)
			continue
		}
		removed++
		s.m.OrphanDeleted()
		s.lg.Infow("reconcile: removed orphaned workflow", "workflow_id", w.ID, "remote_id", w.RemoteWorkflowID, "owner_id", w.OwnerID)
	}
	return removed, nil
}

// Schedule runs Reconcile on spec (standard cron syntax or @every) until the
// returned stop function is called. Overlapping runs are skipped.
func (s *Service) Schedule(spec string, timeout time.Duration) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := s.Reconcile(ctx)
		if err != nil {
			s.lg.Warnw("reconcile run failed", "removed", n, "err", err)
			return
		}
		s.lg.Debugw("reconcile run finished", "removed", n)
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile schedule %q: %w", spec, err)
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}
