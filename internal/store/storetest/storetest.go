// Package storetest holds behaviour checks every store.Store implementation must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflowai/internal/apperr"
	"workflowai/internal/models"
	"workflowai/internal/store"
)

// Run executes the suite. newStore must return an empty store per call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Workflows", func(t *testing.T) { testWorkflows(t, newStore(t)) })
	t.Run("ExecutionLogs", func(t *testing.T) { testLogs(t, newStore(t)) })
	t.Run("Templates", func(t *testing.T) { testTemplates(t, newStore(t)) })
	t.Run("OAuthStates", func(t *testing.T) { testStates(t, newStore(t)) })
	t.Run("Tx", func(t *testing.T) { testTx(t, newStore(t)) })
	t.Run("MalformedIDs", func(t *testing.T) { testMalformedIDs(t, newStore(t)) })
}

func mustUser(t *testing.T, st store.Store, email, username string) *models.User {
	t.Helper()
	u := &models.User{Email: email, Username: username, PasswordHash: "x", IsActive: true}
	require.NoError(t, st.Users().Create(context.Background(), u))
	require.NotEmpty(t, u.ID)
	return u
}

func mustWorkflow(t *testing.T, st store.Store, owner *models.User, remoteID string) *models.Workflow {
	t.Helper()
	w := &models.Workflow{Name: "wf-" + remoteID, RemoteWorkflowID: remoteID, OwnerID: owner.ID}
	require.NoError(t, st.Workflows().Create(context.Background(), w))
	require.NotEmpty(t, w.ID)
	return w
}

func testUsers(t *testing.T, st store.Store) {
	ctx := context.Background()
	u := mustUser(t, st, "a@x.com", "alice")

	got, err := st.Users().ByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	got, err = st.Users().ByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = st.Users().ByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = st.Users().Create(ctx, &models.User{Email: "a@x.com", Username: "other", IsActive: true})
	assert.ErrorIs(t, err, store.ErrDuplicate)
	err = st.Users().Create(ctx, &models.User{Email: "b@x.com", Username: "alice", IsActive: true})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, st.Users().SetToken(ctx, u.ID, "tok-1"))
	got, err = st.Users().ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got.Token)
	assert.ErrorIs(t, st.Users().SetToken(ctx, "00000000-0000-0000-0000-000000000000", "t"), apperr.ErrNotFound)

	got.IsAdmin = true
	require.NoError(t, st.Users().Save(ctx, got))
	got, err = st.Users().ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAdmin)
	assert.Equal(t, "tok-1", got.Token)

	mustUser(t, st, "c@x.com", "carol")
	list, err := st.Users().List(ctx, store.Page{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = st.Users().List(ctx, store.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func testWorkflows(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "a@x.com", "alice")
	bob := mustUser(t, st, "b@x.com", "bob")
	w := mustWorkflow(t, st, alice, "r1")
	assert.Equal(t, 1, w.Version)
	assert.False(t, w.IsActive)

	_, err := st.Workflows().Get(ctx, bob.ID, w.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, st.Workflows().Delete(ctx, bob.ID, w.ID), apperr.ErrNotFound)

	list, err := st.Workflows().List(ctx, bob.ID, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, list)

	w.Name, w.IsActive = "renamed", true
	require.NoError(t, st.Workflows().Update(ctx, w))
	assert.Equal(t, 2, w.Version)
	got, err := st.Workflows().Get(ctx, alice.ID, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.True(t, got.IsActive)
	assert.Equal(t, 2, got.Version)

	stale := *got
	stale.Version = 1
	assert.ErrorIs(t, st.Workflows().Update(ctx, &stale), apperr.ErrConflict)

	mustWorkflow(t, st, bob, "r2")
	all, err := st.Workflows().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, st.Workflows().Delete(ctx, alice.ID, w.ID))
	_, err = st.Workflows().Get(ctx, alice.ID, w.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testLogs(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "a@x.com", "alice")
	bob := mustUser(t, st, "b@x.com", "bob")
	w := mustWorkflow(t, st, alice, "r1")

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		l := &models.ExecutionLog{
			WorkflowID:        w.ID,
			UserID:            alice.ID,
			Status:            "started",
			RemoteExecutionID: string(rune('a' + i)),
			ExecutionTime:     base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, st.ExecutionLogs().Create(ctx, l))
	}

	logs, err := st.ExecutionLogs().ListByUser(ctx, alice.ID, store.Page{})
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "c", logs[0].RemoteExecutionID)
	assert.Equal(t, "a", logs[2].RemoteExecutionID)

	logs, err = st.ExecutionLogs().ListByWorkflow(ctx, alice.ID, w.ID, store.Page{Skip: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "b", logs[0].RemoteExecutionID)

	_, err = st.ExecutionLogs().Get(ctx, bob.ID, logs[0].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, st.ExecutionLogs().UpdateStatus(ctx, logs[0].ID, "success", []byte(`{"finished":true}`)))
	got, err := st.ExecutionLogs().Get(ctx, alice.ID, logs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "success", got.Status)
	assert.JSONEq(t, `{"finished":true}`, string(got.Details))

	// logs go with their workflow
	require.NoError(t, st.Workflows().Delete(ctx, alice.ID, w.ID))
	logs, err = st.ExecutionLogs().ListByUser(ctx, alice.ID, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func testTemplates(t *testing.T, st store.Store) {
	ctx := context.Background()
	tpl := &models.Template{Name: "Digest", RemoteWorkflowID: "r9", Category: "ops"}
	require.NoError(t, st.Templates().Create(ctx, tpl))
	require.NotEmpty(t, tpl.ID)

	tpl.Description = "daily digest"
	require.NoError(t, st.Templates().Save(ctx, tpl))
	got, err := st.Templates().Get(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "daily digest", got.Description)

	list, err := st.Templates().List(ctx, store.Page{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, st.Templates().Delete(ctx, tpl.ID))
	_, err = st.Templates().Get(ctx, tpl.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, st.Templates().Delete(ctx, tpl.ID), apperr.ErrNotFound)
}

func testStates(t *testing.T, st store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, st.OAuthStates().Save(ctx, "fresh", now.Add(time.Minute)))
	require.NoError(t, st.OAuthStates().Save(ctx, "stale", now.Add(-time.Minute)))

	ok, err := st.OAuthStates().Consume(ctx, "fresh", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.OAuthStates().Consume(ctx, "fresh", now)
	require.NoError(t, err)
	assert.False(t, ok, "a state is single use")

	ok, err = st.OAuthStates().Consume(ctx, "stale", now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = st.OAuthStates().Consume(ctx, "unknown", now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testTx(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "a@x.com", "alice")
	boom := errors.New("boom")

	err := st.Tx(ctx, func(tx store.Store) error {
		w := &models.Workflow{Name: "tx", RemoteWorkflowID: "r-tx", OwnerID: alice.ID}
		require.NoError(t, tx.Workflows().Create(ctx, w))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	all, err := st.Workflows().All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.NoError(t, st.Tx(ctx, func(tx store.Store) error {
		return tx.Workflows().Create(ctx, &models.Workflow{Name: "tx", RemoteWorkflowID: "r-tx", OwnerID: alice.ID})
	}))
	all, err = st.Workflows().All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testMalformedIDs(t *testing.T, st store.Store) {
	ctx := context.Background()
	alice := mustUser(t, st, "a@x.com", "alice")
	mustWorkflow(t, st, alice, "r1")

	for _, id := range []string{"abc", "1", "not-a-uuid"} {
		_, err := st.Users().ByID(ctx, id)
		assert.ErrorIs(t, err, apperr.ErrNotFound, "users.ByID(%q)", id)
		assert.ErrorIs(t, st.Users().SetToken(ctx, id, "tok"), apperr.ErrNotFound, "users.SetToken(%q)", id)

		_, err = st.Workflows().Get(ctx, alice.ID, id)
		assert.ErrorIs(t, err, apperr.ErrNotFound, "workflows.Get(%q)", id)
		assert.ErrorIs(t, st.Workflows().Delete(ctx, alice.ID, id), apperr.ErrNotFound, "workflows.Delete(%q)", id)
		err = st.Workflows().Update(ctx, &models.Workflow{ID: id, OwnerID: alice.ID})
		assert.ErrorIs(t, err, apperr.ErrConflict, "workflows.Update(%q)", id)

		_, err = st.ExecutionLogs().Get(ctx, alice.ID, id)
		assert.ErrorIs(t, err, apperr.ErrNotFound, "executionLogs.Get(%q)", id)
		assert.ErrorIs(t, st.ExecutionLogs().UpdateStatus(ctx, id, "success", nil), apperr.ErrNotFound)
		logs, err := st.ExecutionLogs().ListByWorkflow(ctx, alice.ID, id, store.Page{})
		require.NoError(t, err)
		assert.Empty(t, logs)

		_, err = st.Templates().Get(ctx, id)
		assert.ErrorIs(t, err, apperr.ErrNotFound, "templates.Get(%q)", id)
		assert.ErrorIs(t, st.Templates().Delete(ctx, id), apperr.ErrNotFound, "templates.Delete(%q)", id)
	}
}
