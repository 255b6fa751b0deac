package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/models"
	"workflowai/internal/store/memstore"
)

func newTestService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	tk, err := NewTokens("test-secret")
	require.NoError(t, err)
	return NewService(st.Users(), tk, 30*time.Minute, zap.NewNop().Sugar()), st
}

func TestSignupAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	u, err := svc.Signup(ctx, "A@X.com", "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsAdmin)

	got, err := svc.Authenticate(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	for _, pw := range []string{"", "pw1234", "PW123", "pw12"} {
		_, err := svc.Authenticate(ctx, "a@x.com", pw)
		assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed, pw)
	}
	_, err = svc.Authenticate(ctx, "nobody@x.com", "pw123")
	assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed)
}

func TestSignupDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Signup(ctx, "a@x.com", "alice", "pw123")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "a@x.com", "alice2", "pw123")
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Email already registered", ve.Msg)

	_, err = svc.Signup(ctx, "b@x.com", "alice", "pw123")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Username already registered", ve.Msg)

	_, err = svc.Signup(ctx, "not-an-email", "bob", "pw")
	require.ErrorAs(t, err, &ve)
}

func TestLoginReplacesSession(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	_, err := svc.Signup(ctx, "a@x.com", "alice", "pw123")
	require.NoError(t, err)

	first, _, err := svc.Login(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	second, u, err := svc.Login(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	stored, err := st.Users().ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, second, stored.Token)

	require.NoError(t, svc.Logout(ctx, u))
	stored, err = st.Users().ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Token)
}

func TestAuthenticateRehashesLegacyHash(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	legacy := argon2idHash("old-pw", []byte("saltsaltsaltsalt"))
	u := &models.User{Email: "old@x.com", Username: "old", PasswordHash: legacy, IsActive: true}
	require.NoError(t, st.Users().Create(ctx, u))

	_, err := svc.Authenticate(ctx, "old@x.com", "old-pw")
	require.NoError(t, err)

	stored, err := st.Users().ByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^\$2[aby]\$`, stored.PasswordHash)
	assert.True(t, CheckPassword(stored.PasswordHash, "old-pw"))
}

func TestAuthenticateOAuthOnlyAccount(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	require.NoError(t, st.Users().Create(ctx, &models.User{Email: "g@x.com", Username: "g", IsActive: true}))

	_, err := svc.Authenticate(ctx, "g@x.com", "")
	assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed)
}
