package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/models"
	"workflowai/internal/store/memstore"
)

type resolverFixture struct {
	svc *Service
	rs  *Resolver
	st  *memstore.Store
	u   *models.User
	tok string
}

func newResolverFixture(t *testing.T, allowQuery bool) *resolverFixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	tk, err := NewTokens("test-secret")
	require.NoError(t, err)
	lg := zap.NewNop().Sugar()
	svc := NewService(st.Users(), tk, time.Hour, lg)
	u, err := svc.Signup(ctx, "a@x.com", "alice", "pw123")
	require.NoError(t, err)
	tok, err := svc.IssueSession(ctx, u)
	require.NoError(t, err)
	return &resolverFixture{
		svc: svc,
		rs:  NewResolver(tk, st.Users(), lg, ResolverOptions{AllowQueryToken: allowQuery}),
		st:  st,
		u:   u,
		tok: tok,
	}
}

func TestExtractOrder(t *testing.T) {
	f := newResolverFixture(t, true)

	r := httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	r.Header.Set("Authorization", "Bearer header")
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "Bearer cookie"})
	assert.Equal(t, "header", f.rs.Extract(r))

	r = httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "Bearer cookie"})
	assert.Equal(t, "cookie", f.rs.Extract(r))

	r = httptest.NewRequest(http.MethodGet, "/?token=query", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "cookie-without-prefix"})
	assert.Equal(t, "query", f.rs.Extract(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", f.rs.Extract(r))
}

func TestExtractQueryDisabled(t *testing.T) {
	f := newResolverFixture(t, false)
	r := httptest.NewRequest(http.MethodGet, "/?token="+f.tok, nil)
	assert.Equal(t, "", f.rs.Extract(r))
}

func TestResolveRequiresCurrentToken(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture(t, false)

	u, err := f.rs.Resolve(ctx, f.tok)
	require.NoError(t, err)
	assert.Equal(t, f.u.ID, u.ID)

	old := f.tok
	_, err = f.svc.IssueSession(ctx, f.u)
	require.NoError(t, err)

	_, err = f.rs.Resolve(ctx, old)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed)

	require.NoError(t, f.svc.Logout(ctx, f.u))
	_, err = f.rs.Resolve(ctx, f.u.Token)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed)
}

func TestLoginTwiceRejectsFirstToken(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture(t, false)

	first, _, err := f.svc.Login(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	second, _, err := f.svc.Login(ctx, "a@x.com", "pw123")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = f.rs.Resolve(ctx, first)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed)
	u, err := f.rs.Resolve(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, f.u.ID, u.ID)
}

func TestResolveUnknownUser(t *testing.T) {
	f := newResolverFixture(t, false)
	tok, err := f.svc.tokens.Issue("ghost@x.com", time.Minute)
	require.NoError(t, err)
	_, err = f.rs.Resolve(context.Background(), tok)
	assert.ErrorIs(t, err, apperr.ErrAuthenticationFailed)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(FromContext(r.Context()).Username))
}

func TestAuthenticateMiddleware(t *testing.T) {
	f := newResolverFixture(t, false)
	h := f.rs.Authenticate(RequireActive(http.HandlerFunc(okHandler)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, rec.Body.String())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "Bearer " + f.tok})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestRequireActiveAndAdmin(t *testing.T) {
	ctx := context.Background()
	f := newResolverFixture(t, false)

	call := func(h http.Handler) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+f.tok)
		rec := httptest.NewRecorder()
		f.rs.Authenticate(h).ServeHTTP(rec, r)
		return rec
	}

	rec := call(RequireAdmin(http.HandlerFunc(okHandler)))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"detail":"Not enough permissions"}`, rec.Body.String())

	f.u.IsAdmin = true
	require.NoError(t, f.st.Users().Save(ctx, f.u))
	rec = call(RequireAdmin(http.HandlerFunc(okHandler)))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.u.IsActive = false
	require.NoError(t, f.st.Users().Save(ctx, f.u))
	rec = call(RequireActive(http.HandlerFunc(okHandler)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Inactive user"}`, rec.Body.String())
}
