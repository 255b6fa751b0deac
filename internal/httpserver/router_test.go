package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workflowai/internal/auth"
	"workflowai/internal/httpserver/handlers"
	"workflowai/internal/metrics"
	"workflowai/internal/n8n"
	"workflowai/internal/oauth"
	"workflowai/internal/store/memstore"
	"workflowai/internal/workflows"
)

type testServer struct {
	h  http.Handler
	st *memstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	lg := zap.NewNop().Sugar()
	st := memstore.New()
	m := metrics.New()

	tokens, err := auth.NewTokens("router-test-secret")
	require.NoError(t, err)
	authSvc := auth.NewService(st.Users(), tokens, time.Hour, lg)

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/workflows":
			_, _ = w.Write([]byte(`{"id":"remote-1","name":"daily","active":false}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/workflows/remote-1":
			_, _ = w.Write([]byte(`{"id":"remote-1"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(engine.Close)
	client := n8n.New(engine.URL, "key", lg, n8n.Options{Metrics: m})

	google := oauth.NewGoogle(oauth.GoogleConfig{ClientID: "cid", ClientSecret: "secret", RedirectURL: "http://localhost/api/auth/google/callback"})
	flow := oauth.NewFlow(google, oauth.NewDBStateStore(st.OAuthStates()), st.Users(), authSvc, lg)

	h := NewRouter(Deps{
		Auth:           authSvc,
		Resolver:       auth.NewResolver(tokens, st.Users(), lg, auth.ResolverOptions{Metrics: m}),
		Workflows:      workflows.NewService(st, client, lg, workflows.Options{Metrics: m}),
		Templates:      st.Templates(),
		Users:          st.Users(),
		OAuth:          flow,
		Metrics:        m,
		Cookies:        handlers.CookieOptions{SessionTTL: time.Hour},
		OAuthLanding:   "/dashboard.html",
		LoginRateLimit: 1000,
	}, lg)
	return &testServer{h: h, st: st}
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	form := url.Values{"username": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "bearer", out.TokenType)
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func (s *testServer) signup(t *testing.T, email, username, password string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/users/", "", `{"email":"`+email+`","username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Welcome to WorkflowAI API"}`, rec.Body.String())

	for _, p := range []string{"/health", "/healthz"} {
		rec = s.do(t, http.MethodGet, p, "", "")
		assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String(), p)
	}

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = s.do(t, http.MethodGet, "/api/templates/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignupLoginMe(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "a@x.com", "alice", "pw123")
	tok := s.login(t, "a@x.com", "pw123")

	rec := s.do(t, http.MethodGet, "/users/me/", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var me map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "a@x.com", me["email"])
	assert.Equal(t, "alice", me["username"])
	assert.NotContains(t, me, "password_hash")

	rec = s.do(t, http.MethodPost, "/users/", "", `{"email":"a@x.com","username":"other","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Email already registered", detail(t, rec))
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "a@x.com", "alice", "pw123")

	form := url.Values{"username": {"a@x.com"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Incorrect username or password", detail(t, rec))
}

func TestProtectedRoutesNeedCurrentToken(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "a@x.com", "alice", "pw123")

	rec := s.do(t, http.MethodGet, "/api/workflows/", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	old := s.login(t, "a@x.com", "pw123")
	current := s.login(t, "a@x.com", "pw123")
	rec = s.do(t, http.MethodGet, "/users/me", old, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(t, http.MethodGet, "/users/me", current, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "a@x.com", "alice", "pw123")
	tok := s.login(t, "a@x.com", "pw123")

	rec := s.do(t, http.MethodPost, "/logout", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodGet, "/users/me", tok, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWorkflowLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "a@x.com", "alice", "pw123")
	tok := s.login(t, "a@x.com", "pw123")

	rec := s.do(t, http.MethodPost, "/api/workflows/", tok, `{"name":"daily","description":"d"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var wf map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.Equal(t, "remote-1", wf["n8n_workflow_id"])
	assert.Equal(t, false, wf["is_active"])
	id := wf["id"].(string)

	rec = s.do(t, http.MethodGet, "/api/workflows/"+id, tok, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/workflows/"+id, tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"message":"Workflow deleted successfully"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/workflows/"+id, tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWorkflowCreateValidation(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "a@x.com", "alice", "pw123")
	tok := s.login(t, "a@x.com", "pw123")

	rec := s.do(t, http.MethodPost, "/api/workflows", tok, `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Workflow name is required", detail(t, rec))

	rec = s.do(t, http.MethodPost, "/api/workflows", tok, `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	s.signup(t, "a@x.com", "alice", "pw123")
	s.signup(t, "b@x.com", "bob", "pw456")
	tok := s.login(t, "a@x.com", "pw123")

	rec := s.do(t, http.MethodPost, "/api/templates", tok, `{"name":"t","n8n_workflow_id":"r1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not enough permissions", detail(t, rec))

	ctx := context.Background()
	alice, err := s.st.Users().ByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	alice.IsAdmin = true
	require.NoError(t, s.st.Users().Save(ctx, alice))

	rec = s.do(t, http.MethodPost, "/api/templates", tok, `{"name":"t","n8n_workflow_id":"r1","category":"ops"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tpl map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tpl))
	rec = s.do(t, http.MethodDelete, "/api/templates/"+tpl["id"].(string), tok, "")
	assert.JSONEq(t, `{"message":"Template deleted successfully"}`, rec.Body.String())

	bob, err := s.st.Users().ByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	rec = s.do(t, http.MethodPatch, "/api/admin/users/"+bob.ID, tok, `{"is_active":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bob, err = s.st.Users().ByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, bob.IsActive)

	rec = s.do(t, http.MethodPatch, "/api/admin/users/"+alice.ID, tok, `{"is_admin":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGoogleRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/auth/google/login", "", "")
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "accounts.google.com", loc.Host)
	assert.NotEmpty(t, loc.Query().Get("state"))

	rec = s.do(t, http.MethodGet, "/api/auth/google/callback?state=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing authorization code", detail(t, rec))

	rec = s.do(t, http.MethodGet, "/api/auth/google/callback?code=c&state=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OAuth state", detail(t, rec))
}
