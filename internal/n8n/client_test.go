package n8n

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/metrics"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "key-123", zap.NewNop().Sugar(), Options{
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryBase:  time.Millisecond,
		HTTPClient: srv.Client(),
		Metrics:    metrics.New(),
	})
}

func TestCreateWorkflowSendsSpec(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("X-N8N-API-KEY"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"wf","nodes":[],"connections":{},"settings":{}}`, string(body))
		_, _ = w.Write([]byte(`{"id":"abc","name":"wf","active":false}`))
	})

	wf, err := c.CreateWorkflow(t.Context(), WorkflowSpec{Name: "wf"})
	require.NoError(t, err)
	assert.Equal(t, ID("abc"), wf.ID)
}

func TestUpdateWorkflowSendsFullBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/workflows/7", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"name":"wf","nodes":[{"name":"A"}],"connections":{},"settings":{"timezone":"UTC"}}`, string(body))
		_, _ = w.Write([]byte(`{"id":"7","name":"wf"}`))
	})

	_, err := c.UpdateWorkflow(t.Context(), "7", WorkflowSpec{
		Name:        "wf",
		Nodes:       json.RawMessage(`[{"name":"A"}]`),
		Connections: json.RawMessage(`null`),
		Settings:    json.RawMessage(`{"timezone":"UTC"}`),
	})
	require.NoError(t, err)
}

func TestNon2xxIsUpstreamError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"bad nodes"}`))
	})

	_, err := c.CreateWorkflow(t.Context(), WorkflowSpec{Name: "wf"})
	var ue *apperr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.Status)
	assert.Contains(t, ue.Body, "bad nodes")
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, apperr.Message(err), "Error communicating with n8n")
}

func TestGetRetriesOn5xx(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":7,"name":"wf","active":true}`))
	})

	wf, err := c.GetWorkflow(t.Context(), "7")
	require.NoError(t, err)
	assert.Equal(t, ID("7"), wf.ID)
	assert.True(t, wf.Active)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.GetWorkflow(t.Context(), "1")
	assert.True(t, apperr.IsUpstreamStatus(err, http.StatusServiceUnavailable))
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet404NotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.GetWorkflow(t.Context(), "1")
	assert.True(t, apperr.IsUpstreamStatus(err, http.StatusNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.Execute(t.Context(), "1", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmptyBodyIsEmptyResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.DeleteWorkflow(t.Context(), "1"))
}

func TestExecuteExtractsExecutionID(t *testing.T) {
	cases := map[string]struct {
		body string
		want ID
	}{
		"executionId": {`{"executionId":"e1"}`, "e1"},
		"numeric id":  {`{"id":42}`, "42"},
		"nested":      {`{"data":{"executionId":99}}`, "99"},
		"none":        {`{"ok":true}`, ""},
		"data array":  {`{"data":[1,2]}`, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/workflows/wf1/execute", r.URL.Path)
				body, _ := io.ReadAll(r.Body)
				assert.JSONEq(t, `{}`, string(body))
				_, _ = w.Write([]byte(tc.body))
			})
			res, err := c.Execute(t.Context(), "wf1", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.ExecutionID)
			assert.JSONEq(t, tc.body, string(res.Raw))
		})
	}
}

func TestListExecutions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/executions", r.URL.Path)
		assert.Equal(t, "wf1", r.URL.Query().Get("workflowId"))
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"id":1,"workflowId":"wf1","finished":true},{"id":"2","workflowId":"wf1","status":"error"}],"nextCursor":null}`))
	})

	execs, err := c.ListExecutions(t.Context(), "wf1", 0)
	require.NoError(t, err)
	require.Len(t, execs, 2)
	assert.Equal(t, ID("1"), execs[0].ID)
	assert.Equal(t, "success", execs[0].State())
	assert.Equal(t, "error", execs[1].State())
	assert.NotEmpty(t, execs[1].Raw)
}

func TestActiveWorkflows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]any{{"id": "a", "name": "A", "active": true}}})
	})

	wfs, err := c.ActiveWorkflows(t.Context())
	require.NoError(t, err)
	require.Len(t, wfs, 1)
	assert.Equal(t, "A", wfs[0].Name)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(srv.URL, "k", zap.NewNop().Sugar(), Options{RetryBase: time.Millisecond})

	err := c.Activate(t.Context(), "1")
	var ue *apperr.UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Zero(t, ue.Status)
}

func TestExecutionState(t *testing.T) {
	assert.Equal(t, "running", (&Execution{}).State())
	assert.Equal(t, "success", (&Execution{Finished: true}).State())
	assert.Equal(t, "waiting", (&Execution{Status: "waiting"}).State())
}
