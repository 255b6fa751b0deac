package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpstreamErrorMessage(t *testing.T) {
	cases := []struct {
		name string
		err  *UpstreamError
		want string
	}{
		{"transport", NewUpstream("GET workflows/1", 0, nil, errors.New("connection refused")), "GET workflows/1: connection refused"},
		{"status", NewUpstream("GET workflows/1", http.StatusBadGateway, []byte("bad gateway"), nil), "GET workflows/1: status 502: bad gateway"},
		{"status and cause", NewUpstream("POST workflows", http.StatusOK, nil, errors.New("response has no workflow id")), "POST workflows: status 200: response has no workflow id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestUpstreamErrorReachesClientMessage(t *testing.T) {
	err := NewUpstream("POST workflows", http.StatusOK, nil, errors.New("response has no workflow id"))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Contains(t, Message(err), "response has no workflow id")

	wrapped := &OperationError{Msg: "Failed to create workflow", Err: err}
	assert.Contains(t, Message(wrapped), "response has no workflow id")
}

func TestUpstreamBodyTruncated(t *testing.T) {
	body := make([]byte, maxUpstreamBody+10)
	for i := range body {
		body[i] = 'x'
	}
	err := NewUpstream("GET executions", http.StatusInternalServerError, body, nil)
	assert.Len(t, err.Body, maxUpstreamBody+3)
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	err := NotFound("Workflow")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(err))
	assert.Equal(t, "Workflow not found", Message(err))
}
