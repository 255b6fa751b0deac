// Package n8n is a client for the n8n public REST API (/api/v1).
package n8n

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"workflowai/internal/apperr"
	"workflowai/internal/metrics"
	"workflowai/internal/telemetry"
)

const (
	apiPrefix    = "/api/v1/"
	maxRespBytes = 8 << 20
)

type Options struct {
	Timeout    time.Duration
	MaxRetries uint64
	// RetryBase is the first backoff step for GET retries.
	RetryBase time.Duration
	// HTTPClient overrides the default instrumented client.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

type Client struct {
	base       string
	apiKey     string
	hc         *http.Client
	maxRetries uint64
	retryBase  time.Duration
	m          *metrics.Metrics
	lg         *zap.SugaredLogger
}

func New(baseURL, apiKey string, lg *zap.SugaredLogger, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = telemetry.HTTPClient(&http.Client{Timeout: opts.Timeout})
	}
	return &Client{
		base:       strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		hc:         hc,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		m:          opts.Metrics,
		lg:         lg,
	}
}

func (c *Client) CreateWorkflow(ctx context.Context, spec WorkflowSpec) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodPost, "workflows", nil, spec.normalized(), &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, apperr.NewUpstream("POST workflows", http.StatusOK, nil, errors.New("response has no workflow id"))
	}
	return &out, nil
}

func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodGet, "workflows/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateWorkflow(ctx context.Context, id string, spec WorkflowSpec) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodPut, "workflows/"+url.PathEscape(id), nil, spec.normalized(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteWorkflow(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "workflows/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) Activate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "workflows/"+url.PathEscape(id)+"/activate", nil, nil, nil)
}

func (c *Client) Deactivate(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "workflows/"+url.PathEscape(id)+"/deactivate", nil, nil, nil)
}

// Execute starts a manual run. payload may be nil; it is sent as {} then.
func (c *Client) Execute(ctx context.Context, id string, payload json.RawMessage) (*ExecuteResult, error) {
	var body any = json.RawMessage(`{}`)
	if len(bytes.TrimSpace(payload)) > 0 {
		body = payload
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "workflows/"+url.PathEscape(id)+"/execute", nil, body, &raw); err != nil {
		return nil, err
	}
	return &ExecuteResult{ExecutionID: executionIDOf(raw), Raw: raw}, nil
}

func (c *Client) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "executions/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return nil, err
	}
	var out Execution
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("decode execution %s: %w", id, err)
		}
	}
	out.Raw = raw
	return &out, nil
}

func (c *Client) ListExecutions(ctx context.Context, workflowID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{"workflowId": {workflowID}, "limit": {strconv.Itoa(limit)}}
	var env listEnvelope[json.RawMessage]
	if err := c.do(ctx, http.MethodGet, "executions", q, nil, &env); err != nil {
		return nil, err
	}
	out := make([]Execution, 0, len(env.Data))
	for _, raw := range env.Data {
		var e Execution
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode execution list: %w", err)
		}
		e.Raw = raw
		out = append(out, e)
	}
	return out, nil
}

func (c *Client) ActiveWorkflows(ctx context.Context) ([]Workflow, error) {
	var env listEnvelope[Workflow]
	if err := c.do(ctx, http.MethodGet, "workflows", url.Values{"active": {"true"}}, nil, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// do sends one API call. Only GETs are retried, on transport errors, 429 and 5xx.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, endpoint, err)
		}
		payload = b
	}
	u := c.base + apiPrefix + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	op := method + " " + endpoint

	if method != http.MethodGet || c.maxRetries == 0 {
		_, err := c.attempt(ctx, method, u, op, payload, out)
		return err
	}

	b := retry.NewExponential(c.retryBase)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithMaxRetries(c.maxRetries, b)
	return retry.Do(ctx, b, func(ctx context.Context) error {
		retryable, err := c.attempt(ctx, method, u, op, payload, out)
		if err != nil && retryable {
			c.lg.Debugw("retrying n8n request", "op", op, "err", err)
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *Client) attempt(ctx context.Context, method, u, op string, payload []byte, out any) (bool, error) {
	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return false, fmt.Errorf("build %s: %w", op, err)
	}
	req.Header.Set("X-N8N-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.m.ObserveN8N(method, 0, time.Since(start))
		return ctx.Err() == nil, apperr.NewUpstream(op, 0, nil, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRespBytes))
	c.m.ObserveN8N(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return true, apperr.NewUpstream(op, 0, nil, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retryable, apperr.NewUpstream(op, resp.StatusCode, data, nil)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, apperr.NewUpstream(op, resp.StatusCode, data, fmt.Errorf("decode response: %w", err))
	}
	return false, nil
}
