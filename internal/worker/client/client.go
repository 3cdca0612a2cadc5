// Package client is the worker's HTTP client for the scheduler API.
//
// Every call carries a bearer token and a fixed timeout. Transport failures and 5xx
// responses are retried with exponential backoff; 4xx responses are decoded back into
// the model sentinel errors and returned without retrying.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mteval/internal/model"
	"mteval/pkg/logger"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnauthorized the scheduler rejected the bearer token
var ErrUnauthorized = errors.New("unauthorized")

// APIError a non-2xx response from the scheduler
type APIError struct {
	StatusCode int
	Message    string
	sentinel   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scheduler returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.sentinel
}

// RetryPolicy bounds the attempts of one call
type RetryPolicy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	heartbeatPolicy = RetryPolicy{Attempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second}
	assignPolicy    = RetryPolicy{Attempts: 2, InitialInterval: time.Second, MaxInterval: 5 * time.Second}
	reportPolicy    = RetryPolicy{Attempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second}
)

// Config client configuration
type Config struct {
	Host      string // scheduler base URL, e.g. http://localhost:8000
	Token     string
	Namespace string
	Timeout   time.Duration // per request
}

// Client scheduler API client
type Client struct {
	baseURL    string
	token      string
	namespace  string
	httpClient *http.Client

	heartbeat RetryPolicy
	assign    RetryPolicy
	report    RetryPolicy
}

// New creates a client
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.Host, "/"),
		token:      cfg.Token,
		namespace:  cfg.Namespace,
		httpClient: &http.Client{Timeout: timeout},
		heartbeat:  heartbeatPolicy,
		assign:     assignPolicy,
		report:     reportPolicy,
	}
}

// Register registers the worker. Registration uses the heartbeat retry budget.
// A retry after a lost response leaves an extra WAITING row that the reaper expires.
func (c *Client) Register(ctx context.Context, req *model.RegisterRequest) (*model.RegisterResponse, error) {
	var resp model.RegisterResponse
	err := c.call(ctx, "register", c.heartbeat, http.MethodPost, c.path("workers", "register"), req, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat refreshes the worker's liveness
func (c *Client) Heartbeat(ctx context.Context, workerID int64) error {
	return c.call(ctx, "heartbeat", c.heartbeat, http.MethodPut, c.workerPath(workerID, "heartbeat"), nil, nil)
}

// Unregister marks the worker finished
func (c *Client) Unregister(ctx context.Context, workerID int64) error {
	return c.call(ctx, "unregister", c.heartbeat, http.MethodPost, c.workerPath(workerID, "unregister"), nil, nil)
}

// Assign leases at most one job
func (c *Client) Assign(ctx context.Context, workerID int64) ([]model.JobInfo, error) {
	var jobs []model.JobInfo
	if err := c.call(ctx, "assign", c.assign, http.MethodPost, c.workerPath(workerID, "jobs", "assign"), nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ReportResult reports the metric results of a leased job
func (c *Client) ReportResult(ctx context.Context, workerID int64, result *model.JobResultRequest) error {
	p := c.workerPath(workerID, "jobs", fmt.Sprint(result.JobID), "report_result")
	return c.call(ctx, "report", c.report, http.MethodPost, p, result, nil)
}

func (c *Client) path(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "api/v1/namespaces", url.PathEscape(c.namespace))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

func (c *Client) workerPath(workerID int64, parts ...string) string {
	return c.path(append([]string{"workers", fmt.Sprint(workerID)}, parts...)...)
}

// call runs one request under policy, decoding a JSON response into out when non-nil
func (c *Client) call(ctx context.Context, name string, policy RetryPolicy, method, endpoint string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode %s request: %w", name, err)
		}
	}

	op := func() error {
		err := c.do(ctx, method, endpoint, payload, out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.WarnCtx(ctx, "%s failed, retrying in %v: %v", name, wait, err)
	}
	return backoff.RetryNotify(op, policy.backOff(ctx), notify)
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	retries := 0
	if p.Attempts > 1 {
		retries = p.Attempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload []byte, out interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError maps a scheduler error response back to a sentinel
func decodeError(status int, data []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}

	apiErr := &APIError{StatusCode: status, Message: msg}
	switch status {
	case http.StatusNotFound:
		apiErr.sentinel = model.ErrNotFound
	case http.StatusConflict:
		apiErr.sentinel = model.ErrWorkerInactive
	case http.StatusUnauthorized, http.StatusForbidden:
		apiErr.sentinel = ErrUnauthorized
	case http.StatusBadRequest:
		if strings.Contains(msg, model.ErrOwnershipConflict.Error()) {
			apiErr.sentinel = model.ErrOwnershipConflict
		} else {
			apiErr.sentinel = model.ErrInvalidRequest
		}
	}
	return apiErr
}
