package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"mteval/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New(Config{Host: srv.URL + "/", Token: "secret", Namespace: "default", Timeout: time.Second})
	c.heartbeat = fastPolicy
	c.assign = RetryPolicy{Attempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	c.report = fastPolicy
	return c
}

func TestRegister(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/namespaces/default/workers/register", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req model.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bleu", req.Metric)
		assert.True(t, req.MetricRequiresReferences)

		_ = json.NewEncoder(w).Encode(model.RegisterResponse{WorkerID: 7, NumJobs: 2})
	})

	resp, err := c.Register(context.Background(), &model.RegisterRequest{Metric: "bleu", MetricRequiresReferences: true})
	require.NoError(t, err)
	assert.Equal(t, int64(7), resp.WorkerID)
	assert.Equal(t, 2, resp.NumJobs)
}

func TestRegister_RetriedOnServerError(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(model.RegisterResponse{WorkerID: 8})
	})

	resp, err := c.Register(context.Background(), &model.RegisterRequest{Metric: "chrf"})
	require.NoError(t, err)
	assert.Equal(t, int64(8), resp.WorkerID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAssignAndReportPaths(t *testing.T) {
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/api/v1/namespaces/default/workers/7/jobs/assign" {
			_ = json.NewEncoder(w).Encode([]model.JobInfo{{ID: 11, RunID: 3, Metric: "bleu"}})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	jobs, err := c.Assign(ctx, 7)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, int64(11), jobs[0].ID)

	require.NoError(t, c.ReportResult(ctx, 7, &model.JobResultRequest{JobID: 11}))
	require.NoError(t, c.Heartbeat(ctx, 7))
	require.NoError(t, c.Unregister(ctx, 7))

	assert.Equal(t, []string{
		"POST /api/v1/namespaces/default/workers/7/jobs/assign",
		"POST /api/v1/namespaces/default/workers/7/jobs/11/report_result",
		"PUT /api/v1/namespaces/default/workers/7/heartbeat",
		"POST /api/v1/namespaces/default/workers/7/unregister",
	}, paths)
}

func TestAssign_EmptyBacklog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("[]"))
	})
	jobs, err := c.Assign(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestErrorsDecodeToSentinels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"error":"worker 1: not found"}`, model.ErrNotFound},
		{"inactive", http.StatusConflict, `{"error":"worker is no longer active"}`, model.ErrWorkerInactive},
		{"ownership", http.StatusBadRequest, `{"error":"job 4: job not assigned to this worker"}`, model.ErrOwnershipConflict},
		{"invalid", http.StatusBadRequest, `{"error":"invalid request: bad"}`, model.ErrInvalidRequest},
		{"unauthorized", http.StatusUnauthorized, `{"error":"unauthorized"}`, ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := c.Heartbeat(context.Background(), 1)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
		})
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.Heartbeat(context.Background(), 1))
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryBudgetPerCall(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx := context.Background()

	_, err := c.Assign(ctx, 1)
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	err = c.ReportResult(ctx, 1, &model.JobResultRequest{JobID: 2})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransportErrorIsRetriedThenReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(Config{Host: srv.URL, Namespace: "default", Timeout: 100 * time.Millisecond})
	c.heartbeat = fastPolicy
	err := c.Heartbeat(context.Background(), 1)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestCanceledContextStopsRetrying(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	c.heartbeat = RetryPolicy{Attempts: 100, InitialInterval: 50 * time.Millisecond, MaxInterval: 50 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	require.Error(t, c.Heartbeat(ctx, 1))
	assert.Less(t, calls.Load(), int32(10))
}
