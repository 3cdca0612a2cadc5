package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mteval/internal/model"
	"mteval/internal/worker/supervisor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu           sync.Mutex
	backlog      []model.JobInfo
	registered   *model.RegisterRequest
	heartbeats   int
	heartbeatErr error
	assignErr    error
	reportErr    error
	reports      []*model.JobResultRequest
	unregistered bool
}

func (f *fakeAPI) Register(ctx context.Context, req *model.RegisterRequest) (*model.RegisterResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = req
	return &model.RegisterResponse{WorkerID: 42, NumJobs: len(f.backlog)}, nil
}

func (f *fakeAPI) Heartbeat(ctx context.Context, workerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return f.heartbeatErr
}

func (f *fakeAPI) Unregister(ctx context.Context, workerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unregistered = true
	return nil
}

func (f *fakeAPI) Assign(ctx context.Context, workerID int64) ([]model.JobInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return nil, f.assignErr
	}
	if len(f.backlog) == 0 {
		return []model.JobInfo{}, nil
	}
	job := f.backlog[0]
	f.backlog = f.backlog[1:]
	return []model.JobInfo{job}, nil
}

func (f *fakeAPI) ReportResult(ctx context.Context, workerID int64, result *model.JobResultRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reportErr != nil {
		return f.reportErr
	}
	f.reports = append(f.reports, result)
	return nil
}

func (f *fakeAPI) addJob(job model.JobInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backlog = append(f.backlog, job)
}

func (f *fakeAPI) reportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

// fakeEngine answers each submitted job with a result, crashing on jobs listed in crashOn
type fakeEngine struct {
	mu          sync.Mutex
	state       supervisor.State
	healthy     bool
	pending     []model.JobInfo
	crashOn     map[int64]int // job id -> crashes left
	starts      int
	restarts    int
	failures    int
	maxFailures int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{crashOn: map[int64]int{}, maxFailures: 3}
}

func (e *fakeEngine) State() supervisor.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *fakeEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts++
	e.state = supervisor.StateRunning
	e.healthy = true
	return nil
}

func (e *fakeEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = supervisor.StateStopped
	e.healthy = false
	e.pending = nil
	return nil
}

func (e *fakeEngine) Restart(ctx context.Context, reason string) error {
	e.mu.Lock()
	e.restarts++
	e.failures++
	failures := e.failures
	e.mu.Unlock()

	_ = e.Stop(ctx)
	if failures > e.maxFailures {
		return fmt.Errorf("%w: %s", supervisor.ErrTooManyFailures, reason)
	}
	return e.Start(ctx)
}

func (e *fakeEngine) Submit(ctx context.Context, job model.JobInfo) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != supervisor.StateRunning {
		return supervisor.ErrNotRunning
	}
	e.pending = append(e.pending, job)
	return nil
}

func (e *fakeEngine) Next(ctx context.Context, timeout time.Duration) (*supervisor.Message, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.healthy {
		return nil, supervisor.ErrExited
	}
	if len(e.pending) == 0 {
		return nil, nil
	}
	job := e.pending[0]
	e.pending = e.pending[1:]
	if e.crashOn[job.ID] > 0 {
		e.crashOn[job.ID]--
		e.healthy = false
		return &supervisor.Message{Kind: supervisor.KindShutdown, Error: "native crash"}, nil
	}
	return &supervisor.Message{Kind: supervisor.KindResult, Result: &model.JobResultRequest{
		JobID:               job.ID,
		DatasetLevelMetrics: []model.DatasetMetric{{Name: job.Metric, Score: 1}},
	}}, nil
}

func (e *fakeEngine) Healthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

func (e *fakeEngine) ResetFailures() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = 0
}

func testConfig(mode Mode) Config {
	return Config{
		Metric:            "bleu",
		Username:          "alice",
		Mode:              mode,
		HeartbeatInterval: 10 * time.Millisecond,
		PollInterval:      5 * time.Millisecond,
		ResultTimeout:     5 * time.Millisecond,
	}
}

func job(id int64) model.JobInfo {
	return model.JobInfo{ID: id, RunID: id * 10, Metric: "bleu"}
}

func TestRun_OneShotDrainsBacklog(t *testing.T) {
	api := &fakeAPI{backlog: []model.JobInfo{job(1), job(2)}}
	engine := newFakeEngine()

	r := New(testConfig(ModeOneShot), api, engine)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, int64(42), r.WorkerID())
	require.NotNil(t, api.registered)
	assert.Equal(t, "bleu", api.registered.Metric)
	assert.Equal(t, "alice", *api.registered.Username)
	require.Len(t, api.reports, 2)
	assert.Equal(t, int64(1), api.reports[0].JobID)
	assert.Equal(t, int64(2), api.reports[1].JobID)
	assert.Equal(t, 1, engine.starts)
	assert.Equal(t, supervisor.StateStopped, engine.State())
	assert.True(t, api.unregistered)
	assert.GreaterOrEqual(t, api.heartbeats, 1)
}

func TestRun_OneShotEmptyBacklogNeverStartsSubprocess(t *testing.T) {
	api := &fakeAPI{}
	engine := newFakeEngine()

	require.NoError(t, New(testConfig(ModeOneShot), api, engine).Run(context.Background()))
	assert.Equal(t, 0, engine.starts)
	assert.True(t, api.unregistered)
}

func TestRun_PersistentPollsUntilCanceled(t *testing.T) {
	api := &fakeAPI{}
	engine := newFakeEngine()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- New(testConfig(ModePersistent), api, engine).Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	api.addJob(job(7))
	assert.Eventually(t, func() bool { return api.reportCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
	assert.True(t, api.unregistered)
}

func TestRun_HeartbeatFailureIsFatal(t *testing.T) {
	api := &fakeAPI{heartbeatErr: errors.New("connection refused")}

	err := New(testConfig(ModePersistent), api, newFakeEngine()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat failed")
	assert.True(t, api.unregistered)
}

func TestRun_RestartsAndResubmitsAfterCrash(t *testing.T) {
	api := &fakeAPI{backlog: []model.JobInfo{job(1)}}
	engine := newFakeEngine()
	engine.crashOn[1] = 2

	require.NoError(t, New(testConfig(ModeOneShot), api, engine).Run(context.Background()))
	require.Len(t, api.reports, 1)
	assert.Equal(t, int64(1), api.reports[0].JobID)
	assert.Equal(t, 2, engine.restarts)
	assert.Equal(t, 0, engine.failures, "a successful result resets the failure count")
}

func TestRun_TooManyFailures(t *testing.T) {
	api := &fakeAPI{backlog: []model.JobInfo{job(1)}}
	engine := newFakeEngine()
	engine.crashOn[1] = 100

	err := New(testConfig(ModePersistent), api, engine).Run(context.Background())
	assert.ErrorIs(t, err, supervisor.ErrTooManyFailures)
	assert.Empty(t, api.reports)
	assert.True(t, api.unregistered)
}

func TestRun_RejectedResultIsDropped(t *testing.T) {
	api := &fakeAPI{backlog: []model.JobInfo{job(1), job(2)}, reportErr: fmt.Errorf("wrapped: %w", model.ErrOwnershipConflict)}

	require.NoError(t, New(testConfig(ModeOneShot), api, newFakeEngine()).Run(context.Background()))
	assert.Empty(t, api.backlog, "the runner keeps leasing after a rejected report")
}

func TestRun_ReportFailureIsFatal(t *testing.T) {
	api := &fakeAPI{backlog: []model.JobInfo{job(1)}, reportErr: errors.New("503 after retries")}

	err := New(testConfig(ModeOneShot), api, newFakeEngine()).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job 1")
}

func TestRun_InactiveWorkerStops(t *testing.T) {
	api := &fakeAPI{assignErr: model.ErrWorkerInactive}

	err := New(testConfig(ModePersistent), api, newFakeEngine()).Run(context.Background())
	assert.ErrorIs(t, err, model.ErrWorkerInactive)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("one-shot")
	require.NoError(t, err)
	assert.Equal(t, ModeOneShot, m)

	m, err = ParseMode("persistent")
	require.NoError(t, err)
	assert.Equal(t, ModePersistent, m)

	_, err = ParseMode("forever")
	assert.Error(t, err)
}
