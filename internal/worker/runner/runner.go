// Package runner drives a registered worker: a heartbeat task and a main loop that
// leases jobs, hands them to the metric subprocess and reports the results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mteval/internal/model"
	"mteval/internal/worker/supervisor"
	"mteval/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Mode run mode
type Mode string

const (
	ModePersistent Mode = "persistent" // poll for new jobs indefinitely
	ModeOneShot    Mode = "one-shot"   // exit once the backlog is empty
)

// ParseMode validates a mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePersistent, ModeOneShot:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q, expected %s or %s", s, ModePersistent, ModeOneShot)
	}
}

// API the scheduler calls a worker makes
type API interface {
	Register(ctx context.Context, req *model.RegisterRequest) (*model.RegisterResponse, error)
	Heartbeat(ctx context.Context, workerID int64) error
	Unregister(ctx context.Context, workerID int64) error
	Assign(ctx context.Context, workerID int64) ([]model.JobInfo, error)
	ReportResult(ctx context.Context, workerID int64, result *model.JobResultRequest) error
}

// Engine the supervised metric subprocess
type Engine interface {
	State() supervisor.State
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context, reason string) error
	Submit(ctx context.Context, job model.JobInfo) error
	Next(ctx context.Context, timeout time.Duration) (*supervisor.Message, error)
	Healthy() bool
	ResetFailures()
}

// Config runner configuration
type Config struct {
	Metric             string
	RequiresReferences bool
	Username           string
	Queue              string
	Mode               Mode
	HeartbeatInterval  time.Duration
	PollInterval       time.Duration
	ResultTimeout      time.Duration // how long one wait on the result queue blocks
	ShutdownTimeout    time.Duration // budget for stopping the subprocess and unregistering
}

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultPollInterval      = 5 * time.Second
	defaultResultTimeout     = time.Second
	defaultShutdownTimeout   = 15 * time.Second
)

// Runner runs one worker registration to completion
type Runner struct {
	cfg      Config
	api      API
	engine   Engine
	workerID int64
}

// New creates a runner
func New(cfg Config, api API, engine Engine) *Runner {
	if cfg.Mode == "" {
		cfg.Mode = ModePersistent
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = defaultResultTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Runner{cfg: cfg, api: api, engine: engine}
}

// WorkerID returns the id assigned at registration
func (r *Runner) WorkerID() int64 {
	return r.workerID
}

// Run registers the worker and runs until the backlog is drained (one-shot), ctx is
// canceled, or a recovery budget is exhausted. Only the last case returns an error.
func (r *Runner) Run(ctx context.Context) error {
	req := &model.RegisterRequest{
		Metric:                   r.cfg.Metric,
		MetricRequiresReferences: r.cfg.RequiresReferences,
		Queue:                    r.cfg.Queue,
	}
	if r.cfg.Username != "" {
		req.Username = &r.cfg.Username
	}
	reg, err := r.api.Register(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}
	r.workerID = reg.WorkerID
	ctx = logger.WithTraceID(ctx, fmt.Sprintf("worker-%d", reg.WorkerID))
	logger.InfoCtx(ctx, "registered worker %d for metric %s (%s mode), %d jobs created",
		reg.WorkerID, r.cfg.Metric, r.cfg.Mode, reg.NumJobs)
	defer r.shutdown(ctx)

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})
	g.Go(func() error {
		return r.heartbeatLoop(gctx, loopDone)
	})
	g.Go(func() error {
		defer close(loopDone)
		return r.mainLoop(gctx)
	})
	return g.Wait()
}

func (r *Runner) shutdown(ctx context.Context) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ShutdownTimeout)
	defer cancel()

	if err := r.engine.Stop(stopCtx); err != nil {
		logger.WarnCtx(stopCtx, "failed to stop subprocess: %v", err)
	}
	if err := r.api.Unregister(stopCtx, r.workerID); err != nil {
		logger.WarnCtx(stopCtx, "failed to unregister worker %d: %v", r.workerID, err)
		return
	}
	logger.InfoCtx(stopCtx, "worker %d unregistered", r.workerID)
}

// heartbeatLoop sends a heartbeat immediately and then every interval. A failed
// heartbeat (after the client's retries) ends the run.
func (r *Runner) heartbeatLoop(ctx context.Context, done <-chan struct{}) error {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		if err := r.api.Heartbeat(ctx, r.workerID); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("heartbeat failed: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) mainLoop(ctx context.Context) error {
	var current *model.JobInfo

	for ctx.Err() == nil {
		if current == nil {
			jobs, err := r.api.Assign(ctx, r.workerID)
			switch {
			case err != nil && ctx.Err() != nil:
				return nil
			case errors.Is(err, model.ErrWorkerInactive), errors.Is(err, model.ErrNotFound):
				return fmt.Errorf("worker %d can no longer lease jobs: %w", r.workerID, err)
			case err != nil:
				logger.WarnCtx(ctx, "assign failed, retrying next poll: %v", err)
				sleep(ctx, r.cfg.PollInterval)
				continue
			case len(jobs) == 0:
				if r.cfg.Mode == ModeOneShot {
					logger.InfoCtx(ctx, "backlog empty, stopping")
					return nil
				}
				sleep(ctx, r.cfg.PollInterval)
				continue
			}

			current = &jobs[0]
			logger.InfoCtx(ctx, "leased job %d, run %d", current.ID, current.RunID)
			if err := r.dispatch(ctx, current); err != nil {
				return err
			}
			continue
		}

		msg, err := r.engine.Next(ctx, r.cfg.ResultTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := r.restartAndResubmit(ctx, current, err.Error()); err != nil {
				return err
			}
			continue
		}
		if msg == nil {
			if !r.engine.Healthy() {
				if err := r.restartAndResubmit(ctx, current, "subprocess unhealthy"); err != nil {
					return err
				}
			}
			continue
		}

		switch msg.Kind {
		case supervisor.KindShutdown:
			if err := r.restartAndResubmit(ctx, current, "unexpected shutdown: "+msg.Error); err != nil {
				return err
			}
		case supervisor.KindResult:
			if msg.Result == nil || msg.Result.JobID != current.ID {
				logger.WarnCtx(ctx, "ignoring stale result while waiting for job %d", current.ID)
				continue
			}
			if err := r.report(ctx, msg.Result); err != nil {
				return err
			}
			r.engine.ResetFailures()
			current = nil
		default:
			logger.WarnCtx(ctx, "ignoring subprocess message of kind %q", msg.Kind)
		}
	}
	return nil
}

// dispatch starts the subprocess on first use and submits job
func (r *Runner) dispatch(ctx context.Context, job *model.JobInfo) error {
	if r.engine.State() == supervisor.StateStopped {
		if err := r.engine.Start(ctx); err != nil {
			return err
		}
	}
	if err := r.engine.Submit(ctx, *job); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return r.restartAndResubmit(ctx, job, "submit failed: "+err.Error())
	}
	return nil
}

// restartAndResubmit restarts the subprocess and resubmits the held job; the lease stays valid
// while heartbeats continue. Restart bounds the attempts.
func (r *Runner) restartAndResubmit(ctx context.Context, job *model.JobInfo, reason string) error {
	for {
		if err := r.engine.Restart(ctx, reason); err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		err := r.engine.Submit(ctx, *job)
		if err == nil {
			logger.InfoCtx(ctx, "resubmitted job %d after restart", job.ID)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		reason = "resubmit failed: " + err.Error()
	}
}

func (r *Runner) report(ctx context.Context, result *model.JobResultRequest) error {
	err := r.api.ReportResult(ctx, r.workerID, result)
	switch {
	case err == nil:
		logger.InfoCtx(ctx, "reported job %d, %d metric rows", result.JobID, result.RowCount())
		return nil
	case errors.Is(err, model.ErrOwnershipConflict), errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrInvalidRequest):
		logger.WarnCtx(ctx, "result for job %d rejected, dropping it: %v", result.JobID, err)
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		return fmt.Errorf("failed to report result of job %d: %w", result.JobID, err)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
