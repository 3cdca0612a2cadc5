package jobs

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"mteval/pkg/lock"
	"mteval/pkg/logger"
)

// Job represents a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Manager orchestrates the lifecycle of background jobs.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []Job
	started bool

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to the provided context.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make([]Job, 0),
	}
}

// Register adds a job to the manager.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// Start launches all registered jobs. Each job runs once immediately, then on its interval.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.runJob(job)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runJob(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	m.executeJob(job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.executeJob(job)
		}
	}
}

func (m *Manager) executeJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(m.ctx, "background job %s panicked: %v\n%s", job.Name(), r, debug.Stack())
		}
	}()

	if m.ctx.Err() != nil {
		return
	}
	start := time.Now()
	if err := job.Run(m.ctx); err != nil {
		logger.WarnCtx(m.ctx, "background job %s failed after %v: %v", job.Name(), time.Since(start), err)
		return
	}
	logger.DebugCtx(m.ctx, "background job %s finished in %v", job.Name(), time.Since(start))
}

// exclusiveJob runs the wrapped job only on the replica holding the lock
type exclusiveJob struct {
	Job
	lock lock.DistributedLock
}

// Exclusive wraps job so that each run first takes l; runs are skipped while another instance holds it.
func Exclusive(job Job, l lock.DistributedLock) Job {
	return &exclusiveJob{Job: job, lock: l}
}

func (j *exclusiveJob) Run(ctx context.Context) error {
	ran, err := lock.RunExclusive(ctx, j.lock, j.Job.Run)
	if err != nil {
		return fmt.Errorf("%s: %w", j.Name(), err)
	}
	if !ran {
		logger.DebugCtx(ctx, "another instance is running %s, skipping this cycle", j.Name())
	}
	return nil
}
