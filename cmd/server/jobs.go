package main

import (
	"context"
	"fmt"
	"time"

	"mteval/internal/jobs"
	"mteval/internal/service"
	"mteval/pkg/lock"
)

const reaperLockKey = "scheduler:reaper-lock"

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	// Only one replica sweeps per cycle; without Redis the lock degrades to single-instance mode
	reaperLock := lock.NewRedisLock(app.redisClient.GetClient(), reaperLockKey, 0)
	manager.Register(jobs.Exclusive(newReaperJob(app.config.Scheduler.ReaperInterval(), app.reaper), reaperLock))

	app.jobsManager = manager
	return nil
}

// reaperJob reclaims jobs from workers whose heartbeat expired.
type reaperJob struct {
	interval time.Duration
	reaper   *service.Reaper
}

func newReaperJob(interval time.Duration, reaper *service.Reaper) jobs.Job {
	return &reaperJob{
		interval: interval,
		reaper:   reaper,
	}
}

func (j *reaperJob) Name() string {
	return "worker-reaper"
}

func (j *reaperJob) Interval() time.Duration {
	return j.interval
}

func (j *reaperJob) Run(ctx context.Context) error {
	if j.reaper == nil {
		return fmt.Errorf("reaper not configured")
	}

	_, err := j.reaper.Sweep(ctx)
	return err
}
