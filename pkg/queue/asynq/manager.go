package asynq

import (
	"context"
	"fmt"
	"time"

	"mteval/pkg/config"
	"mteval/pkg/constants"
	"mteval/pkg/logger"

	"github.com/hibiken/asynq"
)

// Manager queue manager
type Manager struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewManager creates queue manager
func NewManager(redisCfg config.RedisConfig, queueCfg config.QueueConfig) (*Manager, error) {
	if redisCfg.Addr == "" {
		return nil, fmt.Errorf("queue requires redis.addr")
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     redisCfg.Addr,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: queueCfg.Concurrency,
			Queues: map[string]int{
				constants.DefaultQueue: 10,
			},
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Second
			},
			Logger: asynqLogger{},
		},
	)

	return &Manager{
		client: asynq.NewClient(redisOpt),
		server: server,
		mux:    asynq.NewServeMux(),
	}, nil
}

// EnqueueRunCreated publishes a run:created event
func (m *Manager) EnqueueRunCreated(ctx context.Context, runID int64) error {
	task, err := NewRunCreatedTask(runID)
	if err != nil {
		return err
	}
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(5), asynq.Timeout(time.Minute))
	if err != nil {
		return fmt.Errorf("failed to enqueue run:created: %w", err)
	}
	logger.InfoCtx(ctx, "run:created enqueued, run_id: %d, task_id: %s, queue: %s", runID, info.ID, info.Queue)
	return nil
}

// RegisterHandler registers task handler
func (m *Manager) RegisterHandler(pattern string, handler asynq.Handler) {
	m.mux.Handle(pattern, handler)
}

// Start starts queue processor
func (m *Manager) Start() error {
	logger.Infof("starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor
func (m *Manager) Stop() {
	logger.Infof("stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
}

// Close closes client
func (m *Manager) Close() error {
	return m.client.Close()
}

// asynqLogger routes asynq's internal logging through zap
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) { logger.Debugf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...interface{})  { logger.Infof("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...interface{})  { logger.Warnf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...interface{}) { logger.Errorf("asynq: %s", fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...interface{}) { logger.Errorf("asynq fatal: %s", fmt.Sprint(args...)) }
