package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mteval/internal/model"
	"mteval/pkg/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeRunCreated = "run:created"
)

// RunCreatedPayload body of a run:created task
type RunCreatedPayload struct {
	RunID int64 `json:"run_id"`
}

// RunJobGenerator creates the jobs a new run needs
type RunJobGenerator interface {
	GenerateForRun(ctx context.Context, runID int64) (int, error)
}

// NewRunCreatedTask builds a run:created task
func NewRunCreatedTask(runID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(RunCreatedPayload{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run:created payload: %w", err)
	}
	return asynq.NewTask(TypeRunCreated, payload), nil
}

// NewRunCreatedHandler returns the consumer of run:created tasks.
// Malformed payloads and unknown runs are not retried.
func NewRunCreatedHandler(gen RunJobGenerator) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload RunCreatedPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid run:created payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.RunID <= 0 {
			return fmt.Errorf("invalid run id %d: %w", payload.RunID, asynq.SkipRetry)
		}

		created, err := gen.GenerateForRun(ctx, payload.RunID)
		if errors.Is(err, model.ErrNotFound) {
			logger.WarnCtx(ctx, "run:created for unknown run %d, dropping", payload.RunID)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		if err != nil {
			return err
		}
		logger.InfoCtx(ctx, "run:created handled, run_id: %d, new_jobs: %d", payload.RunID, created)
		return nil
	}
}
