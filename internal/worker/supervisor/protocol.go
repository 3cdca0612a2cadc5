package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"mteval/internal/model"
	"mteval/internal/worker/processor"
	"mteval/pkg/logger"
)

// Kind tags a protocol message
type Kind string

const (
	KindWork     Kind = "work"
	KindResult   Kind = "result"
	KindShutdown Kind = "shutdown" // poison pill inbound, acknowledgement or crash notice outbound
)

// Message one NDJSON line exchanged with the subprocess
type Message struct {
	Kind   Kind                    `json:"kind"`
	Job    *model.JobInfo          `json:"job,omitempty"`
	Result *model.JobResultRequest `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"` // set on a shutdown sent because processing failed
}

// Work wraps a job for the inbound queue
func Work(job model.JobInfo) Message {
	return Message{Kind: KindWork, Job: &job}
}

// Shutdown the poison pill
func Shutdown() Message {
	return Message{Kind: KindShutdown}
}

// Serve is the subprocess side: it reads work from r and writes results to w until
// it receives the poison pill or r is closed. A processing failure is reported as a
// shutdown message carrying the error, after which Serve returns the error.
func Serve(ctx context.Context, r io.Reader, w io.Writer, p processor.Processor) error {
	dec := json.NewDecoder(r)
	enc := json.NewEncoder(w)

	for {
		var msg Message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read work: %w", err)
		}

		switch msg.Kind {
		case KindShutdown:
			logger.DebugCtx(ctx, "received shutdown, exiting")
			return enc.Encode(Shutdown())
		case KindWork:
			if msg.Job == nil {
				logger.WarnCtx(ctx, "ignoring work message without a job")
				continue
			}
			result, err := processJob(ctx, p, msg.Job)
			if err != nil {
				_ = enc.Encode(Message{Kind: KindShutdown, Error: err.Error()})
				return fmt.Errorf("job %d: %w", msg.Job.ID, err)
			}
			if err := enc.Encode(Message{Kind: KindResult, Result: result}); err != nil {
				return fmt.Errorf("failed to write result: %w", err)
			}
		default:
			logger.WarnCtx(ctx, "ignoring message of kind %q", msg.Kind)
		}
	}
}

func processJob(ctx context.Context, p processor.Processor, job *model.JobInfo) (result *model.JobResultRequest, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	logger.InfoCtx(ctx, "computing job %d, run %d, %d segments", job.ID, job.RunID, len(job.Segments))
	result, err = p.Process(ctx, job)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, errors.New("processor returned no result")
	}
	result.JobID = job.ID
	return result, nil
}
