package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"mteval/internal/model"
)

// commandInput is written to the external metric's stdin
type commandInput struct {
	Job    *model.JobInfo `json:"job"`
	Config Options        `json:"config"`
}

// Command runs an external executable once per job: the job as JSON on stdin,
// a result object {dataset_level_metrics, segment_level_metrics} on stdout.
type Command struct {
	Path string
	Args []string
	Opts Options
}

// NewCommand parses a command line such as "python3 score.py --fast"
func NewCommand(commandLine string, opts Options) (*Command, error) {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty metric command")
	}
	return &Command{Path: fields[0], Args: fields[1:], Opts: opts}, nil
}

func (c *Command) Process(ctx context.Context, job *model.JobInfo) (*model.JobResultRequest, error) {
	input, err := json.Marshal(commandInput{Job: job, Config: c.Opts})
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = os.Environ()

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("metric command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var result model.JobResultRequest
	if err := json.Unmarshal(stdout.Bytes(), &result); err != nil {
		return nil, fmt.Errorf("metric command returned invalid JSON: %w", err)
	}
	result.JobID = job.ID
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}
