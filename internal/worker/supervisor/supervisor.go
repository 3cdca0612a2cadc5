// Package supervisor owns the metric subprocess: it launches it, feeds it work over an
// inbound queue, collects results from an outbound queue and restarts it on failure.
package supervisor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"mteval/internal/model"
	"mteval/pkg/logger"
)

// State subprocess lifecycle state
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	ErrNotRunning      = errors.New("subprocess not running")
	ErrExited          = errors.New("subprocess exited")
	ErrTooManyFailures = errors.New("subprocess failed too many times in a row")
)

const (
	defaultStopTimeout = 10 * time.Second
	defaultMaxFailures = 3
	defaultQueueSize   = 16
	maxMessageSize     = 64 << 20
)

// Config subprocess configuration
type Config struct {
	Path        string
	Args        []string
	Env         []string      // nil inherits the parent environment
	StopTimeout time.Duration // total budget: half graceful, a quarter after SIGTERM, a quarter after kill
	MaxFailures int           // consecutive restarts allowed before giving up
	QueueSize   int
	Stderr      io.Writer // subprocess logs, defaults to the parent's stderr
}

// Supervisor manages one subprocess at a time
type Supervisor struct {
	cfg Config

	mu       sync.Mutex
	state    State
	proc     *process
	failures int
}

// process one launched generation of the subprocess and its queues
type process struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	inbound  chan Message
	outbound chan Message
	done     chan struct{} // closed once the process has exited and stdout is drained
	discard  chan struct{} // closed when the supervisor abandons this generation
	waitErr  error
}

// New creates a supervisor; the subprocess is not started until Start
func New(cfg Config) *Supervisor {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &Supervisor{cfg: cfg}
}

// State returns the lifecycle state
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failures returns the consecutive failure count
func (s *Supervisor) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// ResetFailures clears the consecutive failure count after a successful result
func (s *Supervisor) ResetFailures() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = 0
}

// Healthy reports whether the subprocess is alive
func (s *Supervisor) Healthy() bool {
	p := s.current()
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (s *Supervisor) current() *process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// Start launches the subprocess: STOPPED -> STARTING -> RUNNING
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return fmt.Errorf("cannot start subprocess in state %s", s.state)
	}

	s.state = StateStarting
	p, err := s.launch()
	if err != nil {
		s.state = StateStopped
		return fmt.Errorf("failed to start subprocess: %w", err)
	}
	s.proc = p
	s.state = StateRunning
	logger.InfoCtx(ctx, "subprocess started, pid: %d", p.cmd.Process.Pid)
	return nil
}

func (s *Supervisor) launch() (*process, error) {
	cmd := exec.Command(s.cfg.Path, s.cfg.Args...)
	cmd.Env = s.cfg.Env
	cmd.Stderr = s.cfg.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{
		cmd:      cmd,
		stdin:    stdin,
		inbound:  make(chan Message, s.cfg.QueueSize),
		outbound: make(chan Message, s.cfg.QueueSize),
		done:     make(chan struct{}),
		discard:  make(chan struct{}),
	}
	go p.writeLoop()
	go p.readLoop(stdout)
	return p, nil
}

func (p *process) writeLoop() {
	enc := json.NewEncoder(p.stdin)
	for {
		select {
		case msg := <-p.inbound:
			if err := enc.Encode(msg); err != nil {
				logger.Warnf("failed to write to subprocess: %v", err)
				return
			}
			if msg.Kind == KindShutdown {
				_ = p.stdin.Close()
				return
			}
		case <-p.done:
			return
		case <-p.discard:
			return
		}
	}
}

func (p *process) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			logger.Warnf("discarding malformed subprocess output: %v", err)
			continue
		}
		select {
		case p.outbound <- msg:
		case <-p.discard:
		}
	}
	close(p.outbound)
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

// wait drains the outbound queue until the process exits or d elapses
func (p *process) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	outbound := p.outbound
	for {
		select {
		case <-p.done:
			return true
		case msg, ok := <-outbound:
			if !ok {
				outbound = nil
				continue
			}
			if msg.Kind == KindShutdown {
				logger.DebugCtx(ctx, "subprocess acknowledged shutdown")
			} else {
				logger.WarnCtx(ctx, "dropping %s message received during shutdown", msg.Kind)
			}
		case <-timer.C:
			return false
		}
	}
}

// Submit pushes a job onto the inbound queue
func (s *Supervisor) Submit(ctx context.Context, job model.JobInfo) error {
	p := s.current()
	if p == nil {
		return ErrNotRunning
	}
	select {
	case p.inbound <- Work(job):
		return nil
	case <-p.done:
		return ErrExited
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next waits up to timeout for a message on the outbound queue. It returns nil, nil
// on timeout and ErrExited once the subprocess is gone and its output drained.
func (s *Supervisor) Next(ctx context.Context, timeout time.Duration) (*Message, error) {
	p := s.current()
	if p == nil {
		return nil, ErrNotRunning
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-p.outbound:
		if !ok {
			return nil, ErrExited
		}
		return &msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts the subprocess down: poison pill and half the stop budget to exit,
// then SIGTERM and a quarter, then kill and a quarter. Both queues are discarded.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	p := s.proc
	if p == nil {
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	err := s.terminate(ctx, p)

	s.mu.Lock()
	s.proc = nil
	s.state = StateStopped
	s.mu.Unlock()
	return err
}

func (s *Supervisor) terminate(ctx context.Context, p *process) error {
	defer close(p.discard)

	graceful := s.cfg.StopTimeout / 2
	escalate := s.cfg.StopTimeout / 4
	pid := p.cmd.Process.Pid

	select {
	case p.inbound <- Shutdown():
	default:
		logger.WarnCtx(ctx, "inbound queue full, cannot send shutdown to subprocess %d", pid)
	}
	if p.wait(ctx, graceful) {
		logger.InfoCtx(ctx, "subprocess %d stopped, exit: %v", pid, exitStatus(p.waitErr))
		return nil
	}

	logger.WarnCtx(ctx, "subprocess %d did not stop within %v, sending SIGTERM", pid, graceful)
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	if p.wait(ctx, escalate) {
		return nil
	}

	logger.WarnCtx(ctx, "subprocess %d ignored SIGTERM, killing", pid)
	_ = p.cmd.Process.Kill()
	if p.wait(ctx, escalate) {
		return nil
	}
	return fmt.Errorf("subprocess %d did not exit after kill", pid)
}

// Restart stops and relaunches the subprocess, counting a consecutive failure.
// Once the count exceeds MaxFailures the subprocess stays stopped and
// ErrTooManyFailures is returned.
func (s *Supervisor) Restart(ctx context.Context, reason string) error {
	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	if err := s.Stop(ctx); err != nil {
		logger.WarnCtx(ctx, "failed to stop subprocess before restart: %v", err)
	}
	if failures > s.cfg.MaxFailures {
		return fmt.Errorf("%w: %d consecutive failures, last: %s", ErrTooManyFailures, failures, reason)
	}

	logger.WarnCtx(ctx, "restarting subprocess (%s), consecutive failures: %d/%d", reason, failures, s.cfg.MaxFailures)
	return s.Start(ctx)
}

func exitStatus(err error) string {
	if err == nil {
		return "ok"
	}
	return err.Error()
}
