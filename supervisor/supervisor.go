// Package supervisor starts the worker pool before the broker loop runs.
//
// Workers are started once and never restarted: a crashed worker is logged
// and its capacity is simply gone. Running workers never hold up the parent's
// exit; Close signals them and waits at most the grace period.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// WorkerID is the transport identity of the n-th supervised worker.
func WorkerID(n int) string { return fmt.Sprintf("Worker-%d", n) }

// ArgsFunc returns the command line arguments for worker n.
type ArgsFunc func(n int) []string

// Entry runs an in-process worker until ctx is done.
type Entry func(ctx context.Context, n int) error

var ErrStarted = errors.New("supervisor: already started")

type Supervisor struct {
	path  string
	args  ArgsFunc
	entry Entry

	env    []string
	stdout io.Writer
	grace  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	procs   []*exec.Cmd
	running atomic.Int32
}

// NewProcess supervises workers that run as child processes of path.
func NewProcess(path string, args ArgsFunc, options ...Option) *Supervisor {
	s := newSupervisor(options)
	s.path, s.args = path, args
	return s
}

// NewInProcess supervises workers that run as goroutines. Crash isolation is
// lost, so this is meant for mem:// backends, tests and embedding.
func NewInProcess(entry Entry, options ...Option) *Supervisor {
	s := newSupervisor(options)
	s.entry = entry
	return s
}

func newSupervisor(options []Option) *Supervisor {
	s := &Supervisor{grace: 2 * time.Second, logger: zap.NewNop()}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Start launches workers 0..n-1. If one fails to start the ones already
// running are stopped and the error is returned.
func (s *Supervisor) Start(ctx context.Context, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrStarted
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < n; i++ {
		var err error
		if s.entry != nil {
			s.goroutine(ctx, i)
		} else {
			err = s.spawn(ctx, i)
		}
		if err != nil {
			s.mu.Unlock()
			_ = s.Close()
			s.mu.Lock()
			return fmt.Errorf("start %s: %w", WorkerID(i), err)
		}
	}
	s.logger.Info("workers started", zap.Int("count", n), zap.Bool("in_process", s.entry != nil))
	return nil
}

// Running reports how many workers have not exited yet.
func (s *Supervisor) Running() int { return int(s.running.Load()) }

// Pids lists the child process ids; empty in in-process mode.
func (s *Supervisor) Pids() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := make([]int, 0, len(s.procs))
	for _, cmd := range s.procs {
		if cmd.Process != nil {
			pids = append(pids, cmd.Process.Pid)
		}
	}
	return pids
}

func (s *Supervisor) goroutine(ctx context.Context, n int) {
	id := WorkerID(n)
	s.running.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)
		err := s.entry(ctx, n)
		switch {
		case ctx.Err() != nil:
			s.logger.Debug("worker exited (shutdown)", zap.String("worker", id))
		case err != nil:
			s.logger.Error("worker exited unexpectedly", zap.String("worker", id), zap.Error(err))
		default:
			s.logger.Info("worker exited", zap.String("worker", id))
		}
	}()
}

func (s *Supervisor) spawn(ctx context.Context, n int) error {
	id := WorkerID(n)
	cmd := exec.CommandContext(ctx, s.path, s.args(n)...)
	cmd.Env = s.env
	cmd.Stdout = s.stdout
	cmd.WaitDelay = s.grace
	cmd.Cancel = func() error { return terminate(cmd.Process) }
	setProcAttr(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	s.procs = append(s.procs, cmd)
	s.running.Add(1)

	logger := s.logger.With(zap.String("worker", id), zap.Int("pid", cmd.Process.Pid))
	logger.Debug("worker process started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)
		relayStderr(stderr, logger)
		waitProcess(ctx, cmd, logger)
	}()
	return nil
}

// relayStderr forwards each line a worker writes to stderr into the parent log.
func relayStderr(r io.Reader, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch lineLevel(line) {
		case "error":
			logger.Error("worker log", zap.String("log", line))
		case "warn":
			logger.Warn("worker log", zap.String("log", line))
		default:
			logger.Info("worker log", zap.String("log", line))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("reading worker stderr", zap.Error(err))
	}
}

func lineLevel(line string) string {
	l := strings.ToLower(line)
	switch {
	case strings.Contains(l, `"level":"error"`), strings.Contains(l, "\terror\t"), strings.Contains(l, "panic"):
		return "error"
	case strings.Contains(l, `"level":"warn"`), strings.Contains(l, "\twarn\t"):
		return "warn"
	}
	return "info"
}

// waitProcess reaps the child and tells a shutdown apart from a crash.
func waitProcess(ctx context.Context, cmd *exec.Cmd, logger *zap.Logger) {
	err := cmd.Wait()
	switch {
	case ctx.Err() != nil:
		logger.Debug("worker process exited (shutdown)", zap.Error(err))
	case err != nil:
		logger.Error("worker process exited unexpectedly", zap.Error(err))
	default:
		logger.Info("worker process exited cleanly")
	}
}

// Close stops every worker and waits up to the grace period for them.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(2 * s.grace):
		s.logger.Warn("workers still running after grace period", zap.Int("running", s.Running()))
		return nil
	}
}
