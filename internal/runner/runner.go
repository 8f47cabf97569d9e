// Package runner executes external programs one at a time: compilers,
// generators, reference solutions and candidate binaries.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kokos-tools/kks/internal/telemetry"
)

// Command describes one blocking process run.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env is appended to the current environment.
	Env []string
	// Stdin is fed to the process. Nil means no input.
	Stdin io.Reader
	// Stdout and Stderr are captured into the Result when nil.
	Stdout io.Writer
	Stderr io.Writer
	// Timeout kills the process group when exceeded. Zero disables it.
	Timeout time.Duration
	// Kind labels telemetry: compiler, generator, solution, candidate.
	Kind string
}

// Result of a finished (or killed) process.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Success reports a zero exit code without timeout.
func (r *Result) Success() bool { return !r.TimedOut && r.ExitCode == 0 }

// Run starts the command and waits for it. A non-zero exit code or a
// timeout is reported in the Result, not as an error. Errors mean the
// process could not be started or the parent context was cancelled.
func Run(ctx context.Context, c Command) (*Result, error) {
	if c.Path == "" {
		return nil, errors.New("runner: empty command path")
	}
	runCtx := ctx
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	}
	cmd.Stderr = &stderr
	if c.Stderr != nil {
		cmd.Stderr = c.Stderr
	}
	setProcessGroup(cmd)

	labels := map[string]string{"kind": c.Kind}
	start := time.Now()
	if err := cmd.Start(); err != nil {
		telemetry.CounterGlobal("kks_process_start_errors", 1, labels)
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	res := &Result{}
	var err error
	select {
	case <-runCtx.Done():
		killProcessGroup(cmd)
		<-done
		if ctx.Err() != nil {
			return nil, fmt.Errorf("run %s: %w", c.Path, ctx.Err())
		}
		res.TimedOut = true
		res.ExitCode = -1
	case err = <-done:
	}
	res.Duration = time.Since(start)
	res.Stdout = stdout.Bytes()
	res.Stderr = stderr.Bytes()

	if err != nil && !res.TimedOut {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("wait %s: %w", c.Path, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	telemetry.CounterGlobal("kks_process_runs", 1, labels)
	telemetry.TimerGlobal("kks_process_duration", res.Duration, labels)
	log.Trace().
		Str("kind", c.Kind).
		Str("cmd", c.Path).
		Strs("args", c.Args).
		Int("exit_code", res.ExitCode).
		Bool("timed_out", res.TimedOut).
		Dur("duration", res.Duration).
		Msg("process finished")
	return res, nil
}
