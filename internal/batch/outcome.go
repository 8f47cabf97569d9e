package batch

import (
	"context"
	"time"

	"github.com/kokos-tools/kks/internal/build"
	"github.com/kokos-tools/kks/internal/runner"
)

// Program is an external collaborator run once per test: a generator, a
// reference solution or the candidate binary. *runner.Program implements it.
type Program interface {
	Run(ctx context.Context, args []string, stdin []byte) (*runner.Result, error)
}

// Status classifies one test execution.
type Status string

const (
	StatusOK           Status = "ok"
	StatusWrongOutput  Status = "wrong-output"
	StatusRuntimeError Status = "runtime-error"
	StatusTimeout      Status = "timeout"
	StatusBuildError   Status = "build-error"
)

// Short is the two-letter verdict printed by the reporter.
func (s Status) Short() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWrongOutput:
		return "WA"
	case StatusRuntimeError:
		return "RE"
	case StatusTimeout:
		return "TL"
	case StatusBuildError:
		return "CE"
	}
	return "??"
}

// Outcome is the result of running the candidate on one test. It is handed
// to the reporter and dropped.
type Outcome struct {
	Name     string
	Index    int
	Status   Status
	ExitCode int
	Input    []byte
	Expected []byte
	Stdout   []byte
	Stderr   []byte
	Diff     string
	Duration time.Duration
}

// Err maps a failed outcome to its error, nil for ok.
func (o *Outcome) Err() error {
	var err error
	switch o.Status {
	case StatusOK:
		return nil
	case StatusWrongOutput:
		err = ErrWrongOutput
	case StatusRuntimeError:
		err = ErrRuntimeError
	case StatusTimeout:
		err = ErrTimeout
	default:
		return indexError(o.Index, o.Name, build.ErrBuildFailed)
	}
	return indexError(o.Index, o.Name, err)
}

// Classify turns a finished candidate run into an outcome. Timeouts win over
// exit codes, exit codes win over output comparison.
func Classify(name string, index int, res *runner.Result, expected []byte, ignoreExitCode bool) *Outcome {
	o := &Outcome{
		Name:     name,
		Index:    index,
		ExitCode: res.ExitCode,
		Expected: expected,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		Duration: res.Duration,
	}
	switch {
	case res.TimedOut:
		o.Status = StatusTimeout
	case res.ExitCode != 0 && !ignoreExitCode:
		o.Status = StatusRuntimeError
	case !Equal(expected, res.Stdout):
		o.Status = StatusWrongOutput
		o.Diff = Diff(expected, res.Stdout)
	default:
		o.Status = StatusOK
	}
	return o
}
