package batch

import (
	"errors"
	"fmt"
)

var (
	ErrMissingInput     = errors.New("missing input")
	ErrGenerationFailed = errors.New("generation failed")
	ErrRuntimeError     = errors.New("runtime error")
	ErrTimeout          = errors.New("timeout")
	ErrWrongOutput      = errors.New("wrong output")
)

// IndexError attaches a test name to a per-test failure.
type IndexError struct {
	Index int
	Name  string
	Err   error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("test %s: %v", e.Name, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

func indexError(index int, name string, err error) *IndexError {
	return &IndexError{Index: index, Name: name, Err: err}
}
