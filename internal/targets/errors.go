package targets

import (
	"errors"
	"fmt"
)

var (
	ErrConfigParse   = errors.New("cannot parse targets config")
	ErrUnknownTarget = errors.New("unknown target")
)

// ParseError reports a malformed document. It matches ErrConfigParse.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", ErrConfigParse, e.Err)
	}
	return fmt.Sprintf("%v %s: %v", ErrConfigParse, e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrConfigParse }

// UnknownTargetError names a target missing from every layer.
type UnknownTargetError struct {
	Name string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("%v %q", ErrUnknownTarget, e.Name)
}

func (e *UnknownTargetError) Is(target error) bool { return target == ErrUnknownTarget }
