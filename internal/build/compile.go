package build

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/kokos-tools/kks/internal/runner"
)

// BuildError carries the compiler's exit code. It matches ErrBuildFailed.
type BuildError struct {
	ExitCode int
	Output   []byte
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("%v: compiler exited with code %d", ErrBuildFailed, e.ExitCode)
}

func (e *BuildError) Is(target error) bool { return target == ErrBuildFailed }

// Compile runs the planned invocation in dir. Compiler diagnostics go to
// diag when set and are captured into the BuildError otherwise. It returns
// the path of the built binary.
func Compile(ctx context.Context, inv *Invocation, dir string, diag io.Writer) (string, error) {
	log.Debug().Str("target", inv.Target).Str("cmd", inv.CommandLine()).Msg("compiling")
	res, err := runner.Run(ctx, runner.Command{
		Path:   inv.Compiler,
		Args:   inv.Args(),
		Dir:    dir,
		Stdout: diag,
		Stderr: diag,
		Kind:   "compiler",
	})
	if err != nil {
		return "", fmt.Errorf("compile: %w", err)
	}
	if !res.Success() {
		return "", &BuildError{ExitCode: res.ExitCode, Output: append(res.Stdout, res.Stderr...)}
	}
	out := inv.Output
	if !filepath.IsAbs(out) {
		out = filepath.Join(dir, out)
	}
	return out, nil
}
