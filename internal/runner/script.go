package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ScriptExtensions are searched, in order, when looking up gen.* / solve.*.
var ScriptExtensions = []string{".py", ".py3", ".sh", ".out", ".cpp"}

// NeedsCompilation reports scripts that must be compiled before running.
func NeedsCompilation(path string) bool {
	return filepath.Ext(path) == ".cpp"
}

// FindScript returns override when set, else the first <name>.<ext> in dir
// with a known extension.
func FindScript(dir, name, override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("script %s: %w", override, err)
		}
		return override, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, name+".*"))
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	for _, ext := range ScriptExtensions {
		for _, m := range matches {
			if filepath.Ext(m) == ext {
				return m, nil
			}
		}
	}
	return "", fmt.Errorf("cannot find any script named %q in %s", name, dir)
}

// Interpreter returns the argv prefix used to start a script.
func Interpreter(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(path) {
	case ".py", ".py3":
		return []string{"python3", abs}, nil
	case ".sh":
		return []string{"bash", abs}, nil
	case ".out", "":
		return []string{abs}, nil
	default:
		return nil, fmt.Errorf("cannot run unrecognized script %s", path)
	}
}

// Program is an executable with fixed argv prefix, run once per test.
type Program struct {
	Argv    []string
	Dir     string
	Env     []string
	Timeout time.Duration
	Kind    string
}

// NewScript prepares a generator or solution program.
func NewScript(path, kind string, timeout time.Duration) (*Program, error) {
	argv, err := Interpreter(path)
	if err != nil {
		return nil, err
	}
	return &Program{Argv: argv, Timeout: timeout, Kind: kind}, nil
}

// Run executes the program with extra args and stdin bytes.
func (p *Program) Run(ctx context.Context, args []string, stdin []byte) (*Result, error) {
	c := Command{
		Path:    p.Argv[0],
		Args:    append(append([]string{}, p.Argv[1:]...), args...),
		Dir:     p.Dir,
		Env:     p.Env,
		Timeout: p.Timeout,
		Kind:    p.Kind,
	}
	if stdin != nil {
		c.Stdin = bytes.NewReader(stdin)
	}
	return Run(ctx, c)
}
