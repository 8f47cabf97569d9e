package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MarkerFile marks the root directory of a workspace.
	MarkerFile = ".kks-workspace"
	// HiddenDir holds contests moved out of the workspace root.
	HiddenDir = ".kks-contests"
	// DefaultTaskName is used outside of any task directory.
	DefaultTaskName = "sm00-0"
)

// ErrNoWorkspace is returned when no marker is found above a directory.
var ErrNoWorkspace = errors.New("not inside a kks workspace")

// Find walks up from dir looking for MarkerFile.
func Find(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve dir: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(abs, MarkerFile)); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", ErrNoWorkspace
		}
		abs = parent
	}
}

// Task describes the contest problem a directory belongs to.
type Task struct {
	// Root is the task directory (<root>/<contest>/<task>), empty when unknown.
	Root    string
	Contest string
	Number  string
}

// Name returns "<contest>-<task>" or DefaultTaskName.
func (t Task) Name() string {
	if t.Contest == "" || t.Number == "" {
		return DefaultTaskName
	}
	return t.Contest + "-" + t.Number
}

// TaskOf derives the task that cwd belongs to. Directories below the hidden
// contests dir are resolved against it instead of the workspace root.
func TaskOf(workspaceRoot, cwd string) Task {
	if workspaceRoot == "" {
		return Task{}
	}
	base := workspaceRoot
	hidden := filepath.Join(workspaceRoot, HiddenDir)
	if within(hidden, cwd) {
		base = hidden
	}
	rel, err := filepath.Rel(base, cwd)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Task{}
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 2 {
		return Task{}
	}
	return Task{
		Root:    filepath.Join(base, parts[0], parts[1]),
		Contest: parts[0],
		Number:  parts[1],
	}
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Init creates the workspace marker and the hidden contests dir in dir.
// It reports whether the marker already existed.
func Init(dir string) (existed bool, err error) {
	marker := filepath.Join(dir, MarkerFile)
	st, err := os.Stat(marker)
	switch {
	case err == nil && st.IsDir():
		return true, fmt.Errorf("workspace marker %s is a directory", marker)
	case err == nil:
		existed = true
	case os.IsNotExist(err):
		if err := os.WriteFile(marker, []byte("This file is used to find kks workspace.\n"), 0o644); err != nil {
			return false, fmt.Errorf("write marker: %w", err)
		}
	default:
		return false, fmt.Errorf("stat marker: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, HiddenDir), 0o755); err != nil {
		return existed, fmt.Errorf("create hidden dir: %w", err)
	}
	return existed, nil
}
