package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokos-tools/kks/internal/targets"
	"github.com/kokos-tools/kks/internal/workspace"
)

// isolate points the user config at a temp dir and moves into dir for the
// duration of the test.
func isolate(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("KKS_SSH_PASSWORD", "")
	t.Setenv("KKS_RUN_TIMEOUT", "")
	chdir(t, dir)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func kks(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), mode))
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
}

// newTask creates a workspace with an sm01/1 task dir and enters it.
func newTask(t *testing.T) (root, task string) {
	t.Helper()
	root = t.TempDir()
	isolate(t, root)
	_, err := kks(t, "init")
	require.NoError(t, err)
	task = filepath.Join(root, "sm01", "1")
	require.NoError(t, os.MkdirAll(task, 0o755))
	chdir(t, task)
	return root, task
}

func TestVersion(t *testing.T) {
	out, err := kks(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "kks "+version))
}

func TestInitWorkspace(t *testing.T) {
	dir := t.TempDir()
	isolate(t, dir)

	out, err := kks(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized workspace")
	assert.FileExists(t, filepath.Join(dir, workspace.MarkerFile))

	sub := filepath.Join(dir, "sm01")
	require.NoError(t, os.Mkdir(sub, 0o755))
	chdir(t, sub)
	out, err = kks(t, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Found workspace in directory")
	assert.NoFileExists(t, filepath.Join(sub, workspace.MarkerFile))

	_, err = kks(t, "init", "--force")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(sub, workspace.MarkerFile))
}

func TestInitConfigModes(t *testing.T) {
	root, task := newTask(t)

	_, err := kks(t, "init", "--config")
	require.NoError(t, err)
	local, err := os.ReadFile(filepath.Join(task, targets.FileName))
	require.NoError(t, err)
	assert.Equal(t, string(targets.BuiltinYAML()), string(local))

	_, err = kks(t, "init", "--config")
	assert.Error(t, err, "existing file is not overwritten without --force")

	_, err = kks(t, "init", "--config=update")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(task, targets.FileName+".default"))

	_, err = kks(t, "init", "--config=global")
	require.NoError(t, err)
	global, err := os.ReadFile(filepath.Join(root, targets.FileName))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(global), globalHeader))

	_, err = kks(t, "init", "--config=bogus")
	assert.Error(t, err)
}

func TestTargetCommand(t *testing.T) {
	root, task := newTask(t)
	writeFile(t, filepath.Join(root, targets.FileName), "__version__: 7\ndefault: {}\nfast:\n  flags: [DEFAULT, -O3]\n", 0o644)
	writeFile(t, filepath.Join(task, "sm01-1.c"), "int main(void) { return 0; }\n", 0o644)

	out, err := kks(t, "target", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "default\tbuiltin")
	assert.Contains(t, out, "fast\tglobal")

	out, err = kks(t, "target", "fast")
	require.NoError(t, err)
	assert.Contains(t, out, "task: sm01-1")
	assert.Contains(t, out, "-O3")
	assert.Contains(t, out, "sm01-1.c -o a.out -lm")

	_, err = kks(t, "target", "missing")
	assert.Error(t, err)
}

func TestGenAndTest(t *testing.T) {
	requireShell(t)
	_, task := newTask(t)

	writeFile(t, filepath.Join(task, "gen.sh"), "echo $1\n", 0o755)
	writeFile(t, filepath.Join(task, "solve.sh"), "read x\necho \"out$x\"\n", 0o755)

	out, err := kks(t, "gen", "-r", "1,3")
	require.NoError(t, err)
	assert.Contains(t, out, "Generated 3 tests!")
	for _, name := range []string{"001", "002", "003"} {
		in, err := os.ReadFile(filepath.Join(task, "tests", name+".in"))
		require.NoError(t, err)
		assert.Equal(t, name+"\n", string(in))
		ans, err := os.ReadFile(filepath.Join(task, "tests", name+".out"))
		require.NoError(t, err)
		assert.Equal(t, "out"+name+"\n", string(ans))
	}

	// The fake compiler writes a candidate that behaves like solve.sh.
	cc := filepath.Join(t.TempDir(), "fakecc")
	writeFile(t, cc, `#!/bin/sh
out=a.out
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then out=$2; shift; fi
  shift
done
printf '#!/bin/sh\nread x\necho "out$x"\n' > "$out"
chmod +x "$out"
`, 0o755)
	writeFile(t, filepath.Join(task, targets.FileName),
		"__version__: 7\ndefault:\n  compiler: "+cc+"\n  files: ['*.c']\n  default_asan: false\n", 0o644)
	writeFile(t, filepath.Join(task, "sm01-1.c"), "int main(void) { return 0; }\n", 0o644)

	out, err = kks(t, "test")
	require.NoError(t, err)
	assert.Contains(t, out, "Tests passed: 3/3")

	writeFile(t, filepath.Join(task, "tests", "002.out"), "wrong\n", 0o644)
	out, err = kks(t, "test", "--continue")
	assert.Error(t, err)
	assert.Contains(t, out, "Tests passed: 2/3")
	assert.Contains(t, out, "Failed: 002")

	out, err = kks(t, "test", "--virtual", "-r", "1", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Tests passed: 5/5")

	out, err = kks(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "sm01-1")
	assert.Contains(t, out, "gen")
	assert.Contains(t, out, "2/3")
	assert.Contains(t, out, "002")
}

func TestGenOutputOnlyMissingInput(t *testing.T) {
	requireShell(t)
	_, task := newTask(t)
	writeFile(t, filepath.Join(task, "solve.sh"), "cat\n", 0o755)

	_, err := kks(t, "gen", "--output-only", "-t", "4")
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(task, "tests", "004.out"))
}

func TestHistoryDisabledStore(t *testing.T) {
	_, _ = newTask(t)
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfg, "store:\n  path: ''\n", 0o644)

	_, err := kks(t, "--user-config", cfg, "history")
	assert.ErrorContains(t, err, "disabled")
}

func TestFetchNeedsRemoteConfig(t *testing.T) {
	_, _ = newTask(t)
	_, err := kks(t, "fetch")
	assert.ErrorContains(t, err, "remote.host")
}

func TestSessionLayoutFollowsWorkingDir(t *testing.T) {
	_, task := newTask(t)
	sub := filepath.Join(task, "draft")
	require.NoError(t, os.Mkdir(sub, 0o755))
	chdir(t, sub)

	cmd, _, err := newRootCmd().Find([]string{"fetch"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(nil))
	s, err := openSession(cmd)
	require.NoError(t, err)
	defer s.close()

	assert.Equal(t, task, s.task.Root)
	assert.Equal(t, filepath.Join(sub, "tests"), s.layout().Dir)
}
