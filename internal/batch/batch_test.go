package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokos-tools/kks/internal/runner"
)

// fakeProgram records calls and answers from fn.
type fakeProgram struct {
	args   [][]string
	stdins []string
	fn     func(args []string, stdin []byte) *runner.Result
}

func (f *fakeProgram) Run(_ context.Context, args []string, stdin []byte) (*runner.Result, error) {
	f.args = append(f.args, append([]string{}, args...))
	f.stdins = append(f.stdins, string(stdin))
	return f.fn(args, stdin), nil
}

func (f *fakeProgram) firstArgs() []string {
	var out []string
	for _, a := range f.args {
		out = append(out, a[0])
	}
	return out
}

func ok(stdout string) *runner.Result {
	return &runner.Result{Stdout: []byte(stdout)}
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestName(t *testing.T) {
	assert.Equal(t, "000", Name(0))
	assert.Equal(t, "007", Name(7))
	assert.Equal(t, "1234", Name(1234))
	idx, isNum := IndexOf("042")
	assert.True(t, isNum)
	assert.Equal(t, 42, idx)
	_, isNum = IndexOf("big")
	assert.False(t, isNum)
}

func TestIndices(t *testing.T) {
	def := &Range{Lo: 1, Hi: 3}
	assert.Equal(t, []int{1, 2, 3}, Indices(nil, nil, def))
	assert.Equal(t, []int{5}, Indices([]int{5}, nil, def))
	assert.Equal(t, []int{2, 3, 4, 9}, Indices([]int{9, 3}, &Range{Lo: 4, Hi: 2}, def))
	assert.Empty(t, Indices(nil, nil, nil))
}

func TestLayoutPairs(t *testing.T) {
	l := NewLayout(t.TempDir())
	writeFiles(t, l.Dir, map[string]string{
		"001.in": "", "001.out": "",
		"002.dat": "", "002.ans": "",
		"003": "", "003.a": "",
		"004.in":    "",
		"notes.txt": "",
	})

	pairs, err := l.Pairs(nil)
	require.NoError(t, err)
	want := []Pair{
		{Name: "001", Input: filepath.Join(l.Dir, "001.in"), Output: filepath.Join(l.Dir, "001.out")},
		{Name: "002", Input: filepath.Join(l.Dir, "002.dat"), Output: filepath.Join(l.Dir, "002.ans")},
		{Name: "003", Input: filepath.Join(l.Dir, "003"), Output: filepath.Join(l.Dir, "003.a")},
		{Name: "004", Input: filepath.Join(l.Dir, "004.in")},
	}
	if diff := cmp.Diff(want, pairs); diff != "" {
		t.Fatalf("pairs mismatch (-want +got):\n%s", diff)
	}

	pairs, err = l.Pairs([]string{"002", "009"})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "002", pairs[0].Name)
	assert.Equal(t, 2, pairs[0].Index())
}

func TestFindOutput(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"x.in": "", "x.ans": "", "y.in": ""})
	assert.Equal(t, filepath.Join(dir, "x.ans"), FindOutput(filepath.Join(dir, "x.in")))
	assert.Equal(t, "", FindOutput(filepath.Join(dir, "y.in")))
}

func TestEqualNormalizesTrailingWhitespace(t *testing.T) {
	cases := []struct {
		name     string
		expected string
		actual   string
		equal    bool
	}{
		{"identical", "1 2\n3\n", "1 2\n3\n", true},
		{"missing final newline", "1 2\n3\n", "1 2\n3", true},
		{"extra final newlines", "1\n", "1\n\n\n", true},
		{"trailing spaces", "1 2\n3\n", "1 2   \n3 \n", true},
		{"trailing tab matters", "1\n", "1\t\n", false},
		{"carriage return matters", "a\n", "a\r\n", false},
		{"crlf lines matter", "a\nb\n", "a\r\nb\r\n", false},
		{"leading space matters", "1\n", " 1\n", false},
		{"inner space matters", "1 2\n", "1  2\n", false},
		{"blank line inside matters", "1\n2\n", "1\n\n2\n", false},
		{"different value", "1\n", "2\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.equal, Equal([]byte(tc.expected), []byte(tc.actual)))
		})
	}
}

func TestDiff(t *testing.T) {
	d := Diff([]byte("1\n2\n"), []byte("1\n3\n"))
	assert.Contains(t, d, "--- expected")
	assert.Contains(t, d, "+++ actual")
	assert.Contains(t, d, "-2\n")
	assert.Contains(t, d, "+3\n")
}

func TestGenerateSkipsExistingInputs(t *testing.T) {
	l := NewLayout(t.TempDir())
	writeFiles(t, l.Dir, map[string]string{"002.in": "keep\n"})

	gen := &fakeProgram{fn: func(args []string, _ []byte) *runner.Result { return ok("gen " + args[0] + "\n") }}
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok("ans:" + string(stdin)) }}
	g := &Generator{
		Layout:  l,
		Gen:     gen,
		Solve:   solve,
		Options: GenOptions{Range: &Range{Lo: 1, Hi: 3}},
	}
	rep, err := g.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"001", "003"}, gen.firstArgs())
	assert.Equal(t, []string{"001", "002", "003"}, solve.firstArgs())
	assert.Equal(t, []int{1, 3}, rep.Generated)
	assert.Equal(t, []int{2}, rep.Skipped)
	assert.Equal(t, 3, rep.Outputs)

	assert.Equal(t, "keep\n", readFile(t, filepath.Join(l.Dir, "002.in")))
	assert.Equal(t, "ans:keep\n", readFile(t, filepath.Join(l.Dir, "002.out")))
	assert.Equal(t, "gen 001\n", readFile(t, filepath.Join(l.Dir, "001.in")))
	assert.Equal(t, "ans:gen 003\n", readFile(t, filepath.Join(l.Dir, "003.out")))
}

func TestGenerateExplicitTestIsRewritten(t *testing.T) {
	l := NewLayout(t.TempDir())
	writeFiles(t, l.Dir, map[string]string{"005.in": "old\n"})
	gen := &fakeProgram{fn: func(_ []string, _ []byte) *runner.Result { return ok("new\n") }}
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok(string(stdin)) }}
	g := &Generator{Layout: l, Gen: gen, Solve: solve, Options: GenOptions{Tests: []int{5}, DefaultRange: Range{Lo: 1, Hi: 100}}}
	_, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new\n", readFile(t, filepath.Join(l.Dir, "005.in")))
	assert.Equal(t, []string{"005"}, gen.firstArgs())
}

func TestGenerateRepeatedSingleTestIsRewritten(t *testing.T) {
	l := NewLayout(t.TempDir())
	writeFiles(t, l.Dir, map[string]string{"005.in": "old\n"})
	gen := &fakeProgram{fn: func(_ []string, _ []byte) *runner.Result { return ok("new\n") }}
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok(string(stdin)) }}
	g := &Generator{Layout: l, Gen: gen, Solve: solve, Options: GenOptions{Tests: []int{5, 5}, DefaultRange: Range{Lo: 1, Hi: 100}}}
	rep, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new\n", readFile(t, filepath.Join(l.Dir, "005.in")))
	assert.Empty(t, rep.Skipped)
}

func TestGenerateKeepsExistingSuffixPair(t *testing.T) {
	l := NewLayout(t.TempDir())
	writeFiles(t, l.Dir, map[string]string{"001.dat": "in\n"})
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok("out\n") }}
	g := &Generator{Layout: l, Solve: solve, Options: GenOptions{Tests: []int{1}, OutputOnly: true}}
	_, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "out\n", readFile(t, filepath.Join(l.Dir, "001.ans")))
}

func TestGenerateOutputOnlyMissingInput(t *testing.T) {
	l := NewLayout(t.TempDir())
	writeFiles(t, l.Dir, map[string]string{"001.in": "a\n", "003.in": "c\n"})
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok(string(stdin)) }}

	g := &Generator{Layout: l, Solve: solve, Options: GenOptions{Range: &Range{Lo: 1, Hi: 3}, OutputOnly: true}}
	rep, err := g.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingInput))
	var ie *IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 2, ie.Index)
	assert.Equal(t, []int{2}, rep.Failed)
	assert.Equal(t, 1, rep.Outputs, "batch stops at the first failure")

	solve.args = nil
	g.Options.Continue = true
	rep, err = g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, rep.Failed)
	assert.Equal(t, []string{"001", "003"}, solve.firstArgs())
	_, statErr := os.Stat(filepath.Join(l.Dir, "002.in"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestGenerateFailurePolicies(t *testing.T) {
	gen := &fakeProgram{fn: func(args []string, _ []byte) *runner.Result {
		if args[0] == "002" {
			return &runner.Result{ExitCode: 1, Stderr: []byte("boom")}
		}
		return ok(args[0])
	}}
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok(string(stdin)) }}

	l := NewLayout(t.TempDir())
	g := &Generator{Layout: l, Gen: gen, Solve: solve, Options: GenOptions{Range: &Range{Lo: 1, Hi: 3}}}
	rep, err := g.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	assert.Equal(t, []int{1}, rep.Generated)
	_, statErr := os.Stat(filepath.Join(l.Dir, "002.in"))
	assert.True(t, os.IsNotExist(statErr), "failed input is not written")

	l = NewLayout(t.TempDir())
	g = &Generator{Layout: l, Gen: gen, Solve: solve, Options: GenOptions{Range: &Range{Lo: 1, Hi: 3}, Continue: true}}
	rep, err = g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2}, rep.Failed)
	assert.Equal(t, []int{1, 3}, rep.Generated)

	l = NewLayout(t.TempDir())
	g = &Generator{Layout: l, Gen: gen, Solve: solve, Options: GenOptions{Range: &Range{Lo: 1, Hi: 3}, IgnoreExitCode: true}}
	rep, err = g.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Outputs)
}

func TestGenerateSolutionTimeout(t *testing.T) {
	gen := &fakeProgram{fn: func(args []string, _ []byte) *runner.Result { return ok(args[0]) }}
	solve := &fakeProgram{fn: func(_ []string, _ []byte) *runner.Result { return &runner.Result{TimedOut: true, ExitCode: -1} }}
	g := &Generator{Layout: NewLayout(t.TempDir()), Gen: gen, Solve: solve, Options: GenOptions{Tests: []int{1}, IgnoreExitCode: true}}
	_, err := g.Run(context.Background())
	assert.True(t, errors.Is(err, ErrGenerationFailed))
}

// fiveTests lays out tests 001..005 with expected output "out<i>".
func fiveTests(t *testing.T) Layout {
	l := NewLayout(t.TempDir())
	files := map[string]string{}
	for i := 1; i <= 5; i++ {
		files[Name(i)+".in"] = Name(i)
		files[Name(i)+".out"] = "out" + Name(i) + "\n"
	}
	writeFiles(t, l.Dir, files)
	return l
}

// candidate echoes "out<input>", with trailing blanks on 003 and a wrong
// answer on 004.
func candidate() *fakeProgram {
	return &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result {
		switch string(stdin) {
		case "003":
			return ok("out003   \n\n")
		case "004":
			return ok("something else\n")
		}
		return ok("out" + string(stdin) + "\n")
	}}
}

func TestExecuteContinueReportsFailingIndices(t *testing.T) {
	l := fiveTests(t)
	cases, missing, err := l.Select(Selection{Range: &Range{Lo: 1, Hi: 5}})
	require.NoError(t, err)
	require.Empty(t, missing)

	var outcomes []*Outcome
	e := &Executor{
		Candidate: candidate(),
		Options:   ExecOptions{Continue: true},
		Report:    func(o *Outcome) { outcomes = append(outcomes, o) },
	}
	sum, err := e.Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, 5, sum.Ran)
	assert.Equal(t, 4, sum.Passed)
	assert.Equal(t, []int{4}, sum.Failed)
	assert.False(t, sum.OK())

	require.Len(t, outcomes, 5)
	assert.Equal(t, StatusOK, outcomes[2].Status)
	assert.Equal(t, StatusWrongOutput, outcomes[3].Status)
	assert.NotEmpty(t, outcomes[3].Diff)
	assert.True(t, errors.Is(outcomes[3].Err(), ErrWrongOutput))
}

func TestExecuteStopsAtFirstFailure(t *testing.T) {
	l := fiveTests(t)
	cases, _, err := l.Select(Selection{})
	require.NoError(t, err)
	require.Len(t, cases, 5)

	prog := candidate()
	sum, err := (&Executor{Candidate: prog}).Run(context.Background(), cases)
	require.Error(t, err)
	var ie *IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, 4, ie.Index)
	assert.True(t, errors.Is(err, ErrWrongOutput))
	assert.Equal(t, 4, sum.Ran)
	assert.Len(t, prog.args, 4)
}

func TestClassify(t *testing.T) {
	exp := []byte("42\n")
	cases := []struct {
		name   string
		res    *runner.Result
		ignore bool
		want   Status
	}{
		{"ok", ok("42"), false, StatusOK},
		{"wrong", ok("41"), false, StatusWrongOutput},
		{"runtime error", &runner.Result{Stdout: exp, ExitCode: 139}, false, StatusRuntimeError},
		{"ignored exit code", &runner.Result{Stdout: exp, ExitCode: 1}, true, StatusOK},
		{"timeout wins", &runner.Result{Stdout: exp, ExitCode: -1, TimedOut: true}, true, StatusTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := Classify("001", 1, tc.res, exp, tc.ignore)
			assert.Equal(t, tc.want, o.Status)
		})
	}
	assert.True(t, errors.Is(Classify("001", 1, &runner.Result{TimedOut: true}, exp, false).Err(), ErrTimeout))
	assert.True(t, errors.Is(Classify("001", 1, &runner.Result{ExitCode: 2}, exp, false).Err(), ErrRuntimeError))
}

func TestSelect(t *testing.T) {
	dir := t.TempDir()
	l := NewLayout(dir)
	writeFiles(t, l.Dir, map[string]string{
		"000.in": "s", "000.out": "s",
		"001.in": "a", "001.out": "a",
		"002.in": "b",
	})
	writeFiles(t, dir, map[string]string{"my.in": "m", "my.out": "m"})

	names := func(cs []Case) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Name)
		}
		return out
	}

	cases, missing, err := l.Select(Selection{})
	require.NoError(t, err)
	assert.Equal(t, []string{"000", "001"}, names(cases))
	assert.Equal(t, []string{"002"}, missing)

	cases, _, err = l.Select(Selection{Sample: true, Tests: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"000"}, names(cases))

	cases, _, err = l.Select(Selection{Files: []string{filepath.Join(dir, "my.in")}})
	require.NoError(t, err)
	assert.Equal(t, []string{"my"}, names(cases))
	assert.Equal(t, -1, cases[0].Index)

	cases, _, err = l.Select(Selection{Files: []string{filepath.Join(dir, "my.in")}, Tests: []int{1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "my"}, names(cases))

	_, _, err = l.Select(Selection{Files: []string{filepath.Join(dir, "none.in")}})
	assert.Error(t, err)

	_, _, err = NewLayout(t.TempDir()).Select(Selection{})
	assert.Error(t, err)
}

func TestSelectReportsRequestedTestsWithoutInput(t *testing.T) {
	l := NewLayout(t.TempDir())
	writeFiles(t, l.Dir, map[string]string{
		"001.in": "a", "001.out": "a",
		"003.in": "c", "003.out": "c",
	})

	cases, missing, err := l.Select(Selection{Range: &Range{Lo: 1, Hi: 3}})
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "001", cases[0].Name)
	assert.Equal(t, "003", cases[1].Name)
	assert.Equal(t, []string{"002"}, missing)

	cases, missing, err = l.Select(Selection{Sample: true})
	require.NoError(t, err)
	assert.Empty(t, cases)
	assert.Equal(t, []string{"000"}, missing)
}

func TestVirtualCases(t *testing.T) {
	gen := &fakeProgram{fn: func(args []string, _ []byte) *runner.Result { return ok(args[0]) }}
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok("out" + string(stdin) + "\n") }}
	cases := VirtualCases([]int{1, 2, 3, 4}, gen, solve, false)

	sum, err := (&Executor{Candidate: candidate(), Options: ExecOptions{Continue: true}}).Run(context.Background(), cases)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, sum.Failed)
	assert.Equal(t, []string{"001", "002", "003", "004"}, gen.firstArgs())
}

func TestVirtualCaseGeneratorFailureAborts(t *testing.T) {
	gen := &fakeProgram{fn: func(_ []string, _ []byte) *runner.Result { return &runner.Result{ExitCode: 3} }}
	solve := &fakeProgram{fn: func(_ []string, stdin []byte) *runner.Result { return ok(string(stdin)) }}
	sum, err := (&Executor{Candidate: candidate(), Options: ExecOptions{Continue: true}}).Run(context.Background(), VirtualCases([]int{1}, gen, solve, false))
	assert.True(t, errors.Is(err, ErrGenerationFailed))
	assert.Equal(t, 0, sum.Ran)
}

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.Outcome(&Outcome{Name: "001", Status: StatusOK})
	r.Outcome(&Outcome{Name: "004", Status: StatusWrongOutput, Expected: []byte("1\n"), Stdout: []byte("2\n"), Diff: Diff([]byte("1\n"), []byte("2\n"))})
	r.Outcome(&Outcome{Name: "005", Status: StatusRuntimeError, ExitCode: 134, Stderr: []byte("AddressSanitizer: heap-buffer-overflow\n")})
	r.Summary(&Summary{Ran: 5, Passed: 3, Failed: []int{4, 5}, FailedNames: []string{"004", "005"}}, true)

	out := buf.String()
	assert.NotContains(t, out, "OK 001")
	assert.Contains(t, out, "WA 004\n")
	assert.Contains(t, out, "expected 2 B, got 2 B")
	assert.Contains(t, out, "RE 005\nProcess exited with code 134\nAddressSanitizer")
	assert.True(t, strings.HasSuffix(out, "Tests passed: 3/5\nFailed: 004, 005\n"))

	buf.Reset()
	r.Generation(&GenReport{Outputs: 1200, Skipped: []int{2}, Failed: []int{7}})
	assert.Equal(t, "Generated 1,200 tests (1 kept existing input)!\nFailed: 007\n", buf.String())
}
