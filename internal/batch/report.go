package batch

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// stderrTail is how many trailing stderr lines a runtime error shows.
const stderrTail = 20

// Reporter prints outcomes and tallies for a human.
type Reporter struct {
	W io.Writer
	// Verbose also prints passing tests.
	Verbose bool
	// ShowSample prints input and expected output before each verdict.
	ShowSample bool
}

// NewReporter writes to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{W: w}
}

// Outcome prints the verdict line and the details of a failure.
func (r *Reporter) Outcome(o *Outcome) {
	if r.ShowSample {
		fmt.Fprintf(r.W, "Sample input:\n%s\n", o.Input)
		fmt.Fprintf(r.W, "Sample output:\n%s\n", o.Expected)
	}
	switch o.Status {
	case StatusOK:
		if r.Verbose {
			fmt.Fprintf(r.W, "%s %s (%s)\n", o.Status.Short(), o.Name, o.Duration.Round(time.Millisecond))
		}
	case StatusWrongOutput:
		fmt.Fprintf(r.W, "%s %s\n", o.Status.Short(), o.Name)
		fmt.Fprintf(r.W, "expected %s, got %s\n", humanize.Bytes(uint64(len(o.Expected))), humanize.Bytes(uint64(len(o.Stdout))))
		if o.Diff != "" {
			fmt.Fprint(r.W, o.Diff)
			if !strings.HasSuffix(o.Diff, "\n") {
				fmt.Fprintln(r.W)
			}
		}
	case StatusRuntimeError:
		fmt.Fprintf(r.W, "%s %s\n", o.Status.Short(), o.Name)
		fmt.Fprintf(r.W, "Process exited with code %d\n", o.ExitCode)
		if tail := lastLines(o.Stderr, stderrTail); len(tail) > 0 {
			fmt.Fprintf(r.W, "%s\n", tail)
		}
	case StatusTimeout:
		fmt.Fprintf(r.W, "%s %s\n", o.Status.Short(), o.Name)
		fmt.Fprintf(r.W, "Killed after %s\n", o.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(r.W, "%s %s\n", o.Status.Short(), o.Name)
	}
}

// BuildError prints a compile failure with the compiler output.
func (r *Reporter) BuildError(output []byte) {
	fmt.Fprintf(r.W, "%s\n", StatusBuildError.Short())
	if len(output) > 0 {
		fmt.Fprintf(r.W, "%s\n", bytes.TrimRight(output, "\n"))
	}
}

// Missing warns about requested tests without an expected output.
func (r *Reporter) Missing(names []string) {
	for _, n := range names {
		fmt.Fprintf(r.W, "Test %s has no output, skipping\n", n)
	}
}

// Summary prints the tally and, when continuing, the failing tests.
func (r *Reporter) Summary(s *Summary, continued bool) {
	fmt.Fprintf(r.W, "Tests passed: %d/%d\n", s.Passed, s.Ran)
	if continued && len(s.FailedNames) > 0 {
		fmt.Fprintf(r.W, "Failed: %s\n", strings.Join(s.FailedNames, ", "))
	}
}

// Generation prints what a generation batch did.
func (r *Reporter) Generation(rep *GenReport) {
	fmt.Fprintf(r.W, "Generated %s tests", humanize.Comma(int64(rep.Outputs)))
	if n := len(rep.Skipped); n > 0 {
		fmt.Fprintf(r.W, " (%d kept existing input)", n)
	}
	fmt.Fprintln(r.W, "!")
	if len(rep.Failed) > 0 {
		names := make([]string, len(rep.Failed))
		for i, idx := range rep.Failed {
			names[i] = Name(idx)
		}
		fmt.Fprintf(r.W, "Failed: %s\n", strings.Join(names, ", "))
	}
}

func lastLines(b []byte, n int) []byte {
	b = bytes.TrimRight(b, "\n")
	if len(b) == 0 {
		return nil
	}
	lines := bytes.Split(b, []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return bytes.Join(lines, []byte("\n"))
}
