package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Case is one test to run. Input and expected output are loaded right
// before the run, so virtual tests are generated one at a time.
type Case struct {
	Name  string
	Index int
	load  func(ctx context.Context) (input, expected []byte, err error)
}

// FileCase reads a test pair from disk.
func FileCase(p Pair) Case {
	return Case{
		Name:  p.Name,
		Index: p.Index(),
		load: func(context.Context) ([]byte, []byte, error) {
			in, err := os.ReadFile(p.Input)
			if err != nil {
				return nil, nil, fmt.Errorf("read input: %w", err)
			}
			out, err := os.ReadFile(p.Output)
			if err != nil {
				return nil, nil, fmt.Errorf("read expected output: %w", err)
			}
			return in, out, nil
		},
	}
}

// DataCase wraps in-memory test data.
func DataCase(name string, index int, input, expected []byte) Case {
	return Case{
		Name:  name,
		Index: index,
		load: func(context.Context) ([]byte, []byte, error) {
			return input, expected, nil
		},
	}
}

// VirtualCases generate each test with gen and solve when it is about to
// run. Nothing is written to disk.
func VirtualCases(indices []int, gen, solve Program, ignoreExitCode bool) []Case {
	g := &Generator{Gen: gen, Solve: solve, Options: GenOptions{IgnoreExitCode: ignoreExitCode}}
	cases := make([]Case, 0, len(indices))
	for _, idx := range indices {
		idx := idx
		name := Name(idx)
		cases = append(cases, Case{
			Name:  name,
			Index: idx,
			load: func(ctx context.Context) ([]byte, []byte, error) {
				res, err := gen.Run(ctx, []string{name}, nil)
				if ferr := g.stepFailure(ctx, idx, name, "generator", res, err); ferr != nil {
					return nil, nil, ferr
				}
				in := res.Stdout
				res, err = solve.Run(ctx, []string{name}, in)
				if ferr := g.stepFailure(ctx, idx, name, "solution", res, err); ferr != nil {
					return nil, nil, ferr
				}
				return in, res.Stdout, nil
			},
		})
	}
	return cases
}

// Selection picks the tests of an execution batch.
type Selection struct {
	Tests []int
	Range *Range
	// Sample selects only test 000 and overrides everything else.
	Sample bool
	// Files are explicit input files; outputs are found next to them.
	Files []string
}

// Select returns the cases to run. Requested tests without an input or an
// expected output are returned in missing and left out.
func (l Layout) Select(sel Selection) (cases []Case, missing []string, err error) {
	var pairs []Pair
	useNumbers := !sel.Sample && (len(sel.Tests) > 0 || sel.Range != nil)
	useFiles := !sel.Sample && len(sel.Files) > 0

	if useFiles {
		for _, f := range sel.Files {
			if !fileExists(f) {
				return nil, nil, fmt.Errorf("test file %s: %w", f, os.ErrNotExist)
			}
			ext := filepath.Ext(f)
			pairs = append(pairs, Pair{
				Name:   strings.TrimSuffix(filepath.Base(f), ext),
				Input:  f,
				Output: FindOutput(f),
			})
		}
	}

	if useNumbers || !useFiles {
		var names []string
		switch {
		case sel.Sample:
			names = []string{Name(0)}
		case useNumbers:
			for _, idx := range Indices(sel.Tests, sel.Range, nil) {
				names = append(names, Name(idx))
			}
		}
		if st, err := os.Stat(l.Dir); err != nil || !st.IsDir() {
			return nil, nil, fmt.Errorf("not a directory: %s", l.Dir)
		}
		found, err := l.Pairs(names)
		if err != nil {
			return nil, nil, err
		}
		pairs = append(pairs, found...)
		have := make(map[string]bool, len(found))
		for _, p := range found {
			have[p.Name] = true
		}
		for _, n := range names {
			if !have[n] {
				missing = append(missing, n)
			}
		}
	}

	seen := map[string]bool{}
	var kept []Pair
	for _, p := range pairs {
		if seen[p.Input] {
			continue
		}
		seen[p.Input] = true
		if p.Output == "" {
			missing = append(missing, p.Name)
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool { return lessName(kept[i].Name, kept[j].Name) })
	sort.SliceStable(missing, func(i, j int) bool { return lessName(missing[i], missing[j]) })
	for _, p := range kept {
		cases = append(cases, FileCase(p))
	}
	return cases, missing, nil
}

// lessName orders numeric names by value and everything else after them.
func lessName(a, b string) bool {
	ia, oka := IndexOf(a)
	ib, okb := IndexOf(b)
	switch {
	case oka && okb:
		return ia < ib
	case oka != okb:
		return oka
	}
	return a < b
}

// ExecOptions steer an execution batch.
type ExecOptions struct {
	// Continue runs every case instead of stopping at the first failure.
	Continue       bool
	IgnoreExitCode bool
}

// Summary is the tally of an execution batch.
type Summary struct {
	Ran    int
	Passed int
	// Failed lists failing indices; FailedNames also covers named file tests.
	Failed      []int
	FailedNames []string
}

// OK reports whether every test that ran passed.
func (s *Summary) OK() bool { return s.Ran == s.Passed }

// Executor runs a candidate program over test cases in order.
type Executor struct {
	Candidate Program
	// Args are passed to the candidate on every run.
	Args    []string
	Options ExecOptions
	// Report receives every outcome as soon as it is known.
	Report func(*Outcome)
}

// Run executes cases in order. Without Continue the first failed outcome
// stops the batch and is returned as *IndexError. Failures to load a case or
// start the candidate abort the batch under both policies.
func (e *Executor) Run(ctx context.Context, cases []Case) (*Summary, error) {
	sum := &Summary{}
	for _, c := range cases {
		in, expected, err := c.load(ctx)
		if err != nil {
			return sum, err
		}
		res, err := e.Candidate.Run(ctx, e.Args, in)
		if err != nil {
			return sum, fmt.Errorf("run test %s: %w", c.Name, err)
		}
		o := Classify(c.Name, c.Index, res, expected, e.Options.IgnoreExitCode)
		o.Input = in
		if e.Report != nil {
			e.Report(o)
		}
		log.Debug().Str("test", c.Name).Str("status", string(o.Status)).Dur("duration", o.Duration).Msg("test finished")

		sum.Ran++
		if o.Status == StatusOK {
			sum.Passed++
			continue
		}
		sum.FailedNames = append(sum.FailedNames, c.Name)
		if c.Index >= 0 {
			sum.Failed = append(sum.Failed, c.Index)
		}
		if !e.Options.Continue {
			return sum, o.Err()
		}
	}
	return sum, nil
}
