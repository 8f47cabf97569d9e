package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/kokos-tools/kks/internal/runner"
)

// Range is an inclusive index range. Reversed bounds are swapped.
type Range struct {
	Lo, Hi int
}

// Indices lists the range in ascending order.
func (r Range) Indices() []int {
	lo, hi := r.Lo, r.Hi
	if lo > hi {
		lo, hi = hi, lo
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

// Indices merges explicit indices with an optional range into a sorted set.
// def is used when neither is given; nil def yields nothing.
func Indices(tests []int, rng *Range, def *Range) []int {
	all := append([]int{}, tests...)
	switch {
	case rng != nil:
		all = append(all, rng.Indices()...)
	case len(tests) == 0 && def != nil:
		all = append(all, def.Indices()...)
	}
	sort.Ints(all)
	out := all[:0]
	for i, v := range all {
		if i == 0 || v != all[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// GenOptions select and steer a generation batch.
type GenOptions struct {
	Tests        []int
	Range        *Range
	DefaultRange Range
	// Force regenerates inputs that already exist.
	Force bool
	// OutputOnly keeps inputs and only reruns the solution.
	OutputOnly bool
	// Continue records failed indices instead of stopping at the first.
	Continue       bool
	IgnoreExitCode bool
}

// GenReport summarizes a generation batch.
type GenReport struct {
	// Generated lists indices whose input was (re)written.
	Generated []int
	// Skipped lists indices whose existing input was kept.
	Skipped []int
	// Outputs counts expected outputs written.
	Outputs int
	Failed  []int
}

// Generator produces test pairs: Gen writes inputs, Solve writes expected
// outputs from them. Gen may be nil in output-only mode.
type Generator struct {
	Layout  Layout
	Gen     Program
	Solve   Program
	Options GenOptions
}

// Run processes every selected index in ascending order. Under the default
// policy the first failure aborts the batch and is returned as *IndexError;
// with Continue the failed indices are collected in the report.
func (g *Generator) Run(ctx context.Context) (*GenReport, error) {
	opts := g.Options
	if g.Gen == nil && !opts.OutputOnly {
		return nil, errors.New("no generator program")
	}
	if err := os.MkdirAll(g.Layout.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tests dir: %w", err)
	}
	indices := Indices(opts.Tests, opts.Range, &opts.DefaultRange)
	pairs, err := g.pairs(indices)
	if err != nil {
		return nil, err
	}
	explicit := -1
	if len(opts.Tests) > 0 && opts.Range == nil && len(indices) == 1 {
		explicit = indices[0]
	}

	rep := &GenReport{}
	for _, p := range pairs {
		idx := p.Index()
		err := g.one(ctx, p, idx == explicit, rep)
		if err == nil {
			continue
		}
		var ie *IndexError
		if !errors.As(err, &ie) {
			return rep, err
		}
		rep.Failed = append(rep.Failed, idx)
		log.Warn().Int("index", idx).Err(ie.Err).Msg("test generation failed")
		if !opts.Continue {
			return rep, err
		}
	}
	return rep, nil
}

// pairs returns one pair per index: the existing artifacts when present,
// else the default .in/.out names.
func (g *Generator) pairs(indices []int) ([]Pair, error) {
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = Name(idx)
	}
	existing, err := g.Layout.Pairs(names)
	if err != nil {
		return nil, err
	}
	byName := map[string]Pair{}
	for _, p := range existing {
		if _, ok := byName[p.Name]; ok {
			continue
		}
		if p.Output == "" {
			ext := filepath.Ext(p.Input)
			p.Output = p.Input[:len(p.Input)-len(ext)] + OutputSuffix(ext)
		}
		byName[p.Name] = p
	}
	out := make([]Pair, 0, len(indices))
	for i, idx := range indices {
		if p, ok := byName[names[i]]; ok {
			out = append(out, p)
			continue
		}
		out = append(out, g.Layout.DefaultPair(idx))
	}
	return out, nil
}

func (g *Generator) one(ctx context.Context, p Pair, explicit bool, rep *GenReport) error {
	opts := g.Options
	idx := p.Index()
	exists := fileExists(p.Input)

	var input []byte
	var err error
	switch {
	case opts.OutputOnly:
		if !exists {
			return indexError(idx, p.Name, ErrMissingInput)
		}
		if input, err = os.ReadFile(p.Input); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	case exists && !opts.Force && !explicit:
		log.Info().Str("file", p.Input).Msg("input already exists, keeping it (use -f to overwrite)")
		if input, err = os.ReadFile(p.Input); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		rep.Skipped = append(rep.Skipped, idx)
	default:
		res, err := g.Gen.Run(ctx, []string{p.Name}, nil)
		if ferr := g.stepFailure(ctx, idx, p.Name, "generator", res, err); ferr != nil {
			return ferr
		}
		input = res.Stdout
		if err := writeFileAtomic(p.Input, input); err != nil {
			return fmt.Errorf("write input: %w", err)
		}
		rep.Generated = append(rep.Generated, idx)
	}

	res, err := g.Solve.Run(ctx, []string{p.Name}, input)
	if ferr := g.stepFailure(ctx, idx, p.Name, "solution", res, err); ferr != nil {
		return ferr
	}
	if err := writeFileAtomic(p.Output, res.Stdout); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	rep.Outputs++
	log.Debug().Int("index", idx).Str("file", p.Output).Msg("test written")
	return nil
}

// stepFailure converts a failed generator or solution run into
// GenerationFailed. Cancellation of ctx is returned as is.
func (g *Generator) stepFailure(ctx context.Context, idx int, name, who string, res *runner.Result, err error) error {
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return indexError(idx, name, fmt.Errorf("%w: %s: %v", ErrGenerationFailed, who, err))
	}
	if res.TimedOut {
		return indexError(idx, name, fmt.Errorf("%w: %s timed out", ErrGenerationFailed, who))
	}
	if res.ExitCode != 0 && !g.Options.IgnoreExitCode {
		return indexError(idx, name, fmt.Errorf("%w: %s exited with code %d", ErrGenerationFailed, who, res.ExitCode))
	}
	return nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
