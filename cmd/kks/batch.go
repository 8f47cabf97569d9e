package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kokos-tools/kks/internal/batch"
	"github.com/kokos-tools/kks/internal/build"
	"github.com/kokos-tools/kks/internal/core"
)

// Generate tests
func newGenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate tests with a generator and a reference solution",
		Example: `  kks gen --test 17
  kks gen --range 1 100
  kks gen --test 12 --output-only
  kks gen --range 1,50 --force
  kks gen --generator gen.py --solution solve.py`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, args, err := readRange(cmd, args)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
			}
			tests, _ := cmd.Flags().GetIntSlice("test")
			outputOnly, _ := cmd.Flags().GetBool("output-only")
			force, _ := cmd.Flags().GetBool("force")
			cont, _ := cmd.Flags().GetBool("continue")
			ignore, _ := cmd.Flags().GetBool("ignore-exit-code")
			genPath, _ := cmd.Flags().GetString("generator")
			solPath, _ := cmd.Flags().GetString("solution")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			started := time.Now()
			ctx := cmd.Context()

			tmp, err := os.MkdirTemp("", "kks-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(tmp)

			timeout := s.cfg.RunTimeout()
			var gen batch.Program
			if !outputOnly {
				p, err := s.script(ctx, "gen", genPath, "generator", tmp, timeout)
				if err != nil {
					return err
				}
				gen = p
			}
			sol, err := s.script(ctx, "solve", solPath, "solution", tmp, timeout)
			if err != nil {
				return err
			}

			lo, hi := s.cfg.DefaultRange()
			g := &batch.Generator{
				Layout: s.layout(),
				Gen:    gen,
				Solve:  sol,
				Options: batch.GenOptions{
					Tests:          tests,
					Range:          rng,
					DefaultRange:   batch.Range{Lo: lo, Hi: hi},
					Force:          force,
					OutputOnly:     outputOnly,
					Continue:       cont,
					IgnoreExitCode: ignore,
				},
			}
			rep, runErr := g.Run(ctx)
			if rep == nil {
				return runErr
			}
			batch.NewReporter(cmd.OutOrStdout()).Generation(rep)

			failed := make([]string, len(rep.Failed))
			for i, idx := range rep.Failed {
				failed[i] = batch.Name(idx)
			}
			s.recordBatch(ctx, &core.BatchRun{
				Mode:      "gen",
				Ran:       rep.Outputs + len(rep.Failed),
				Passed:    rep.Outputs,
				Failed:    failed,
				StartedAt: started,
				Duration:  time.Since(started),
			})
			if runErr != nil {
				return runErr
			}
			if len(rep.Failed) > 0 {
				return fmt.Errorf("generation failed for %d tests", len(rep.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolP("output-only", "o", false, "only run the solution, keep existing inputs")
	cmd.Flags().StringP("generator", "g", "", "script used to generate inputs (default gen.*)")
	cmd.Flags().StringP("solution", "s", "", "script used to generate outputs (default solve.*)")
	cmd.Flags().IntSliceP("test", "t", nil, "test number to generate (repeatable)")
	cmd.Flags().IntSliceP("range", "r", nil, "inclusive range of tests to generate")
	cmd.Flags().BoolP("force", "f", false, "overwrite existing inputs")
	cmd.Flags().BoolP("continue", "c", false, "continue after a failed test")
	cmd.Flags().BoolP("ignore-exit-code", "i", false, "do not fail on non-zero exit codes")
	return cmd
}

// Test the solution
func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Build the solution and run it against tests",
		Example: `  kks test
  kks test -s
  kks test -t 0 -t 2 -t 3
  kks test --continue --range 1 5
  kks test --virtual -r 1,500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, args, err := readRange(cmd, args)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				return fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
			}
			tests, _ := cmd.Flags().GetIntSlice("test")
			files, _ := cmd.Flags().GetStringSlice("file")
			sample, _ := cmd.Flags().GetBool("sample")
			cont, _ := cmd.Flags().GetBool("continue")
			ignore, _ := cmd.Flags().GetBool("ignore-exit-code")
			virtual, _ := cmd.Flags().GetBool("virtual")
			genPath, _ := cmd.Flags().GetString("generator")
			solPath, _ := cmd.Flags().GetString("solution")

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			started := time.Now()
			ctx := cmd.Context()
			bf := readBuildFlags(cmd)
			rep := batch.NewReporter(cmd.OutOrStdout())
			rep.Verbose = bf.verbose
			rep.ShowSample = sample

			bin, inv, err := s.compile(cmd, bf)
			if err != nil {
				if errors.Is(err, build.ErrBuildFailed) {
					rep.BuildError(nil)
					s.recordBatch(ctx, &core.BatchRun{Mode: "test", Target: bf.target, Failed: []string{"build"}, StartedAt: started, Duration: time.Since(started)})
				}
				return err
			}
			timeout := s.timeout(cmd)
			cand := s.candidate(bin, inv, bf.valgrind, timeout)

			var cases []batch.Case
			if virtual {
				tmp, err := os.MkdirTemp("", "kks-")
				if err != nil {
					return err
				}
				defer os.RemoveAll(tmp)
				gen, err := s.script(ctx, "gen", genPath, "generator", tmp, timeout)
				if err != nil {
					return err
				}
				sol, err := s.script(ctx, "solve", solPath, "solution", tmp, timeout)
				if err != nil {
					return err
				}
				lo, hi := s.cfg.DefaultRange()
				indices := batch.Indices(tests, rng, &batch.Range{Lo: lo, Hi: hi})
				cases = batch.VirtualCases(indices, gen, sol, ignore)
			} else {
				var missing []string
				cases, missing, err = s.layout().Select(batch.Selection{
					Tests:  tests,
					Range:  rng,
					Sample: sample,
					Files:  files,
				})
				if err != nil {
					return err
				}
				rep.Missing(missing)
			}
			if len(cases) == 0 {
				return errors.New("no tests to run")
			}

			ex := &batch.Executor{
				Candidate: cand,
				Options:   batch.ExecOptions{Continue: cont, IgnoreExitCode: ignore},
				Report:    rep.Outcome,
			}
			sum, runErr := ex.Run(ctx, cases)
			rep.Summary(sum, cont)
			s.recordBatch(ctx, &core.BatchRun{
				Mode:      "test",
				Target:    bf.target,
				Ran:       sum.Ran,
				Passed:    sum.Passed,
				Failed:    sum.FailedNames,
				StartedAt: started,
				Duration:  time.Since(started),
			})
			if runErr != nil {
				return runErr
			}
			if !sum.OK() {
				return fmt.Errorf("%d of %d tests failed", sum.Ran-sum.Passed, sum.Ran)
			}
			return nil
		},
	}
	addBuildFlags(cmd)
	cmd.Flags().IntSliceP("test", "t", nil, "test numbers to run (repeatable)")
	cmd.Flags().IntSliceP("range", "r", nil, "inclusive range of tests to run")
	cmd.Flags().StringSliceP("file", "f", nil, "test input files (repeatable)")
	cmd.Flags().BoolP("sample", "s", false, "run only the sample test")
	cmd.Flags().BoolP("continue", "c", false, "continue running after a failed test")
	cmd.Flags().BoolP("ignore-exit-code", "i", false, "do not fail on non-zero exit codes")
	cmd.Flags().BoolP("valgrind", "g", false, "run under valgrind (disables asan)")
	cmd.Flags().BoolP("virtual", "V", false, "generate tests in memory with gen.* and solve.*")
	cmd.Flags().String("generator", "", "generator for virtual tests")
	cmd.Flags().String("solution", "", "solution for virtual tests")
	cmd.Flags().Int("timeout", 0, "per-test timeout in seconds (default from user config)")
	return cmd
}
