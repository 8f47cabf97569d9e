package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kokos-tools/kks/internal/batch"
	"github.com/kokos-tools/kks/internal/build"
	"github.com/kokos-tools/kks/internal/core"
	"github.com/kokos-tools/kks/internal/runner"
	"github.com/kokos-tools/kks/internal/targets"
	"github.com/kokos-tools/kks/internal/workspace"
)

// session is the per-invocation state shared by commands working on a task:
// user config, store, workspace and the loaded targets layers.
type session struct {
	cfg       core.Config
	store     *core.Store
	workspace string
	dir       string
	task      workspace.Task
	global    *targets.Document
	local     *targets.Document
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfgPath, _ := cmd.Flags().GetString("user-config")
	cfg, err := core.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working dir: %w", err)
	}
	s := &session{cfg: cfg, dir: dir}

	if p := cfg.StorePath(); p != "" {
		st, err := core.NewStore(p)
		if err != nil {
			log.Warn().Err(err).Str("file", p).Msg("store unavailable, history and config cache disabled")
		} else {
			s.store = st
		}
	}

	root, err := workspace.Find(dir)
	switch {
	case err == nil:
		s.workspace = root
	case errors.Is(err, workspace.ErrNoWorkspace):
		log.Debug().Str("dir", dir).Msg("not inside a workspace, using built-in and local targets only")
	default:
		s.close()
		return nil, err
	}
	s.task = workspace.TaskOf(root, dir)

	loader := &targets.Loader{}
	if s.store != nil {
		loader.Cache = s.store
	}
	s.global, s.local, err = loader.Load(s.workspace, dir)
	if err != nil {
		s.close()
		return nil, err
	}
	s.warnStale()
	return s, nil
}

func (s *session) close() {
	if s.store != nil {
		_ = s.store.Close()
	}
}

// warnStale is called once per invocation.
func (s *session) warnStale() {
	for _, doc := range []*targets.Document{s.global, s.local} {
		if targets.CheckStaleness(doc) {
			log.Warn().
				Str("file", doc.Path).
				Int("version", doc.Version).
				Int("current", targets.SchemaVersion()).
				Msg("targets config is outdated; run `kks init --config=update` and merge the new defaults manually")
		}
	}
}

func (s *session) target(name string) (*targets.Target, error) {
	return targets.NewResolver(s.task.Name()).Resolve(name, s.global, s.local)
}

// layout is the tests dir used by run, gen, test and fetch alike.
func (s *session) layout() batch.Layout {
	return batch.NewLayout(s.dir)
}

func (s *session) timeout(cmd *cobra.Command) time.Duration {
	if cmd.Flags().Lookup("timeout") != nil && cmd.Flags().Changed("timeout") {
		secs, _ := cmd.Flags().GetInt("timeout")
		return time.Duration(secs) * time.Second
	}
	return s.cfg.RunTimeout()
}

// buildFlags are shared by build, run and test.
type buildFlags struct {
	target   string
	asan     *bool
	verbose  bool
	valgrind bool
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("target", "T", targets.DefaultName, "target name to build")
	cmd.Flags().BoolP("verbose", "v", false, "show the compiler command line")
	cmd.Flags().Bool("asan", false, "build with sanitizers")
	cmd.Flags().Bool("no-asan", false, "build without sanitizers")
	cmd.MarkFlagsMutuallyExclusive("asan", "no-asan")
}

func readBuildFlags(cmd *cobra.Command) buildFlags {
	var bf buildFlags
	bf.target, _ = cmd.Flags().GetString("target")
	bf.verbose, _ = cmd.Flags().GetBool("verbose")
	if cmd.Flags().Lookup("valgrind") != nil {
		bf.valgrind, _ = cmd.Flags().GetBool("valgrind")
	}
	on, off := true, false
	switch {
	case bf.valgrind:
		bf.asan = &off
	case cmd.Flags().Changed("no-asan"):
		bf.asan = &off
	case cmd.Flags().Changed("asan"):
		bf.asan = &on
	}
	return bf
}

// compile plans and builds the solution in the task dir.
func (s *session) compile(cmd *cobra.Command, bf buildFlags) (string, *build.Invocation, error) {
	tgt, err := s.target(bf.target)
	if err != nil {
		return "", nil, err
	}
	entries, err := build.ListDir(s.dir)
	if err != nil {
		return "", nil, err
	}
	inv, err := build.Plan(tgt, entries, build.Options{Asan: bf.asan})
	if err != nil {
		return "", nil, err
	}
	if bf.verbose {
		fmt.Fprintln(cmd.ErrOrStderr(), inv.CommandLine())
	}
	log.Info().Str("target", inv.Target).Strs("files", inv.Sources).Msg("compiling")
	bin, err := build.Compile(cmd.Context(), inv, s.dir, cmd.ErrOrStderr())
	if err != nil {
		return "", inv, err
	}
	log.Info().Str("file", inv.Output).Msg("successfully compiled")
	return bin, inv, nil
}

// candidate wraps a built binary, optionally under valgrind.
func (s *session) candidate(bin string, inv *build.Invocation, valgrind bool, timeout time.Duration) *runner.Program {
	argv := []string{bin}
	if valgrind {
		argv = append(append([]string{"valgrind"}, s.cfg.Run.ValgrindArgs...), bin)
	}
	return &runner.Program{Argv: argv, Dir: s.dir, Env: inv.RunEnv(), Timeout: timeout, Kind: "candidate"}
}

// script finds gen.* or solve.* (or override) and compiles C++ scripts into
// tmp with the default target's C++ settings.
func (s *session) script(ctx context.Context, name, override, kind, tmp string, timeout time.Duration) (*runner.Program, error) {
	path, err := runner.FindScript(s.dir, name, override)
	if err != nil {
		return nil, err
	}
	if runner.NeedsCompilation(path) {
		tgt, err := s.target(targets.DefaultName)
		if err != nil {
			return nil, err
		}
		log.Info().Str("file", path).Msgf("compiling %s", kind)
		path, err = build.Compile(ctx, build.PlanScript(tgt, path, tmp), s.dir, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", kind, err)
		}
	}
	p, err := runner.NewScript(path, kind, timeout)
	if err != nil {
		return nil, err
	}
	p.Dir = s.dir
	return p, nil
}

// recordBatch stores a batch summary when the store is enabled.
func (s *session) recordBatch(ctx context.Context, run *core.BatchRun) {
	if s.store == nil {
		return
	}
	run.Task = s.task.Name()
	if err := s.store.RecordBatch(ctx, run); err != nil {
		log.Debug().Err(err).Msg("cannot record batch")
	}
}

// readRange reads --range, accepting "-r 1,5", "-r 1 -r 5" and "-r 1 5".
// The last form consumes one positional argument.
func readRange(cmd *cobra.Command, args []string) (*batch.Range, []string, error) {
	vals, _ := cmd.Flags().GetIntSlice("range")
	switch {
	case len(vals) == 0:
		return nil, args, nil
	case len(vals) == 1 && len(args) > 0:
		hi, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, nil, fmt.Errorf("--range needs two numbers, got %q", args[0])
		}
		return &batch.Range{Lo: vals[0], Hi: hi}, args[1:], nil
	case len(vals) == 2:
		return &batch.Range{Lo: vals[0], Hi: vals[1]}, args, nil
	}
	return nil, nil, fmt.Errorf("--range needs two numbers")
}
