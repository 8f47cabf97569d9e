package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kokos-tools/kks/internal/batch"
	"github.com/kokos-tools/kks/internal/build"
	"github.com/kokos-tools/kks/internal/runner"
	"github.com/kokos-tools/kks/internal/targets"
	"github.com/kokos-tools/kks/internal/workspace"
)

const globalHeader = "# This is the workspace config file, it is used in any subdirectory of the workspace.\n" +
	"# You can modify the default target here (the changes apply only to this workspace).\n" +
	"# Targets can also be added or overridden by a targets.yaml file in a task directory.\n\n"

// Initialize a workspace or write a targets config
func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a kks workspace in the current directory",
		Example: `  kks init
  kks init --config          # write targets.yaml to the current directory
  kks init --config=update   # write targets.yaml.default for a manual merge
  kks init --config=global   # write targets.yaml to the workspace root`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			mode, _ := cmd.Flags().GetString("config")
			out := cmd.OutOrStdout()
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			if mode != "" {
				return writeTargetsConfig(out, cwd, mode, force)
			}

			if !force {
				if ws, err := workspace.Find(cwd); err == nil {
					fmt.Fprintf(out, "Found workspace in directory %s\nIf you are sure you want to create workspace here, specify --force\n", ws)
					return nil
				}
			}
			existed, err := workspace.Init(cwd)
			if err != nil {
				return err
			}
			action := "Initialized"
			if existed {
				action = "Updated"
			}
			fmt.Fprintf(out, "%s workspace in directory %s\n", action, cwd)
			return nil
		},
	}
	cmd.Flags().BoolP("force", "f", false, "create the workspace even inside another one, overwrite targets.yaml")
	cmd.Flags().StringP("config", "c", "", "write targets.yaml and exit (local, update or global)")
	cmd.Flags().Lookup("config").NoOptDefVal = "local"
	return cmd
}

func writeTargetsConfig(out io.Writer, cwd, mode string, force bool) error {
	dir := cwd
	var isGlobal bool
	switch mode {
	case "global":
		ws, err := workspace.Find(cwd)
		if err != nil {
			return fmt.Errorf("--config=global: %w (run `kks init` first)", err)
		}
		dir, isGlobal = ws, true
	case "local", "update":
		_, err := os.Stat(filepath.Join(cwd, workspace.MarkerFile))
		isGlobal = err == nil
	default:
		return fmt.Errorf("unknown --config value %q (want local, update or global)", mode)
	}

	file := filepath.Join(dir, targets.FileName)
	if mode == "update" {
		file += ".default"
	} else if st, err := os.Stat(file); err == nil {
		if !st.Mode().IsRegular() {
			return fmt.Errorf("%s exists and is not a file", file)
		}
		if !force {
			return fmt.Errorf("%s already exists; use --force to overwrite it or --config=update to write a copy", file)
		}
	}

	data := targets.BuiltinYAML()
	if isGlobal {
		data = append([]byte(globalHeader), data...)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	if mode == "update" {
		fmt.Fprintf(out, "New default targets are written to %s, merge them into %s manually\n", file, targets.FileName)
	} else {
		fmt.Fprintf(out, "Default targets are written to %s\nThe config file is not updated automatically.\n", file)
	}
	return nil
}

// Show resolved targets
func newTargetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "target [NAME]",
		Short: "Show a resolved target and the compiler command it produces",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			out := cmd.OutOrStdout()

			if list, _ := cmd.Flags().GetBool("list"); list {
				for _, name := range targets.Names(targets.Builtin(), s.global, s.local) {
					var layers []string
					for _, l := range []struct {
						name string
						doc  *targets.Document
					}{{"builtin", targets.Builtin()}, {"global", s.global}, {"local", s.local}} {
						if _, ok := l.doc.Lookup(name); ok {
							layers = append(layers, l.name)
						}
					}
					fmt.Fprintf(out, "%s\t%s\n", name, strings.Join(layers, ","))
				}
				return nil
			}

			name := targets.DefaultName
			if len(args) == 1 {
				name = args[0]
			}
			tgt, err := s.target(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "task: %s\n%s\n", s.task.Name(), tgt)
			entries, err := build.ListDir(s.dir)
			if err != nil {
				return err
			}
			inv, err := build.Plan(tgt, entries, build.Options{})
			if errors.Is(err, build.ErrNoSourceFiles) {
				fmt.Fprintf(out, "command: none (%v)\n", err)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "command: %s\n", inv.CommandLine())
			return nil
		},
	}
	cmd.Flags().Bool("list", false, "list target names from every config layer")
	return cmd
}

// Build the solution
func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the solution in the current directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()
			_, _, err = s.compile(cmd, readBuildFlags(cmd))
			return err
		},
	}
	addBuildFlags(cmd)
	return cmd
}

// Build and run the solution once
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [-- ARGS...]",
		Short: "Build and run the solution",
		Example: `  kks run
  kks run -s
  kks run -t 10
  kks run -f tests/000.in
  kks run < tests/000.in > output.txt
  kks run -- arg_1 arg_2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sample, _ := cmd.Flags().GetBool("sample")
			test, _ := cmd.Flags().GetString("test")
			file, _ := cmd.Flags().GetString("file")
			n := 0
			for _, set := range []bool{sample, test != "", file != ""} {
				if set {
					n++
				}
			}
			if n > 1 {
				return errors.New("specify either --test, --file or --sample as input, not multiple")
			}

			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			var input string
			switch {
			case file != "":
				input = file
			case sample:
				test = "0"
				fallthrough
			case test != "":
				input, err = findTestInput(s.layout(), test)
				if err != nil {
					return err
				}
			}

			bf := readBuildFlags(cmd)
			bin, inv, err := s.compile(cmd, bf)
			if err != nil {
				return err
			}

			var stdin io.Reader = os.Stdin
			if input != "" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				stdin = f
			}
			if len(args) > 0 {
				log.Info().Strs("args", args).Msg("running binary with arguments")
			}
			prog := s.candidate(bin, inv, bf.valgrind, 0)
			res, err := runner.Run(cmd.Context(), runner.Command{
				Path:   prog.Argv[0],
				Args:   append(prog.Argv[1:], args...),
				Dir:    s.dir,
				Env:    prog.Env,
				Stdin:  stdin,
				Stdout: cmd.OutOrStdout(),
				Stderr: cmd.ErrOrStderr(),
				Kind:   prog.Kind,
			})
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				return &exitCodeError{code: res.ExitCode}
			}
			return nil
		},
	}
	addBuildFlags(cmd)
	cmd.Flags().BoolP("valgrind", "g", false, "run under valgrind (disables asan)")
	cmd.Flags().BoolP("sample", "s", false, "use the sample test as input")
	cmd.Flags().StringP("test", "t", "", "test number to use as input")
	cmd.Flags().StringP("file", "f", "", "file to use as input")
	return cmd
}

func findTestInput(l batch.Layout, test string) (string, error) {
	idx, err := strconv.Atoi(test)
	if err != nil {
		return "", fmt.Errorf("bad test number %q", test)
	}
	pairs, err := l.Pairs([]string{batch.Name(idx)})
	if err != nil {
		return "", err
	}
	if len(pairs) == 0 {
		return "", fmt.Errorf("test %s not found in %s", batch.Name(idx), l.Dir)
	}
	return pairs[0].Input, nil
}
