// Package build turns a resolved target and a directory listing into a
// compiler invocation.
package build

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kokos-tools/kks/internal/targets"
)

// DefaultOutput is used when the target leaves `out` empty.
const DefaultOutput = "a.out"

var (
	ErrNoSourceFiles = errors.New("no source files found")
	ErrBuildFailed   = errors.New("build failed")
)

// AsanFlags are appended when sanitizers are enabled.
var AsanFlags = []string{
	"-fsanitize=address",
	"-fsanitize=undefined",
	"-fno-sanitize-recover=all",
}

// AsanEnv is added to the environment of binaries built with sanitizers.
var AsanEnv = []string{"ASAN_OPTIONS=color=always"}

var (
	cppSuffixes = []string{".cpp", ".cc", ".cxx", ".c++"}
	asmSuffixes = []string{".S", ".s"}
)

// Language of a whole invocation.
type Language string

const (
	C   Language = "c"
	Cpp Language = "c++"
)

// Options are caller overrides.
type Options struct {
	// Asan overrides the target's default_asan when set (--asan / --no-asan).
	Asan *bool
}

// Invocation is a planned compiler run. Planning has no side effects.
type Invocation struct {
	Target   string
	Language Language
	Compiler string
	Std      string
	Flags    []string
	Sources  []string
	Libs     []string
	// M32 is set when assembly sources are built in 32-bit mode.
	M32    bool
	Asan   bool
	Output string
}

// Args returns the compiler arguments, without the compiler itself.
func (inv *Invocation) Args() []string {
	var args []string
	if inv.Std != "" {
		args = append(args, "-std="+inv.Std)
	}
	args = append(args, inv.Flags...)
	if inv.M32 {
		args = append(args, "-m32")
	}
	if inv.Asan {
		args = append(args, AsanFlags...)
	}
	args = append(args, inv.Sources...)
	args = append(args, "-o", inv.Output)
	for _, lib := range inv.Libs {
		args = append(args, libArg(lib))
	}
	return args
}

// CommandLine renders the invocation for display.
func (inv *Invocation) CommandLine() string {
	return strings.Join(append([]string{inv.Compiler}, inv.Args()...), " ")
}

// RunEnv is the extra environment for the built binary.
func (inv *Invocation) RunEnv() []string {
	if inv.Asan {
		return AsanEnv
	}
	return nil
}

func libArg(lib string) string {
	if strings.HasPrefix(lib, "-") {
		return lib
	}
	return "-l" + lib
}

// Plan matches the target's file globs against entries (paths relative to
// the task directory) and selects compiler, flags and libraries.
func Plan(t *targets.Target, entries []string, opts Options) (*Invocation, error) {
	sources, err := matchSources(t.Files, entries)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w (patterns: %s)", ErrNoSourceFiles, strings.Join(t.Files, ", "))
	}

	inv := &Invocation{
		Target:   t.Name,
		Language: C,
		Compiler: t.Compiler,
		Std:      t.Std,
		Flags:    append([]string{}, t.Flags...),
		Sources:  sources,
		Libs:     dedup(t.Libs),
		Asan:     t.DefaultAsan,
		Output:   t.Out,
	}
	if anySuffix(sources, cppSuffixes) {
		inv.Language = Cpp
		inv.Compiler = t.CppCompiler
		inv.Std = t.CppStd
	}
	inv.M32 = anySuffix(sources, asmSuffixes) && !t.Asm64bit
	if opts.Asan != nil {
		inv.Asan = *opts.Asan
	}
	if inv.Output == "" {
		inv.Output = DefaultOutput
	}
	return inv, nil
}

// PlanScript compiles a single C++ helper (generator or solution) into
// outDir with the target's C++ settings and no sanitizers.
func PlanScript(t *targets.Target, source, outDir string) *Invocation {
	return &Invocation{
		Target:   t.Name,
		Language: Cpp,
		Compiler: t.CppCompiler,
		Std:      t.CppStd,
		Flags:    []string{"-O2"},
		Sources:  []string{source},
		Libs:     dedup(t.Libs),
		Output:   filepath.Join(outDir, strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))+".out"),
	}
}

func matchSources(patterns, entries []string) ([]string, error) {
	sorted := append([]string{}, entries...)
	sort.Strings(sorted)
	seen := map[string]bool{}
	var out []string
	for _, p := range patterns {
		p = filepath.ToSlash(p)
		for _, e := range sorted {
			ok, err := filepath.Match(p, filepath.ToSlash(e))
			if err != nil {
				return nil, fmt.Errorf("bad file pattern %q: %w", p, err)
			}
			if ok && !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func anySuffix(files, suffixes []string) bool {
	for _, f := range files {
		ext := filepath.Ext(f)
		for _, s := range suffixes {
			if ext == s {
				return true
			}
		}
	}
	return false
}

// dedup keeps the first occurrence of every element.
func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// ListDir returns the regular files directly inside dir.
func ListDir(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var out []string
	for _, e := range ents {
		if e.Type().IsRegular() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
