// Package batch generates test artifacts and runs a candidate binary
// against them, one index at a time.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// TestsDir is the task-local directory holding test artifacts.
const TestsDir = "tests"

// Input and output suffixes pair up by position: 001.in/001.out,
// 001/001.a, 001.dat/001.ans.
var (
	inputSuffixes  = []string{".in", "", ".dat"}
	outputSuffixes = []string{".out", ".a", ".ans"}
)

// Name returns the artifact base name of a test index, zero-padded to three
// digits. Index 0 is the sample.
func Name(index int) string {
	return fmt.Sprintf("%03d", index)
}

// IndexOf parses an artifact base name back into an index.
func IndexOf(name string) (int, bool) {
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 {
		return -1, false
	}
	return n, true
}

// OutputSuffix returns the expected-output suffix matching an input suffix.
func OutputSuffix(inputSuffix string) string {
	for i, s := range inputSuffixes {
		if s == inputSuffix {
			return outputSuffixes[i]
		}
	}
	return outputSuffixes[0]
}

func isInputSuffix(s string) bool  { return contains(inputSuffixes, s) }
func isOutputSuffix(s string) bool { return contains(outputSuffixes, s) }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Pair is an input artifact and its expected output. Output is empty when
// no expected output exists yet.
type Pair struct {
	Name   string
	Input  string
	Output string
}

// Index returns the numeric index of the pair, or -1 for non-numeric names.
func (p Pair) Index() int {
	n, _ := IndexOf(p.Name)
	return n
}

// Layout locates test artifacts of one task.
type Layout struct {
	Dir string
}

// NewLayout returns the layout of the tests dir inside taskDir.
func NewLayout(taskDir string) Layout {
	return Layout{Dir: filepath.Join(taskDir, TestsDir)}
}

// DefaultPair is the .in/.out pair used for a test that does not exist yet.
func (l Layout) DefaultPair(index int) Pair {
	name := Name(index)
	return Pair{
		Name:   name,
		Input:  filepath.Join(l.Dir, name+inputSuffixes[0]),
		Output: filepath.Join(l.Dir, name+outputSuffixes[0]),
	}
}

// Pairs finds existing inputs and their outputs. A nil names slice scans
// the whole directory; otherwise only the given base names are considered.
// The result is sorted by name.
func (l Layout) Pairs(names []string) ([]Pair, error) {
	var files []string
	if names == nil {
		ents, err := os.ReadDir(l.Dir)
		if err != nil {
			return nil, fmt.Errorf("read tests dir: %w", err)
		}
		for _, e := range ents {
			files = append(files, filepath.Join(l.Dir, e.Name()))
		}
	} else {
		for _, n := range names {
			for _, ext := range inputSuffixes {
				files = append(files, filepath.Join(l.Dir, n+ext))
			}
			for _, ext := range outputSuffixes {
				files = append(files, filepath.Join(l.Dir, n+ext))
			}
		}
	}

	var inputs []string
	outputs := map[string][]string{}
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		ext := filepath.Ext(f)
		stem := strings.TrimSuffix(filepath.Base(f), ext)
		if isInputSuffix(ext) {
			inputs = append(inputs, f)
		}
		if isOutputSuffix(ext) {
			outputs[stem] = append(outputs[stem], f)
		}
	}

	seen := map[string]bool{}
	var pairs []Pair
	for _, in := range inputs {
		if seen[in] {
			continue
		}
		seen[in] = true
		ext := filepath.Ext(in)
		stem := strings.TrimSuffix(filepath.Base(in), ext)
		pairs = append(pairs, Pair{Name: stem, Input: in, Output: pickOutput(in, outputs[stem])})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Name != pairs[j].Name {
			return pairs[i].Name < pairs[j].Name
		}
		return pairs[i].Input < pairs[j].Input
	})
	return pairs, nil
}

// FindOutput returns the expected output of an arbitrary input file, or
// empty when there is none.
func FindOutput(input string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	var found []string
	for _, s := range outputSuffixes {
		p := base + s
		if p == input {
			continue
		}
		if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
			found = append(found, p)
		}
	}
	return pickOutput(input, found)
}

func pickOutput(input string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	ext := filepath.Ext(input)
	want := strings.TrimSuffix(input, ext) + OutputSuffix(ext)
	for _, c := range candidates {
		if c == want {
			return c
		}
	}
	return candidates[0]
}

// writeFileAtomic replaces path with content via a temp file in the same dir.
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
