package batch

import (
	"bytes"

	"github.com/pmezard/go-difflib/difflib"
)

// Normalize drops trailing spaces from every line and trailing newlines from
// the whole output.
func Normalize(b []byte) []byte {
	lines := bytes.Split(b, []byte("\n"))
	for i, l := range lines {
		lines[i] = bytes.TrimRight(l, " ")
	}
	return bytes.TrimRight(bytes.Join(lines, []byte("\n")), "\n")
}

// Equal compares outputs after normalization. Everything else is exact.
func Equal(expected, actual []byte) bool {
	return bytes.Equal(Normalize(expected), Normalize(actual))
}

// Diff renders a unified diff of the normalized outputs.
func Diff(expected, actual []byte) string {
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(Normalize(expected))),
		B:        difflib.SplitLines(string(Normalize(actual))),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	}
	s, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		return ""
	}
	return s
}
