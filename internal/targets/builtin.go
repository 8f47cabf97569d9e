package targets

import (
	_ "embed"
	"sync"
)

//go:embed data/targets.yaml
var builtinYAML []byte

var (
	builtinOnce sync.Once
	builtinDoc  *Document
)

// Builtin returns the document shipped with the binary. Its default target
// sets every field.
func Builtin() *Document {
	builtinOnce.Do(func() {
		doc, err := Parse("<builtin>", builtinYAML)
		if err != nil {
			panic(err)
		}
		builtinDoc = doc
	})
	return builtinDoc
}

// BuiltinYAML returns the raw built-in document, used by `kks init --config`.
func BuiltinYAML() []byte {
	out := make([]byte, len(builtinYAML))
	copy(out, builtinYAML)
	return out
}

// SchemaVersion is the version of the built-in document.
func SchemaVersion() int { return Builtin().Version }
