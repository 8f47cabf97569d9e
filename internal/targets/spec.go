// Package targets loads layered targets.yaml documents and resolves named
// build targets against the effective default target.
package targets

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ItemKind tags an element of a list-valued field.
type ItemKind int

const (
	Literal ItemKind = iota
	// Inherit splices the lower layer's list in place of the element.
	Inherit
)

// Item is one element of a list-valued field.
type Item struct {
	Kind  ItemKind `json:"kind"`
	Value string   `json:"value,omitempty"`
}

// List is an optional ordered list. An unset list falls through to the lower
// layer, an empty set list overrides it with nothing.
type List struct {
	Set   bool   `json:"set"`
	Items []Item `json:"items,omitempty"`
}

// ListOf builds a set list of literal elements.
func ListOf(values ...string) List {
	l := List{Set: true, Items: make([]Item, 0, len(values))}
	for _, v := range values {
		l.Items = append(l.Items, Item{Kind: Literal, Value: v})
	}
	return l
}

// Strings returns the literal values. Inherit items are skipped.
func (l List) Strings() []string {
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		if it.Kind == Literal {
			out = append(out, it.Value)
		}
	}
	return out
}

// UnmarshalYAML tags the inherit marker once, at parse time. Only a first
// element equal to InheritMarker becomes Inherit; anywhere else it stays a
// literal string.
func (l *List) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: expected a list, got %s", value.Line, kindName(value.Kind))
	}
	items := make([]Item, 0, len(value.Content))
	for i, n := range value.Content {
		if n.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: list elements must be strings", n.Line)
		}
		if i == 0 && n.Value == InheritMarker {
			items = append(items, Item{Kind: Inherit})
			continue
		}
		items = append(items, Item{Kind: Literal, Value: n.Value})
	}
	l.Set = true
	l.Items = items
	return nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.ScalarNode:
		return "a scalar"
	case yaml.AliasNode:
		return "an alias"
	default:
		return "unexpected node"
	}
}

// Spec is one target section of a document. Nil fields are unset.
type Spec struct {
	Compiler    *string `yaml:"compiler" json:"compiler,omitempty"`
	CppCompiler *string `yaml:"cpp_compiler" json:"cpp_compiler,omitempty"`
	Std         *string `yaml:"std" json:"std,omitempty"`
	CppStd      *string `yaml:"cpp_std" json:"cpp_std,omitempty"`
	Flags       List    `yaml:"flags" json:"flags"`
	Files       List    `yaml:"files" json:"files"`
	Libs        List    `yaml:"libs" json:"libs"`
	Asm64bit    *bool   `yaml:"asm64bit" json:"asm64bit,omitempty"`
	DefaultAsan *bool   `yaml:"default_asan" json:"default_asan,omitempty"`
	Out         *string `yaml:"out" json:"out,omitempty"`
}

var specKeys = map[string]bool{
	"compiler": true, "cpp_compiler": true, "std": true, "cpp_std": true,
	"flags": true, "files": true, "libs": true,
	"asm64bit": true, "default_asan": true, "out": true,
}

// Target is a fully resolved target: every field is concrete and macros are
// substituted. It is built per invocation and never mutated afterwards.
type Target struct {
	Name        string
	TaskName    string
	Compiler    string
	CppCompiler string
	Std         string
	CppStd      string
	Flags       []string
	Files       []string
	Libs        []string
	Asm64bit    bool
	DefaultAsan bool
	Out         string
}

func (t *Target) String() string {
	return fmt.Sprintf("Target(%q, compiler=%q, cpp_compiler=%q, std=%q, cpp_std=%q, flags=%v, files=%v, libs=%v, asm64bit=%v, default_asan=%v, out=%q)",
		t.Name, t.Compiler, t.CppCompiler, t.Std, t.CppStd, t.Flags, t.Files, t.Libs, t.Asm64bit, t.DefaultAsan, t.Out)
}
