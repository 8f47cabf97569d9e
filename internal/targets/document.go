package targets

import (
	"errors"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	versionKey = "__version__"
	// DefaultName is the section every document must declare.
	DefaultName = "default"
)

// Document is one parsed targets.yaml layer.
type Document struct {
	Path    string          `json:"path"`
	Version int             `json:"version"`
	Default *Spec           `json:"default,omitempty"`
	Targets map[string]Spec `json:"targets,omitempty"`
	// Names keeps the declaration order of named targets.
	Names []string `json:"names,omitempty"`
}

// Lookup returns the named section. "default" is looked up in Default.
func (d *Document) Lookup(name string) (Spec, bool) {
	if d == nil {
		return Spec{}, false
	}
	if name == DefaultName {
		if d.Default == nil {
			return Spec{}, false
		}
		return *d.Default, true
	}
	s, ok := d.Targets[name]
	return s, ok
}

// Parse decodes a targets document. path is only used in errors.
func Parse(path string, data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, &ParseError{Path: path, Err: errors.New("empty document")}
	}
	m := root.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("line %d: top level must be a mapping", m.Line)}
	}

	doc := &Document{Path: path, Targets: map[string]Spec{}}
	hasDefault := false
	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]
		switch key.Value {
		case versionKey:
			v, err := parseVersion(val)
			if err != nil {
				return nil, &ParseError{Path: path, Err: err}
			}
			doc.Version = v
		case DefaultName:
			hasDefault = true
			spec, present, err := parseSpec(val)
			if err != nil {
				return nil, &ParseError{Path: path, Err: fmt.Errorf("target %q: %w", key.Value, err)}
			}
			if present {
				doc.Default = &spec
			}
		default:
			if _, dup := doc.Targets[key.Value]; dup {
				return nil, &ParseError{Path: path, Err: fmt.Errorf("line %d: duplicate target %q", key.Line, key.Value)}
			}
			spec, _, err := parseSpec(val)
			if err != nil {
				return nil, &ParseError{Path: path, Err: fmt.Errorf("target %q: %w", key.Value, err)}
			}
			doc.Targets[key.Value] = spec
			doc.Names = append(doc.Names, key.Value)
		}
	}
	if !hasDefault {
		return nil, &ParseError{Path: path, Err: errors.New("missing \"default\" section")}
	}
	return doc, nil
}

func parseVersion(n *yaml.Node) (int, error) {
	if n.Kind != yaml.ScalarNode {
		return 0, fmt.Errorf("line %d: %s must be an integer", n.Line, versionKey)
	}
	v, err := strconv.Atoi(n.Value)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("line %d: %s must be a positive integer, got %q", n.Line, versionKey, n.Value)
	}
	return v, nil
}

// parseSpec decodes a section. A null section is valid and reports present=false.
func parseSpec(n *yaml.Node) (spec Spec, present bool, err error) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return Spec{}, false, nil
	}
	if n.Kind != yaml.MappingNode {
		return Spec{}, false, fmt.Errorf("line %d: expected a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i]; !specKeys[k.Value] {
			return Spec{}, false, fmt.Errorf("line %d: unknown field %q", k.Line, k.Value)
		}
	}
	if err := n.Decode(&spec); err != nil {
		return Spec{}, false, err
	}
	return spec, true, nil
}

// IsStale reports whether a document version predates the current schema.
func IsStale(version, current int) bool {
	return version < current
}

// CheckStaleness reports whether doc was written for an older schema than
// the built-in one. Stale documents are never rewritten.
func CheckStaleness(doc *Document) bool {
	if doc == nil {
		return false
	}
	return IsStale(doc.Version, SchemaVersion())
}
