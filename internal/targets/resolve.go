package targets

import "fmt"

// Resolver merges the built-in, workspace-global and directory-local layers.
type Resolver struct {
	Builtin *Document
	Macros  Macros
}

// NewResolver returns a resolver over the built-in document.
func NewResolver(taskName string) *Resolver {
	return &Resolver{Builtin: Builtin(), Macros: Macros{TaskName: taskName}}
}

// EffectiveDefault overlays the global and then the local default section
// onto the built-in default. It is the inherit source for named targets.
func (r *Resolver) EffectiveDefault(global, local *Document) Spec {
	eff, _ := r.Builtin.Lookup(DefaultName)
	eff = Overlay(Spec{}, eff)
	for _, doc := range []*Document{global, local} {
		if s, ok := doc.Lookup(DefaultName); ok {
			eff = Overlay(eff, s)
		}
	}
	return eff
}

// Resolve builds the named target. Global and local may be nil.
func (r *Resolver) Resolve(name string, global, local *Document) (*Target, error) {
	if name == "" {
		name = DefaultName
	}
	spec := r.EffectiveDefault(global, local)
	if name != DefaultName {
		eff := spec
		found := false
		// Lower layers first, so a local section overlays a global one of
		// the same name field by field. A leading DEFAULT always refers to
		// the effective default, never to a lower section of the same name.
		for _, doc := range []*Document{r.Builtin, global, local} {
			if s, ok := doc.Lookup(name); ok {
				spec = Overlay(spec, anchor(s, eff))
				found = true
			}
		}
		if !found {
			return nil, &UnknownTargetError{Name: name}
		}
	}
	return r.finish(name, spec)
}

// anchor splices eff into every list of s that starts with the inherit marker.
func anchor(s, eff Spec) Spec {
	if s.Flags.Set {
		s.Flags = Splice(s.Flags, eff.Flags)
	}
	if s.Files.Set {
		s.Files = Splice(s.Files, eff.Files)
	}
	if s.Libs.Set {
		s.Libs = Splice(s.Libs, eff.Libs)
	}
	return s
}

func (r *Resolver) finish(name string, s Spec) (*Target, error) {
	if s.Compiler == nil || s.CppCompiler == nil || s.Std == nil || s.CppStd == nil ||
		s.Asm64bit == nil || s.DefaultAsan == nil || s.Out == nil || !s.Files.Set || !s.Flags.Set || !s.Libs.Set {
		return nil, fmt.Errorf("target %q: incomplete after resolution", name)
	}
	m := r.Macros
	return &Target{
		Name:        name,
		TaskName:    m.TaskName,
		Compiler:    m.String(*s.Compiler),
		CppCompiler: m.String(*s.CppCompiler),
		Std:         m.String(*s.Std),
		CppStd:      m.String(*s.CppStd),
		Flags:       m.List(s.Flags),
		Files:       m.List(s.Files),
		Libs:        m.List(s.Libs),
		Asm64bit:    *s.Asm64bit,
		DefaultAsan: *s.DefaultAsan,
		Out:         m.String(*s.Out),
	}, nil
}

// Names lists target names from every layer, default first, without duplicates.
func Names(docs ...*Document) []string {
	seen := map[string]bool{DefaultName: true}
	names := []string{DefaultName}
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, n := range doc.Names {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	return names
}
