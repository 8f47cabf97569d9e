package targets

import "strings"

const (
	// TaskNameMacro is replaced by the task name inside string values.
	TaskNameMacro = "TASKNAME"
	// InheritMarker, as the first list element, splices in the default list.
	InheritMarker = "DEFAULT"
)

// Macros is the substitution context of one invocation.
type Macros struct {
	TaskName string
}

// String substitutes every occurrence of TaskNameMacro.
func (m Macros) String(s string) string {
	if m.TaskName == "" {
		return s
	}
	return strings.ReplaceAll(s, TaskNameMacro, m.TaskName)
}

// List substitutes the task name in every element. A leading Inherit item
// left unspliced is kept as the literal marker. Expanding the result again
// changes nothing.
func (m Macros) List(l List) []string {
	out := make([]string, 0, len(l.Items))
	for _, it := range l.Items {
		out = append(out, m.String(it.Value))
	}
	return out
}

// Splice resolves a leading Inherit item of l against base. Unset l yields
// base unchanged.
func Splice(l, base List) List {
	if !l.Set {
		return base
	}
	if len(l.Items) == 0 || l.Items[0].Kind != Inherit {
		return cloneList(l)
	}
	items := make([]Item, 0, len(base.Items)+len(l.Items)-1)
	items = append(items, base.Items...)
	items = append(items, l.Items[1:]...)
	return List{Set: true, Items: items}
}

func cloneList(l List) List {
	if !l.Set {
		return List{}
	}
	items := make([]Item, len(l.Items))
	copy(items, l.Items)
	return List{Set: true, Items: items}
}
