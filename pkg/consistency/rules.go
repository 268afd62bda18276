package consistency

import (
	"strings"
)

// FieldRules restricts which fields of a result take part in the comparison
// and appear in divergence logs. Paths are dotted object keys; a path walks
// through sequences transparently, so "items.secret" names the secret field
// of every element of items.
//
// Include, when non-empty, keeps only the listed paths. Exclude then drops
// paths from what is left.
type FieldRules struct {
	Include []string
	Exclude []string
}

func (r FieldRules) Empty() bool {
	return len(r.Include) == 0 && len(r.Exclude) == 0
}

// Apply filters tree in place where it can and returns the filtered tree.
func (r FieldRules) Apply(tree any) any {
	if len(r.Include) > 0 {
		tree = include(tree, splitPaths(r.Include))
	}
	for _, p := range splitPaths(r.Exclude) {
		exclude(tree, p)
	}
	return tree
}

func splitPaths(paths []string) [][]string {
	out := make([][]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, strings.Split(p, "."))
	}
	return out
}

func include(tree any, paths [][]string) any {
	switch t := tree.(type) {
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = include(elem, paths)
		}
		return out
	case map[string]any:
		rest := make(map[string][][]string)
		whole := make(map[string]bool)
		for _, p := range paths {
			if len(p) == 1 {
				whole[p[0]] = true
				continue
			}
			rest[p[0]] = append(rest[p[0]], p[1:])
		}
		out := make(map[string]any)
		for key, v := range t {
			switch {
			case whole[key]:
				out[key] = v
			case len(rest[key]) > 0:
				out[key] = include(v, rest[key])
			}
		}
		return out
	default:
		return tree
	}
}

func exclude(tree any, path []string) {
	switch t := tree.(type) {
	case []any:
		for _, elem := range t {
			exclude(elem, path)
		}
	case map[string]any:
		if len(path) == 1 {
			delete(t, path[0])
			return
		}
		if v, ok := t[path[0]]; ok {
			exclude(v, path[1:])
		}
	}
}
