// Package condition evaluates boolean condition trees against a nested
// key-value context.
package condition

import "strings"

// Resolve looks up a dotted path ("member.age") in ctx. It reports false
// when any segment is absent, when an intermediate value is not a map, or
// when the value found is nil. Missing data is never an error.
func Resolve(ctx map[string]any, path string) (any, bool) {
	if ctx == nil || path == "" {
		return nil, false
	}

	var current any = ctx
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return nil, false
		}
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := m[seg]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}

	if current == nil {
		return nil, false
	}
	return current, true
}
