package marc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	noIndex  = -1
	wildcard = -2
)

// step is one segment of a source path: a key, optionally followed by an array index
type step struct {
	key   string
	index int
}

// match is one scalar selected by a path. Occurrence is the array index taken at the
// first wildcard of the path, or noIndex when the path has none.
type match struct {
	occurrence int
	value      string
}

// parsePath parses "$.a.b[*].c" / "$.a[0]" style paths
func parsePath(path string) ([]step, error) {
	if path != "$" && !strings.HasPrefix(path, "$.") {
		return nil, fmt.Errorf("path %q must start with $.", path)
	}
	rest := strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if rest == "" {
		return nil, nil
	}

	var steps []step
	for _, seg := range strings.Split(rest, ".") {
		s := step{key: seg, index: noIndex}
		if open := strings.IndexByte(seg, '['); open >= 0 {
			if !strings.HasSuffix(seg, "]") {
				return nil, fmt.Errorf("path %q has an unterminated index", path)
			}
			s.key = seg[:open]
			idx := seg[open+1 : len(seg)-1]
			if idx == "*" {
				s.index = wildcard
			} else {
				n, err := strconv.Atoi(idx)
				if err != nil || n < 0 {
					return nil, fmt.Errorf("path %q has invalid index %q", path, idx)
				}
				s.index = n
			}
		}
		if s.key == "" {
			return nil, fmt.Errorf("path %q has an empty segment", path)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// selectPath evaluates a path against a decoded JSON tree. Non-scalar and null
// results are skipped.
func selectPath(tree any, path string) ([]match, error) {
	steps, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	var out []match
	walk(tree, steps, noIndex, &out)
	return out, nil
}

func walk(node any, steps []step, occurrence int, out *[]match) {
	if len(steps) == 0 {
		if v, ok := scalar(node); ok {
			*out = append(*out, match{occurrence: occurrence, value: v})
		}
		return
	}

	obj, ok := node.(map[string]any)
	if !ok {
		return
	}
	child, ok := obj[steps[0].key]
	if !ok {
		return
	}

	switch idx := steps[0].index; idx {
	case noIndex:
		walk(child, steps[1:], occurrence, out)
	case wildcard:
		arr, ok := child.([]any)
		if !ok {
			return
		}
		for i, elem := range arr {
			occ := occurrence
			if occ == noIndex {
				occ = i
			}
			walk(elem, steps[1:], occ, out)
		}
	default:
		arr, ok := child.([]any)
		if !ok || idx >= len(arr) {
			return
		}
		walk(arr[idx], steps[1:], occurrence, out)
	}
}

func scalar(node any) (string, bool) {
	switch v := node.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return "", false
	}
}
