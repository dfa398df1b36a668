package config

import (
	"sort"

	"github.com/nibzard/borg-summon/internal/layered"
)

// Tree is a decoded configuration: string keys mapping to scalars, lists or
// nested trees.
type Tree = layered.Table

// Lookup walks keys from t and reports false as soon as a key is absent or a
// value on the way is not a table.
func Lookup(t Tree, keys ...string) (any, bool) {
	var current any = t
	for _, key := range keys {
		table, ok := current.(Tree)
		if !ok {
			return nil, false
		}
		if current, ok = table[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

// Clone returns a deep copy of t. Tables and lists are copied, scalars are
// shared, and arrays of tables come back as []any.
func Clone(t Tree) Tree {
	if t == nil {
		return Tree{}
	}
	return cloneValue(t).(Tree)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Tree:
		out := make(Tree, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// normalize rewrites decoder output so that every table is a Tree and every
// array is a []any. Arrays of tables come out of the TOML decoder as
// []map[string]interface{}.
func normalize(v any) any {
	switch val := v.(type) {
	case Tree:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	default:
		return v
	}
}

// Subtree returns the table at keys. ok is false when a key is absent; a
// value on the way that is not a table is an error.
func Subtree(t Tree, keys ...string) (Tree, bool, error) {
	current := t
	for i, key := range keys {
		value, ok := current[key]
		if !ok {
			return nil, false, nil
		}
		next, ok := value.(Tree)
		if !ok {
			return nil, false, &layered.MissingKeyError{Path: append([]string(nil), keys[:i+1]...), Key: key, NotTable: true}
		}
		current = next
	}
	return current, true, nil
}

// TableNames returns the sorted keys of t whose values are tables. Other
// entries of a named collection such as remotes are shared options.
func TableNames(t Tree) []string {
	names := make([]string, 0, len(t))
	for name, value := range t {
		if _, ok := value.(Tree); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
