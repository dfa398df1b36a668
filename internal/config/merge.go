package config

import "reflect"

// Merge deep-merges other into target, modifying target in place.
//
// For each key of other: two tables merge recursively, two lists concatenate
// (target's items first), and in every other case other's value replaces
// target's. Values taken from other are copied, so later merges into target
// never reach other.
func Merge(target, other Tree) {
	for key, value := range other {
		current, exists := target[key]
		if exists {
			if dst, ok := current.(Tree); ok {
				if src, ok := value.(Tree); ok {
					Merge(dst, src)
					continue
				}
			}
			if dst, ok := asList(current); ok {
				if src, ok := asList(value); ok {
					merged := make([]any, 0, len(dst)+len(src))
					merged = append(merged, dst...)
					merged = append(merged, cloneValue(src).([]any)...)
					target[key] = merged
					continue
				}
			}
		}
		target[key] = cloneValue(value)
	}
}

// asList accepts any slice except byte slices, which are string-like and
// must never be concatenated.
func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []byte:
		return nil, false
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = cloneValue(rv.Index(i).Interface())
	}
	return out, true
}
