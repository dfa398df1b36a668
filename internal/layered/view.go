package layered

import (
	"fmt"
	"strconv"
)

// Getter is the read side of a View. Planners depend on this rather than on
// the concrete type.
type Getter interface {
	Get(key string) (any, bool)
	GetOr(key string, def any) any
}

// View is a read-through stack of tables. Index 0 is a writable override
// layer; the remaining layers are tree nodes ordered from most to least
// specific. Tree nodes are never written through a View.
type View struct {
	layers []Table
}

var _ Getter = (*View)(nil)

// New builds a view over the prefix chain of path: the deepest table has the
// highest priority and root the lowest.
func New(root Table, path ...string) (*View, error) {
	chain, err := PrefixChain(root, path...)
	if err != nil {
		return nil, err
	}
	return FromChain(chain), nil
}

// Prioritized builds a view over two paths. Tables below the closest common
// ancestor on the primary path come first, then those below it on the
// secondary path, then the shared tables from the ancestor up to root.
func Prioritized(root Table, primary, secondary []string) (*View, error) {
	p, err := PrefixChain(root, primary...)
	if err != nil {
		return nil, err
	}
	s, err := PrefixChain(root, secondary...)
	if err != nil {
		return nil, err
	}
	return FromChains(p, s), nil
}

// FromChain builds a single-path view from an already resolved chain.
func FromChain(chain Chain) *View {
	layers := make([]Table, 0, len(chain)+1)
	layers = append(layers, Table{})
	for i := len(chain) - 1; i >= 0; i-- {
		layers = append(layers, chain[i])
	}
	return &View{layers: layers}
}

// FromChains merges two resolved chains the way Prioritized does. Chains that
// do not diverge (one is a prefix of the other) collapse to a single-path view
// over the longer one, preferring primary on equal length.
func FromChains(primary, secondary Chain) *View {
	n := min(len(primary), len(secondary))
	for i := 0; i < n; i++ {
		if sameTable(primary[i], secondary[i]) {
			continue
		}
		layers := make([]Table, 0, len(primary)+len(secondary)-i+1)
		layers = append(layers, Table{})
		for j := len(primary) - 1; j >= i; j-- {
			layers = append(layers, primary[j])
		}
		for j := len(secondary) - 1; j >= i; j-- {
			layers = append(layers, secondary[j])
		}
		for j := i - 1; j >= 0; j-- {
			layers = append(layers, primary[j])
		}
		return &View{layers: layers}
	}
	if len(secondary) > len(primary) {
		return FromChain(secondary)
	}
	return FromChain(primary)
}

// Get returns the value of key from the highest priority layer defining it.
func (v *View) Get(key string) (any, bool) {
	for _, layer := range v.layers {
		if value, ok := layer[key]; ok {
			return value, true
		}
	}
	return nil, false
}

// GetOr returns the value of key, or def when no layer defines it.
func (v *View) GetOr(key string, def any) any {
	if value, ok := v.Get(key); ok {
		return value
	}
	return def
}

// Set stores value in the override layer, above every tree node.
func (v *View) Set(key string, value any) {
	v.layers[0][key] = value
}

// Child returns a new view with t layered above all of v's layers.
func (v *View) Child(t Table) *View {
	layers := make([]Table, 0, len(v.layers)+2)
	layers = append(layers, Table{}, t)
	layers = append(layers, v.layers...)
	return &View{layers: layers}
}

// Lookup resolves the first key through the view and descends into nested
// tables for the rest. Absent keys and non-table intermediates report false.
func (v *View) Lookup(path ...string) (any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	current, ok := v.Get(path[0])
	if !ok {
		return nil, false
	}
	for _, key := range path[1:] {
		table, ok := current.(Table)
		if !ok {
			return nil, false
		}
		if current, ok = table[key]; !ok {
			return nil, false
		}
	}
	return current, true
}

// TypeError reports an option whose value has the wrong type.
type TypeError struct {
	Key  string
	Want string
	Got  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("option %q must be %s, got %T", e.Key, e.Want, e.Got)
}

// String returns a string option.
func (v *View) String(key string) (string, bool, error) {
	value, ok := v.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := value.(string)
	if !ok {
		return "", true, &TypeError{Key: key, Want: "a string", Got: value}
	}
	return s, true, nil
}

// StringOr returns a string option, or def when absent.
func (v *View) StringOr(key, def string) (string, error) {
	s, ok, err := v.String(key)
	if err != nil || !ok {
		return def, err
	}
	return s, nil
}

// Bool returns a boolean option, or def when absent.
func (v *View) Bool(key string, def bool) (bool, error) {
	value, ok := v.Get(key)
	if !ok {
		return def, nil
	}
	b, ok := value.(bool)
	if !ok {
		return def, &TypeError{Key: key, Want: "a boolean", Got: value}
	}
	return b, nil
}

// Scalar returns a string, integer, float or boolean option formatted as a
// command-line value.
func (v *View) Scalar(key string) (string, bool, error) {
	value, ok := v.Get(key)
	if !ok {
		return "", false, nil
	}
	switch val := value.(type) {
	case string:
		return val, true, nil
	case int64:
		return strconv.FormatInt(val, 10), true, nil
	case int:
		return strconv.Itoa(val), true, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	default:
		return "", true, &TypeError{Key: key, Want: "a scalar", Got: value}
	}
}

// Strings returns a list-of-strings option.
func (v *View) Strings(key string) ([]string, bool, error) {
	value, ok := v.Get(key)
	if !ok {
		return nil, false, nil
	}
	switch val := value.(type) {
	case []string:
		return append([]string(nil), val...), true, nil
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, true, &TypeError{Key: key, Want: "a list of strings", Got: value}
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, true, &TypeError{Key: key, Want: "a list of strings", Got: value}
	}
}

// Table returns a nested table option.
func (v *View) Table(key string) (Table, bool, error) {
	value, ok := v.Get(key)
	if !ok {
		return nil, false, nil
	}
	t, ok := value.(Table)
	if !ok {
		return nil, true, &TypeError{Key: key, Want: "a table", Got: value}
	}
	return t, true, nil
}
