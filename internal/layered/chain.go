package layered

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Table is one node of the configuration tree.
type Table = map[string]any

// ErrMissingKey is matched by every MissingKeyError.
var ErrMissingKey = errors.New("missing key")

// MissingKeyError reports a key path that does not exist in the tree.
type MissingKeyError struct {
	// Path is the full path that was requested.
	Path []string
	// Key is the first key that could not be resolved.
	Key string
	// NotTable is set when the key exists but its value is not a table.
	NotTable bool
}

func (e *MissingKeyError) Error() string {
	if e.NotTable {
		return fmt.Sprintf("config key %q in path %q is not a table", e.Key, strings.Join(e.Path, "."))
	}
	return fmt.Sprintf("config key %q in path %q does not exist", e.Key, strings.Join(e.Path, "."))
}

// Is makes errors.Is(err, ErrMissingKey) true.
func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// Chain is the list of tables met while descending a key path, root first.
type Chain []Table

// PrefixChain returns [root, root[k0], root[k0][k1], ...] for the given path.
// The result always has len(path)+1 entries.
func PrefixChain(root Table, path ...string) (Chain, error) {
	chain := make(Chain, 0, len(path)+1)
	chain = append(chain, root)
	current := root
	for _, key := range path {
		value, ok := current[key]
		if !ok {
			return nil, &MissingKeyError{Path: copyPath(path), Key: key}
		}
		next, ok := value.(Table)
		if !ok {
			return nil, &MissingKeyError{Path: copyPath(path), Key: key, NotTable: true}
		}
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}

// Append returns a new chain with the given tables added below the deepest one.
func (c Chain) Append(tables ...Table) Chain {
	out := make(Chain, 0, len(c)+len(tables))
	out = append(out, c...)
	return append(out, tables...)
}

// Splice returns a new chain with tables inserted before index i, so they
// rank below everything deeper than i-1. Splice(len(c), ...) is Append.
func (c Chain) Splice(i int, tables ...Table) Chain {
	i = max(0, min(i, len(c)))
	out := make(Chain, 0, len(c)+len(tables))
	out = append(out, c[:i]...)
	out = append(out, tables...)
	return append(out, c[i:]...)
}

// sameTable compares tables by identity. Two distinct tables with equal
// contents are different nodes of the tree.
func sameTable(a, b Table) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func copyPath(path []string) []string {
	return append([]string(nil), path...)
}
