package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
)

// IncludeKey is the reserved top-level key listing files to include.
const IncludeKey = "include"

// Loader reads config files and their includes.
type Loader struct {
	fs     afero.Fs
	logger *log.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFs sets the filesystem files are read from.
func WithFs(fsys afero.Fs) Option {
	return func(l *Loader) { l.fs = fsys }
}

// WithLogger sets the logger used for include warnings.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader returns a Loader reading from the OS filesystem.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		fs:     afero.NewOsFs(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IncludeGraph tracks the files already loaded during one load operation.
// The same graph must be used for every file of that operation so that a file
// reached twice is only merged once.
type IncludeGraph struct {
	visited map[string]bool
}

// NewIncludeGraph returns an empty graph.
func NewIncludeGraph() *IncludeGraph {
	return &IncludeGraph{visited: map[string]bool{}}
}

// Visited reports whether path has been loaded.
func (g *IncludeGraph) Visited(path string) bool {
	return g.visited[canonicalPath(path)]
}

// Load reads the file at path together with everything it includes.
func (l *Loader) Load(path string) (Tree, error) {
	return l.LoadInto(Tree{}, path, NewIncludeGraph())
}

// LoadInto merges the file at path, and its includes, into a copy of
// existing. existing is not modified.
func (l *Loader) LoadInto(existing Tree, path string, graph *IncludeGraph) (Tree, error) {
	if graph == nil {
		graph = NewIncludeGraph()
	}
	tree := Clone(existing)
	if err := l.load(tree, canonicalPath(path), graph, nil); err != nil {
		return nil, err
	}
	return tree, nil
}

// LoadFiles merges the given files in order, skipping those that do not
// exist. All files share one include graph.
func (l *Loader) LoadFiles(paths ...string) (Tree, error) {
	tree := Tree{}
	graph := NewIncludeGraph()
	for _, p := range paths {
		p = canonicalPath(p)
		info, err := l.fs.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.logger.Debug("config file not found", "path", p)
				continue
			}
			return nil, fmt.Errorf("stat config file %s: %w", p, err)
		}
		if info.IsDir() {
			continue
		}
		if err := l.load(tree, p, graph, nil); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// LoadDefault merges the system and user config files.
func (l *Loader) LoadDefault() (Tree, error) {
	return l.LoadFiles(DefaultPaths()...)
}

// load merges path into tree in place. stack holds the files currently being
// loaded, outermost first.
func (l *Loader) load(tree Tree, path string, graph *IncludeGraph, stack []string) error {
	if slices.Contains(stack, path) {
		return &CyclicIncludeError{Path: path}
	}
	if graph.Visited(path) {
		l.logger.Warn(fmt.Sprintf("the file %q was included multiple times, but only the first occurrence was used", path))
		return nil
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	fragment, includes, err := decodeFragment(path, data)
	if err != nil {
		return err
	}

	Merge(tree, fragment)
	graph.visited[path] = true
	l.logger.Debug("loaded config file", "path", path, "includes", len(includes))

	stack = append(slices.Clone(stack), path)
	for _, include := range includes {
		matches, err := afero.Glob(l.fs, resolveInclude(path, include))
		if err != nil {
			return &ParseError{Path: path, Err: fmt.Errorf("include pattern %q: %w", include, err)}
		}
		for _, match := range matches {
			if err := l.load(tree, canonicalPath(match), graph, stack); err != nil {
				return err
			}
		}
	}
	return nil
}

// decodeFragment parses one file and splits off its include list.
func decodeFragment(path string, data []byte) (Tree, []string, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, nil, &ParseError{Path: path, Err: err}
	}
	if raw == nil {
		raw = Tree{}
	}
	fragment := normalize(raw).(Tree)

	value, ok := fragment[IncludeKey]
	if !ok {
		return fragment, nil, nil
	}
	delete(fragment, IncludeKey)

	var includes []string
	switch val := value.(type) {
	case string:
		includes = []string{val}
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, nil, &ParseError{Path: path, Err: fmt.Errorf("%s must be a list of strings", IncludeKey)}
			}
			includes = append(includes, s)
		}
	default:
		return nil, nil, &ParseError{Path: path, Err: fmt.Errorf("%s must be a list of strings", IncludeKey)}
	}
	return fragment, includes, nil
}
