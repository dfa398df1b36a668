package config

import "fmt"

// CyclicIncludeError is returned when a config file is included, directly or
// through other files, by itself.
type CyclicIncludeError struct {
	// Path is the file that was requested while it was still being loaded.
	Path string
}

func (e *CyclicIncludeError) Error() string {
	return fmt.Sprintf("the config file %q includes itself", e.Path)
}

// ParseError is returned when a config file is not valid TOML or has a
// malformed include list.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse config file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
