package config

import (
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// System and user config locations, lowest priority first.
const (
	SystemConfigFile = "/etc/borg-summon/config.toml"
	UserConfigFile   = "~/.borg-summon/config.toml"
)

// DefaultPaths returns the default config locations in merge order.
func DefaultPaths() []string {
	return []string{SystemConfigFile, ExpandPath(UserConfigFile)}
}

// ExpandPath expands a leading ~ to the current user's home directory.
// Paths it cannot expand, such as ~otheruser/x, are returned unchanged.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return p
	}
	return expanded
}

// resolveInclude turns an include pattern into an absolute pattern. Relative
// patterns are taken relative to the directory of the including file.
func resolveInclude(including, pattern string) string {
	pattern = ExpandPath(pattern)
	if filepath.IsAbs(pattern) {
		return filepath.Clean(pattern)
	}
	return filepath.Join(filepath.Dir(including), pattern)
}

// canonicalPath is the identity of a file in the include graph.
func canonicalPath(p string) string {
	p = ExpandPath(p)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
