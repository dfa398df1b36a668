// Package config loads the borg-summon configuration tree.
//
// Configuration is read from TOML files. A file may name other files in a
// top-level include list; each entry is a glob pattern, expanded relative to
// the including file, and matches are loaded depth-first in order. Later
// fragments override earlier ones: tables merge recursively, lists
// concatenate, anything else is replaced.
//
// Without an explicit file the default locations are used, in order:
// - /etc/borg-summon/config.toml
// - ~/.borg-summon/config.toml
//
// Values in the user file override values in the system file.
package config
