// Package layered resolves options through the configuration tree.
//
// A View is an ordered stack of tables built from one or two key paths into the
// tree. Looking up a key returns the value from the most specific table that
// defines it, falling back toward the root. When two paths are combined, tables
// specific to the primary path win over tables specific to the secondary path,
// and both win over the tables they share above their closest common ancestor.
package layered
