// Package runner describes external program invocations and executes them.
package runner

import (
	"context"
	"slices"
	"strings"
)

// SudoProgram is the program used to run an invocation as another user.
const SudoProgram = "sudo"

// Invocation is one planned run of an external program.
type Invocation struct {
	// Program is the executable, looked up in PATH when it has no slash.
	Program string
	Args    []string
	// Env holds variables added to the process environment.
	Env map[string]string
	// Secrets names the Env entries whose values must never be printed.
	Secrets  []string
	Sudo     bool
	SudoUser string
}

// Runner executes invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) error
}

// EnvNames returns the names of inv.Env in sorted order.
func (inv Invocation) EnvNames() []string {
	names := make([]string, 0, len(inv.Env))
	for name := range inv.Env {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Argv returns the full command line, including the sudo prefix when the
// invocation runs under sudo. sudo reads its password from stdin (-S) and is
// told to keep the added environment variables.
func (inv Invocation) Argv() []string {
	argv := make([]string, 0, len(inv.Args)+6)
	if inv.Sudo {
		argv = append(argv, SudoProgram, "-S")
		if inv.SudoUser != "" {
			argv = append(argv, "-u", inv.SudoUser)
		}
		if len(inv.Env) > 0 {
			argv = append(argv, "--preserve-env="+strings.Join(inv.EnvNames(), ","))
		}
	}
	argv = append(argv, inv.Program)
	return append(argv, inv.Args...)
}

// Environ returns inv.Env as sorted KEY=VALUE pairs.
func (inv Invocation) Environ() []string {
	out := make([]string, 0, len(inv.Env))
	for _, name := range inv.EnvNames() {
		out = append(out, name+"="+inv.Env[name])
	}
	return out
}

// IsSecret reports whether the value of the env var name must be hidden.
func (inv Invocation) IsSecret(name string) bool {
	return slices.Contains(inv.Secrets, name)
}
