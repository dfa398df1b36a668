package runner

import (
	"context"
	"fmt"
	"io"
	"strings"
)

const redacted = "<redacted>"

// PrintRunner writes each invocation as a shell command line instead of
// running it.
type PrintRunner struct {
	Out io.Writer
	// ShowSecrets prints secret env values instead of a placeholder.
	ShowSecrets bool
}

var _ Runner = (*PrintRunner)(nil)

// Run prints the invocation.
func (p *PrintRunner) Run(_ context.Context, inv Invocation) error {
	_, err := fmt.Fprintln(p.Out, p.Format(inv))
	return err
}

// Format renders inv as a single shell-quoted line, env assignments first.
func (p *PrintRunner) Format(inv Invocation) string {
	parts := make([]string, 0, len(inv.Env)+len(inv.Args)+6)
	for _, name := range inv.EnvNames() {
		value := inv.Env[name]
		if inv.IsSecret(name) && !p.ShowSecrets {
			value = redacted
		}
		parts = append(parts, name+"="+Quote(value))
	}
	for _, arg := range inv.Argv() {
		parts = append(parts, Quote(arg))
	}
	return strings.Join(parts, " ")
}

// Quote returns s quoted for a POSIX shell. Words made only of safe
// characters are returned as they are.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.IndexFunc(s, unsafeShellRune) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("@%+=:,./-_", r)
}
