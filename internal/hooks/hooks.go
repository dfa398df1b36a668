// Package hooks plans and runs user hook commands.
package hooks

import (
	"context"
	"fmt"

	"github.com/mattn/go-shellwords"

	"github.com/nibzard/borg-summon/internal/borg"
	"github.com/nibzard/borg-summon/internal/runner"
)

// Hook table keys that name a hook relative to the source view.
const (
	PreCreate  = "pre_create_hook"
	PostCreate = "post_create_hook"
	Alert      = "alert_hook"
)

// Plan builds the invocation for a hook. opts is the hook table layered over
// its surrounding view, so sudo and sudo_user are inherited unless the hook
// sets them itself.
//
// command may carry its own arguments ("dump-db.sh --all"); they come
// before the args list, which comes before tail.
func Plan(opts borg.Options, tail ...string) (runner.Invocation, error) {
	command, ok, err := opts.String("command")
	if err != nil {
		return runner.Invocation{}, err
	}
	if !ok {
		return runner.Invocation{}, &borg.InvalidConfigError{Message: `The "command" option is required for hooks.`}
	}
	words, err := shellwords.Parse(command)
	if err != nil {
		return runner.Invocation{}, &borg.InvalidConfigError{Message: fmt.Sprintf("The hook command %q cannot be parsed: %v.", command, err)}
	}
	if len(words) == 0 {
		return runner.Invocation{}, &borg.InvalidConfigError{Message: `The "command" option of a hook must not be empty.`}
	}

	extra, _, err := opts.Strings("args")
	if err != nil {
		return runner.Invocation{}, err
	}
	sudo, err := opts.Bool("sudo", false)
	if err != nil {
		return runner.Invocation{}, err
	}
	sudoUser, err := opts.StringOr("sudo_user", "")
	if err != nil {
		return runner.Invocation{}, err
	}

	args := make([]string, 0, len(words)-1+len(extra)+len(tail))
	args = append(args, words[1:]...)
	args = append(args, extra...)
	args = append(args, tail...)
	return runner.Invocation{
		Program:  words[0],
		Args:     args,
		Sudo:     sudo,
		SudoUser: sudoUser,
	}, nil
}

// Run plans the hook and hands it to r.
func Run(ctx context.Context, r runner.Runner, opts borg.Options, tail ...string) error {
	inv, err := Plan(opts, tail...)
	if err != nil {
		return err
	}
	if err := r.Run(ctx, inv); err != nil {
		return fmt.Errorf("hook %s failed: %w", inv.Program, err)
	}
	return nil
}
