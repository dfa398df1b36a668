// Package borg plans borg invocations from layered configuration.
//
// Every planner reads its options through an Options view, emits a flag only
// when the option is present (booleans only when true) and returns a
// runner.Invocation. Nothing here runs a process.
package borg

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/runner"
)

// DefaultProgram is used when borg_path is not set.
const DefaultProgram = "borg"

// Environment variables understood by borg.
const (
	EnvRSH               = "BORG_RSH"
	EnvPassphrase        = "BORG_PASSPHRASE"
	EnvDisplayPassphrase = "BORG_DISPLAY_PASSPHRASE"
	EnvPasscommand       = "BORG_PASSCOMMAND"
)

// LogLevels are the accepted values of log_level, each passed as --<level>.
var LogLevels = []string{"critical", "error", "warning", "info", "debug", "verbose"}

// Options is the layered configuration an invocation is planned from.
type Options interface {
	Get(key string) (any, bool)
	Lookup(path ...string) (any, bool)
	String(key string) (string, bool, error)
	StringOr(key, def string) (string, error)
	Bool(key string, def bool) (bool, error)
	Scalar(key string) (string, bool, error)
	Strings(key string) ([]string, bool, error)
}

// InvalidConfigError is a configuration problem that prevents planning.
type InvalidConfigError struct {
	Message string
}

func (e *InvalidConfigError) Error() string {
	return e.Message
}

func invalidf(format string, args ...any) error {
	return &InvalidConfigError{Message: fmt.Sprintf(format, args...)}
}

// CommonArgsAndEnv returns the flags and environment shared by every borg
// subcommand for repoName on remote.
func CommonArgsAndEnv(opts Options, remote, repoName string) ([]string, map[string]string, error) {
	var args []string
	env := map[string]string{}

	sshCommand, ok, err := opts.String("ssh_command")
	if err != nil {
		return nil, nil, err
	}
	if ok {
		env[EnvRSH] = sshCommand
	}

	passphrase, ok, err := lookupPassphrase(opts, remote, repoName)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		env[EnvPassphrase] = passphrase
		env[EnvDisplayPassphrase] = "n"
	}

	passcommand, ok, err := opts.String("passcommand")
	if err != nil {
		return nil, nil, err
	}
	if ok {
		env[EnvPasscommand] = passcommand
	}

	level, ok, err := opts.String("log_level")
	if err != nil {
		return nil, nil, err
	}
	if ok {
		if !slices.Contains(LogLevels, level) {
			return nil, nil, invalidf(`"%s" is not a legal log level. Expected "critical", "error", "warning", "info", "debug" or "verbose".`, level)
		}
		args = append(args, "--"+level)
	}

	if args, err = appendValue(args, opts, "umask", "umask"); err != nil {
		return nil, nil, err
	}
	if args, err = appendValue(args, opts, "remote_borg_path", "remote-path"); err != nil {
		return nil, nil, err
	}

	if _, ok := opts.Get("location"); !ok {
		return nil, nil, invalidf(`No location specified for remote "%s".`, remote)
	}
	return args, env, nil
}

// RepoPath is location immediately followed by repoName, with ~ expanded.
func RepoPath(opts Options, repoName string) (string, error) {
	location, ok, err := opts.String("location")
	if err != nil {
		return "", err
	}
	if !ok {
		return "", invalidf("No location specified for the repo %q.", repoName)
	}
	return config.ExpandPath(location + repoName), nil
}

func lookupPassphrase(opts Options, remote, repoName string) (string, bool, error) {
	if value, ok := opts.Lookup("secret", remote, repoName, "passphrase"); ok {
		s, ok := value.(string)
		if !ok {
			return "", false, invalidf("The passphrase for the repo %q on the remote %q must be a string.", repoName, remote)
		}
		return s, true, nil
	}
	return opts.String("passphrase")
}

// newInvocation wraps a subcommand with the program and sudo settings.
func newInvocation(opts Options, subcommand string, flags []string, env map[string]string, positionals ...string) (runner.Invocation, error) {
	program, err := opts.StringOr("borg_path", DefaultProgram)
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

	args := make([]string, 0, len(flags)+len(positionals)+1)
	args = append(args, subcommand)
	args = append(args, flags...)
	args = append(args, positionals...)

	inv := runner.Invocation{
		Program:  program,
		Args:     args,
		Env:      env,
		Sudo:     sudo,
		SudoUser: sudoUser,
	}
	if _, ok := env[EnvPassphrase]; ok {
		inv.Secrets = []string{EnvPassphrase}
	}
	return inv, nil
}

// appendFlag adds --flag when the boolean option key is true.
func appendFlag(args []string, opts Options, key, flag string) ([]string, error) {
	on, err := opts.Bool(key, false)
	if err != nil {
		return args, err
	}
	if on {
		args = append(args, "--"+flag)
	}
	return args, nil
}

// appendValue adds --flag=value when the option key is present.
func appendValue(args []string, opts Options, key, flag string) ([]string, error) {
	value, ok, err := opts.Scalar(key)
	if err != nil {
		return args, err
	}
	if ok {
		args = append(args, "--"+flag+"="+value)
	}
	return args, nil
}

// flagName turns an option key into its borg flag spelling.
func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}
