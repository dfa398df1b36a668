package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/log"
)

// ExitError reports an invocation that ran but exited unsuccessfully.
type ExitError struct {
	Argv     []string
	ExitCode int
	Err      error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Argv[0], e.ExitCode)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExecRunner runs invocations as child processes with the standard streams
// attached, so borg can prompt and show progress.
type ExecRunner struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger *log.Logger
}

var _ Runner = (*ExecRunner)(nil)

// NewExecRunner returns a runner attached to the process's own streams.
func NewExecRunner(logger *log.Logger) *ExecRunner {
	if logger == nil {
		logger = log.Default()
	}
	return &ExecRunner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: logger,
	}
}

// Run starts the invocation and waits for it to finish.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) error {
	if inv.Program == "" {
		return errors.New("invocation has no program")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	argv := inv.Argv()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), inv.Environ()...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if r.Logger != nil {
		r.Logger.Debug("running command", "argv", argv, "env", inv.EnvNames())
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	code := exitCodeFromError(err)
	if code < 0 {
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return &ExitError{Argv: argv, ExitCode: code, Err: err}
}

func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
