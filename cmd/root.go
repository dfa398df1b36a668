// Package cmd implements the borg-summon command tree.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/logging"
	"github.com/nibzard/borg-summon/internal/report"
	"github.com/nibzard/borg-summon/internal/runner"
)

// Version is set via ldflags at build time.
var Version = "dev"

// App carries the process-level dependencies of every command. Tests swap
// the streams, the filesystem and the runner.
type App struct {
	Stdout io.Writer
	Stderr io.Writer
	Fs     afero.Fs
	// Runner, when set, replaces both the exec and the --plan runner.
	Runner   runner.Runner
	Now      func() time.Time
	Hostname func() (string, error)

	configPath string
	logLevel   string
	logFormat  string
	plan       bool
}

// NewApp returns an App wired to the real process.
func NewApp() *App {
	return &App{
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
		Fs:       afero.NewOsFs(),
		Now:      time.Now,
		Hostname: os.Hostname,
	}
}

// Run executes the borg-summon CLI.
func Run(ctx context.Context, args []string) error {
	return NewApp().Execute(ctx, args)
}

// Execute runs the command tree with args.
func (a *App) Execute(ctx context.Context, args []string) error {
	root := a.NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func (a *App) NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "borg-summon",
		Short: "Run borg backups and maintenance from one TOML configuration",
		Long: `borg-summon reads a layered TOML configuration and runs borg for every
configured source and remote: init and create for backups, prune and check
for maintenance. Failures are collected and reported once at the end of a run
through the alert hook.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.Stdout)
	root.SetErr(a.Stderr)
	root.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nGo version: %s\nPlatform: %s/%s\n",
		goVersion(), runtime.GOOS, runtime.GOARCH))

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "use the specified config file (default: $"+config.EnvConfig+" or the default locations)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error (default: $"+config.EnvLogLevel+" or info)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format: text, json or logfmt (default: $"+config.EnvLogFormat+" or text)")
	flags.BoolVar(&a.plan, "plan", false, "print the commands instead of running them")

	root.AddCommand(a.newBackupCommand())
	root.AddCommand(a.newMaintainCommand())
	root.AddCommand(a.newConfigCommand())
	root.AddCommand(a.newVersionCommand())
	return root
}

func (a *App) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "borg-summon %s\n", Version)
			return err
		},
	}
}

// session is the state of one command run: the merged tree, the logger and
// the report context.
type session struct {
	tree     config.Tree
	logger   *log.Logger
	runner   runner.Runner
	reporter *report.Reporter
	closer   io.Closer
}

func (a *App) logOptions() (logging.Options, error) {
	opts := logging.DefaultOptions()
	level, err := logging.ParseLevel(firstNonEmpty(a.logLevel, config.EnvOr(config.EnvLogLevel, "")))
	if err != nil {
		return opts, err
	}
	format, err := logging.ParseFormatter(firstNonEmpty(a.logFormat, config.EnvOr(config.EnvLogFormat, "")))
	if err != nil {
		return opts, err
	}
	opts.Level = level
	opts.Formatter = format
	return opts, nil
}

// loadTree reads the config named by --config or SUMMON_CONFIG, or the
// default locations.
func (a *App) loadTree(logger *log.Logger) (config.Tree, error) {
	loader := config.NewLoader(config.WithFs(a.filesystem()), config.WithLogger(logger))
	path := firstNonEmpty(a.configPath, config.PathFromEnv())
	if path != "" {
		tree, err := loader.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return tree, nil
	}
	tree, err := loader.LoadDefault()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return tree, nil
}

func (a *App) open() (*session, error) {
	opts, err := a.logOptions()
	if err != nil {
		return nil, err
	}
	logger := logging.New(a.Stderr, opts)

	tree, err := a.loadTree(logger)
	if err != nil {
		return nil, err
	}

	var logFile string
	if value, ok := config.Lookup(tree, "log_file"); ok {
		if logFile, ok = value.(string); !ok {
			return nil, fmt.Errorf("log_file must be a string, got %T", value)
		}
	}
	logger, closer, err := logging.Tee(a.filesystem(), a.Stderr, opts, logFile)
	if err != nil {
		return nil, err
	}

	reporter := report.New(logger)
	if a.Hostname != nil {
		reporter.Hostname = a.Hostname
	}
	return &session{
		tree:     tree,
		logger:   logger,
		runner:   a.newRunner(logger),
		reporter: reporter,
		closer:   closer,
	}, nil
}

func (a *App) newRunner(logger *log.Logger) runner.Runner {
	switch {
	case a.Runner != nil:
		return a.Runner
	case a.plan:
		return &runner.PrintRunner{Out: a.Stdout}
	default:
		r := runner.NewExecRunner(logger)
		r.Stdout = a.Stdout
		r.Stderr = a.Stderr
		return r
	}
}

// alertTimeout bounds the alert hook at the end of a run.
const alertTimeout = time.Minute

// finish flushes the report and closes the log file. The returned error
// carries the run error and every recorded failure. The alert still goes out
// when ctx was cancelled by a signal.
func (s *session) finish(ctx context.Context, runErr error) error {
	err := runErr
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
	defer cancel()
	if sendErr := s.reporter.Send(sendCtx, s.tree, s.runner); sendErr != nil {
		s.logger.Error("sending the alert failed", "err", sendErr)
		err = multierr.Append(err, sendErr)
	}
	failures := s.reporter.Failures()
	s.logger.Info("run finished", "succeeded", s.reporter.Successes(), "failed", len(failures))
	if len(failures) > 0 {
		err = multierr.Append(err, fmt.Errorf("%d actions failed: %w", len(failures), s.reporter.Err()))
	}
	return multierr.Append(err, s.closer.Close())
}

func (a *App) filesystem() afero.Fs {
	if a.Fs != nil {
		return a.Fs
	}
	return afero.NewOsFs()
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// goVersion returns the Go version used to build the binary.
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}
