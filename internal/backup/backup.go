// Package backup runs the backup action: every selected source is
// initialized in, or archived to, every selected remote.
package backup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/borg-summon/internal/borg"
	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/hooks"
	"github.com/nibzard/borg-summon/internal/layered"
	"github.com/nibzard/borg-summon/internal/report"
	"github.com/nibzard/borg-summon/internal/runner"
)

// Mode selects what the action does for each pairing.
type Mode string

const (
	Create Mode = "create"
	Init   Mode = "init"
)

// ErrPreHookFailed marks work skipped because the source's pre-create hook failed.
var ErrPreHookFailed = errors.New("skipped because the pre-create hook failed")

// Options selects what to back up. Empty filters select everything.
type Options struct {
	Sources []string
	Remotes []string
	Mode    Mode
}

// Action runs backups. Runner and Reporter are required.
type Action struct {
	Runner   runner.Runner
	Reporter *report.Reporter
	Planner  borg.Planner
	Logger   *log.Logger
	// Now is the clock used for archive names.
	Now func() time.Time
}

// Run performs the backup over root. Failures of single pairings are sent to
// the reporter; the returned error is for problems that stop the whole run.
func (a *Action) Run(ctx context.Context, root config.Tree, opts Options) error {
	if opts.Mode == "" {
		opts.Mode = Create
	}
	if opts.Mode != Create && opts.Mode != Init {
		return fmt.Errorf("unknown backup mode %q", opts.Mode)
	}
	logger := a.logger()

	sources, err := sourceNames(root)
	if err != nil {
		return err
	}
	modeTable, _, err := config.Subtree(root, "backup", string(opts.Mode))
	if err != nil {
		return err
	}
	// One timestamp per run keeps archive names consistent across remotes.
	now := a.now()

	for _, name := range opts.Sources {
		if !slices.Contains(sources, name) {
			logger.Warn("unknown source", "source", name)
		}
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(opts.Sources) > 0 && !slices.Contains(opts.Sources, source) {
			continue
		}

		chain, err := layered.PrefixChain(root, "backup", "sources", source)
		if err != nil {
			a.Reporter.Failure(string(opts.Mode), err, source)
			continue
		}
		if modeTable != nil {
			chain = chain.Splice(2, modeTable)
		}
		sourceView := layered.FromChain(chain)

		if err := a.runSource(ctx, root, chain, sourceView, source, opts, now, logger); err != nil {
			return err
		}
	}
	return nil
}

func (a *Action) runSource(ctx context.Context, root config.Tree, chain layered.Chain, sourceView *layered.View, source string, opts Options, now time.Time, logger *log.Logger) error {
	mode := string(opts.Mode)
	repoName, err := sourceView.StringOr("repo_name", source)
	if err != nil {
		a.Reporter.Failure(mode, err, source)
		return nil
	}
	remotes, err := remoteNames(root, sourceView)
	if err != nil {
		a.Reporter.Failure(mode, err, source)
		return nil
	}
	var selected []string
	for _, remote := range remotes {
		if len(opts.Remotes) == 0 || slices.Contains(opts.Remotes, remote) {
			selected = append(selected, remote)
		}
	}
	if len(selected) == 0 {
		logger.Debug("no remotes selected for source", "source", source)
		return nil
	}

	if opts.Mode == Create {
		if err := a.runHook(ctx, sourceView, hooks.PreCreate, source); err != nil {
			for _, remote := range selected {
				a.Reporter.Failure(mode, ErrPreHookFailed, source, remote)
			}
			if _, ok, _ := sourceView.Table(hooks.PostCreate); ok {
				a.Reporter.Failure(hooks.PostCreate, ErrPreHookFailed, source)
			}
			return nil
		}
	}

	for _, remote := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.runPair(ctx, root, chain, source, remote, repoName, opts.Mode, now, logger); err != nil {
			a.Reporter.Failure(mode, err, source, remote)
			continue
		}
		a.Reporter.Success(mode, source, remote)
	}

	if opts.Mode == Create {
		// Failures are already reported; post hooks run regardless.
		_ = a.runHook(ctx, sourceView, hooks.PostCreate, source)
	}
	return nil
}

func (a *Action) runPair(ctx context.Context, root config.Tree, chain layered.Chain, source, remote, repoName string, mode Mode, now time.Time, logger *log.Logger) error {
	remoteChain, err := layered.PrefixChain(root, "remotes", remote)
	if err != nil {
		return err
	}
	view := layered.FromChains(chain, remoteChain)

	var inv runner.Invocation
	switch mode {
	case Init:
		logger.Info("initializing repo", "repo", repoName, "remote", remote)
		inv, err = a.Planner.Init(view, remote, repoName)
	default:
		archive, nameErr := borg.ArchiveName(view, source, remote, now)
		if nameErr != nil {
			return nameErr
		}
		logger.Info("backing up source", "source", source, "remote", remote, "archive", archive)
		inv, err = a.Planner.Create(view, remote, repoName, archive)
	}
	if err != nil {
		return err
	}
	return a.Runner.Run(ctx, inv)
}

// runHook runs the hook named key if the source view has one, and reports
// the outcome. A source without the hook succeeds silently.
func (a *Action) runHook(ctx context.Context, sourceView *layered.View, key, source string) error {
	table, ok, err := sourceView.Table(key)
	if err == nil && !ok {
		return nil
	}
	if err == nil {
		err = hooks.Run(ctx, a.Runner, sourceView.Child(table))
	}
	if err != nil {
		a.Reporter.Failure(key, err, source)
		return err
	}
	a.Reporter.Success(key, source)
	return nil
}

func (a *Action) logger() *log.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return log.Default()
}

func (a *Action) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func sourceNames(root config.Tree) ([]string, error) {
	chain, err := layered.PrefixChain(root, "backup", "sources")
	if err != nil {
		return nil, err
	}
	return config.TableNames(chain[len(chain)-1]), nil
}

// remoteNames is remote_list when the source view sets it, else every remote.
func remoteNames(root config.Tree, sourceView *layered.View) ([]string, error) {
	list, ok, err := sourceView.Strings("remote_list")
	if err != nil || ok {
		return list, err
	}
	remotes, _, err := config.Subtree(root, "remotes")
	if err != nil {
		return nil, err
	}
	return config.TableNames(remotes), nil
}
