// Package maintain runs the maintain action: prune and check for every
// configured repo.
package maintain

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/nibzard/borg-summon/internal/borg"
	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/layered"
	"github.com/nibzard/borg-summon/internal/report"
	"github.com/nibzard/borg-summon/internal/runner"
)

// Kind is a maintenance action.
type Kind string

const (
	Prune Kind = "prune"
	Check Kind = "check"
)

// NoPrefix is the target label of a run that is not limited to a prefix.
const NoPrefix = "None"

// Options selects what to maintain. Empty filters select everything.
type Options struct {
	Repos   []string
	Remotes []string
	Prune   bool
	Check   bool
}

// DefaultOptions runs both actions on every repo.
func DefaultOptions() Options {
	return Options{Prune: true, Check: true}
}

// Repo is one entry of maintain.repos.
type Repo struct {
	Name string
	// Chain runs from root to the repo table.
	Chain layered.Chain
}

// Action runs maintenance. Runner and Reporter are required.
type Action struct {
	Runner   runner.Runner
	Reporter *report.Reporter
	Planner  borg.Planner
	Logger   *log.Logger
}

// Run performs the enabled actions over root, prune first.
func (a *Action) Run(ctx context.Context, root config.Tree, opts Options) error {
	logger := a.Logger
	if logger == nil {
		logger = log.Default()
	}
	a.warnUnknownRepos(root, opts.Repos, logger)
	for _, step := range []struct {
		kind    Kind
		enabled bool
	}{{Prune, opts.Prune}, {Check, opts.Check}} {
		if !step.enabled {
			continue
		}
		if err := a.runKind(ctx, root, step.kind, opts, logger); err != nil {
			return err
		}
	}
	return nil
}

// warnUnknownRepos logs filter names that match no repo. A broken repos
// table is left for runKind to report.
func (a *Action) warnUnknownRepos(root config.Tree, filter []string, logger *log.Logger) {
	if len(filter) == 0 {
		return
	}
	repos, err := Repos(root, nil)
	if err != nil {
		return
	}
	known := make([]string, 0, len(repos))
	for _, repo := range repos {
		known = append(known, repo.Name)
	}
	for _, name := range filter {
		if !slices.Contains(known, name) {
			logger.Warn("unknown repo", "repo", name)
		}
	}
}

func (a *Action) runKind(ctx context.Context, root config.Tree, kind Kind, opts Options, logger *log.Logger) error {
	kindTable, _, err := config.Subtree(root, "maintain", string(kind))
	if err != nil {
		return err
	}
	repos, err := Repos(root, kindTable)
	if err != nil {
		return err
	}

	for _, repo := range repos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(opts.Repos) > 0 && !slices.Contains(opts.Repos, repo.Name) {
			continue
		}

		repoView := layered.FromChain(repo.Chain)
		remote, ok, err := repoView.String("remote")
		if err != nil || !ok {
			if err == nil {
				err = fmt.Errorf("no remote specified for the repo %q", repo.Name)
			}
			a.Reporter.Failure(string(kind), err, repo.Name)
			continue
		}
		if len(opts.Remotes) > 0 && !slices.Contains(opts.Remotes, remote) {
			continue
		}
		remoteChain, err := layered.PrefixChain(root, "remotes", remote)
		if err != nil {
			a.Reporter.Failure(string(kind), err, repo.Name, remote)
			continue
		}
		view := layered.FromChains(repo.Chain, remoteChain)

		enabled, err := view.Bool("enable_"+string(kind), true)
		if err != nil {
			a.Reporter.Failure(string(kind), err, repo.Name, remote)
			continue
		}
		if !enabled {
			logger.Debug("action disabled for repo", "action", kind, "repo", repo.Name, "remote", remote)
			continue
		}

		prefixes, _, err := view.Strings("prefixes")
		if err != nil {
			a.Reporter.Failure(string(kind), err, repo.Name, remote)
			continue
		}
		if len(prefixes) == 0 {
			prefixes = []string{""}
		}
		for _, prefix := range prefixes {
			label := prefix
			if label == "" {
				label = NoPrefix
			}
			if err := a.runOne(ctx, view, kind, remote, repo.Name, prefix, logger); err != nil {
				a.Reporter.Failure(string(kind), err, repo.Name, remote, label)
				continue
			}
			a.Reporter.Success(string(kind), repo.Name, remote, label)
		}
	}
	return nil
}

func (a *Action) runOne(ctx context.Context, view *layered.View, kind Kind, remote, repoName, prefix string, logger *log.Logger) error {
	var (
		inv runner.Invocation
		err error
	)
	switch kind {
	case Prune:
		logger.Info("pruning archives", "repo", repoName, "remote", remote, "prefix", prefixLabel(prefix))
		inv, err = a.Planner.Prune(view, remote, repoName, prefix)
	case Check:
		logger.Info("checking archives", "repo", repoName, "remote", remote, "prefix", prefixLabel(prefix))
		inv, err = a.Planner.Check(view, remote, repoName, prefix)
	default:
		return fmt.Errorf("unknown maintenance action %q", kind)
	}
	if err != nil {
		return err
	}
	return a.Runner.Run(ctx, inv)
}

func prefixLabel(prefix string) string {
	if prefix == "" {
		return "any"
	}
	return prefix
}

// Repos lists maintain.repos with the chain each repo is read through.
// kindTable, when not nil, ranks just above the maintain table.
//
// maintain.repos is either an array of tables, each naming itself with
// repo_name, or a table keyed by repo name.
func Repos(root config.Tree, kindTable layered.Table) ([]Repo, error) {
	base, err := layered.PrefixChain(root, "maintain")
	if err != nil {
		return nil, err
	}
	if kindTable != nil {
		base = base.Append(kindTable)
	}
	maintain := base[1]

	value, ok := maintain["repos"]
	if !ok {
		return nil, &layered.MissingKeyError{Path: []string{"maintain", "repos"}, Key: "repos"}
	}

	switch repos := value.(type) {
	case []any:
		out := make([]Repo, 0, len(repos))
		for i, item := range repos {
			table, ok := item.(config.Tree)
			if !ok {
				return nil, fmt.Errorf("maintain.repos[%d] must be a table, got %T", i, item)
			}
			name, ok := table["repo_name"].(string)
			if !ok {
				return nil, fmt.Errorf("maintain.repos[%d] has no repo_name", i)
			}
			out = append(out, Repo{Name: name, Chain: base.Append(table)})
		}
		return out, nil
	case config.Tree:
		out := make([]Repo, 0, len(repos))
		for _, name := range config.TableNames(repos) {
			out = append(out, Repo{Name: name, Chain: base.Append(repos, repos[name].(config.Tree))})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("maintain.repos must be a list or a table, got %T", value)
	}
}
