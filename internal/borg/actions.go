package borg

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/runner"
)

// EncryptionModes are the accepted values of encryption.
var EncryptionModes = []string{"none", "keyfile", "repokey"}

// DefaultArchiveName is used when archive_name is not set.
const DefaultArchiveName = "auto_{datetime}"

// keepKeys are the retention options of prune, in borg's order.
var keepKeys = []string{
	"keep_within",
	"keep_secondly",
	"keep_minutely",
	"keep_hourly",
	"keep_daily",
	"keep_weekly",
	"keep_monthly",
	"keep_yearly",
}

// GlobFunc expands one path pattern.
type GlobFunc func(pattern string) ([]string, error)

// Planner builds borg invocations. The zero value is ready to use.
type Planner struct {
	// Glob expands backup paths. Defaults to doublestar.FilepathGlob, which
	// supports ** and drops patterns matching nothing.
	Glob GlobFunc
}

func (p Planner) glob(pattern string) ([]string, error) {
	if p.Glob != nil {
		return p.Glob(pattern)
	}
	return doublestar.FilepathGlob(pattern)
}

// Init plans `borg init` for repoName on remote.
func (p Planner) Init(opts Options, remote, repoName string) (runner.Invocation, error) {
	args, env, err := CommonArgsAndEnv(opts, remote, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}

	encryption, ok, err := opts.String("encryption")
	if err != nil {
		return runner.Invocation{}, err
	}
	if ok {
		if !slices.Contains(EncryptionModes, encryption) {
			return runner.Invocation{}, invalidf(`"%s" is not a valid encryption mode. Expected "none", "keyfile" or "repokey".`, encryption)
		}
		args = append(args, "--encryption="+encryption)
	}
	if args, err = appendFlag(args, opts, "append_only", "append-only"); err != nil {
		return runner.Invocation{}, err
	}

	repoPath, err := RepoPath(opts, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}
	return newInvocation(opts, "init", args, env, repoPath)
}

// Create plans `borg create` of archive into repoName on remote.
func (p Planner) Create(opts Options, remote, repoName, archive string) (runner.Invocation, error) {
	args, env, err := CommonArgsAndEnv(opts, remote, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}

	for _, key := range []string{"stats", "progress"} {
		if args, err = appendFlag(args, opts, key, key); err != nil {
			return runner.Invocation{}, err
		}
	}
	excludeFile, ok, err := opts.String("exclude_file")
	if err != nil {
		return runner.Invocation{}, err
	}
	if ok {
		args = append(args, "--exclude-from="+config.ExpandPath(excludeFile))
	}
	for _, key := range []string{"exclude_caches", "one_file_system", "dry_run"} {
		if args, err = appendFlag(args, opts, key, flagName(key)); err != nil {
			return runner.Invocation{}, err
		}
	}
	if args, err = appendValue(args, opts, "compression", "compression"); err != nil {
		return runner.Invocation{}, err
	}

	repoPath, err := RepoPath(opts, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}
	paths, err := p.ExpandPaths(opts)
	if err != nil {
		return runner.Invocation{}, err
	}
	if len(paths) == 0 {
		return runner.Invocation{}, invalidf(`There are no existing paths to backup to the repo "%s".`, repoName)
	}

	positionals := append([]string{repoPath + "::" + archive}, paths...)
	return newInvocation(opts, "create", args, env, positionals...)
}

// ExpandPaths expands ~ and glob patterns in the paths option. Patterns that
// match nothing are dropped.
func (p Planner) ExpandPaths(opts Options) ([]string, error) {
	patterns, _, err := opts.Strings("paths")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, pattern := range patterns {
		matches, err := p.glob(filepath.Clean(config.ExpandPath(pattern)))
		if err != nil {
			return nil, fmt.Errorf("expand path %q: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

// Prune plans `borg prune` of repoName on remote. An empty prefix prunes
// archives with any name.
func (p Planner) Prune(opts Options, remote, repoName, prefix string) (runner.Invocation, error) {
	args, env, err := CommonArgsAndEnv(opts, remote, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}

	if args, err = appendFlag(args, opts, "stats", "stats"); err != nil {
		return runner.Invocation{}, err
	}
	if prefix != "" {
		args = append(args, "--prefix="+prefix)
	}
	if args, err = appendFlag(args, opts, "dry_run", "dry-run"); err != nil {
		return runner.Invocation{}, err
	}
	for _, key := range keepKeys {
		if args, err = appendValue(args, opts, key, flagName(key)); err != nil {
			return runner.Invocation{}, err
		}
	}

	repoPath, err := RepoPath(opts, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}
	return newInvocation(opts, "prune", args, env, repoPath)
}

// Check plans `borg check` of repoName on remote. An empty prefix checks
// archives with any name.
func (p Planner) Check(opts Options, remote, repoName, prefix string) (runner.Invocation, error) {
	args, env, err := CommonArgsAndEnv(opts, remote, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}

	if prefix != "" {
		args = append(args, "--prefix="+prefix)
	}
	if args, err = appendValue(args, opts, "check_first", "first"); err != nil {
		return runner.Invocation{}, err
	}
	if args, err = appendValue(args, opts, "check_last", "last"); err != nil {
		return runner.Invocation{}, err
	}
	for _, key := range []string{"dry_run", "repository_only", "archives_only", "verify_data"} {
		if args, err = appendFlag(args, opts, key, flagName(key)); err != nil {
			return runner.Invocation{}, err
		}
	}

	repoPath, err := RepoPath(opts, repoName)
	if err != nil {
		return runner.Invocation{}, err
	}
	return newInvocation(opts, "check", args, env, repoPath)
}

// ArchiveName renders archive_name for one source and remote. {datetime} is
// the run time to the second; placeholders it does not know are kept for borg.
func ArchiveName(opts Options, source, remote string, now time.Time) (string, error) {
	template, err := opts.StringOr("archive_name", DefaultArchiveName)
	if err != nil {
		return "", err
	}
	r := strings.NewReplacer(
		"{datetime}", now.Format("2006-01-02T15:04:05"),
		"{source}", source,
		"{remote}", remote,
	)
	return r.Replace(template), nil
}
