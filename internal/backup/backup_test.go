package backup

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nibzard/borg-summon/internal/borg"
	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/report"
	"github.com/nibzard/borg-summon/internal/runner"
)

var fixedNow = time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC)

func identityGlob(pattern string) ([]string, error) {
	return []string{pattern}, nil
}

func newAction(rec *runner.Recorder) (*Action, *report.Reporter) {
	logger := log.New(&bytes.Buffer{})
	reporter := report.New(logger)
	return &Action{
		Runner:   rec,
		Reporter: reporter,
		Planner:  borg.Planner{Glob: identityGlob},
		Logger:   logger,
		Now:      func() time.Time { return fixedNow },
	}, reporter
}

func minimalConfig() config.Tree {
	return config.Tree{
		"archive_name": "archive_name",
		"remotes": config.Tree{
			"remote_a": config.Tree{"location": "remote_location_a/"},
			"remote_b": config.Tree{"location": "remote_location_b/"},
		},
		"backup": config.Tree{
			"sources": config.Tree{
				"source_A": config.Tree{"paths": []any{"pathA1", "pathA2"}},
				"source_B": config.Tree{"paths": []any{"pathB1", "pathB2"}},
			},
		},
	}
}

func maximalConfig() config.Tree {
	return config.Tree{
		"archive_name":     "archive_name",
		"remote_list":      []any{"remote_a", "remote_b"},
		"sudo":             true,
		"ssh_command":      "ssh_command",
		"passphrase":       "passphrase1",
		"log_level":        "info",
		"umask":            "0007",
		"remote_borg_path": "remote_borg_path",
		"encryption":       "repokey",
		"append_only":      true,
		"progress":         true,
		"stats":            true,
		"exclude_file":     "exclude_file",
		"exclude_caches":   true,
		"one_file_system":  true,
		"compression":      "lz4",
		"secret": config.Tree{
			"remote_b": config.Tree{
				"source_B": config.Tree{"passphrase": "passphrase2"},
			},
		},
		"remotes": config.Tree{
			"remote_a": config.Tree{"location": "remote_location_a/"},
			"remote_b": config.Tree{"location": "remote_location_b/"},
		},
		"backup": config.Tree{
			"sources": config.Tree{
				"source_A": config.Tree{
					"paths":            []any{"pathA1", "pathA2"},
					"pre_create_hook":  config.Tree{"command": "pre-create-A.sh", "sudo": false},
					"post_create_hook": config.Tree{"command": "post-create-A.sh"},
				},
				"source_B": config.Tree{
					"paths":            []any{"pathB1", "pathB2"},
					"remote_list":      []any{"remote_b"},
					"sudo_user":        "user_b",
					"pre_create_hook":  config.Tree{"command": "pre-create-B.sh", "args": []any{"--verbose"}},
					"post_create_hook": config.Tree{"command": "post-create-B.sh", "sudo_user": "hook_user"},
				},
			},
		},
	}
}

func TestCreateMinimal(t *testing.T) {
	rec := &runner.Recorder{}
	action, reporter := newAction(rec)

	require.NoError(t, action.Run(context.Background(), minimalConfig(), Options{}))

	assert.Equal(t, [][]string{
		{"borg", "create", "remote_location_a/source_A::archive_name", "pathA1", "pathA2"},
		{"borg", "create", "remote_location_b/source_A::archive_name", "pathA1", "pathA2"},
		{"borg", "create", "remote_location_a/source_B::archive_name", "pathB1", "pathB2"},
		{"borg", "create", "remote_location_b/source_B::archive_name", "pathB1", "pathB2"},
	}, rec.Argvs())
	for _, inv := range rec.Calls() {
		assert.Empty(t, inv.Env)
	}
	assert.Equal(t, 4, reporter.Successes())
	assert.Empty(t, reporter.Failures())
}

func TestInitMinimal(t *testing.T) {
	rec := &runner.Recorder{}
	action, _ := newAction(rec)

	require.NoError(t, action.Run(context.Background(), minimalConfig(), Options{Mode: Init}))

	assert.Equal(t, [][]string{
		{"borg", "init", "remote_location_a/source_A"},
		{"borg", "init", "remote_location_b/source_A"},
		{"borg", "init", "remote_location_a/source_B"},
		{"borg", "init", "remote_location_b/source_B"},
	}, rec.Argvs())
}

func TestInitMaximal(t *testing.T) {
	rec := &runner.Recorder{}
	action, _ := newAction(rec)

	require.NoError(t, action.Run(context.Background(), maximalConfig(), Options{Mode: Init}))

	preserve := "--preserve-env=BORG_DISPLAY_PASSPHRASE,BORG_PASSPHRASE,BORG_RSH"
	flags := []string{"--info", "--umask=0007", "--remote-path=remote_borg_path", "--encryption=repokey", "--append-only"}
	want := [][]string{
		append(append([]string{"sudo", "-S", preserve, "borg", "init"}, flags...), "remote_location_a/source_A"),
		append(append([]string{"sudo", "-S", preserve, "borg", "init"}, flags...), "remote_location_b/source_A"),
		append(append([]string{"sudo", "-S", "-u", "user_b", preserve, "borg", "init"}, flags...), "remote_location_b/source_B"),
	}
	assert.Equal(t, want, rec.Argvs())

	calls := rec.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, map[string]string{
		"BORG_RSH":                "ssh_command",
		"BORG_PASSPHRASE":         "passphrase1",
		"BORG_DISPLAY_PASSPHRASE": "n",
	}, calls[0].Env)
	assert.Equal(t, "passphrase2", calls[2].Env["BORG_PASSPHRASE"])
}

func TestCreateMaximal(t *testing.T) {
	rec := &runner.Recorder{}
	action, reporter := newAction(rec)

	require.NoError(t, action.Run(context.Background(), maximalConfig(), Options{Mode: Create}))

	preserve := "--preserve-env=BORG_DISPLAY_PASSPHRASE,BORG_PASSPHRASE,BORG_RSH"
	flags := []string{
		"--info", "--umask=0007", "--remote-path=remote_borg_path",
		"--stats", "--progress", "--exclude-from=exclude_file",
		"--exclude-caches", "--one-file-system", "--compression=lz4",
	}
	create := func(prefix []string, repo string, paths ...string) []string {
		argv := append(append([]string{}, prefix...), "borg", "create")
		argv = append(argv, flags...)
		argv = append(argv, repo+"::archive_name")
		return append(argv, paths...)
	}

	assert.Equal(t, [][]string{
		{"pre-create-A.sh"},
		create([]string{"sudo", "-S", preserve}, "remote_location_a/source_A", "pathA1", "pathA2"),
		create([]string{"sudo", "-S", preserve}, "remote_location_b/source_A", "pathA1", "pathA2"),
		{"sudo", "-S", "post-create-A.sh"},
		{"sudo", "-S", "-u", "user_b", "pre-create-B.sh", "--verbose"},
		create([]string{"sudo", "-S", "-u", "user_b", preserve}, "remote_location_b/source_B", "pathB1", "pathB2"),
		{"sudo", "-S", "-u", "hook_user", "post-create-B.sh"},
	}, rec.Argvs())

	calls := rec.Calls()
	assert.Equal(t, "passphrase1", calls[1].Env["BORG_PASSPHRASE"])
	assert.Equal(t, "passphrase2", calls[5].Env["BORG_PASSPHRASE"])
	assert.Empty(t, calls[0].Env)
	assert.Equal(t, 7, reporter.Successes())
}

func TestFilters(t *testing.T) {
	t.Run("source filter with empty remote list does nothing", func(t *testing.T) {
		root := config.Tree{
			"backup": config.Tree{
				"sources": config.Tree{
					"s1": config.Tree{"paths": []any{"/home"}},
					"s2": config.Tree{"paths": []any{"/etc"}, "remote_list": []any{}},
				},
			},
		}
		rec := &runner.Recorder{}
		action, reporter := newAction(rec)

		require.NoError(t, action.Run(context.Background(), root, Options{Sources: []string{"s2"}}))
		assert.Empty(t, rec.Calls())
		assert.Zero(t, reporter.Successes())
		assert.Empty(t, reporter.Failures())
	})

	t.Run("remote filter", func(t *testing.T) {
		rec := &runner.Recorder{}
		action, _ := newAction(rec)

		require.NoError(t, action.Run(context.Background(), minimalConfig(), Options{
			Sources: []string{"source_B"},
			Remotes: []string{"remote_b"},
		}))
		assert.Equal(t, [][]string{
			{"borg", "create", "remote_location_b/source_B::archive_name", "pathB1", "pathB2"},
		}, rec.Argvs())
	})
}

func TestCreateErrorIsReported(t *testing.T) {
	root := config.Tree{
		"backup": config.Tree{
			"sources": config.Tree{"s1": config.Tree{"paths": []any{"/home"}}},
		},
		"remotes": config.Tree{
			"r1": config.Tree{"location": "path1"},
			"r2": config.Tree{"location": "path2"},
		},
	}
	rec := &runner.Recorder{Fail: func(runner.Invocation) error { return errors.New("borg failed") }}
	action, reporter := newAction(rec)

	require.NoError(t, action.Run(context.Background(), root, Options{Remotes: []string{"r2"}}))

	assert.Len(t, rec.Calls(), 1)
	failures := reporter.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "create", failures[0].Action)
	assert.Equal(t, []string{"s1", "r2"}, failures[0].Target)
	assert.Zero(t, reporter.Successes())
}

func TestInitError(t *testing.T) {
	root := config.Tree{
		"backup": config.Tree{
			"sources": config.Tree{"s1": config.Tree{"paths": []any{"/home"}}},
		},
		"remotes": config.Tree{"r1": config.Tree{"location": "path1"}},
	}
	rec := &runner.Recorder{Fail: func(runner.Invocation) error { return errors.New("init failed") }}
	action, reporter := newAction(rec)

	require.NoError(t, action.Run(context.Background(), root, Options{Mode: Init}))

	require.Len(t, rec.Calls(), 1)
	assert.Equal(t, []string{"borg", "init", "path1s1"}, rec.Argvs()[0])
	failures := reporter.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "init", failures[0].Action)
	assert.Equal(t, []string{"s1", "r1"}, failures[0].Target)
}

func TestMissingRemoteFailsOnlyThatPairing(t *testing.T) {
	root := minimalConfig()
	root["backup"].(config.Tree)["sources"].(config.Tree)["source_A"].(config.Tree)["remote_list"] = []any{"remote_a", "nowhere"}
	rec := &runner.Recorder{}
	action, reporter := newAction(rec)

	require.NoError(t, action.Run(context.Background(), root, Options{Sources: []string{"source_A"}}))

	assert.Len(t, rec.Calls(), 1)
	failures := reporter.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, []string{"source_A", "nowhere"}, failures[0].Target)
	assert.Equal(t, 1, reporter.Successes())
}

func TestPreCreateHookError(t *testing.T) {
	root := config.Tree{
		"backup": config.Tree{
			"sources": config.Tree{
				"s1": config.Tree{
					"paths":            []any{"/home"},
					"pre_create_hook":  config.Tree{"command": "true"},
					"post_create_hook": config.Tree{"command": "true"},
				},
				"s2": config.Tree{"paths": []any{"/home"}},
			},
		},
		"remotes": config.Tree{"r1": config.Tree{"location": "path1"}},
	}
	hookRuns := 0
	rec := &runner.Recorder{Fail: func(inv runner.Invocation) error {
		if inv.Program == "true" {
			hookRuns++
			if hookRuns == 1 {
				return errors.New("hook failed")
			}
		}
		return nil
	}}
	action, reporter := newAction(rec)

	require.NoError(t, action.Run(context.Background(), root, Options{}))

	assert.Equal(t, 1, hookRuns)
	assert.Equal(t, [][]string{
		{"true"},
		{"borg", "create", "path1s2::auto_2024-05-01T03:00:00", "/home"},
	}, rec.Argvs())
	assert.Equal(t, 1, reporter.Successes())

	failures := reporter.Failures()
	require.Len(t, failures, 3)
	assert.Equal(t, "pre_create_hook", failures[0].Action)
	assert.Equal(t, "create", failures[1].Action)
	assert.ErrorIs(t, failures[1].Err, ErrPreHookFailed)
	assert.Equal(t, "post_create_hook", failures[2].Action)
}

func TestPostCreateHookError(t *testing.T) {
	root := config.Tree{
		"backup": config.Tree{
			"sources": config.Tree{"s1": config.Tree{"paths": []any{"/home"}}},
		},
		"remotes":          config.Tree{"r1": config.Tree{"location": "path1"}},
		"pre_create_hook":  config.Tree{"command": "pre"},
		"post_create_hook": config.Tree{"command": "post"},
	}
	rec := &runner.Recorder{Fail: func(inv runner.Invocation) error {
		if inv.Program == "post" {
			return errors.New("post failed")
		}
		return nil
	}}
	action, reporter := newAction(rec)

	require.NoError(t, action.Run(context.Background(), root, Options{}))

	assert.Len(t, rec.Calls(), 3)
	assert.Equal(t, 2, reporter.Successes())
	failures := reporter.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "post_create_hook", failures[0].Action)
	assert.Equal(t, []string{"s1"}, failures[0].Target)
}

func TestModeTableSitsBelowSource(t *testing.T) {
	root := minimalConfig()
	root["backup"].(config.Tree)["create"] = config.Tree{"stats": true, "compression": "lz4"}
	root["backup"].(config.Tree)["sources"].(config.Tree)["source_B"].(config.Tree)["compression"] = "zstd"
	rec := &runner.Recorder{}
	action, _ := newAction(rec)

	require.NoError(t, action.Run(context.Background(), root, Options{Remotes: []string{"remote_a"}}))

	assert.Equal(t, [][]string{
		{"borg", "create", "--stats", "--compression=lz4", "remote_location_a/source_A::archive_name", "pathA1", "pathA2"},
		{"borg", "create", "--stats", "--compression=zstd", "remote_location_a/source_B::archive_name", "pathB1", "pathB2"},
	}, rec.Argvs())
}

func TestArchiveNamePlaceholders(t *testing.T) {
	root := minimalConfig()
	root["archive_name"] = "{source}-{datetime}"
	rec := &runner.Recorder{}
	action, _ := newAction(rec)

	require.NoError(t, action.Run(context.Background(), root, Options{Sources: []string{"source_A"}, Remotes: []string{"remote_a"}}))

	assert.Equal(t, [][]string{
		{"borg", "create", "remote_location_a/source_A::source_A-2024-05-01T03:00:00", "pathA1", "pathA2"},
	}, rec.Argvs())
}

func TestRunWithoutSources(t *testing.T) {
	action, _ := newAction(&runner.Recorder{})
	err := action.Run(context.Background(), config.Tree{}, Options{})
	assert.Error(t, err)

	err = action.Run(context.Background(), minimalConfig(), Options{Mode: "restore"})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &runner.Recorder{}
	action, _ := newAction(rec)

	err := action.Run(ctx, minimalConfig(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.Calls())
}
