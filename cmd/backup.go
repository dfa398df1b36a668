package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nibzard/borg-summon/internal/backup"
)

func (a *App) newBackupCommand() *cobra.Command {
	var (
		sources   []string
		remotes   []string
		initRepos bool
		create    bool
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create archives of the configured sources, or initialize their repos",
		Long: `Back up every configured source to every remote in its remote_list
(all remotes when unset). With --init, initialize the repos instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			mode := backup.Create
			if initRepos {
				mode = backup.Init
			}
			action := &backup.Action{
				Runner:   s.runner,
				Reporter: s.reporter,
				Logger:   s.logger,
				Now:      a.now,
			}
			runErr := action.Run(cmd.Context(), s.tree, backup.Options{
				Sources: sources,
				Remotes: remotes,
				Mode:    mode,
			})
			return s.finish(cmd.Context(), runErr)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&sources, "source", "s", nil, "only back up this source (repeatable)")
	flags.StringArrayVarP(&remotes, "remote", "r", nil, "only back up to this remote (repeatable)")
	flags.BoolVar(&initRepos, "init", false, "initialize the repos instead of creating archives")
	flags.BoolVar(&create, "create", false, "create archives (the default)")
	cmd.MarkFlagsMutuallyExclusive("init", "create")
	return cmd
}
