package cmd

import (
	"github.com/spf13/cobra"

	"github.com/nibzard/borg-summon/internal/maintain"
)

func (a *App) newMaintainCommand() *cobra.Command {
	var (
		repos   []string
		remotes []string
		prune   bool
		noPrune bool
		check   bool
		noCheck bool
	)
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Prune and check the configured repos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.open()
			if err != nil {
				return err
			}
			action := &maintain.Action{
				Runner:   s.runner,
				Reporter: s.reporter,
				Logger:   s.logger,
			}
			runErr := action.Run(cmd.Context(), s.tree, maintain.Options{
				Repos:   repos,
				Remotes: remotes,
				Prune:   prune && !noPrune,
				Check:   check && !noCheck,
			})
			return s.finish(cmd.Context(), runErr)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&repos, "repo", "R", nil, "only maintain this repo (repeatable)")
	flags.StringArrayVarP(&remotes, "remote", "r", nil, "only maintain repos on this remote (repeatable)")
	flags.BoolVar(&prune, "prune", true, "prune archives")
	flags.BoolVar(&noPrune, "no-prune", false, "do not prune archives")
	flags.BoolVar(&check, "check", true, "check repos and archives")
	flags.BoolVar(&noCheck, "no-check", false, "do not check repos and archives")
	cmd.MarkFlagsMutuallyExclusive("prune", "no-prune")
	cmd.MarkFlagsMutuallyExclusive("check", "no-check")
	return cmd
}
