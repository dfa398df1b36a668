package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/nibzard/borg-summon/internal/config"
	"github.com/nibzard/borg-summon/internal/logging"
)

const redacted = "<redacted>"

// secretKeys are removed from `config show` output unless asked for.
var secretKeys = map[string]bool{"passphrase": true}

func (a *App) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the merged configuration",
	}
	cmd.AddCommand(a.newConfigShowCommand())
	cmd.AddCommand(a.newConfigValidateCommand())
	cmd.AddCommand(a.newConfigPathsCommand())
	return cmd
}

func (a *App) newConfigShowCommand() *cobra.Command {
	var showSecrets bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tree, err := a.loadOnly()
			if err != nil {
				return err
			}
			if !showSecrets {
				tree = redact(tree)
			}
			if err := toml.NewEncoder(cmd.OutOrStdout()).Encode(tree); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "print passphrases instead of "+redacted)
	return cmd
}

func (a *App) newConfigValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the merged configuration against the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tree, err := a.loadOnly()
			if err != nil {
				return err
			}
			err = config.Validate(tree)
			var verrs config.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s\n", fe)
				}
				return fmt.Errorf("configuration has %d problems", len(verrs))
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return err
		},
	}
}

func (a *App) newConfigPathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "List the config file locations and whether they exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if path := firstNonEmpty(a.configPath, config.PathFromEnv()); path != "" {
				fmt.Fprintf(out, "%s\t%s\t(selected)\n", config.ExpandPath(path), a.fileStatus(config.ExpandPath(path)))
			}
			for _, path := range config.DefaultPaths() {
				fmt.Fprintf(out, "%s\t%s\n", path, a.fileStatus(path))
			}
			return nil
		},
	}
}

func (a *App) fileStatus(path string) string {
	info, err := a.filesystem().Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "missing"
	case err != nil:
		return "error: " + err.Error()
	case info.IsDir():
		return "directory"
	default:
		return "found"
	}
}

// loadOnly reads the configuration without opening a log file.
func (a *App) loadOnly() (config.Tree, error) {
	opts, err := a.logOptions()
	if err != nil {
		return nil, err
	}
	return a.loadTree(logging.New(a.Stderr, opts))
}

// redact returns a copy of tree with every secret value replaced.
func redact(tree config.Tree) config.Tree {
	out := config.Clone(tree)
	redactValue(out)
	return out
}

func redactValue(v any) {
	switch val := v.(type) {
	case config.Tree:
		for key, item := range val {
			if _, ok := item.(string); ok && secretKeys[key] {
				val[key] = redacted
				continue
			}
			redactValue(item)
		}
	case []any:
		for _, item := range val {
			redactValue(item)
		}
	}
}
