package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"gitdeck.dev/gitdeck/internal/config"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/runtime"
)

// newConfigCmd creates the config command
func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and edit gitdeck configuration",
		Long: `Show the effective configuration, write a default config file, or set
per-repository overrides.

Examples:
  gitdeck config
  gitdeck config init
  gitdeck config set watcher false
  gitdeck config set credentials ssh-agent,password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{
				Path:   opts.configPath,
				GitDir: repoGitDir(opts),
				Flags:  cmd.Flags(),
			})
			if err != nil {
				return err
			}
			return config.Write(cmd.OutOrStdout(), cfg)
		},
	}

	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigSetCmd(opts))
	return cmd
}

// repoGitDir locates the repository override file; outside a repository only
// user settings apply
func repoGitDir(opts *rootOptions) string {
	repo, err := git.OpenRepository(opts.location(), git.RepositoryOptions{})
	if err != nil {
		return ""
	}
	return runtime.GitDir(repo)
}

// newConfigInitCmd creates the config init command
func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			opts.splog.Info("Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// newConfigSetCmd creates the config set command
func newConfigSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a repository override",
		Long: `Set a configuration value for the current repository only.

Keys:
  watcher       true or false
  credentials   comma separated list of ssh-agent, ssh-key, password`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			gitDir := repoGitDir(opts)
			if gitDir == "" {
				return fmt.Errorf("not a git repository")
			}

			key, value := args[0], args[1]
			switch key {
			case "watcher":
				enabled, err := strconv.ParseBool(value)
				if err != nil {
					return fmt.Errorf("invalid value for watcher: %s (must be true or false)", value)
				}
				if err := config.SetRepoWatcher(gitDir, enabled); err != nil {
					return fmt.Errorf("failed to set watcher: %w", err)
				}
			case "credentials":
				var methods []string
				for _, m := range strings.Split(value, ",") {
					if m = strings.TrimSpace(m); m != "" {
						methods = append(methods, m)
					}
				}
				if err := config.SetRepoCredentialMethods(gitDir, methods); err != nil {
					return fmt.Errorf("failed to set credentials: %w", err)
				}
			default:
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			opts.splog.Info("Set %s to %s", key, value)
			return nil
		},
	}
}
