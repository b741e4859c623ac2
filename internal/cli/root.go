// Package cli implements the gitdeck command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/runtime"
	"gitdeck.dev/gitdeck/internal/tui"
)

// shutdownTimeout bounds how long running jobs may take after the command ends
const shutdownTimeout = 5 * time.Second

type rootOptions struct {
	gitDir     string
	workTree   string
	logging    bool
	logFile    string
	configPath string

	splog *tui.Splog
	// interactive enables credential prompts and the TUI
	interactive bool
	prompter    *surveyPrompter
}

func (o *rootOptions) location() git.Location {
	return git.Location{GitDir: o.gitDir, WorkTree: o.workTree}
}

// NewRootCmd creates the root cobra command
func NewRootCmd(version, commit, date string) *cobra.Command {
	opts := &rootOptions{
		interactive: tui.IsTTY(),
		prompter:    &surveyPrompter{},
	}

	rootCmd := &cobra.Command{
		Use:   "gitdeck",
		Short: "gitdeck is a terminal git client that never blocks on git",
		Long: `gitdeck is a terminal git client. Every repository query runs in the
background; results show up as soon as they are ready and stay cached until
the repository changes.

Run without a command to start the interactive interface.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logPath := opts.logFile
			if logPath == "" && opts.logging {
				logPath = tui.GetLogFilePath()
			}
			splog, err := tui.NewSplogWithConfig(cmd.OutOrStdout(), logPath)
			if err != nil {
				return err
			}
			opts.splog = splog
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if opts.splog != nil {
				return opts.splog.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rc *runtime.Context) error {
				if !opts.interactive {
					return printStatus(ctx, rc, cmd.OutOrStdout())
				}
				return runTUI(rc, opts)
			})
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.gitDir, "directory", "d", os.Getenv("GIT_DIR"), "path to the git directory (GIT_DIR)")
	flags.StringVarP(&opts.workTree, "workdir", "w", os.Getenv("GIT_WORK_TREE"), "path to the working tree (GIT_WORK_TREE)")
	flags.Bool("watcher", true, "refresh on file notifications; when off, refresh on a fixed interval")
	flags.BoolVarP(&opts.logging, "logging", "l", false, "write a log file")
	flags.StringVar(&opts.logFile, "logfile", "", "log file path (implies --logging)")
	flags.StringVar(&opts.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/gitdeck/config.yaml)")
	flags.String("metrics-addr", "", "serve prometheus metrics on this address")
	flags.Int("workers", 0, "read lane workers (default: number of CPUs, at most 8)")

	rootCmd.AddCommand(
		newStatusCmd(opts),
		newLogCmd(opts),
		newRemoteCmd(opts, git.KindFetch),
		newRemoteCmd(opts, git.KindPush),
		newRemoteCmd(opts, git.KindPull),
		newConfigCmd(opts),
	)
	return rootCmd
}

// withRuntime opens the repository and engine for one command and tears them
// down afterwards. Interrupts cancel ctx.
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, rc *runtime.Context) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	ropts := runtime.Options{
		Location:   opts.location(),
		ConfigPath: opts.configPath,
		Flags:      cmd.Flags(),
		Splog:      opts.splog,
	}
	if opts.interactive {
		ropts.Prompter = opts.prompter
		ropts.Passphrase = opts.prompter.Passphrase
	}

	rc, err := runtime.Open(ctx, ropts)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rc.Close(shutdownCtx); err != nil {
			rc.Splog.Debug("shutdown: %v", err)
		}
	}()
	return fn(runtime.WithContext(ctx, rc), rc)
}

func runTUI(rc *runtime.Context, opts *rootOptions) error {
	if err := rc.StartWatcher(); err != nil {
		return err
	}
	rc.Splog.SetQuiet(true)
	defer rc.Splog.SetQuiet(false)

	return tui.RunApp(rc.Engine, tui.AppOptions{
		Credentials:  rc.Credentials,
		LogLimit:     rc.Config.Log.Limit,
		MessageLimit: rc.Config.Log.MessageLengthLimit,
	}, tui.RunOptions{
		OnProgram: opts.prompter.attach,
	})
}
