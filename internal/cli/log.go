package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/runtime"
	"gitdeck.dev/gitdeck/internal/tui"
)

// newLogCmd creates the log command
func newLogCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "log [revision]",
		Short:   "Show the commit log",
		Aliases: []string{"l"},
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rc *runtime.Context) error {
				params := git.LogParams{Limit: rc.Config.Log.Limit}
				if len(args) == 1 {
					params.Revision = args[0]
				}
				if cmd.Flags().Changed("limit") {
					params.Limit = limit
				}

				ids, err := query[[]git.CommitID](ctx, rc.Engine, git.KindLog, params)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					return nil
				}
				infos, err := query[[]git.CommitInfo](ctx, rc.Engine, git.KindCommitInfo, git.CommitInfoParams{
					IDs:          ids,
					MessageLimit: rc.Config.Log.MessageLengthLimit,
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, c := range infos {
					when := time.Unix(c.Time, 0).Format("2006-01-02")
					fmt.Fprintf(out, "%s %s %s %s\n", tui.ColorYellow(c.ID.Short()), when, tui.ColorCyan(c.Author), c.Message)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of commits to show (0 shows all)")
	cmd.Flags().Int("message-limit", 0, "truncate commit subjects to this many characters")
	return cmd
}
