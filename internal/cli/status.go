package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/runtime"
	"gitdeck.dev/gitdeck/internal/tui"
)

// newStatusCmd creates the status command
func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Show the working tree status",
		Aliases: []string{"st"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rc *runtime.Context) error {
				return printStatus(ctx, rc, cmd.OutOrStdout())
			})
		},
	}
}

func printStatus(ctx context.Context, rc *runtime.Context, out io.Writer) error {
	st, err := query[*git.StatusResult](ctx, rc.Engine, git.KindStatus, git.StatusParams{})
	if err != nil {
		return err
	}

	if st.Branch != "" {
		fmt.Fprintf(out, "On branch %s\n", st.Branch)
	} else if !st.Head.IsZero() {
		fmt.Fprintf(out, "HEAD detached at %s\n", st.Head.Short())
	}
	if st.Clean() {
		fmt.Fprintln(out, "nothing to commit, working tree clean")
		return nil
	}
	for _, f := range st.Files {
		fmt.Fprintf(out, "%s %s\n", tui.ColorStatusCode(f.Staging, f.Worktree), f.Path)
	}
	return nil
}
