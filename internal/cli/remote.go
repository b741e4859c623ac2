package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/notify"
	"gitdeck.dev/gitdeck/internal/remote"
	"gitdeck.dev/gitdeck/internal/runtime"
)

var remoteShort = map[git.Kind]string{
	git.KindFetch: "Download objects and refs from a remote",
	git.KindPush:  "Update a remote branch with local commits",
	git.KindPull:  "Fetch from a remote and fast-forward the current branch",
}

// newRemoteCmd creates the fetch, push or pull command
func newRemoteCmd(opts *rootOptions, kind git.Kind) *cobra.Command {
	var target remote.Target

	cmd := &cobra.Command{
		Use:   kind.String() + " [remote] [branch]",
		Short: remoteShort[kind],
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				target.Remote = args[0]
			}
			if len(args) > 1 {
				target.Branch = args[1]
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rc *runtime.Context) error {
				return runRemote(ctx, rc, kind, target, cmd.OutOrStdout())
			})
		},
	}
	if kind == git.KindPush {
		cmd.Flags().BoolVarP(&target.Force, "force", "f", false, "force the remote update")
	}
	return cmd
}

// runRemote starts one remote operation and reports its progress until it
// reaches a terminal phase. Cancelling ctx asks the operation to stop.
func runRemote(ctx context.Context, rc *runtime.Context, kind git.Kind, target remote.Target, out io.Writer) error {
	e := rc.Engine
	h, err := e.StartRemoteOp(kind, target, rc.Credentials)
	if err != nil {
		return err
	}

	handle := h.String()
	lastPhase := ""
	waitCtx := ctx
	cancelled := false
	for {
		for _, n := range e.Drain() {
			p, ok := n.(notify.RemoteOpProgress)
			if !ok || p.Handle != handle {
				continue
			}
			if p.Phase != lastPhase {
				rc.Splog.Debug("%s: %s", kind, p.Phase)
				lastPhase = p.Phase
			}
			if p.Progress.Stage != "" {
				fmt.Fprintln(out, formatProgress(p.Progress))
			}
		}

		st, ok := e.State(h)
		if !ok {
			return fmt.Errorf("%s %s: %w", kind, handle, gderrors.ErrUnknownHandle)
		}
		if st.Phase.Terminal() {
			return report(rc, st, out)
		}

		if err := e.Wait(waitCtx); err != nil && !cancelled {
			cancelled = true
			e.Cancel(h)
			// Keep waiting for the operation to acknowledge the cancel.
			waitCtx = context.Background()
		}
	}
}

func formatProgress(p notify.Progress) string {
	if p.StageTotal == 0 {
		return fmt.Sprintf("%s: %d", p.Stage, p.StageObjects)
	}
	return fmt.Sprintf("%s: %3.0f%% (%d/%d)", p.Stage, p.Percent()*100, p.StageObjects, p.StageTotal)
}

func report(rc *runtime.Context, st remote.State, out io.Writer) error {
	for _, a := range st.Attempts {
		if a.Err != nil {
			rc.Splog.Debug("credential %s: %s: %v", a.Method, a.Outcome, a.Err)
		} else {
			rc.Splog.Debug("credential %s: %s", a.Method, a.Outcome)
		}
	}

	switch st.Phase {
	case remote.PhaseCompleted:
		res := st.Result
		switch {
		case res == nil:
			fmt.Fprintf(out, "%s complete\n", st.Kind)
		case res.UpToDate:
			fmt.Fprintln(out, "Already up to date.")
		case res.Head.IsZero():
			fmt.Fprintf(out, "%s %s complete\n", st.Kind, res.Remote)
		default:
			fmt.Fprintf(out, "%s %s complete (%s)\n", st.Kind, res.Remote, res.Head.Short())
		}
		return nil
	case remote.PhaseCancelled:
		return fmt.Errorf("%s cancelled", st.Kind)
	default:
		if st.Err == nil {
			return errors.New(st.Phase.String())
		}
		return fmt.Errorf("%s failed: %w", st.Kind, st.Err)
	}
}
