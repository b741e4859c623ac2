package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// DefaultRemote is used when a request names no remote
const DefaultRemote = "origin"

// RemoteURL returns the first configured URL of a remote
func (r *Repository) RemoteURL(_ context.Context, remote string) (string, error) {
	if remote == "" {
		remote = DefaultRemote
	}
	repo, err := r.open("remote-url")
	if err != nil {
		return "", err
	}
	rem, err := repo.Remote(remote)
	if err != nil {
		return "", classify("remote-url", err)
	}
	urls := rem.Config().URLs
	if len(urls) == 0 {
		return "", gderrors.NewBackendError("remote-url", gderrors.KindMalformed,
			fmt.Errorf("remote %s has no url", remote))
	}
	return urls[0], nil
}

// Remote runs one fetch, push or pull with the credential in req.Auth. A nil Auth
// makes an anonymous attempt. Authentication rejections are reported with
// KindAuth so the caller can try its next credential.
func (r *Repository) Remote(ctx context.Context, req RemoteRequest) (*RemoteResult, error) {
	op := req.Kind.String()
	if !req.Kind.IsRemote() {
		return nil, gderrors.NewBackendError(op, gderrors.KindMalformed, fmt.Errorf("%s is not a remote operation", op))
	}
	if req.Remote == "" {
		req.Remote = DefaultRemote
	}

	repo, err := r.open(op)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pw := newProgressWriter(req.Progress, cancel)

	res := &RemoteResult{Kind: req.Kind, Remote: req.Remote, Branch: req.Branch}
	switch req.Kind {
	case KindFetch:
		err = repo.FetchContext(opCtx, &gogit.FetchOptions{
			RemoteName: req.Remote,
			Auth:       req.Auth,
			Progress:   pw,
			Force:      req.Force,
		})
	case KindPush:
		opts := &gogit.PushOptions{
			RemoteName: req.Remote,
			Auth:       req.Auth,
			Progress:   pw,
			Force:      req.Force,
		}
		if req.Branch != "" {
			ref := plumbing.NewBranchReferenceName(req.Branch)
			opts.RefSpecs = []config.RefSpec{config.RefSpec(ref.String() + ":" + ref.String())}
		}
		err = repo.PushContext(opCtx, opts)
	case KindPull:
		var wt *gogit.Worktree
		wt, err = repo.Worktree()
		if err != nil {
			return nil, classify(op, err)
		}
		opts := &gogit.PullOptions{
			RemoteName: req.Remote,
			Auth:       req.Auth,
			Progress:   pw,
			Force:      req.Force,
		}
		if req.Branch != "" {
			opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
		}
		err = wt.PullContext(opCtx, opts)
	}
	pw.Flush()

	switch {
	case err == nil:
	case errors.Is(err, gogit.NoErrAlreadyUpToDate):
		res.UpToDate = true
	case pw.Aborted() != nil:
		return nil, gderrors.NewBackendError(op, gderrors.KindCancelled, fmt.Errorf("%w: %v", gderrors.ErrCancelled, pw.Aborted()))
	default:
		return nil, classify(op, err)
	}

	if head, err := repo.Head(); err == nil {
		res.Head = CommitID(head.Hash())
	}
	return res, nil
}

// isAuthError reports whether err is the remote rejecting (or demanding) credentials
func isAuthError(err error) bool {
	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "Permission denied (publickey")
}
