package git

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// Stage adds paths (or every change) to the index
func (r *Repository) Stage(ctx context.Context, p StageParams) (*StageResult, error) {
	if !p.All && len(p.Paths) == 0 {
		return nil, gderrors.NewBackendError("stage", gderrors.KindMalformed, errors.New("no paths to stage"))
	}
	repo, err := r.open("stage")
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("stage", err)
	}

	if p.All {
		if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
			return nil, classify("stage", err)
		}
	} else {
		for _, path := range p.Paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if _, err := wt.Add(path); err != nil {
				return nil, classify("stage", err)
			}
		}
	}

	st, err := wt.Status()
	if err != nil {
		return nil, classify("stage", err)
	}
	res := &StageResult{}
	for path, fs := range st {
		if fs.Staging != gogit.Unmodified && fs.Staging != gogit.Untracked {
			res.Paths = append(res.Paths, path)
		}
	}
	sort.Strings(res.Paths)
	return res, nil
}

// Commit records the index as a new commit on HEAD
func (r *Repository) Commit(_ context.Context, p CommitParams) (CommitID, error) {
	if strings.TrimSpace(p.Message) == "" {
		return CommitID{}, gderrors.NewBackendError("commit", gderrors.KindMalformed, errors.New("empty commit message"))
	}
	repo, err := r.open("commit")
	if err != nil {
		return CommitID{}, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return CommitID{}, classify("commit", err)
	}

	opts := &gogit.CommitOptions{AllowEmptyCommits: p.AllowEmpty}
	if p.AuthorName != "" || p.AuthorEmail != "" {
		opts.Author = &object.Signature{Name: p.AuthorName, Email: p.AuthorEmail, When: time.Now()}
	}

	h, err := wt.Commit(p.Message, opts)
	if err != nil {
		if errors.Is(err, gogit.ErrEmptyCommit) {
			return CommitID{}, gderrors.NewBackendError("commit", gderrors.KindConflict, err)
		}
		return CommitID{}, classify("commit", err)
	}
	return CommitID(h), nil
}
