package git

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// Status returns the worktree status
func (r *Repository) Status(ctx context.Context, _ StatusParams) (*StatusResult, error) {
	repo, err := r.open("status")
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, classify("status", err)
	}

	res := &StatusResult{}
	if head, err := repo.Head(); err == nil {
		res.Head = CommitID(head.Hash())
		if head.Name().IsBranch() {
			res.Branch = head.Name().Short()
		}
	} else if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// Unborn branch: HEAD is symbolic but points nowhere yet.
		if sym, err := repo.Storer.Reference(plumbing.HEAD); err == nil {
			res.Branch = sym.Target().Short()
		}
	} else {
		return nil, classify("status", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := wt.Status()
	if err != nil {
		return nil, classify("status", err)
	}
	for path, fs := range st {
		if fs.Staging == gogit.Unmodified && fs.Worktree == gogit.Unmodified {
			continue
		}
		res.Files = append(res.Files, FileStatus{
			Path:     path,
			Staging:  byte(fs.Staging),
			Worktree: byte(fs.Worktree),
			Extra:    fs.Extra,
		})
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	return res, nil
}

// Log walks the history from a revision, newest first
func (r *Repository) Log(ctx context.Context, p LogParams) ([]CommitID, error) {
	repo, err := r.open("log")
	if err != nil {
		return nil, err
	}
	rev := p.Revision
	if rev == "" {
		rev = "HEAD"
	}
	from, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, classify("log", err)
	}

	iter, err := repo.Log(&gogit.LogOptions{From: *from})
	if err != nil {
		return nil, classify("log", err)
	}
	defer iter.Close()

	var ids []CommitID
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids = append(ids, CommitID(c.Hash))
		if p.Limit > 0 && len(ids) >= p.Limit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, classify("log", err)
	}
	return ids, nil
}

// Blame attributes every line of a file to the commit that last changed it
func (r *Repository) Blame(_ context.Context, p BlameParams) (*BlameResult, error) {
	repo, err := r.open("blame")
	if err != nil {
		return nil, err
	}
	rev := p.Revision
	if rev == "" {
		rev = "HEAD"
	}
	h, err := repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, classify("blame", err)
	}
	c, err := repo.CommitObject(*h)
	if err != nil {
		return nil, classify("blame", err)
	}

	blame, err := gogit.Blame(c, p.Path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, classify("blame", plumbing.ErrObjectNotFound)
		}
		return nil, classify("blame", err)
	}

	res := &BlameResult{Path: p.Path, Rev: CommitID(*h), Lines: make([]BlameLine, 0, len(blame.Lines))}
	for i, l := range blame.Lines {
		res.Lines = append(res.Lines, BlameLine{
			Number: i + 1,
			ID:     CommitID(l.Hash),
			Author: l.AuthorName,
			When:   l.Date,
			Text:   l.Text,
		})
	}
	return res, nil
}

// Tags lists tags with their peeled commit
func (r *Repository) Tags(_ context.Context, p TagParams) ([]Ref, error) {
	repo, err := r.open("tags")
	if err != nil {
		return nil, err
	}
	iter, err := repo.Tags()
	if err != nil {
		return nil, classify("tags", err)
	}

	var refs []Ref
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if p.Prefix != "" && !strings.HasPrefix(name, p.Prefix) {
			return nil
		}
		target := ref.Hash()
		// Annotated tags point at a tag object; peel to the commit.
		if tag, err := repo.TagObject(target); err == nil {
			if c, err := tag.Commit(); err == nil {
				target = c.Hash
			}
		}
		refs = append(refs, Ref{Name: name, Target: CommitID(target)})
		return nil
	})
	if err != nil {
		return nil, classify("tags", err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

// Branches lists local branches and marks the checked out one
func (r *Repository) Branches(_ context.Context, p BranchParams) ([]Ref, error) {
	repo, err := r.open("branches")
	if err != nil {
		return nil, err
	}
	var current plumbing.ReferenceName
	if head, err := repo.Head(); err == nil {
		current = head.Name()
	}

	iter, err := repo.Branches()
	if err != nil {
		return nil, classify("branches", err)
	}
	var refs []Ref
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := ref.Name().Short()
		if p.Prefix != "" && !strings.HasPrefix(name, p.Prefix) {
			return nil
		}
		refs = append(refs, Ref{
			Name:   name,
			Target: CommitID(ref.Hash()),
			Head:   ref.Name() == current,
		})
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, classify("branches", err)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}
