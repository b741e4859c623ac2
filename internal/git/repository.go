package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// Location says where the repository lives. GitDir and WorkTree mirror the GIT_DIR
// and GIT_WORK_TREE environment variables; when GitDir is empty the repository is
// discovered upwards from WorkTree (or the current directory).
type Location struct {
	GitDir   string
	WorkTree string
}

// Resolve makes both paths absolute
func (l Location) Resolve() (Location, error) {
	out := l
	if out.WorkTree == "" && out.GitDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return l, fmt.Errorf("failed to get working directory: %w", err)
		}
		out.WorkTree = wd
	}
	for _, p := range []*string{&out.GitDir, &out.WorkTree} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return l, fmt.Errorf("failed to resolve path: %w", err)
		}
		*p = abs
	}
	return out, nil
}

// Repository implements Backend on top of go-git, the git CLI and the GitHub API
type Repository struct {
	loc          Location
	runner       *CommandRunner
	messageLimit int

	pullsMu sync.Mutex
	pulls   PullRequestLister
}

// RepositoryOptions configures a Repository
type RepositoryOptions struct {
	// PullRequests lists pull requests. When nil, a GitHub client is created on
	// first use from the origin remote and GITHUB_TOKEN.
	PullRequests PullRequestLister
	// MessageLimit is the default commit message width for CommitInfo
	MessageLimit int
}

// OpenRepository checks that loc holds a repository and returns a backend for it.
// No handle is kept open; every operation opens its own.
func OpenRepository(loc Location, opts RepositoryOptions) (*Repository, error) {
	resolved, err := loc.Resolve()
	if err != nil {
		return nil, err
	}
	r := &Repository{
		loc:          resolved,
		pulls:        opts.PullRequests,
		messageLimit: opts.MessageLimit,
	}
	if r.messageLimit <= 0 {
		r.messageLimit = DefaultMessageLimit
	}

	repo, err := r.open("open")
	if err != nil {
		return nil, err
	}
	if r.loc.WorkTree == "" || r.loc.GitDir == "" {
		if wt, err := repo.Worktree(); err == nil {
			r.loc.WorkTree = wt.Filesystem.Root()
		}
	}
	r.runner = NewCommandRunner(r.loc)
	return r, nil
}

// Root returns the worktree root, or the git directory for a bare repository
func (r *Repository) Root() string {
	if r.loc.WorkTree != "" {
		return r.loc.WorkTree
	}
	return r.loc.GitDir
}

// Location returns the resolved repository location
func (r *Repository) Location() Location {
	return r.loc
}

// open returns a fresh go-git handle. Handles are never shared between goroutines.
func (r *Repository) open(op string) (*gogit.Repository, error) {
	var (
		repo *gogit.Repository
		err  error
	)
	if r.loc.GitDir != "" {
		storage := filesystem.NewStorage(osfs.New(r.loc.GitDir), cache.NewObjectLRUDefault())
		var worktree billy.Filesystem
		if r.loc.WorkTree != "" {
			worktree = osfs.New(r.loc.WorkTree)
		}
		repo, err = gogit.Open(storage, worktree)
	} else {
		repo, err = gogit.PlainOpenWithOptions(r.loc.WorkTree, &gogit.PlainOpenOptions{
			DetectDotGit:          true,
			EnableDotGitCommonDir: true,
		})
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return repo, nil
}

// classify wraps a go-git failure into a BackendError of the matching kind
func classify(op string, err error) error {
	var be *gderrors.BackendError
	if errors.As(err, &be) {
		return err
	}

	kind := gderrors.KindOther
	switch {
	case errors.Is(err, gogit.ErrRepositoryNotExists),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, plumbing.ErrObjectNotFound),
		errors.Is(err, gogit.ErrRemoteNotFound),
		errors.Is(err, os.ErrNotExist):
		kind = gderrors.KindNotFound
	case errors.Is(err, os.ErrPermission):
		kind = gderrors.KindPermission
	case errors.Is(err, gogit.ErrNonFastForwardUpdate),
		errors.Is(err, gogit.ErrUnstagedChanges),
		errors.Is(err, gogit.ErrWorktreeNotClean):
		kind = gderrors.KindConflict
	case errors.Is(err, gogit.ErrIsBareRepository),
		errors.Is(err, plumbing.ErrInvalidType):
		kind = gderrors.KindMalformed
	case isAuthError(err):
		kind = gderrors.KindAuth
	case errors.Is(err, gderrors.ErrCancelled):
		kind = gderrors.KindCancelled
	}
	return gderrors.NewBackendError(op, kind, err)
}
