package git

import (
	"context"
	"time"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Backend is the synchronous repository facade. Implementations must be safe for
// concurrent calls; read operations may run in parallel, writes are serialized by the
// caller.
type Backend interface {
	Status(ctx context.Context, p StatusParams) (*StatusResult, error)
	Diff(ctx context.Context, p DiffParams) (*DiffResult, error)
	Log(ctx context.Context, p LogParams) ([]CommitID, error)
	CommitInfo(ctx context.Context, p CommitInfoParams) ([]CommitInfo, error)
	Blame(ctx context.Context, p BlameParams) (*BlameResult, error)
	Tags(ctx context.Context, p TagParams) ([]Ref, error)
	Branches(ctx context.Context, p BranchParams) ([]Ref, error)
	PullRequests(ctx context.Context, p PullRequestParams) ([]PullRequest, error)

	Stage(ctx context.Context, p StageParams) (*StageResult, error)
	Commit(ctx context.Context, p CommitParams) (CommitID, error)

	RemoteURL(ctx context.Context, remote string) (string, error)
	Remote(ctx context.Context, req RemoteRequest) (*RemoteResult, error)
}

// StatusParams has no fields; status always covers the whole worktree
type StatusParams struct{}

// FileStatus is the state of one path in the index and in the worktree
type FileStatus struct {
	Path     string
	Staging  byte
	Worktree byte
	Extra    string
}

// StatusResult is the worktree status
type StatusResult struct {
	Branch string
	Head   CommitID
	Files  []FileStatus
}

// Clean reports whether nothing is modified, staged or untracked
func (s *StatusResult) Clean() bool {
	return len(s.Files) == 0
}

// DiffParams selects a diff. An empty Path means the whole worktree.
type DiffParams struct {
	Path   string `json:"path,omitempty"`
	Staged bool   `json:"staged,omitempty"`
}

// DiffResult holds a unified diff and its per-file stat
type DiffResult struct {
	Path  string
	Patch string
	Stat  []DiffStat
}

// DiffStat is the line count of one changed file
type DiffStat struct {
	Path      string
	Additions int
	Deletions int
	Binary    bool
}

// LogParams selects a commit walk. An empty Revision means HEAD; Limit zero means
// no limit.
type LogParams struct {
	Revision string `json:"revision,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// CommitInfoParams selects commits by id. MessageLimit zero uses the repository
// default.
type CommitInfoParams struct {
	IDs          []CommitID `json:"ids"`
	MessageLimit int        `json:"message_limit,omitempty"`
}

// BlameParams selects a file at a revision. An empty Revision means HEAD.
type BlameParams struct {
	Path     string `json:"path"`
	Revision string `json:"revision,omitempty"`
}

// BlameLine is one attributed line
type BlameLine struct {
	Number int
	ID     CommitID
	Author string
	When   time.Time
	Text   string
}

// BlameResult is the blame of one file
type BlameResult struct {
	Path  string
	Rev   CommitID
	Lines []BlameLine
}

// TagParams filters tags by name prefix
type TagParams struct {
	Prefix string `json:"prefix,omitempty"`
}

// BranchParams filters local branches by name prefix
type BranchParams struct {
	Prefix string `json:"prefix,omitempty"`
}

// Ref is a named pointer to a commit
type Ref struct {
	Name   string
	Target CommitID
	Head   bool
}

// PullRequestParams filters pull requests. State defaults to "open".
type PullRequestParams struct {
	State string `json:"state,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// PullRequest is a GitHub pull request
type PullRequest struct {
	Number  int
	Title   string
	State   string
	Author  string
	Head    string
	Base    string
	HTMLURL string
	Draft   bool
}

// StageParams selects paths to stage. All stages every change, including removals.
type StageParams struct {
	Paths []string `json:"paths,omitempty"`
	All   bool     `json:"all,omitempty"`
}

// StageResult lists the staged paths
type StageResult struct {
	Paths []string
}

// CommitParams describes a new commit. Author defaults to the repository config.
type CommitParams struct {
	Message     string `json:"message"`
	AuthorName  string `json:"author_name,omitempty"`
	AuthorEmail string `json:"author_email,omitempty"`
	AllowEmpty  bool   `json:"allow_empty,omitempty"`
}

// RemoteRequest is one remote transfer attempt with one credential
type RemoteRequest struct {
	Kind   Kind
	Remote string
	Branch string
	Force  bool
	Auth   transport.AuthMethod
	// Progress receives parsed transfer progress. Returning an error aborts the transfer.
	Progress func(TransferProgress) error
}

// RemoteResult summarizes a finished transfer
type RemoteResult struct {
	Kind     Kind
	Remote   string
	Branch   string
	UpToDate bool
	Head     CommitID
}

var _ Backend = (*Repository)(nil)
