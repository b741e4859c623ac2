package git

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/mattn/go-runewidth"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// DefaultMessageLimit is the commit message width used when none is configured
const DefaultMessageLimit = 100

// CommitID identifies a single commit
type CommitID plumbing.Hash

// ParseCommitID converts a full hex object id. Abbreviated ids are rejected; use
// ResolveRevision for those.
func ParseCommitID(s string) (CommitID, error) {
	s = strings.TrimSpace(s)
	if _, err := hex.DecodeString(s); err != nil || len(s) != 40 {
		return CommitID{}, gderrors.NewBackendError("parse-commit-id", gderrors.KindMalformed,
			fmt.Errorf("invalid commit id %q", s))
	}
	return CommitID(plumbing.NewHash(s)), nil
}

func (id CommitID) String() string {
	return plumbing.Hash(id).String()
}

// Short returns the 7 character abbreviation
func (id CommitID) Short() string {
	return id.String()[:7]
}

// IsZero reports whether the id is unset
func (id CommitID) IsZero() bool {
	return plumbing.Hash(id).IsZero()
}

// Hash returns the go-git hash
func (id CommitID) Hash() plumbing.Hash {
	return plumbing.Hash(id)
}

// MarshalText encodes the id as hex
func (id CommitID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText decodes a hex id
func (id *CommitID) UnmarshalText(b []byte) error {
	parsed, err := ParseCommitID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// CommitInfo is the summary shown in commit lists
type CommitInfo struct {
	ID      CommitID
	Message string
	Author  string
	Time    int64
}

// ResolveRevision resolves any revision expression (branch, tag, abbreviated id,
// HEAD~2) to a commit id
func (r *Repository) ResolveRevision(_ context.Context, revision string) (CommitID, error) {
	repo, err := r.open("resolve-revision")
	if err != nil {
		return CommitID{}, err
	}
	if revision == "" {
		revision = "HEAD"
	}
	h, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return CommitID{}, classify("resolve-revision", err)
	}
	return CommitID(*h), nil
}

// CommitInfo returns the summary of each requested commit, in request order
func (r *Repository) CommitInfo(ctx context.Context, p CommitInfoParams) ([]CommitInfo, error) {
	repo, err := r.open("commit-info")
	if err != nil {
		return nil, err
	}
	limit := p.MessageLimit
	if limit <= 0 {
		limit = r.messageLimit
	}

	infos := make([]CommitInfo, 0, len(p.IDs))
	for _, id := range p.IDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := repo.CommitObject(id.Hash())
		if err != nil {
			return nil, classify("commit-info", err)
		}
		author := c.Author.Name
		if author == "" {
			author = "<unknown>"
		}
		infos = append(infos, CommitInfo{
			ID:      id,
			Message: SummaryLine(c.Message, limit),
			Author:  author,
			Time:    c.Author.When.Unix(),
		})
	}
	return infos, nil
}

// SummaryLine returns the first line of msg truncated to limit display cells.
// A limit of zero or less returns the whole trimmed message.
func SummaryLine(msg string, limit int) string {
	msg = strings.TrimSpace(msg)
	if limit <= 0 {
		return msg
	}
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = strings.TrimRight(msg[:i], "\r")
	}
	return runewidth.Truncate(msg, limit, "")
}
