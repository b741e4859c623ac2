package git

import (
	"context"
	"strconv"
	"strings"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// Diff returns the worktree diff (or the index diff when Staged is set). go-git has
// no worktree diff, so this shells out to git.
func (r *Repository) Diff(ctx context.Context, p DiffParams) (*DiffResult, error) {
	args := []string{"diff", "--no-color", "--no-ext-diff"}
	if p.Staged {
		args = append(args, "--cached")
	}

	statArgs := append(append([]string{}, args...), "--numstat")
	patchArgs := args
	if p.Path != "" {
		statArgs = append(statArgs, "--", p.Path)
		patchArgs = append(patchArgs, "--", p.Path)
	}

	numstat, err := r.runner.Run(ctx, statArgs...)
	if err != nil {
		return nil, gderrors.NewBackendError("diff", gderrors.KindOther, err)
	}
	patch, err := r.runner.RunRaw(ctx, patchArgs...)
	if err != nil {
		return nil, gderrors.NewBackendError("diff", gderrors.KindOther, err)
	}

	return &DiffResult{
		Path:  p.Path,
		Patch: patch,
		Stat:  ParseNumstat(numstat),
	}, nil
}

// ParseNumstat parses `git diff --numstat` output. Binary files report "-" counts.
func ParseNumstat(out string) []DiffStat {
	var stats []DiffStat
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		st := DiffStat{Path: fields[2]}
		if fields[0] == "-" && fields[1] == "-" {
			st.Binary = true
		} else {
			st.Additions, _ = strconv.Atoi(fields[0])
			st.Deletions, _ = strconv.Atoi(fields[1])
		}
		stats = append(stats, st)
	}
	return stats
}
