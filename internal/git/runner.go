package git

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// DefaultCommandTimeout is the default timeout for git commands
const DefaultCommandTimeout = 5 * time.Minute

// CommandRunner handles execution of git commands for the operations go-git does not
// cover
type CommandRunner struct {
	workingDir string
	env        []string
}

// NewCommandRunner creates a runner for loc
func NewCommandRunner(loc Location) *CommandRunner {
	r := &CommandRunner{workingDir: loc.WorkTree}
	if loc.GitDir != "" {
		r.env = append(r.env, "GIT_DIR="+loc.GitDir)
		if loc.WorkTree != "" {
			r.env = append(r.env, "GIT_WORK_TREE="+loc.WorkTree)
		}
	}
	return r
}

// Run executes a git command with the given context and returns the trimmed output
func (r *CommandRunner) Run(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, true, args...)
}

// RunRaw executes a git command and returns the output untouched
func (r *CommandRunner) RunRaw(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, false, args...)
}

func (r *CommandRunner) run(ctx context.Context, trim bool, args ...string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// If no timeout/deadline is set in the context, add the default one
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	if r.workingDir != "" {
		cmd.Dir = r.workingDir
	}
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", gderrors.NewGitCommandError("git", args, stdout.String(), stderr.String(), ctx.Err())
		}
		return "", gderrors.NewGitCommandError("git", args, stdout.String(), stderr.String(), err)
	}
	if trim {
		return strings.TrimSpace(stdout.String()), nil
	}
	return stdout.String(), nil
}
