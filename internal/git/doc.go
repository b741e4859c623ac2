// Package git is the repository backend used by the engine.
//
// It provides typed, synchronous operations over a repository:
//   - Repo state queries (status, diff, log, commit info, blame, refs)
//   - Worktree writes (stage, commit)
//   - Remote transfers (fetch, push, pull) with credentials and progress
//   - Open pull requests from GitHub
//
// Every call opens its own short-lived repository handle, so calls are safe to run
// from concurrent goroutines. Failures are reported as *errors.BackendError.
package git
