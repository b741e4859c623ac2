// Package errors provides sentinel errors and custom error types for gitdeck.
// Use errors.Is() and errors.As() to check for specific error types.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine conditions
var (
	// ErrQueueFull indicates that a dispatcher lane cannot accept more work.
	// It is the only error returned synchronously by the engine's spawn paths.
	ErrQueueFull = errors.New("dispatcher queue full")

	// ErrStale marks a result that was superseded by a newer generation.
	// It is used internally and never surfaced to the consumer.
	ErrStale = errors.New("stale result")

	// ErrAuthExhausted indicates that every configured credential method failed
	ErrAuthExhausted = errors.New("all credential methods exhausted")

	// ErrAuthFailed indicates that the remote rejected the offered credential
	ErrAuthFailed = errors.New("authentication failed")

	// ErrCredentialUnavailable indicates that a credential method could not produce
	// a credential (no agent running, key file missing, prompt declined)
	ErrCredentialUnavailable = errors.New("credential unavailable")

	// ErrCancelled indicates that a remote operation acknowledged a cancel request
	ErrCancelled = errors.New("operation cancelled")

	// ErrInvalidTransition indicates a forbidden remote operation phase change
	ErrInvalidTransition = errors.New("invalid phase transition")

	// ErrUnknownHandle indicates that a remote operation handle is not tracked
	ErrUnknownHandle = errors.New("unknown operation handle")

	// ErrDispatcherStopped indicates that the dispatcher no longer accepts or runs work
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Backend error categories
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrPermission = errors.New("permission denied")
	ErrMalformed  = errors.New("malformed data")
)

// BackendErrorKind classifies a backend failure
type BackendErrorKind int

const (
	// KindOther is an unclassified backend failure
	KindOther BackendErrorKind = iota
	KindNotFound
	KindConflict
	KindPermission
	KindMalformed
	KindAuth
	KindCancelled
)

func (k BackendErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindConflict:
		return "conflict"
	case KindPermission:
		return "permission"
	case KindMalformed:
		return "malformed"
	case KindAuth:
		return "auth"
	case KindCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// BackendError represents an operation-specific failure reported by the backend
type BackendError struct {
	Op   string
	Kind BackendErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is maps the error kind onto the matching sentinel
func (e *BackendError) Is(target error) bool {
	switch e.Kind {
	case KindNotFound:
		return target == ErrNotFound
	case KindConflict:
		return target == ErrConflict
	case KindPermission:
		return target == ErrPermission
	case KindMalformed:
		return target == ErrMalformed
	case KindAuth:
		return target == ErrAuthFailed
	case KindCancelled:
		return target == ErrCancelled
	}
	return false
}

// NewBackendError creates a new BackendError
func NewBackendError(op string, kind BackendErrorKind, err error) *BackendError {
	return &BackendError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// PanicError is produced when a job closure panics inside a worker
type PanicError struct {
	Job   string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.Job, e.Value)
}

// NewPanicError creates a new PanicError
func NewPanicError(job string, value any, stack string) *PanicError {
	return &PanicError{
		Job:   job,
		Value: value,
		Stack: stack,
	}
}

// GitCommandError represents an error from a git command execution
type GitCommandError struct {
	Command string
	Args    []string
	Stdout  string
	Stderr  string
	Err     error
}

func (e *GitCommandError) Error() string {
	msg := fmt.Sprintf("git command failed: %s", e.Command)
	if len(e.Args) > 0 {
		msg += fmt.Sprintf(" %v", e.Args)
	}
	if e.Stderr != "" {
		msg += fmt.Sprintf("\nstderr: %s", e.Stderr)
	}
	if e.Stdout != "" {
		msg += fmt.Sprintf("\nstdout: %s", e.Stdout)
	}
	if e.Err != nil {
		msg += fmt.Sprintf("\n%v", e.Err)
	}
	return msg
}

func (e *GitCommandError) Unwrap() error {
	return e.Err
}

// NewGitCommandError creates a new GitCommandError
func NewGitCommandError(command string, args []string, stdout, stderr string, err error) *GitCommandError {
	return &GitCommandError{
		Command: command,
		Args:    args,
		Stdout:  stdout,
		Stderr:  stderr,
		Err:     err,
	}
}
