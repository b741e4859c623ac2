package engine

import (
	"context"

	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/job"
	"gitdeck.dev/gitdeck/internal/notify"
	"gitdeck.dev/gitdeck/internal/remote"
)

// Notifications is the per-tick event surface
type Notifications interface {
	TryRecv() (notify.Notification, bool)
	Drain() []notify.Notification
	Wait(ctx context.Context) error
}

// Queries spawns operations and reads their latest results
type Queries interface {
	Spawn(params any) (job.Generation, error)
	LastResult(kind git.Kind) (any, job.Generation, bool)
	LastError(kind git.Kind) (error, job.Generation)
	Cached(params any) (any, bool)
	IsPending(kind git.Kind) bool
}

// Invalidator marks cached results as untrusted
type Invalidator interface {
	Invalidate(kind git.Kind)
	InvalidateParams(params any) error
	InvalidateAll(reason string)
}

// RemoteOps runs fetch, push and pull
type RemoteOps interface {
	StartRemoteOp(kind git.Kind, target remote.Target, creds []remote.CredentialMethod) (remote.Handle, error)
	Cancel(h remote.Handle) bool
	State(h remote.Handle) (remote.State, bool)
}

// Consumer is the full surface the UI and the CLI use.
// New code should prefer the smaller interfaces.
type Consumer interface {
	Notifications
	Queries
	Invalidator
	RemoteOps
}

var _ Consumer = (*Engine)(nil)
