package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gitdeck.dev/gitdeck/internal/cache"
	"gitdeck.dev/gitdeck/internal/dispatch"
	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/job"
	"gitdeck.dev/gitdeck/internal/metrics"
	"gitdeck.dev/gitdeck/internal/notify"
	"gitdeck.dev/gitdeck/internal/remote"
)

// Config sizes the engine
type Config struct {
	Dispatch         dispatch.Config
	ProgressInterval time.Duration
}

// Options carries the ambient collaborators. All fields may be zero.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Engine owns the slots, the dispatcher, the cache, the notification channel and the
// remote controller. It is safe for concurrent use; the notification methods belong
// to a single consumer.
type Engine struct {
	backend    git.Backend
	dispatcher *dispatch.Dispatcher
	notes      *notify.Channel
	cache      *cache.Cache
	remote     *remote.Controller
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// slots is written only by New
	slots map[git.Kind]job.Runner
}

// New creates an engine on top of b. Call Start before spawning work.
func New(b git.Backend, cfg Config, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		dispatcher: dispatch.New(cfg.Dispatch, logger, opts.Metrics),
		notes:      notify.NewChannel(),
		cache:      cache.New(opts.Metrics),
		logger:     logger,
		metrics:    opts.Metrics,
		slots:      make(map[git.Kind]job.Runner),
	}
	// Writes change what every cached query would return.
	e.backend = &invalidating{Backend: b, engine: e}

	register(e, git.KindStatus, e.backend.Status)
	register(e, git.KindDiff, e.backend.Diff)
	register(e, git.KindLog, e.backend.Log)
	register(e, git.KindCommitInfo, e.backend.CommitInfo)
	register(e, git.KindBlame, e.backend.Blame)
	register(e, git.KindTags, e.backend.Tags)
	register(e, git.KindBranches, e.backend.Branches)
	register(e, git.KindPullRequests, e.backend.PullRequests)
	register(e, git.KindStage, e.backend.Stage)
	register(e, git.KindCommit, e.backend.Commit)

	e.remote = remote.NewController(e.backend, e.dispatcher, e.notes, remote.Options{
		ProgressInterval: cfg.ProgressInterval,
		Logger:           logger,
		Metrics:          opts.Metrics,
	})
	for _, kind := range []git.Kind{git.KindFetch, git.KindPush, git.KindPull} {
		e.slots[kind] = e.remote.Slot(kind)
	}
	return e
}

// register creates the slot for one kind. Read kinds write through to the cache;
// mutating kinds run on the single-worker lane and are never cached.
func register[P, T any](e *Engine, kind git.Kind, fn job.RunFunc[P, T]) *job.Slot[P, T] {
	opts := job.Options[P]{
		Kind:    kind,
		Class:   dispatch.ClassRead,
		Store:   e.cache,
		Logger:  e.logger,
		Metrics: e.metrics,
	}
	if kind.Mutating() {
		opts.Class = dispatch.ClassMutating
		opts.Store = nil
	}
	s := job.NewSlot(fn, e.dispatcher, e.notes, opts)
	e.slots[kind] = s
	return s
}

// Start launches the worker goroutines
func (e *Engine) Start(ctx context.Context) error {
	return e.dispatcher.Start(ctx)
}

// Stop waits for running jobs to finish, or cancels them when ctx expires. Queued
// jobs complete as failures.
func (e *Engine) Stop(ctx context.Context) error {
	return e.dispatcher.Stop(ctx)
}

// kindOf maps a parameter value to the operation it requests
func kindOf(params any) (git.Kind, error) {
	if kind, ok := git.KindOf(params); ok {
		return kind, nil
	}
	return 0, gderrors.NewBackendError("spawn", gderrors.KindMalformed,
		fmt.Errorf("no operation takes %T; remote operations start with StartRemoteOp", params))
}

// Spawn starts the operation selected by the type of params and returns its
// generation. It never waits for the backend. ErrQueueFull is the only error a valid
// params value can produce.
func (e *Engine) Spawn(params any) (job.Generation, error) {
	kind, err := kindOf(params)
	if err != nil {
		return 0, err
	}
	return e.slots[kind].SpawnAny(params)
}

// LastResult returns the latest current-generation payload of kind
func (e *Engine) LastResult(kind git.Kind) (any, job.Generation, bool) {
	s, ok := e.slots[kind]
	if !ok {
		return nil, 0, false
	}
	return s.LastAny()
}

// Result is LastResult with the payload typed, for example
// Result[*git.StatusResult](e, git.KindStatus).
func Result[T any](e *Engine, kind git.Kind) (T, job.Generation, bool) {
	var zero T
	v, gen, ok := e.LastResult(kind)
	if !ok {
		return zero, 0, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, 0, false
	}
	return t, gen, true
}

// LastError returns the failure of kind's latest completed generation, if it failed
func (e *Engine) LastError(kind git.Kind) (error, job.Generation) {
	s, ok := e.slots[kind]
	if !ok {
		return nil, 0
	}
	return s.LastError()
}

// IsPending reports whether the newest generation of kind has not completed
func (e *Engine) IsPending(kind git.Kind) bool {
	s, ok := e.slots[kind]
	return ok && s.IsPending()
}

// Generation returns the newest generation spawned for kind
func (e *Engine) Generation(kind git.Kind) job.Generation {
	s, ok := e.slots[kind]
	if !ok {
		return 0
	}
	return s.Generation()
}

// Cached returns the cached payload for exactly these params, if still valid
func (e *Engine) Cached(params any) (any, bool) {
	kind, err := kindOf(params)
	if err != nil {
		return nil, false
	}
	return e.cache.Get(cache.NewKey(kind, params))
}

// Invalidate marks every cached result of kind as untrusted
func (e *Engine) Invalidate(kind git.Kind) {
	e.cache.InvalidateKind(kind)
}

// InvalidateParams marks the cached result for exactly these params as untrusted
func (e *Engine) InvalidateParams(params any) error {
	kind, err := kindOf(params)
	if err != nil {
		return err
	}
	e.cache.Invalidate(cache.NewKey(kind, params))
	return nil
}

// InvalidateAll marks every cached result as untrusted and tells the consumer.
// Nothing is spawned again.
func (e *Engine) InvalidateAll(reason string) {
	e.cache.InvalidateAll()
	released := e.cache.Prune()
	e.logger.Debug("cache invalidated",
		slog.String("reason", reason),
		slog.Int("released", released),
	)
	e.notes.Push(notify.BackendStateChanged{Reason: reason})
}

// TryRecv returns the next notification without blocking
func (e *Engine) TryRecv() (notify.Notification, bool) {
	return e.notes.TryRecv()
}

// Drain returns every queued notification
func (e *Engine) Drain() []notify.Notification {
	return e.notes.Drain()
}

// Wait blocks until a notification may be available or ctx is done
func (e *Engine) Wait(ctx context.Context) error {
	return e.notes.Wait(ctx)
}

// StartRemoteOp begins a fetch, push or pull. creds are tried in order, each once.
func (e *Engine) StartRemoteOp(kind git.Kind, target remote.Target, creds []remote.CredentialMethod) (remote.Handle, error) {
	return e.remote.Start(kind, target, creds)
}

// Cancel asks a remote operation to stop at its next checkpoint
func (e *Engine) Cancel(h remote.Handle) bool {
	return e.remote.Cancel(h)
}

// State returns a snapshot of a remote operation. A terminal snapshot is returned
// once; afterwards the handle is unknown.
func (e *Engine) State(h remote.Handle) (remote.State, bool) {
	return e.remote.State(h)
}

// Stats is a diagnostic snapshot
type Stats struct {
	Lanes        map[dispatch.Class]dispatch.LaneStats
	CacheEntries int
	Backlog      int
	RemoteOps    int
}

// Stats returns lane, cache and notification counters
func (e *Engine) Stats() Stats {
	return Stats{
		Lanes:        e.dispatcher.Stats(),
		CacheEntries: e.cache.Len(),
		Backlog:      e.notes.Len(),
		RemoteOps:    len(e.remote.Active()),
	}
}

// invalidating runs writes and transfers through the backend and invalidates the
// cache when one succeeds
type invalidating struct {
	git.Backend
	engine *Engine
}

func (b *invalidating) Stage(ctx context.Context, p git.StageParams) (*git.StageResult, error) {
	res, err := b.Backend.Stage(ctx, p)
	if err == nil {
		b.engine.InvalidateAll(git.KindStage.String())
	}
	return res, err
}

func (b *invalidating) Commit(ctx context.Context, p git.CommitParams) (git.CommitID, error) {
	id, err := b.Backend.Commit(ctx, p)
	if err == nil {
		b.engine.InvalidateAll(git.KindCommit.String())
	}
	return id, err
}

func (b *invalidating) Remote(ctx context.Context, req git.RemoteRequest) (*git.RemoteResult, error) {
	res, err := b.Backend.Remote(ctx, req)
	if err == nil && (res == nil || !res.UpToDate) {
		b.engine.InvalidateAll(req.Kind.String())
	}
	return res, err
}
