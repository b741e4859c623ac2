// Package job implements generation-tracked job slots.
//
// A Slot owns one operation kind. Every Spawn bumps the slot's generation before the
// work is dispatched; when a result arrives it is kept only if its generation is still
// the slot's current one. Backend calls cannot be preempted, so superseded jobs are
// left to finish and their results are dropped on arrival.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitdeck.dev/gitdeck/internal/cache"
	"gitdeck.dev/gitdeck/internal/dispatch"
	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/metrics"
	"gitdeck.dev/gitdeck/internal/notify"
)

// Generation identifies request freshness within one slot
type Generation uint64

// Submitter accepts work for a worker goroutine
type Submitter interface {
	Submit(t dispatch.Task) error
}

// Publisher receives notifications without blocking
type Publisher interface {
	Push(n notify.Notification)
}

// ResultStore is the cache surface a slot writes through
type ResultStore interface {
	Token(key cache.Key) cache.Token
	Put(key cache.Key, payload any, token cache.Token) bool
}

// RunFunc performs the blocking backend call for one request
type RunFunc[P, T any] func(ctx context.Context, params P) (T, error)

// Request is one dispatched call. It is immutable once created.
type Request[P any] struct {
	Kind       git.Kind
	Params     P
	Generation Generation
	Key        cache.Key
	Token      cache.Token
	Dispatched time.Time
}

// Result is the outcome of a request that ran to completion
type Result[T any] struct {
	Kind       git.Kind
	Generation Generation
	Payload    T
	Err        error
	Duration   time.Duration
}

// Options configures a slot
type Options[P any] struct {
	Kind  git.Kind
	Class dispatch.Class

	// Store receives successful current-generation payloads. May be nil.
	Store ResultStore
	// KeyFunc derives the cache key from the parameters. Defaults to cache.NewKey.
	KeyFunc func(P) cache.Key

	// OnDone sees every finished request, stale or not, before the slot decides
	// whether to keep its result. May be nil.
	OnDone func(params P, err error)

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Slot holds the in-flight and latest-result state of one operation kind
type Slot[P, T any] struct {
	kind       git.Kind
	class      dispatch.Class
	run        RunFunc[P, T]
	dispatcher Submitter
	notifier   Publisher
	store      ResultStore
	keyFunc    func(P) cache.Key
	onDone     func(P, error)
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	current Generation
	settled Generation
	last    *Result[T]
	lastErr *Result[T]
	stale   uint64
}

// NewSlot creates a slot that runs fn on d and reports to n
func NewSlot[P, T any](fn RunFunc[P, T], d Submitter, n Publisher, opts Options[P]) *Slot[P, T] {
	s := &Slot[P, T]{
		kind:       opts.Kind,
		class:      opts.Class,
		run:        fn,
		dispatcher: d,
		notifier:   n,
		store:      opts.Store,
		keyFunc:    opts.KeyFunc,
		onDone:     opts.OnDone,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if s.keyFunc == nil {
		kind := opts.Kind
		s.keyFunc = func(p P) cache.Key { return cache.NewKey(kind, p) }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Kind returns the operation kind of the slot
func (s *Slot[P, T]) Kind() git.Kind {
	return s.kind
}

// Spawn starts a new generation for params and returns it. It never waits for the
// backend. A still-running earlier job is not cancelled; its result will be dropped
// when it arrives. ErrQueueFull is returned when the dispatcher lane is full; the
// generation has been consumed either way.
func (s *Slot[P, T]) Spawn(params P) (Generation, error) {
	s.mu.Lock()
	s.current++
	gen := s.current
	s.mu.Unlock()

	key := s.keyFunc(params)
	req := Request[P]{
		Kind:       s.kind,
		Params:     params,
		Generation: gen,
		Key:        key,
		Dispatched: time.Now(),
	}
	if s.store != nil {
		req.Token = s.store.Token(key)
	}

	err := s.dispatcher.Submit(dispatch.Task{
		Name:  s.kind.String(),
		Class: s.class,
		Run: func(ctx context.Context) (any, error) {
			return s.run(ctx, params)
		},
		Done: func(payload any, err error) {
			s.complete(req, payload, err)
		},
	})
	if err != nil {
		s.mu.Lock()
		if gen > s.settled {
			s.settled = gen
		}
		s.mu.Unlock()
		return gen, err
	}

	s.metrics.ObserveDispatch(s.kind.String())
	s.logger.Debug("job dispatched",
		slog.String("kind", s.kind.String()),
		slog.Uint64("generation", uint64(gen)),
		slog.String("key", key.String()),
	)
	return gen, nil
}

// complete runs on the worker goroutine that executed the request
func (s *Slot[P, T]) complete(req Request[P], payload any, err error) {
	duration := time.Since(req.Dispatched)

	var value T
	if err == nil && payload != nil {
		v, ok := payload.(T)
		if !ok {
			err = gderrors.NewBackendError(s.kind.String(), gderrors.KindMalformed,
				fmt.Errorf("unexpected payload type %T", payload))
		} else {
			value = v
		}
	}
	if s.onDone != nil {
		s.onDone(req.Params, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Generation < s.current {
		s.stale++
		s.metrics.ObserveStale(s.kind.String())
		s.logger.Debug("stale result discarded",
			slog.String("kind", s.kind.String()),
			slog.Uint64("generation", uint64(req.Generation)),
			slog.Uint64("current", uint64(s.current)),
		)
		return
	}

	s.settled = req.Generation
	s.metrics.ObserveCompletion(s.kind.String(), err, duration)

	result := &Result[T]{
		Kind:       s.kind,
		Generation: req.Generation,
		Payload:    value,
		Err:        err,
		Duration:   duration,
	}

	// Notifications are pushed under the slot lock so they leave in generation order.
	if err != nil {
		s.lastErr = result
		s.logger.Debug("job failed",
			slog.String("kind", s.kind.String()),
			slog.Uint64("generation", uint64(req.Generation)),
			slog.String("error", err.Error()),
		)
		s.notifier.Push(notify.JobFailed{Kind: s.kind, Generation: uint64(req.Generation), Err: err})
		return
	}

	s.last = result
	s.lastErr = nil
	if s.store != nil {
		s.store.Put(req.Key, value, req.Token)
	}
	s.notifier.Push(notify.JobCompleted{Kind: s.kind, Generation: uint64(req.Generation)})
}

// LastResult returns the most recent non-stale successful payload
func (s *Slot[P, T]) LastResult() (T, Generation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		var zero T
		return zero, 0, false
	}
	return s.last.Payload, s.last.Generation, true
}

// LastError returns the failure of the current generation, if it failed after the
// last success
func (s *Slot[P, T]) LastError() (error, Generation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return nil, 0
	}
	return s.lastErr.Err, s.lastErr.Generation
}

// IsPending reports whether the current generation has not completed yet
func (s *Slot[P, T]) IsPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current > s.settled
}

// Generation returns the current generation
func (s *Slot[P, T]) Generation() Generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// StaleCount returns how many results were discarded as superseded
func (s *Slot[P, T]) StaleCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stale
}

// Runner is the type-erased view of a slot, used by owners that hold slots of
// different parameter and payload types side by side
type Runner interface {
	Kind() git.Kind
	SpawnAny(params any) (Generation, error)
	LastAny() (any, Generation, bool)
	LastError() (error, Generation)
	IsPending() bool
	Generation() Generation
}

// SpawnAny spawns with params asserted to the slot's parameter type. A nil params
// spawns with the zero value.
func (s *Slot[P, T]) SpawnAny(params any) (Generation, error) {
	if params == nil {
		var zero P
		return s.Spawn(zero)
	}
	p, ok := params.(P)
	if !ok {
		var zero P
		return 0, fmt.Errorf("%s: params must be %T, got %T", s.kind, zero, params)
	}
	return s.Spawn(p)
}

// LastAny returns LastResult with the payload boxed
func (s *Slot[P, T]) LastAny() (any, Generation, bool) {
	v, gen, ok := s.LastResult()
	if !ok {
		return nil, 0, false
	}
	return v, gen, true
}

var _ Runner = (*Slot[struct{}, struct{}])(nil)
