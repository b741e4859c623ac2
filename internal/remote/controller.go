// Package remote drives fetch, push and pull through their phases: connecting,
// credential negotiation, transfer with progress, and a terminal outcome.
//
// The controller owns one job slot per remote kind on the mutating lane. The slot
// provides generations, dispatch and completion notifications; the controller adds
// the phase machine, the ordered credential attempts, throttled progress and
// cooperative cancellation.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gitdeck.dev/gitdeck/internal/cache"
	"gitdeck.dev/gitdeck/internal/dispatch"
	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/job"
	"gitdeck.dev/gitdeck/internal/metrics"
	"gitdeck.dev/gitdeck/internal/notify"
)

// DefaultProgressInterval limits progress notifications to ten per second
const DefaultProgressInterval = 100 * time.Millisecond

// Handle identifies one remote operation
type Handle = uuid.UUID

// Backend is the part of the repository facade the controller needs
type Backend interface {
	RemoteURL(ctx context.Context, remote string) (string, error)
	Remote(ctx context.Context, req git.RemoteRequest) (*git.RemoteResult, error)
}

// AttemptOutcome is the result of trying one credential method
type AttemptOutcome int

const (
	AttemptSuccess AttemptOutcome = iota
	AttemptFailure
	AttemptSkipped
)

func (o AttemptOutcome) String() string {
	switch o {
	case AttemptSuccess:
		return "success"
	case AttemptFailure:
		return "failure"
	default:
		return "skipped"
	}
}

// CredentialAttempt records one credential method tried by an operation
type CredentialAttempt struct {
	Method  string
	Outcome AttemptOutcome
	Err     error
}

// Request is the job parameter of a remote slot
type Request struct {
	Handle  Handle
	Kind    git.Kind
	Target  Target
	Methods []CredentialMethod
}

// Outcome is the job payload of a remote slot
type Outcome struct {
	Handle   Handle
	Result   *git.RemoteResult
	Attempts []CredentialAttempt
}

// State is a snapshot of one operation
type State struct {
	Handle     Handle
	Kind       git.Kind
	Target     Target
	Phase      Phase
	Err        error
	Attempts   []CredentialAttempt
	Progress   notify.Progress
	Result     *git.RemoteResult
	Generation job.Generation
}

// Options configures a controller
type Options struct {
	ProgressInterval time.Duration
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
	// Now is the clock used for progress throttling. Defaults to time.Now.
	Now func() time.Time
}

// Controller runs remote operations and tracks their state until the terminal
// phase has been observed
type Controller struct {
	backend  Backend
	notifier job.Publisher
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	slots map[git.Kind]*job.Slot[Request, Outcome]

	mu  sync.Mutex
	ops map[Handle]*op
}

// NewController creates a controller that runs operations on d and reports to n
func NewController(b Backend, d job.Submitter, n job.Publisher, opts Options) *Controller {
	c := &Controller{
		backend:  b,
		notifier: n,
		interval: opts.ProgressInterval,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		now:      opts.Now,
		slots:    make(map[git.Kind]*job.Slot[Request, Outcome]),
		ops:      make(map[Handle]*op),
	}
	if c.interval <= 0 {
		c.interval = DefaultProgressInterval
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}

	for _, kind := range []git.Kind{git.KindFetch, git.KindPush, git.KindPull} {
		c.slots[kind] = job.NewSlot(c.run, d, n, job.Options[Request]{
			Kind:  kind,
			Class: dispatch.ClassMutating,
			KeyFunc: func(r Request) cache.Key {
				return cache.Key{Kind: r.Kind, Params: r.Handle.String()}
			},
			OnDone:  c.settle,
			Logger:  c.logger,
			Metrics: c.metrics,
		})
	}
	return c
}

// Slot returns the job slot backing kind, or nil for non-remote kinds
func (c *Controller) Slot(kind git.Kind) *job.Slot[Request, Outcome] {
	return c.slots[kind]
}

// Start begins a remote operation. Methods are tried in order, each at most once.
// The only synchronous failures are a non-remote kind and a full mutating queue.
func (c *Controller) Start(kind git.Kind, target Target, methods []CredentialMethod) (Handle, error) {
	slot, ok := c.slots[kind]
	if !ok {
		return uuid.Nil, gderrors.NewBackendError(kind.String(), gderrors.KindMalformed,
			fmt.Errorf("%s is not a remote operation", kind))
	}
	if target.Remote == "" {
		target.Remote = git.DefaultRemote
	}

	o := &op{
		handle: uuid.New(),
		kind:   kind,
		target: target,
		phase:  PhaseIdle,
		c:      c,
	}
	c.mu.Lock()
	c.ops[o.handle] = o
	c.mu.Unlock()

	gen, err := slot.Spawn(Request{Handle: o.handle, Kind: kind, Target: target, Methods: methods})
	if err != nil {
		c.mu.Lock()
		delete(c.ops, o.handle)
		c.mu.Unlock()
		return uuid.Nil, err
	}
	o.mu.Lock()
	o.gen = gen
	o.mu.Unlock()

	c.logger.Debug("remote operation started",
		slog.String("handle", o.handle.String()),
		slog.String("kind", kind.String()),
		slog.String("remote", target.Remote),
	)
	return o.handle, nil
}

// Cancel requests cooperative cancellation. It reports whether the handle is known
// and not yet terminal. The operation may still complete normally.
func (c *Controller) Cancel(h Handle) bool {
	o := c.lookup(h)
	if o == nil {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase.Terminal() {
		return false
	}
	o.cancelled.Store(true)
	return true
}

// State returns a snapshot of the operation. Once a terminal snapshot has been
// returned the handle is released and later calls report false.
func (c *Controller) State(h Handle) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.ops[h]
	if !ok {
		return State{}, false
	}
	s := o.snapshot()
	if s.Phase.Terminal() {
		delete(c.ops, h)
	}
	return s, true
}

// Active returns the handles of operations not yet released
func (c *Controller) Active() []Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Handle, 0, len(c.ops))
	for h := range c.ops {
		out = append(out, h)
	}
	return out
}

func (c *Controller) lookup(h Handle) *op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ops[h]
}

// run executes on the mutating lane worker
func (c *Controller) run(ctx context.Context, req Request) (Outcome, error) {
	o := c.lookup(req.Handle)
	if o == nil {
		return Outcome{}, fmt.Errorf("%s: %w", req.Handle, gderrors.ErrUnknownHandle)
	}
	out := Outcome{Handle: o.handle}

	if o.cancelled.Load() {
		return out, o.cancel()
	}
	if err := o.transition(PhaseConnecting, nil); err != nil {
		return out, err
	}

	target := req.Target
	if target.URL == "" {
		url, err := c.backend.RemoteURL(ctx, target.Remote)
		if err != nil {
			return out, o.fail(err)
		}
		target.URL = url
	}

	methods := req.Methods
	if len(methods) == 0 {
		methods = []CredentialMethod{anonymous{}}
	}

	// usable is set once some method applied to the URL
	usable := false
	for i := 0; i < len(methods); i++ {
		m := methods[i]
		if o.cancelled.Load() {
			out.Attempts = o.attemptsCopy()
			return out, o.cancel()
		}

		auth, err := m.Auth(ctx, target)
		if err != nil {
			outcome := AttemptFailure
			if errors.Is(err, gderrors.ErrCredentialUnavailable) {
				outcome = AttemptSkipped
			}
			o.record(CredentialAttempt{Method: m.Name(), Outcome: outcome, Err: err})
			if outcome == AttemptFailure {
				usable = true
			}
			if o.currentPhase() == PhaseConnecting {
				_ = o.transition(PhaseAwaitingCredentials, nil)
			}
			// No configured method fits this URL (a local path, a public https
			// remote): fall back to an unauthenticated attempt.
			if i == len(methods)-1 && !usable {
				methods = append(slices.Clip(methods), anonymous{})
			}
			continue
		}
		usable = true

		if o.currentPhase() == PhaseAwaitingCredentials {
			_ = o.transition(PhaseConnecting, nil)
		}

		res, err := c.backend.Remote(ctx, git.RemoteRequest{
			Kind:     req.Kind,
			Remote:   target.Remote,
			Branch:   target.Branch,
			Force:    target.Force,
			Auth:     auth,
			Progress: o.onProgress,
		})
		switch {
		case err == nil:
			o.record(CredentialAttempt{Method: m.Name(), Outcome: AttemptSuccess})
			o.mu.Lock()
			o.result = res
			o.mu.Unlock()
			out.Result = res
			out.Attempts = o.attemptsCopy()
			if err := o.transition(PhaseCompleted, nil); err != nil {
				return out, err
			}
			return out, nil

		case errors.Is(err, gderrors.ErrCancelled) || o.cancelled.Load():
			out.Attempts = o.attemptsCopy()
			return out, o.cancel()

		case errors.Is(err, gderrors.ErrAuthFailed):
			o.record(CredentialAttempt{Method: m.Name(), Outcome: AttemptFailure, Err: err})
			if o.currentPhase() == PhaseTransferring {
				out.Attempts = o.attemptsCopy()
				return out, o.fail(err)
			}
			_ = o.transition(PhaseAwaitingCredentials, nil)

		default:
			o.record(CredentialAttempt{Method: m.Name(), Outcome: AttemptFailure, Err: err})
			out.Attempts = o.attemptsCopy()
			return out, o.fail(err)
		}
	}

	out.Attempts = o.attemptsCopy()
	return out, o.fail(fmt.Errorf("%s %s: %w", req.Kind, target.Remote, gderrors.ErrAuthExhausted))
}

// settle ends an operation whose job finished without moving it to a terminal
// phase: a panic inside the backend, or queued work dropped by a dispatcher
// shutdown. It runs for stale jobs too, since every handle needs an outcome.
func (c *Controller) settle(req Request, err error) {
	if err == nil {
		return
	}
	o := c.lookup(req.Handle)
	if o == nil || o.currentPhase().Terminal() {
		return
	}
	_ = o.fail(err)
}

type op struct {
	handle Handle
	kind   git.Kind
	target Target
	c      *Controller

	cancelled atomic.Bool

	mu       sync.Mutex
	gen      job.Generation
	phase    Phase
	err      error
	attempts []CredentialAttempt
	result   *git.RemoteResult
	counters notify.Progress
	stages   map[string]bool
	lastEmit time.Time

	// counts of stages already left
	doneObjects uint64
	doneTotal   uint64
}

func (o *op) currentPhase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *op) record(a CredentialAttempt) {
	o.mu.Lock()
	o.attempts = append(o.attempts, a)
	o.mu.Unlock()
	o.c.logger.Debug("credential attempt",
		slog.String("handle", o.handle.String()),
		slog.String("method", a.Method),
		slog.String("outcome", a.Outcome.String()),
	)
}

func (o *op) attemptsCopy() []CredentialAttempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]CredentialAttempt(nil), o.attempts...)
}

func (o *op) snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Handle:     o.handle,
		Kind:       o.kind,
		Target:     o.target,
		Phase:      o.phase,
		Err:        o.err,
		Attempts:   append([]CredentialAttempt(nil), o.attempts...),
		Progress:   o.counters,
		Result:     o.result,
		Generation: o.gen,
	}
}

// transition moves to phase `to` and always notifies
func (o *op) transition(to Phase, err error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if terr := checkTransition(o.phase, to); terr != nil {
		o.c.logger.Warn("rejected remote phase change",
			slog.String("handle", o.handle.String()),
			slog.String("error", terr.Error()),
		)
		return terr
	}
	o.phase = to
	if err != nil {
		o.err = err
	}
	o.publish()
	if to.Terminal() {
		o.c.metrics.ObserveRemoteOp(o.kind.String(), to.String())
		o.c.logger.Debug("remote operation finished",
			slog.String("handle", o.handle.String()),
			slog.String("kind", o.kind.String()),
			slog.String("phase", to.String()),
		)
	}
	return nil
}

func (o *op) fail(err error) error {
	if terr := o.transition(PhaseFailed, err); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

func (o *op) cancel() error {
	err := fmt.Errorf("%s %s: %w", o.kind, o.target.Remote, gderrors.ErrCancelled)
	if terr := o.transition(PhaseCancelled, err); terr != nil {
		return errors.Join(err, terr)
	}
	return err
}

// publish must be called with o.mu held
func (o *op) publish() {
	o.lastEmit = o.c.now()
	o.c.notifier.Push(notify.RemoteOpProgress{
		Handle:   o.handle.String(),
		Kind:     o.kind,
		Phase:    o.phase.String(),
		Progress: o.counters,
	})
}

// onProgress is the transfer callback. It is the cancellation checkpoint during a
// transfer: returning an error makes the backend abort.
func (o *op) onProgress(p git.TransferProgress) error {
	if o.cancelled.Load() {
		return gderrors.ErrCancelled
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.phase == PhaseConnecting {
		if err := checkTransition(o.phase, PhaseTransferring); err != nil {
			return err
		}
		o.phase = PhaseTransferring
		o.advance(p)
		o.publish()
		return nil
	}
	if o.phase != PhaseTransferring {
		return nil
	}

	stageChanged := o.advance(p)
	if stageChanged || o.c.now().Sub(o.lastEmit) >= o.c.interval {
		o.publish()
	}
	return nil
}

// advance folds p into the running counters so they never move backwards: a stage
// that was left is never re-entered, stage counts only grow within their stage, and
// the operation totals add finished stages to the current one. It reports whether
// a new stage began.
func (o *op) advance(p git.TransferProgress) bool {
	cur := &o.counters
	if o.stages == nil {
		o.stages = make(map[string]bool)
	}
	if p.Bytes > cur.Bytes {
		cur.Bytes = p.Bytes
	}

	began := false
	if p.Stage != cur.Stage {
		if o.stages[p.Stage] {
			return false
		}
		o.stages[p.Stage] = true
		o.doneObjects += cur.StageObjects
		o.doneTotal += cur.StageTotal
		cur.Stage = p.Stage
		cur.StageObjects, cur.StageTotal = 0, 0
		began = true
	}
	cur.StageObjects = max(cur.StageObjects, p.Objects)
	cur.StageTotal = max(cur.StageTotal, p.Total)
	cur.Objects = o.doneObjects + cur.StageObjects
	cur.Total = o.doneTotal + cur.StageTotal
	return began
}
