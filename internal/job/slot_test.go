package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitdeck.dev/gitdeck/internal/cache"
	"gitdeck.dev/gitdeck/internal/dispatch"
	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/job"
	"gitdeck.dev/gitdeck/internal/notify"
)

// statusParams carries a per-call gate that is invisible to the cache key
type statusParams struct {
	Path string `json:"path"`
	gate chan struct{}
	out  string
	err  error
}

func gatedRun(ctx context.Context, p statusParams) (string, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return p.out, p.err
}

type fixture struct {
	dispatcher *dispatch.Dispatcher
	channel    *notify.Channel
	cache      *cache.Cache
	slot       *job.Slot[statusParams, string]
}

func newFixture(t *testing.T, cfg dispatch.Config) *fixture {
	t.Helper()
	d := dispatch.New(cfg, nil, nil)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = d.Stop(ctx)
	})

	ch := notify.NewChannel()
	c := cache.New(nil)
	slot := job.NewSlot(gatedRun, d, ch, job.Options[statusParams]{
		Kind:  git.KindStatus,
		Class: dispatch.ClassRead,
		Store: c,
	})
	return &fixture{dispatcher: d, channel: ch, cache: c, slot: slot}
}

func recv(t *testing.T, ch *notify.Channel) notify.Notification {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		if n, ok := ch.TryRecv(); ok {
			return n
		}
		require.NoError(t, ch.Wait(ctx), "timed out waiting for a notification")
	}
}

func TestSlot_SupersededResultIsDiscarded(t *testing.T) {
	f := newFixture(t, dispatch.Config{Workers: 2})

	gate1 := make(chan struct{})
	gate2 := make(chan struct{})

	gen1, err := f.slot.Spawn(statusParams{gate: gate1, out: "first"})
	require.NoError(t, err)
	require.Equal(t, job.Generation(1), gen1)

	time.Sleep(10 * time.Millisecond)
	gen2, err := f.slot.Spawn(statusParams{gate: gate2, out: "second"})
	require.NoError(t, err)
	require.Equal(t, job.Generation(2), gen2)

	// Generation 1 finishes while generation 2 is still running.
	time.Sleep(40 * time.Millisecond)
	close(gate1)
	require.Eventually(t, func() bool { return f.slot.StaleCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, _, ok := f.slot.LastResult()
	require.False(t, ok, "a superseded result must never be exposed")
	require.True(t, f.slot.IsPending())
	require.Equal(t, 0, f.channel.Len(), "a superseded result must not notify")
	_, ok = f.cache.Get(cache.NewKey(git.KindStatus, statusParams{}))
	require.False(t, ok, "a superseded result must not reach the cache")

	close(gate2)
	n := recv(t, f.channel)
	require.Equal(t, notify.JobCompleted{Kind: git.KindStatus, Generation: 2}, n)

	v, gen, ok := f.slot.LastResult()
	require.True(t, ok)
	require.Equal(t, "second", v)
	require.Equal(t, job.Generation(2), gen)
	require.False(t, f.slot.IsPending())

	cached, ok := f.cache.Get(cache.NewKey(git.KindStatus, statusParams{}))
	require.True(t, ok)
	require.Equal(t, "second", cached)
}

func TestSlot_GenerationsIncreaseByOne(t *testing.T) {
	f := newFixture(t, dispatch.Config{Workers: 1})

	gate := make(chan struct{})
	for i := 1; i <= 5; i++ {
		gen, err := f.slot.Spawn(statusParams{gate: gate, out: "x"})
		require.NoError(t, err)
		require.Equal(t, job.Generation(i), gen)
	}
	require.Equal(t, job.Generation(5), f.slot.Generation())
	close(gate)

	require.Eventually(t, func() bool { return !f.slot.IsPending() }, 2*time.Second, 5*time.Millisecond)
	_, gen, ok := f.slot.LastResult()
	require.True(t, ok)
	require.Equal(t, job.Generation(5), gen, "only the highest generation may be retained")
	require.Equal(t, uint64(4), f.slot.StaleCount())
}

func TestSlot_Failure(t *testing.T) {
	f := newFixture(t, dispatch.Config{Workers: 1})

	_, err := f.slot.Spawn(statusParams{out: "ok"})
	require.NoError(t, err)
	require.IsType(t, notify.JobCompleted{}, recv(t, f.channel))

	boom := gderrors.NewBackendError("status", gderrors.KindNotFound, errors.New("no repo"))
	_, err = f.slot.Spawn(statusParams{err: boom})
	require.NoError(t, err, "backend failures are reported asynchronously")

	n := recv(t, f.channel)
	failed, ok := n.(notify.JobFailed)
	require.True(t, ok)
	require.Equal(t, uint64(2), failed.Generation)
	require.ErrorIs(t, failed.Err, gderrors.ErrNotFound)

	lastErr, gen := f.slot.LastError()
	require.ErrorIs(t, lastErr, gderrors.ErrNotFound)
	require.Equal(t, job.Generation(2), gen)

	// The previous good payload stays readable.
	v, gen, ok := f.slot.LastResult()
	require.True(t, ok)
	require.Equal(t, "ok", v)
	require.Equal(t, job.Generation(1), gen)

	// A later success clears the error.
	_, err = f.slot.Spawn(statusParams{out: "again"})
	require.NoError(t, err)
	require.IsType(t, notify.JobCompleted{}, recv(t, f.channel))
	lastErr, _ = f.slot.LastError()
	require.NoError(t, lastErr)
}

func TestSlot_PanicIsReportedAsFailure(t *testing.T) {
	d := dispatch.New(dispatch.Config{Workers: 1}, nil, nil)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	ch := notify.NewChannel()
	slot := job.NewSlot(func(context.Context, struct{}) (int, error) {
		panic("index out of range")
	}, d, ch, job.Options[struct{}]{Kind: git.KindLog})

	_, err := slot.Spawn(struct{}{})
	require.NoError(t, err)

	failed, ok := recv(t, ch).(notify.JobFailed)
	require.True(t, ok)
	var pe *gderrors.PanicError
	require.ErrorAs(t, failed.Err, &pe)
	require.False(t, slot.IsPending())
}

func TestSlot_QueueFull(t *testing.T) {
	d := dispatch.New(dispatch.Config{Workers: 1, MutatingQueueSize: 1}, nil, nil)
	ch := notify.NewChannel()
	slot := job.NewSlot(gatedRun, d, ch, job.Options[statusParams]{
		Kind:  git.KindCommit,
		Class: dispatch.ClassMutating,
	})

	// Workers are not started, so the single queue slot fills immediately.
	_, err := slot.Spawn(statusParams{out: "a"})
	require.NoError(t, err)

	gen, err := slot.Spawn(statusParams{out: "b"})
	require.ErrorIs(t, err, gderrors.ErrQueueFull)
	require.Equal(t, job.Generation(2), gen, "the rejected spawn still consumed a generation")
	require.False(t, slot.IsPending())

	require.NoError(t, d.Stop(context.Background()))
}

func TestSlot_SpawnAny(t *testing.T) {
	f := newFixture(t, dispatch.Config{Workers: 1})
	var r job.Runner = f.slot

	_, err := r.SpawnAny("not params")
	require.Error(t, err)
	require.Equal(t, job.Generation(0), r.Generation())

	_, err = r.SpawnAny(statusParams{out: "boxed"})
	require.NoError(t, err)
	recv(t, f.channel)

	v, gen, ok := r.LastAny()
	require.True(t, ok)
	require.Equal(t, "boxed", v)
	require.Equal(t, job.Generation(1), gen)
	require.Equal(t, git.KindStatus, r.Kind())
}

func TestSlot_OnDoneSeesStaleCompletions(t *testing.T) {
	d := dispatch.New(dispatch.Config{Workers: 1, QueueSize: 2}, nil, nil)
	ch := notify.NewChannel()

	var seen []string
	var errs []error
	slot := job.NewSlot(gatedRun, d, ch, job.Options[statusParams]{
		Kind:  git.KindStatus,
		Class: dispatch.ClassRead,
		OnDone: func(p statusParams, err error) {
			seen = append(seen, p.Path)
			errs = append(errs, err)
		},
	})

	_, err := slot.Spawn(statusParams{Path: "first"})
	require.NoError(t, err)
	_, err = slot.Spawn(statusParams{Path: "second"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	require.Equal(t, []string{"first", "second"}, seen)
	for _, err := range errs {
		require.ErrorIs(t, err, gderrors.ErrDispatcherStopped)
	}
	require.Equal(t, uint64(1), slot.StaleCount())

	n := recv(t, ch)
	failed, ok := n.(notify.JobFailed)
	require.True(t, ok)
	require.Equal(t, uint64(2), failed.Generation)
}
