package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/job"
	"gitdeck.dev/gitdeck/internal/notify"
	"gitdeck.dev/gitdeck/internal/remote"
)

type fakeConsumer struct {
	spawned     []any
	results     map[git.Kind]any
	cached      map[git.Kind]any
	pending     map[git.Kind]bool
	invalidated []string
	started     []git.Kind
	cancelled   []remote.Handle
	handle      remote.Handle
	state       remote.State
	startErr    error
	notes       []notify.Notification
}

func newFakeConsumer() *fakeConsumer {
	return &fakeConsumer{
		results: make(map[git.Kind]any),
		cached:  make(map[git.Kind]any),
		pending: make(map[git.Kind]bool),
		handle:  uuid.New(),
	}
}

func (f *fakeConsumer) TryRecv() (notify.Notification, bool) {
	if len(f.notes) == 0 {
		return nil, false
	}
	n := f.notes[0]
	f.notes = f.notes[1:]
	return n, true
}

func (f *fakeConsumer) Drain() []notify.Notification {
	out := f.notes
	f.notes = nil
	return out
}

func (f *fakeConsumer) Wait(ctx context.Context) error {
	if len(f.notes) > 0 {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConsumer) Spawn(params any) (job.Generation, error) {
	f.spawned = append(f.spawned, params)
	return job.Generation(len(f.spawned)), nil
}

func (f *fakeConsumer) LastResult(kind git.Kind) (any, job.Generation, bool) {
	v, ok := f.results[kind]
	return v, 1, ok
}

func (f *fakeConsumer) LastError(git.Kind) (error, job.Generation) { return nil, 0 }
func (f *fakeConsumer) Cached(params any) (any, bool) {
	kind, _ := git.KindOf(params)
	v, ok := f.cached[kind]
	return v, ok
}

func (f *fakeConsumer) IsPending(kind git.Kind) bool               { return f.pending[kind] }
func (f *fakeConsumer) Invalidate(git.Kind)                        {}
func (f *fakeConsumer) InvalidateParams(any) error                 { return nil }

func (f *fakeConsumer) InvalidateAll(reason string) {
	f.invalidated = append(f.invalidated, reason)
}

func (f *fakeConsumer) StartRemoteOp(kind git.Kind, _ remote.Target, _ []remote.CredentialMethod) (remote.Handle, error) {
	if f.startErr != nil {
		return uuid.Nil, f.startErr
	}
	f.started = append(f.started, kind)
	return f.handle, nil
}

func (f *fakeConsumer) Cancel(h remote.Handle) bool {
	f.cancelled = append(f.cancelled, h)
	return true
}

func (f *fakeConsumer) State(h remote.Handle) (remote.State, bool) {
	if h != f.handle {
		return remote.State{}, false
	}
	return f.state, true
}

func key(s string) tea.KeyMsg {
	if s == "tab" {
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func commitID(t *testing.T, hex string) git.CommitID {
	t.Helper()
	id, err := git.ParseCommitID(hex)
	require.NoError(t, err)
	return id
}

func TestApp_InitSpawnsVisibleQueries(t *testing.T) {
	f := newFakeConsumer()
	app := NewApp(f, AppOptions{LogLimit: 50})

	require.NotNil(t, app.Init())
	require.Equal(t, []any{git.StatusParams{}, git.LogParams{Limit: 50}, git.BranchParams{}}, f.spawned)
}

func TestApp_RefreshUsesValidCache(t *testing.T) {
	id := commitID(t, "0123456789abcdef0123456789abcdef01234567")
	f := newFakeConsumer()
	f.cached[git.KindStatus] = &git.StatusResult{Branch: "cached"}
	f.cached[git.KindLog] = []git.CommitID{id}
	f.cached[git.KindCommitInfo] = []git.CommitInfo{{ID: id, Message: "from cache", Author: "Ada"}}
	app := NewApp(f, AppOptions{})

	app.Init()
	require.Equal(t, []any{git.BranchParams{}}, f.spawned, "only misses are spawned")
	require.Contains(t, app.View(), "gitdeck on cached")

	app.Update(key("tab"))
	require.Contains(t, app.View(), "from cache")

	// Invalidation clears the cache; the next refresh goes to the backend.
	f.cached = make(map[git.Kind]any)
	f.spawned = nil
	app.Update(notificationsMsg{notify.BackendStateChanged{Reason: "watcher"}})
	require.Equal(t, []any{git.StatusParams{}, git.LogParams{}, git.BranchParams{}}, f.spawned)
}

func TestApp_Notifications(t *testing.T) {
	id := commitID(t, "0123456789abcdef0123456789abcdef01234567")

	t.Run("completed results are rendered", func(t *testing.T) {
		f := newFakeConsumer()
		app := NewApp(f, AppOptions{MessageLimit: 40})
		f.results[git.KindStatus] = &git.StatusResult{
			Branch: "main",
			Files:  []git.FileStatus{{Path: "a.txt", Staging: '?', Worktree: '?'}},
		}
		f.results[git.KindLog] = []git.CommitID{id}

		_, cmd := app.Update(notificationsMsg{
			notify.JobCompleted{Kind: git.KindStatus, Generation: 1},
			notify.JobCompleted{Kind: git.KindLog, Generation: 1},
		})
		require.NotNil(t, cmd)
		require.Contains(t, app.View(), "gitdeck on main")
		require.Contains(t, app.View(), "a.txt")
		require.Equal(t, []any{git.CommitInfoParams{IDs: []git.CommitID{id}, MessageLimit: 40}}, f.spawned,
			"a finished log loads its commit details")

		f.results[git.KindCommitInfo] = []git.CommitInfo{{ID: id, Message: "initial", Author: "Ada"}}
		app.Update(notificationsMsg{notify.JobCompleted{Kind: git.KindCommitInfo, Generation: 1}})
		app.Update(key("tab"))
		require.Equal(t, TabLog, app.tab)
		require.Contains(t, app.View(), "0123456")
		require.Contains(t, app.View(), "initial")
	})

	t.Run("failures are shown until the next success", func(t *testing.T) {
		f := newFakeConsumer()
		app := NewApp(f, AppOptions{})

		app.Update(notificationsMsg{notify.JobFailed{Kind: git.KindBranches, Generation: 2, Err: errors.New("boom")}})
		require.Contains(t, app.View(), "branches: boom")

		f.results[git.KindBranches] = []git.Ref{{Name: "main", Target: id, Head: true}}
		app.Update(notificationsMsg{notify.JobCompleted{Kind: git.KindBranches, Generation: 3}})
		require.NotContains(t, app.View(), "boom")
	})

	t.Run("state change respawns visible queries", func(t *testing.T) {
		f := newFakeConsumer()
		app := NewApp(f, AppOptions{})

		app.Update(notificationsMsg{notify.BackendStateChanged{Reason: "commit"}})
		require.Len(t, f.spawned, len(visibleKinds))
	})
}

func TestApp_RemoteOperation(t *testing.T) {
	f := newFakeConsumer()
	app := NewApp(f, AppOptions{})

	app.Update(key("f"))
	require.Equal(t, []git.Kind{git.KindFetch}, f.started)
	require.Equal(t, f.handle, app.op)

	app.Update(key("p"))
	require.Len(t, f.started, 1, "one remote operation at a time")

	f.state = remote.State{Handle: f.handle, Kind: git.KindFetch, Phase: remote.PhaseTransferring}
	_, cmd := app.Update(notificationsMsg{notify.RemoteOpProgress{
		Handle:   f.handle.String(),
		Kind:     git.KindFetch,
		Phase:    remote.PhaseTransferring.String(),
		Progress: notify.Progress{Stage: "Receiving objects", StageObjects: 5, StageTotal: 10, Objects: 5, Total: 10},
	}})
	require.NotNil(t, cmd)
	require.Contains(t, app.View(), "fetch "+remote.PhaseTransferring.String())

	app.Update(key("x"))
	require.Equal(t, []remote.Handle{f.handle}, f.cancelled)

	f.state = remote.State{Handle: f.handle, Kind: git.KindFetch, Phase: remote.PhaseCancelled, Err: errors.New("cancelled")}
	app.Update(notificationsMsg{notify.RemoteOpProgress{
		Handle: f.handle.String(),
		Kind:   git.KindFetch,
		Phase:  remote.PhaseCancelled.String(),
	}})
	require.Equal(t, uuid.Nil, app.op)
	require.Contains(t, app.View(), "fetch: cancelled")

	app.Update(notificationsMsg{notify.RemoteOpProgress{Handle: uuid.NewString(), Phase: "completed"}})
	require.Equal(t, uuid.Nil, app.op, "other handles are ignored")
}

func TestApp_StartRemoteError(t *testing.T) {
	f := newFakeConsumer()
	f.startErr = errors.New("queue full")
	app := NewApp(f, AppOptions{})

	app.Update(key("P"))
	require.Equal(t, uuid.Nil, app.op)
	require.Contains(t, app.View(), "pull: queue full")
}

func TestApp_Keys(t *testing.T) {
	f := newFakeConsumer()
	app := NewApp(f, AppOptions{})

	app.Update(key("r"))
	require.Equal(t, []string{"manual refresh"}, f.invalidated)

	_, cmd := app.Update(key("q"))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.Empty(t, app.View())
	require.Error(t, app.ctx.Err(), "quitting stops the notification wait")
}

func TestApp_Spinner(t *testing.T) {
	f := newFakeConsumer()
	app := NewApp(f, AppOptions{})
	require.False(t, app.pending())

	f.pending[git.KindCommitInfo] = true
	require.True(t, app.pending())
}
