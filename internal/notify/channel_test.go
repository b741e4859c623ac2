package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gitdeck.dev/gitdeck/internal/git"
)

func TestChannel_TryRecv(t *testing.T) {
	t.Run("empty channel returns nothing", func(t *testing.T) {
		c := NewChannel()
		n, ok := c.TryRecv()
		require.False(t, ok)
		require.Nil(t, n)
		require.Equal(t, 0, c.Len())
	})

	t.Run("preserves arrival order", func(t *testing.T) {
		c := NewChannel()
		c.Push(JobCompleted{Kind: git.KindStatus, Generation: 1})
		c.Push(JobFailed{Kind: git.KindDiff, Generation: 2, Err: errors.New("boom")})
		c.Push(BackendStateChanged{Reason: "fs"})

		require.Equal(t, 3, c.Len())

		got := c.Drain()
		require.Len(t, got, 3)
		require.Equal(t, JobCompleted{Kind: git.KindStatus, Generation: 1}, got[0])
		require.IsType(t, JobFailed{}, got[1])
		require.Equal(t, BackendStateChanged{Reason: "fs"}, got[2])
		require.Equal(t, 0, c.Len())
		require.Equal(t, uint64(3), c.Pushed())
	})

	t.Run("nil notifications are ignored", func(t *testing.T) {
		c := NewChannel()
		c.Push(nil)
		require.Equal(t, 0, c.Len())
	})
}

func TestChannel_PushNeverBlocksWithoutConsumer(t *testing.T) {
	c := NewChannel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100000; i++ {
			c.Push(JobCompleted{Kind: git.KindLog, Generation: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer stalled without a consumer")
	}
	require.Equal(t, 100000, c.Len())
}

func TestChannel_FIFOPerProducer(t *testing.T) {
	const producers = 8
	const perProducer = 2000

	c := NewChannel()
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(kind git.Kind) {
			defer wg.Done()
			for i := 1; i <= perProducer; i++ {
				c.Push(JobCompleted{Kind: kind, Generation: uint64(i)})
			}
		}(git.Kind(p))
	}

	last := make(map[git.Kind]uint64)
	received := 0
	deadline := time.After(10 * time.Second)
	for received < producers*perProducer {
		n, ok := c.TryRecv()
		if !ok {
			select {
			case <-deadline:
				t.Fatalf("received only %d notifications", received)
			default:
			}
			continue
		}
		jc := n.(JobCompleted)
		require.Greater(t, jc.Generation, last[jc.Kind], "producer order violated for %s", jc.Kind)
		last[jc.Kind] = jc.Generation
		received++
	}
	wg.Wait()

	for p := 0; p < producers; p++ {
		require.Equal(t, uint64(perProducer), last[git.Kind(p)])
	}
}

func TestChannel_Wait(t *testing.T) {
	t.Run("returns immediately when backlog exists", func(t *testing.T) {
		c := NewChannel()
		c.Push(BackendStateChanged{Reason: "tick"})
		require.NoError(t, c.Wait(context.Background()))
	})

	t.Run("wakes on push", func(t *testing.T) {
		c := NewChannel()
		go func() {
			time.Sleep(20 * time.Millisecond)
			c.Push(BackendStateChanged{Reason: "fs"})
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, c.Wait(ctx))

		n, ok := c.TryRecv()
		require.True(t, ok)
		require.Equal(t, BackendStateChanged{Reason: "fs"}, n)
	})

	t.Run("honours context", func(t *testing.T) {
		c := NewChannel()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		require.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
	})
}

func TestProgress_Percent(t *testing.T) {
	require.Equal(t, 0.0, Progress{StageObjects: 5}.Percent())
	require.Equal(t, 0.5, Progress{StageObjects: 5, StageTotal: 10}.Percent())
	require.Equal(t, 1.0, Progress{StageObjects: 12, StageTotal: 10}.Percent())
	require.Equal(t, 0.25, Progress{StageObjects: 1, StageTotal: 4, Objects: 101, Total: 104}.Percent(),
		"percent follows the current stage")
}
