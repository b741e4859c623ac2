package cli

import (
	"context"
	"fmt"

	"gitdeck.dev/gitdeck/internal/engine"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/notify"
)

// query spawns params and blocks until its generation settles. Headless
// commands have a single consumer, so unrelated notifications are dropped.
func query[T any](ctx context.Context, e *engine.Engine, kind git.Kind, params any) (T, error) {
	var zero T
	gen, err := e.Spawn(params)
	if err != nil {
		return zero, err
	}
	for {
		for _, n := range e.Drain() {
			switch n := n.(type) {
			case notify.JobCompleted:
				if n.Kind != kind || n.Generation < uint64(gen) {
					continue
				}
				v, _, ok := engine.Result[T](e, kind)
				if !ok {
					return zero, fmt.Errorf("%s: no result", kind)
				}
				return v, nil
			case notify.JobFailed:
				if n.Kind == kind && n.Generation >= uint64(gen) {
					return zero, n.Err
				}
			}
		}
		if err := e.Wait(ctx); err != nil {
			return zero, err
		}
	}
}
