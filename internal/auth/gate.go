package auth

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// RefreshGate lets one refresh run at a time. Callers arriving while a refresh is
// in flight wait for it and share its result.
type RefreshGate struct {
	name  string
	group singleflight.Group
}

// NewRefreshGate returns a gate keyed by name.
func NewRefreshGate(name string) *RefreshGate {
	if name == "" {
		name = "refresh"
	}
	return &RefreshGate{name: name}
}

// Do runs fn unless a run is already in flight, in which case it waits for that
// run. The shared run is detached from the first caller's cancellation so one
// abandoned request cannot fail every waiter; each caller still stops waiting
// when its own ctx ends.
func (g *RefreshGate) Do(ctx context.Context, fn func(context.Context) error) (shared bool, err error) {
	ch := g.group.DoChan(g.name, func() (any, error) {
		return nil, fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Shared, res.Err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
