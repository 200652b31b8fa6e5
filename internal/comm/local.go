package comm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// NewLocalGroup creates size connected endpoints sharing one in-memory Hub.
// Each endpoint must be driven by its own goroutine.
func NewLocalGroup(size int) ([]Communicator, *Hub) {
	hub := NewHub(size)
	comms := make([]Communicator, size)
	for rank := range comms {
		comms[rank] = newEndpoint(rank, size, hubExchanger{hub: hub})
	}
	return comms, hub
}

// Spawn runs fn once per rank, each in its own goroutine, over a local group
// of size ranks. The first rank to fail aborts the group; Spawn returns that
// rank's error after every goroutine has exited.
func Spawn(ctx context.Context, size int, fn func(ctx context.Context, c Communicator) error) error {
	if size < 1 {
		return fmt.Errorf("group size must be >= 1, got %d", size)
	}
	comms, hub := NewLocalGroup(size)

	g, gctx := errgroup.WithContext(ctx)
	for rank, c := range comms {
		g.Go(func() error {
			defer c.Close()
			if err := fn(gctx, c); err != nil {
				hub.Abort(fmt.Errorf("rank %d: %w", rank, err))
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
