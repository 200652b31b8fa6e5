package comm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func contributeAll(t *testing.T, h *Hub, seq uint64, mk func(rank int) contribution) []reply {
	t.Helper()
	replies := make([]reply, h.Size())
	errs := make([]error, h.Size())
	var wg sync.WaitGroup
	for rank := 0; rank < h.Size(); rank++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies[rank], errs[rank] = h.Contribute(context.Background(), seq, rank, mk(rank))
		}()
	}
	wg.Wait()
	for rank, err := range errs {
		require.NoError(t, err, "rank %d", rank)
	}
	return replies
}

func TestHubGatherOrdersByRank(t *testing.T) {
	h := NewHub(4)
	replies := contributeAll(t, h, 0, func(rank int) contribution {
		return contribution{kind: kindGather, payload: []byte{byte(rank), byte(rank)}}
	})

	for rank, rep := range replies {
		require.Len(t, rep.parts, 4, "rank %d", rank)
		for i, part := range rep.parts {
			require.Equal(t, []byte{byte(i), byte(i)}, part, "rank %d part %d", rank, i)
		}
	}
}

func TestHubGatherCopiesPayload(t *testing.T) {
	h := NewHub(1)
	payload := []byte{1, 2, 3}
	rep, err := h.Contribute(context.Background(), 0, 0, contribution{kind: kindGather, payload: payload})
	require.NoError(t, err)
	payload[0] = 9
	require.Equal(t, []byte{1, 2, 3}, rep.parts[0])
}

func TestHubReduce(t *testing.T) {
	tests := []struct {
		op   Op
		want float64
	}{
		{OpSum, 1 + 2 + 3},
		{OpMin, 1},
		{OpMax, 3},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			h := NewHub(3)
			replies := contributeAll(t, h, 7, func(rank int) contribution {
				return contribution{kind: kindReduce, value: float64(rank + 1), op: tt.op, root: 1}
			})
			for rank, rep := range replies {
				if rank == 1 {
					require.True(t, rep.hasValue)
					require.Equal(t, tt.want, rep.value)
					continue
				}
				require.False(t, rep.hasValue, "rank %d", rank)
				require.Zero(t, rep.value, "rank %d", rank)
			}
		})
	}
}

func TestHubRoundsAreIndependent(t *testing.T) {
	h := NewHub(2)
	for seq := uint64(0); seq < 5; seq++ {
		contributeAll(t, h, seq, func(int) contribution { return contribution{kind: kindBarrier} })
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Empty(t, h.rounds)
	require.NoError(t, h.abortErr)
}

func TestHubMismatchedKindAbortsGroup(t *testing.T) {
	h := NewHub(2)
	errc := make(chan error, 1)
	go func() {
		_, err := h.Contribute(context.Background(), 0, 0, contribution{kind: kindBarrier})
		errc <- err
	}()
	waitForRound(t, h, 0)

	_, err := h.Contribute(context.Background(), 0, 1, contribution{kind: kindGather, payload: []byte{1}})
	require.ErrorIs(t, err, ErrProtocol)

	err = <-errc
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestHubReduceOperatorMismatch(t *testing.T) {
	h := NewHub(2)
	go h.Contribute(context.Background(), 0, 0, contribution{kind: kindReduce, op: OpSum, root: 0})
	waitForRound(t, h, 0)

	_, err := h.Contribute(context.Background(), 0, 1, contribution{kind: kindReduce, op: OpMax, root: 0})
	require.ErrorIs(t, err, ErrProtocol)
	require.ErrorIs(t, h.Err(), ErrAborted)
}

func TestHubDuplicateContribution(t *testing.T) {
	h := NewHub(3)
	go h.Contribute(context.Background(), 0, 1, contribution{kind: kindBarrier})
	waitForRound(t, h, 0)

	_, err := h.Contribute(context.Background(), 0, 1, contribution{kind: kindBarrier})
	require.ErrorIs(t, err, ErrProtocol)
	require.ErrorContains(t, err, "twice")
}

func TestHubRankOutOfRange(t *testing.T) {
	h := NewHub(2)
	_, err := h.Contribute(context.Background(), 0, 2, contribution{kind: kindBarrier})
	require.ErrorIs(t, err, ErrProtocol)
	_, err = h.Contribute(context.Background(), 0, -1, contribution{kind: kindBarrier})
	require.ErrorIs(t, err, ErrProtocol)
	require.NoError(t, h.Err())
}

func TestHubAbortReleasesWaiters(t *testing.T) {
	h := NewHub(3)
	errc := make(chan error, 2)
	for rank := 0; rank < 2; rank++ {
		go func() {
			_, err := h.Contribute(context.Background(), 0, rank, contribution{kind: kindBarrier})
			errc <- err
		}()
	}
	waitForArrivals(t, h, 0, 2)

	reason := errors.New("rank 2 lost its device")
	h.Abort(reason)
	h.Abort(errors.New("second reason is dropped"))

	for i := 0; i < 2; i++ {
		err := <-errc
		require.ErrorIs(t, err, ErrAborted)
		require.ErrorIs(t, err, reason)
	}

	_, err := h.Contribute(context.Background(), 1, 2, contribution{kind: kindBarrier})
	require.ErrorIs(t, err, reason)
	require.NotContains(t, h.Err().Error(), "second reason")
}

func TestHubContextCancelAbortsGroup(t *testing.T) {
	h := NewHub(2)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Contribute(ctx, 0, 0, contribution{kind: kindBarrier})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, h.Err(), ErrAborted)

	_, err = h.Contribute(context.Background(), 0, 1, contribution{kind: kindBarrier})
	require.ErrorIs(t, err, ErrAborted)
}

func TestOpApplyFoldsInRankOrder(t *testing.T) {
	values := []float64{3, -1, 7, 2}
	require.Equal(t, 11.0, OpSum.apply(values))
	require.Equal(t, -1.0, OpMin.apply(values))
	require.Equal(t, 7.0, OpMax.apply(values))
	require.Zero(t, OpSum.apply(nil))
}

func waitForRound(t *testing.T, h *Hub, seq uint64) {
	t.Helper()
	waitForArrivals(t, h, seq, 1)
}

func waitForArrivals(t *testing.T, h *Hub, seq uint64, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		r, ok := h.rounds[seq]
		return ok && r.arrived >= n
	}, 2*time.Second, time.Millisecond)
}
