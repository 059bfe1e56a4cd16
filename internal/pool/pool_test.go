package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	t.Parallel()

	p := New(context.Background(), 2, 4, nil)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		}))
	}
	wg.Wait()
	p.Close()
	require.Equal(t, int32(4), ran.Load())
}

func TestPoolSaturation(t *testing.T) {
	t.Parallel()

	p := New(context.Background(), 1, 1, nil)
	defer p.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-block
	}))
	<-started

	// One slot in the backlog, then saturation.
	require.NoError(t, p.Submit(func(context.Context) {}))
	err := p.Submit(func(context.Context) {})
	require.ErrorIs(t, err, ErrSaturated)

	close(block)
}

func TestPoolClosedRejectsSubmit(t *testing.T) {
	t.Parallel()

	p := New(context.Background(), 1, 1, nil)
	p.Close()
	require.ErrorIs(t, p.Submit(func(context.Context) {}), ErrClosed)
	// Close is idempotent.
	p.Close()
}

func TestPoolTasksSeeShutdownContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := New(ctx, 1, 1, nil)

	got := make(chan error, 1)
	require.NoError(t, p.Submit(func(taskCtx context.Context) {
		cancel()
		select {
		case <-taskCtx.Done():
			got <- taskCtx.Err()
		case <-time.After(time.Second):
			got <- nil
		}
	}))
	require.ErrorIs(t, <-got, context.Canceled)
	p.Close()
}
