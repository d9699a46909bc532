package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedPool_SameKeySameWorkerInOrder(t *testing.T) {
	p := New(4, 10)
	ctx := context.Background()

	var mu sync.Mutex
	perKey := make(map[string][]int)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"truck-1", "truck-2", "truck-3"} {
			key, i := key, i
			wg.Add(1)
			err := p.Submit(ctx, key, func() {
				defer wg.Done()
				mu.Lock()
				perKey[key] = append(perKey[key], i)
				mu.Unlock()
			})
			require.NoError(t, err)
		}
	}
	wg.Wait()
	p.Stop()

	for key, seen := range perKey {
		require.Len(t, seen, 50, "key %s", key)
		for i, v := range seen {
			assert.Equal(t, i, v, "key %s processed out of order", key)
		}
	}
}

func TestKeyedPool_StopDrainsQueuedWork(t *testing.T) {
	p := New(2, 100)
	ctx := context.Background()

	var mu sync.Mutex
	ran := 0
	for i := 0; i < 40; i++ {
		require.NoError(t, p.Submit(ctx, fmt.Sprintf("device-%d", i), func() {
			mu.Lock()
			ran++
			mu.Unlock()
		}))
	}

	p.Stop()
	assert.Equal(t, 40, ran, "Stop must join queued work, not abandon it")
}

func TestKeyedPool_SubmitAfterStop(t *testing.T) {
	p := New(1, 1)
	p.Stop()
	err := p.Submit(context.Background(), "truck-1", func() {})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestKeyedPool_SubmitHonorsContext(t *testing.T) {
	p := New(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	ctx := context.Background()

	// Occupy the single worker and fill its queue.
	require.NoError(t, p.Submit(ctx, "k", func() { <-block }))
	require.NoError(t, p.Submit(ctx, "k", func() {}))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := p.Submit(cancelled, "k", func() {})
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
}
