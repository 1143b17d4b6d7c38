//go:build !integration

package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-channel-paywall/internal/infra/worker"
)

func newPool(n int) *worker.Pool {
	l := zerolog.New(io.Discard)
	return worker.NewPool(n, &l)
}

func waitAll(t *testing.T, done <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d tasks to finish, but only %d did", n, i)
		}
	}
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newPool(3)
	p.Start(ctx)

	var ran atomic.Int32
	done := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(ctx, int64(i), func(ctx context.Context) error {
			ran.Add(1)
			done <- struct{}{}
			return nil
		}))
	}
	waitAll(t, done, 10)
	p.Stop()
	assert.Equal(t, int32(10), ran.Load())
	assert.ErrorIs(t, p.Submit(ctx, 1, func(ctx context.Context) error { return nil }), worker.ErrStopped)
}

func TestPool_KeepsOrderPerKey(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newPool(4)
	p.Start(ctx)
	defer p.Stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{}, 20)
	for i := 0; i < 20; i++ {
		i := i
		require.NoError(t, p.Submit(ctx, -200, func(ctx context.Context) error {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			done <- struct{}{}
			return nil
		}))
	}
	waitAll(t, done, 20)

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestPool_SurvivesFailingTasks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newPool(1)
	p.Start(ctx)
	defer p.Stop()

	require.NoError(t, p.Submit(ctx, 7, func(ctx context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit(ctx, 7, func(ctx context.Context) error { return errors.New("failed") }))

	done := make(chan struct{}, 1)
	require.NoError(t, p.Submit(ctx, 7, func(ctx context.Context) error {
		done <- struct{}{}
		return nil
	}))
	waitAll(t, done, 1)
}

func TestPool_TrySubmitWhenFull(t *testing.T) {
	// not started: nothing drains the shard buffer
	p := newPool(1)
	noop := func(ctx context.Context) error { return nil }
	for i := 0; i < 16; i++ {
		require.NoError(t, p.TrySubmit(5, noop))
	}
	assert.ErrorIs(t, p.TrySubmit(5, noop), worker.ErrQueueFull)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Submit(ctx, 5, noop), context.DeadlineExceeded)
	assert.Error(t, p.TrySubmit(5, nil))
}
