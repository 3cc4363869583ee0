package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_RunsTasks(t *testing.T) {
	e := NewExecutor(context.Background(), 2, 10)

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Submit(func(context.Context) { n.Add(1) }))
	}
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, int32(5), n.Load())
}

func TestExecutor_QueueFull(t *testing.T) {
	e := NewExecutor(context.Background(), 1, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, e.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, e.Submit(func(context.Context) {}))

	err := e.Submit(func(context.Context) {})
	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.Equal(t, 1, e.Pending())

	close(release)
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestExecutor_SubmitAfterShutdown(t *testing.T) {
	e := NewExecutor(context.Background(), 1, 1)
	require.NoError(t, e.Shutdown(context.Background()))

	err := e.Submit(func(context.Context) {})
	assert.True(t, errors.Is(err, ErrClosed))
	// A second shutdown is harmless.
	require.NoError(t, e.Shutdown(context.Background()))
}

func TestExecutor_ContextDetached(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	e := NewExecutor(parent, 1, 1)
	cancel()

	errCh := make(chan error, 1)
	require.NoError(t, e.Submit(func(ctx context.Context) { errCh <- ctx.Err() }))
	require.NoError(t, e.Shutdown(context.Background()))
	assert.NoError(t, <-errCh)
}

func TestExecutor_RecoversPanics(t *testing.T) {
	e := NewExecutor(context.Background(), 1, 4)

	var ran atomic.Bool
	require.NoError(t, e.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, e.Submit(func(context.Context) { ran.Store(true) }))
	require.NoError(t, e.Shutdown(context.Background()))
	assert.True(t, ran.Load())
}

func TestExecutor_ShutdownTimeout(t *testing.T) {
	e := NewExecutor(context.Background(), 1, 1)
	release := make(chan struct{})
	var once sync.Once
	defer once.Do(func() { close(release) })

	require.NoError(t, e.Submit(func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Shutdown(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestExecutor_SerialWithOneWorker(t *testing.T) {
	e := NewExecutor(context.Background(), 0, 0)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		for {
			if err := e.Submit(func(context.Context) {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
			}); err == nil {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}
	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, []int{0, 1, 2}, order)
}
