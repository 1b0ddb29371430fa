package chatrelay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool_RejectsZeroSize(t *testing.T) {
	_, err := NewWorkerPool("bad", 0, nil)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeConfiguration))
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool, err := NewWorkerPool("test", 3, nil)
	require.NoError(t, err)

	var running, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(context.Background(), func() {
			defer wg.Done()
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
	assert.Equal(t, 3, pool.Size())
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	pool, err := NewWorkerPool("test", 1, nil)
	require.NoError(t, err)

	require.NoError(t, pool.Submit(context.Background(), func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool stuck after panic")
	}
}

func TestWorkerPool_ShutdownDrainsAndRejects(t *testing.T) {
	pool, err := NewWorkerPool("test", 2, nil)
	require.NoError(t, err)

	var finished atomic.Bool
	require.NoError(t, pool.Submit(context.Background(), func() {
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
	}))

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.True(t, finished.Load())
	assert.ErrorIs(t, pool.Submit(context.Background(), func() {}), ErrPoolClosed)
}

func TestWorkerPool_ShutdownTimesOut(t *testing.T) {
	pool, err := NewWorkerPool("test", 1, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
	assert.Equal(t, 1, pool.InFlight())
}

func TestWorkerPool_SubmitHonorsContext(t *testing.T) {
	pool, err := NewWorkerPool("test", 1, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, pool.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Submit(ctx, func() {}), context.DeadlineExceeded)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := newKeyedMutex()

	var inside atomic.Int32
	var overlap atomic.Bool
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("k")
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load())
	assert.Zero(t, km.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
	unlockA()
}
