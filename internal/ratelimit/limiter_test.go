package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		rps           float64
		maxConcurrent int
		wantErr       bool
	}{
		{name: "valid", rps: 4, maxConcurrent: 10},
		{name: "fractional rate", rps: 0.5, maxConcurrent: 1},
		{name: "zero rate", rps: 0, maxConcurrent: 1, wantErr: true},
		{name: "negative rate", rps: -1, maxConcurrent: 1, wantErr: true},
		{name: "zero concurrency", rps: 1, maxConcurrent: 0, wantErr: true},
		{name: "negative concurrency", rps: 1, maxConcurrent: -3, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := New(tt.rps, tt.maxConcurrent)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				assert.Nil(t, l)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
		})
	}
}

// acquireAsync starts an Acquire in the background and returns a channel
// delivering its result.
func acquireAsync(ctx context.Context, l *Limiter) <-chan error {
	done := make(chan error, 1)
	go func() {
		p, err := l.Acquire(ctx)
		if err == nil {
			p.Release()
		}
		done <- err
	}()
	return done
}

func TestLimiter_BurstThenWait(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(epoch)
	l, err := New(5, 10, WithClock(fc))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		p, err := l.Acquire(ctx)
		require.NoError(t, err, "burst acquire %d", i)
		p.Release()
	}
	assert.False(t, fc.HasWaiters(), "burst must not wait")

	done := acquireAsync(ctx, l)
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)

	select {
	case <-done:
		t.Fatal("acquire returned before a token was refilled")
	default:
	}

	fc.Step(250 * time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not return after refill")
	}
}

func TestLimiter_SteadyStateRate(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(epoch)
	l, err := New(4, 4, WithClock(fc))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		p, err := l.Acquire(ctx)
		require.NoError(t, err)
		p.Release()
	}

	const extra = 8
	for i := 0; i < extra; i++ {
		done := acquireAsync(ctx, l)
		require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
		fc.Step(250 * time.Millisecond)
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatalf("acquire %d did not complete", i)
		}
	}

	// 8 acquisitions past the burst took 2s of clock time: 4 per second
	assert.Equal(t, 2*time.Second, fc.Since(epoch))
}

func TestLimiter_ConcurrencyCap(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(epoch)
	l, err := New(100, 2, WithClock(fc))
	require.NoError(t, err)

	ctx := context.Background()
	p1, err := l.Acquire(ctx)
	require.NoError(t, err)
	p2, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, l.Stats().InFlight)

	done := acquireAsync(ctx, l)
	select {
	case <-done:
		t.Fatal("third acquire must block while two permits are held")
	case <-time.After(50 * time.Millisecond):
	}

	p1.Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not proceed after release")
	}

	p2.Release()
	assert.Equal(t, 0, l.Stats().InFlight)
}

func TestLimiter_ContextCancelledWhileWaiting(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(epoch)
	l, err := New(1, 1, WithClock(fc))
	require.NoError(t, err)

	p, err := l.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	done := acquireAsync(ctx, l)
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("acquire ignored cancellation")
	}
}

func TestLimiter_FractionalRate(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(epoch)
	l, err := New(0.5, 1, WithClock(fc))
	require.NoError(t, err)

	p, err := l.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()

	done := acquireAsync(context.Background(), l)
	require.Eventually(t, fc.HasWaiters, time.Second, time.Millisecond)
	fc.Step(2 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("fractional rate limiter never refilled")
	}
}

func TestPermit_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	l, err := New(10, 1)
	require.NoError(t, err)

	p, err := l.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()
	p.Release()

	var nilPermit *Permit
	nilPermit.Release()

	assert.Equal(t, 0, l.Stats().InFlight)
}

func TestLimiter_StatsRefillCapped(t *testing.T) {
	t.Parallel()

	fc := testingclock.NewFakeClock(epoch)
	l, err := New(3, 1, WithClock(fc))
	require.NoError(t, err)

	p, err := l.Acquire(context.Background())
	require.NoError(t, err)
	p.Release()
	assert.InDelta(t, 2.0, l.Stats().Tokens, 1e-9)

	fc.Step(time.Hour)
	assert.InDelta(t, 3.0, l.Stats().Tokens, 1e-9)
}
