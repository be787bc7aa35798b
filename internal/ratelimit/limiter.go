// Package ratelimit provides the per-upstream limiter every network call goes
// through: a token bucket for throughput combined with a semaphore for
// parallelism.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"
)

// ErrInvalidConfig is returned by New when a limit is not strictly positive
var ErrInvalidConfig = errors.New("invalid rate limiter configuration")

// Limiter enforces a requests-per-second ceiling and a concurrency cap.
// A single Limiter is meant to be shared by every caller of one upstream.
type Limiter struct {
	rate     float64
	capacity float64
	clock    clock.Clock
	sem      *semaphore.Weighted
	inFlight atomic.Int64

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock overrides the clock used for refill accounting and waits
func WithClock(c clock.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// New creates a limiter allowing requestsPerSecond acquisitions per second on
// average and at most maxConcurrent outstanding permits. The bucket starts full.
func New(requestsPerSecond float64, maxConcurrent int, opts ...Option) (*Limiter, error) {
	if requestsPerSecond <= 0 || math.IsNaN(requestsPerSecond) || math.IsInf(requestsPerSecond, 0) {
		return nil, fmt.Errorf("%w: requests per second must be > 0, got %v", ErrInvalidConfig, requestsPerSecond)
	}
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: max concurrent must be > 0, got %d", ErrInvalidConfig, maxConcurrent)
	}

	l := &Limiter{
		rate: requestsPerSecond,
		// a bucket smaller than one token could never fire
		capacity: math.Max(requestsPerSecond, 1),
		clock:    clock.RealClock{},
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.tokens = l.capacity
	l.lastRefill = l.clock.Now()
	return l, nil
}

// Permit is a held concurrency slot. Release must be called once the guarded
// call completes.
type Permit struct {
	limiter *Limiter
	once    sync.Once
}

// Release returns the concurrency slot. Calling it more than once is a no-op.
func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		p.limiter.inFlight.Add(-1)
		p.limiter.sem.Release(1)
	})
}

// Acquire blocks until a token is available and a concurrency slot is free.
// Tokens are consumed; only the slot is given back by Permit.Release.
func (l *Limiter) Acquire(ctx context.Context) (*Permit, error) {
	if err := l.takeToken(ctx); err != nil {
		return nil, err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	l.inFlight.Add(1)
	return &Permit{limiter: l}, nil
}

func (l *Limiter) takeToken(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refillLocked()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		wait := l.deficitLocked()
		l.mu.Unlock()

		timer := l.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C():
		}
	}
}

func (l *Limiter) refillLocked() {
	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed > 0 {
		l.tokens = math.Min(l.capacity, l.tokens+elapsed.Seconds()*l.rate)
	}
	l.lastRefill = now
}

// deficitLocked is the time until the bucket holds one whole token
func (l *Limiter) deficitLocked() time.Duration {
	secs := (1 - l.tokens) / l.rate
	return time.Duration(math.Ceil(secs * float64(time.Second)))
}

// Stats is a point-in-time view of the limiter
type Stats struct {
	Tokens   float64
	InFlight int
}

// Stats reports the current token count and the number of held permits
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	l.refillLocked()
	tokens := l.tokens
	l.mu.Unlock()

	return Stats{
		Tokens:   tokens,
		InFlight: int(l.inFlight.Load()),
	}
}
