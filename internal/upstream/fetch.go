package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds FetchMany when no concurrency is configured
const DefaultConcurrency = 5

// ProgressFunc is called after every completed key with the running count.
// Calls are serialized.
type ProgressFunc func(completed, total int)

// Result is the outcome of fetching one key
type Result[K comparable, R any] struct {
	Key   K
	Value R
	Err   error
}

// BatchResult partitions a batch into successes and failures. Results keep the
// order of the input keys.
type BatchResult[K comparable, R any] struct {
	Results []Result[K, R]

	fatal error
}

// Succeeded returns the successful results
func (b *BatchResult[K, R]) Succeeded() []Result[K, R] {
	return b.filter(func(r Result[K, R]) bool { return r.Err == nil })
}

// Failed returns every unsuccessful result, not-found included
func (b *BatchResult[K, R]) Failed() []Result[K, R] {
	return b.filter(func(r Result[K, R]) bool { return r.Err != nil })
}

// NotFound returns the keys the upstream definitively does not know
func (b *BatchResult[K, R]) NotFound() []K {
	var keys []K
	for _, r := range b.Results {
		if IsNotFound(r.Err) {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Failures returns unsuccessful results other than not-found
func (b *BatchResult[K, R]) Failures() []Result[K, R] {
	return b.filter(func(r Result[K, R]) bool { return r.Err != nil && !IsNotFound(r.Err) })
}

// Fatal returns the source-wide error that aborted the batch, if any
func (b *BatchResult[K, R]) Fatal() error {
	return b.fatal
}

func (b *BatchResult[K, R]) filter(keep func(Result[K, R]) bool) []Result[K, R] {
	var out []Result[K, R]
	for _, r := range b.Results {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// FetchOption configures FetchMany
type FetchOption[K comparable, R any] func(*fetchConfig[K, R])

type fetchConfig[K comparable, R any] struct {
	concurrency int
	label       string
	progress    ProgressFunc
	onResult    func(Result[K, R])
}

// WithConcurrency bounds the number of keys fetched at once
func WithConcurrency[K comparable, R any](n int) FetchOption[K, R] {
	return func(c *fetchConfig[K, R]) {
		c.concurrency = n
	}
}

// WithProgress sets the progress callback
func WithProgress[K comparable, R any](fn ProgressFunc) FetchOption[K, R] {
	return func(c *fetchConfig[K, R]) {
		c.progress = fn
	}
}

// WithLabel names the batch in the default progress logs
func WithLabel[K comparable, R any](label string) FetchOption[K, R] {
	return func(c *fetchConfig[K, R]) {
		c.label = label
	}
}

// WithResultHook is called once per key as soon as its fetch completes,
// before progress is reported. It may be called concurrently.
func WithResultHook[K comparable, R any](fn func(Result[K, R])) FetchOption[K, R] {
	return func(c *fetchConfig[K, R]) {
		c.onResult = fn
	}
}

// FetchMany fetches every key concurrently. A failing key never aborts the
// batch, except for source-fatal errors: once one is seen no new fetches are
// started and the remaining keys fail with ErrAborted.
func FetchMany[K comparable, R any](
	ctx context.Context,
	keys []K,
	fetch func(context.Context, K) (R, error),
	opts ...FetchOption[K, R],
) *BatchResult[K, R] {
	cfg := &fetchConfig[K, R]{concurrency: DefaultConcurrency, label: "batch"}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = DefaultConcurrency
	}
	if cfg.progress == nil {
		cfg.progress = logProgress(cfg.label)
	}

	batch := &BatchResult[K, R]{Results: make([]Result[K, R], len(keys))}
	if len(keys) == 0 {
		return batch
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		mu        sync.Mutex
		completed int
		fatalOnce sync.Once
	)

	g := new(errgroup.Group)
	g.SetLimit(cfg.concurrency)

	for i, key := range keys {
		g.Go(func() error {
			res := Result[K, R]{Key: key}

			if cause := context.Cause(ctx); cause != nil && IsSourceFatal(cause) {
				res.Err = fmt.Errorf("%w: %w", ErrAborted, cause)
			} else {
				res.Value, res.Err = fetch(ctx, key)
				first := false
				if IsSourceFatal(res.Err) {
					fatalOnce.Do(func() {
						first = true
						batch.fatal = res.Err
						cancel(res.Err)
					})
				}
				// in flight when another key hit a fatal error
				if !first && (IsSourceFatal(res.Err) || errors.Is(res.Err, context.Canceled)) {
					if cause := context.Cause(ctx); IsSourceFatal(cause) {
						res.Err = fmt.Errorf("%w: %w", ErrAborted, cause)
					}
				}
			}

			batch.Results[i] = res
			if cfg.onResult != nil {
				cfg.onResult(res)
			}

			mu.Lock()
			completed++
			cfg.progress(completed, len(keys))
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return batch
}

func logProgress(label string) ProgressFunc {
	return func(completed, total int) {
		if completed%10 == 0 || completed == total {
			slog.Info("Fetch progress", "batch", label, "completed", completed, "total", total)
		}
	}
}
