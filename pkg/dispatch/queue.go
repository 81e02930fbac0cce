// Package dispatch serialises upstream calls through a bounded-concurrency,
// minimum-interval queue so a burst of client traffic never lands on the
// upstream all at once.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultConcurrency is the number of simultaneous upstream calls.
	DefaultConcurrency = 3
	// DefaultInterval is the minimum spacing between upstream departures.
	DefaultInterval = 200 * time.Millisecond
)

// Queue admits callers in FIFO order, at most N concurrently, with at least
// the configured interval between departures.
type Queue struct {
	sem      *semaphore.Weighted
	interval time.Duration

	mu       sync.Mutex
	nextSlot time.Time

	waiting  atomic.Int64
	inFlight atomic.Int64
}

// New creates a queue; non-positive arguments select the defaults.
func New(concurrency int, interval time.Duration) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Queue{
		sem:      semaphore.NewWeighted(int64(concurrency)),
		interval: interval,
	}
}

// Acquire blocks until a concurrency slot is free and the departure spacing
// has elapsed, then returns a release function. The release function is
// idempotent and must be called exactly when the upstream call finishes,
// successfully or not.
//
// If ctx is cancelled while waiting, the caller is withdrawn without
// occupying a slot.
func (q *Queue) Acquire(ctx context.Context) (func(), error) {
	q.waiting.Add(1)
	defer q.waiting.Add(-1)

	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	// Claim the next departure time before sleeping so concurrent
	// slot-holders space out instead of departing together.
	q.mu.Lock()
	now := time.Now()
	wait := q.nextSlot.Sub(now)
	if wait < 0 {
		wait = 0
	}
	q.nextSlot = now.Add(wait + q.interval)
	q.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			q.sem.Release(1)
			return nil, ctx.Err()
		}
	}

	q.inFlight.Add(1)
	var once sync.Once
	release := func() {
		once.Do(func() {
			q.inFlight.Add(-1)
			q.sem.Release(1)
		})
	}
	return release, nil
}

// Waiting reports how many callers are blocked in Acquire.
func (q *Queue) Waiting() int64 {
	return q.waiting.Load()
}

// InFlight reports how many admitted calls have not released yet.
func (q *Queue) InFlight() int64 {
	return q.inFlight.Load()
}
