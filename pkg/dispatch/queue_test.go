package dispatch

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueBoundsConcurrency(t *testing.T) {
	const submitters = 10
	q := New(3, time.Millisecond)

	var inFlight, peak atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := q.Acquire(context.Background())
			require.NoError(t, err)

			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			release()
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestQueueSpacesDepartures(t *testing.T) {
	const submitters = 6
	const interval = 20 * time.Millisecond
	q := New(3, interval)

	var mu sync.Mutex
	var departures []time.Time

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := q.Acquire(context.Background())
			require.NoError(t, err)
			mu.Lock()
			departures = append(departures, time.Now())
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	sort.Slice(departures, func(i, j int) bool { return departures[i].Before(departures[j]) })
	for i := 1; i < len(departures); i++ {
		gap := departures[i].Sub(departures[i-1])
		// Small scheduling slack; the invariant is the configured interval.
		assert.GreaterOrEqual(t, gap, interval-2*time.Millisecond,
			"departures %d and %d too close", i-1, i)
	}
}

func TestQueueCancellationWithdraws(t *testing.T) {
	q := New(1, time.Millisecond)

	release, err := q.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = q.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), q.Waiting())

	// The withdrawn waiter must not have consumed the slot.
	release()
	release2, err := q.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestQueueReleaseIdempotent(t *testing.T) {
	q := New(1, time.Millisecond)

	release, err := q.Acquire(context.Background())
	require.NoError(t, err)
	release()
	release() // second call must not free a slot twice

	release2, err := q.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.InFlight())
	release2()
	assert.Equal(t, int64(0), q.InFlight())
}
