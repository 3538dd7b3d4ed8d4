package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDetailCache_GetPutInvalidate(t *testing.T) {
	c := NewDetailCache(10, time.Minute)

	c.PutMany([]domain.DetailRecord{{ID: 1, Subject: "a"}, {ID: 2, Subject: "b"}})

	found, missing := c.GetMany([]int64{1, 2, 3})
	assert.Len(t, found, 2)
	assert.Equal(t, "b", found[2].Subject)
	assert.Equal(t, []int64{3}, missing)

	c.Invalidate([]int64{1})
	found, missing = c.GetMany([]int64{1, 2})
	assert.Len(t, found, 1)
	assert.Equal(t, []int64{1}, missing)

	hits, misses := c.Stats()
	assert.Equal(t, int64(3), hits)
	assert.Equal(t, int64(2), misses)
}

func TestDetailCache_EvictsAndExpires(t *testing.T) {
	t.Run("evicts least recently used", func(t *testing.T) {
		c := NewDetailCache(2, time.Minute)
		c.PutMany([]domain.DetailRecord{{ID: 1}, {ID: 2}, {ID: 3}})

		_, missing := c.GetMany([]int64{1, 2, 3})
		assert.Equal(t, []int64{1}, missing)
		assert.Equal(t, 2, c.Len())
	})

	t.Run("expires after ttl", func(t *testing.T) {
		c := NewDetailCache(10, 20*time.Millisecond)
		c.PutMany([]domain.DetailRecord{{ID: 1}})

		assert.Eventually(t, func() bool {
			_, missing := c.GetMany([]int64{1})
			return len(missing) == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("defaults", func(t *testing.T) {
		c := NewDetailCache(0, 0)
		c.PutMany([]domain.DetailRecord{{ID: 9}})
		found, _ := c.GetMany([]int64{9})
		assert.Len(t, found, 1)
	})
}

// blockingFetcher counts calls and holds them until release is closed.
type blockingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
}

func (f *blockingFetcher) GetDetails(ctx context.Context, ticketIDs []int64) ([]domain.DetailRecord, error) {
	f.calls.Add(1)
	<-f.release
	out := make([]domain.DetailRecord, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		out = append(out, domain.DetailRecord{ID: id})
	}
	return out, nil
}

func TestCoalescingFetcher_CollapsesConcurrentBatches(t *testing.T) {
	next := &blockingFetcher{release: make(chan struct{})}
	f := NewCoalescingFetcher(next)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]domain.DetailRecord, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids := []int64{1, 2, 3}
			if i%2 == 1 {
				ids = []int64{3, 2, 1}
			}
			recs, err := f.GetDetails(context.Background(), ids)
			assert.NoError(t, err)
			results[i] = recs
		}(i)
	}

	require.Eventually(t, func() bool { return next.calls.Load() >= 1 }, time.Second, time.Millisecond)
	// Let the other callers join the in-flight call before releasing it.
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load())
	for _, recs := range results {
		assert.Len(t, recs, 3)
	}
}

func TestCoalescingFetcher_CallerCancellation(t *testing.T) {
	next := &blockingFetcher{release: make(chan struct{})}
	defer close(next.release)
	f := NewCoalescingFetcher(next)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.GetDetails(ctx, []int64{1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCoalescingFetcher_PropagatesErrors(t *testing.T) {
	next := mocks.NewMockTicketDetailRepository()
	next.On("GetDetails", mock.Anything, []int64{4}).Return(nil, errors.New("boom"))
	f := NewCoalescingFetcher(next)

	_, err := f.GetDetails(context.Background(), []int64{4})
	assert.EqualError(t, err, "boom")

	recs, err := f.GetDetails(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestBatchKey(t *testing.T) {
	assert.Equal(t, "1,2,3", batchKey([]int64{3, 1, 2, 3}))
	assert.Equal(t, batchKey([]int64{5, 4}), batchKey([]int64{4, 5}))
}
