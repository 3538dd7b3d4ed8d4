package cache

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

// CoalescingFetcher collapses concurrent fetches of the same id batch into
// one call to the wrapped fetcher.
type CoalescingFetcher struct {
	next  ports.TicketDetailFetcher
	group singleflight.Group
}

var _ ports.TicketDetailFetcher = (*CoalescingFetcher)(nil)

// NewCoalescingFetcher wraps next.
func NewCoalescingFetcher(next ports.TicketDetailFetcher) *CoalescingFetcher {
	return &CoalescingFetcher{next: next}
}

// GetDetails fetches details for ids, sharing the result with concurrent
// callers asking for the same set. The shared call runs without the
// callers' cancellation; each caller still returns as soon as its own
// context is done.
func (f *CoalescingFetcher) GetDetails(ctx context.Context, ticketIDs []int64) ([]domain.DetailRecord, error) {
	if len(ticketIDs) == 0 {
		return []domain.DetailRecord{}, nil
	}

	ch := f.group.DoChan(batchKey(ticketIDs), func() (any, error) {
		return f.next.GetDetails(context.WithoutCancel(ctx), ticketIDs)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Callers share the slice; hand each its own copy.
		return slices.Clone(res.Val.([]domain.DetailRecord)), nil
	}
}

// batchKey is order independent so permutations of one batch coalesce.
func batchKey(ids []int64) string {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var b strings.Builder
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	return b.String()
}
