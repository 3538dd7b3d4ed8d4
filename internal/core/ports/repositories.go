package ports

import (
	"context"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
)

// SnapshotRepository stores one snapshot per capture date and type.
type SnapshotRepository interface {
	// Create stores the snapshot, replacing any snapshot with the same date
	// and type.
	Create(ctx context.Context, date time.Time, snapshot *domain.Snapshot) (*domain.StoredSnapshot, error)
	// Get returns apperrors.ErrSnapshotNotFound when nothing is stored.
	Get(ctx context.Context, date time.Time, snapshotType string) (*domain.StoredSnapshot, error)
	List(ctx context.Context, r domain.DateRange) ([]*domain.StoredSnapshot, error)
	Delete(ctx context.Context, date time.Time, snapshotType string) (bool, error)
}

// TicketDetailFetcher returns the rich content of tickets. Ids without
// details are left out of the result.
type TicketDetailFetcher interface {
	GetDetails(ctx context.Context, ticketIDs []int64) ([]domain.DetailRecord, error)
}

// TicketDetailRepository is the detail store fed by the capture job.
type TicketDetailRepository interface {
	TicketDetailFetcher
	Upsert(ctx context.Context, records []domain.DetailRecord) (int, error)
}

// DetailCache keeps fetched ticket details between requests.
type DetailCache interface {
	GetMany(ticketIDs []int64) (found map[int64]domain.DetailRecord, missing []int64)
	PutMany(records []domain.DetailRecord)
	Invalidate(ticketIDs []int64)
}

// EventBroadcaster defines the port for sending real-time events.
type EventBroadcaster interface {
	Broadcast(event domain.Event) error
}
