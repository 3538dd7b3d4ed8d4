package ports

import (
	"context"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/diff"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/drilldown"
)

// CaptureParams defines the input for capturing a snapshot from raw
// pipeline data. Data is the undecoded JSON document.
type CaptureParams struct {
	Type      string
	SectorID  string
	CreatedBy string
	Data      []byte
}

// ImportParams defines the input for storing a ready snapshot document.
type ImportParams struct {
	Document  []byte
	SectorID  string
	CreatedBy string
}

// SnapshotResult is a stored snapshot and the warnings raised producing it.
type SnapshotResult struct {
	Stored   *domain.StoredSnapshot
	Warnings []domain.Warning
}

// SnapshotKey addresses one stored snapshot.
type SnapshotKey struct {
	Date time.Time
	Type string
}

// CompareParams defines the input for comparing two stored snapshots.
type CompareParams struct {
	From    time.Time
	To      time.Time
	Type    string
	Options diff.Options
}

// TrendsParams defines the input for a multi-snapshot comparison.
type TrendsParams struct {
	Range   domain.DateRange
	Options diff.Options
}

// SnapshotService defines the snapshot capture and comparison use cases.
type SnapshotService interface {
	Capture(ctx context.Context, params CaptureParams) (*SnapshotResult, error)
	Import(ctx context.Context, params ImportParams) (*SnapshotResult, error)
	Get(ctx context.Context, key SnapshotKey) (*domain.StoredSnapshot, error)
	List(ctx context.Context, r domain.DateRange) ([]*domain.StoredSnapshot, error)
	Delete(ctx context.Context, key SnapshotKey, sectorID string) error
	Compare(ctx context.Context, params CompareParams) (*diff.Comparison, error)
	Trends(ctx context.Context, params TrendsParams) (*diff.MultiComparison, error)
}

// StageQuery selects a stage of a stored snapshot.
type StageQuery struct {
	Snapshot   SnapshotKey
	Stage      string
	MaxVisible int
}

// EmployeeQuery selects an employee or the zero point on a stage.
type EmployeeQuery struct {
	StageQuery
	Selection drilldown.Selection
	Grouping  drilldown.Grouping
}

// AgingQuery narrows an employee query to one aging category.
type AgingQuery struct {
	EmployeeQuery
	Category domain.AgingCategory
}

// TicketListQuery resolves the terminal ticket list. TicketIDs, when set,
// are the tickets the previous level showed.
type TicketListQuery struct {
	Snapshot       SnapshotKey
	Stage          string
	Selection      drilldown.Selection
	DateCategory   *domain.AgingCategory
	DepartmentName *string
	TicketIDs      []int64
}

// TicketList is the projected Level-4 result.
type TicketList struct {
	Context  drilldown.Context      `json:"context"`
	Total    int                    `json:"total"`
	Tickets  []domain.DisplayTicket `json:"tickets"`
	Warnings []domain.Warning       `json:"warnings,omitempty"`
}

// DrillDownService defines the drill-down navigation use cases.
type DrillDownService interface {
	Stage(ctx context.Context, q StageQuery) (*drilldown.Level1, error)
	Employee(ctx context.Context, q EmployeeQuery) (*drilldown.Level2, error)
	Aging(ctx context.Context, q AgingQuery) (*drilldown.Level3, error)
	Tickets(ctx context.Context, q TicketListQuery) (*TicketList, error)
}

// TicketDetailService defines the port for feeding the detail store.
type TicketDetailService interface {
	Upsert(ctx context.Context, records []domain.DetailRecord) (int, error)
}

// TransactionManager defines the port for running atomic operations.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
