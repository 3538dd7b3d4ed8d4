package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/drilldown"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
	"github.com/lorrc/pipeline-snapshots/internal/core/projector"
)

// DrillDownOptions configures drill-down presentation.
type DrillDownOptions struct {
	MaxVisible int
	Locale     string
	Palette    domain.Palette
	// Location is the timezone aging categories are computed in.
	Location *time.Location
	Now      func() time.Time
}

func (o DrillDownOptions) now() time.Time {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	if o.Location != nil {
		return now().In(o.Location)
	}
	return now()
}

// DrillDownService implements navigation over a stored snapshot
type DrillDownService struct {
	repo    ports.SnapshotRepository
	fetcher ports.TicketDetailFetcher
	cache   ports.DetailCache
	logger  *slog.Logger
	opts    DrillDownOptions
}

var _ ports.DrillDownService = (*DrillDownService)(nil)

// NewDrillDownService creates a new drill-down service. The cache may be nil.
func NewDrillDownService(
	repo ports.SnapshotRepository,
	fetcher ports.TicketDetailFetcher,
	cache ports.DetailCache,
	logger *slog.Logger,
	opts DrillDownOptions,
) ports.DrillDownService {
	return &DrillDownService{
		repo:    repo,
		fetcher: fetcher,
		cache:   cache,
		logger:  logger.With("component", "drilldown_service"),
		opts:    opts,
	}
}

// Stage builds Level 1 for one stage of a snapshot
func (s *DrillDownService) Stage(ctx context.Context, q ports.StageQuery) (*drilldown.Level1, error) {
	snapshot, err := s.load(ctx, q.Snapshot)
	if err != nil {
		return nil, err
	}
	return drilldown.BuildLevel1(snapshot, q.Stage, s.levelOptions(q.MaxVisible))
}

// Employee builds Level 2 for an employee or the zero point
func (s *DrillDownService) Employee(ctx context.Context, q ports.EmployeeQuery) (*drilldown.Level2, error) {
	level1, err := s.Stage(ctx, q.StageQuery)
	if err != nil {
		return nil, err
	}

	level2, err := drilldown.BuildLevel2(level1.Context, q.Selection, q.Grouping, s.opts.now(), s.levelOptions(q.MaxVisible))
	if err != nil {
		return nil, err
	}
	logWarnings(ctx, s.logger, "drilldown.employee", level2.Warnings)
	return level2, nil
}

// Aging builds Level 3 for one aging category
func (s *DrillDownService) Aging(ctx context.Context, q ports.AgingQuery) (*drilldown.Level3, error) {
	level2, err := s.Employee(ctx, q.EmployeeQuery)
	if err != nil {
		return nil, err
	}
	return drilldown.BuildLevel3(level2.Context, q.Category, s.opts.now(), s.levelOptions(q.MaxVisible))
}

// Tickets resolves the final ticket list, enriches it and projects it for
// display
func (s *DrillDownService) Tickets(ctx context.Context, q ports.TicketListQuery) (*ports.TicketList, error) {
	// 1. Load the snapshot and resolve the stage
	snapshot, err := s.load(ctx, q.Snapshot)
	if err != nil {
		return nil, err
	}
	key, _, err := drilldown.ResolveStage(q.Stage)
	if err != nil {
		return nil, err
	}

	// 2. Rebuild the parent context and apply the final filter
	now := s.opts.now()
	parent, err := drilldown.ContextFromTickets(snapshot, drilldown.Filter{
		Stage:        &key,
		Selection:    q.Selection,
		DateCategory: q.DateCategory,
	}, q.TicketIDs)
	if err != nil {
		return nil, err
	}
	level4, err := drilldown.BuildLevel4(parent, q.DepartmentName, now)
	if err != nil {
		return nil, err
	}

	// 3. Enrich with details, degrading to snapshot fields on failure
	details, enrichWarnings := projector.Enrich(ctx, level4.Tickets, s.fetcher, s.cache)
	level4.TicketDetails = details

	// 4. Project for display
	tickets, projectWarnings := projector.ProjectAll(level4.Tickets, details, s.opts.Palette, now)

	warnings := append(append(level4.Warnings, enrichWarnings...), projectWarnings...)
	logWarnings(ctx, s.logger, "drilldown.tickets", warnings)

	return &ports.TicketList{
		Context:  level4.Context,
		Total:    level4.Total,
		Tickets:  tickets,
		Warnings: warnings,
	}, nil
}

func (s *DrillDownService) load(ctx context.Context, key ports.SnapshotKey) (*domain.Snapshot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	stored, err := s.repo.Get(ctx, calendarDay(key.Date), key.Type)
	if err != nil {
		return nil, err
	}
	return stored.Snapshot, nil
}

func (s *DrillDownService) levelOptions(maxVisible int) drilldown.Options {
	if maxVisible <= 0 {
		maxVisible = s.opts.MaxVisible
	}
	return drilldown.Options{MaxVisible: maxVisible, Locale: s.opts.Locale}
}
