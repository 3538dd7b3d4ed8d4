package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/diff"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/lorrc/pipeline-snapshots/internal/core/normalizer"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// SnapshotOptions configures snapshot capture.
type SnapshotOptions struct {
	// KeeperID is the default ticket holder counted in the zero point.
	KeeperID *int64
	// Location decides the calendar day a capture is stored under.
	Location *time.Location
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

func (o SnapshotOptions) now() time.Time {
	now := time.Now
	if o.Now != nil {
		now = o.Now
	}
	if o.Location != nil {
		return now().In(o.Location)
	}
	return now()
}

// SnapshotService implements snapshot capture, storage and comparison
type SnapshotService struct {
	repo        ports.SnapshotRepository
	broadcaster ports.EventBroadcaster
	logger      *slog.Logger
	opts        SnapshotOptions
}

var _ ports.SnapshotService = (*SnapshotService)(nil)

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(
	repo ports.SnapshotRepository,
	broadcaster ports.EventBroadcaster,
	logger *slog.Logger,
	opts SnapshotOptions,
) ports.SnapshotService {
	return &SnapshotService{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger.With("component", "snapshot_service"),
		opts:        opts,
	}
}

// Capture normalizes raw pipeline data and stores it as today's snapshot
func (s *SnapshotService) Capture(ctx context.Context, params ports.CaptureParams) (*ports.SnapshotResult, error) {
	// 1. Normalize the raw pipeline data
	snapshot, warnings, err := normalizer.NormalizeJSON(params.Data, normalizer.Options{
		Type:      params.Type,
		SectorID:  params.SectorID,
		CreatedBy: params.CreatedBy,
		CreatedAt: s.opts.now(),
		KeeperID:  s.opts.KeeperID,
	})
	if err != nil {
		return nil, err
	}
	s.logWarnings(ctx, "capture", warnings)

	// 2. Persist, replacing any capture of the same day and type
	return s.store(ctx, snapshot, warnings)
}

// Import stores a snapshot document produced elsewhere
func (s *SnapshotService) Import(ctx context.Context, params ports.ImportParams) (*ports.SnapshotResult, error) {
	// 1. Decode and validate the document
	snapshot, warnings, err := domain.DecodeSnapshot(params.Document)
	if err != nil {
		return nil, err
	}
	s.logWarnings(ctx, "import", warnings)

	// 2. Fill in the importer when the document does not name one
	if snapshot.Metadata.SectorID == "" {
		snapshot.Metadata.SectorID = params.SectorID
	}
	if snapshot.Metadata.CreatedBy == "" {
		snapshot.Metadata.CreatedBy = params.CreatedBy
	}

	// 3. Persist
	return s.store(ctx, snapshot, warnings)
}

func (s *SnapshotService) store(ctx context.Context, snapshot *domain.Snapshot, warnings []domain.Warning) (*ports.SnapshotResult, error) {
	date := s.captureDate(snapshot.Metadata.CreatedAt)

	stored, err := s.repo.Create(ctx, date, snapshot)
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}

	s.logger.InfoContext(ctx, "snapshot stored",
		"date", stored.Date.Format(domain.DateLayout),
		"type", snapshot.Metadata.Type,
		"tickets", len(snapshot.Tickets),
		"warnings", len(warnings),
	)
	s.broadcast(ctx, domain.EventSnapshotCreated, snapshot.Metadata.SectorID, domain.NewSnapshotEventPayload(stored))

	return &ports.SnapshotResult{Stored: stored, Warnings: warnings}, nil
}

// Get retrieves one stored snapshot
func (s *SnapshotService) Get(ctx context.Context, key ports.SnapshotKey) (*domain.StoredSnapshot, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, calendarDay(key.Date), key.Type)
}

// List retrieves the snapshots captured within a date range
func (s *SnapshotService) List(ctx context.Context, r domain.DateRange) ([]*domain.StoredSnapshot, error) {
	if err := validateRange(r); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, r)
}

// Delete removes one stored snapshot and notifies its sector. A caller
// scoped to a sector may only delete that sector's snapshots.
func (s *SnapshotService) Delete(ctx context.Context, key ports.SnapshotKey, sectorID string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	// 1. Load the snapshot to check ownership
	date := calendarDay(key.Date)
	stored, err := s.repo.Get(ctx, date, key.Type)
	if err != nil {
		return err
	}
	var owner string
	if stored.Snapshot != nil {
		owner = stored.Snapshot.Metadata.SectorID
	}
	if sectorID != "" && owner != "" && owner != sectorID {
		s.logger.WarnContext(ctx, "cross-sector delete refused",
			"date", date.Format(domain.DateLayout),
			"type", key.Type,
			"owner_sector", owner,
			"caller_sector", sectorID,
		)
		return apperrors.ErrForbidden
	}

	// 2. Delete
	deleted, err := s.repo.Delete(ctx, date, key.Type)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.ErrSnapshotNotFound
	}

	// 3. Notify the owning sector
	s.logger.InfoContext(ctx, "snapshot deleted", "date", date.Format(domain.DateLayout), "type", key.Type)
	s.broadcast(ctx, domain.EventSnapshotDeleted, owner, domain.SnapshotEventPayload{
		Date: date.Format(domain.DateLayout),
		Type: key.Type,
	})
	return nil
}

// Compare diffs the snapshots stored on two dates
func (s *SnapshotService) Compare(ctx context.Context, params ports.CompareParams) (*diff.Comparison, error) {
	// 1. Load both sides
	from, err := s.Get(ctx, ports.SnapshotKey{Date: params.From, Type: params.Type})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", params.From.Format(domain.DateLayout), err)
	}
	to, err := s.Get(ctx, ports.SnapshotKey{Date: params.To, Type: params.Type})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", params.To.Format(domain.DateLayout), err)
	}

	// 2. Compute the comparison
	comparison, err := diff.CompareTwo(from.Snapshot, to.Snapshot, params.Options)
	if err != nil {
		return nil, err
	}
	s.logWarnings(ctx, "compare", comparison.Warnings)
	return comparison, nil
}

// Trends compares every snapshot in a date range in chronological order
func (s *SnapshotService) Trends(ctx context.Context, params ports.TrendsParams) (*diff.MultiComparison, error) {
	stored, err := s.List(ctx, params.Range)
	if err != nil {
		return nil, err
	}

	snapshots := make([]*domain.Snapshot, 0, len(stored))
	for _, st := range stored {
		snapshots = append(snapshots, st.Snapshot)
	}

	multi, err := diff.CompareMultiple(snapshots, params.Options)
	if err != nil {
		return nil, err
	}
	s.logWarnings(ctx, "trends", multi.Warnings)
	return multi, nil
}

// captureDate truncates t to the calendar day in the configured location.
func (s *SnapshotService) captureDate(t time.Time) time.Time {
	if s.opts.Location != nil {
		t = t.In(s.opts.Location)
	}
	return calendarDay(t)
}

// calendarDay keeps the year, month and day of t as a UTC midnight.
func calendarDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *SnapshotService) broadcast(ctx context.Context, eventType domain.EventType, sectorID string, payload domain.SnapshotEventPayload) {
	if s.broadcaster == nil {
		return
	}
	event := domain.Event{Type: eventType, Payload: payload, SectorID: sectorID}
	if err := s.broadcaster.Broadcast(event); err != nil {
		s.logger.WarnContext(ctx, "failed to broadcast event", "event_type", eventType, "error", err)
	}
}

func (s *SnapshotService) logWarnings(ctx context.Context, operation string, warnings []domain.Warning) {
	logWarnings(ctx, s.logger, operation, warnings)
}

func logWarnings(ctx context.Context, logger *slog.Logger, operation string, warnings []domain.Warning) {
	for _, w := range warnings {
		attrs := []any{"operation", operation, "code", w.Code}
		if w.TicketID != 0 {
			attrs = append(attrs, "ticket_id", w.TicketID)
		}
		if w.StageID != "" {
			attrs = append(attrs, "stage_id", w.StageID)
		}
		logger.WarnContext(ctx, w.Message, attrs...)
	}
}

func validateKey(key ports.SnapshotKey) error {
	v := apperrors.NewValidationErrors()
	if key.Date.IsZero() {
		v.Add("date", "is required")
	}
	if key.Type == "" {
		v.AddCause("type", apperrors.ErrSnapshotTypeRequired)
	}
	if v.HasErrors() {
		return v
	}
	return nil
}

func validateRange(r domain.DateRange) error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		v := apperrors.NewValidationErrors()
		v.Add("to", "must not be before from")
		return v
	}
	return nil
}
