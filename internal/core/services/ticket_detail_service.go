package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// TicketDetailService feeds the detail store and keeps the cache coherent.
type TicketDetailService struct {
	repo   ports.TicketDetailRepository
	cache  ports.DetailCache
	logger *slog.Logger
}

var _ ports.TicketDetailService = (*TicketDetailService)(nil)

// NewTicketDetailService creates a new ticket detail service. The cache may be nil.
func NewTicketDetailService(repo ports.TicketDetailRepository, cache ports.DetailCache, logger *slog.Logger) ports.TicketDetailService {
	return &TicketDetailService{
		repo:   repo,
		cache:  cache,
		logger: logger.With("component", "ticket_detail_service"),
	}
}

// Upsert stores ticket details and drops their cached copies
func (s *TicketDetailService) Upsert(ctx context.Context, records []domain.DetailRecord) (int, error) {
	// 1. Validate
	v := apperrors.NewValidationErrors()
	if len(records) == 0 {
		v.Add("details", "must contain at least one record")
	}
	ids := make([]int64, 0, len(records))
	for i, r := range records {
		if r.ID <= 0 {
			v.Add(fmt.Sprintf("details.%d.id", i), "must be a positive integer")
			continue
		}
		ids = append(ids, r.ID)
	}
	if v.HasErrors() {
		return 0, v
	}

	// 2. Persist
	n, err := s.repo.Upsert(ctx, records)
	if err != nil {
		return 0, err
	}

	// 3. Invalidate
	if s.cache != nil {
		s.cache.Invalidate(ids)
	}
	s.logger.InfoContext(ctx, "ticket details stored", "count", n)
	return n, nil
}
