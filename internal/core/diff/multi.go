package diff

import (
	"fmt"
	"sort"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
)

// Trend series categories.
const (
	SeriesFormed     = "stages.formed"
	SeriesReview     = "stages.review"
	SeriesExecution  = "stages.execution"
	SeriesTotal      = "stages.total"
	SeriesUnassigned = "zeroPoint.unassigned"
	SeriesKeeper     = "zeroPoint.keeper"
	SeriesZeroPoint  = "zeroPoint.total"
)

// SeriesCategories lists every trend series in display order.
var SeriesCategories = []string{
	SeriesFormed,
	SeriesReview,
	SeriesExecution,
	SeriesTotal,
	SeriesUnassigned,
	SeriesKeeper,
	SeriesZeroPoint,
}

// MultiComparison is a chronological run of pairwise comparisons together
// with one time series per counter.
type MultiComparison struct {
	Period      Period                  `json:"period"`
	Count       int                     `json:"count"`
	Comparisons []*Comparison           `json:"comparisons"`
	Trends      map[string][]TrendPoint `json:"trends"`
	Warnings    []domain.Warning        `json:"warnings,omitempty"`
}

type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TrendPoint is one snapshot's value in a series.
type TrendPoint struct {
	CreatedAt time.Time `json:"createdAt"`
	Type      string    `json:"type"`
	Value     int       `json:"value"`
}

// CompareMultiple orders snapshots by capture time, compares every
// consecutive pair and builds the trend series across all of them.
func CompareMultiple(snapshots []*domain.Snapshot, opts Options) (*MultiComparison, error) {
	v := apperrors.NewValidationErrors()
	if len(snapshots) < 2 {
		v.AddCause("snapshots", apperrors.ErrNotEnoughSnapshots)
		return nil, v
	}

	var warnings []domain.Warning
	for i, s := range snapshots {
		prefix := fmt.Sprintf("snapshots.%d", i)
		warnings = append(warnings, prefixWarnings(prefix, validateInto(v, prefix, s))...)
	}
	if v.HasErrors() {
		return nil, v
	}

	ordered := make([]*domain.Snapshot, len(snapshots))
	copy(ordered, snapshots)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Metadata.CreatedAt.Before(ordered[j].Metadata.CreatedAt)
	})

	result := &MultiComparison{
		Period: Period{
			From: ordered[0].Metadata.CreatedAt,
			To:   ordered[len(ordered)-1].Metadata.CreatedAt,
		},
		Count:       len(ordered),
		Comparisons: make([]*Comparison, 0, len(ordered)-1),
		Trends:      buildTrends(ordered),
		Warnings:    warnings,
	}

	for i := 1; i < len(ordered); i++ {
		c, err := CompareTwo(ordered[i-1], ordered[i], opts)
		if err != nil {
			return nil, err
		}
		c.Warnings = nil
		result.Comparisons = append(result.Comparisons, c)
	}
	return result, nil
}

func buildTrends(ordered []*domain.Snapshot) map[string][]TrendPoint {
	trends := make(map[string][]TrendPoint, len(SeriesCategories))
	for _, category := range SeriesCategories {
		trends[category] = make([]TrendPoint, 0, len(ordered))
	}

	for _, s := range ordered {
		var zp domain.ZeroPoint
		if s.Statistics.ZeroPoint != nil {
			zp = *s.Statistics.ZeroPoint
		}
		stages := s.Statistics.Stages
		values := map[string]int{
			SeriesFormed:     stages.Count(domain.StageFormed),
			SeriesReview:     stages.Count(domain.StageReview),
			SeriesExecution:  stages.Count(domain.StageExecution),
			SeriesTotal:      stages.TotalCount(),
			SeriesUnassigned: zp.Unassigned,
			SeriesKeeper:     zp.Keeper,
			SeriesZeroPoint:  zp.Total,
		}
		for _, category := range SeriesCategories {
			trends[category] = append(trends[category], TrendPoint{
				CreatedAt: s.Metadata.CreatedAt,
				Type:      s.Metadata.Type,
				Value:     values[category],
			})
		}
	}
	return trends
}
