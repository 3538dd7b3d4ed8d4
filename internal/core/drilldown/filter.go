package drilldown

import (
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
)

// filterTickets walks the snapshot's tickets in order and keeps those that
// match every set field of f. When a stage is requested, tickets whose raw
// stage is not in the stage table are left out and reported once per raw id.
func filterTickets(snapshot *domain.Snapshot, f Filter, now time.Time) ([]domain.TicketRecord, []domain.Warning) {
	result := make([]domain.TicketRecord, 0)
	if snapshot == nil {
		return result, nil
	}

	var warnings []domain.Warning
	reported := make(map[string]bool)

	for _, t := range snapshot.Tickets {
		if f.Stage != nil {
			key, ok := t.StageKey()
			if !ok {
				if !reported[t.StageID] {
					reported[t.StageID] = true
					err := &apperrors.UnknownStageError{StageID: t.StageID}
					warnings = append(warnings, domain.Warning{
						Code:     domain.WarningUnknownStage,
						Message:  err.Error() + "; ticket excluded from stage results",
						TicketID: t.ID,
						StageID:  t.StageID,
					})
				}
				continue
			}
			if key != *f.Stage {
				continue
			}
		}
		if f.Selection.IsSet() && !f.Selection.matches(t) {
			continue
		}
		if f.DateCategory != nil && domain.ClassifyPtr(t.CreatedAt, now) != *f.DateCategory {
			continue
		}
		if f.DepartmentName != nil && t.Customer() != *f.DepartmentName {
			continue
		}
		result = append(result, t)
	}
	return result, warnings
}

func filterSlice(tickets []domain.TicketRecord, keep func(domain.TicketRecord) bool) []domain.TicketRecord {
	out := make([]domain.TicketRecord, 0, len(tickets))
	for _, t := range tickets {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}
