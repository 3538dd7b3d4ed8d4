// Package projector turns snapshot tickets into display tickets, merging in
// rich content fetched from the detail store.
package projector

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// NeedsEnrichment reports whether the ticket lacks subject, description or
// actions.
func NeedsEnrichment(t domain.TicketRecord) bool {
	return t.Subject == "" || t.Description == "" || len(t.Actions) == 0
}

// IdentifyNeedingEnrichment returns the tickets whose rich fields are
// incomplete, in input order.
func IdentifyNeedingEnrichment(tickets []domain.TicketRecord) []domain.TicketRecord {
	out := make([]domain.TicketRecord, 0)
	for _, t := range tickets {
		if NeedsEnrichment(t) {
			out = append(out, t)
		}
	}
	return out
}

// Enrich loads details for the tickets that need them. The cache is consulted
// first and the rest is fetched in one batch. Fetch failures and ids the
// fetcher does not know are reported as warnings; the caller falls back to
// the snapshot fields. A nil cache disables caching.
func Enrich(ctx context.Context, tickets []domain.TicketRecord, fetcher ports.TicketDetailFetcher, cache ports.DetailCache) (map[int64]domain.DetailRecord, []domain.Warning) {
	details := make(map[int64]domain.DetailRecord)
	ids := uniqueIDs(IdentifyNeedingEnrichment(tickets))
	if len(ids) == 0 || fetcher == nil {
		return details, nil
	}

	missing := ids
	if cache != nil {
		var found map[int64]domain.DetailRecord
		found, missing = cache.GetMany(ids)
		for id, d := range found {
			details[id] = d
		}
	}
	if len(missing) == 0 {
		return details, nil
	}

	records, err := fetcher.GetDetails(ctx, missing)
	if err != nil {
		return details, []domain.Warning{failureWarning(&apperrors.EnrichmentFailure{TicketIDs: missing, Err: err})}
	}
	if cache != nil && len(records) > 0 {
		cache.PutMany(records)
	}

	wanted := make(map[int64]bool, len(missing))
	for _, id := range missing {
		wanted[id] = true
	}
	for _, r := range records {
		if wanted[r.ID] {
			details[r.ID] = r
		}
	}

	var absent []int64
	for _, id := range missing {
		if _, ok := details[id]; !ok {
			absent = append(absent, id)
		}
	}
	if len(absent) > 0 {
		return details, []domain.Warning{failureWarning(&apperrors.EnrichmentFailure{TicketIDs: absent})}
	}
	return details, nil
}

// Project builds the display form of one ticket. Non-empty detail fields
// take precedence over the snapshot's. The input is not modified.
func Project(t domain.TicketRecord, detail *domain.DetailRecord, palette domain.Palette, now time.Time) domain.DisplayTicket {
	d, _ := project(t, detail, palette, now)
	return d
}

// ProjectAll projects tickets in order, using details keyed by ticket id.
// Priorities and services missing from the palette are reported once per
// value.
func ProjectAll(tickets []domain.TicketRecord, details map[int64]domain.DetailRecord, palette domain.Palette, now time.Time) ([]domain.DisplayTicket, []domain.Warning) {
	out := make([]domain.DisplayTicket, 0, len(tickets))
	var warnings []domain.Warning
	seen := make(map[string]bool)

	for _, t := range tickets {
		var detail *domain.DetailRecord
		if d, ok := details[t.ID]; ok {
			detail = &d
		}
		display, unknown := project(t, detail, palette, now)
		out = append(out, display)

		for _, w := range unknown {
			if seen[w.Message] {
				continue
			}
			seen[w.Message] = true
			warnings = append(warnings, w)
		}
	}
	return out, warnings
}

func project(t domain.TicketRecord, detail *domain.DetailRecord, palette domain.Palette, now time.Time) (domain.DisplayTicket, []domain.Warning) {
	title := t.Title
	subject := t.Subject
	description := t.Description
	actions := t.Actions
	priorityID := t.PriorityID
	serviceID := t.Service

	if detail != nil {
		title = firstNonEmpty(detail.Title, title)
		subject = firstNonEmpty(detail.Subject, subject)
		description = firstNonEmpty(detail.Description, description)
		if len(detail.Actions) > 0 {
			actions = detail.Actions
		}
		priorityID = firstNonEmpty(detail.PriorityID, priorityID)
		serviceID = firstNonEmpty(detail.Service, serviceID)
	}

	status := domain.StatusForStage(t.StageID)
	stageKey, _ := t.StageKey()
	category := domain.ClassifyPtr(t.CreatedAt, now)

	var warnings []domain.Warning
	priority, ok := badge(priorityID, t.PriorityLabel, palette.Priority, palette)
	if !ok {
		warnings = append(warnings, lookupWarning(t.ID, "priority", priorityID))
	}
	service, ok := badge(serviceID, t.ServiceLabel, palette.Service, palette)
	if !ok {
		warnings = append(warnings, lookupWarning(t.ID, "service", serviceID))
	}

	return domain.DisplayTicket{
		ID:            t.ID,
		Title:         title,
		Subject:       subject,
		Description:   description,
		Actions:       slices.Clone(actions),
		Status:        status,
		StatusLabel:   status.Label(),
		StageKey:      stageKey,
		AssigneeName:  t.ResolvedAssignee().DisplayName(),
		Customer:      t.Customer(),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
		AgingCategory: category,
		AgingLabel:    category.Label(),
		Priority:      priority,
		Service:       service,
		Enriched:      detail != nil,
	}, warnings
}

// badge resolves id against the palette. An empty id is not a miss.
func badge(id, fallbackLabel string, lookup func(string) (domain.PaletteEntry, bool), palette domain.Palette) (domain.Badge, bool) {
	if entry, ok := lookup(id); ok {
		return domain.Badge{ID: id, Label: entry.Label, Colors: entry.Colors}, true
	}
	label := firstNonEmpty(fallbackLabel, id)
	return domain.Badge{ID: id, Label: label, Colors: palette.NeutralOrDefault()}, id == ""
}

func lookupWarning(ticketID int64, kind, id string) domain.Warning {
	return domain.Warning{
		Code:     domain.WarningUnrecognizedLookup,
		Message:  fmt.Sprintf("unrecognized %s %q, using neutral colors", kind, id),
		TicketID: ticketID,
	}
}

func failureWarning(err *apperrors.EnrichmentFailure) domain.Warning {
	w := domain.Warning{Code: domain.WarningEnrichmentFailed, Message: err.Error()}
	if len(err.TicketIDs) == 1 {
		w.TicketID = err.TicketIDs[0]
	}
	return w
}

func uniqueIDs(tickets []domain.TicketRecord) []int64 {
	ids := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
