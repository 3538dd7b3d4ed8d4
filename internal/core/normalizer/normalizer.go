// Package normalizer converts raw pipeline data, as exported by the upstream
// tracker, into canonical snapshots.
package normalizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
)

// Options carries the capture context that is not part of the raw data.
type Options struct {
	Type      string
	SectorID  string
	CreatedBy string
	CreatedAt time.Time
	// KeeperID is the assignee id of the default ticket holder. Unassigned
	// tickets held by it are counted as keeper tickets.
	KeeperID *int64
}

// NormalizeJSON decodes raw pipeline JSON and normalizes it.
func NormalizeJSON(data []byte, opts Options) (*domain.Snapshot, []domain.Warning, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		v := apperrors.NewValidationErrors()
		v.Add("pipelineData", "must be valid JSON")
		return nil, nil, v
	}
	return Normalize(raw, opts)
}

// Normalize builds a snapshot from decoded raw pipeline data. Structural
// problems are returned together in one ValidationErrors; per-record problems
// are recovered with a default and reported as warnings.
func Normalize(pipelineData any, opts Options) (*domain.Snapshot, []domain.Warning, error) {
	v := apperrors.NewValidationErrors()

	if opts.Type == "" {
		v.AddCause("type", apperrors.ErrSnapshotTypeRequired)
	}
	if opts.CreatedAt.IsZero() {
		v.Add("createdAt", "is required")
	}

	stageEntries := validateStructure(pipelineData, v)
	if v.HasErrors() {
		return nil, nil, v
	}

	b := newBuilder(opts)
	for _, entry := range stageEntries {
		b.addStage(entry)
	}
	if root, ok := pipelineData.(map[string]any); ok {
		if raw, ok := fieldUnassigned.lookup(root); ok {
			b.addUnassigned(raw)
		}
	}

	return b.build(), b.warnings, nil
}

func validateStructure(pipelineData any, v *apperrors.ValidationErrors) []map[string]any {
	if pipelineData == nil {
		v.Add("pipelineData", "is required")
		return nil
	}
	root, ok := pipelineData.(map[string]any)
	if !ok {
		v.Add("pipelineData", "must be an object")
		return nil
	}

	raw, ok := fieldStages.lookup(root)
	if !ok {
		v.Add("stages", "is required")
		return nil
	}
	list, ok := asList(raw)
	if !ok {
		v.Add("stages", "must be a list")
		return nil
	}

	entries := make([]map[string]any, 0, len(list))
	for i, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			v.Add(fmt.Sprintf("stages.%d", i), "must be an object")
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

type builder struct {
	opts     Options
	warnings []domain.Warning

	stageCounts      map[domain.StageKey]int
	zeroPointByStage map[domain.StageKey]domain.ZeroPoint
	employees        map[int64]*domain.EmployeeStat
	tickets          map[int64]domain.TicketRecord
}

func newBuilder(opts Options) *builder {
	return &builder{
		opts:             opts,
		stageCounts:      make(map[domain.StageKey]int),
		zeroPointByStage: make(map[domain.StageKey]domain.ZeroPoint),
		employees:        make(map[int64]*domain.EmployeeStat),
		tickets:          make(map[int64]domain.TicketRecord),
	}
}

func (b *builder) warn(w domain.Warning) {
	b.warnings = append(b.warnings, w)
}

func (b *builder) resolveStage(rawStageID string) (domain.StageKey, bool) {
	key, ok := domain.MapStage(rawStageID)
	if !ok {
		err := &apperrors.UnknownStageError{StageID: rawStageID}
		b.warn(domain.Warning{
			Code:    domain.WarningUnknownStage,
			Message: err.Error() + "; its tickets are excluded",
			StageID: rawStageID,
		})
	}
	return key, ok
}

func (b *builder) addStage(entry map[string]any) {
	rawStageID := fieldStage.str(entry)
	key, ok := b.resolveStage(rawStageID)
	if !ok {
		return
	}

	rawEmployees, ok := fieldEmployees.lookup(entry)
	if !ok {
		return
	}
	employees, ok := asList(rawEmployees)
	if !ok {
		b.warn(domain.Warning{
			Code:    domain.WarningInvalidEmployee,
			Message: "employees of the stage is not a list",
			StageID: rawStageID,
		})
		return
	}

	for _, item := range employees {
		emp, ok := item.(map[string]any)
		if !ok {
			b.warn(domain.Warning{Code: domain.WarningInvalidEmployee, Message: "employee entry is not an object", StageID: rawStageID})
			continue
		}
		id, ok := fieldID.integer(emp)
		if !ok {
			b.warn(domain.Warning{Code: domain.WarningInvalidEmployee, Message: "employee entry has no usable id", StageID: rawStageID})
			continue
		}
		name := fieldEmployeeName.str(emp)
		if name == "" {
			name = fmt.Sprintf("Employee #%d", id)
		}

		stat := b.employee(id, name)
		assignee := domain.EmployeeAssignee(id, name)
		for _, raw := range b.ticketList(emp, rawStageID) {
			if _, ok := b.addTicket(raw, rawStageID, assignee); ok {
				stat.TicketsByStage.Add(key, 1)
				b.stageCounts[key]++
			}
		}
	}
}

// addUnassigned walks the zero-point bucket. It is either a list of per-stage
// groups carrying a tickets list, or a flat list of tickets that carry their
// own stage id.
func (b *builder) addUnassigned(raw any) {
	list, ok := asList(raw)
	if !ok {
		b.warn(domain.Warning{Code: domain.WarningMissingZeroPoint, Message: "unassigned bucket is not a list"})
		return
	}

	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			b.warn(domain.Warning{Code: domain.WarningMissingTicketID, Message: "unassigned entry is not an object"})
			continue
		}

		if group, ok := fieldTickets.lookup(obj); ok {
			rawStageID := fieldStage.str(obj)
			key, ok := b.resolveStage(rawStageID)
			if !ok {
				continue
			}
			tickets, ok := asList(group)
			if !ok {
				continue
			}
			for _, t := range tickets {
				b.addZeroPointTicket(t, rawStageID, key)
			}
			continue
		}

		rawStageID := fieldStage.str(obj)
		key, ok := b.resolveStage(rawStageID)
		if !ok {
			continue
		}
		b.addZeroPointTicket(obj, rawStageID, key)
	}
}

func (b *builder) addZeroPointTicket(raw any, rawStageID string, key domain.StageKey) {
	obj, ok := raw.(map[string]any)
	if !ok {
		b.warn(domain.Warning{Code: domain.WarningMissingTicketID, Message: "ticket entry is not an object", StageID: rawStageID})
		return
	}

	assignee := domain.Unassigned()
	if id, ok := fieldAssigneeID.integer(obj); ok && b.opts.KeeperID != nil && id == *b.opts.KeeperID {
		name := fieldAssigneeName.str(obj)
		if name == "" {
			name = fmt.Sprintf("Employee #%d", id)
		}
		assignee = domain.KeeperAssignee(id, name)
	}

	if _, ok := b.addTicket(obj, rawStageID, assignee); !ok {
		return
	}

	zp := b.zeroPointByStage[key]
	if assignee.Kind == domain.AssigneeKeeper {
		zp.Keeper++
	} else {
		zp.Unassigned++
	}
	zp.Total = zp.Unassigned + zp.Keeper
	b.zeroPointByStage[key] = zp
	b.stageCounts[key]++
}

func (b *builder) ticketList(obj map[string]any, rawStageID string) []any {
	raw, ok := fieldTickets.lookup(obj)
	if !ok {
		return nil
	}
	list, ok := asList(raw)
	if !ok {
		b.warn(domain.Warning{Code: domain.WarningMissingTicketID, Message: "tickets is not a list", StageID: rawStageID})
		return nil
	}
	return list
}

func (b *builder) employee(id int64, name string) *domain.EmployeeStat {
	stat, ok := b.employees[id]
	if !ok {
		stat = &domain.EmployeeStat{ID: id, Name: name}
		b.employees[id] = stat
	}
	return stat
}

// addTicket converts one raw ticket and stores it, last write wins.
func (b *builder) addTicket(raw any, rawStageID string, assignee domain.AssigneeRef) (domain.TicketRecord, bool) {
	obj, ok := raw.(map[string]any)
	if !ok {
		b.warn(domain.Warning{Code: domain.WarningMissingTicketID, Message: "ticket entry is not an object", StageID: rawStageID})
		return domain.TicketRecord{}, false
	}
	id, ok := fieldID.integer(obj)
	if !ok {
		b.warn(domain.Warning{Code: domain.WarningMissingTicketID, Message: "ticket has no usable id; skipped", StageID: rawStageID})
		return domain.TicketRecord{}, false
	}

	record := domain.TicketRecord{
		ID:                 id,
		Title:              fieldTitle.str(obj),
		Assignee:           assignee,
		StageID:            rawStageID,
		DepartmentHead:     fieldDepartmentHead.str(obj),
		DepartmentHeadFull: fieldDepartmentHeadFull.str(obj),
		PriorityID:         fieldPriority.str(obj),
		PriorityLabel:      fieldPriorityLabel.str(obj),
		Service:            fieldService.str(obj),
		ServiceLabel:       fieldServiceLabel.str(obj),
		Subject:            fieldSubject.str(obj),
		Description:        fieldDescription.str(obj),
	}
	if record.Title == "" {
		record.Title = fmt.Sprintf("Ticket #%d", id)
	}

	switch assignee.Kind {
	case domain.AssigneeEmployee, domain.AssigneeKeeper:
		record.AssignedTo = &domain.AssignedTo{ID: assignee.ID, Name: assignee.Name}
	default:
		if assigneeID, ok := fieldAssigneeID.integer(obj); ok {
			record.AssignedTo = &domain.AssignedTo{ID: assigneeID, Name: fieldAssigneeName.str(obj)}
		}
	}

	var valid bool
	if record.CreatedAt, valid = dateValue(obj, fieldCreated); !valid {
		b.warnDate(id, rawStageID, "createdAt")
	}
	if record.UpdatedAt, valid = dateValue(obj, fieldUpdated); !valid {
		b.warnDate(id, rawStageID, "updatedAt")
	}
	record.Actions = b.actions(obj, id, rawStageID)

	if prev, exists := b.tickets[id]; exists {
		b.warn(domain.Warning{
			Code:     domain.WarningDuplicateTicket,
			Message:  fmt.Sprintf("ticket %d appears more than once; the last occurrence is kept", id),
			TicketID: id,
			StageID:  rawStageID,
		})
		b.retract(prev)
	}
	b.tickets[id] = record
	return record, true
}

// retract undoes the counters of a ticket replaced by a later occurrence, so
// every stored ticket is counted exactly once and where it was last seen.
func (b *builder) retract(prev domain.TicketRecord) {
	key, ok := domain.MapStage(prev.StageID)
	if !ok {
		return
	}
	b.stageCounts[key]--

	switch prev.Assignee.Kind {
	case domain.AssigneeEmployee:
		if stat, ok := b.employees[prev.Assignee.ID]; ok {
			stat.TicketsByStage.Add(key, -1)
		}
	case domain.AssigneeKeeper, domain.AssigneeUnassigned:
		zp := b.zeroPointByStage[key]
		if prev.Assignee.Kind == domain.AssigneeKeeper {
			zp.Keeper--
		} else {
			zp.Unassigned--
		}
		zp.Total = zp.Unassigned + zp.Keeper
		b.zeroPointByStage[key] = zp
	}
}

func (b *builder) warnDate(ticketID int64, rawStageID, name string) {
	b.warn(domain.Warning{
		Code:     domain.WarningInvalidDate,
		Message:  fmt.Sprintf("%s of ticket %d is not a valid date; stored as null", name, ticketID),
		TicketID: ticketID,
		StageID:  rawStageID,
	})
}

func (b *builder) actions(obj map[string]any, ticketID int64, rawStageID string) []domain.Action {
	raw, ok := fieldActions.lookup(obj)
	if !ok {
		return nil
	}
	list, ok := asList(raw)
	if !ok {
		return nil
	}

	actions := make([]domain.Action, 0, len(list))
	for _, item := range list {
		switch entry := item.(type) {
		case string:
			if entry != "" {
				actions = append(actions, domain.Action{Text: entry})
			}
		case map[string]any:
			createdAt, valid := dateValue(entry, fieldActionCreated)
			if !valid {
				b.warnDate(ticketID, rawStageID, "action date")
			}
			actions = append(actions, domain.Action{
				CreatedAt: createdAt,
				Author:    fieldActionAuthor.str(entry),
				Text:      fieldActionText.str(entry),
			})
		}
	}
	if len(actions) == 0 {
		return nil
	}
	return actions
}

func (b *builder) build() *domain.Snapshot {
	tickets := make([]domain.TicketRecord, 0, len(b.tickets))
	for _, t := range b.tickets {
		tickets = append(tickets, t)
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })

	employees := make([]domain.EmployeeStat, 0, len(b.employees))
	for _, stat := range b.employees {
		stat.TotalTickets = stat.TicketsByStage.Sum()
		employees = append(employees, *stat)
	}
	sort.Slice(employees, func(i, j int) bool { return employees[i].ID < employees[j].ID })

	var zeroPoint domain.ZeroPoint
	byStage := make(map[domain.StageKey]domain.ZeroPoint, len(domain.Stages))
	for _, key := range domain.Stages {
		zp := b.zeroPointByStage[key]
		byStage[key] = zp
		zeroPoint.Unassigned += zp.Unassigned
		zeroPoint.Keeper += zp.Keeper
	}
	zeroPoint.Total = zeroPoint.Unassigned + zeroPoint.Keeper

	return &domain.Snapshot{
		Metadata: domain.Metadata{
			Version:   domain.SchemaVersion,
			CreatedAt: b.opts.CreatedAt.UTC(),
			Type:      b.opts.Type,
			SectorID:  b.opts.SectorID,
			CreatedBy: b.opts.CreatedBy,
		},
		Statistics: domain.Statistics{
			Stages: domain.NewStageStats(
				b.stageCounts[domain.StageFormed],
				b.stageCounts[domain.StageReview],
				b.stageCounts[domain.StageExecution],
			),
			Employees:        employees,
			ZeroPoint:        &zeroPoint,
			ZeroPointByStage: byStage,
		},
		TicketIDs: domain.SortedTicketIDs(tickets),
		Tickets:   tickets,
	}
}
