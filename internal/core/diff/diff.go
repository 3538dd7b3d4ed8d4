// Package diff compares snapshots counter by counter and ticket by ticket.
package diff

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
)

// Options selects the optional sections of a comparison.
type Options struct {
	IncludeTickets   bool
	IncludeEmployees bool
}

// Comparison is the full delta report between two snapshots.
type Comparison struct {
	Metadata  ComparisonMetadata `json:"metadata"`
	Stages    StageDeltas        `json:"stages"`
	Employees []EmployeeDelta    `json:"employees,omitempty"`
	ZeroPoint ZeroPointDelta     `json:"zeroPoint"`
	Tickets   *TicketChanges     `json:"tickets"`
	Summary   Summary            `json:"summary"`
	Warnings  []domain.Warning   `json:"warnings,omitempty"`
}

type ComparisonMetadata struct {
	Snapshot1    SnapshotRef `json:"snapshot1"`
	Snapshot2    SnapshotRef `json:"snapshot2"`
	HoursBetween float64     `json:"hoursBetween"`
}

type SnapshotRef struct {
	CreatedAt time.Time `json:"createdAt"`
	Type      string    `json:"type"`
}

// StageDeltas holds one delta per stage and one for the total.
type StageDeltas struct {
	Formed    Delta `json:"formed"`
	Review    Delta `json:"review"`
	Execution Delta `json:"execution"`
	Total     Delta `json:"total"`
}

// Get returns the delta of a stage.
func (s StageDeltas) Get(key domain.StageKey) Delta {
	switch key {
	case domain.StageFormed:
		return s.Formed
	case domain.StageReview:
		return s.Review
	default:
		return s.Execution
	}
}

// EmployeeDelta is the change of one employee's workload.
type EmployeeDelta struct {
	ID    int64          `json:"id"`
	Name  string         `json:"name"`
	Trend Trend          `json:"trend"`
	Delta EmployeeCounts `json:"delta"`
}

// EmployeeCounts carries the total delta and, for employees present in both
// snapshots, the per-stage deltas.
type EmployeeCounts struct {
	TotalTickets Delta                     `json:"totalTickets"`
	ByStage      map[domain.StageKey]Delta `json:"byStage,omitempty"`
}

type ZeroPointDelta struct {
	Unassigned Delta `json:"unassigned"`
	Keeper     Delta `json:"keeper"`
	Total      Delta `json:"total"`
}

// TicketChanges classifies every ticket id of both snapshots.
type TicketChanges struct {
	New       []int64        `json:"new"`
	Removed   []int64        `json:"removed"`
	Changed   []TicketChange `json:"changed"`
	Unchanged []int64        `json:"unchanged"`
}

// TicketChange records what moved for a ticket present in both snapshots.
type TicketChange struct {
	ID      int64       `json:"id"`
	Fields  []string    `json:"fields"`
	Before  TicketState `json:"before"`
	After   TicketState `json:"after"`
	Title   string      `json:"title"`
	Subject string      `json:"subject,omitempty"`
}

type TicketState struct {
	AssigneeID *int64 `json:"assigneeId"`
	StageID    string `json:"stageId"`
}

type Summary struct {
	StagesChanged    int  `json:"stagesChanged"`
	EmployeesChanged int  `json:"employeesChanged"`
	HasChanges       bool `json:"hasChanges"`
	TicketsNew       int  `json:"ticketsNew"`
	TicketsRemoved   int  `json:"ticketsRemoved"`
	TicketsChanged   int  `json:"ticketsChanged"`
}

// CompareTwo compares snapshot a (earlier) with snapshot b (later). Both must
// pass structural validation; every violation of either is returned together
// and no partial comparison is produced.
func CompareTwo(a, b *domain.Snapshot, opts Options) (*Comparison, error) {
	v := apperrors.NewValidationErrors()
	warningsA := validateInto(v, "snapshot1", a)
	warningsB := validateInto(v, "snapshot2", b)
	if v.HasErrors() {
		return nil, v
	}

	c := &Comparison{
		Metadata: ComparisonMetadata{
			Snapshot1:    SnapshotRef{CreatedAt: a.Metadata.CreatedAt, Type: a.Metadata.Type},
			Snapshot2:    SnapshotRef{CreatedAt: b.Metadata.CreatedAt, Type: b.Metadata.Type},
			HoursBetween: hoursBetween(a.Metadata.CreatedAt, b.Metadata.CreatedAt),
		},
		Stages:    compareStages(a.Statistics.Stages, b.Statistics.Stages),
		ZeroPoint: compareZeroPoint(a.Statistics.ZeroPoint, b.Statistics.ZeroPoint),
		Warnings:  append(prefixWarnings("snapshot1", warningsA), prefixWarnings("snapshot2", warningsB)...),
	}

	if opts.IncludeEmployees {
		c.Employees = compareEmployees(a.Statistics.Employees, b.Statistics.Employees)
	}
	if opts.IncludeTickets {
		c.Tickets = compareTickets(a, b)
	}
	c.Summary = summarize(c)
	return c, nil
}

func validateInto(v *apperrors.ValidationErrors, prefix string, s *domain.Snapshot) []domain.Warning {
	warnings, err := domain.ValidateSnapshot(s)
	if err == nil {
		return warnings
	}
	var validationErr *apperrors.ValidationErrors
	if errors.As(err, &validationErr) {
		v.Merge(prefix, validationErr)
	} else {
		v.Add(prefix, err.Error())
	}
	return nil
}

func prefixWarnings(prefix string, warnings []domain.Warning) []domain.Warning {
	out := make([]domain.Warning, 0, len(warnings))
	for _, w := range warnings {
		w.Message = prefix + ": " + w.Message
		out = append(out, w)
	}
	return out
}

func hoursBetween(from, to time.Time) float64 {
	return math.Round(to.Sub(from).Hours()*100) / 100
}

func compareStages(a, b domain.StageStats) StageDeltas {
	return StageDeltas{
		Formed:    NewDelta(a.Count(domain.StageFormed), b.Count(domain.StageFormed)),
		Review:    NewDelta(a.Count(domain.StageReview), b.Count(domain.StageReview)),
		Execution: NewDelta(a.Count(domain.StageExecution), b.Count(domain.StageExecution)),
		Total:     NewDelta(a.TotalCount(), b.TotalCount()),
	}
}

func compareZeroPoint(a, b *domain.ZeroPoint) ZeroPointDelta {
	var za, zb domain.ZeroPoint
	if a != nil {
		za = *a
	}
	if b != nil {
		zb = *b
	}
	return ZeroPointDelta{
		Unassigned: NewDelta(za.Unassigned, zb.Unassigned),
		Keeper:     NewDelta(za.Keeper, zb.Keeper),
		Total:      NewDelta(za.Total, zb.Total),
	}
}

func compareEmployees(a, b []domain.EmployeeStat) []EmployeeDelta {
	before := make(map[int64]domain.EmployeeStat, len(a))
	for _, e := range a {
		before[e.ID] = e
	}
	after := make(map[int64]domain.EmployeeStat, len(b))
	for _, e := range b {
		after[e.ID] = e
	}

	ids := make([]int64, 0, len(before)+len(after))
	for id := range before {
		ids = append(ids, id)
	}
	for id := range after {
		if _, ok := before[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	deltas := make([]EmployeeDelta, 0, len(ids))
	for _, id := range ids {
		prev, inA := before[id]
		next, inB := after[id]

		switch {
		case inA && inB:
			total := NewDelta(prev.TotalTickets, next.TotalTickets)
			byStage := make(map[domain.StageKey]Delta, len(domain.Stages))
			for _, key := range domain.Stages {
				byStage[key] = NewDelta(prev.TicketsByStage.Get(key), next.TicketsByStage.Get(key))
			}
			deltas = append(deltas, EmployeeDelta{
				ID:    id,
				Name:  next.Name,
				Trend: total.Trend,
				Delta: EmployeeCounts{TotalTickets: total, ByStage: byStage},
			})
		case inB:
			deltas = append(deltas, EmployeeDelta{
				ID:    id,
				Name:  next.Name,
				Trend: TrendNew,
				Delta: EmployeeCounts{TotalTickets: NewDelta(0, next.TotalTickets)},
			})
		default:
			deltas = append(deltas, EmployeeDelta{
				ID:    id,
				Name:  prev.Name,
				Trend: TrendRemoved,
				Delta: EmployeeCounts{TotalTickets: NewDelta(prev.TotalTickets, 0)},
			})
		}
	}
	return deltas
}

func compareTickets(a, b *domain.Snapshot) *TicketChanges {
	before := a.TicketIndex()
	after := b.TicketIndex()

	changes := &TicketChanges{
		New:       []int64{},
		Removed:   []int64{},
		Changed:   []TicketChange{},
		Unchanged: []int64{},
	}

	for _, id := range domain.SortedTicketIDs(b.Tickets) {
		next := after[id]
		prev, ok := before[id]
		if !ok {
			changes.New = append(changes.New, id)
			continue
		}

		var fields []string
		if !sameAssignee(prev.AssigneeID(), next.AssigneeID()) {
			fields = append(fields, "assignee")
		}
		if prev.StageID != next.StageID {
			fields = append(fields, "stage")
		}
		if len(fields) == 0 {
			changes.Unchanged = append(changes.Unchanged, id)
			continue
		}
		changes.Changed = append(changes.Changed, TicketChange{
			ID:      id,
			Fields:  fields,
			Before:  TicketState{AssigneeID: prev.AssigneeID(), StageID: prev.StageID},
			After:   TicketState{AssigneeID: next.AssigneeID(), StageID: next.StageID},
			Title:   next.Title,
			Subject: next.Subject,
		})
	}

	for _, id := range domain.SortedTicketIDs(a.Tickets) {
		if _, ok := after[id]; !ok {
			changes.Removed = append(changes.Removed, id)
		}
	}
	return changes
}

func sameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func summarize(c *Comparison) Summary {
	var s Summary
	for _, key := range domain.Stages {
		if c.Stages.Get(key).Changed() {
			s.StagesChanged++
		}
	}
	for _, e := range c.Employees {
		if e.Trend != TrendStable {
			s.EmployeesChanged++
		}
	}
	if c.Tickets != nil {
		s.TicketsNew = len(c.Tickets.New)
		s.TicketsRemoved = len(c.Tickets.Removed)
		s.TicketsChanged = len(c.Tickets.Changed)
	}

	zeroPointChanged := c.ZeroPoint.Unassigned.Changed() || c.ZeroPoint.Keeper.Changed() || c.ZeroPoint.Total.Changed()
	s.HasChanges = s.StagesChanged > 0 ||
		c.Stages.Total.Changed() ||
		s.EmployeesChanged > 0 ||
		zeroPointChanged ||
		s.TicketsNew+s.TicketsRemoved+s.TicketsChanged > 0
	return s
}

// String renders a one-line description of the comparison for logs.
func (c *Comparison) String() string {
	return fmt.Sprintf("%s -> %s: total %+d, %d stage(s) changed",
		c.Metadata.Snapshot1.CreatedAt.Format(time.RFC3339),
		c.Metadata.Snapshot2.CreatedAt.Format(time.RFC3339),
		c.Stages.Total.Delta,
		c.Summary.StagesChanged)
}
