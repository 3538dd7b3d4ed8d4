package drilldown

import (
	"fmt"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
)

// Grouping selects how Level 2 buckets an employee's tickets.
type Grouping string

const (
	GroupByAging    Grouping = "aging"
	GroupByCustomer Grouping = "customer"
)

// ParseGrouping resolves a grouping name; empty means aging.
func ParseGrouping(s string) (Grouping, error) {
	switch Grouping(s) {
	case "", GroupByAging:
		return GroupByAging, nil
	case GroupByCustomer:
		return GroupByCustomer, nil
	default:
		return "", fmt.Errorf("%w: groupBy must be %q or %q", apperrors.ErrBadRequest, GroupByAging, GroupByCustomer)
	}
}

// Level1 is the stage view: who holds the stage's tickets.
type Level1 struct {
	Context
	Total        int           `json:"total"`
	Contributors []Contributor `json:"contributors"`
	Others       *Others       `json:"others"`
}

// Level2 is one employee's (or the zero point's) tickets on a stage.
type Level2 struct {
	Context
	Grouping Grouping `json:"grouping"`
	Total    int      `json:"total"`
	Groups   []Group  `json:"groups"`
}

// Level3 narrows Level 2 to one aging category.
type Level3 struct {
	Context
	Total     int     `json:"total"`
	Customers []Group `json:"customers"`
}

// Level4 is the terminal ticket list.
type Level4 struct {
	Context
	Total int `json:"total"`
}

// BuildLevel1 ranks the contributors of a stage. The stage is given as a
// stage key or a raw stage identifier.
func BuildLevel1(snapshot *domain.Snapshot, stage string, opts Options) (*Level1, error) {
	if snapshot == nil {
		return nil, &apperrors.NavigationError{Level: 1, Missing: "snapshot"}
	}
	if stage == "" {
		return nil, &apperrors.NavigationError{Level: 1, Missing: "stage"}
	}
	key, raw, err := ResolveStage(stage)
	if err != nil {
		return nil, err
	}

	tickets, warnings := filterTickets(snapshot, Filter{Stage: &key}, time.Time{})
	total := snapshot.Statistics.Stages.Count(key)

	contributors := make([]Contributor, 0, len(snapshot.Statistics.Employees)+1)
	for _, e := range snapshot.Statistics.Employees {
		count := e.TicketsByStage.Get(key)
		if count == 0 {
			continue
		}
		id := e.ID
		contributors = append(contributors, Contributor{
			EmployeeID: &id,
			Name:       e.Name,
			Count:      count,
			Percentage: percentage(count, total),
		})
	}
	if zp := snapshot.ZeroPointFor(key); zp.Total > 0 {
		contributors = append(contributors, Contributor{
			ZeroPoint:  true,
			Name:       ZeroPointName,
			Count:      zp.Total,
			Percentage: percentage(zp.Total, total),
			Unassigned: zp.Unassigned,
			Keeper:     zp.Keeper,
		})
	}

	grouped := groupContributors(contributors, opts)

	return &Level1{
		Context: Context{
			SourceLevel: 1,
			StageID:     raw,
			StageKey:    key,
			StageName:   key.Name(),
			Tickets:     tickets,
			Snapshot:    snapshot,
			Warnings:    warnings,
		},
		Total:        total,
		Contributors: grouped.Visible,
		Others:       grouped.Others,
	}, nil
}

// BuildLevel2 selects an employee or the zero point on the parent's stage
// and groups the selected tickets.
func BuildLevel2(parent Context, sel Selection, grouping Grouping, now time.Time, opts Options) (*Level2, error) {
	if err := requireStage(parent, 2); err != nil {
		return nil, err
	}
	if !sel.IsSet() {
		return nil, &apperrors.NavigationError{Level: 2, Missing: "employee"}
	}

	ctx := parent.clone(2)
	ctx.EmployeeID = sel.EmployeeID
	ctx.ZeroPoint = sel.ZeroPoint
	ctx.EmployeeName = stringPtr(selectionName(parent.Snapshot, sel))
	ctx.DateCategory = nil
	ctx.DateCategoryLabel = nil
	ctx.DepartmentName = nil

	tickets, warnings := filterTickets(parent.Snapshot, Filter{Stage: &parent.StageKey, Selection: sel}, now)
	ctx.Tickets = tickets
	ctx.Warnings = warnings

	var groups []Group
	switch grouping {
	case GroupByCustomer:
		groups = groupByCustomer(tickets, opts)
	default:
		grouping = GroupByAging
		groups = groupByAging(tickets, now, opts)
	}

	return &Level2{
		Context:  ctx,
		Grouping: grouping,
		Total:    len(tickets),
		Groups:   groups,
	}, nil
}

// BuildLevel3 intersects the Level-2 tickets with an aging category and
// groups the subset by customer.
func BuildLevel3(parent Context, category domain.AgingCategory, now time.Time, opts Options) (*Level3, error) {
	if err := requireStage(parent, 3); err != nil {
		return nil, err
	}
	sel := parent.selection()
	if !sel.IsSet() {
		return nil, &apperrors.NavigationError{Level: 3, Missing: "employee"}
	}
	if !category.IsValid() {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownDateCategory, category)
	}

	ctx := parent.clone(3)
	ctx.DateCategory = &category
	ctx.DateCategoryLabel = stringPtr(category.Label())
	ctx.DepartmentName = nil

	if parent.SourceLevel >= 2 && parent.Tickets != nil {
		ctx.Tickets = filterSlice(parent.Tickets, func(t domain.TicketRecord) bool {
			return domain.ClassifyPtr(t.CreatedAt, now) == category
		})
	} else {
		ctx.Tickets, ctx.Warnings = filterTickets(parent.Snapshot, Filter{
			Stage:        &parent.StageKey,
			Selection:    sel,
			DateCategory: &category,
		}, now)
	}
	if ctx.EmployeeName == nil {
		ctx.EmployeeName = stringPtr(selectionName(parent.Snapshot, sel))
	}

	return &Level3{
		Context:   ctx,
		Total:     len(ctx.Tickets),
		Customers: groupByCustomer(ctx.Tickets, opts),
	}, nil
}

// BuildLevel4 resolves the final ticket list. Tickets carried by the parent
// are the base, with departmentName applied on top; without them the
// parent's selectors are applied to the whole snapshot.
func BuildLevel4(parent Context, departmentName *string, now time.Time) (*Level4, error) {
	if err := requireStage(parent, 4); err != nil {
		return nil, err
	}

	ctx := parent.clone(4)
	if departmentName != nil {
		name := *departmentName
		ctx.DepartmentName = &name
	}

	if parent.Tickets != nil {
		ctx.Tickets = parent.Tickets
		if ctx.DepartmentName != nil {
			name := *ctx.DepartmentName
			ctx.Tickets = filterSlice(parent.Tickets, func(t domain.TicketRecord) bool {
				return t.Customer() == name
			})
		}
	} else {
		ctx.Tickets, ctx.Warnings = filterTickets(parent.Snapshot, Filter{
			Stage:          &parent.StageKey,
			Selection:      parent.selection(),
			DateCategory:   parent.DateCategory,
			DepartmentName: ctx.DepartmentName,
		}, now)
	}

	return &Level4{Context: ctx, Total: len(ctx.Tickets)}, nil
}

// FilterAtLevel4 applies a Filter directly to the snapshot's tickets.
func FilterAtLevel4(snapshot *domain.Snapshot, f Filter, now time.Time) ([]domain.TicketRecord, []domain.Warning) {
	return filterTickets(snapshot, f, now)
}

// ContextFromTickets rebuilds a parent context from ticket ids a client
// carried over from a previous level. Unknown ids are dropped.
func ContextFromTickets(snapshot *domain.Snapshot, f Filter, ticketIDs []int64) (Context, error) {
	if snapshot == nil {
		return Context{}, &apperrors.NavigationError{Level: 4, Missing: "snapshot"}
	}
	if f.Stage == nil {
		return Context{}, &apperrors.NavigationError{Level: 4, Missing: "stage"}
	}

	ctx := Context{
		SourceLevel:  3,
		EmployeeID:   f.Selection.EmployeeID,
		ZeroPoint:    f.Selection.ZeroPoint,
		StageKey:     *f.Stage,
		StageName:    f.Stage.Name(),
		DateCategory: f.DateCategory,
		Snapshot:     snapshot,
	}
	ctx.StageID, _ = domain.RawStageID(*f.Stage)
	if f.Selection.IsSet() {
		ctx.EmployeeName = stringPtr(selectionName(snapshot, f.Selection))
	}
	if f.DateCategory != nil {
		ctx.DateCategoryLabel = stringPtr(f.DateCategory.Label())
	}

	if ticketIDs != nil {
		index := snapshot.TicketIndex()
		ctx.Tickets = make([]domain.TicketRecord, 0, len(ticketIDs))
		for _, id := range ticketIDs {
			if t, ok := index[id]; ok {
				ctx.Tickets = append(ctx.Tickets, t)
			}
		}
	}
	return ctx, nil
}

func requireStage(parent Context, level int) error {
	if parent.Snapshot == nil {
		return &apperrors.NavigationError{Level: level, Missing: "snapshot"}
	}
	if !parent.StageKey.IsValid() {
		return &apperrors.NavigationError{Level: level, Missing: "stage"}
	}
	return nil
}

func selectionName(snapshot *domain.Snapshot, sel Selection) string {
	if sel.ZeroPoint {
		return ZeroPointName
	}
	if sel.EmployeeID == nil {
		return ""
	}
	if e, ok := snapshot.Employee(*sel.EmployeeID); ok && e.Name != "" {
		return e.Name
	}
	return fmt.Sprintf("Employee #%d", *sel.EmployeeID)
}

func groupByAging(tickets []domain.TicketRecord, now time.Time, opts Options) []Group {
	buckets := make(map[domain.AgingCategory]*Group)
	for _, t := range tickets {
		category := domain.ClassifyPtr(t.CreatedAt, now)
		g, ok := buckets[category]
		if !ok {
			g = &Group{Key: string(category), Label: category.Label()}
			buckets[category] = g
		}
		g.Count++
		g.TicketIDs = append(g.TicketIDs, t.ID)
	}

	groups := make([]Group, 0, len(buckets))
	for _, category := range domain.AgingCategories {
		if g, ok := buckets[category]; ok {
			g.Percentage = percentage(g.Count, len(tickets))
			groups = append(groups, *g)
		}
	}
	rankGroups(groups, opts.newCollator())
	return groups
}

func groupByCustomer(tickets []domain.TicketRecord, opts Options) []Group {
	buckets := make(map[string]*Group)
	order := make([]string, 0)
	for _, t := range tickets {
		customer := t.Customer()
		g, ok := buckets[customer]
		if !ok {
			g = &Group{Key: customer, Label: customer}
			buckets[customer] = g
			order = append(order, customer)
		}
		g.Count++
		g.TicketIDs = append(g.TicketIDs, t.ID)
	}

	groups := make([]Group, 0, len(buckets))
	for _, customer := range order {
		g := buckets[customer]
		g.Percentage = percentage(g.Count, len(tickets))
		groups = append(groups, *g)
	}
	rankGroups(groups, opts.newCollator())
	return groups
}
