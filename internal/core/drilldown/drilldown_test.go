package drilldown_test

import (
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/drilldown"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday; ages below land in each of the nine aging categories in order.
var (
	testNow       = time.Date(2024, time.March, 13, 12, 0, 0, 0, time.UTC)
	categoryAges  = []int{0, 1, 2, 5, 20, 40, 90, 200, 400}
	customerCycle = []string{"Ivanov", "", "Petrov"}
)

const unknownStageTicket = int64(9999)

func createdDaysAgo(days int) *time.Time {
	t := testNow.AddDate(0, 0, -days)
	return &t
}

// fixtureSnapshot has 2 employees x 3 stages x 9 aging categories, three
// zero-point tickets on the formed stage and one ticket on a stage outside
// the stage table.
func fixtureSnapshot() *domain.Snapshot {
	names := map[int64]string{1: "Борис", 2: "Анна"}
	stats := map[int64]*domain.EmployeeStat{
		1: {ID: 1, Name: names[1]},
		2: {ID: 2, Name: names[2]},
	}
	stageCounts := make(map[domain.StageKey]int)
	var tickets []domain.TicketRecord

	for _, empID := range []int64{1, 2} {
		for si, key := range domain.Stages {
			raw, _ := domain.RawStageID(key)
			for ci, age := range categoryAges {
				tickets = append(tickets, domain.TicketRecord{
					ID:             empID*1000 + int64(si*100+ci),
					Title:          fmt.Sprintf("ticket %d/%s/%d", empID, key, ci),
					AssignedTo:     &domain.AssignedTo{ID: empID, Name: names[empID]},
					Assignee:       domain.EmployeeAssignee(empID, names[empID]),
					CreatedAt:      createdDaysAgo(age),
					StageID:        raw,
					DepartmentHead: customerCycle[ci%len(customerCycle)],
				})
				stats[empID].TicketsByStage.Add(key, 1)
				stageCounts[key]++
			}
		}
	}

	formedRaw, _ := domain.RawStageID(domain.StageFormed)
	tickets = append(tickets,
		domain.TicketRecord{ID: 5001, StageID: formedRaw, Assignee: domain.Unassigned(), CreatedAt: createdDaysAgo(0)},
		domain.TicketRecord{ID: 5002, StageID: formedRaw, Assignee: domain.Unassigned(), CreatedAt: createdDaysAgo(0)},
		domain.TicketRecord{
			ID:         5003,
			StageID:    formedRaw,
			AssignedTo: &domain.AssignedTo{ID: 99, Name: "Helpdesk"},
			Assignee:   domain.KeeperAssignee(99, "Helpdesk"),
			CreatedAt:  createdDaysAgo(40),
		},
		domain.TicketRecord{
			ID:         unknownStageTicket,
			StageID:    "DT1032_16:LOSE",
			AssignedTo: &domain.AssignedTo{ID: 1, Name: names[1]},
			Assignee:   domain.EmployeeAssignee(1, names[1]),
			CreatedAt:  createdDaysAgo(0),
		},
	)
	stageCounts[domain.StageFormed] += 3
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })

	employees := []domain.EmployeeStat{*stats[1], *stats[2]}
	for i := range employees {
		employees[i].TotalTickets = employees[i].TicketsByStage.Sum()
	}

	return &domain.Snapshot{
		Metadata: domain.Metadata{Version: domain.SchemaVersion, CreatedAt: testNow, Type: "daily"},
		Statistics: domain.Statistics{
			Stages: domain.NewStageStats(
				stageCounts[domain.StageFormed],
				stageCounts[domain.StageReview],
				stageCounts[domain.StageExecution],
			),
			Employees: employees,
			ZeroPoint: &domain.ZeroPoint{Unassigned: 2, Keeper: 1, Total: 3},
			ZeroPointByStage: map[domain.StageKey]domain.ZeroPoint{
				domain.StageFormed: {Unassigned: 2, Keeper: 1, Total: 3},
			},
		},
		TicketIDs: domain.SortedTicketIDs(tickets),
		Tickets:   tickets,
	}
}

func ticketIDs(tickets []domain.TicketRecord) []int64 {
	ids := make([]int64, 0, len(tickets))
	for _, t := range tickets {
		ids = append(ids, t.ID)
	}
	return ids
}

func groupLabels(groups []drilldown.Group) []string {
	labels := make([]string, 0, len(groups))
	for _, g := range groups {
		labels = append(labels, g.Label)
	}
	return labels
}

func TestFixtureSnapshot_IsConsistent(t *testing.T) {
	require.NoError(t, domain.CheckInvariants(fixtureSnapshot()))
}

func TestGroupEmployeesByCount(t *testing.T) {
	counts := []int{5, 12, 3, 8, 1, 7, 9, 2, 11, 4, 10, 6, 13}
	contributors := make([]drilldown.Contributor, 0, len(counts))
	for i, count := range counts {
		id := int64(i + 1)
		contributors = append(contributors, drilldown.Contributor{
			EmployeeID: &id,
			Name:       fmt.Sprintf("Employee %02d", i+1),
			Count:      count,
		})
	}

	grouped := drilldown.GroupEmployeesByCount(contributors, 10)

	require.Len(t, grouped.Visible, 10)
	visibleCounts := make([]int, 0, 10)
	for _, c := range grouped.Visible {
		visibleCounts = append(visibleCounts, c.Count)
	}
	assert.Equal(t, []int{13, 12, 11, 10, 9, 8, 7, 6, 5, 4}, visibleCounts)

	require.NotNil(t, grouped.Others)
	assert.Equal(t, 3, grouped.Others.EmployeeCount)
	assert.Equal(t, 1+2+3, grouped.Others.Count)

	assert.Equal(t, 100.0, grouped.Visible[0].BarWidth)
	assert.Equal(t, 30.8, grouped.Visible[9].BarWidth)

	// The input slice is left untouched.
	assert.Equal(t, 5, contributors[0].Count)
}

func TestGroupEmployeesByCount_TiesOrderedByName(t *testing.T) {
	names := []string{"Яна", "Борис", "Анна", "Ёжик", "Евгений"}
	contributors := make([]drilldown.Contributor, 0, len(names))
	for i, name := range names {
		id := int64(i + 1)
		contributors = append(contributors, drilldown.Contributor{EmployeeID: &id, Name: name, Count: 4})
	}

	grouped := drilldown.GroupEmployeesByCount(contributors, 0)

	got := make([]string, 0, len(names))
	for _, c := range grouped.Visible {
		got = append(got, c.Name)
	}
	assert.Equal(t, []string{"Анна", "Борис", "Евгений", "Ёжик", "Яна"}, got)
	assert.Nil(t, grouped.Others)
}

func TestBuildLevel1(t *testing.T) {
	snapshot := fixtureSnapshot()

	level, err := drilldown.BuildLevel1(snapshot, "formed", drilldown.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, level.SourceLevel)
	assert.Equal(t, domain.StageFormed, level.StageKey)
	assert.Equal(t, "DT1032_16:NEW", level.StageID)
	assert.Equal(t, 21, level.Total)
	assert.Nil(t, level.Others)

	require.Len(t, level.Contributors, 3)
	assert.Equal(t, "Анна", level.Contributors[0].Name)
	assert.Equal(t, "Борис", level.Contributors[1].Name)
	assert.Equal(t, 42.9, level.Contributors[0].Percentage)
	assert.Equal(t, 100.0, level.Contributors[1].BarWidth)

	zero := level.Contributors[2]
	assert.True(t, zero.ZeroPoint)
	assert.Nil(t, zero.EmployeeID)
	assert.Equal(t, drilldown.ZeroPointName, zero.Name)
	assert.Equal(t, 3, zero.Count)
	assert.Equal(t, 14.3, zero.Percentage)
	assert.Equal(t, 33.3, zero.BarWidth)
	assert.Equal(t, 1, zero.Keeper)

	assert.Len(t, level.Tickets, 21)
	assert.NotContains(t, ticketIDs(level.Tickets), unknownStageTicket)
	require.Len(t, level.Warnings, 1)
	assert.Equal(t, domain.WarningUnknownStage, level.Warnings[0].Code)
	assert.Equal(t, "DT1032_16:LOSE", level.Warnings[0].StageID)
}

func TestBuildLevel1_CapsContributors(t *testing.T) {
	level, err := drilldown.BuildLevel1(fixtureSnapshot(), "DT1032_16:NEW", drilldown.Options{MaxVisible: 1})
	require.NoError(t, err)

	require.Len(t, level.Contributors, 1)
	require.NotNil(t, level.Others)
	assert.Equal(t, drilldown.Others{Count: 12, EmployeeCount: 2}, *level.Others)
}

func TestBuildLevel1_Errors(t *testing.T) {
	_, err := drilldown.BuildLevel1(fixtureSnapshot(), "DT1032_16:LOSE", drilldown.Options{})
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStage))

	_, err = drilldown.BuildLevel1(fixtureSnapshot(), "", drilldown.Options{})
	var navErr *apperrors.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 1, navErr.Level)
}

func TestBuildLevel2_ByAging(t *testing.T) {
	level1, err := drilldown.BuildLevel1(fixtureSnapshot(), "formed", drilldown.Options{})
	require.NoError(t, err)

	level2, err := drilldown.BuildLevel2(level1.Context, drilldown.EmployeeSelection(1), drilldown.GroupByAging, testNow, drilldown.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, level2.SourceLevel)
	assert.Equal(t, "Борис", *level2.EmployeeName)
	assert.Equal(t, 9, level2.Total)
	require.Len(t, level2.Groups, 9)
	for _, g := range level2.Groups {
		assert.Equal(t, 1, g.Count)
		assert.Equal(t, 11.1, g.Percentage)
	}

	// Equal counts fall back to the label.
	assert.Equal(t, []string{
		"Last week",
		"More than a year",
		"More than half a year",
		"More than two months",
		"More than two weeks",
		"This week",
		"Today",
		"Up to one month",
		"Yesterday",
	}, groupLabels(level2.Groups))

	// The parent is not modified.
	assert.Equal(t, 1, level1.SourceLevel)
	assert.Nil(t, level1.EmployeeID)
}

func TestBuildLevel2_ByCustomer(t *testing.T) {
	level1, err := drilldown.BuildLevel1(fixtureSnapshot(), "review", drilldown.Options{})
	require.NoError(t, err)

	level2, err := drilldown.BuildLevel2(level1.Context, drilldown.EmployeeSelection(2), drilldown.GroupByCustomer, testNow, drilldown.Options{})
	require.NoError(t, err)

	require.Len(t, level2.Groups, 3)
	assert.Equal(t, "Ivanov", level2.Groups[0].Label)
	assert.Equal(t, "Petrov", level2.Groups[1].Label)
	assert.Equal(t, domain.WithoutCustomer, level2.Groups[2].Label)
	for _, g := range level2.Groups {
		assert.Equal(t, 3, g.Count)
	}
}

func TestBuildLevel2_ZeroPoint(t *testing.T) {
	level1, err := drilldown.BuildLevel1(fixtureSnapshot(), "formed", drilldown.Options{})
	require.NoError(t, err)

	level2, err := drilldown.BuildLevel2(level1.Context, drilldown.ZeroPointSelection(), drilldown.GroupByAging, testNow, drilldown.Options{})
	require.NoError(t, err)

	assert.True(t, level2.ZeroPoint)
	assert.Equal(t, drilldown.ZeroPointName, *level2.EmployeeName)
	assert.Equal(t, []int64{5001, 5002, 5003}, ticketIDs(level2.Tickets))
	require.Len(t, level2.Groups, 2)
	assert.Equal(t, string(domain.AgingToday), level2.Groups[0].Key)
	assert.Equal(t, 2, level2.Groups[0].Count)
	assert.Equal(t, string(domain.AgingUpToOneMonth), level2.Groups[1].Key)
}

func TestBuildLevel2_RequiresSelection(t *testing.T) {
	level1, err := drilldown.BuildLevel1(fixtureSnapshot(), "formed", drilldown.Options{})
	require.NoError(t, err)

	level2, err := drilldown.BuildLevel2(level1.Context, drilldown.Selection{}, drilldown.GroupByAging, testNow, drilldown.Options{})
	assert.Nil(t, level2)

	var navErr *apperrors.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 2, navErr.Level)
	assert.Equal(t, "employee", navErr.Missing)
}

func TestBuildLevel3And4(t *testing.T) {
	level1, err := drilldown.BuildLevel1(fixtureSnapshot(), "formed", drilldown.Options{})
	require.NoError(t, err)
	level2, err := drilldown.BuildLevel2(level1.Context, drilldown.EmployeeSelection(1), drilldown.GroupByAging, testNow, drilldown.Options{})
	require.NoError(t, err)

	level3, err := drilldown.BuildLevel3(level2.Context, domain.AgingToday, testNow, drilldown.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, level3.SourceLevel)
	assert.Equal(t, []int64{1000}, ticketIDs(level3.Tickets))
	assert.Equal(t, domain.AgingToday.Label(), *level3.DateCategoryLabel)
	require.Len(t, level3.Customers, 1)
	assert.Equal(t, "Ivanov", level3.Customers[0].Label)

	t.Run("customer filter on carried tickets", func(t *testing.T) {
		level4, err := drilldown.BuildLevel4(level3.Context, stringPtr("Ivanov"), testNow)
		require.NoError(t, err)
		assert.Equal(t, 4, level4.SourceLevel)
		assert.Equal(t, []int64{1000}, ticketIDs(level4.Tickets))
	})

	t.Run("no match is an empty result", func(t *testing.T) {
		level4, err := drilldown.BuildLevel4(level3.Context, stringPtr("Petrov"), testNow)
		require.NoError(t, err)
		assert.NotNil(t, level4.Tickets)
		assert.Empty(t, level4.Tickets)
		assert.Equal(t, 0, level4.Total)
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := drilldown.BuildLevel3(level2.Context, domain.AgingCategory("someday"), testNow, drilldown.Options{})
		assert.True(t, errors.Is(err, apperrors.ErrUnknownDateCategory))
	})
}

func TestBuildLevel4_WithoutCarriedTickets(t *testing.T) {
	snapshot := fixtureSnapshot()
	lastWeek := domain.AgingLastWeek
	employeeID := int64(1)

	level4, err := drilldown.BuildLevel4(drilldown.Context{
		Snapshot:     snapshot,
		StageKey:     domain.StageFormed,
		EmployeeID:   &employeeID,
		DateCategory: &lastWeek,
	}, nil, testNow)
	require.NoError(t, err)

	assert.Equal(t, []int64{1003}, ticketIDs(level4.Tickets))
}

func TestBuildLevel4_RequiresStage(t *testing.T) {
	level4, err := drilldown.BuildLevel4(drilldown.Context{Snapshot: fixtureSnapshot()}, nil, testNow)
	assert.Nil(t, level4)

	var navErr *apperrors.NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, 4, navErr.Level)
	assert.Equal(t, "stage", navErr.Missing)
}

func TestContextFromTickets_KeepsParentTickets(t *testing.T) {
	snapshot := fixtureSnapshot()
	formed := domain.StageFormed

	// 1003 also belongs to Ivanov but was not shown one level up.
	parent, err := drilldown.ContextFromTickets(snapshot, drilldown.Filter{
		Stage:     &formed,
		Selection: drilldown.EmployeeSelection(1),
	}, []int64{1000, 424242})
	require.NoError(t, err)

	level4, err := drilldown.BuildLevel4(parent, stringPtr("Ivanov"), testNow)
	require.NoError(t, err)
	assert.Equal(t, []int64{1000}, ticketIDs(level4.Tickets))
}

func TestFilterAtLevel4_EndToEnd(t *testing.T) {
	snapshot := fixtureSnapshot()

	for _, employeeID := range []int64{1, 2} {
		for _, stage := range domain.Stages {
			for _, category := range domain.AgingCategories {
				name := fmt.Sprintf("%d/%s/%s", employeeID, stage, category)
				t.Run(name, func(t *testing.T) {
					got, _ := drilldown.FilterAtLevel4(snapshot, drilldown.Filter{
						Stage:        &stage,
						Selection:    drilldown.EmployeeSelection(employeeID),
						DateCategory: &category,
					}, testNow)

					var want []int64
					for _, ticket := range snapshot.Tickets {
						key, ok := domain.MapStage(ticket.StageID)
						if !ok || key != stage {
							continue
						}
						if ticket.AssignedTo == nil || ticket.AssignedTo.ID != employeeID {
							continue
						}
						if domain.ClassifyPtr(ticket.CreatedAt, testNow) != category {
							continue
						}
						want = append(want, ticket.ID)
					}

					require.Len(t, want, 1)
					assert.Equal(t, want, ticketIDs(got))
				})
			}
		}
	}
}

func TestParseSelection(t *testing.T) {
	sel, err := drilldown.ParseSelection("zero-point")
	require.NoError(t, err)
	assert.True(t, sel.ZeroPoint)

	sel, err = drilldown.ParseSelection("42")
	require.NoError(t, err)
	require.NotNil(t, sel.EmployeeID)
	assert.Equal(t, int64(42), *sel.EmployeeID)

	_, err = drilldown.ParseSelection("abc")
	assert.True(t, errors.Is(err, apperrors.ErrBadRequest))
}

func TestResolveStage(t *testing.T) {
	key, raw, err := drilldown.ResolveStage("execution")
	require.NoError(t, err)
	assert.Equal(t, domain.StageExecution, key)
	assert.Equal(t, "DT1032_16:CLIENT", raw)

	key, _, err = drilldown.ResolveStage("DT1032_16:PREPARATION")
	require.NoError(t, err)
	assert.Equal(t, domain.StageReview, key)

	_, _, err = drilldown.ResolveStage("won")
	var stageErr *apperrors.UnknownStageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "won", stageErr.StageID)
}

func stringPtr(s string) *string {
	return &s
}
