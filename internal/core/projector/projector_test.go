package projector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/mocks"
	"github.com/lorrc/pipeline-snapshots/internal/core/projector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }

func tickets() []domain.TicketRecord {
	return []domain.TicketRecord{
		{
			ID:          1,
			Title:       "Printer jam",
			StageID:     "DT1032_16:NEW",
			CreatedAt:   ptrTime(now.Add(-2 * time.Hour)),
			Subject:     "Printer",
			Description: "Jammed on floor 2",
			Actions:     []domain.Action{{Author: "Anna", Text: "Opened"}},
			PriorityID:  "HIGH",
			Service:     "it",
			Assignee:    domain.EmployeeAssignee(7, "Anna"),
		},
		{
			ID:             2,
			Title:          "Access request",
			StageID:        "DT1032_16:CLIENT",
			CreatedAt:      ptrTime(now.AddDate(0, 0, -1)),
			DepartmentHead: "Ivanov",
			PriorityID:     "urgent-ish",
			PriorityLabel:  "Urgent",
			Service:        "hr",
			Assignee:       domain.Unassigned(),
		},
		{
			ID:       3,
			Title:    "Old ticket",
			StageID:  "DT1032_16:LOSE",
			Subject:  "Only subject",
			Service:  "it",
			Assignee: domain.KeeperAssignee(99, "Keeper"),
		},
	}
}

func TestIdentifyNeedingEnrichment(t *testing.T) {
	need := projector.IdentifyNeedingEnrichment(tickets())

	require.Len(t, need, 2)
	assert.Equal(t, int64(2), need[0].ID)
	assert.Equal(t, int64(3), need[1].ID)
	assert.Empty(t, projector.IdentifyNeedingEnrichment(nil))
}

func TestEnrich(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips fetch for cached ids", func(t *testing.T) {
		fetcher := mocks.NewMockTicketDetailRepository()
		cache := mocks.NewMockDetailCache()

		cached := domain.DetailRecord{ID: 2, Subject: "Cached"}
		cache.On("GetMany", []int64{2, 3}).Return(map[int64]domain.DetailRecord{2: cached}, []int64{3})
		fetched := []domain.DetailRecord{{ID: 3, Subject: "Fetched", Description: "From store"}}
		fetcher.On("GetDetails", ctx, []int64{3}).Return(fetched, nil)
		cache.On("PutMany", fetched).Return()

		details, warnings := projector.Enrich(ctx, tickets(), fetcher, cache)

		assert.Empty(t, warnings)
		require.Len(t, details, 2)
		assert.Equal(t, "Cached", details[2].Subject)
		assert.Equal(t, "Fetched", details[3].Subject)
		fetcher.AssertExpectations(t)
		cache.AssertExpectations(t)
	})

	t.Run("fetch error degrades to a warning", func(t *testing.T) {
		fetcher := mocks.NewMockTicketDetailRepository()
		fetcher.On("GetDetails", ctx, []int64{2, 3}).Return(nil, errors.New("connection refused"))

		details, warnings := projector.Enrich(ctx, tickets(), fetcher, nil)

		assert.Empty(t, details)
		require.Len(t, warnings, 1)
		assert.Equal(t, domain.WarningEnrichmentFailed, warnings[0].Code)
		assert.Contains(t, warnings[0].Message, "connection refused")
	})

	t.Run("ids the store does not know are reported", func(t *testing.T) {
		fetcher := mocks.NewMockTicketDetailRepository()
		fetcher.On("GetDetails", ctx, []int64{2, 3}).
			Return([]domain.DetailRecord{{ID: 2, Subject: "Known"}}, nil)

		details, warnings := projector.Enrich(ctx, tickets(), fetcher, nil)

		require.Len(t, details, 1)
		require.Len(t, warnings, 1)
		assert.Equal(t, domain.WarningEnrichmentFailed, warnings[0].Code)
		assert.Equal(t, int64(3), warnings[0].TicketID)
	})

	t.Run("nothing to enrich does not fetch", func(t *testing.T) {
		fetcher := mocks.NewMockTicketDetailRepository()

		details, warnings := projector.Enrich(ctx, tickets()[:1], fetcher, nil)

		assert.Empty(t, details)
		assert.Empty(t, warnings)
		fetcher.AssertNotCalled(t, "GetDetails", mock.Anything, mock.Anything)
	})
}

func TestProject(t *testing.T) {
	palette := domain.DefaultPalette()
	input := tickets()

	t.Run("snapshot fields without details", func(t *testing.T) {
		d := projector.Project(input[0], nil, palette, now)

		assert.Equal(t, int64(1), d.ID)
		assert.Equal(t, "Printer", d.Subject)
		assert.Equal(t, domain.StatusNew, d.Status)
		assert.Equal(t, "New", d.StatusLabel)
		assert.Equal(t, domain.StageFormed, d.StageKey)
		assert.Equal(t, "Anna", d.AssigneeName)
		assert.Equal(t, domain.WithoutCustomer, d.Customer)
		assert.Equal(t, domain.AgingToday, d.AgingCategory)
		assert.Equal(t, "High", d.Priority.Label)
		assert.Equal(t, "IT support", d.Service.Label)
		assert.False(t, d.Enriched)
	})

	t.Run("detail fields take precedence", func(t *testing.T) {
		detail := &domain.DetailRecord{
			ID:          2,
			Subject:     "Access to share",
			Description: "Needs folder X",
			Actions:     []domain.Action{{Author: "Boris", Text: "Approved"}},
			PriorityID:  "low",
		}
		d := projector.Project(input[1], detail, palette, now)

		assert.Equal(t, "Access request", d.Title)
		assert.Equal(t, "Access to share", d.Subject)
		assert.Equal(t, "Needs folder X", d.Description)
		require.Len(t, d.Actions, 1)
		assert.Equal(t, "Low", d.Priority.Label)
		assert.Equal(t, domain.StatusInProgress, d.Status)
		assert.Equal(t, "Ivanov", d.Customer)
		assert.Equal(t, domain.AgingYesterday, d.AgingCategory)
		assert.True(t, d.Enriched)
	})

	t.Run("unknown stage and lookup fall back", func(t *testing.T) {
		d := projector.Project(input[2], nil, palette, now)

		assert.Equal(t, domain.StatusUnknown, d.Status)
		assert.Equal(t, domain.StageKey(""), d.StageKey)
		assert.Equal(t, "Keeper", d.AssigneeName)
		assert.Equal(t, domain.NeutralColors, d.Priority.Colors)
	})

	t.Run("input is not modified", func(t *testing.T) {
		before := tickets()[0]
		detail := &domain.DetailRecord{ID: 1, Actions: []domain.Action{{Text: "replaced"}}}
		d := projector.Project(input[0], detail, palette, now)
		d.Actions[0].Text = "mutated"

		assert.Equal(t, before, input[0])
		assert.Equal(t, "replaced", detail.Actions[0].Text)
	})
}

func TestProjectAll(t *testing.T) {
	input := tickets()
	input = append(input, domain.TicketRecord{ID: 4, StageID: "DT1032_16:NEW", PriorityID: "urgent-ish"})

	displays, warnings := projector.ProjectAll(input, map[int64]domain.DetailRecord{
		3: {ID: 3, Description: "Enriched"},
	}, domain.DefaultPalette(), now)

	require.Len(t, displays, 4)
	for i, d := range displays {
		assert.Equal(t, input[i].ID, d.ID)
	}
	assert.True(t, displays[2].Enriched)
	assert.Equal(t, "Enriched", displays[2].Description)
	assert.Equal(t, "Urgent", displays[1].Priority.Label)

	// "urgent-ish" is reported once even though two tickets use it.
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarningUnrecognizedLookup, warnings[0].Code)
	assert.Equal(t, int64(2), warnings[0].TicketID)
}
