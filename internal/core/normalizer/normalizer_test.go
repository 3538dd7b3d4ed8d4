package normalizer_test

import (
	"errors"
	"testing"
	"time"

	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/lorrc/pipeline-snapshots/internal/core/normalizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineFixture = `{
  "stages": [
    {
      "STAGE_ID": "DT1032_16:NEW",
      "employees": [
        {
          "ID": "7",
          "NAME": "Anna Smirnova",
          "tickets": [
            {"ID": "105", "TITLE": "Printer jam", "DATE_CREATE": "2024-03-12T09:15:00+03:00",
             "departmentHead": " Ivanov I. ", "PRIORITY_ID": "high", "PRIORITY_LABEL": "High",
             "SERVICE": "it", "SERVICE_LABEL": "IT support"},
            {"id": 101, "title": "New laptop", "createdAt": "not a date"}
          ]
        },
        {
          "id": 9,
          "tickets": [
            {"Id": 103, "NAME": "Access request", "created_at": "2024-03-01"}
          ]
        }
      ]
    },
    {
      "stageId": "DT1032_16:PREPARATION",
      "employees": [
        {
          "id": 7,
          "fullName": "Anna Smirnova",
          "tickets": [
            {"id": 110, "subject": "Mail", "description": "Mailbox full",
             "actions": [{"createdAt": "2024-03-12T10:00:00Z", "author": "Anna", "text": "Cleaned up"}, "called user"]}
          ]
        }
      ]
    },
    {
      "stage_id": "DT1032_16:CLIENT",
      "employees": [
        {"id": 11, "name": "Oleg", "tickets": [{"id": 120}, {"title": "no id"}]}
      ]
    },
    {
      "STAGE_ID": "DT1032_16:LOSE",
      "employees": [{"id": 12, "tickets": [{"id": 999}]}]
    }
  ],
  "unassigned": [
    {"stageId": "DT1032_16:NEW", "tickets": [
      {"id": 130, "ASSIGNED_BY_ID": 1, "ASSIGNED_BY_NAME": "Helpdesk"},
      {"id": 131}
    ]},
    {"STAGE_ID": "DT1032_16:CLIENT", "id": 132, "assignedTo": {"id": 1, "name": "Helpdesk"}}
  ]
}`

func keeper(id int64) *int64 { return &id }

func defaultOptions() normalizer.Options {
	return normalizer.Options{
		Type:      "daily",
		SectorID:  "sector-1",
		CreatedBy: "capture-job",
		CreatedAt: time.Date(2024, time.March, 13, 6, 0, 0, 0, time.UTC),
		KeeperID:  keeper(1),
	}
}

func TestNormalizeJSON(t *testing.T) {
	snapshot, warnings, err := normalizer.NormalizeJSON([]byte(pipelineFixture), defaultOptions())
	require.NoError(t, err)
	require.NotNil(t, snapshot)

	t.Run("metadata", func(t *testing.T) {
		assert.Equal(t, domain.SchemaVersion, snapshot.Metadata.Version)
		assert.Equal(t, "daily", snapshot.Metadata.Type)
		assert.Equal(t, "sector-1", snapshot.Metadata.SectorID)
		assert.Equal(t, "capture-job", snapshot.Metadata.CreatedBy)
	})

	t.Run("stage counts", func(t *testing.T) {
		stages := snapshot.Statistics.Stages
		assert.Equal(t, 5, stages.Count(domain.StageFormed)) // 105, 101, 103, 130, 131
		assert.Equal(t, 1, stages.Count(domain.StageReview))
		assert.Equal(t, 2, stages.Count(domain.StageExecution)) // 120, 132
		assert.Equal(t,
			stages.Count(domain.StageFormed)+stages.Count(domain.StageReview)+stages.Count(domain.StageExecution),
			stages.TotalCount())
	})

	t.Run("ticket ids are sorted, unique and match tickets", func(t *testing.T) {
		assert.Equal(t, []int64{101, 103, 105, 110, 120, 130, 131, 132}, snapshot.TicketIDs)
		ids := make([]int64, 0, len(snapshot.Tickets))
		for _, ticket := range snapshot.Tickets {
			ids = append(ids, ticket.ID)
		}
		assert.Equal(t, snapshot.TicketIDs, ids)
		assert.NotContains(t, ids, int64(999))
	})

	t.Run("employees", func(t *testing.T) {
		require.Len(t, snapshot.Statistics.Employees, 3)

		anna, ok := snapshot.Employee(7)
		require.True(t, ok)
		assert.Equal(t, "Anna Smirnova", anna.Name)
		assert.Equal(t, domain.StageTally{Formed: 2, Review: 1}, anna.TicketsByStage)
		assert.Equal(t, 3, anna.TotalTickets)

		unnamed, ok := snapshot.Employee(9)
		require.True(t, ok)
		assert.Equal(t, "Employee #9", unnamed.Name)

		for _, e := range snapshot.Statistics.Employees {
			assert.Equal(t, e.TicketsByStage.Sum(), e.TotalTickets)
		}
	})

	t.Run("zero point splits keeper and unassigned", func(t *testing.T) {
		zp := snapshot.Statistics.ZeroPoint
		require.NotNil(t, zp)
		assert.Equal(t, domain.ZeroPoint{Unassigned: 1, Keeper: 2, Total: 3}, *zp)
		assert.Equal(t, domain.ZeroPoint{Unassigned: 1, Keeper: 1, Total: 2}, snapshot.ZeroPointFor(domain.StageFormed))
		assert.Equal(t, domain.ZeroPoint{Keeper: 1, Total: 1}, snapshot.ZeroPointFor(domain.StageExecution))

		index := snapshot.TicketIndex()
		assert.Equal(t, domain.AssigneeKeeper, index[130].Assignee.Kind)
		assert.Equal(t, domain.AssigneeUnassigned, index[131].Assignee.Kind)
		assert.Nil(t, index[131].AssignedTo)
		assert.Equal(t, domain.AssigneeKeeper, index[132].Assignee.Kind)
	})

	t.Run("fields resolved across name variants", func(t *testing.T) {
		index := snapshot.TicketIndex()

		printer := index[105]
		assert.Equal(t, "Printer jam", printer.Title)
		assert.Equal(t, "DT1032_16:NEW", printer.StageID)
		assert.Equal(t, "Ivanov I.", printer.DepartmentHead)
		assert.Equal(t, "high", printer.PriorityID)
		assert.Equal(t, "High", printer.PriorityLabel)
		assert.Equal(t, "it", printer.Service)
		assert.Equal(t, "IT support", printer.ServiceLabel)
		require.NotNil(t, printer.CreatedAt)
		assert.True(t, time.Date(2024, time.March, 12, 6, 15, 0, 0, time.UTC).Equal(*printer.CreatedAt))
		assert.True(t, printer.Assignee.IsEmployee(7))
		require.NotNil(t, printer.AssignedTo)
		assert.Equal(t, int64(7), printer.AssignedTo.ID)

		assert.Equal(t, "Access request", index[103].Title)
		assert.Equal(t, "Ticket #120", index[120].Title)

		mail := index[110]
		assert.Equal(t, "Mail", mail.Subject)
		assert.Equal(t, "Mailbox full", mail.Description)
		require.Len(t, mail.Actions, 2)
		assert.Equal(t, "Cleaned up", mail.Actions[0].Text)
		assert.Equal(t, "called user", mail.Actions[1].Text)
	})

	t.Run("recoverable issues become warnings", func(t *testing.T) {
		codes := make(map[domain.WarningCode]int)
		for _, w := range warnings {
			codes[w.Code]++
		}
		assert.Equal(t, 1, codes[domain.WarningInvalidDate])
		assert.Equal(t, 1, codes[domain.WarningMissingTicketID])
		assert.Equal(t, 1, codes[domain.WarningUnknownStage])

		assert.Nil(t, snapshot.TicketIndex()[101].CreatedAt)
	})

	t.Run("output passes the snapshot invariants", func(t *testing.T) {
		assert.NoError(t, domain.CheckInvariants(snapshot))
		_, err := domain.ValidateSnapshot(snapshot)
		assert.NoError(t, err)
	})
}

func TestNormalize_IsDeterministic(t *testing.T) {
	first, _, err := normalizer.NormalizeJSON([]byte(pipelineFixture), defaultOptions())
	require.NoError(t, err)
	second, _, err := normalizer.NormalizeJSON([]byte(pipelineFixture), defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestNormalize_LastWriteWins(t *testing.T) {
	data := map[string]any{
		"stages": []any{
			map[string]any{
				"stageId": "DT1032_16:NEW",
				"employees": []any{
					map[string]any{"id": 1, "tickets": []any{map[string]any{"id": 5, "title": "first"}}},
					map[string]any{"id": 2, "tickets": []any{map[string]any{"id": 5, "title": "second"}}},
				},
			},
		},
	}

	snapshot, warnings, err := normalizer.Normalize(data, defaultOptions())
	require.NoError(t, err)

	require.Len(t, snapshot.Tickets, 1)
	assert.Equal(t, "second", snapshot.Tickets[0].Title)
	assert.Equal(t, []int64{5}, snapshot.TicketIDs)
	require.Len(t, warnings, 1)
	assert.Equal(t, domain.WarningDuplicateTicket, warnings[0].Code)

	// Counted once, against the employee holding the kept record.
	stages := snapshot.Statistics.Stages
	assert.Equal(t, 1, stages.Formed.Count)
	assert.Equal(t, 1, stages.Total.Count)
	require.Len(t, snapshot.Statistics.Employees, 2)
	assert.Equal(t, 0, snapshot.Statistics.Employees[0].TotalTickets)
	assert.Equal(t, 1, snapshot.Statistics.Employees[1].TotalTickets)
	assert.Equal(t, 1, snapshot.Statistics.Employees[1].TicketsByStage.Formed)
}

func TestNormalize_DuplicateMovesBetweenBuckets(t *testing.T) {
	data := map[string]any{
		"stages": []any{
			map[string]any{
				"stageId": "DT1032_16:NEW",
				"employees": []any{
					map[string]any{"id": 1, "tickets": []any{map[string]any{"id": 5}}},
				},
			},
		},
		"unassigned": []any{
			map[string]any{"stageId": "DT1032_16:CLIENT", "tickets": []any{map[string]any{"id": 5}}},
		},
	}

	snapshot, _, err := normalizer.Normalize(data, defaultOptions())
	require.NoError(t, err)

	stages := snapshot.Statistics.Stages
	assert.Equal(t, 0, stages.Formed.Count)
	assert.Equal(t, 1, stages.Execution.Count)
	assert.Equal(t, 1, stages.Total.Count)
	assert.Equal(t, 1, snapshot.Statistics.ZeroPoint.Unassigned)
	assert.Equal(t, 0, snapshot.Statistics.Employees[0].TotalTickets)
}

func TestNormalize_ValidationErrors(t *testing.T) {
	tests := []struct {
		name       string
		input      any
		opts       func(*normalizer.Options)
		wantFields []string
	}{
		{
			name:       "missing input",
			input:      nil,
			wantFields: []string{"pipelineData"},
		},
		{
			name:       "input is not an object",
			input:      []any{1, 2},
			wantFields: []string{"pipelineData"},
		},
		{
			name:       "missing stages",
			input:      map[string]any{"unassigned": []any{}},
			wantFields: []string{"stages"},
		},
		{
			name:       "stages is not a list",
			input:      map[string]any{"stages": "formed"},
			wantFields: []string{"stages"},
		},
		{
			name:       "stage entries are not objects",
			input:      map[string]any{"stages": []any{"a", map[string]any{}, 3}},
			wantFields: []string{"stages.0", "stages.2"},
		},
		{
			name:  "missing options are aggregated with input errors",
			input: map[string]any{},
			opts: func(o *normalizer.Options) {
				o.Type = ""
				o.CreatedAt = time.Time{}
			},
			wantFields: []string{"createdAt", "stages", "type"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}

			snapshot, _, err := normalizer.Normalize(tt.input, opts)
			require.Error(t, err)
			assert.Nil(t, snapshot)

			var validationErr *apperrors.ValidationErrors
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.wantFields, validationErr.Fields())
		})
	}
}

func TestNormalize_MissingTypeIsMatchable(t *testing.T) {
	opts := defaultOptions()
	opts.Type = ""

	_, _, err := normalizer.Normalize(map[string]any{"stages": []any{}}, opts)
	assert.True(t, errors.Is(err, apperrors.ErrSnapshotTypeRequired))
}

func TestNormalizeJSON_InvalidJSON(t *testing.T) {
	_, _, err := normalizer.NormalizeJSON([]byte(`{"stages": [`), defaultOptions())

	var validationErr *apperrors.ValidationErrors
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, []string{"pipelineData"}, validationErr.Fields())
}

func TestNormalize_EmptyPipeline(t *testing.T) {
	snapshot, warnings, err := normalizer.Normalize(map[string]any{"stages": []any{}}, defaultOptions())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.Equal(t, 0, snapshot.Statistics.Stages.TotalCount())
	assert.Empty(t, snapshot.TicketIDs)
	assert.Empty(t, snapshot.Statistics.Employees)
	assert.Equal(t, domain.ZeroPoint{}, *snapshot.Statistics.ZeroPoint)
}
