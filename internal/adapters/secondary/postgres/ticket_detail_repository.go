package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// TicketDetailRepository serves rich ticket content from the ticket_details
// table.
type TicketDetailRepository struct {
	pool *pgxpool.Pool
	tm   ports.TransactionManager
}

var _ ports.TicketDetailRepository = (*TicketDetailRepository)(nil)

// NewTicketDetailRepository creates a new ticket detail repository.
func NewTicketDetailRepository(pool *pgxpool.Pool, tm ports.TransactionManager) ports.TicketDetailRepository {
	return &TicketDetailRepository{pool: pool, tm: tm}
}

// GetDetails retrieves the details of the given tickets in one query. Ids
// with no stored details are absent from the result.
func (r *TicketDetailRepository) GetDetails(ctx context.Context, ticketIDs []int64) ([]domain.DetailRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ticketIDs) == 0 {
		return []domain.DetailRecord{}, nil
	}

	const query = `
SELECT ticket_id, subject, description, actions, title, priority_id, service
FROM ticket_details
WHERE ticket_id = ANY($1)
ORDER BY ticket_id
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, ticketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.DetailRecord, 0, len(ticketIDs))
	for rows.Next() {
		var (
			rec        domain.DetailRecord
			subject    pgtype.Text
			desc       pgtype.Text
			actions    []byte
			title      pgtype.Text
			priorityID pgtype.Text
			service    pgtype.Text
		)
		if err := rows.Scan(&rec.ID, &subject, &desc, &actions, &title, &priorityID, &service); err != nil {
			return nil, err
		}
		rec.Subject = textOrEmpty(subject)
		rec.Description = textOrEmpty(desc)
		rec.Title = textOrEmpty(title)
		rec.PriorityID = textOrEmpty(priorityID)
		rec.Service = textOrEmpty(service)
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &rec.Actions); err != nil {
				return nil, fmt.Errorf("ticket %d actions: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Upsert inserts or replaces ticket details in one batch.
func (r *TicketDetailRepository) Upsert(ctx context.Context, records []domain.DetailRecord) (int, error) {
	const query = `
INSERT INTO ticket_details (ticket_id, subject, description, actions, title, priority_id, service, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (ticket_id) DO UPDATE SET
    subject = EXCLUDED.subject,
    description = EXCLUDED.description,
    actions = EXCLUDED.actions,
    title = EXCLUDED.title,
    priority_id = EXCLUDED.priority_id,
    service = EXCLUDED.service,
    updated_at = NOW()
`

	batch := &pgx.Batch{}
	for _, rec := range records {
		actions := rec.Actions
		if actions == nil {
			actions = []domain.Action{}
		}
		payload, err := json.Marshal(actions)
		if err != nil {
			return 0, err
		}
		batch.Queue(query,
			rec.ID,
			toText(rec.Subject),
			toText(rec.Description),
			payload,
			toText(rec.Title),
			toText(rec.PriorityID),
			toText(rec.Service),
		)
	}

	written := 0
	err := r.tm.WithTransaction(ctx, func(ctx context.Context) error {
		results := GetDBTX(ctx, r.pool).SendBatch(ctx, batch)
		defer results.Close()

		for range records {
			tag, err := results.Exec()
			if err != nil {
				return err
			}
			written += int(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}
