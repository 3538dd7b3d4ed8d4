package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	apperrors "github.com/lorrc/pipeline-snapshots/internal/core/errors"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

// SnapshotRepository is the secondary adapter for snapshot persistence.
// Snapshots are stored as JSONB documents, one per date and type.
type SnapshotRepository struct {
	pool *pgxpool.Pool
	tm   ports.TransactionManager
}

var _ ports.SnapshotRepository = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(pool *pgxpool.Pool, tm ports.TransactionManager) ports.SnapshotRepository {
	return &SnapshotRepository{pool: pool, tm: tm}
}

// Create stores the snapshot, replacing the one captured on the same date
// with the same type.
func (r *SnapshotRepository) Create(ctx context.Context, date time.Time, snapshot *domain.Snapshot) (*domain.StoredSnapshot, error) {
	document, err := domain.EncodeSnapshot(snapshot)
	if err != nil {
		return nil, err
	}

	const deleteQuery = `DELETE FROM snapshots WHERE snapshot_date = $1 AND type = $2`
	const insertQuery = `
INSERT INTO snapshots (snapshot_date, type, sector_id, created_at, created_by, version, document)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, snapshot_date
`

	stored := &domain.StoredSnapshot{Snapshot: snapshot}
	err = r.tm.WithTransaction(ctx, func(ctx context.Context) error {
		q := GetDBTX(ctx, r.pool)
		if _, err := q.Exec(ctx, deleteQuery, toDate(date), snapshot.Metadata.Type); err != nil {
			return err
		}

		var storedDate pgtype.Date
		err := q.QueryRow(ctx, insertQuery,
			toDate(date),
			snapshot.Metadata.Type,
			toText(snapshot.Metadata.SectorID),
			snapshot.Metadata.CreatedAt,
			toText(snapshot.Metadata.CreatedBy),
			snapshot.Metadata.Version,
			document,
		).Scan(&stored.ID, &storedDate)
		if err != nil {
			return err
		}
		stored.Date = storedDate.Time
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// Get retrieves the snapshot stored for a date and type.
func (r *SnapshotRepository) Get(ctx context.Context, date time.Time, snapshotType string) (*domain.StoredSnapshot, error) {
	const query = `SELECT id, snapshot_date, document FROM snapshots WHERE snapshot_date = $1 AND type = $2`

	row := GetDBTX(ctx, r.pool).QueryRow(ctx, query, toDate(date), snapshotType)
	stored, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrSnapshotNotFound
		}
		return nil, err
	}
	return stored, nil
}

// List retrieves snapshots in a date range, oldest first.
func (r *SnapshotRepository) List(ctx context.Context, dr domain.DateRange) ([]*domain.StoredSnapshot, error) {
	const query = `
SELECT id, snapshot_date, document
FROM snapshots
WHERE ($1::date IS NULL OR snapshot_date >= $1)
  AND ($2::date IS NULL OR snapshot_date <= $2)
  AND ($3 = '' OR type = $3)
ORDER BY snapshot_date, type
`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, toDate(dr.From), toDate(dr.To), dr.Type)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := make([]*domain.StoredSnapshot, 0)
	for rows.Next() {
		stored, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, stored)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snapshots, nil
}

// Delete removes the snapshot stored for a date and type.
func (r *SnapshotRepository) Delete(ctx context.Context, date time.Time, snapshotType string) (bool, error) {
	const query = `DELETE FROM snapshots WHERE snapshot_date = $1 AND type = $2`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query, toDate(date), snapshotType)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// scanSnapshot reads one row and runs the stored document back through the
// codec, so documents written by another schema version are refused.
func scanSnapshot(row pgx.Row) (*domain.StoredSnapshot, error) {
	var (
		id       int64
		date     pgtype.Date
		document []byte
	)
	if err := row.Scan(&id, &date, &document); err != nil {
		return nil, err
	}

	snapshot, _, err := domain.DecodeSnapshot(document)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", id, err)
	}

	return &domain.StoredSnapshot{ID: id, Date: date.Time, Snapshot: snapshot}, nil
}

// toDate converts a calendar date to a nullable DATE; the zero time is NULL.
func toDate(t time.Time) pgtype.Date {
	if t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

func toText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func textOrEmpty(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}
