package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type IncidentModel struct {
	DB DBTX
}

// Upsert writes an incident row, reconciling repeats: a transition for
// an already-stored incident updates timestamp, count and description.
// Best-effort callers rely on this to self-heal after a failed write.
func (m IncidentModel) Upsert(ctx context.Context, row *IncidentRow) error {
	query := `
		INSERT INTO incidents (id, kind, subtype, timestamp, count, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			timestamp = EXCLUDED.timestamp,
			count = EXCLUDED.count,
			description = EXCLUDED.description`

	_, err := m.DB.ExecContext(ctx, query,
		row.ID, row.Kind, row.Subtype, row.Timestamp, row.Count, row.Description, row.CreatedAt)
	return err
}

func (m IncidentModel) GetByID(ctx context.Context, id uuid.UUID) (*IncidentRow, error) {
	query := `
		SELECT id, kind, subtype, timestamp, count, description, created_at
		FROM incidents
		WHERE id = $1`

	var row IncidentRow
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &row.Kind, &row.Subtype, &row.Timestamp, &row.Count, &row.Description, &row.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// ListRecent returns the newest incidents first, optionally filtered by
// kind. Both timestamp and kind are indexed.
func (m IncidentModel) ListRecent(ctx context.Context, kind string, limit int) ([]IncidentRow, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, kind, subtype, timestamp, count, description, created_at
		FROM incidents`
	args := []any{}
	idx := 1
	if kind != "" {
		query += fmt.Sprintf(" WHERE kind = $%d", idx)
		args = append(args, kind)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IncidentRow
	for rows.Next() {
		var row IncidentRow
		if err := rows.Scan(&row.ID, &row.Kind, &row.Subtype, &row.Timestamp,
			&row.Count, &row.Description, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PurgeOlderThan trims history; retention is a deployment decision, the
// default daemon never calls it.
func (m IncidentModel) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM incidents WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
