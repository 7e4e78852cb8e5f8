package data

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

type AudioLogModel struct {
	DB DBTX
}

func (m AudioLogModel) Insert(ctx context.Context, row *AudioLogRow) error {
	query := `
		INSERT INTO audio_logs (incident_id, text, timestamp, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return m.DB.QueryRowContext(ctx, query,
		row.IncidentID, row.Text, row.Timestamp, row.CreatedAt).Scan(&row.ID)
}

func (m AudioLogModel) ListForIncident(ctx context.Context, incidentID uuid.UUID) ([]AudioLogRow, error) {
	query := `
		SELECT id, incident_id, text, timestamp, created_at
		FROM audio_logs
		WHERE incident_id = $1
		ORDER BY timestamp`
	rows, err := m.DB.QueryContext(ctx, query, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AudioLogRow
	for rows.Next() {
		var row AudioLogRow
		if err := rows.Scan(&row.ID, &row.IncidentID, &row.Text, &row.Timestamp, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type GlareImageModel struct {
	DB DBTX
}

func (m GlareImageModel) Insert(ctx context.Context, row *GlareImageRow) error {
	query := `
		INSERT INTO glare_images (incident_id, file_path, glare_percentage, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	return m.DB.QueryRowContext(ctx, query,
		row.IncidentID, row.FilePath, row.GlarePercentage, row.Timestamp, row.CreatedAt).Scan(&row.ID)
}

type LivenessValidationModel struct {
	DB DBTX
}

func (m LivenessValidationModel) Insert(ctx context.Context, row *LivenessValidationRow) error {
	query := `
		INSERT INTO liveness_validations (incident_id, file_path, status, frame_results, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var incidentID any
	if row.IncidentID != nil {
		incidentID = *row.IncidentID
	}
	return m.DB.QueryRowContext(ctx, query,
		incidentID, row.FilePath, row.Status, row.FrameResults, row.Timestamp, row.CreatedAt).Scan(&row.ID)
}

func (m LivenessValidationModel) GetByID(ctx context.Context, id int64) (*LivenessValidationRow, error) {
	query := `
		SELECT id, incident_id, file_path, status, frame_results, timestamp, created_at
		FROM liveness_validations
		WHERE id = $1`

	var row LivenessValidationRow
	var incidentID sql.Null[uuid.UUID]
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&row.ID, &incidentID, &row.FilePath, &row.Status, &row.FrameResults, &row.Timestamp, &row.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if incidentID.Valid {
		row.IncidentID = &incidentID.V
	}
	return &row, nil
}
