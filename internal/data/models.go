package data

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrRecordNotFound = errors.New("record not found")

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// IncidentRow mirrors the incidents relation.
type IncidentRow struct {
	ID          uuid.UUID
	Kind        string
	Subtype     string
	Timestamp   time.Time
	Count       int
	Description string
	CreatedAt   time.Time
}

// AudioLogRow mirrors audio_logs; the STT engine itself is an external
// collaborator, this side only stores what it produced.
type AudioLogRow struct {
	ID         int64
	IncidentID uuid.UUID
	Text       string
	Timestamp  time.Time
	CreatedAt  time.Time
}

// GlareImageRow mirrors glare_images: a snapshot saved when a glare
// incident opens, for later review of the rescue quality.
type GlareImageRow struct {
	ID              int64
	IncidentID      uuid.UUID
	FilePath        string
	GlarePercentage float64
	Timestamp       time.Time
	CreatedAt       time.Time
}

// LivenessValidationRow mirrors liveness_validations: one row per
// offline validator run, with the per-frame results as JSON.
type LivenessValidationRow struct {
	ID           int64
	IncidentID   *uuid.UUID
	FilePath     string
	Status       string
	FrameResults []byte // JSON
	Timestamp    time.Time
	CreatedAt    time.Time
}
