package data

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-aegis/internal/detect"
	"github.com/technosupport/ts-aegis/internal/events"
	"github.com/technosupport/ts-aegis/internal/tamper"
)

func TestIncidentModel_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	now := time.Now()

	mock.ExpectExec("INSERT INTO incidents").
		WithArgs(id, "blur", "", now, 1, "lens obscuration", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := IncidentModel{DB: db}
	err = m.Upsert(context.Background(), &IncidentRow{
		ID: id, Kind: "blur", Timestamp: now, Count: 1,
		Description: "lens obscuration", CreatedAt: now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentModel_GetByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT id, kind, subtype").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	m := IncidentModel{DB: db}
	_, err = m.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestIncidentModel_ListRecent_KindFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "kind", "subtype", "timestamp", "count", "description", "created_at"}).
		AddRow(uuid.New(), "glare", "", now, 2, "washout", now)

	mock.ExpectQuery("SELECT id, kind, subtype, timestamp, count, description, created_at\\s+FROM incidents WHERE kind =").
		WithArgs("glare", 10).
		WillReturnRows(rows)

	m := IncidentModel{DB: db}
	out, err := m.ListRecent(context.Background(), "glare", 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "glare", out[0].Kind)
	assert.Equal(t, 2, out[0].Count)
}

func TestAudioLogModel_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	incID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO audio_logs").
		WithArgs(incID, "glass breaking", now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	m := AudioLogModel{DB: db}
	row := &AudioLogRow{IncidentID: incID, Text: "glass breaking", Timestamp: now, CreatedAt: now}
	require.NoError(t, m.Insert(context.Background(), row))
	assert.Equal(t, int64(7), row.ID)
}

func TestGlareImageModel_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	incID := uuid.New()
	now := time.Now()

	mock.ExpectQuery("INSERT INTO glare_images").
		WithArgs(incID, "/var/lib/aegis/glare/42.jpg", 12.5, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))

	m := GlareImageModel{DB: db}
	row := &GlareImageRow{
		IncidentID: incID, FilePath: "/var/lib/aegis/glare/42.jpg",
		GlarePercentage: 12.5, Timestamp: now, CreatedAt: now,
	}
	require.NoError(t, m.Insert(context.Background(), row))
	assert.Equal(t, int64(3), row.ID)
}

func TestLivenessValidationModel_InsertNilIncident(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	results, _ := json.Marshal([]map[string]any{{"second": 0, "match": true}})

	mock.ExpectQuery("INSERT INTO liveness_validations").
		WithArgs(nil, "/tmp/clip.avi", "LIVE", results, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	m := LivenessValidationModel{DB: db}
	row := &LivenessValidationRow{
		FilePath: "/tmp/clip.avi", Status: "LIVE",
		FrameResults: results, Timestamp: now, CreatedAt: now,
	}
	require.NoError(t, m.Insert(context.Background(), row))
}

func TestLivenessValidationModel_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "incident_id", "file_path", "status", "frame_results", "timestamp", "created_at"}).
		AddRow(int64(4), nil, "/tmp/clip.avi", "NOT_LIVE", []byte(`[]`), now, now)
	mock.ExpectQuery("SELECT id, incident_id, file_path, status, frame_results, timestamp, created_at").
		WithArgs(int64(4)).
		WillReturnRows(rows)

	m := LivenessValidationModel{DB: db}
	row, err := m.GetByID(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "NOT_LIVE", row.Status)
	assert.Nil(t, row.IncidentID)
}

func TestIncidentRecorder_BestEffort(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO incidents").
		WillReturnError(errors.New("connection refused"))

	r := NewIncidentRecorder(db)
	ev := events.Event{
		Type: "incident",
		Transition: &tamper.Transition{
			Type: tamper.IncidentOpened,
			Incident: tamper.Incident{
				ID: uuid.New(), Kind: detect.KindBlur, Count: 1,
				FirstSeen: 100, LastSeen: 102,
			},
		},
	}

	// A failed write is swallowed: the pipeline must never stall.
	assert.NoError(t, r.Publish(ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIncidentRecorder_IgnoresDetections(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := NewIncidentRecorder(db)
	assert.NoError(t, r.Publish(events.Event{Type: "detection"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
