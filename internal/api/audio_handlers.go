package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/technosupport/ts-aegis/internal/data"
)

// audioLogRequest is what the external speech-to-text collaborator
// posts when audio alerts are enabled: a transcript tied to an open
// incident.
type audioLogRequest struct {
	IncidentID uuid.UUID `json:"incident_id"`
	Text       string    `json:"text"`
	TS         float64   `json:"ts"`
}

func (s *Server) handleInsertAudioLog(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	var req audioLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" || req.IncidentID == uuid.Nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ts := time.Unix(0, int64(req.TS*float64(time.Second)))
	if req.TS == 0 {
		ts = time.Now().UTC()
	}

	m := data.AudioLogModel{DB: s.db}
	row := &data.AudioLogRow{
		IncidentID: req.IncidentID,
		Text:       req.Text,
		Timestamp:  ts,
		CreatedAt:  time.Now().UTC(),
	}
	if err := m.Insert(r.Context(), row); err != nil {
		http.Error(w, "insert failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) handleListAudioLogs(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid incident id", http.StatusBadRequest)
		return
	}

	m := data.AudioLogModel{DB: s.db}
	rows, err := m.ListForIncident(r.Context(), id)
	if err != nil {
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audio_logs": rows})
}
