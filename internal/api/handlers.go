package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/technosupport/ts-aegis/internal/config"
	"github.com/technosupport/ts-aegis/internal/data"
	"github.com/technosupport/ts-aegis/internal/enhance"
	"github.com/technosupport/ts-aegis/internal/vision"
	"github.com/technosupport/ts-aegis/internal/watermark"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDetection serves the latest per-frame detector snapshot from
// the Redis cache. 204 when nothing fresh exists.
func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		http.Error(w, "detection cache not configured", http.StatusServiceUnavailable)
		return
	}
	upd, err := s.cache.Latest(r.Context())
	if err != nil {
		http.Error(w, "cache read failed", http.StatusInternalServerError)
		return
	}
	if upd == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, upd)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.Error(w, "persistence not configured", http.StatusServiceUnavailable)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	kind := r.URL.Query().Get("kind")

	m := data.IncidentModel{DB: s.db}
	rows, err := m.ListRecent(r.Context(), kind, limit)
	if err != nil {
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": rows})
}

func (s *Server) handleRecentIncidents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"incidents": s.control.RecentIncidents()})
}

func (s *Server) handleGetSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runtime.Snapshot())
}

// handleConfigureSensors replaces the runtime sensor snapshot. The body
// is a full snapshot, not a patch: the UI always posts complete state.
func (s *Server) handleConfigureSensors(w http.ResponseWriter, r *http.Request) {
	var sensors config.Sensors
	if err := json.NewDecoder(r.Body).Decode(&sensors); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if sensors.RescueMode == "" {
		sensors.RescueMode = string(enhance.ModeCLAHE)
	}
	if _, err := enhance.NewRescuer(enhance.RescueMode(sensors.RescueMode)); err != nil {
		http.Error(w, "unknown glare_rescue_mode", http.StatusBadRequest)
		return
	}

	s.runtime.Publish(sensors)
	writeJSON(w, http.StatusOK, sensors)
}

func (s *Server) handleDismissReposition(w http.ResponseWriter, r *http.Request) {
	s.control.DismissReposition()
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
}

// validateRequest is the offline validation control input. StartTS
// anchors the recording's first frame on the epoch; ClockStart, when
// set, overrides the validator clock (replay check).
type validateRequest struct {
	FilePath   string  `json:"file_path"`
	StartTS    float64 `json:"start_ts"`
	ClockStart float64 `json:"clock_start,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FilePath == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rep := s.runValidation(req)
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) runValidation(req validateRequest) *watermark.Report {
	v, err := watermark.NewValidator(s.secret)
	if err != nil {
		return &watermark.Report{Status: watermark.StatusError, Error: err.Error()}
	}
	v.MatchDistance = s.thresholds.ColorMatchDistance
	v.LiveThreshold = s.thresholds.LiveThreshold
	v.ClockStart = req.ClockStart

	src, err := s.openVideo(req.FilePath, req.StartTS)
	if err != nil {
		// Unreadable input is a verdict, not a transport error.
		return &watermark.Report{Status: watermark.StatusError, Error: err.Error()}
	}

	rep := v.Validate(src)
	s.persistValidation(req.FilePath, rep)
	return rep
}

func (s *Server) persistValidation(path string, rep *watermark.Report) {
	if s.db == nil {
		return
	}
	results, err := json.Marshal(rep.PerFrame)
	if err != nil {
		results = []byte("[]")
	}
	now := time.Now().UTC()
	m := data.LivenessValidationModel{DB: s.db}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Insert(ctx, &data.LivenessValidationRow{
		FilePath:     path,
		Status:       rep.Status,
		FrameResults: results,
		Timestamp:    now,
		CreatedAt:    now,
	}); err != nil {
		log.Printf("api: validation row insert failed: %v", err)
	}
}

func (s *Server) handleRawFrame(w http.ResponseWriter, r *http.Request) {
	s.serveFrame(w, s.frames.Raw())
}

func (s *Server) handleProcessedFrame(w http.ResponseWriter, r *http.Request) {
	s.serveFrame(w, s.frames.Processed())
}

func (s *Server) serveFrame(w http.ResponseWriter, fr *vision.Frame) {
	if fr == nil {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}
	buf, err := vision.EncodeJPEG(fr, 80)
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	_, _ = w.Write(buf)
}
