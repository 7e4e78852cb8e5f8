// Package api is the HTTP control surface: sensor configuration,
// alert acknowledgement, offline watermark validation, detection and
// incident reads, frame snapshots, and the websocket event stream.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/technosupport/ts-aegis/internal/config"
	"github.com/technosupport/ts-aegis/internal/data"
	"github.com/technosupport/ts-aegis/internal/events"
	"github.com/technosupport/ts-aegis/internal/tamper"
	"github.com/technosupport/ts-aegis/internal/tokens"
	"github.com/technosupport/ts-aegis/internal/vision"
	"github.com/technosupport/ts-aegis/internal/watermark"
)

// PipelineControl is the slice of the pipeline the API may touch.
type PipelineControl interface {
	DismissReposition()
	RecentIncidents() []tamper.Incident
}

// FrameProvider yields the latest output frames.
type FrameProvider interface {
	Raw() *vision.Frame
	Processed() *vision.Frame
}

// VideoOpener opens a recorded video as a validator frame source.
type VideoOpener func(path string, startEpoch float64) (watermark.FrameSource, error)

type Server struct {
	runtime    *config.Runtime
	control    PipelineControl
	frames     FrameProvider
	cache      *events.DetectionCache
	db         data.DBTX
	hub        *events.Hub
	tokens     *tokens.Manager
	metricsH   http.Handler
	secret     []byte
	thresholds config.Thresholds
	openVideo  VideoOpener
}

type Options struct {
	Runtime    *config.Runtime
	Control    PipelineControl
	Frames     FrameProvider
	Cache      *events.DetectionCache // optional
	DB         data.DBTX              // optional
	Hub        *events.Hub            // optional
	Tokens     *tokens.Manager        // nil disables auth (dev only)
	MetricsH   http.Handler
	Secret     []byte
	Thresholds config.Thresholds
	OpenVideo  VideoOpener // defaults to the OpenCV file reader
}

func NewServer(opts Options) *Server {
	openVideo := opts.OpenVideo
	if openVideo == nil {
		openVideo = func(path string, start float64) (watermark.FrameSource, error) {
			return watermark.OpenVideoFile(path, start)
		}
	}
	return &Server{
		runtime:    opts.Runtime,
		control:    opts.Control,
		frames:     opts.Frames,
		cache:      opts.Cache,
		db:         opts.DB,
		hub:        opts.Hub,
		tokens:     opts.Tokens,
		metricsH:   opts.MetricsH,
		secret:     opts.Secret,
		thresholds: opts.Thresholds,
		openVideo:  openVideo,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metricsH != nil {
		r.Handle("/metrics", s.metricsH)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth)

		r.Get("/detection", s.handleDetection)
		r.Get("/incidents", s.handleIncidents)
		r.Get("/incidents/recent", s.handleRecentIncidents)
		r.Get("/incidents/{id}/audio_logs", s.handleListAudioLogs)
		r.Post("/audio_logs", s.handleInsertAudioLog)

		r.Get("/sensors", s.handleGetSensors)
		r.Post("/sensors", s.handleConfigureSensors)
		r.Post("/alerts/reposition/dismiss", s.handleDismissReposition)
		r.Post("/validate", s.handleValidate)

		r.Get("/frames/raw", s.handleRawFrame)
		r.Get("/frames/processed", s.handleProcessedFrame)
	})

	if s.hub != nil {
		r.Get("/ws", s.hub.ServeHTTP)
	}

	return r
}
