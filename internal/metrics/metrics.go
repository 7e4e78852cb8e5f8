// Package metrics exposes the pipeline's prometheus instruments on a
// private registry served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed prometheus.Counter
	CaptureRetries  prometheus.Counter
	DetectorTrips   *prometheus.CounterVec
	IncidentsOpened *prometheus.CounterVec
	IncidentsClosed *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	ComputeErrors   *prometheus.CounterVec

	EventQueueDepth prometheus.Gauge
	PipelineFPS     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.FramesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_frames_processed_total",
		Help: "Frames the pipeline has fully processed",
	})
	reg.MustRegister(m.FramesProcessed)

	m.CaptureRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_capture_retries_total",
		Help: "Capture read retries before a frame arrived",
	})
	reg.MustRegister(m.CaptureRetries)

	m.DetectorTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_detector_trips_total",
		Help: "Per-frame tripped signals by detector kind",
	}, []string{"kind"})
	reg.MustRegister(m.DetectorTrips)

	m.IncidentsOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_incidents_opened_total",
		Help: "Incidents opened by kind",
	}, []string{"kind"})
	reg.MustRegister(m.IncidentsOpened)

	m.IncidentsClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_incidents_closed_total",
		Help: "Incidents closed by kind",
	}, []string{"kind"})
	reg.MustRegister(m.IncidentsClosed)

	m.EventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aegis_events_dropped_total",
		Help: "Sink events discarded under backpressure",
	})
	reg.MustRegister(m.EventsDropped)

	m.ComputeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aegis_compute_errors_total",
		Help: "Per-detector compute failures skipped in-pipeline",
	}, []string{"stage"})
	reg.MustRegister(m.ComputeErrors)

	m.EventQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aegis_event_queue_depth",
		Help: "Current sink queue depth",
	})
	reg.MustRegister(m.EventQueueDepth)

	m.PipelineFPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "aegis_pipeline_fps",
		Help: "Smoothed frames per second through the pipeline",
	})
	reg.MustRegister(m.PipelineFPS)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
