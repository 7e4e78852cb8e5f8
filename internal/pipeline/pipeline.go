// Package pipeline drives the per-frame loop: capture, preprocess,
// detector bank, temporal aggregation, recovery filters, watermark, and
// the event sink. One dedicated goroutine owns the whole path; all
// stages are pure CPU and bounded per frame.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/ts-aegis/internal/capture"
	"github.com/technosupport/ts-aegis/internal/config"
	"github.com/technosupport/ts-aegis/internal/detect"
	"github.com/technosupport/ts-aegis/internal/enhance"
	"github.com/technosupport/ts-aegis/internal/events"
	"github.com/technosupport/ts-aegis/internal/flow"
	"github.com/technosupport/ts-aegis/internal/metrics"
	"github.com/technosupport/ts-aegis/internal/tamper"
	"github.com/technosupport/ts-aegis/internal/vision"
	"github.com/technosupport/ts-aegis/internal/watermark"
)

var ErrCaptureLost = errors.New("pipeline: capture source lost")

const (
	captureRetries   = 3
	captureGraceSecs = 5.0
)

// GlareSnapshot is called when a glare incident opens, with the raw
// frame and the blown-highlight percentage. Best-effort; errors are the
// hook's problem.
type GlareSnapshot func(fr *vision.Frame, inc tamper.Incident, brightPct float64)

// Options wires the pipeline's collaborators.
type Options struct {
	Source     capture.Source
	Thresholds config.Thresholds
	Runtime    *config.Runtime
	Flow       flow.Estimator
	Rescuer    enhance.Rescuer
	Embedder   *watermark.Embedder
	Sink       *events.Sink
	Metrics    *metrics.Metrics

	WarmupFrames  int
	OnGlareOpened GlareSnapshot
}

type Pipeline struct {
	opts Options
	agg  *tamper.Aggregator

	blur       *detect.Blur
	glare      *detect.Glare
	liveness   *detect.Liveness
	shake      *detect.Shake
	reposition *detect.Reposition

	prevGray []byte // preprocessor's one-slot cache

	output  *outputSlots
	control chan func()

	lastFrameWall time.Time
	fps           float64
	lastDropped   uint64
}

func New(opts Options) *Pipeline {
	t := opts.Thresholds
	return &Pipeline{
		opts: opts,
		agg:  tamper.NewAggregator(),
		blur: detect.NewBlur(t.Blur),
		glare: detect.NewGlare(),
		liveness: detect.NewLiveness(detect.LivenessConfig{
			FrozenThreshold:     t.Liveness,
			BlackoutBrightness:  t.BlackoutBrightness,
			MajorTamperDiff:     t.MajorTamperDiff,
			RefreshIntervalSecs: t.LivenessInterval,
			ActivationSecs:      t.LivenessActivation,
			WarmupFrames:        opts.WarmupFrames,
		}),
		shake: detect.NewShake(t.Shake),
		reposition: detect.NewReposition(detect.RepositionConfig{
			Threshold:     t.Reposition,
			FastThreshold: t.FastReposition,
			Consistency:   t.DirectionConsistency,
		}),
		output:  newOutputSlots(),
		control: make(chan func(), 16),
	}
}

// Run processes frames until end-of-stream, context cancellation, or a
// lost capture source. Returns nil on clean exit, ErrCaptureLost when
// the device stays dead past the grace period.
func (p *Pipeline) Run(ctx context.Context) error {
	failures := 0
	var graceStart time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		p.applyControl()

		fr, err := p.opts.Source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			failures++
			if p.opts.Metrics != nil {
				p.opts.Metrics.CaptureRetries.Inc()
			}
			if failures <= captureRetries {
				continue
			}
			if graceStart.IsZero() {
				graceStart = time.Now()
				p.emitCaptureLost()
			}
			if time.Since(graceStart).Seconds() >= captureGraceSecs {
				return ErrCaptureLost
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		failures = 0
		graceStart = time.Time{}

		p.processFrame(fr)
	}
}

func (p *Pipeline) processFrame(fr *vision.Frame) {
	sensors := p.opts.Runtime.Snapshot()
	gray := fr.Gray()

	env := detect.Env{PrevGray: p.prevGray, Now: fr.TS}

	signals := make([]detect.Signal, 0, 8)

	// Blur first: its verdict feeds major-tamper suppression.
	blurSig := detect.Signal{Kind: detect.KindBlur}
	if sensors.Blur {
		blurSig = p.blur.Step(fr, env)[0]
	}
	env.BlurTripped = blurSig.Tripped
	signals = append(signals, blurSig)

	glareSig := detect.Signal{Kind: detect.KindGlare}
	if sensors.Glare {
		glareSig = p.glare.Step(fr, env)[0]
	}
	signals = append(signals, glareSig)

	// One shared flow computation for both motion detectors, always on
	// raw grayscale; rescue never feeds back into motion.
	if p.prevGray != nil && (sensors.Shake || sensors.Reposition) {
		field, err := p.opts.Flow.Estimate(p.prevGray, gray, fr.Width, fr.Height)
		if err != nil {
			if p.opts.Metrics != nil {
				p.opts.Metrics.ComputeErrors.WithLabelValues("flow").Inc()
			}
		} else {
			env.Flow = field
		}
	}

	shakeSig := detect.Signal{Kind: detect.KindShake}
	if sensors.Shake {
		shakeSig = p.shake.Step(fr, env)[0]
	}
	signals = append(signals, shakeSig)

	repSig := detect.Signal{Kind: detect.KindReposition}
	if sensors.Reposition {
		repSig = p.reposition.Step(fr, env)[0]
	}
	env.RepositionTripped = repSig.Tripped
	signals = append(signals, repSig)

	if sensors.Liveness {
		signals = append(signals, p.liveness.Step(fr, env)...)
	} else {
		signals = append(signals,
			detect.Signal{Kind: detect.KindFrozen},
			detect.Signal{Kind: detect.KindBlackout},
			detect.Signal{Kind: detect.KindMajorTamper})
	}

	// Build the emitted frame: corrections and rescue apply to the
	// processed stream only, then the watermark goes on last.
	processed := fr.Clone()

	if glareSig.Tripped && sensors.GlareRescue && p.opts.Rescuer != nil {
		if rescued, err := p.opts.Rescuer.Rescue(fr); err != nil {
			if p.opts.Metrics != nil {
				p.opts.Metrics.ComputeErrors.WithLabelValues("glare_rescue").Inc()
			}
		} else {
			processed = rescued
		}
	}

	if blurSig.Tripped && sensors.BlurFix {
		enhance.SharpenForBlur(processed, enhance.DefaultSharpenStrength)
	}

	p.opts.Embedder.Embed(processed)

	// Aggregate and emit, strictly in frame order.
	for _, sig := range signals {
		if sig.Tripped && p.opts.Metrics != nil {
			p.opts.Metrics.DetectorTrips.WithLabelValues(string(sig.Kind)).Inc()
		}
		for _, tr := range p.agg.Observe(sig, fr.TS) {
			p.emitTransition(tr)
			if tr.Type == tamper.IncidentOpened && tr.Incident.Kind == detect.KindGlare &&
				p.opts.OnGlareOpened != nil {
				brightPct, _ := glareSig.Aux["bright_pct"].(float64)
				p.opts.OnGlareOpened(fr, tr.Incident, brightPct)
			}
		}
	}

	sigMap := make(map[detect.Kind]detect.Signal, len(signals))
	for _, s := range signals {
		sigMap[s.Kind] = s
	}
	p.opts.Sink.Push(events.Event{
		Type:      "detection",
		TS:        fr.TS,
		Detection: &events.DetectionUpdate{TS: fr.TS, Signals: sigMap},
	})

	p.output.set(fr, processed)

	// Swap the preprocessor slot only after every consumer of the
	// previous frame has run.
	p.prevGray = gray

	p.observeMetrics()
}

func (p *Pipeline) emitTransition(tr tamper.Transition) {
	if p.opts.Metrics != nil {
		switch tr.Type {
		case tamper.IncidentOpened:
			p.opts.Metrics.IncidentsOpened.WithLabelValues(string(tr.Incident.Kind)).Inc()
		case tamper.IncidentClosed:
			p.opts.Metrics.IncidentsClosed.WithLabelValues(string(tr.Incident.Kind)).Inc()
		}
	}
	trCopy := tr
	p.opts.Sink.Push(events.Event{Type: "incident", TS: tr.TS, Transition: &trCopy})
}

func (p *Pipeline) emitCaptureLost() {
	log.Printf("pipeline: capture source lost, grace period running")
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	// Synthesize an immediate incident; the sustain machinery is for
	// frame-borne signals, and a dead capture source has no frames.
	tr := tamper.Transition{
		Type: tamper.IncidentOpened,
		TS:   now,
		Incident: tamper.Incident{
			ID:          uuid.New(),
			Kind:        detect.KindCaptureLost,
			FirstSeen:   now,
			LastSeen:    now,
			Count:       1,
			Description: "capture source lost",
		},
	}
	p.emitTransition(tr)
}

func (p *Pipeline) observeMetrics() {
	if p.opts.Metrics == nil {
		return
	}
	p.opts.Metrics.FramesProcessed.Inc()
	p.opts.Metrics.EventQueueDepth.Set(float64(p.opts.Sink.QueueDepth()))

	if d := p.opts.Sink.Dropped(); d > p.lastDropped {
		p.opts.Metrics.EventsDropped.Add(float64(d - p.lastDropped))
		p.lastDropped = d
	}

	now := time.Now()
	if !p.lastFrameWall.IsZero() {
		dt := now.Sub(p.lastFrameWall).Seconds()
		if dt > 0 {
			inst := 1.0 / dt
			// Exponential smoothing keeps the gauge readable.
			p.fps = 0.9*p.fps + 0.1*inst
			p.opts.Metrics.PipelineFPS.Set(p.fps)
		}
	}
	p.lastFrameWall = now
}

// applyControl runs queued control operations on the pipeline thread.
func (p *Pipeline) applyControl() {
	for {
		select {
		case op := <-p.control:
			op()
		default:
			return
		}
	}
}

// DismissReposition clears the reposition ring buffer and force-closes
// any open reposition incident. Safe to call from any goroutine; the
// operation executes between frames on the pipeline thread.
func (p *Pipeline) DismissReposition() {
	select {
	case p.control <- func() {
		p.reposition.Reset()
		now := float64(time.Now().UnixNano()) / float64(time.Second)
		for _, tr := range p.agg.Dismiss(detect.KindReposition, now) {
			p.emitTransition(tr)
		}
	}:
	default:
		log.Printf("pipeline: control queue full, dismiss dropped")
	}
}

// Frames returns the output slots for the transport layer.
func (p *Pipeline) Frames() *FrameOutput { return p.output.reader() }

// RecentIncidents snapshots the aggregator's retained list. The read
// executes on the pipeline thread via the control queue; a stopped or
// saturated pipeline yields nil.
func (p *Pipeline) RecentIncidents() []tamper.Incident {
	done := make(chan []tamper.Incident, 1)
	select {
	case p.control <- func() { done <- p.agg.Recent() }:
		select {
		case out := <-done:
			return out
		case <-time.After(time.Second):
			return nil
		}
	default:
		return nil
	}
}
