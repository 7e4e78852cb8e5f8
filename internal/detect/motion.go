package detect

import (
	"math"

	"github.com/technosupport/ts-aegis/internal/vision"
)

// Shake trips on the mean flow magnitude over the full frame. Mechanical
// impact moves every pixel at once; the magnitudes add up even though
// the directions oscillate and cancel, which is exactly what keeps shake
// out of the reposition slow path.
type Shake struct {
	Threshold float64
}

func NewShake(threshold float64) *Shake {
	return &Shake{Threshold: threshold}
}

func (d *Shake) Step(_ *vision.Frame, env Env) []Signal {
	if env.Flow == nil {
		return one(Signal{Kind: KindShake})
	}
	mag := env.Flow.MeanMagnitude()
	return one(Signal{
		Kind:    KindShake,
		Metric:  mag,
		Tripped: mag > d.Threshold,
		Aux:     map[string]any{"magnitude": mag},
	})
}

func (d *Shake) Reset() {}

const (
	repositionHistory = 10
	repositionWindow  = 5
	borderFrac        = 0.10
	directionMinMag   = 5.0
	idleResetSecs     = 10.0
)

type shiftEntry struct {
	mag float64
	ux  float64
	uy  float64
}

// RepositionConfig holds the dual-path thresholds.
type RepositionConfig struct {
	Threshold     float64 // per-frame magnitude counted as directional evidence
	FastThreshold float64 // immediate trip
	Consistency   float64 // minimum mean-direction length on the slow path
}

// Reposition detects deliberate viewpoint change from the centered mean
// of the shared flow field. The fast path catches jerks that would
// dominate and then clear the history; the slow path accumulates
// directional evidence across the last five frames so a deliberate slow
// pan cannot stay under the fast threshold forever.
type Reposition struct {
	cfg RepositionConfig

	history    []shiftEntry
	lastHighTS float64
	haveHigh   bool
}

func NewReposition(cfg RepositionConfig) *Reposition {
	return &Reposition{cfg: cfg, history: make([]shiftEntry, 0, repositionHistory)}
}

func (d *Reposition) Step(_ *vision.Frame, env Env) []Signal {
	if env.Flow == nil {
		return one(Signal{Kind: KindReposition})
	}

	// Idle reset: stale directional evidence from minutes ago must not
	// combine with a fresh pan.
	if d.haveHigh && env.Now-d.lastHighTS > idleResetSecs {
		d.clearHistory()
	}

	sx, sy := env.Flow.CenterMeanShift(borderFrac)
	mag := math.Hypot(sx, sy)

	var ux, uy float64
	if mag > 1e-9 {
		ux, uy = sx/mag, sy/mag
	}

	if len(d.history) == repositionHistory {
		d.history = d.history[1:]
	}
	d.history = append(d.history, shiftEntry{mag: mag, ux: ux, uy: uy})

	if mag > d.cfg.Threshold {
		d.lastHighTS = env.Now
		d.haveHigh = true
	}

	aux := map[string]any{
		"shift_x":   sx,
		"shift_y":   sy,
		"magnitude": mag,
		"direction": cardinal(sx, sy, mag),
	}

	// Fast path: a single large jerk.
	if mag > d.cfg.FastThreshold {
		aux["path"] = "fast"
		return one(Signal{Kind: KindReposition, Metric: mag, Tripped: true, Aux: aux})
	}

	// Slow path: sustained, direction-consistent evidence.
	if len(d.history) >= repositionWindow {
		window := d.history[len(d.history)-repositionWindow:]

		high := 0
		var dx, dy float64
		dirN := 0
		for _, e := range window {
			if e.mag > d.cfg.Threshold {
				high++
			}
			if e.mag > directionMinMag {
				dx += e.ux
				dy += e.uy
				dirN++
			}
		}

		if high >= repositionWindow-1 && dirN > 0 {
			consistency := math.Hypot(dx/float64(dirN), dy/float64(dirN))
			aux["consistency"] = consistency
			if consistency > d.cfg.Consistency {
				aux["path"] = "slow"
				return one(Signal{Kind: KindReposition, Metric: mag, Tripped: true, Aux: aux})
			}
		}
	}

	return one(Signal{Kind: KindReposition, Metric: mag, Aux: aux})
}

// Reset clears the ring buffer; called when the operator acknowledges a
// reposition alert.
func (d *Reposition) Reset() {
	d.clearHistory()
}

func (d *Reposition) clearHistory() {
	d.history = d.history[:0]
	d.haveHigh = false
}

// HistoryLen is exposed for the ring-buffer invariant checks in tests.
func (d *Reposition) HistoryLen() int { return len(d.history) }

// cardinal names the dominant motion direction for operator-facing
// descriptions. Image coordinates: +x right, +y down.
func cardinal(sx, sy, mag float64) string {
	if mag < 1e-9 {
		return "none"
	}
	if math.Abs(sx) >= math.Abs(sy) {
		if sx > 0 {
			return "right"
		}
		return "left"
	}
	if sy > 0 {
		return "down"
	}
	return "up"
}
