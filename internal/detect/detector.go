// Package detect holds the per-frame tamper detector bank. Detectors are
// a closed set with a uniform Step/Reset surface; temporal persistence
// (sustain windows, grouping) lives in the tamper aggregator, not here.
package detect

import (
	"github.com/technosupport/ts-aegis/internal/flow"
	"github.com/technosupport/ts-aegis/internal/vision"
)

// Kind identifies the interference class a signal reports. Liveness is a
// single detector but fans out into three kinds.
type Kind string

const (
	KindBlur        Kind = "blur"
	KindShake       Kind = "shake"
	KindGlare       Kind = "glare"
	KindReposition  Kind = "reposition"
	KindFrozen      Kind = "frozen"
	KindBlackout    Kind = "blackout"
	KindMajorTamper Kind = "major_tamper"
	KindCaptureLost Kind = "capture_lost"
)

// Signal is the per-frame, per-kind detector output. Transient; the
// aggregator turns sustained signals into incidents.
type Signal struct {
	Kind    Kind           `json:"kind"`
	Metric  float64        `json:"metric"`
	Tripped bool           `json:"tripped"`
	Aux     map[string]any `json:"aux,omitempty"`
}

// Env carries the per-frame shared state the pipeline computes once:
// the previous grayscale frame, the shared optical flow field, and the
// same-frame results the liveness detector needs for major-tamper
// suppression.
type Env struct {
	PrevGray []byte // nil on the first frame
	Flow     *flow.Field
	Now      float64 // frame wall-clock seconds

	BlurTripped       bool
	RepositionTripped bool
}

// Detector is the uniform surface of the closed detector set. Step may
// return more than one signal (liveness reports frozen, blackout and
// major tamper from one pass).
type Detector interface {
	Step(fr *vision.Frame, env Env) []Signal
	Reset()
}

func one(s Signal) []Signal { return []Signal{s} }
