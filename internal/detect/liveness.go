package detect

import "github.com/technosupport/ts-aegis/internal/vision"

// LivenessConfig bundles the thresholds of the reference-frame detector.
type LivenessConfig struct {
	FrozenThreshold     float64 // mean abs diff below this = static feed
	BlackoutBrightness  float64 // mean intensity below this = covered lens
	MajorTamperDiff     float64 // mean abs diff above this = scene replaced
	RefreshIntervalSecs float64 // reference frame refresh cadence
	ActivationSecs      float64 // grace period from startup
	WarmupFrames        int     // frames discarded before the first reference
}

// Liveness holds a reference grayscale frame and compares every incoming
// frame against it. One pass yields three kinds: frozen (diff collapses),
// blackout (brightness collapses), and major tamper (diff explodes while
// neither blur nor reposition explains it, the scene-replacement
// signature). All three are suppressed during the activation window so
// camera auto-exposure settling does not fire alerts.
type Liveness struct {
	cfg LivenessConfig

	ref       []byte
	refTS     float64
	startTS   float64
	seen      int
	havestart bool
}

func NewLiveness(cfg LivenessConfig) *Liveness {
	return &Liveness{cfg: cfg}
}

func (d *Liveness) Step(fr *vision.Frame, env Env) []Signal {
	if !d.havestart {
		d.startTS = env.Now
		d.havestart = true
	}
	d.seen++

	// Warm-up: let exposure stabilize before trusting a reference.
	if d.seen <= d.cfg.WarmupFrames {
		return d.quiet()
	}

	gray := fr.Gray()

	if d.ref == nil {
		d.ref = append([]byte(nil), gray...)
		d.refTS = env.Now
		return d.quiet()
	}

	diff := vision.MeanAbsDiff(gray, d.ref)
	brightness := vision.MeanBrightness(gray)
	active := env.Now-d.startTS > d.cfg.ActivationSecs

	refAge := env.Now - d.refTS

	frozen := active && diff < d.cfg.FrozenThreshold
	blackout := active && brightness < d.cfg.BlackoutBrightness
	major := active && diff > d.cfg.MajorTamperDiff &&
		!env.BlurTripped && !env.RepositionTripped

	// Refresh the reference after comparing, so a slow drift cannot hide
	// inside the refresh cadence.
	if env.Now-d.refTS >= d.cfg.RefreshIntervalSecs {
		copy(d.ref, gray)
		d.refTS = env.Now
	}

	return []Signal{
		{Kind: KindFrozen, Metric: diff, Tripped: frozen,
			Aux: map[string]any{"diff": diff, "ref_age_s": refAge}},
		{Kind: KindBlackout, Metric: brightness, Tripped: blackout,
			Aux: map[string]any{"brightness": brightness}},
		{Kind: KindMajorTamper, Metric: diff, Tripped: major,
			Aux: map[string]any{"diff": diff}},
	}
}

// quiet emits untripped signals for all three kinds.
func (d *Liveness) quiet() []Signal {
	return []Signal{
		{Kind: KindFrozen},
		{Kind: KindBlackout},
		{Kind: KindMajorTamper},
	}
}

func (d *Liveness) Reset() {
	d.ref = nil
	d.refTS = 0
	d.startTS = 0
	d.seen = 0
	d.havestart = false
}
