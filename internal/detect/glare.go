package detect

import "github.com/technosupport/ts-aegis/internal/vision"

// Glare detects high-intensity washout by its histogram signature: a
// blown-out light source crushes shadows and burns highlights at the
// same time, so the mid band starves while both extremes grow. A merely
// bright scene fails the dark-band condition and does not trip.
type Glare struct {
	DarkMinPct   float64
	BrightMinPct float64
	MidMaxPct    float64
}

func NewGlare() *Glare {
	return &Glare{DarkMinPct: 30.0, BrightMinPct: 1.0, MidMaxPct: 60.0}
}

func (d *Glare) Step(fr *vision.Frame, _ Env) []Signal {
	gray := fr.Gray()
	hist := vision.Histogram256(gray)
	bands := vision.Bands(hist, len(gray))

	tripped := bands.DarkPct > d.DarkMinPct &&
		bands.BrightPct > d.BrightMinPct &&
		bands.MidPct < d.MidMaxPct

	return one(Signal{
		Kind:    KindGlare,
		Metric:  bands.BrightPct,
		Tripped: tripped,
		Aux: map[string]any{
			"dark_pct":   bands.DarkPct,
			"mid_pct":    bands.MidPct,
			"bright_pct": bands.BrightPct,
			"histogram":  hist[:],
		},
	})
}

func (d *Glare) Reset() {}
