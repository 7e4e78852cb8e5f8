package detect

import "github.com/technosupport/ts-aegis/internal/vision"

// Blur scores frame sharpness by the variance of the Laplacian response.
// Defocus or a smeared lens collapses edge energy and the variance with
// it. Trips strictly below the threshold; no temporal state of its own.
type Blur struct {
	Threshold float64
}

func NewBlur(threshold float64) *Blur {
	return &Blur{Threshold: threshold}
}

func (d *Blur) Step(fr *vision.Frame, _ Env) []Signal {
	variance := vision.LaplacianVariance(fr.Gray(), fr.Width, fr.Height)
	return one(Signal{
		Kind:    KindBlur,
		Metric:  variance,
		Tripped: variance < d.Threshold,
		Aux:     map[string]any{"variance": variance},
	})
}

func (d *Blur) Reset() {}
