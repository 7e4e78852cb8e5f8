// Package enhance holds the recovery filters applied to frames after a
// detector trips: unsharp masking for blur, CLAHE for glare. Both are
// lossy; they run before watermark embedding and never feed back into
// the motion detectors, which always see raw grayscale.
package enhance

import (
	"errors"

	"github.com/technosupport/ts-aegis/internal/vision"
)

var ErrUnknownMode = errors.New("enhance: unknown rescue mode")

// RescueMode selects the glare recovery algorithm. Only CLAHE ships; the
// field experiments also covered multi-scale retinex, which never made
// the cut on frame-rate grounds.
type RescueMode string

const ModeCLAHE RescueMode = "CLAHE"

// Rescuer recovers detail from a washed-out frame. Implementations
// return a new frame; the input is left untouched.
type Rescuer interface {
	Rescue(fr *vision.Frame) (*vision.Frame, error)
}

const (
	// DefaultSharpenStrength is the unsharp amount used for blur
	// correction. 0 leaves the frame unchanged; 1.5 adds one and a half
	// times the high-frequency residual.
	DefaultSharpenStrength = 1.5

	// rescueSharpenStrength is the milder sharpening applied after CLAHE.
	rescueSharpenStrength = 1.0

	// blowoutCutoff marks channels beyond recovery; CLAHE amplifies the
	// ringing around them, so they are flattened instead.
	blowoutCutoff = 252

	blowoutGray = 150
)

// SharpenForBlur applies the unsharp blur correction in place.
func SharpenForBlur(fr *vision.Frame, strength float64) {
	vision.UnsharpMask(fr.Pix, fr.Width, fr.Height, strength)
}

// flattenBlowout neutralizes every pixel that had any channel beyond the
// cutoff in the original frame, writing into the rescued frame.
func flattenBlowout(original, rescued *vision.Frame) {
	for y := 0; y < original.Height; y++ {
		for x := 0; x < original.Width; x++ {
			r, g, b := original.RGBAt(x, y)
			if r > blowoutCutoff || g > blowoutCutoff || b > blowoutCutoff {
				rescued.SetRGB(x, y, blowoutGray, blowoutGray, blowoutGray)
			}
		}
	}
}

// NewRescuer builds the rescuer for a mode.
func NewRescuer(mode RescueMode) (Rescuer, error) {
	switch mode {
	case ModeCLAHE:
		return NewCLAHERescuer(), nil
	default:
		return nil, ErrUnknownMode
	}
}
