package enhance

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/technosupport/ts-aegis/internal/vision"
)

const (
	claheClipLimit = 16.0
	claheTileGrid  = 4
)

// CLAHERescuer recovers a glare-washed frame by equalizing local
// contrast on the perceptual lightness channel only, so chroma is
// preserved. Pipeline: BGR → Lab, CLAHE on L (clip 16.0, 4x4 tiles),
// merge, back to BGR, mild unsharp, then flatten the blown-out pixels
// the equalization cannot recover.
type CLAHERescuer struct{}

func NewCLAHERescuer() *CLAHERescuer { return &CLAHERescuer{} }

func (r *CLAHERescuer) Rescue(fr *vision.Frame) (*vision.Frame, error) {
	toLab, fromLab := gocv.ColorBGRToLab, gocv.ColorLabToBGR
	if fr.Order == vision.OrderRGB {
		toLab, fromLab = gocv.ColorRGBToLab, gocv.ColorLabToRGB
	}

	src, err := gocv.NewMatFromBytes(fr.Height, fr.Width, gocv.MatTypeCV8UC3, fr.Pix)
	if err != nil {
		return nil, fmt.Errorf("enhance: wrap frame: %w", err)
	}
	defer src.Close()

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(src, &lab, toLab)

	planes := gocv.Split(lab)
	defer func() {
		for i := range planes {
			planes[i].Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileGrid, claheTileGrid))
	defer clahe.Close()
	clahe.Apply(planes[0], &planes[0])

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge(planes, &merged)

	out := gocv.NewMat()
	defer out.Close()
	gocv.CvtColor(merged, &out, fromLab)

	pix := make([]byte, len(fr.Pix))
	copy(pix, out.ToBytes())

	rescued, err := vision.NewFrame(fr.TS, fr.Width, fr.Height, fr.Order, pix)
	if err != nil {
		return nil, err
	}

	vision.UnsharpMask(rescued.Pix, rescued.Width, rescued.Height, rescueSharpenStrength)
	flattenBlowout(fr, rescued)
	return rescued, nil
}
