package flow

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Farneback parameters. Coarse-to-fine polynomial expansion; tuned for
// 640x480 at 30 fps.
const (
	pyrScale   = 0.5
	levels     = 3
	winSize    = 15
	iterations = 3
	polyN      = 5
	polySigma  = 1.2
)

// Farneback estimates dense optical flow via OpenCV's polynomial
// expansion method. The library may fan the pyramid levels out across
// worker threads internally; the call joins before returning.
type Farneback struct{}

func NewFarneback() *Farneback { return &Farneback{} }

func (e *Farneback) Estimate(prev, cur []byte, width, height int) (*Field, error) {
	if len(prev) != width*height || len(cur) != width*height {
		return nil, ErrSizeMismatch
	}

	prevMat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, prev)
	if err != nil {
		return nil, fmt.Errorf("flow: wrap prev frame: %w", err)
	}
	defer prevMat.Close()

	curMat, err := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8U, cur)
	if err != nil {
		return nil, fmt.Errorf("flow: wrap cur frame: %w", err)
	}
	defer curMat.Close()

	flowMat := gocv.NewMat()
	defer flowMat.Close()

	gocv.CalcOpticalFlowFarneback(prevMat, curMat, &flowMat,
		pyrScale, levels, winSize, iterations, polyN, polySigma, 0)

	// flowMat is CV_32FC2: interleaved (u, v) per pixel.
	raw, err := flowMat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("flow: read flow field: %w", err)
	}

	n := width * height
	f := &Field{
		Width:  width,
		Height: height,
		U:      make([]float32, n),
		V:      make([]float32, n),
	}
	for i := 0; i < n; i++ {
		f.U[i] = raw[2*i]
		f.V[i] = raw[2*i+1]
	}
	return f, nil
}
