package watermark

import (
	"fmt"
	"io"

	"gocv.io/x/gocv"

	"github.com/technosupport/ts-aegis/internal/vision"
)

// VideoFileSource decodes a recorded video through OpenCV and rebases
// per-frame presentation timestamps onto the recording's start epoch.
// Containers rarely carry absolute wall time, so the start epoch is an
// explicit input (CLI flag or request field).
type VideoFileSource struct {
	cap        *gocv.VideoCapture
	startEpoch float64
	buf        gocv.Mat
}

func OpenVideoFile(path string, startEpoch float64) (*VideoFileSource, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("watermark: open video %s: %w", path, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("watermark: video %s did not open", path)
	}
	return &VideoFileSource{cap: cap, startEpoch: startEpoch, buf: gocv.NewMat()}, nil
}

func (s *VideoFileSource) Next() (*vision.Frame, error) {
	if !s.cap.Read(&s.buf) || s.buf.Empty() {
		return nil, io.EOF
	}

	posMsec := s.cap.Get(gocv.VideoCapturePosMsec)
	ts := s.startEpoch + posMsec/1000.0

	// OpenCV decodes to BGR.
	pix := make([]byte, len(s.buf.ToBytes()))
	copy(pix, s.buf.ToBytes())

	return vision.NewFrame(ts, s.buf.Cols(), s.buf.Rows(), vision.OrderBGR, pix)
}

func (s *VideoFileSource) Close() error {
	s.buf.Close()
	return s.cap.Close()
}
