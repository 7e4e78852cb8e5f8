package capture

import (
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/technosupport/ts-aegis/internal/vision"
)

// Device reads frames from a webcam index, file or RTSP URL through
// OpenCV. Frames come out BGR, stamped with the wall clock at read time.
type Device struct {
	cap *gocv.VideoCapture
	buf gocv.Mat
}

// Open accepts either a numeric device index ("0") or a path/URL.
func Open(source string) (*Device, error) {
	var cap *gocv.VideoCapture
	var err error

	if idx, convErr := strconv.Atoi(source); convErr == nil {
		cap, err = gocv.OpenVideoCapture(idx)
	} else {
		cap, err = gocv.OpenVideoCapture(source)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, source, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("%w: %s did not open", ErrUnavailable, source)
	}

	return &Device{cap: cap, buf: gocv.NewMat()}, nil
}

func (d *Device) Next() (*vision.Frame, error) {
	if !d.cap.Read(&d.buf) || d.buf.Empty() {
		return nil, fmt.Errorf("%w: read failed", ErrUnavailable)
	}

	ts := float64(time.Now().UnixNano()) / float64(time.Second)

	raw := d.buf.ToBytes()
	pix := make([]byte, len(raw))
	copy(pix, raw)

	return vision.NewFrame(ts, d.buf.Cols(), d.buf.Rows(), vision.OrderBGR, pix)
}

func (d *Device) Close() error {
	d.buf.Close()
	return d.cap.Close()
}
