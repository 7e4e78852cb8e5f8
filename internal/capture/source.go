// Package capture adapts camera and file inputs to the pipeline's frame
// source contract.
package capture

import (
	"errors"
	"io"

	"github.com/technosupport/ts-aegis/internal/vision"
)

var ErrUnavailable = errors.New("capture: source unavailable")

// Source is a blocking frame supplier. Next returns io.EOF at end of
// stream and ErrUnavailable (possibly wrapped) when the device fails.
// Timestamps are wall-clock seconds at capture time.
type Source interface {
	Next() (*vision.Frame, error)
	Close() error
}

// Func adapts a closure to a Source; handy in tests and simulators.
type Func func() (*vision.Frame, error)

func (f Func) Next() (*vision.Frame, error) { return f() }
func (f Func) Close() error                 { return nil }

// FromFrames replays a fixed frame slice then returns io.EOF.
func FromFrames(frames []*vision.Frame) Source {
	i := 0
	return Func(func() (*vision.Frame, error) {
		if i >= len(frames) {
			return nil, io.EOF
		}
		f := frames[i]
		i++
		return f, nil
	})
}
