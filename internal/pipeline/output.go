package pipeline

import (
	"sync"

	"github.com/technosupport/ts-aegis/internal/vision"
)

// outputSlots holds the most recent raw and processed frames for the
// transport layer. The pipeline thread writes; HTTP handlers read.
// Frames stored here are never mutated again, so handing out the
// pointers is safe.
type outputSlots struct {
	mu        sync.RWMutex
	raw       *vision.Frame
	processed *vision.Frame
}

func newOutputSlots() *outputSlots { return &outputSlots{} }

func (o *outputSlots) set(raw, processed *vision.Frame) {
	o.mu.Lock()
	o.raw = raw
	o.processed = processed
	o.mu.Unlock()
}

// FrameOutput is the read-only view handed to the API layer.
type FrameOutput struct {
	slots *outputSlots
}

func (o *outputSlots) reader() *FrameOutput { return &FrameOutput{slots: o} }

// Raw returns the latest pre-correction frame, without watermark, or
// nil before the first frame.
func (f *FrameOutput) Raw() *vision.Frame {
	f.slots.mu.RLock()
	defer f.slots.mu.RUnlock()
	return f.slots.raw
}

// Processed returns the latest post-correction, watermarked frame.
func (f *FrameOutput) Processed() *vision.Frame {
	f.slots.mu.RLock()
	defer f.slots.mu.RUnlock()
	return f.slots.processed
}
