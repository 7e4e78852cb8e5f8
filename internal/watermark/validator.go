package watermark

import (
	"errors"
	"io"
	"math"

	"github.com/technosupport/ts-aegis/internal/vision"
)

// Verdict values for a validation run.
const (
	StatusLive    = "LIVE"
	StatusNotLive = "NOT_LIVE"
	StatusError   = "ERROR"
)

// Validation defaults.
const (
	DefaultColorMatchDistance = 24.0
	DefaultLiveThreshold      = 0.70
)

// FrameSource yields decoded frames with presentation timestamps in
// seconds since epoch. io.EOF ends the stream.
type FrameSource interface {
	Next() (*vision.Frame, error)
	Close() error
}

// FrameResult records one frame's check, kept for audit.
type FrameResult struct {
	Index    int        `json:"index"`
	Second   int64      `json:"second"`
	Expected RGB        `json:"expected"`
	Observed [3]float64 `json:"observed"`
	Distance float64    `json:"distance"`
	Match    bool       `json:"match"`
}

// Report is the validator verdict plus per-frame detail.
type Report struct {
	Status    string        `json:"status"`
	MatchRate float64       `json:"match_rate"`
	Total     int           `json:"total_frames"`
	Matches   int           `json:"matched_frames"`
	PerFrame  []FrameResult `json:"per_frame"`
	Error     string        `json:"error,omitempty"`
}

// Validator replays a recording against the shared secret. The clock is
// an explicit input: by default each frame's own presentation timestamp
// keys the expected token; ClockStart rebases the stream onto a caller-
// supplied start second instead (frame offsets preserved), which is how
// a replayed recording is caught: the recording's pixels were keyed to
// the seconds it was made, not the seconds it claims now.
type Validator struct {
	secret        []byte
	MatchDistance float64
	LiveThreshold float64

	// ClockStart, when non-zero, overrides the epoch of the first frame.
	ClockStart float64
}

func NewValidator(secret []byte) (*Validator, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	return &Validator{
		secret:        secret,
		MatchDistance: DefaultColorMatchDistance,
		LiveThreshold: DefaultLiveThreshold,
	}, nil
}

// Validate consumes the whole source and renders a verdict. Input errors
// surface as a Report with StatusError, never as a panic or a bare
// error to the transport layer.
func (v *Validator) Validate(src FrameSource) *Report {
	defer src.Close()

	rep := &Report{}
	firstTS := math.NaN()

	for {
		fr, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if rep.Total == 0 {
				return &Report{Status: StatusError, Error: err.Error()}
			}
			// Partial read: judge what we have.
			break
		}

		if math.IsNaN(firstTS) {
			firstTS = fr.TS
		}

		ts := fr.TS
		if v.ClockStart != 0 {
			ts = v.ClockStart + (fr.TS - firstTS)
		}
		second := int64(math.Floor(ts))
		expected := Token(v.secret, second)

		r, g, b := observeToken(fr)
		dist := math.Sqrt(
			(r-float64(expected.R))*(r-float64(expected.R)) +
				(g-float64(expected.G))*(g-float64(expected.G)) +
				(b-float64(expected.B))*(b-float64(expected.B)))

		match := dist < v.MatchDistance
		if match {
			rep.Matches++
		}
		rep.PerFrame = append(rep.PerFrame, FrameResult{
			Index:    rep.Total,
			Second:   second,
			Expected: expected,
			Observed: [3]float64{r, g, b},
			Distance: dist,
			Match:    match,
		})
		rep.Total++
	}

	if rep.Total == 0 {
		return &Report{Status: StatusError, Error: "no frames in input"}
	}

	rep.MatchRate = float64(rep.Matches) / float64(rep.Total)
	if rep.MatchRate >= v.LiveThreshold {
		rep.Status = StatusLive
	} else {
		rep.Status = StatusNotLive
	}
	return rep
}

// observeToken averages the pixels of the watermark region. Averaging
// defeats per-pixel compression noise.
func observeToken(fr *vision.Frame) (float64, float64, float64) {
	x1 := fr.Width - Inset
	y1 := fr.Height - Inset
	return vision.RegionMeanRGB(fr, x1-SquareSize, y1-SquareSize, x1, y1)
}
