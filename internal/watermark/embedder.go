package watermark

import (
	"math"

	"github.com/technosupport/ts-aegis/internal/vision"
)

// Embedder paints the current second's token onto outgoing frames. The
// HMAC is recomputed at most once per wall-second; within a second the
// cached token is reused. Single-caller: the pipeline thread.
type Embedder struct {
	secret []byte

	cachedSecond int64
	cachedToken  RGB
	haveToken    bool
}

func NewEmbedder(secret []byte) (*Embedder, error) {
	if err := ValidateSecret(secret); err != nil {
		return nil, err
	}
	return &Embedder{secret: secret}, nil
}

// Embed stamps the frame in place using its own capture timestamp.
func (e *Embedder) Embed(fr *vision.Frame) {
	second := int64(math.Floor(fr.TS))
	if !e.haveToken || second != e.cachedSecond {
		e.cachedToken = Token(e.secret, second)
		e.cachedSecond = second
		e.haveToken = true
	}
	paintSquare(fr, e.cachedToken)
}

// paintSquare fills the 40x40 region at the fixed inset from the
// bottom-right corner. Frames smaller than the square plus inset are
// clipped at the top-left of the region.
func paintSquare(fr *vision.Frame, c RGB) {
	x1 := fr.Width - Inset
	y1 := fr.Height - Inset
	x0 := x1 - SquareSize
	y0 := y1 - SquareSize
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			fr.SetRGB(x, y, c.R, c.G, c.B)
		}
	}
}
