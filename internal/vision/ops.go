package vision

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// scratchPool recycles the float64 working buffers of the per-frame
// filters so the 30 Hz hot path does not churn the allocator.
var scratchPool = sync.Pool{
	New: func() any { return make([]float64, 0, 640*480*3) },
}

func getScratch(n int) []float64 {
	buf := scratchPool.Get().([]float64)
	if cap(buf) < n {
		buf = make([]float64, n)
	}
	return buf[:n]
}

func putScratch(buf []float64) {
	scratchPool.Put(buf[:0])
}

// Histogram256 builds the full 256-bin intensity histogram of a
// grayscale buffer.
func Histogram256(gray []byte) [256]int {
	var hist [256]int
	for _, v := range gray {
		hist[v]++
	}
	return hist
}

// BandStats summarizes a histogram into the three exposure bands used by
// the glare detector: dark [0,50], mid (50,252), bright [252,255].
type BandStats struct {
	DarkPct   float64
	MidPct    float64
	BrightPct float64
}

func Bands(hist [256]int, totalPixels int) BandStats {
	if totalPixels == 0 {
		return BandStats{}
	}
	var dark, mid, bright int
	for v, n := range hist {
		switch {
		case v <= 50:
			dark += n
		case v >= 252:
			bright += n
		default:
			mid += n
		}
	}
	t := float64(totalPixels)
	return BandStats{
		DarkPct:   float64(dark) / t * 100,
		MidPct:    float64(mid) / t * 100,
		BrightPct: float64(bright) / t * 100,
	}
}

// LaplacianVariance computes the population variance of the discrete
// Laplacian response over the interior of a grayscale buffer. The kernel
// is [0 1 0; 1 -4 1; 0 1 0]; border pixels are excluded. A sharp image
// has strong edge response and high variance; defocus collapses it.
func LaplacianVariance(gray []byte, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}
	data := getScratch((width - 2) * (height - 2))[:0]
	defer putScratch(data)
	for y := 1; y < height-1; y++ {
		row := y * width
		for x := 1; x < width-1; x++ {
			center := float64(gray[row+x])
			top := float64(gray[row-width+x])
			bottom := float64(gray[row+width+x])
			left := float64(gray[row+x-1])
			right := float64(gray[row+x+1])
			data = append(data, top+bottom+left+right-4*center)
		}
	}
	mean := stat.Mean(data, nil)
	return stat.MomentAbout(2, data, mean, nil)
}

// MeanBrightness is the average intensity of a grayscale buffer.
func MeanBrightness(gray []byte) float64 {
	if len(gray) == 0 {
		return 0
	}
	var sum uint64
	for _, v := range gray {
		sum += uint64(v)
	}
	return float64(sum) / float64(len(gray))
}

// MeanAbsDiff is the per-pixel mean absolute difference between two
// grayscale buffers of equal size.
func MeanAbsDiff(a, b []byte) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var sum uint64
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		sum += uint64(d)
	}
	return float64(sum) / float64(len(a))
}

// gauss5 is the separable 5-tap Gaussian kernel for sigma 1.0.
var gauss5 = [5]float64{0.054489, 0.244201, 0.402620, 0.244201, 0.054489}

// GaussianBlur5 applies a 5x5 Gaussian (sigma 1.0) to an interleaved
// color buffer, clamping at the borders. Returns a new buffer.
func GaussianBlur5(pix []byte, width, height int) []byte {
	tmp := getScratch(len(pix))
	defer putScratch(tmp)
	out := make([]byte, len(pix))

	clampX := func(x int) int {
		if x < 0 {
			return 0
		}
		if x >= width {
			return width - 1
		}
		return x
	}
	clampY := func(y int) int {
		if y < 0 {
			return 0
		}
		if y >= height {
			return height - 1
		}
		return y
	}

	// Horizontal pass
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				var acc float64
				for k := -2; k <= 2; k++ {
					acc += gauss5[k+2] * float64(pix[(y*width+clampX(x+k))*3+c])
				}
				tmp[(y*width+x)*3+c] = acc
			}
		}
	}
	// Vertical pass
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < 3; c++ {
				var acc float64
				for k := -2; k <= 2; k++ {
					acc += gauss5[k+2] * tmp[(clampY(y+k)*width+x)*3+c]
				}
				out[(y*width+x)*3+c] = clampByte(acc)
			}
		}
	}
	return out
}

// UnsharpMask sharpens in place: out = src + strength*(src - blurred),
// clipped to [0,255].
func UnsharpMask(pix []byte, width, height int, strength float64) {
	blurred := GaussianBlur5(pix, width, height)
	for i := range pix {
		v := float64(pix[i]) + strength*(float64(pix[i])-float64(blurred[i]))
		pix[i] = clampByte(v)
	}
}

// RegionMeanRGB averages the color of a rectangular region. Averaging
// over the region defeats per-pixel compression noise.
func RegionMeanRGB(f *Frame, x0, y0, x1, y1 int) (float64, float64, float64) {
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > f.Width {
		x1 = f.Width
	}
	if y1 > f.Height {
		y1 = f.Height
	}
	n := (x1 - x0) * (y1 - y0)
	if n <= 0 {
		return 0, 0, 0
	}
	var sr, sg, sb float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			r, g, b := f.RGBAt(x, y)
			sr += float64(r)
			sg += float64(g)
			sb += float64(b)
		}
	}
	return sr / float64(n), sg / float64(n), sb / float64(n)
}

func clampByte(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}
