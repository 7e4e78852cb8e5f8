package vision

import (
	"bytes"
	"image"
	"image/jpeg"
)

// EncodeJPEG renders a frame to JPEG bytes. Used by the frame endpoints
// and the glare snapshot archive; the pipeline hot path never encodes.
func EncodeJPEG(f *Frame, quality int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			r, g, b := f.RGBAt(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = r, g, b, 255
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
