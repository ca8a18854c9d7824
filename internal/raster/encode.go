package raster

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"
)

// encodePNG shrinks img to fit maxEdge (when positive) and encodes it as PNG.
func encodePNG(img image.Image, maxEdge int) ([]byte, int, int, error) {
	b := img.Bounds()
	if maxEdge > 0 && (b.Dx() > maxEdge || b.Dy() > maxEdge) {
		img = imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, 0, 0, err
	}
	nb := img.Bounds()
	return buf.Bytes(), nb.Dx(), nb.Dy(), nil
}

// decodeImage reads an encoded page produced by an external renderer.
func decodeImage(b []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(b))
}
