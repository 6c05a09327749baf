package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const PNGDataURIPrefix = "data:image/png;base64,"

var ErrInvalidImage = errors.New("invalid image")

type Normalized struct {
	PNG          []byte
	SourceFormat string
	Width        int
	Height       int
}

// ToPNG decodes png, jpeg, gif or webp input and re-encodes it as PNG. Images
// whose longest side exceeds maxSide are scaled down; maxSide <= 0 keeps size.
func ToPNG(data []byte, maxSide int) (*Normalized, error) {
	if len(data) == 0 {
		return nil, ErrInvalidImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	img = fit(img, maxSide)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	b := img.Bounds()
	return &Normalized{PNG: buf.Bytes(), SourceFormat: format, Width: b.Dx(), Height: b.Dy()}, nil
}

func fit(src image.Image, maxSide int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return src
	}
	if w >= h {
		h = h * maxSide / w
		w = maxSide
	} else {
		w = w * maxSide / h
		h = maxSide
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func PNGDataURI(data []byte) string {
	return PNGDataURIPrefix + base64.StdEncoding.EncodeToString(data)
}
