package imageutil

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return buf.Bytes()
}

func TestToPNGConvertsAndScales(t *testing.T) {
	n, err := ToPNG(jpegBytes(t, 400, 200), 100)
	if err != nil {
		t.Fatalf("ToPNG: %v", err)
	}
	if n.SourceFormat != "jpeg" {
		t.Fatalf("format: want=jpeg got=%s", n.SourceFormat)
	}
	if n.Width != 100 || n.Height != 50 {
		t.Fatalf("size: want=100x50 got=%dx%d", n.Width, n.Height)
	}
	if !bytes.HasPrefix(n.PNG, []byte("\x89PNG")) {
		t.Fatalf("output is not png")
	}
	if !strings.HasPrefix(PNGDataURI(n.PNG), PNGDataURIPrefix) {
		t.Fatalf("data uri prefix missing")
	}
}

func TestToPNGRejectsGarbage(t *testing.T) {
	if _, err := ToPNG([]byte("not an image"), 0); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("garbage: want=ErrInvalidImage got=%v", err)
	}
	if _, err := ToPNG(nil, 0); !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("empty: want=ErrInvalidImage got=%v", err)
	}
}
