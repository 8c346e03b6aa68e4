package gallery

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode prepared output: %v", err)
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy()
}

func TestPrepare_ReencodesToJPEG(t *testing.T) {
	out, err := NewPreparer(90).Prepare(encodePNG(t, 64, 48))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	// JPEG SOI marker.
	if len(out) < 2 || out[0] != 0xFF || out[1] != 0xD8 {
		t.Errorf("prepared output is not JPEG, first bytes %x", out[:2])
	}
}

func TestPrepare_DownscalesOversized(t *testing.T) {
	out, err := NewPreparer(90).Prepare(encodePNG(t, 3200, 1200))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	w, h := decodeSize(t, out)
	if w > panelWidth || h > panelHeight {
		t.Errorf("prepared size %dx%d exceeds panel %dx%d", w, h, panelWidth, panelHeight)
	}
	// Aspect ratio preserved: 3200x1200 fits to 1600x600.
	if w != 1600 || h != 600 {
		t.Errorf("prepared size %dx%d, want 1600x600", w, h)
	}
}

func TestPrepare_SmallImageNotUpscaled(t *testing.T) {
	out, err := NewPreparer(90).Prepare(encodePNG(t, 64, 48))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if w, h := decodeSize(t, out); w != 64 || h != 48 {
		t.Errorf("prepared size %dx%d, want original 64x48", w, h)
	}
}

func TestPrepare_RejectsNonImage(t *testing.T) {
	_, err := NewPreparer(90).Prepare([]byte("plain text, not pixels"))
	if !errors.Is(err, ErrFormatUnsupported) {
		t.Errorf("Prepare() error = %v, want ErrFormatUnsupported", err)
	}
}

func TestNewPreparer_ClampsQuality(t *testing.T) {
	for _, quality := range []int{-5, 0, 101} {
		p := NewPreparer(quality)
		if p.quality < 1 || p.quality > 100 {
			t.Errorf("NewPreparer(%d).quality = %d, out of range", quality, p.quality)
		}
	}
}
