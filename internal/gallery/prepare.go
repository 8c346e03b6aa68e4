package gallery

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Canvas panel resolution. Images are fitted within these bounds
// before upload; the device's own dithering handles the rest.
const (
	panelWidth  = 1600
	panelHeight = 1200
)

// Preparer converts arbitrary source images into device-ready JPEGs:
// decode, fit within the panel resolution preserving aspect ratio,
// re-encode at the configured quality.
type Preparer struct {
	maxWidth  int
	maxHeight int
	quality   int
}

// NewPreparer creates a preparer targeting the panel resolution.
// quality is the JPEG re-encode quality (1-100).
func NewPreparer(quality int) *Preparer {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return &Preparer{
		maxWidth:  panelWidth,
		maxHeight: panelHeight,
		quality:   quality,
	}
}

// Prepare returns device-ready JPEG bytes for the source image.
// Undecodable input returns ErrFormatUnsupported.
func (p *Preparer) Prepare(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatUnsupported, err)
	}

	img = p.fit(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("gallery: encode jpeg: %w", err)
	}

	return buf.Bytes(), nil
}

// fit downscales images larger than the panel. Smaller images pass
// through untouched; upscaling wastes storage on an e-ink panel.
func (p *Preparer) fit(img image.Image) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= p.maxWidth && bounds.Dy() <= p.maxHeight {
		return img
	}
	return imaging.Fit(img, p.maxWidth, p.maxHeight, imaging.Lanczos)
}
