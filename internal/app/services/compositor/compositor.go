// Package compositor flattens a base badge image and flair overlays into a
// single fixed-size PNG. The pipeline is fully deterministic: identical input
// bytes and rectangles always produce identical output bytes.
package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
	"github.com/saltoriousSIG/peeples-pins-generator/pkg/logger"
)

// Overlay is one image to place on the canvas at a target rectangle.
type Overlay struct {
	Image []byte
	Rect  flair.Rect
}

// DecodeError reports undecodable input bytes. Index is -1 for the base
// image, otherwise the position of the offending overlay.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode base image: %v", e.Err)
	}
	return fmt.Sprintf("decode overlay %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Service renders composite badge images.
type Service struct {
	log *logger.Logger
}

// New constructs a compositor.
func New(log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("compositor")
	}
	return &Service{log: log}
}

// Composite decodes the base image, normalizes it to the canvas size, places
// each overlay in list order (contain-fit inside its rectangle, transparent
// padding, centered), and returns the flattened result encoded as PNG.
// Any decode failure aborts the whole operation.
func (s *Service) Composite(base []byte, overlays []Overlay) ([]byte, error) {
	baseImg, _, err := image.Decode(bytes.NewReader(base))
	if err != nil {
		return nil, &DecodeError{Index: -1, Err: err}
	}

	// Normalize to the square canvas. Catmull-Rom resampling is
	// deterministic for identical inputs.
	canvas := image.NewNRGBA(image.Rect(0, 0, flair.CanvasSize, flair.CanvasSize))
	xdraw.CatmullRom.Scale(canvas, canvas.Bounds(), baseImg, baseImg.Bounds(), xdraw.Src, nil)

	for i, ov := range overlays {
		img, _, err := image.Decode(bytes.NewReader(ov.Image))
		if err != nil {
			return nil, &DecodeError{Index: i, Err: err}
		}
		dst := containRect(ov.Rect, img.Bounds().Dx(), img.Bounds().Dy())
		// Over preserves canvas pixels outside the scaled image, which is
		// what gives the rectangle its transparent padding.
		xdraw.CatmullRom.Scale(canvas, dst, img, img.Bounds(), xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}
	s.log.Debugf("composited %d overlays into %d bytes", len(overlays), buf.Len())
	return buf.Bytes(), nil
}

// containRect scales (w, h) to fit inside rect preserving aspect ratio and
// centers the result, never cropping or distorting the source.
func containRect(rect flair.Rect, w, h int) image.Rectangle {
	if w <= 0 || h <= 0 {
		return image.Rect(rect.X, rect.Y, rect.X, rect.Y)
	}

	scaledW := rect.Width
	scaledH := h * rect.Width / w
	if scaledH > rect.Height {
		scaledH = rect.Height
		scaledW = w * rect.Height / h
	}
	if scaledW < 1 {
		scaledW = 1
	}
	if scaledH < 1 {
		scaledH = 1
	}

	x := rect.X + (rect.Width-scaledW)/2
	y := rect.Y + (rect.Height-scaledH)/2
	return image.Rect(x, y, x+scaledW, y+scaledH)
}
