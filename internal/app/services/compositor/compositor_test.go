package compositor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/saltoriousSIG/peeples-pins-generator/internal/app/domain/flair"
)

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func decodeOutput(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return img
}

func pixelNear(t *testing.T, img image.Image, x, y int, want color.NRGBA) {
	t.Helper()
	got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	for _, d := range []int{int(got.R) - int(want.R), int(got.G) - int(want.G), int(got.B) - int(want.B), int(got.A) - int(want.A)} {
		if d < -2 || d > 2 {
			t.Fatalf("pixel (%d,%d) = %v, want ~%v", x, y, got, want)
		}
	}
}

var (
	red   = color.NRGBA{R: 200, A: 255}
	green = color.NRGBA{G: 200, A: 255}
	blue  = color.NRGBA{B: 200, A: 255}
)

func TestCompositeIsDeterministic(t *testing.T) {
	svc := New(nil)
	base := solidPNG(t, 512, 512, red)
	rect, _ := flair.RectangleFor(1)
	overlays := []Overlay{{Image: solidPNG(t, 64, 64, green), Rect: rect}}

	first, err := svc.Composite(base, overlays)
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	second, err := svc.Composite(base, overlays)
	if err != nil {
		t.Fatalf("composite again: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("identical inputs produced different output bytes")
	}
}

func TestOutputAlwaysCanvasSized(t *testing.T) {
	svc := New(nil)
	for _, dims := range [][2]int{{512, 512}, {1024, 1024}, {300, 200}, {17, 31}} {
		out, err := svc.Composite(solidPNG(t, dims[0], dims[1], red), nil)
		if err != nil {
			t.Fatalf("composite %dx%d: %v", dims[0], dims[1], err)
		}
		img := decodeOutput(t, out)
		b := img.Bounds()
		if b.Dx() != flair.CanvasSize || b.Dy() != flair.CanvasSize {
			t.Fatalf("base %dx%d: output is %dx%d, want %dx%d", dims[0], dims[1], b.Dx(), b.Dy(), flair.CanvasSize, flair.CanvasSize)
		}
	}
}

func TestEmptyOverlayListReturnsNormalizedBase(t *testing.T) {
	svc := New(nil)
	out, err := svc.Composite(solidPNG(t, 512, 512, blue), nil)
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	img := decodeOutput(t, out)
	for _, p := range [][2]int{{0, 0}, {511, 511}, {512, 512}, {1023, 1023}, {100, 900}} {
		pixelNear(t, img, p[0], p[1], blue)
	}
}

func TestOverlayPlacedInsideSlotRectangle(t *testing.T) {
	svc := New(nil)
	rect, err := flair.RectangleFor(1)
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}

	out, err := svc.Composite(solidPNG(t, 512, 512, red), []Overlay{
		{Image: solidPNG(t, 64, 64, green), Rect: rect},
	})
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	img := decodeOutput(t, out)

	// Center of the slot is flair, well outside it is untouched base.
	pixelNear(t, img, rect.X+rect.Width/2, rect.Y+rect.Height/2, green)
	pixelNear(t, img, rect.X-20, rect.Y-20, red)
	pixelNear(t, img, 10, 10, red)
}

func TestContainFitPadsInsteadOfStretching(t *testing.T) {
	svc := New(nil)
	rect, _ := flair.RectangleFor(0)

	// A 2:1 overlay must scale to 75x37 centered in the 75x75 box, leaving
	// the top and bottom bands showing the base.
	out, err := svc.Composite(solidPNG(t, 200, 100, red), []Overlay{
		{Image: solidPNG(t, 100, 50, green), Rect: rect},
	})
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	img := decodeOutput(t, out)

	pixelNear(t, img, rect.X+rect.Width/2, rect.Y+rect.Height/2, green)
	pixelNear(t, img, rect.X+rect.Width/2, rect.Y+3, red)
	pixelNear(t, img, rect.X+rect.Width/2, rect.Y+rect.Height-3, red)
}

func TestLaterOverlayPaintsOverEarlier(t *testing.T) {
	svc := New(nil)

	// Deliberately overlapping rectangles; slot rectangles never overlap in
	// the real table, but paint order must still be well defined.
	a := flair.Rect{X: 100, Y: 100, Width: 80, Height: 80}
	b := flair.Rect{X: 140, Y: 140, Width: 80, Height: 80}

	out, err := svc.Composite(solidPNG(t, 256, 256, red), []Overlay{
		{Image: solidPNG(t, 40, 40, green), Rect: a},
		{Image: solidPNG(t, 40, 40, blue), Rect: b},
	})
	if err != nil {
		t.Fatalf("composite: %v", err)
	}
	img := decodeOutput(t, out)

	// The overlap region belongs to the later (blue) overlay.
	pixelNear(t, img, 160, 160, blue)
	// A-only region keeps the earlier overlay.
	pixelNear(t, img, 110, 110, green)
}

func TestDecodeErrors(t *testing.T) {
	svc := New(nil)

	_, err := svc.Composite([]byte("not an image"), nil)
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) || decodeErr.Index != -1 {
		t.Fatalf("expected base DecodeError, got %v", err)
	}

	rect, _ := flair.RectangleFor(0)
	base := solidPNG(t, 64, 64, red)
	_, err = svc.Composite(base, []Overlay{
		{Image: solidPNG(t, 8, 8, green), Rect: rect},
		{Image: []byte("garbage"), Rect: rect},
	})
	if !errors.As(err, &decodeErr) || decodeErr.Index != 1 {
		t.Fatalf("expected overlay DecodeError at index 1, got %v", err)
	}
}

func TestJPEGBaseAccepted(t *testing.T) {
	svc := New(nil)

	// Encode a JPEG base through the stdlib encoder to confirm the decoder
	// registration covers non-PNG gateways content.
	img := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetNRGBA(x, y, red)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}

	out, err := svc.Composite(buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("composite jpeg base: %v", err)
	}
	b := decodeOutput(t, out).Bounds()
	if b.Dx() != flair.CanvasSize {
		t.Fatalf("unexpected output width %d", b.Dx())
	}
}
