package facemotion

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
)

// Detector assets are not vendored. Point these variables at them to run
// the extractor tests.
func haarcascadePath(t *testing.T) string {
	p := os.Getenv("HAARCASCADE_PATH")
	if p == "" {
		p = "opencv_models/haarcascade_frontalface_default.xml"
	}
	if _, err := os.Stat(p); err != nil {
		t.Skipf("haarcascade no disponible: %s", p)
	}
	return p
}

func pigoCascadePath(t *testing.T) string {
	p := os.Getenv("PIGO_CASCADE_PATH")
	if p == "" {
		p = "models/facefinder"
	}
	if _, err := os.Stat(p); err != nil {
		t.Skipf("cascade pigo no disponible: %s", p)
	}
	return p
}

func blankPNG(t *testing.T, w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 128
	}
	img.Set(w/2, h/2, color.Gray{Y: 0})
	var buf bytes.Buffer
	ok(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func extractors(t *testing.T) map[string]Extractor {
	out := map[string]Extractor{}
	t.Run("setup", func(t *testing.T) {
		ex, err := NewCascadeExtractor(haarcascadePath(t), nil)
		ok(t, err)
		out["opencv"] = ex
	})
	t.Run("setup-pigo", func(t *testing.T) {
		ex, err := NewPigoExtractor(pigoCascadePath(t), nil)
		ok(t, err)
		out["pigo"] = ex
	})
	t.Cleanup(func() {
		for _, ex := range out {
			ex.Close()
		}
	})
	return out
}

func TestExtractCorruptBytes(t *testing.T) {
	for name, ex := range extractors(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ex.Extract(context.Background(), []byte("esto no es una imagen"))
			equals(t, errors.Is(err, ErrDecode), true)

			_, err = ex.Extract(context.Background(), nil)
			equals(t, errors.Is(err, ErrDecode), true)
		})
	}
}

func TestExtractNoFace(t *testing.T) {
	img := blankPNG(t, 320, 240)
	for name, ex := range extractors(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ex.Extract(context.Background(), img)
			equals(t, errors.Is(err, ErrNoFace), true)
		})
	}
}

func TestExtractCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, ex := range extractors(t) {
		t.Run(name, func(t *testing.T) {
			_, err := ex.Extract(ctx, blankPNG(t, 64, 64))
			equals(t, errors.Is(err, context.Canceled), true)
		})
	}
}

func TestNewCascadeExtractorMissingFile(t *testing.T) {
	_, err := NewCascadeExtractor("", nil)
	if err == nil {
		t.Fatal("debería fallar sin ruta")
	}
}

func TestNewPigoExtractorMissingFile(t *testing.T) {
	_, err := NewPigoExtractor("no-existe/facefinder", nil)
	if err == nil {
		t.Fatal("debería fallar con archivo inexistente")
	}
}
