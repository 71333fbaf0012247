// Package facemotion detects the largest face in an image and classifies
// its facial expression into one of seven emotions.
package facemotion

import (
	"context"
	"errors"
	"image"
)

var (
	ErrDecode    = errors.New("no se pudo decodificar la imagen")
	ErrNoFace    = errors.New("sin rostro")
	ErrBadOutput = errors.New("salida del modelo inválida")
)

// Face is a detected face ready for classification. Pixels holds
// FaceSize*FaceSize grayscale values in [0,1], row-major.
type Face struct {
	Box    image.Rectangle
	Pixels []float32
}

type Extractor interface {
	Extract(ctx context.Context, img []byte) (*Face, error)
	Close()
}

type Classifier interface {
	Classify(ctx context.Context, face *Face) ([]float32, error)
	Close()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// largestFace returns the rectangle with the biggest area. Ties keep the
// first one found.
func largestFace(rects []image.Rectangle) (image.Rectangle, bool) {
	if len(rects) == 0 {
		return image.Rectangle{}, false
	}
	best := rects[0]
	bestArea := best.Dx() * best.Dy()
	for i := 1; i < len(rects); i++ {
		a := rects[i].Dx() * rects[i].Dy()
		if a > bestArea {
			best = rects[i]
			bestArea = a
		}
	}
	return best, true
}

func clipRect(r image.Rectangle, w, h int) image.Rectangle {
	return image.Rect(
		clamp(r.Min.X, 0, w),
		clamp(r.Min.Y, 0, h),
		clamp(r.Max.X, 0, w),
		clamp(r.Max.Y, 0, h),
	)
}

func normalize(gray []byte) []float32 {
	out := make([]float32, len(gray))
	for i, v := range gray {
		out[i] = float32(v) / 255.0
	}
	return out
}
