package facemotion

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/nfnt/resize"
)

// PigoExtractor is a pure Go extractor for hosts without OpenCV. It
// uses a pigo "facefinder" cascade instead of a Haar cascade.
type PigoExtractor struct {
	opts       Options
	classifier *pigo.Pigo
	// detect defaults to runCascade.
	detect func(pixels []uint8, rows, cols int) []image.Rectangle
}

func NewPigoExtractor(cascadePath string, opts *Options) (*PigoExtractor, error) {
	cascade, err := os.ReadFile(cascadePath)
	if err != nil {
		slog.Error("no se pudo leer cascade pigo", "path", cascadePath, "err", err)
		return nil, fmt.Errorf("leer cascade pigo: %w", err)
	}
	return NewPigoExtractorFromBytes(cascade, opts)
}

func NewPigoExtractorFromBytes(cascade []byte, opts *Options) (*PigoExtractor, error) {
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack cascade pigo: %w", err)
	}
	return &PigoExtractor{opts: *opts, classifier: classifier}, nil
}

func (p *PigoExtractor) Close() {}

func (p *PigoExtractor) Extract(ctx context.Context, imgBytes []byte) (*Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(imgBytes) == 0 {
		return nil, ErrDecode
	}
	img, err := imaging.Decode(bytes.NewReader(imgBytes), imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("decode falló", "err", err)
		return nil, ErrDecode
	}

	src := pigo.ImgToNRGBA(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	if cols == 0 || rows == 0 {
		return nil, ErrDecode
	}
	pixels := pigo.RgbToGrayscale(src)

	detect := p.detect
	if detect == nil {
		detect = p.runCascade
	}
	rects := detect(pixels, rows, cols)
	slog.Debug("rostros detectados", "n", len(rects))

	best, ok := largestFace(rects)
	if !ok {
		return nil, ErrNoFace
	}
	box := clipRect(best, cols, rows)
	if box.Empty() {
		return nil, ErrNoFace
	}

	gray := &image.Gray{Pix: pixels, Stride: cols, Rect: image.Rect(0, 0, cols, rows)}
	crop := imaging.Crop(gray, box)
	small := resize.Resize(FaceSize, FaceSize, crop, resize.Bilinear)

	return &Face{Box: box, Pixels: normalize(grayBytes(small))}, nil
}

func (p *PigoExtractor) runCascade(pixels []uint8, rows, cols int) []image.Rectangle {
	maxSize := p.opts.MaxFaceSize
	if maxSize <= 0 {
		maxSize = max(rows, cols)
	}
	params := pigo.CascadeParams{
		MinSize:     p.opts.MinFaceSize,
		MaxSize:     maxSize,
		ShiftFactor: p.opts.ShiftFactor,
		ScaleFactor: p.opts.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}
	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.opts.IoUThreshold)

	var rects []image.Rectangle
	for _, d := range dets {
		if d.Q <= p.opts.QThreshold {
			continue
		}
		half := d.Scale / 2
		rects = append(rects, image.Rect(d.Col-half, d.Row-half, d.Col+half, d.Row+half))
	}
	return rects
}

func grayBytes(img image.Image) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out = append(out, color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
		}
	}
	return out
}
