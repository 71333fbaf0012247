package facemotion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// CascadeExtractor finds faces with an OpenCV Haar cascade.
type CascadeExtractor struct {
	opts Options
	mu   sync.Mutex
	cls  gocv.CascadeClassifier
}

func NewCascadeExtractor(modelPath string, opts *Options) (*CascadeExtractor, error) {
	if modelPath == "" {
		slog.Error("ruta de haarcascade vacía")
		return nil, errors.New("haarcascade requerido")
	}
	if opts == nil {
		def := DefaultOptions()
		opts = &def
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cls := gocv.NewCascadeClassifier()
	if !cls.Load(modelPath) {
		cls.Close()
		slog.Error("no se pudo cargar haarcascade", "path", modelPath)
		return nil, fmt.Errorf("carga de haarcascade falló: %s", modelPath)
	}
	return &CascadeExtractor{opts: *opts, cls: cls}, nil
}

func (c *CascadeExtractor) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cls.Close()
}

func (c *CascadeExtractor) Extract(ctx context.Context, imgBytes []byte) (*Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(imgBytes) == 0 {
		return nil, ErrDecode
	}
	img, err := gocv.IMDecode(imgBytes, gocv.IMReadColor)
	if err != nil {
		slog.Debug("imdecode falló", "err", err)
		return nil, ErrDecode
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrDecode
	}

	W, H := img.Cols(), img.Rows()
	if W == 0 || H == 0 {
		return nil, ErrDecode
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	minSize := image.Pt(c.opts.MinFaceSize, c.opts.MinFaceSize)
	c.mu.Lock()
	rects := c.cls.DetectMultiScaleWithParams(gray, c.opts.ScaleFactor, c.opts.MinNeighbors, 0, minSize, image.Pt(0, 0))
	c.mu.Unlock()
	slog.Debug("rostros detectados", "n", len(rects))

	best, ok := largestFace(rects)
	if !ok {
		return nil, ErrNoFace
	}
	box := clipRect(best, W, H)
	if box.Empty() {
		return nil, ErrNoFace
	}

	roi := gray.Region(box)
	defer roi.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.Resize(roi, &out, image.Pt(FaceSize, FaceSize), 0, 0, gocv.InterpolationLinear)

	return &Face{Box: box, Pixels: normalize(out.ToBytes())}, nil
}
