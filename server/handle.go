package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	raven "github.com/getsentry/raven-go"
	"github.com/labstack/echo/v4"
	"github.com/user0608/facemotion"
	"github.com/user0608/goones/answer"
	"github.com/user0608/goones/errs"
)

const noFaceMessage = "no se detectó un rostro en la imagen"

var captureError = func(err error, tags map[string]string) {
	raven.CaptureError(err, tags)
}

type predictor interface {
	Predict(ctx context.Context, img []byte) (facemotion.Prediction, error)
}

type predictResponse struct {
	Emotion    string  `json:"emotion"`
	Confidence float32 `json:"confidence"`
}

func NewPredictHandle(p predictor) echo.HandlerFunc {
	return func(c echo.Context) error {
		content, err := readUpload(c)
		if err != nil || len(content) == 0 {
			slog.Debug("archivo no recibido", "err", err)
			return answer.Err(c, errs.BadRequestDirect(noFaceMessage))
		}
		// Format is left to the decoder: OpenCV reads PNM, JPEG 2000 and
		// HDR, none of which mimetype recognizes.
		slog.Debug("archivo recibido", "mime", mimetype.Detect(content).String(), "bytes", len(content))

		pred, err := p.Predict(c.Request().Context(), content)
		if err != nil {
			if errors.Is(err, facemotion.ErrDecode) || errors.Is(err, facemotion.ErrNoFace) {
				slog.Info("sin resultado", "err", err, "bytes", len(content))
				return answer.Err(c, errs.BadRequestDirect(noFaceMessage))
			}
			if errors.Is(err, context.Canceled) {
				slog.Info("solicitud cancelada", "err", err)
			} else {
				slog.Error("predicción falló", "err", err)
				captureError(err, map[string]string{"endpoint": "/predict"})
			}
			return answer.Err(c, errs.InternalErrorDirect("no se pudo procesar la imagen"))
		}
		return c.JSON(http.StatusOK, predictResponse{
			Emotion:    pred.Emotion.String(),
			Confidence: pred.Confidence,
		})
	}
}

// readUpload reads the "file" form field, or the raw body when the
// request is not multipart.
func readUpload(c echo.Context) ([]byte, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		return io.ReadAll(c.Request().Body)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func healthHandle(c echo.Context) error {
	return c.JSON(http.StatusOK, "OK")
}
