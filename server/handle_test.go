package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/user0608/facemotion"
)

type fakePredictor struct {
	pred  facemotion.Prediction
	err   error
	calls int
}

func (f *fakePredictor) Predict(ctx context.Context, img []byte) (facemotion.Prediction, error) {
	f.calls++
	return f.pred, f.err
}

func testServer(t *testing.T, p predictor) string {
	t.Helper()
	cfg, err := LoadConfig(nil)
	ok(t, err)
	srv := httptest.NewServer(newServer(cfg, p))
	t.Cleanup(srv.Close)
	return srv.URL
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	ok(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func postFile(t *testing.T, url string, content []byte) *resty.Response {
	t.Helper()
	resp, err := resty.New().R().
		SetFileReader("file", "face.png", bytes.NewReader(content)).
		Post(url + "/predict")
	ok(t, err)
	return resp
}

func TestPredictSuccess(t *testing.T) {
	fake := &fakePredictor{pred: facemotion.Prediction{Emotion: facemotion.Happy, Confidence: 0.9}}
	url := testServer(t, fake)

	var res predictResponse
	resp, err := resty.New().R().
		SetFileReader("file", "face.png", bytes.NewReader(pngBytes(t))).
		SetResult(&res).
		Post(url + "/predict")
	ok(t, err)
	equals(t, resp.StatusCode(), http.StatusOK)
	equals(t, res.Emotion, "Happy")
	equals(t, res.Confidence, float32(0.9))
	equals(t, fake.calls, 1)
}

func TestPredictRawBody(t *testing.T) {
	fake := &fakePredictor{pred: facemotion.Prediction{Emotion: facemotion.Neutral, Confidence: 0.4}}
	url := testServer(t, fake)

	resp, err := resty.New().R().
		SetHeader("Content-Type", "image/png").
		SetBody(pngBytes(t)).
		Post(url + "/predict")
	ok(t, err)
	equals(t, resp.StatusCode(), http.StatusOK)
}

func TestPredictFailuresShareResponse(t *testing.T) {
	noFace := &fakePredictor{err: facemotion.ErrNoFace}
	url := testServer(t, noFace)

	noFaceResp := postFile(t, url, pngBytes(t))
	equals(t, noFaceResp.StatusCode(), http.StatusBadRequest)

	decode := &fakePredictor{err: facemotion.ErrDecode}
	decodeResp := postFile(t, testServer(t, decode), pngBytes(t))
	equals(t, decodeResp.StatusCode(), http.StatusBadRequest)
	equals(t, string(decodeResp.Body()), string(noFaceResp.Body()))

	corrupt := &fakePredictor{err: facemotion.ErrDecode}
	corruptResp := postFile(t, testServer(t, corrupt), []byte("\x00\x01 no es una imagen"))
	equals(t, corruptResp.StatusCode(), http.StatusBadRequest)
	equals(t, string(corruptResp.Body()), string(noFaceResp.Body()))
	equals(t, corrupt.calls, 1)
}

func TestPredictUnrecognizedFormatReachesDecoder(t *testing.T) {
	// binary PPM and PGM are decoded by OpenCV but unknown to mimetype
	images := map[string][]byte{
		"face.ppm": append([]byte("P6\n2 2\n255\n"), bytes.Repeat([]byte{200, 180, 160}, 4)...),
		"face.pgm": append([]byte("P5\n2 2\n255\n"), 10, 20, 30, 40),
	}
	for name, content := range images {
		t.Run(name, func(t *testing.T) {
			fake := &fakePredictor{pred: facemotion.Prediction{Emotion: facemotion.Sad, Confidence: 0.6}}
			url := testServer(t, fake)

			var res predictResponse
			resp, err := resty.New().R().
				SetFileReader("file", name, bytes.NewReader(content)).
				SetResult(&res).
				Post(url + "/predict")
			ok(t, err)
			equals(t, resp.StatusCode(), http.StatusOK)
			equals(t, res.Emotion, "Sad")
			equals(t, fake.calls, 1)
		})
	}
}

func TestPredictMissingFile(t *testing.T) {
	fake := &fakePredictor{}
	url := testServer(t, fake)

	resp, err := resty.New().R().
		SetFormData(map[string]string{"other": "x"}).
		SetMultipartField("image", "face.png", "image/png", bytes.NewReader(pngBytes(t))).
		Post(url + "/predict")
	ok(t, err)
	equals(t, resp.StatusCode(), http.StatusBadRequest)
	equals(t, fake.calls, 0)
}

func stubCapture(t *testing.T) *int {
	t.Helper()
	captured := 0
	orig := captureError
	captureError = func(err error, tags map[string]string) { captured++ }
	t.Cleanup(func() { captureError = orig })
	return &captured
}

func TestPredictInternalError(t *testing.T) {
	captured := stubCapture(t)
	fake := &fakePredictor{err: errors.New("inferencia falló")}
	resp := postFile(t, testServer(t, fake), pngBytes(t))
	equals(t, resp.StatusCode(), http.StatusInternalServerError)
	equals(t, *captured, 1)
}

func TestPredictCancelledNotReported(t *testing.T) {
	captured := stubCapture(t)
	fake := &fakePredictor{err: fmt.Errorf("clasificar: %w", context.Canceled)}
	resp := postFile(t, testServer(t, fake), pngBytes(t))
	equals(t, resp.StatusCode(), http.StatusInternalServerError)
	equals(t, *captured, 0)
}

func TestCORSPreflight(t *testing.T) {
	url := testServer(t, &fakePredictor{})

	resp, err := resty.New().R().
		SetHeader("Origin", "http://example.com").
		SetHeader("Access-Control-Request-Method", http.MethodPost).
		SetHeader("Access-Control-Request-Headers", "X-Custom").
		Options(url + "/predict")
	ok(t, err)
	equals(t, resp.StatusCode(), http.StatusNoContent)
	equals(t, resp.Header().Get("Access-Control-Allow-Origin"), "*")
}

func TestHealth(t *testing.T) {
	url := testServer(t, &fakePredictor{})
	resp, err := resty.New().R().Get(url + "/health")
	ok(t, err)
	equals(t, resp.StatusCode(), http.StatusOK)
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatal("falta X-Request-Id")
	}
}
