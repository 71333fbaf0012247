package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"log/slog"

	"github.com/user0608/facemotion"
)

func main() {
	cascade := flag.String("cascade", "opencv_models/haarcascade_frontalface_default.xml", "haarcascade de OpenCV")
	model := flag.String("model", "models/emotion.onnx", "modelo de emociones en ONNX")
	input := flag.String("in", "input.jpg", "imagen de entrada")
	flag.Parse()

	ex, err := facemotion.NewCascadeExtractor(*cascade, nil)
	if err != nil {
		slog.Error("init detector", "err", err)
		return
	}
	cls, err := facemotion.NewONNXClassifier(facemotion.ONNXConfig{ModelPath: *model})
	if err != nil {
		ex.Close()
		slog.Error("init clasificador", "err", err)
		return
	}
	p, err := facemotion.NewPredictor(ex, cls)
	if err != nil {
		slog.Error("init", "err", err)
		return
	}
	defer p.Close()

	in, err := os.ReadFile(*input)
	if err != nil {
		slog.Error("leer input", "err", err)
		return
	}
	start := time.Now()
	pred, err := p.Predict(context.Background(), in)
	if err != nil {
		slog.Error("procesar", "err", err)
		return
	}
	fmt.Printf("%s %.4f\n", pred.Emotion, pred.Confidence)
	fmt.Println("duration (s):", time.Since(start).Seconds())
}
