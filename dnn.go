package facemotion

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"gocv.io/x/gocv"
)

// DNNClassifier runs the emotion model through the OpenCV DNN module, for
// deployments that already ship OpenCV and not ONNX Runtime.
type DNNClassifier struct {
	mu  sync.Mutex
	net gocv.Net
}

func NewDNNClassifier(modelPath string) (*DNNClassifier, error) {
	if modelPath == "" {
		return nil, errors.New("modelo requerido")
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		net.Close()
		slog.Error("no se pudo cargar modelo dnn", "path", modelPath)
		return nil, fmt.Errorf("carga de modelo falló: %s", modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &DNNClassifier{net: net}, nil
}

func (c *DNNClassifier) Classify(ctx context.Context, face *Face) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if face == nil || len(face.Pixels) != FaceSize*FaceSize {
		return nil, errors.New("rostro inválido")
	}

	blob, err := gocv.NewMatWithSizesFromBytes([]int{1, FaceSize, FaceSize, 1}, gocv.MatTypeCV32F, float32Bytes(face.Pixels))
	if err != nil {
		return nil, fmt.Errorf("crear blob: %w", err)
	}
	defer blob.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.net.SetInput(blob, "")
	prob := c.net.Forward("")
	defer prob.Close()

	data, err := prob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("leer salida: %w", err)
	}
	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

func (c *DNNClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.net.Close()
}

func float32Bytes(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}
