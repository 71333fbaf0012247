package facemotion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

type ONNXConfig struct {
	ModelPath string
	// SharedLibraryPath points at libonnxruntime; empty uses the default lookup.
	SharedLibraryPath string
	// InputName and OutputName are read from the model when empty.
	InputName  string
	OutputName string
	Threads    int
}

// ONNXClassifier runs the emotion model with ONNX Runtime. The session
// binds a single pair of tensors, so calls are serialized.
type ONNXClassifier struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

func NewONNXClassifier(cfg ONNXConfig) (*ONNXClassifier, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("modelo requerido")
	}
	ownsEnv := false
	if !ort.IsInitialized() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("inicializar onnxruntime: %w", err)
		}
		ownsEnv = true
	}
	c, err := newONNXSession(cfg)
	if err != nil {
		if ownsEnv {
			ort.DestroyEnvironment()
		}
		return nil, err
	}
	return c, nil
}

func newONNXSession(cfg ONNXConfig) (*ONNXClassifier, error) {
	inName, outName, err := resolveNames(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("modelo onnx", "path", cfg.ModelPath, "input", inName, "output", outName)

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, FaceSize, FaceSize, 1))
	if err != nil {
		return nil, fmt.Errorf("crear tensor de entrada: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(NumEmotions)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("crear tensor de salida: %w", err)
	}

	options, err := sessionOptions(cfg.Threads)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, err
	}
	if options != nil {
		defer options.Destroy()
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inName}, []string{outName},
		[]ort.Value{input}, []ort.Value{output},
		options)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("crear sesión onnx: %w", err)
	}
	return &ONNXClassifier{session: session, input: input, output: output}, nil
}

// sessionOptions returns nil when threads is not set, leaving the
// runtime defaults.
func sessionOptions(threads int) (*ort.SessionOptions, error) {
	if threads <= 0 {
		return nil, nil
	}
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("opciones de sesión: %w", err)
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("hilos intra-op: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		options.Destroy()
		return nil, fmt.Errorf("hilos inter-op: %w", err)
	}
	return options, nil
}

func resolveNames(cfg ONNXConfig) (string, string, error) {
	if cfg.InputName != "" && cfg.OutputName != "" {
		return cfg.InputName, cfg.OutputName, nil
	}
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return "", "", fmt.Errorf("leer entradas/salidas del modelo: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return "", "", fmt.Errorf("se esperaba 1 entrada y 1 salida, hay %d y %d", len(inputs), len(outputs))
	}
	if dims := outputs[0].Dimensions; len(dims) > 0 {
		if last := dims[len(dims)-1]; last > 0 && last != int64(NumEmotions) {
			return "", "", fmt.Errorf("%w: el modelo tiene %d clases", ErrBadOutput, last)
		}
	}
	in, out := cfg.InputName, cfg.OutputName
	if in == "" {
		in = inputs[0].Name
	}
	if out == "" {
		out = outputs[0].Name
	}
	return in, out, nil
}

func (c *ONNXClassifier) Classify(ctx context.Context, face *Face) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if face == nil || len(face.Pixels) != FaceSize*FaceSize {
		return nil, errors.New("rostro inválido")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.input.GetData(), face.Pixels)
	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("inferencia falló: %w", err)
	}
	scores := make([]float32, NumEmotions)
	copy(scores, c.output.GetData())
	return scores, nil
}

func (c *ONNXClassifier) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.input != nil {
		c.input.Destroy()
	}
	if c.output != nil {
		c.output.Destroy()
	}
	if c.session != nil {
		c.session.Destroy()
	}
	ort.DestroyEnvironment()
}
