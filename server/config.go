package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/labstack/gommon/bytes"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	BodyLimit  string

	Detector        string
	CascadePath     string
	PigoCascadePath string

	Classifier  string
	ModelPath   string
	ONNXLib     string
	ONNXInput   string
	ONNXOutput  string
	ONNXThreads int
	Softmax     bool

	RedisAddr     string
	RedisMaxConns int
	RedisTTL      time.Duration

	SentryDSN string
}

func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg := &Config{}
	fs.StringVar(&cfg.ListenAddr, "listen-addr", getEnv("LISTEN_ADDR", ":1323"), "dirección de escucha")
	fs.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "debug, info, warn o error")
	fs.StringVar(&cfg.BodyLimit, "body-limit", getEnv("BODY_LIMIT", "10M"), "tamaño máximo de la solicitud")
	fs.StringVar(&cfg.Detector, "detector", getEnv("DETECTOR", "opencv"), "detector de rostros: opencv o pigo")
	fs.StringVar(&cfg.CascadePath, "cascade", getEnv("CASCADE_PATH", "opencv_models/haarcascade_frontalface_default.xml"), "haarcascade de OpenCV")
	fs.StringVar(&cfg.PigoCascadePath, "pigo-cascade", getEnv("PIGO_CASCADE_PATH", "models/facefinder"), "cascade facefinder de pigo")
	fs.StringVar(&cfg.Classifier, "classifier", getEnv("CLASSIFIER", "onnx"), "runtime del modelo: onnx u opencv")
	fs.StringVar(&cfg.ModelPath, "model", getEnv("MODEL_PATH", "models/emotion.onnx"), "modelo de emociones en ONNX")
	fs.StringVar(&cfg.ONNXLib, "onnx-lib", getEnv("ONNX_LIB", ""), "ruta a libonnxruntime")
	fs.StringVar(&cfg.ONNXInput, "onnx-input", getEnv("ONNX_INPUT", ""), "nombre de la entrada del modelo")
	fs.StringVar(&cfg.ONNXOutput, "onnx-output", getEnv("ONNX_OUTPUT", ""), "nombre de la salida del modelo")
	fs.IntVar(&cfg.ONNXThreads, "onnx-threads", getEnvInt("ONNX_THREADS", 0), "hilos intra-op, 0 usa el valor por defecto")
	fs.BoolVar(&cfg.Softmax, "softmax", getEnvBool("SOFTMAX", false), "aplicar softmax a la salida del modelo")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", getEnv("REDIS_ADDR", ""), "Redis para cache de resultados, vacío lo deshabilita")
	fs.IntVar(&cfg.RedisMaxConns, "redis-max-connections", getEnvInt("REDIS_MAX_CONNECTIONS", 10), "conexiones máximas a Redis")
	fs.DurationVar(&cfg.RedisTTL, "redis-ttl", getEnvDuration("REDIS_TTL", time.Hour), "vida de los resultados en cache")
	fs.StringVar(&cfg.SentryDSN, "sentry-dsn", getEnv("SENTRY_DSN", ""), "DSN de Sentry")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Detector {
	case "opencv", "pigo":
	default:
		return fmt.Errorf("detector desconocido %q", c.Detector)
	}
	switch c.Classifier {
	case "onnx", "opencv":
	default:
		return fmt.Errorf("clasificador desconocido %q", c.Classifier)
	}
	if _, err := bytes.Parse(c.BodyLimit); err != nil {
		return fmt.Errorf("body limit inválido %q: %w", c.BodyLimit, err)
	}
	if c.ModelPath == "" {
		return fmt.Errorf("ruta de modelo vacía")
	}
	return nil
}

// CacheNamespace identifies the model file and pipeline settings that
// produce a prediction.
func (c *Config) CacheNamespace() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", c.Detector, c.CascadePath, c.PigoCascadePath, c.Classifier)
	f, err := os.Open(c.ModelPath)
	if err == nil {
		defer f.Close()
		_, err = io.Copy(h, f)
	}
	if err != nil {
		fmt.Fprintf(h, "path:%s", c.ModelPath)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}
