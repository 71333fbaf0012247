package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/user0608/facemotion"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		slog.Error("configuración inválida", "err", err)
		os.Exit(2)
	}
	setupLogging(cfg.LogLevel)

	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			slog.Warn("sentry deshabilitado", "err", err)
		}
	}

	p, err := buildPredictor(cfg)
	if err != nil {
		slog.Error("init", "err", err)
		os.Exit(1)
	}
	defer p.Close()

	e := newServer(cfg, p)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("servidor iniciado", "addr", cfg.ListenAddr, "detector", cfg.Detector, "classifier", cfg.Classifier)
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
}

func newServer(cfg *Config, p predictor) *echo.Echo {
	e := echo.New()
	e.Logger.SetLevel(echoLevel(cfg.LogLevel))
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.Must(uuid.NewV4()).String() },
	}))
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			http.MethodGet, http.MethodHead, http.MethodPut, http.MethodPatch,
			http.MethodPost, http.MethodDelete, http.MethodOptions,
		},
		AllowHeaders: []string{"*"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/", healthHandle)
	e.GET("/health", healthHandle)
	e.POST("/predict", NewPredictHandle(p))
	return e
}

func buildPredictor(cfg *Config) (*facemotion.Predictor, error) {
	opts := facemotion.DefaultOptions()

	var extractor facemotion.Extractor
	var err error
	switch cfg.Detector {
	case "pigo":
		extractor, err = facemotion.NewPigoExtractor(cfg.PigoCascadePath, &opts)
	default:
		extractor, err = facemotion.NewCascadeExtractor(cfg.CascadePath, &opts)
	}
	if err != nil {
		return nil, fmt.Errorf("detector: %w", err)
	}

	var classifier facemotion.Classifier
	switch cfg.Classifier {
	case "opencv":
		classifier, err = facemotion.NewDNNClassifier(cfg.ModelPath)
	default:
		classifier, err = facemotion.NewONNXClassifier(facemotion.ONNXConfig{
			ModelPath:         cfg.ModelPath,
			SharedLibraryPath: cfg.ONNXLib,
			InputName:         cfg.ONNXInput,
			OutputName:        cfg.ONNXOutput,
			Threads:           cfg.ONNXThreads,
		})
	}
	if err != nil {
		extractor.Close()
		return nil, fmt.Errorf("clasificador: %w", err)
	}

	popts := []facemotion.PredictorOption{facemotion.WithSoftmax(cfg.Softmax)}
	if cfg.RedisAddr != "" {
		cache := facemotion.NewRedisCache(cfg.RedisAddr, cfg.RedisMaxConns, cfg.RedisTTL)
		if err := cache.Ping(); err != nil {
			slog.Warn("redis no disponible, se continúa sin cache", "addr", cfg.RedisAddr, "err", err)
			cache.Close()
		} else {
			popts = append(popts, facemotion.WithCache(cache), facemotion.WithCacheNamespace(cfg.CacheNamespace()))
		}
	}

	p, err := facemotion.NewPredictor(extractor, classifier, popts...)
	if err != nil {
		extractor.Close()
		classifier.Close()
		return nil, err
	}
	return p, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func echoLevel(level string) log.Lvl {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return log.INFO
	}
	switch {
	case lvl <= slog.LevelDebug:
		return log.DEBUG
	case lvl <= slog.LevelInfo:
		return log.INFO
	case lvl <= slog.LevelWarn:
		return log.WARN
	default:
		return log.ERROR
	}
}
