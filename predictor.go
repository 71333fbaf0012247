package facemotion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
)

// Predictor runs the whole pipeline: extract the largest face, classify it
// and pick the most likely emotion.
type Predictor struct {
	extractor  Extractor
	classifier Classifier
	cache      Cache
	namespace  string
	softmax    bool
}

type PredictorOption func(*Predictor)

func WithCache(c Cache) PredictorOption {
	return func(p *Predictor) { p.cache = c }
}

// WithCacheNamespace mixes ns into every cache key. It should identify the
// model and pipeline settings so results from another model are not reused.
func WithCacheNamespace(ns string) PredictorOption {
	return func(p *Predictor) { p.namespace = ns }
}

// WithSoftmax treats the classifier output as logits.
func WithSoftmax(on bool) PredictorOption {
	return func(p *Predictor) { p.softmax = on }
}

func NewPredictor(e Extractor, c Classifier, opts ...PredictorOption) (*Predictor, error) {
	if e == nil || c == nil {
		return nil, errors.New("extractor y clasificador requeridos")
	}
	p := &Predictor{extractor: e, classifier: c}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Predictor) Predict(ctx context.Context, img []byte) (Prediction, error) {
	var key string
	if p.cache != nil && len(img) > 0 {
		key = p.cacheKey(img)
		cached, ok, err := p.cache.Get(ctx, key)
		if err != nil {
			slog.Warn("cache no disponible", "err", err)
		} else if ok {
			return cached, nil
		}
	}

	face, err := p.extractor.Extract(ctx, img)
	if err != nil {
		return Prediction{}, err
	}
	scores, err := p.classifier.Classify(ctx, face)
	if err != nil {
		return Prediction{}, err
	}
	pred, err := NewPrediction(scores, p.softmax)
	if err != nil {
		return Prediction{}, err
	}
	slog.Debug("predicción", "emotion", pred.Emotion, "confidence", pred.Confidence, "box", face.Box)

	if key != "" {
		if err := p.cache.Set(ctx, key, pred); err != nil {
			slog.Warn("no se pudo guardar en cache", "err", err)
		}
	}
	return pred, nil
}

func (p *Predictor) Close() {
	p.extractor.Close()
	p.classifier.Close()
	if p.cache != nil {
		if err := p.cache.Close(); err != nil {
			slog.Warn("cerrar cache", "err", err)
		}
	}
}

func (p *Predictor) cacheKey(img []byte) string {
	h := sha256.New()
	h.Write([]byte(p.namespace))
	if p.softmax {
		h.Write([]byte{0, 1})
	} else {
		h.Write([]byte{0, 0})
	}
	h.Write(img)
	return hex.EncodeToString(h.Sum(nil))
}
