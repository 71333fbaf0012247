package facemotion

import (
	"fmt"
	"math"
)

type Emotion int

// Order matches the classifier's output vector.
const (
	Angry Emotion = iota
	Disgust
	Fear
	Happy
	Sad
	Surprise
	Neutral
)

var emotionNames = [...]string{"Angry", "Disgust", "Fear", "Happy", "Sad", "Surprise", "Neutral"}

// NumEmotions is the size of the classifier output.
const NumEmotions = len(emotionNames)

func Emotions() []Emotion {
	out := make([]Emotion, NumEmotions)
	for i := range out {
		out[i] = Emotion(i)
	}
	return out
}

func (e Emotion) String() string {
	if e < 0 || int(e) >= NumEmotions {
		return fmt.Sprintf("Emotion(%d)", int(e))
	}
	return emotionNames[e]
}

func (e Emotion) Valid() bool { return e >= 0 && int(e) < NumEmotions }

func (e Emotion) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("emoción inválida %d", int(e))
	}
	return []byte(e.String()), nil
}

func (e *Emotion) UnmarshalText(b []byte) error {
	for i, n := range emotionNames {
		if n == string(b) {
			*e = Emotion(i)
			return nil
		}
	}
	return fmt.Errorf("emoción desconocida %q", b)
}

type Prediction struct {
	Emotion    Emotion   `json:"emotion"`
	Confidence float32   `json:"confidence"`
	Scores     []float32 `json:"scores,omitempty"`
}

// NewPrediction picks the arg-max class of scores. With softmax set the
// scores are treated as logits.
func NewPrediction(scores []float32, softmax bool) (Prediction, error) {
	if len(scores) < NumEmotions {
		return Prediction{}, fmt.Errorf("%w: %d valores, se esperaban %d", ErrBadOutput, len(scores), NumEmotions)
	}
	probs := make([]float32, NumEmotions)
	copy(probs, scores[:NumEmotions])
	if softmax {
		softmaxInPlace(probs)
	}
	for _, v := range probs {
		if math.IsNaN(float64(v)) {
			return Prediction{}, fmt.Errorf("%w: NaN", ErrBadOutput)
		}
	}

	maxIdx := 0
	for i, v := range probs {
		if v > probs[maxIdx] {
			maxIdx = i
		}
	}
	return Prediction{
		Emotion:    Emotion(maxIdx),
		Confidence: clampUnit(probs[maxIdx]),
		Scores:     probs,
	}, nil
}

func softmaxInPlace(v []float32) {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - m))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}

func clampUnit(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
