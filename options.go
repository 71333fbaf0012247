package facemotion

import "errors"

// FaceSize is the side of the square face fed to the classifier.
const FaceSize = 48

type Options struct {
	ScaleFactor  float64
	MinNeighbors int
	MinFaceSize  int

	// pigo only
	ShiftFactor  float64
	MaxFaceSize  int
	IoUThreshold float64
	QThreshold   float32
}

func DefaultOptions() Options {
	return Options{
		ScaleFactor:  1.1,
		MinNeighbors: 5,
		MinFaceSize:  60,
		ShiftFactor:  0.1,
		MaxFaceSize:  2000,
		IoUThreshold: 0.2,
		QThreshold:   5.0,
	}
}

func (o Options) Validate() error {
	if o.ScaleFactor <= 1 {
		return errors.New("scale factor debe ser mayor a 1")
	}
	if o.MinNeighbors < 0 {
		return errors.New("min neighbors inválido")
	}
	if o.MinFaceSize <= 0 {
		return errors.New("tamaño mínimo de rostro inválido")
	}
	if o.MaxFaceSize > 0 && o.MaxFaceSize < o.MinFaceSize {
		return errors.New("tamaño máximo menor al mínimo")
	}
	return nil
}
