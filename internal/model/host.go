package model

import "errors"

// ErrNotLoaded is the cause reported by a zero Host.
var ErrNotLoaded = errors.New("model is not loaded")

// Inferencer runs one forward pass over a preprocessed input tensor and
// returns the raw class scores.
type Inferencer interface {
	Infer(input []float32) ([]float32, error)
}

// Host is either Loaded with a model or Unavailable with the load failure.
// It is built once at startup and never changes afterwards.
type Host struct {
	model Inferencer
	cause error
}

// Loaded returns a Host serving m.
func Loaded(m Inferencer) Host {
	return Host{model: m}
}

// Unavailable returns a Host that refuses to serve, remembering why.
func Unavailable(cause error) Host {
	if cause == nil {
		cause = ErrNotLoaded
	}
	return Host{cause: cause}
}

// Model returns the loaded model and true, or nil and false when unavailable.
func (h Host) Model() (Inferencer, bool) {
	return h.model, h.model != nil
}

// Cause reports why the host is unavailable. It is nil for a loaded host.
func (h Host) Cause() error {
	if h.model != nil {
		return nil
	}
	if h.cause == nil {
		return ErrNotLoaded
	}
	return h.cause
}
