// Package predict runs the full classification pipeline for one upload:
// preprocessing, inference and label resolution.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Brownie44l1/alz-api/internal/model"
	"github.com/Brownie44l1/alz-api/internal/preprocess"
)

var (
	// ErrModelUnavailable is returned when the model failed to load at startup.
	ErrModelUnavailable = errors.New("model is not loaded")
	// ErrProcessing wraps decode, preprocessing and inference failures.
	ErrProcessing = errors.New("failed to process image")
)

// Service classifies uploaded images with the model held by a Host.
type Service struct {
	host model.Host
}

// NewService returns a Service backed by host.
func NewService(host model.Host) *Service {
	return &Service{host: host}
}

// Available reports whether predictions can be served.
func (s *Service) Available() bool {
	_, ok := s.host.Model()
	return ok
}

// Predict classifies raw image bytes. Inference runs without a deadline.
func (s *Service) Predict(_ context.Context, raw []byte) (model.Prediction, error) {
	m, ok := s.host.Model()
	if !ok {
		return model.Prediction{}, fmt.Errorf("%w: %w", ErrModelUnavailable, s.host.Cause())
	}

	input, err := preprocess.Tensor(raw)
	if err != nil {
		slog.Debug("preprocessing failed", "error", err, "bytes", len(raw))
		return model.Prediction{}, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	scores, err := m.Infer(input)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	pred, err := model.Classify(scores)
	if err != nil {
		return model.Prediction{}, fmt.Errorf("%w: %w", ErrProcessing, err)
	}
	return pred, nil
}
