package model

import (
	"errors"
	"fmt"
)

// ErrScoreCount is returned when the model output does not have one score per label.
var ErrScoreCount = errors.New("unexpected number of class scores")

// Classify resolves a score vector to the label at its arg-max. The first
// index wins on ties. The maximum score is returned as-is as the confidence.
func Classify(scores []float32) (Prediction, error) {
	if len(scores) != NumClasses {
		return Prediction{}, fmt.Errorf("%w: got %d, want %d", ErrScoreCount, len(scores), NumClasses)
	}

	maxIdx := 0
	maxVal := scores[0]
	for i, val := range scores[1:] {
		if val > maxVal {
			maxVal = val
			maxIdx = i + 1
		}
	}

	return Prediction{
		Class:      Labels[maxIdx],
		Confidence: maxVal,
	}, nil
}
