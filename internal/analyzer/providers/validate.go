package providers

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/ibeckermayer/threadsense/internal/types"
)

// probabilityTolerance bounds how far the probabilities may sum from 1
const probabilityTolerance = 0.01

// Validate checks that s is a well formed classification
func Validate(s types.Sentiment) error {
	if !s.Label.Valid() {
		return fmt.Errorf("unknown label %q", s.Label)
	}
	if s.Confidence < 0 || s.Confidence > 1 || math.IsNaN(s.Confidence) {
		return fmt.Errorf("confidence %v out of range", s.Confidence)
	}
	if len(s.Probabilities) == 0 {
		return nil
	}

	sum := 0.0
	for label, p := range s.Probabilities {
		if !label.Valid() {
			return fmt.Errorf("probability for unknown label %q", label)
		}
		if p < 0 || p > 1 {
			return fmt.Errorf("probability %v for %s out of range", p, label)
		}
		sum += p
	}
	if math.Abs(sum-1) > probabilityTolerance {
		return fmt.Errorf("probabilities sum to %.4f", sum)
	}
	return nil
}

// ParseSentiment decodes a {sentiment, confidence, probabilities} object.
// Labels are matched case-insensitively and normalized.
func ParseSentiment(data []byte) (types.Sentiment, error) {
	var raw struct {
		Sentiment     string             `json:"sentiment"`
		Confidence    float64            `json:"confidence"`
		Probabilities map[string]float64 `json:"probabilities"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.Sentiment{}, fmt.Errorf("failed to parse sentiment JSON: %w (response was: %.500s)", err, string(data))
	}

	s := types.Sentiment{
		Label:      normalizeLabel(raw.Sentiment),
		Confidence: raw.Confidence,
	}
	if len(raw.Probabilities) > 0 {
		s.Probabilities = make(map[types.Label]float64, len(raw.Probabilities))
		for k, v := range raw.Probabilities {
			s.Probabilities[normalizeLabel(k)] = v
		}
	}
	return s, nil
}

func normalizeLabel(s string) types.Label {
	s = strings.TrimSpace(s)
	for _, l := range types.Labels {
		if strings.EqualFold(s, string(l)) {
			return l
		}
	}
	return types.Label(s)
}
