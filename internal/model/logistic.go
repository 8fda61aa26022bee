package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
)

var ErrArtifactMismatch = errors.New("model artifact does not match feature schema")

// Artifact is the on-disk form of a fitted logistic regression together
// with the standard scaler it was trained behind.
type Artifact struct {
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	Features     []string         `json:"features"`
	Coefficients []float64        `json:"coefficients"`
	Intercept    float64          `json:"intercept"`
	Scaler       *features.Scaler `json:"scaler,omitempty"`
}

type Logistic struct {
	Name    string
	Version string

	names     []string
	coef      []float64
	intercept float64
	pipeline  *features.Pipeline
}

func LoadLogistic(path string, base *features.Pipeline) (*Logistic, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model artifact: %w", err)
	}

	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decoding model artifact: %w", err)
	}

	return NewLogistic(a, base)
}

// NewLogistic validates a against the pipeline schema. A feature list that
// differs in names or order is rejected rather than silently mis-scored.
func NewLogistic(a Artifact, base *features.Pipeline) (*Logistic, error) {
	if !slices.Equal(a.Features, base.Names()) {
		return nil, fmt.Errorf("%w: artifact lists %d features, pipeline produces %d",
			ErrArtifactMismatch, len(a.Features), base.Len())
	}
	if len(a.Coefficients) != len(a.Features) {
		return nil, fmt.Errorf("%w: %d coefficients for %d features",
			ErrArtifactMismatch, len(a.Coefficients), len(a.Features))
	}

	pipeline := base
	if a.Scaler != nil {
		var err error
		if pipeline, err = base.WithScaler(a.Scaler); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArtifactMismatch, err)
		}
	}

	return &Logistic{
		Name:      a.Name,
		Version:   a.Version,
		names:     slices.Clone(a.Features),
		coef:      slices.Clone(a.Coefficients),
		intercept: a.Intercept,
		pipeline:  pipeline,
	}, nil
}

// Pipeline returns the preprocessing the artifact was trained behind.
func (m *Logistic) Pipeline() *features.Pipeline { return m.pipeline }

func (m *Logistic) PredictProba(_ context.Context, vec []float64) (float64, error) {
	if len(vec) != len(m.coef) {
		return 0, fmt.Errorf("%w: got %d features, want %d", features.ErrSchemaMismatch, len(vec), len(m.coef))
	}

	z := m.intercept
	for i, x := range vec {
		z += m.coef[i] * x
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Explain returns coefficient × input for every feature.
func (m *Logistic) Explain(vec []float64) []Contribution {
	out := make([]Contribution, 0, len(vec))
	for i, x := range vec {
		if i >= len(m.coef) {
			break
		}
		out = append(out, Contribution{Feature: m.names[i], Value: m.coef[i] * x})
	}
	return out
}
