// Package features turns a patient record into the fixed-order numeric
// vector the classifier was trained on.
package features

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
)

var ErrSchemaMismatch = errors.New("record does not match feature schema")

type Kind int

const (
	// Numeric parses a float and imputes Default when absent.
	Numeric Kind = iota
	// Code parses a numeric code and falls back to Default on anything
	// unparsable, matching how free-text codes were collected.
	Code
	// Binary maps yes/no style answers to 1/0.
	Binary
	// Ordinal maps a fixed set of levels to integer codes.
	Ordinal
)

type Spec struct {
	Name    string
	Kind    Kind
	Default float64
	// Levels is used by Ordinal specs; keys are lower case.
	Levels map[string]float64
}

// Scaler standardizes a vector as (x - Mean) / Scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Pipeline is immutable after construction and safe for concurrent use.
type Pipeline struct {
	specs  []Spec
	scaler *Scaler
	index  map[string]int
}

// NewPipeline builds a pipeline over specs. scaler may be nil.
func NewPipeline(specs []Spec, scaler *Scaler) (*Pipeline, error) {
	if scaler != nil {
		if len(scaler.Mean) != len(specs) || len(scaler.Scale) != len(specs) {
			return nil, fmt.Errorf("%w: scaler has %d/%d parameters for %d features",
				ErrSchemaMismatch, len(scaler.Mean), len(scaler.Scale), len(specs))
		}
		for i, s := range scaler.Scale {
			if s == 0 {
				return nil, fmt.Errorf("%w: scale for %s is zero", ErrSchemaMismatch, specs[i].Name)
			}
		}
	}

	index := make(map[string]int, len(specs))
	for i, s := range specs {
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate feature %q", s.Name)
		}
		index[s.Name] = i
	}

	return &Pipeline{specs: specs, scaler: scaler, index: index}, nil
}

// Default returns the unscaled pipeline over DefaultSchema.
func Default() *Pipeline {
	p, err := NewPipeline(DefaultSchema(), nil)
	if err != nil {
		panic(err)
	}
	return p
}

// WithScaler returns a copy of p that standardizes its output.
func (p *Pipeline) WithScaler(scaler *Scaler) (*Pipeline, error) {
	return NewPipeline(p.specs, scaler)
}

// Names returns the feature names in vector order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.specs))
	for i, s := range p.specs {
		names[i] = s.Name
	}
	return names
}

// Index returns the vector position of a feature.
func (p *Pipeline) Index(name string) (int, bool) {
	i, ok := p.index[name]
	return i, ok
}

func (p *Pipeline) Len() int { return len(p.specs) }

// Transform encodes r. It has no side effects and the same record always
// yields the same vector.
func (p *Pipeline) Transform(r patient.Record) ([]float64, error) {
	vec, err := p.Encode(r)
	if err != nil {
		return nil, err
	}
	if p.scaler != nil {
		for i := range vec {
			vec[i] = (vec[i] - p.scaler.Mean[i]) / p.scaler.Scale[i]
		}
	}
	return vec, nil
}

// Encode imputes and encodes r without scaling.
func (p *Pipeline) Encode(r patient.Record) ([]float64, error) {
	vec := make([]float64, len(p.specs))
	var bad []string

	for i, s := range p.specs {
		raw := strings.TrimSpace(r[s.Name])
		v, err := s.encode(raw)
		if err != nil {
			bad = append(bad, fmt.Sprintf("%s: %v", s.Name, err))
			continue
		}
		vec[i] = v
	}

	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(bad, "; "))
	}
	return vec, nil
}

func (s Spec) encode(raw string) (float64, error) {
	if raw == "" {
		return s.Default, nil
	}

	switch s.Kind {
	case Numeric:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", raw)
		}
		if !finite(v) {
			return 0, fmt.Errorf("%q is not a finite number", raw)
		}
		return v, nil
	case Code:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || !finite(v) {
			return s.Default, nil
		}
		return v, nil
	case Binary:
		switch strings.ToLower(raw) {
		case "yes", "y", "true", "1":
			return 1, nil
		case "no", "n", "false", "0":
			return 0, nil
		}
		return 0, fmt.Errorf("%q is not a yes/no value", raw)
	case Ordinal:
		if v, ok := s.Levels[strings.ToLower(raw)]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("unknown level %q", raw)
	}
	return 0, fmt.Errorf("unsupported feature kind %d", s.Kind)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
