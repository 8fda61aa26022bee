// Package model holds the read-only classifier handle shared by all requests.
package model

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
)

// DecisionThreshold is fixed policy, not a per-call parameter.
const DecisionThreshold = 0.5

// Classifier returns the positive-class probability for one feature vector.
// Implementations are immutable and safe for concurrent use.
type Classifier interface {
	PredictProba(ctx context.Context, vec []float64) (float64, error)
}

// Explainer is implemented by classifiers that can attribute a score to
// individual features.
type Explainer interface {
	Explain(vec []float64) []Contribution
}

type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// Decide applies the decision threshold. A probability of exactly 0.5 is
// positive.
func Decide(probability float64) int {
	if probability >= DecisionThreshold {
		return 1
	}
	return 0
}

func RiskCategory(probability float64) string {
	switch {
	case probability < 0.3:
		return "Low Risk"
	case probability < 0.5:
		return "Medium Risk"
	case probability < 0.8:
		return "High Risk"
	default:
		return "Very High Risk"
	}
}

// TopContributions orders contributions by absolute value and keeps n.
func TopContributions(cs []Contribution, n int) []Contribution {
	out := make([]Contribution, len(cs))
	copy(out, cs)
	sort.SliceStable(out, func(i, j int) bool {
		return abs(out[i].Value) > abs(out[j].Value)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Load builds the classifier named by cfg.Kind and returns the pipeline
// that produces its inputs. It is called once at start-up.
func Load(cfg config.ModelConfig, base *features.Pipeline, log *zap.Logger) (Classifier, *features.Pipeline, error) {
	start := time.Now()

	switch cfg.Kind {
	case "logistic":
		lm, err := LoadLogistic(cfg.ArtifactPath, base)
		if err != nil {
			return nil, nil, err
		}
		log.Info("model artifact loaded",
			zap.String("path", cfg.ArtifactPath),
			zap.String("name", lm.Name),
			zap.String("version", lm.Version),
			zap.Duration("duration", time.Since(start)),
		)
		return lm, lm.Pipeline(), nil

	case "rules":
		rs, err := NewRuleScorer(base)
		if err != nil {
			return nil, nil, err
		}
		log.Info("using rule-based scorer")
		return rs, base, nil

	case "remote":
		log.Info("using remote inference", zap.String("url", cfg.RemoteURL))
		return NewRemote(cfg.RemoteURL, cfg.Timeout, base.Names()), base, nil
	}

	return nil, nil, fmt.Errorf("unknown model kind %q", cfg.Kind)
}
