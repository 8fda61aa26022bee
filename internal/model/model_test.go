package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
)

func TestDecide_ThresholdBoundary(t *testing.T) {
	assert.Equal(t, 1, Decide(0.5))
	assert.Equal(t, 0, Decide(math.Nextafter(0.5, 0)))
	assert.Equal(t, 1, Decide(0.99))
	assert.Equal(t, 0, Decide(0))
}

func TestRiskCategory(t *testing.T) {
	cases := map[float64]string{
		0.0:  "Low Risk",
		0.29: "Low Risk",
		0.3:  "Medium Risk",
		0.5:  "High Risk",
		0.79: "High Risk",
		0.8:  "Very High Risk",
	}
	for p, want := range cases {
		assert.Equal(t, want, RiskCategory(p), "p=%v", p)
	}
}

func TestTopContributions(t *testing.T) {
	in := []Contribution{{"a", 0.1}, {"b", -0.5}, {"c", 0.3}}
	out := TopContributions(in, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Feature)
	assert.Equal(t, "c", out[1].Feature)
	assert.Equal(t, "a", in[0].Feature, "input must not be reordered")
}

func artifactFor(p *features.Pipeline) Artifact {
	coef := make([]float64, p.Len())
	i, _ := p.Index("HbA1c")
	coef[i] = 2
	return Artifact{
		Name:         "test",
		Version:      "1",
		Features:     p.Names(),
		Coefficients: coef,
		Intercept:    -11, // HbA1c 5.5 → p = 0.5
	}
}

func TestLogistic_PredictProba(t *testing.T) {
	base := features.Default()
	m, err := NewLogistic(artifactFor(base), base)
	require.NoError(t, err)

	vec, err := m.Pipeline().Transform(patient.NewRecord(map[string]string{}))
	require.NoError(t, err)

	p, err := m.PredictProba(context.Background(), vec)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p, 1e-12)
	assert.Equal(t, 1, Decide(p))

	_, err = m.PredictProba(context.Background(), vec[:3])
	assert.True(t, errors.Is(err, features.ErrSchemaMismatch))
}

func TestLogistic_Explain(t *testing.T) {
	base := features.Default()
	m, err := NewLogistic(artifactFor(base), base)
	require.NoError(t, err)

	vec, err := m.Pipeline().Transform(patient.NewRecord(map[string]string{"HbA1c": "7"}))
	require.NoError(t, err)

	top := TopContributions(m.Explain(vec), 1)
	require.Len(t, top, 1)
	assert.Equal(t, Contribution{Feature: "HbA1c", Value: 14}, top[0])
}

func TestNewLogistic_RejectsMismatchedFeatures(t *testing.T) {
	base := features.Default()

	a := artifactFor(base)
	a.Features[0], a.Features[1] = a.Features[1], a.Features[0]
	_, err := NewLogistic(a, base)
	assert.True(t, errors.Is(err, ErrArtifactMismatch))

	a = artifactFor(base)
	a.Coefficients = a.Coefficients[:2]
	_, err = NewLogistic(a, base)
	assert.True(t, errors.Is(err, ErrArtifactMismatch))

	a = artifactFor(base)
	a.Scaler = &features.Scaler{Mean: []float64{0}, Scale: []float64{1}}
	_, err = NewLogistic(a, base)
	assert.True(t, errors.Is(err, ErrArtifactMismatch))
}

func TestLoad_Logistic(t *testing.T) {
	base := features.Default()
	raw, err := json.Marshal(artifactFor(base))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	clf, pipeline, err := Load(config.ModelConfig{Kind: "logistic", ArtifactPath: path}, base, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, pipeline)
	assert.IsType(t, &Logistic{}, clf)

	_, _, err = Load(config.ModelConfig{Kind: "logistic", ArtifactPath: filepath.Join(t.TempDir(), "missing.json")}, base, zap.NewNop())
	assert.Error(t, err)

	_, _, err = Load(config.ModelConfig{Kind: "forest"}, base, zap.NewNop())
	assert.Error(t, err)
}

func TestRuleScorer(t *testing.T) {
	p := features.Default()
	rs, err := NewRuleScorer(p)
	require.NoError(t, err)

	healthy, err := p.Transform(patient.NewRecord(map[string]string{
		"ExerciseMinutes": "45", "DietAdherence": "Excellent", "Triglycerides": "100", "BMI": "22",
	}))
	require.NoError(t, err)
	prob, err := rs.PredictProba(context.Background(), healthy)
	require.NoError(t, err)
	assert.Equal(t, 0.01, prob, "score is clamped from below")

	sick, err := p.Transform(patient.NewRecord(map[string]string{
		"FastingGlucose": "140", "HbA1c": "7.4", "BMI": "36", "Age": "70",
		"FamilyHistoryDiabetes": "Yes", "Hypertension": "Yes", "SystolicBP": "150",
	}))
	require.NoError(t, err)
	prob, err = rs.PredictProba(context.Background(), sick)
	require.NoError(t, err)
	assert.Equal(t, 0.99, prob, "score is clamped from above")

	fired := rs.Explain(sick)
	names := make([]string, 0, len(fired))
	for _, c := range fired {
		names = append(names, c.Feature)
	}
	assert.Contains(t, names, "FastingGlucose")
	assert.Contains(t, names, "BloodPressure")
}

func TestRuleScorer_DefaultRecord(t *testing.T) {
	p := features.Default()
	rs, err := NewRuleScorer(p)
	require.NoError(t, err)

	vec, err := p.Transform(patient.NewRecord(map[string]string{}))
	require.NoError(t, err)

	// Moderate diet 0.04, triglycerides 150 0.03, BMI 25 0.02, no exercise 0.03.
	prob, err := rs.PredictProba(context.Background(), vec)
	require.NoError(t, err)
	assert.InDelta(t, 0.12, prob, 1e-9)
}

func TestRuleScorer_ZeroReadsAsAbsent(t *testing.T) {
	p := features.Default()
	rs, err := NewRuleScorer(p)
	require.NoError(t, err)

	blank, err := p.Transform(patient.NewRecord(map[string]string{}))
	require.NoError(t, err)
	zeros, err := p.Transform(patient.NewRecord(map[string]string{
		"Age": "0", "BMI": "0", "HbA1c": "0", "FastingGlucose": "0", "SystolicBP": "0",
		"DiastolicBP": "0", "SerumCreatinine": "0", "Triglycerides": "0", "SleepHours": "0",
	}))
	require.NoError(t, err)

	want, err := rs.PredictProba(context.Background(), blank)
	require.NoError(t, err)
	got, err := rs.PredictProba(context.Background(), zeros)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)

	for _, c := range rs.Explain(zeros) {
		assert.NotEqual(t, "SleepHours", c.Feature, "a stored 0 is not short sleep")
	}
}

func TestRemote_PredictProba(t *testing.T) {
	var got remoteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probabilities":[[0.27,0.73]]}`))
	}))
	defer srv.Close()

	m := NewRemote(srv.URL, time.Second, []string{"a", "b"})
	p, err := m.PredictProba(context.Background(), []float64{1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.73, p, 1e-12)
	assert.Equal(t, []string{"a", "b"}, got.Features)
	assert.Equal(t, [][]float64{{1, 2}}, got.Values)
}

func TestRemote_Errors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	m := NewRemote(srv.URL, time.Second, []string{"a"})
	_, err := m.PredictProba(context.Background(), []float64{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
	assert.Equal(t, 1, calls, "requests are not retried")
}

func TestRemote_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"probabilities":[[1.4]]}`))
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL, time.Second, []string{"a"}).PredictProba(context.Background(), []float64{1})
	assert.Error(t, err)
}
