package model

import (
	"context"
	"fmt"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
)

// RuleScorer is the weighted clinical-rule diabetes score. It reads the
// unscaled vector produced by the default pipeline.
type RuleScorer struct {
	idx map[string]int
}

var ruleInputs = []string{
	"Age", "BMI", "HbA1c", "FastingGlucose", "SystolicBP", "DiastolicBP", "SerumCreatinine",
	"Triglycerides", "FamilyHistoryDiabetes", "Hypertension", "Ethnicity", "SmokingStatus",
	"DietAdherence", "AlcoholStatus", "ExerciseMinutes", "SleepHours",
}

// zeroMeansAbsent holds the value a rule reads in place of a stored 0. The
// values match the pipeline's imputation defaults.
var zeroMeansAbsent = map[string]float64{
	"Age":             40,
	"BMI":             25,
	"HbA1c":           5.5,
	"FastingGlucose":  90,
	"SystolicBP":      120,
	"DiastolicBP":     80,
	"SerumCreatinine": 1.0,
	"Triglycerides":   150,
	"SleepHours":      7,
}

func NewRuleScorer(p *features.Pipeline) (*RuleScorer, error) {
	idx := make(map[string]int, len(ruleInputs))
	for _, name := range ruleInputs {
		i, ok := p.Index(name)
		if !ok {
			return nil, fmt.Errorf("%w: rule input %s missing from pipeline", features.ErrSchemaMismatch, name)
		}
		idx[name] = i
	}
	return &RuleScorer{idx: idx}, nil
}

func (s *RuleScorer) PredictProba(_ context.Context, vec []float64) (float64, error) {
	fired, err := s.fire(vec)
	if err != nil {
		return 0, err
	}

	var score float64
	for _, c := range fired {
		score += c.Value
	}
	return min(max(score, 0.01), 0.99), nil
}

func (s *RuleScorer) Explain(vec []float64) []Contribution {
	fired, err := s.fire(vec)
	if err != nil {
		return nil
	}
	return fired
}

func (s *RuleScorer) fire(vec []float64) ([]Contribution, error) {
	for _, i := range s.idx {
		if i >= len(vec) {
			return nil, fmt.Errorf("%w: vector has %d features", features.ErrSchemaMismatch, len(vec))
		}
	}
	v := func(name string) float64 {
		x := vec[s.idx[name]]
		if fallback, ok := zeroMeansAbsent[name]; ok && x == 0 {
			return fallback
		}
		return x
	}

	var out []Contribution
	add := func(feature string, weight float64) {
		out = append(out, Contribution{Feature: feature, Value: weight})
	}

	switch fg := v("FastingGlucose"); {
	case fg >= 126:
		add("FastingGlucose", 0.45)
	case fg >= 110:
		add("FastingGlucose", 0.25)
	case fg >= 100:
		add("FastingGlucose", 0.12)
	}

	switch a1c := v("HbA1c"); {
	case a1c >= 7.0:
		add("HbA1c", 0.40)
	case a1c >= 6.5:
		add("HbA1c", 0.28)
	case a1c >= 5.7:
		add("HbA1c", 0.15)
	}

	// DietAdherence: 2 moderate, 3 poor.
	switch v("DietAdherence") {
	case 3:
		add("DietAdherence", 0.08)
	case 2:
		add("DietAdherence", 0.04)
	}

	// AlcoholStatus: 2 moderate, 3 heavy.
	switch v("AlcoholStatus") {
	case 3:
		add("AlcoholStatus", 0.06)
	case 2:
		add("AlcoholStatus", 0.03)
	}

	switch tg := v("Triglycerides"); {
	case tg >= 200:
		add("Triglycerides", 0.06)
	case tg >= 150:
		add("Triglycerides", 0.03)
	}

	switch cr := v("SerumCreatinine"); {
	case cr >= 1.5:
		add("SerumCreatinine", 0.06)
	case cr >= 1.2:
		add("SerumCreatinine", 0.03)
	}

	switch bmi := v("BMI"); {
	case bmi >= 35:
		add("BMI", 0.08)
	case bmi >= 30:
		add("BMI", 0.05)
	case bmi >= 25:
		add("BMI", 0.02)
	}

	switch age := v("Age"); {
	case age >= 65:
		add("Age", 0.08)
	case age >= 45:
		add("Age", 0.04)
	}

	if v("FamilyHistoryDiabetes") == 1 {
		add("FamilyHistoryDiabetes", 0.06)
	}
	if v("Hypertension") == 1 {
		add("Hypertension", 0.05)
	}
	if v("SystolicBP") >= 140 || v("DiastolicBP") >= 90 {
		add("BloodPressure", 0.04)
	}
	// SmokingStatus: 2 current smoker.
	if v("SmokingStatus") == 2 {
		add("SmokingStatus", 0.03)
	}
	if v("Ethnicity") == 1 {
		add("Ethnicity", 0.02)
	}
	if v("ExerciseMinutes") < 30 {
		add("ExerciseMinutes", 0.03)
	}
	if sleep := v("SleepHours"); sleep < 6 || sleep > 9 {
		add("SleepHours", 0.02)
	}

	return out, nil
}
