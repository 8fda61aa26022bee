package features

// DefaultSchema is the training-time feature layout: every record column
// except Patient_ID and Date, in header order. Imputation defaults follow
// the values the clinical scorer assumed for missing inputs.
func DefaultSchema() []Spec {
	return []Spec{
		{Name: "Age", Kind: Numeric, Default: 40},
		{Name: "Gender", Kind: Ordinal, Default: 2, Levels: map[string]float64{
			"male": 0, "m": 0, "female": 1, "f": 1, "other": 2,
		}},
		{Name: "Ethnicity", Kind: Code, Default: 0},
		{Name: "FamilyHistoryDiabetes", Kind: Binary, Default: 0},
		{Name: "Height", Kind: Numeric, Default: 170},
		{Name: "SystolicBP", Kind: Numeric, Default: 120},
		{Name: "DiastolicBP", Kind: Numeric, Default: 80},
		{Name: "HeartRate", Kind: Numeric, Default: 75},
		{Name: "Weight", Kind: Numeric, Default: 72},
		{Name: "BMI", Kind: Numeric, Default: 25},
		{Name: "ExerciseMinutes", Kind: Numeric, Default: 0},
		{Name: "DietAdherence", Kind: Ordinal, Default: 2, Levels: map[string]float64{
			"excellent": 0, "good": 1, "moderate": 2, "poor": 3,
		}},
		{Name: "SleepHours", Kind: Numeric, Default: 7},
		{Name: "SmokingStatus", Kind: Ordinal, Default: 0, Levels: map[string]float64{
			"no": 0, "never": 0, "former": 1, "yes": 2, "current": 2,
		}},
		{Name: "AlcoholStatus", Kind: Ordinal, Default: 0, Levels: map[string]float64{
			"none": 0, "light": 1, "moderate": 2, "heavy": 3,
		}},
		{Name: "InsulinDosage", Kind: Numeric, Default: 0},
		{Name: "OralHypoglycemic", Kind: Binary, Default: 0},
		{Name: "MedicationAdherence", Kind: Ordinal, Default: 1, Levels: map[string]float64{
			"high": 0, "medium": 1, "low": 2,
		}},
		{Name: "PrescriptionChange", Kind: Binary, Default: 0},
		{Name: "HbA1c", Kind: Numeric, Default: 5.5},
		{Name: "FastingGlucose", Kind: Numeric, Default: 90},
		{Name: "PostprandialGlucose", Kind: Numeric, Default: 120},
		{Name: "LDL", Kind: Numeric, Default: 100},
		{Name: "HDL", Kind: Numeric, Default: 50},
		{Name: "Triglycerides", Kind: Numeric, Default: 150},
		{Name: "TotalCholesterol", Kind: Numeric, Default: 180},
		{Name: "SerumCreatinine", Kind: Numeric, Default: 1.0},
		{Name: "eGFR", Kind: Numeric, Default: 90},
		{Name: "UACR", Kind: Numeric, Default: 10},
		{Name: "ALT", Kind: Numeric, Default: 25},
		{Name: "AST", Kind: Numeric, Default: 25},
		{Name: "Hypertension", Kind: Binary, Default: 0},
		{Name: "CardiovascularDisease", Kind: Binary, Default: 0},
		{Name: "CKD", Kind: Binary, Default: 0},
		{Name: "Neuropathy", Kind: Binary, Default: 0},
		{Name: "Retinopathy", Kind: Binary, Default: 0},
		{Name: "Hospitalization6M", Kind: Ordinal, Default: 0, Levels: map[string]float64{
			"none": 0, "0": 0, "one": 1, "1": 1, "multiple": 2, "2+": 2,
		}},
	}
}
