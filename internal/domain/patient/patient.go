package patient

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	ColumnID   = "Patient_ID"
	ColumnDate = "Date"
)

// Columns is the persisted header row. Its order is the on-disk column order.
var Columns = []string{
	ColumnID, ColumnDate, "Age", "Gender", "Ethnicity", "FamilyHistoryDiabetes", "Height",
	"SystolicBP", "DiastolicBP", "HeartRate", "Weight", "BMI", "ExerciseMinutes",
	"DietAdherence", "SleepHours", "SmokingStatus", "AlcoholStatus",
	"InsulinDosage", "OralHypoglycemic", "MedicationAdherence", "PrescriptionChange",
	"HbA1c", "FastingGlucose", "PostprandialGlucose", "LDL", "HDL", "Triglycerides",
	"TotalCholesterol", "SerumCreatinine", "eGFR", "UACR", "ALT", "AST",
	"Hypertension", "CardiovascularDisease", "CKD", "Neuropathy", "Retinopathy", "Hospitalization6M",
}

var numericColumns = map[string]bool{
	"Age": true, "Height": true, "SystolicBP": true, "DiastolicBP": true,
	"HeartRate": true, "Weight": true, "BMI": true, "ExerciseMinutes": true, "SleepHours": true,
	"InsulinDosage": true, "HbA1c": true, "FastingGlucose": true, "PostprandialGlucose": true,
	"LDL": true, "HDL": true, "Triglycerides": true, "TotalCholesterol": true,
	"SerumCreatinine": true, "eGFR": true, "UACR": true, "ALT": true, "AST": true,
}

var knownColumns = func() map[string]bool {
	m := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		m[c] = true
	}
	return m
}()

// IsNumeric reports whether a column holds a numeric value.
func IsNumeric(column string) bool {
	return numericColumns[column]
}

// IsKnown reports whether a column is part of the persisted schema.
func IsKnown(column string) bool {
	return knownColumns[column]
}

// Record is one dated observation of a patient. Every schema column is
// present; absent values are the empty string.
type Record map[string]string

func (r Record) ID() string   { return r[ColumnID] }
func (r Record) Date() string { return r[ColumnDate] }

// Float parses a numeric column. ok is false when the value is absent or
// not a number.
func (r Record) Float(column string) (v float64, ok bool) {
	raw := strings.TrimSpace(r[column])
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Values returns the record in Columns order.
func (r Record) Values() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = r[c]
	}
	return out
}

// Equal compares two records over the schema columns.
func (r Record) Equal(other Record) bool {
	for _, c := range Columns {
		if r[c] != other[c] {
			return false
		}
	}
	return true
}

// NewRecord builds a record with every column present.
func NewRecord(values map[string]string) Record {
	r := make(Record, len(Columns))
	for _, c := range Columns {
		r[c] = strings.TrimSpace(values[c])
	}
	return r
}

// Dataset is the full persisted collection in storage order.
type Dataset []Record

// Latest returns the last record for id in storage order. Storage order is
// arrival order, so a record appended later wins even when its Date is
// earlier.
func (d Dataset) Latest(id string) (Record, bool) {
	for i := len(d) - 1; i >= 0; i-- {
		if d[i].ID() == id {
			return d[i], true
		}
	}
	return nil, false
}

// ForPatient returns every record for id in storage order.
func (d Dataset) ForPatient(id string) Dataset {
	var out Dataset
	for _, r := range d {
		if r.ID() == id {
			out = append(out, r)
		}
	}
	return out
}

// LatestPerPatient returns one record per identifier, ordered by first
// appearance, holding the values of that identifier's last row.
func (d Dataset) LatestPerPatient() Dataset {
	index := make(map[string]int)
	var out Dataset
	for _, r := range d {
		id := r.ID()
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			out[i] = r
			continue
		}
		index[id] = len(out)
		out = append(out, r)
	}
	return out
}

// FromPayload coerces a decoded JSON object into a Record. Only types are
// checked: Patient_ID and Date must be non-empty strings, numeric columns
// must hold numbers or numeric strings, the rest must be scalars. Keys
// outside the schema are dropped.
func FromPayload(payload map[string]any) (Record, error) {
	var errs []string
	r := make(Record, len(Columns))

	for _, col := range Columns {
		raw, present := payload[col]
		if !present || raw == nil {
			r[col] = ""
			continue
		}

		var (
			v   string
			err error
		)
		if numericColumns[col] {
			v, err = coerceNumber(raw)
		} else {
			v, err = coerceScalar(raw)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", col, err))
			continue
		}
		r[col] = v
	}

	for _, col := range []string{ColumnID, ColumnDate} {
		if _, isString := payload[col].(string); !isString && payload[col] != nil {
			errs = append(errs, col+" must be a string")
			continue
		}
		if r[col] == "" {
			errs = append(errs, col+" is required")
		}
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return r, nil
}

func coerceNumber(raw any) (string, error) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", fmt.Errorf("must be a finite number")
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("%q is not a number", v)
		}
		return s, nil
	default:
		return "", fmt.Errorf("expected number, got %T", raw)
	}
}

func coerceScalar(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case bool:
		if v {
			return "Yes", nil
		}
		return "No", nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("expected scalar, got %T", raw)
	}
}
