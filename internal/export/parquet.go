package export

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
)

// parquetRow mirrors the persisted column order. Numeric columns are
// optional doubles; an absent value is a null, not zero.
type parquetRow struct {
	PatientID             string   `parquet:"Patient_ID"`
	Date                  string   `parquet:"Date"`
	Age                   *float64 `parquet:"Age,optional"`
	Gender                string   `parquet:"Gender"`
	Ethnicity             string   `parquet:"Ethnicity"`
	FamilyHistoryDiabetes string   `parquet:"FamilyHistoryDiabetes"`
	Height                *float64 `parquet:"Height,optional"`
	SystolicBP            *float64 `parquet:"SystolicBP,optional"`
	DiastolicBP           *float64 `parquet:"DiastolicBP,optional"`
	HeartRate             *float64 `parquet:"HeartRate,optional"`
	Weight                *float64 `parquet:"Weight,optional"`
	BMI                   *float64 `parquet:"BMI,optional"`
	ExerciseMinutes       *float64 `parquet:"ExerciseMinutes,optional"`
	DietAdherence         string   `parquet:"DietAdherence"`
	SleepHours            *float64 `parquet:"SleepHours,optional"`
	SmokingStatus         string   `parquet:"SmokingStatus"`
	AlcoholStatus         string   `parquet:"AlcoholStatus"`
	InsulinDosage         *float64 `parquet:"InsulinDosage,optional"`
	OralHypoglycemic      string   `parquet:"OralHypoglycemic"`
	MedicationAdherence   string   `parquet:"MedicationAdherence"`
	PrescriptionChange    string   `parquet:"PrescriptionChange"`
	HbA1c                 *float64 `parquet:"HbA1c,optional"`
	FastingGlucose        *float64 `parquet:"FastingGlucose,optional"`
	PostprandialGlucose   *float64 `parquet:"PostprandialGlucose,optional"`
	LDL                   *float64 `parquet:"LDL,optional"`
	HDL                   *float64 `parquet:"HDL,optional"`
	Triglycerides         *float64 `parquet:"Triglycerides,optional"`
	TotalCholesterol      *float64 `parquet:"TotalCholesterol,optional"`
	SerumCreatinine       *float64 `parquet:"SerumCreatinine,optional"`
	EGFR                  *float64 `parquet:"eGFR,optional"`
	UACR                  *float64 `parquet:"UACR,optional"`
	ALT                   *float64 `parquet:"ALT,optional"`
	AST                   *float64 `parquet:"AST,optional"`
	Hypertension          string   `parquet:"Hypertension"`
	CardiovascularDisease string   `parquet:"CardiovascularDisease"`
	CKD                   string   `parquet:"CKD"`
	Neuropathy            string   `parquet:"Neuropathy"`
	Retinopathy           string   `parquet:"Retinopathy"`
	Hospitalization6M     string   `parquet:"Hospitalization6M"`
}

const parquetFlushInterval = 50_000

func writeParquet(w io.Writer, ds patient.Dataset) error {
	writer := parquet.NewGenericWriter[parquetRow](w,
		parquet.Compression(&parquet.Snappy),
	)

	for i, r := range ds {
		if _, err := writer.Write([]parquetRow{toParquetRow(r)}); err != nil {
			_ = writer.Close()
			return fmt.Errorf("failed to write parquet record: %w", err)
		}

		if (i+1)%parquetFlushInterval == 0 {
			if err := writer.Flush(); err != nil {
				_ = writer.Close()
				return fmt.Errorf("failed to flush parquet row group: %w", err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

func toParquetRow(r patient.Record) parquetRow {
	return parquetRow{
		PatientID:             r["Patient_ID"],
		Date:                  r["Date"],
		Age:                   optionalFloat(r, "Age"),
		Gender:                r["Gender"],
		Ethnicity:             r["Ethnicity"],
		FamilyHistoryDiabetes: r["FamilyHistoryDiabetes"],
		Height:                optionalFloat(r, "Height"),
		SystolicBP:            optionalFloat(r, "SystolicBP"),
		DiastolicBP:           optionalFloat(r, "DiastolicBP"),
		HeartRate:             optionalFloat(r, "HeartRate"),
		Weight:                optionalFloat(r, "Weight"),
		BMI:                   optionalFloat(r, "BMI"),
		ExerciseMinutes:       optionalFloat(r, "ExerciseMinutes"),
		DietAdherence:         r["DietAdherence"],
		SleepHours:            optionalFloat(r, "SleepHours"),
		SmokingStatus:         r["SmokingStatus"],
		AlcoholStatus:         r["AlcoholStatus"],
		InsulinDosage:         optionalFloat(r, "InsulinDosage"),
		OralHypoglycemic:      r["OralHypoglycemic"],
		MedicationAdherence:   r["MedicationAdherence"],
		PrescriptionChange:    r["PrescriptionChange"],
		HbA1c:                 optionalFloat(r, "HbA1c"),
		FastingGlucose:        optionalFloat(r, "FastingGlucose"),
		PostprandialGlucose:   optionalFloat(r, "PostprandialGlucose"),
		LDL:                   optionalFloat(r, "LDL"),
		HDL:                   optionalFloat(r, "HDL"),
		Triglycerides:         optionalFloat(r, "Triglycerides"),
		TotalCholesterol:      optionalFloat(r, "TotalCholesterol"),
		SerumCreatinine:       optionalFloat(r, "SerumCreatinine"),
		EGFR:                  optionalFloat(r, "eGFR"),
		UACR:                  optionalFloat(r, "UACR"),
		ALT:                   optionalFloat(r, "ALT"),
		AST:                   optionalFloat(r, "AST"),
		Hypertension:          r["Hypertension"],
		CardiovascularDisease: r["CardiovascularDisease"],
		CKD:                   r["CKD"],
		Neuropathy:            r["Neuropathy"],
		Retinopathy:           r["Retinopathy"],
		Hospitalization6M:     r["Hospitalization6M"],
	}
}

func optionalFloat(r patient.Record, column string) *float64 {
	v, ok := r.Float(column)
	if !ok {
		return nil
	}
	return &v
}
