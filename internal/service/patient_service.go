package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/export"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/model"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/tabular"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/metrics"
)

const explainTopN = 10

var tracer = otel.Tracer("chronicrisk/service")

type Prediction struct {
	Probability  float64 `json:"probability"`
	Prediction   int     `json:"prediction"`
	RiskCategory string  `json:"risk_category"`
}

// ScoredRecord carries either a prediction or, for a row whose values the
// pipeline cannot encode, the reason it was not scored.
type ScoredRecord struct {
	Record patient.Record `json:"record"`
	*Prediction
	Error string `json:"error,omitempty"`
}

// TimelinePoint is one dated observation with the vitals charted over time.
// Absent vitals are null, as is the risk of a record that cannot be encoded.
type TimelinePoint struct {
	Date            string   `json:"date"`
	FastingGlucose  *float64 `json:"fasting_glucose"`
	HbA1c           *float64 `json:"hba1c"`
	SystolicBP      *float64 `json:"systolic_bp"`
	BMI             *float64 `json:"bmi"`
	RiskProbability *float64 `json:"risk_probability"`
	Error           string   `json:"error,omitempty"`
}

type Explanation struct {
	PatientID     string               `json:"patient_id"`
	Prediction    Prediction           `json:"prediction"`
	Contributions []model.Contribution `json:"contributions"`
}

// PatientService owns the add and predict flows. The pipeline and
// classifier are loaded once at start-up and shared read-only.
type PatientService struct {
	store    patient.Store
	pipeline *features.Pipeline
	model    model.Classifier
	auditSvc *AuditService
	metrics  *metrics.Collector
	log      *zap.Logger
}

func NewPatientService(
	store patient.Store,
	pipeline *features.Pipeline,
	classifier model.Classifier,
	auditSvc *AuditService,
	m *metrics.Collector,
	log *zap.Logger,
) *PatientService {
	return &PatientService{
		store:    store,
		pipeline: pipeline,
		model:    classifier,
		auditSvc: auditSvc,
		metrics:  m,
		log:      log,
	}
}

// AddPatient validates field types and appends the record. Identity is not
// checked: the same Patient_ID may be added any number of times.
func (s *PatientService) AddPatient(ctx context.Context, payload map[string]any) error {
	ctx, span := tracer.Start(ctx, "PatientService.AddPatient")
	defer span.End()

	r, err := patient.FromPayload(payload)
	if err != nil {
		return fail(span, err)
	}
	span.SetAttributes(attribute.String("patient.id", r.ID()))

	if err := s.store.Append(ctx, r); err != nil {
		s.log.Error("failed to append patient record",
			zap.String("patient_id", r.ID()),
			zap.Error(err),
		)
		return fail(span, fmt.Errorf("appending record: %w", err))
	}

	s.metrics.RecordsAppendedTotal.Inc()
	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:    domain.ActionAdd,
		PatientID: r.ID(),
		Outcome:   "ok",
	})

	s.log.Info("patient record added",
		zap.String("patient_id", r.ID()),
		zap.String("date", r.Date()),
	)
	return nil
}

// Predict scores the last record appended for id.
func (s *PatientService) Predict(ctx context.Context, id string) (*Prediction, error) {
	ctx, span := tracer.Start(ctx, "PatientService.Predict",
		trace.WithAttributes(attribute.String("patient.id", id)))
	defer span.End()

	r, err := s.latest(ctx, id)
	if err != nil {
		s.countFailure(err)
		return nil, fail(span, err)
	}

	pred, _, err := s.score(ctx, r)
	if err != nil {
		s.countFailure(err)
		return nil, fail(span, err)
	}

	outcome := "negative"
	if pred.Prediction == 1 {
		outcome = "positive"
	}
	s.metrics.PredictionsTotal.WithLabelValues(outcome).Inc()
	s.metrics.PredictionScore.Observe(pred.Probability)
	span.SetAttributes(attribute.Float64("prediction.probability", pred.Probability))

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:      domain.ActionPredict,
		PatientID:   id,
		Outcome:     outcome,
		Probability: &pred.Probability,
	})
	return &pred, nil
}

// Cohort scores the latest record of every patient, in order of each
// patient's first appearance.
func (s *PatientService) Cohort(ctx context.Context) ([]ScoredRecord, error) {
	ctx, span := tracer.Start(ctx, "PatientService.Cohort")
	defer span.End()

	ds, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("reading dataset: %w", err))
	}

	out, err := s.scoreAll(ctx, ds.LatestPerPatient())
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("cohort.size", len(out)))
	return out, nil
}

// Timeline returns every record for id ordered by Date. Records sharing a
// Date keep their storage order.
func (s *PatientService) Timeline(ctx context.Context, id string) ([]TimelinePoint, error) {
	ctx, span := tracer.Start(ctx, "PatientService.Timeline",
		trace.WithAttributes(attribute.String("patient.id", id)))
	defer span.End()

	ds, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("reading dataset: %w", err))
	}

	records := ds.ForPatient(id)
	if len(records) == 0 {
		return nil, fail(span, patient.ErrPatientNotFound)
	}
	sortByDate(records)

	points := make([]TimelinePoint, 0, len(records))
	for _, r := range records {
		point := TimelinePoint{
			Date:           r.Date(),
			FastingGlucose: optional(r, "FastingGlucose"),
			HbA1c:          optional(r, "HbA1c"),
			SystolicBP:     optional(r, "SystolicBP"),
			BMI:            optional(r, "BMI"),
		}
		pred, _, err := s.score(ctx, r)
		switch {
		case errors.Is(err, features.ErrSchemaMismatch):
			point.Error = err.Error()
		case err != nil:
			return nil, fail(span, err)
		default:
			point.RiskProbability = &pred.Probability
		}
		points = append(points, point)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:    domain.ActionTimeline,
		PatientID: id,
		Outcome:   "ok",
		Records:   len(points),
	})
	return points, nil
}

// Explain attributes the latest prediction for id to individual features.
func (s *PatientService) Explain(ctx context.Context, id string) (*Explanation, error) {
	ctx, span := tracer.Start(ctx, "PatientService.Explain",
		trace.WithAttributes(attribute.String("patient.id", id)))
	defer span.End()

	explainer, ok := s.model.(model.Explainer)
	if !ok {
		return nil, fail(span, ErrExplainUnsupported)
	}

	r, err := s.latest(ctx, id)
	if err != nil {
		return nil, fail(span, err)
	}

	pred, vec, err := s.score(ctx, r)
	if err != nil {
		return nil, fail(span, err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:      domain.ActionExplain,
		PatientID:   id,
		Outcome:     "ok",
		Probability: &pred.Probability,
	})

	return &Explanation{
		PatientID:     id,
		Prediction:    pred,
		Contributions: model.TopContributions(explainer.Explain(vec), explainTopN),
	}, nil
}

// BulkPredict scores every row of an uploaded CSV table. Nothing is
// persisted.
func (s *PatientService) BulkPredict(ctx context.Context, src io.Reader) ([]ScoredRecord, error) {
	ctx, span := tracer.Start(ctx, "PatientService.BulkPredict")
	defer span.End()

	ds, err := tabular.Decode(src)
	if err != nil {
		return nil, fail(span, &patient.ValidationError{Fields: []string{"file: " + err.Error()}})
	}

	out, err := s.scoreAll(ctx, ds)
	if err != nil {
		return nil, fail(span, err)
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:  domain.ActionBulkPredict,
		Outcome: "ok",
		Records: len(out),
	})
	s.log.Info("bulk prediction completed", zap.Int("records", len(out)))
	return out, nil
}

// Export renders the whole dataset in the requested format.
func (s *PatientService) Export(ctx context.Context, f export.Format) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "PatientService.Export",
		trace.WithAttributes(attribute.String("export.format", string(f))))
	defer span.End()

	ds, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fail(span, fmt.Errorf("reading dataset: %w", err))
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, f, ds); err != nil {
		return nil, fail(span, fmt.Errorf("rendering %s export: %w", f, err))
	}

	s.auditSvc.LogAsync(ctx, AuditEntry{
		Action:  domain.ActionExport,
		Outcome: string(f),
		Records: len(ds),
	})
	return buf.Bytes(), nil
}

// ExpectedColumns lists the persisted column names.
func (s *PatientService) ExpectedColumns() []string {
	return append([]string(nil), patient.Columns...)
}

func (s *PatientService) latest(ctx context.Context, id string) (patient.Record, error) {
	ds, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	r, ok := ds.Latest(id)
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return r, nil
}

func (s *PatientService) score(ctx context.Context, r patient.Record) (Prediction, []float64, error) {
	vec, err := s.pipeline.Transform(r)
	if err != nil {
		return Prediction{}, nil, fmt.Errorf("preprocessing record for %s: %w", r.ID(), err)
	}

	p, err := s.model.PredictProba(ctx, vec)
	if err != nil {
		return Prediction{}, nil, fmt.Errorf("scoring record for %s: %w", r.ID(), err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return Prediction{}, nil, fmt.Errorf("scoring record for %s: classifier returned %v", r.ID(), p)
	}

	return Prediction{
		Probability:  p,
		Prediction:   model.Decide(p),
		RiskCategory: model.RiskCategory(p),
	}, vec, nil
}

// scoreAll scores every record. A record the pipeline rejects is reported
// on its own row; any other failure aborts the batch.
func (s *PatientService) scoreAll(ctx context.Context, ds patient.Dataset) ([]ScoredRecord, error) {
	out := make([]ScoredRecord, 0, len(ds))
	skipped := 0
	for _, r := range ds {
		pred, _, err := s.score(ctx, r)
		switch {
		case errors.Is(err, features.ErrSchemaMismatch):
			skipped++
			s.log.Warn("record not scored",
				zap.String("patient_id", r.ID()),
				zap.Error(err),
			)
			out = append(out, ScoredRecord{Record: r, Error: err.Error()})
		case err != nil:
			return nil, err
		default:
			out = append(out, ScoredRecord{Record: r, Prediction: &pred})
		}
	}
	if skipped > 0 {
		s.metrics.PredictionsTotal.WithLabelValues("error").Add(float64(skipped))
	}
	return out, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
}

func parseDate(raw string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortByDate orders records by calendar date. Dates in no known layout sort
// after parsed ones, by their raw text. Ties keep storage order.
func sortByDate(records []patient.Record) {
	type key struct {
		t  time.Time
		ok bool
	}
	keys := make([]key, len(records))
	idx := make([]int, len(records))
	for i, r := range records {
		t, ok := parseDate(r.Date())
		keys[i] = key{t, ok}
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		switch {
		case ka.ok && kb.ok:
			return ka.t.Before(kb.t)
		case ka.ok != kb.ok:
			return ka.ok
		}
		return records[idx[a]].Date() < records[idx[b]].Date()
	})
	sorted := make([]patient.Record, len(records))
	for i, j := range idx {
		sorted[i] = records[j]
	}
	copy(records, sorted)
}

func (s *PatientService) countFailure(err error) {
	if errors.Is(err, patient.ErrPatientNotFound) {
		s.metrics.PredictionsTotal.WithLabelValues("not_found").Inc()
		return
	}
	s.metrics.PredictionsTotal.WithLabelValues("error").Inc()
}

func fail(span trace.Span, err error) error {
	if !errors.Is(err, patient.ErrPatientNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func optional(r patient.Record, column string) *float64 {
	v, ok := r.Float(column)
	if !ok {
		return nil
	}
	return &v
}
