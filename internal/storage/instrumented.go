// Package storage selects and instruments the dataset backend.
package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/metrics"
)

var tracer = otel.Tracer("chronicrisk/storage")

// Instrumented wraps a Store with latency metrics, error counters and spans.
type Instrumented struct {
	next    patient.Store
	backend string
	metrics *metrics.Collector
	log     *zap.Logger
}

func Instrument(next patient.Store, backend string, m *metrics.Collector, log *zap.Logger) *Instrumented {
	return &Instrumented{next: next, backend: backend, metrics: m, log: log}
}

func (s *Instrumented) ReadAll(ctx context.Context) (patient.Dataset, error) {
	ctx, span := tracer.Start(ctx, "storage.ReadAll")
	defer span.End()
	span.SetAttributes(attribute.String("storage.backend", s.backend))

	start := time.Now()
	ds, err := s.next.ReadAll(ctx)
	s.observe("read_all", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("storage.records", len(ds)))
	return ds, nil
}

func (s *Instrumented) Append(ctx context.Context, r patient.Record) error {
	ctx, span := tracer.Start(ctx, "storage.Append")
	defer span.End()
	span.SetAttributes(attribute.String("storage.backend", s.backend))

	start := time.Now()
	err := s.next.Append(ctx, r)
	s.observe("append", start, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return err
	}
	return nil
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.StorageOpDuration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.StorageErrors.WithLabelValues(s.backend, op).Inc()
		s.log.Warn("storage operation failed",
			zap.String("backend", s.backend),
			zap.String("operation", op),
			zap.Error(err),
		)
	}
}
