package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/metrics"
)

type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

type AuditService struct {
	repo    AuditRepository
	metrics *metrics.Collector
	log     *zap.Logger
	entries chan *domain.AuditLog
	done    chan struct{}

	// mu guards closed; senders hold it shared so Shutdown never closes
	// entries under a send.
	mu     sync.RWMutex
	closed bool
}

const auditBufferSize = 10_000

func NewAuditService(repo AuditRepository, m *metrics.Collector, log *zap.Logger) *AuditService {
	svc := &AuditService{
		repo:    repo,
		metrics: m,
		log:     log,
		entries: make(chan *domain.AuditLog, auditBufferSize),
		done:    make(chan struct{}),
	}
	go svc.worker()
	return svc
}

// LogAsync enqueues an audit entry for async persistence.
// If the buffer is full, the entry is dropped and a warning is emitted.
// Entries logged after Shutdown are dropped the same way.
func (s *AuditService) LogAsync(ctx context.Context, entry AuditEntry) {
	al := &domain.AuditLog{
		Action:      entry.Action,
		PatientID:   entry.PatientID,
		RequestID:   RequestIDFrom(ctx),
		ClientIP:    ClientIPFrom(ctx),
		Outcome:     entry.Outcome,
		Probability: entry.Probability,
		Records:     entry.Records,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop("audit service stopped, dropping entry", entry)
		return
	}

	select {
	case s.entries <- al:
	default:
		s.drop("audit log buffer full, dropping entry", entry)
	}
}

func (s *AuditService) drop(msg string, entry AuditEntry) {
	s.metrics.AuditDropped.Inc()
	s.log.Warn(msg,
		zap.String("action", string(entry.Action)),
		zap.String("patient_id", entry.PatientID),
	)
}

// Shutdown stops accepting entries and waits for the buffer to drain. It
// is safe to call more than once.
func (s *AuditService) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.entries)
	s.mu.Unlock()

	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("audit service shutdown timed out; some entries may be lost")
	}
}

func (s *AuditService) worker() {
	defer close(s.done)
	for entry := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Error("failed to persist audit log", zap.Error(err))
		}
		cancel()
	}
}

// LogAuditRepository writes audit entries to a dedicated logger. It is used
// when no database is configured.
type LogAuditRepository struct {
	log *zap.Logger
}

func NewLogAuditRepository(log *zap.Logger) *LogAuditRepository {
	return &LogAuditRepository{log: log}
}

func (r *LogAuditRepository) Create(_ context.Context, entry *domain.AuditLog) error {
	fields := []zap.Field{
		zap.String("action", string(entry.Action)),
		zap.String("patient_id", entry.PatientID),
		zap.String("request_id", entry.RequestID),
		zap.String("client_ip", entry.ClientIP),
		zap.String("outcome", entry.Outcome),
	}
	if entry.Probability != nil {
		fields = append(fields, zap.Float64("probability", *entry.Probability))
	}
	if entry.Records > 0 {
		fields = append(fields, zap.Int("records", entry.Records))
	}
	r.log.Info("audit", fields...)
	return nil
}
