package service

import (
	"context"
	"errors"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain"
)

var (
	ErrExplainUnsupported = errors.New("configured model does not support explanations")
	ErrUnsupportedFormat  = errors.New("unsupported export format")
)

type AuditEntry struct {
	Action      domain.AuditAction
	PatientID   string
	Outcome     string
	Probability *float64
	Records     int
}

type ctxKey int

const (
	requestIDKey ctxKey = iota
	clientIPKey
)

// WithRequestMeta attaches the request ID and client address that audit
// entries are stamped with.
func WithRequestMeta(ctx context.Context, requestID, clientIP string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return context.WithValue(ctx, clientIPKey, clientIP)
}

func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func ClientIPFrom(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey).(string)
	return v
}
