package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	ActionAdd         AuditAction = "add"
	ActionPredict     AuditAction = "predict"
	ActionExplain     AuditAction = "explain"
	ActionTimeline    AuditAction = "timeline"
	ActionBulkPredict AuditAction = "bulk_predict"
	ActionExport      AuditAction = "export"
)

// AuditLog records who touched which patient's data and what the service
// answered. Probability is nil for actions that do not score.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OccurredAt time.Time `gorm:"autoCreateTime;index"`

	Action    AuditAction `gorm:"column:action;type:varchar(20);not null;index"`
	PatientID string      `gorm:"column:patient_id;type:varchar(100);index"`

	RequestID string `gorm:"column:request_id;type:varchar(50);index"`
	ClientIP  string `gorm:"column:client_ip;type:varchar(45)"` // Supports IPv6

	Outcome     string   `gorm:"column:outcome;type:varchar(30);not null"`
	Probability *float64 `gorm:"column:probability"`
	Records     int      `gorm:"column:records"`
}

func (AuditLog) TableName() string {
	return "audit.prediction_logs"
}
