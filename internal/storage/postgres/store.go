// Package postgres stores one row per record, so Append is a single insert
// and concurrent writers cannot lose each other's rows.
package postgres

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
)

type RecordRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`

	PatientID  string            `gorm:"column:patient_id;type:varchar(100);not null;index"`
	RecordDate string            `gorm:"column:record_date;type:varchar(32)"`
	Fields     map[string]string `gorm:"column:fields;type:jsonb;serializer:json;not null"`
}

func (RecordRow) TableName() string {
	return "clinical.patient_records"
}

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

// ReadAll orders by the serial id, which is insertion order.
func (s *Store) ReadAll(ctx context.Context) (patient.Dataset, error) {
	var rows []RecordRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: listing patient records: %v", patient.ErrStorageUnavailable, err)
	}

	ds := make(patient.Dataset, 0, len(rows))
	for _, row := range rows {
		ds = append(ds, patient.NewRecord(row.Fields))
	}
	return ds, nil
}

func (s *Store) Append(ctx context.Context, r patient.Record) error {
	fields := make(map[string]string, len(patient.Columns))
	for _, c := range patient.Columns {
		fields[c] = r[c]
	}

	row := &RecordRow{
		PatientID:  r.ID(),
		RecordDate: r.Date(),
		Fields:     fields,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		s.log.Error("failed to insert patient record", zap.Error(err))
		return fmt.Errorf("%w: inserting patient record: %v", patient.ErrStorageUnavailable, err)
	}
	return nil
}
