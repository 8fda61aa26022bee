package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(pgdriver.New(pgdriver.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestAppend_InsertsOneRow(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "clinical"."patient_records"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	r := patient.NewRecord(map[string]string{patient.ColumnID: "P1", patient.ColumnDate: "2024-01-01", "Age": "44"})
	require.NoError(t, s.Append(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_DatabaseErrorIsStorageUnavailable(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "clinical"."patient_records"`)).
		WillReturnError(errors.New("connection reset"))

	err := s.Append(context.Background(), patient.NewRecord(map[string]string{patient.ColumnID: "P1"}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, patient.ErrStorageUnavailable))
}

func TestReadAll_OrdersByID(t *testing.T) {
	db, mock := setupMockDB(t)
	s := New(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{"id", "created_at", "patient_id", "record_date", "fields"}).
		AddRow(1, time.Now(), "P1", "2024-01-01", `{"Patient_ID":"P1","Date":"2024-01-01","HbA1c":"6.1"}`).
		AddRow(2, time.Now(), "P1", "2023-01-01", `{"Patient_ID":"P1","Date":"2023-01-01","HbA1c":"7.9"}`)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "clinical"."patient_records" ORDER BY id ASC`)).
		WillReturnRows(rows)

	ds, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ds, 2)

	latest, ok := ds.Latest("P1")
	require.True(t, ok)
	assert.Equal(t, "7.9", latest["HbA1c"])
	assert.Equal(t, "", latest["Age"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStore_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	s := NewAuditStore(db)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "audit"."prediction_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("3f1c8a53-0a49-4c53-9d47-4a3a8a8f2d11"))

	p := 0.42
	err := s.Create(context.Background(), &domain.AuditLog{
		Action:      domain.ActionPredict,
		PatientID:   "P1",
		Outcome:     "negative",
		Probability: &p,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
