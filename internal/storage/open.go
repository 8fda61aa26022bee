package storage

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/drive"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/localfile"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/lock"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/objectstore"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/postgres"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/metrics"
)

// Backend is an opened, instrumented dataset store. DB is set only for the
// postgres backend.
type Backend struct {
	Store patient.Store
	DB    *gorm.DB

	closers []func()
}

// Close releases every connection Open made, in reverse order.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open builds the backend named by cfg.Storage.Backend.
func Open(ctx context.Context, cfg *config.Config, m *metrics.Collector, log *zap.Logger) (*Backend, error) {
	b := &Backend{}

	var (
		store patient.Store
		err   error
	)

	switch cfg.Storage.Backend {
	case config.BackendLocal:
		store = localfile.New(cfg.Storage.CSVPath, log.Named("localfile"))

	case config.BackendDrive:
		locker, closeLocker := newLocker(cfg.Lock)
		b.closers = append(b.closers, closeLocker)
		store, err = drive.New(ctx, cfg.Drive, locker, log.Named("drive"))

	case config.BackendS3:
		locker, closeLocker := newLocker(cfg.Lock)
		b.closers = append(b.closers, closeLocker)
		store, err = objectstore.New(ctx, cfg.S3, locker, log.Named("s3"))

	case config.BackendPostgres:
		db, dbErr := database.Connect(cfg.Database)
		if dbErr != nil {
			return nil, dbErr
		}
		b.closers = append(b.closers, func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		if err := database.Migrate(db, log, &postgres.RecordRow{}, &domain.AuditLog{}); err != nil {
			b.Close()
			return nil, err
		}
		b.DB = db
		store = postgres.New(db, log.Named("postgres"))

	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		b.Close()
		return nil, err
	}

	log.Info("dataset storage ready", zap.String("backend", string(cfg.Storage.Backend)))
	b.Store = Instrument(store, string(cfg.Storage.Backend), m, log)
	return b, nil
}

func newLocker(cfg config.LockConfig) (lock.Locker, func()) {
	if cfg.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		return lock.NewRedis(client, cfg.TTL, cfg.Wait), func() { _ = client.Close() }
	}
	return lock.NewLocal(cfg.Wait), func() {}
}
