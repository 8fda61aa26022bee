package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/features"
	v1 "github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/handler/v1"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/model"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/service"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/storage/postgres"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/chronicrisk/pkg/tracer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chronicrisk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return err
	}
	defer log.Sync()

	shutdownTracer, err := tracer.Init(context.Background(), cfg.Tracing, cfg.App.Version)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(ctx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	m := metrics.NewCollector("chronicrisk", prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := storage.Open(ctx, cfg, m, log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer backend.Close()

	classifier, pipeline, err := model.Load(cfg.Model, features.Default(), log.Named("model"))
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}

	auditLog, err := logger.NewAudit(cfg.Log, log)
	if err != nil {
		return err
	}
	var auditRepo service.AuditRepository = service.NewLogAuditRepository(auditLog)
	if backend.DB != nil {
		auditRepo = postgres.NewAuditStore(backend.DB)
	}
	auditSvc := service.NewAuditService(auditRepo, m, log)
	defer auditSvc.Shutdown()

	patientSvc := service.NewPatientService(backend.Store, pipeline, classifier, auditSvc, m, log)

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := v1.NewRouter(v1.RouterDeps{
		Patients:       v1.NewPatientHandler(patientSvc, v1.ErrorMode(cfg.App.ErrorMode), cfg.Server.MaxUploadBytes),
		Metrics:        m,
		MetricsHandler: metrics.MetricsHandler(),
		CORS:           cfg.CORS,
		Version:        cfg.App.Version,
		Log:            log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening",
			zap.String("addr", srv.Addr),
			zap.String("storage", string(cfg.Storage.Backend)),
			zap.String("model", cfg.Model.Kind),
			zap.String("error_mode", cfg.App.ErrorMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	log.Info("server stopped")
	return nil
}
