package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dmehra2102/prod-golang-projects/chronicrisk/internal/config"
)

// New builds the service logger. Every entry carries the service name,
// version and environment so logs from several replicas can be told apart.
func New(cfg config.LogConfig, app config.AppConfig) (*zap.Logger, error) {
	zapCfg, err := baseConfig(cfg)
	if err != nil {
		return nil, err
	}
	zapCfg.OutputPaths = []string{cfg.OutputPath}
	zapCfg.InitialFields = map[string]any{
		"service": app.Name,
		"version": app.Version,
		"env":     app.Environment,
	}

	logger, err := zapCfg.Build(
		zap.WithCaller(true),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}

// NewAudit builds the logger that receives audit entries when no database
// is configured. With LOG_AUDIT_OUTPUT unset it is base itself. Audit
// entries are never sampled.
func NewAudit(cfg config.LogConfig, base *zap.Logger) (*zap.Logger, error) {
	if cfg.AuditOutputPath == "" {
		return base.Named("audit"), nil
	}

	zapCfg, err := baseConfig(cfg)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	zapCfg.Sampling = nil
	zapCfg.OutputPaths = []string{cfg.AuditOutputPath}

	logger, err := zapCfg.Build(zap.WithCaller(false))
	if err != nil {
		return nil, fmt.Errorf("building audit logger: %w", err)
	}
	return logger.Named("audit"), nil
}

func baseConfig(cfg config.LogConfig) (zap.Config, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.ErrorOutputPaths = []string{"stderr"}
	return zapCfg, nil
}
