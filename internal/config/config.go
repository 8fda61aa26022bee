package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	App      AppConfig
	Server   ServerConfig
	Storage  StorageConfig
	Drive    DriveConfig
	S3       S3Config
	Database DatabaseConfig
	Lock     LockConfig
	Model    ModelConfig
	Log      LogConfig
	Tracing  TracingConfig
	CORS     CORSConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Version     string
	// ErrorMode is "compat" (every failure except not-found is a 400) or "strict".
	ErrorMode string
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
}

func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageBackend string

const (
	BackendLocal    StorageBackend = "local"
	BackendDrive    StorageBackend = "drive"
	BackendS3       StorageBackend = "s3"
	BackendPostgres StorageBackend = "postgres"
)

func (b StorageBackend) IsValid() bool {
	switch b {
	case BackendLocal, BackendDrive, BackendS3, BackendPostgres:
		return true
	}
	return false
}

type StorageConfig struct {
	Backend StorageBackend
	// CSVPath is the dataset file for the local backend.
	CSVPath string
}

type DriveConfig struct {
	FileID          string
	CredentialsFile string
	BaseURL         string
	UploadURL       string
	Timeout         time.Duration
}

type S3Config struct {
	Bucket string
	Key    string
	Region string
	// Endpoint overrides the default resolver (MinIO, localstack).
	Endpoint     string
	UsePathStyle bool
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type LockConfig struct {
	Backend   string // "local" | "redis"
	RedisAddr string
	RedisDB   int
	TTL       time.Duration
	Wait      time.Duration
}

type ModelConfig struct {
	Kind         string // "logistic" | "rules" | "remote"
	ArtifactPath string
	RemoteURL    string
	Timeout      time.Duration
}

type LogConfig struct {
	Level      string
	Format     string
	OutputPath string
	// AuditOutputPath sends audit entries to their own sink. Empty means the
	// main log.
	AuditOutputPath string
}

type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRate  float64
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "chronicrisk-api"),
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "0.0.0"),
			ErrorMode:   getEnv("ERROR_MODE", "compat"),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxUploadBytes:  int64(getEnvInt("SERVER_MAX_UPLOAD_BYTES", 32<<20)),
		},
		Storage: StorageConfig{
			Backend: StorageBackend(getEnv("STORAGE_BACKEND", string(BackendLocal))),
			CSVPath: getEnv("STORAGE_CSV_PATH", "app/data/patients.csv"),
		},
		Drive: DriveConfig{
			FileID:          getEnv("DRIVE_FILE_ID", ""),
			CredentialsFile: getEnv("DRIVE_CREDENTIALS_FILE", "app/credentials.json"),
			BaseURL:         getEnv("DRIVE_BASE_URL", "https://www.googleapis.com/drive/v3"),
			UploadURL:       getEnv("DRIVE_UPLOAD_URL", "https://www.googleapis.com/upload/drive/v3"),
			Timeout:         getEnvDuration("DRIVE_TIMEOUT", 30*time.Second),
		},
		S3: S3Config{
			Bucket:       getEnv("S3_BUCKET", ""),
			Key:          getEnv("S3_KEY", "patients.csv"),
			Region:       getEnv("S3_REGION", "us-east-1"),
			Endpoint:     getEnv("S3_ENDPOINT", ""),
			UsePathStyle: getEnvBool("S3_USE_PATH_STYLE", false),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "chronicrisk"),
			User:            getEnv("DB_USER", "chronicrisk"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSLMODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Lock: LockConfig{
			Backend:   getEnv("LOCK_BACKEND", "local"),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:   getEnvInt("REDIS_DB", 0),
			TTL:       getEnvDuration("LOCK_TTL", 60*time.Second),
			Wait:      getEnvDuration("LOCK_WAIT", 30*time.Second),
		},
		Model: ModelConfig{
			Kind:         getEnv("MODEL_KIND", "logistic"),
			ArtifactPath: getEnv("MODEL_PATH", "app/model.json"),
			RemoteURL:    getEnv("MODEL_REMOTE_URL", "http://localhost:6000"),
			Timeout:      getEnvDuration("MODEL_TIMEOUT", 10*time.Second),
		},
		Log: LogConfig{
			Level:           getEnv("LOG_LEVEL", "info"),
			Format:          getEnv("LOG_FORMAT", "json"),
			OutputPath:      getEnv("LOG_OUTPUT", "stdout"),
			AuditOutputPath: getEnv("LOG_AUDIT_OUTPUT", ""),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			ServiceName: getEnv("TRACING_SERVICE_NAME", "chronicrisk-api"),
			Endpoint:    getEnv("OTLP_ENDPOINT", "otel-collector:4318"),
			SampleRate:  getEnvFloat("TRACING_SAMPLE_RATE", 0.1),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "X-Request-ID"}),
			MaxAge:         getEnvDuration("CORS_MAX_AGE", 12*time.Hour),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Sprintf("STORAGE_BACKEND %q is not one of local, drive, s3, postgres", cfg.Storage.Backend))
	}

	switch cfg.Storage.Backend {
	case BackendLocal:
		if cfg.Storage.CSVPath == "" {
			errs = append(errs, "STORAGE_CSV_PATH is required for the local backend")
		}
	case BackendDrive:
		if cfg.Drive.FileID == "" {
			errs = append(errs, "DRIVE_FILE_ID is required for the drive backend")
		}
		if cfg.Drive.CredentialsFile == "" {
			errs = append(errs, "DRIVE_CREDENTIALS_FILE is required for the drive backend")
		}
	case BackendS3:
		if cfg.S3.Bucket == "" {
			errs = append(errs, "S3_BUCKET is required for the s3 backend")
		}
	case BackendPostgres:
		if cfg.Database.Password == "" && cfg.App.Environment != "development" {
			errs = append(errs, "DB_PASSWORD is required in non-development environments")
		}
	}

	switch cfg.Model.Kind {
	case "logistic":
		if cfg.Model.ArtifactPath == "" {
			errs = append(errs, "MODEL_PATH is required for the logistic model")
		}
	case "remote":
		if cfg.Model.RemoteURL == "" {
			errs = append(errs, "MODEL_REMOTE_URL is required for the remote model")
		}
	case "rules":
	default:
		errs = append(errs, fmt.Sprintf("MODEL_KIND %q is not one of logistic, rules, remote", cfg.Model.Kind))
	}

	if cfg.Lock.Backend != "local" && cfg.Lock.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("LOCK_BACKEND %q is not one of local, redis", cfg.Lock.Backend))
	}

	if cfg.App.ErrorMode != "compat" && cfg.App.ErrorMode != "strict" {
		errs = append(errs, fmt.Sprintf("ERROR_MODE %q is not one of compat, strict", cfg.App.ErrorMode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
