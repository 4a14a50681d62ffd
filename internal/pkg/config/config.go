// internal/pkg/config/config.go
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingRequiredConfig is wrapped by validators when a required value is absent
var ErrMissingRequiredConfig = errors.New("missing required configuration")

const devJWTSecret = "development-secret-change-in-production"

// Config holds all application configuration
type Config struct {
	App            AppConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Asynq          AsynqConfig
	AWS            AWSConfig
	FileProcessing FileProcessingConfig
	Security       SecurityConfig
	Server         ServerConfig
	Catalog        CatalogConfig
	Events         EventsConfig
	Alerts         AlertsConfig
	Reports        ReportsConfig
}

type AppConfig struct {
	Name        string `required:"true"`
	Environment string // development, staging, production
	Version     string
	LogLevel    string
	LogFormat   string // json or text
	Debug       bool
	ELKURL      string
}

type DatabaseConfig struct {
	Host               string `required:"true"`
	Port               string `required:"true"`
	User               string
	Password           string
	Name               string `required:"true"`
	SSLMode            string
	MaxConnections     int32
	MinConnections     int32
	MaxConnLifetime    time.Duration
	MaxConnIdleTime    time.Duration
	HealthCheckPeriod  time.Duration
	ConnectTimeout     time.Duration
	StatementCacheMode string
	EnableQueryLogging bool
	MigrationRetries   int
}

type RedisConfig struct {
	Host            string
	Port            string
	Password        string
	DB              int
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	PoolSize        int
	MinIdleConns    int
	PoolTimeout     time.Duration
	// TTL bounds cached catalog lookups
	TTL time.Duration
}

// AsynqConfig configures the task broker shared by the API and the worker
type AsynqConfig struct {
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	Concurrency          int
	Queues               map[string]int // queue name -> priority
	StrictPriority       bool
	RetryMax             int
	ShutdownTimeout      time.Duration
	HealthCheckInterval  time.Duration
	DelayedTaskCheckTime time.Duration
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	S3Endpoint      string // MinIO in development
	UsePathStyle    bool
	SecretsProvider string // env or aws
	SecretName      string
}

// FileProcessingConfig bounds uploaded stock count and delivery note files
type FileProcessingConfig struct {
	PDFMaxSizeMB      int
	ExcelMaxSizeMB    int
	ProcessingTimeout time.Duration
	TempDir           string
	JobRetention      time.Duration
	TempFileMaxAge    time.Duration
}

type SecurityConfig struct {
	AuthEnabled       bool
	JWTSecret         string
	JWTIssuer         string
	RateLimitRequests int
	RateLimitDuration time.Duration
	AllowedOrigins    []string
	SecureHeaders     bool
	RequestIDHeader   string
}

type ServerConfig struct {
	Host            string
	Port            string `required:"true"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	GracefulTimeout time.Duration
	TLSEnabled      bool
	TLSCertFile     string
	TLSKeyFile      string
}

// CatalogConfig points at the product service
type CatalogConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
}

// EventsConfig selects how stock change events leave the service
type EventsConfig struct {
	Backend      string // asynq, kafka, inline, none
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string
}

type AlertsConfig struct {
	DefaultThreshold  int64
	ResolvedRetention time.Duration
	NotifyEmails      []string
	SMTPAddr          string
	SMTPFrom          string
}

type ReportsConfig struct {
	SourceTimeout        time.Duration
	TurnoverReceivedOnly bool
	IdempotencyTTL       time.Duration
	ExportURLExpiry      time.Duration
	ExportRetention      time.Duration
}

// Load reads configuration from the environment, plus a .env file in
// development. Malformed values are reported together rather than replaced
// by their defaults.
func Load(logger *slog.Logger) (*Config, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	dev := env == "development" || env == "local"
	prod := env == "production"

	if dev {
		if err := godotenv.Load(); err != nil {
			logger.Debug("no .env file loaded", slog.String("error", err.Error()))
		}
	}

	r := newEnvReader()
	redisHost, redisPort := r.str("REDIS_HOST", "localhost"), r.str("REDIS_PORT", "6379")
	redisPassword := r.str("REDIS_PASSWORD", "")

	cfg := &Config{
		App: AppConfig{
			Name:        r.str("APP_NAME", "stockflow"),
			Environment: env,
			Version:     r.str("APP_VERSION", "dev"),
			LogLevel:    r.str("LOG_LEVEL", "info"),
			LogFormat:   r.str("LOG_FORMAT", "json"),
			Debug:       r.boolean("APP_DEBUG", dev),
			ELKURL:      r.str("ELK_URL", ""),
		},
		Database: DatabaseConfig{
			Host:               r.str("DB_HOST", "localhost"),
			Port:               r.str("DB_PORT", "5432"),
			User:               r.str("DB_USER", "stockflow"),
			Password:           r.str("DB_PASSWORD", "stockflow_dev"),
			Name:               r.str("DB_NAME", "stockflow"),
			SSLMode:            r.str("DB_SSL_MODE", "disable"),
			MaxConnections:     int32(r.integer("DB_MAX_CONNECTIONS", 25)),
			MinConnections:     int32(r.integer("DB_MIN_CONNECTIONS", 5)),
			MaxConnLifetime:    r.duration("DB_CONNECTION_LIFETIME", time.Hour),
			MaxConnIdleTime:    r.duration("DB_IDLE_TIME", 30*time.Minute),
			HealthCheckPeriod:  r.duration("DB_HEALTH_CHECK_PERIOD", time.Minute),
			ConnectTimeout:     r.duration("DB_CONNECT_TIMEOUT", 10*time.Second),
			StatementCacheMode: r.str("DB_STATEMENT_CACHE_MODE", "describe"),
			EnableQueryLogging: r.boolean("DB_QUERY_LOGGING", false),
			MigrationRetries:   r.integer("DB_MIGRATION_RETRIES", 5),
		},
		Redis: RedisConfig{
			Host:            redisHost,
			Port:            redisPort,
			Password:        redisPassword,
			DB:              r.integer("REDIS_DB", 0),
			MaxRetries:      r.integer("REDIS_MAX_RETRIES", 3),
			MinRetryBackoff: r.duration("REDIS_MIN_RETRY_BACKOFF", 8*time.Millisecond),
			MaxRetryBackoff: r.duration("REDIS_MAX_RETRY_BACKOFF", 512*time.Millisecond),
			DialTimeout:     r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:     r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:    r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolSize:        r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns:    r.integer("REDIS_MIN_IDLE_CONNS", 2),
			PoolTimeout:     r.duration("REDIS_POOL_TIMEOUT", 4*time.Second),
			TTL:             r.duration("REDIS_TTL", time.Hour),
		},
		Asynq: AsynqConfig{
			RedisAddr:            net.JoinHostPort(redisHost, redisPort),
			RedisPassword:        redisPassword,
			RedisDB:              r.integer("ASYNQ_REDIS_DB", 0),
			Concurrency:          r.integer("ASYNQ_CONCURRENCY", 10),
			Queues:               r.queues("ASYNQ_QUEUES", "critical:6,default:3,low:1"),
			StrictPriority:       r.boolean("ASYNQ_STRICT_PRIORITY", false),
			RetryMax:             r.integer("ASYNQ_RETRY_MAX", 3),
			ShutdownTimeout:      r.duration("ASYNQ_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthCheckInterval:  r.duration("ASYNQ_HEALTH_CHECK_INTERVAL", 30*time.Second),
			DelayedTaskCheckTime: r.duration("ASYNQ_DELAYED_TASK_CHECK", 5*time.Second),
		},
		AWS: AWSConfig{
			Region:          r.str("AWS_REGION", "us-east-1"),
			AccessKeyID:     r.str("AWS_ACCESS_KEY_ID", "minioadmin"),
			SecretAccessKey: r.str("AWS_SECRET_ACCESS_KEY", "minioadmin123"),
			S3Bucket:        r.str("AWS_S3_BUCKET", "stockflow-exports"),
			S3Endpoint:      r.str("AWS_S3_ENDPOINT", ""),
			UsePathStyle:    r.boolean("AWS_S3_PATH_STYLE", dev),
			SecretsProvider: r.str("SECRETS_PROVIDER", "env"),
			SecretName:      r.str("AWS_SECRET_NAME", "stockflow/"+env),
		},
		FileProcessing: FileProcessingConfig{
			PDFMaxSizeMB:      r.integer("PDF_MAX_SIZE_MB", 20),
			ExcelMaxSizeMB:    r.integer("EXCEL_MAX_SIZE_MB", 20),
			ProcessingTimeout: r.duration("PROCESSING_TIMEOUT", 5*time.Minute),
			TempDir:           r.str("TEMP_DIR", os.TempDir()),
			JobRetention:      r.duration("JOB_RETENTION", 7*24*time.Hour),
			TempFileMaxAge:    r.duration("TEMP_FILE_MAX_AGE", 24*time.Hour),
		},
		Security: SecurityConfig{
			AuthEnabled:       r.boolean("AUTH_ENABLED", prod),
			JWTSecret:         r.str("JWT_SECRET", defaultJWTSecret(prod)),
			JWTIssuer:         r.str("JWT_ISSUER", ""),
			RateLimitRequests: r.integer("RATE_LIMIT_REQUESTS", 100),
			RateLimitDuration: r.duration("RATE_LIMIT_DURATION", time.Minute),
			AllowedOrigins:    r.list("ALLOWED_ORIGINS", []string{"*"}),
			SecureHeaders:     r.boolean("SECURE_HEADERS", prod),
			RequestIDHeader:   r.str("REQUEST_ID_HEADER", "X-Request-ID"),
		},
		Server: ServerConfig{
			Host:            r.str("SERVER_HOST", "0.0.0.0"),
			Port:            r.str("SERVER_PORT", "8080"),
			ReadTimeout:     r.duration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    r.duration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     r.duration("SERVER_IDLE_TIMEOUT", time.Minute),
			MaxHeaderBytes:  r.integer("SERVER_MAX_HEADER_BYTES", 1<<20),
			GracefulTimeout: r.duration("SERVER_GRACEFUL_TIMEOUT", 30*time.Second),
			TLSEnabled:      r.boolean("TLS_ENABLED", false),
			TLSCertFile:     r.str("TLS_CERT_FILE", ""),
			TLSKeyFile:      r.str("TLS_KEY_FILE", ""),
		},
		Catalog: CatalogConfig{
			BaseURL:        r.str("CATALOG_BASE_URL", "http://localhost:8081"),
			RequestTimeout: r.duration("CATALOG_REQUEST_TIMEOUT", 3*time.Second),
			MaxRetries:     r.integer("CATALOG_MAX_RETRIES", 2),
		},
		Events: EventsConfig{
			Backend:      r.str("EVENTS_BACKEND", "asynq"),
			KafkaBrokers: r.list("KAFKA_BROKERS", []string{"localhost:9092"}),
			KafkaTopic:   r.str("KAFKA_STOCK_TOPIC", "stock.changed"),
			KafkaGroupID: r.str("KAFKA_GROUP_ID", "stockflow-alerts"),
		},
		Alerts: AlertsConfig{
			DefaultThreshold:  int64(r.integer("ALERT_DEFAULT_THRESHOLD", 10)),
			ResolvedRetention: r.duration("ALERT_RESOLVED_RETENTION", 30*24*time.Hour),
			NotifyEmails:      r.list("ALERT_NOTIFY_EMAILS", nil),
			SMTPAddr:          r.str("SMTP_ADDR", ""),
			SMTPFrom:          r.str("SMTP_FROM", "alerts@stockflow.local"),
		},
		Reports: ReportsConfig{
			SourceTimeout:        r.duration("REPORT_SOURCE_TIMEOUT", 5*time.Second),
			TurnoverReceivedOnly: r.boolean("REPORT_TURNOVER_RECEIVED_ONLY", false),
			IdempotencyTTL:       r.duration("IDEMPOTENCY_TTL", 24*time.Hour),
			ExportURLExpiry:      r.duration("REPORT_EXPORT_URL_EXPIRY", time.Hour),
			ExportRetention:      r.duration("REPORT_EXPORT_RETENTION", 7*24*time.Hour),
		},
	}
	if err := r.err(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if cfg.AWS.SecretsProvider == "aws" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sm, err := NewAWSSecretsManager(ctx, cfg.AWS.Region, cfg.AWS.SecretName, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create secrets manager: %w", err)
		}
		if err := ApplySecrets(ctx, cfg, sm); err != nil {
			return nil, fmt.Errorf("failed to load secrets: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// GetDatabaseURL returns the postgres connection URL
func (c *Config) GetDatabaseURL() string {
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     net.JoinHostPort(c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.Database.SSLMode),
	}
	return u.String()
}

func (c *Config) GetServerAddress() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddress() string {
	return net.JoinHostPort(c.Redis.Host, c.Redis.Port)
}

// UploadDir is where uploaded import files wait for the worker
func (c *Config) UploadDir() string {
	return filepath.Join(c.FileProcessing.TempDir, "stockflow-uploads")
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "local"
}

func defaultJWTSecret(prod bool) string {
	if prod {
		return ""
	}
	return devJWTSecret
}

// envReader reads typed values through viper, collecting parse failures
type envReader struct {
	v    *viper.Viper
	errs []error
}

func newEnvReader() *envReader {
	v := viper.New()
	v.AutomaticEnv()
	return &envReader{v: v}
}

func (r *envReader) str(key, def string) string {
	if s := strings.TrimSpace(r.v.GetString(key)); s != "" {
		return s
	}
	return def
}

func readAs[T any](r *envReader, key string, def T, parse func(string) (T, error)) T {
	s := r.str(key, "")
	if s == "" {
		return def
	}
	v, err := parse(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, s, err))
		return def
	}
	return v
}

func (r *envReader) boolean(key string, def bool) bool {
	return readAs(r, key, def, strconv.ParseBool)
}

func (r *envReader) integer(key string, def int) int {
	return readAs(r, key, def, strconv.Atoi)
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	return readAs(r, key, def, time.ParseDuration)
}

// list splits a comma separated value, dropping empty items
func (r *envReader) list(key string, def []string) []string {
	return readAs(r, key, def, func(s string) ([]string, error) {
		var out []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	})
}

// queues parses name:priority pairs
func (r *envReader) queues(key, def string) map[string]int {
	parse := func(s string) (map[string]int, error) {
		out := map[string]int{}
		for _, pair := range strings.Split(s, ",") {
			name, prio, ok := strings.Cut(strings.TrimSpace(pair), ":")
			if !ok {
				return nil, fmt.Errorf("queue %q has no priority", pair)
			}
			p, err := strconv.Atoi(prio)
			if err != nil || p <= 0 {
				return nil, fmt.Errorf("queue %q has invalid priority", pair)
			}
			out[name] = p
		}
		return out, nil
	}
	fallback, _ := parse(def)
	return readAs(r, key, fallback, parse)
}

func (r *envReader) err() error {
	return errors.Join(r.errs...)
}
