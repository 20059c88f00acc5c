package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Togather-Foundation/eventos/internal/validation"
)

type Config struct {
	Database    DatabaseConfig `yaml:"database"`
	Logging     LoggingConfig  `yaml:"logging"`
	Tracing     TracingConfig  `yaml:"tracing"`
	Media       MediaConfig    `yaml:"media"`
	Events      EventsConfig   `yaml:"events"`
	Notify      NotifyConfig   `yaml:"notify"`
	Metrics     MetricsConfig  `yaml:"metrics"`
	Environment string         `yaml:"environment"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MigrationsPath string `yaml:"migrations_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// MediaConfig selects where promoted artifacts live. Dirs maps a media class to its
// directory under Root; Rules overrides the built-in per-class acceptance rules.
type MediaConfig struct {
	Backend   string                     `yaml:"backend"`
	Root      string                     `yaml:"root"`
	URLPrefix string                     `yaml:"url_prefix"`
	Dirs      map[string]string          `yaml:"dirs"`
	Rules     map[string]MediaRuleConfig `yaml:"rules"`
	S3        S3Config                   `yaml:"s3"`
}

type MediaRuleConfig struct {
	Width      int      `yaml:"width"`
	Height     int      `yaml:"height"`
	MaxBytes   int64    `yaml:"max_bytes"`
	Extensions []string `yaml:"extensions"`
}

type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

type EventsConfig struct {
	DefaultStatus    string `yaml:"default_status"`
	CancelledEnabled bool   `yaml:"cancelled_enabled"`
}

type NotifyConfig struct {
	NATSURL    string `yaml:"nats_url"`
	ClientName string `yaml:"client_name"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

const (
	MediaBackendDisk = "disk"
	MediaBackendS3   = "s3"
)

// Defaults returns the configuration used when neither a file nor the environment sets a
// value.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			MaxConnections: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "eventos",
			SampleRate:  1.0,
		},
		Media: MediaConfig{
			Backend:   MediaBackendDisk,
			Root:      "uploads",
			URLPrefix: "/uploads",
			Dirs: map[string]string{
				"capa":      "capa",
				"video":     "video",
				"carrossel": "carrossel",
			},
			S3: S3Config{Region: "us-east-1"},
		},
		Events: EventsConfig{
			DefaultStatus: "inativo",
		},
		Notify: NotifyConfig{
			ClientName: "eventos",
		},
		Metrics: MetricsConfig{
			Job: "eventos",
		},
		Environment: "development",
	}
}

// Load builds the configuration from defaults, then the YAML file at path (skipped when
// path is empty), then the environment. DATABASE_URL is required.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MigrationsPath = getEnv("DATABASE_MIGRATIONS_PATH", cfg.Database.MigrationsPath)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Media.Backend = getEnv("MEDIA_BACKEND", cfg.Media.Backend)
	cfg.Media.Root = getEnv("MEDIA_ROOT", cfg.Media.Root)
	cfg.Media.URLPrefix = getEnv("MEDIA_URL_PREFIX", cfg.Media.URLPrefix)
	cfg.Media.S3.Bucket = getEnv("MEDIA_S3_BUCKET", cfg.Media.S3.Bucket)
	cfg.Media.S3.Region = getEnv("MEDIA_S3_REGION", cfg.Media.S3.Region)
	cfg.Media.S3.Endpoint = getEnv("MEDIA_S3_ENDPOINT", cfg.Media.S3.Endpoint)
	cfg.Media.S3.UsePathStyle = getEnvBool("MEDIA_S3_USE_PATH_STYLE", cfg.Media.S3.UsePathStyle)

	cfg.Events.DefaultStatus = getEnv("EVENTS_DEFAULT_STATUS", cfg.Events.DefaultStatus)
	cfg.Events.CancelledEnabled = getEnvBool("EVENTS_CANCELLED_ENABLED", cfg.Events.CancelledEnabled)

	cfg.Notify.NATSURL = getEnv("NATS_URL", cfg.Notify.NATSURL)

	cfg.Metrics.PushgatewayURL = getEnv("METRICS_PUSHGATEWAY_URL", cfg.Metrics.PushgatewayURL)
	cfg.Metrics.Job = getEnv("METRICS_JOB", cfg.Metrics.Job)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.Media.Backend {
	case MediaBackendDisk:
	case MediaBackendS3:
		if c.Media.S3.Bucket == "" {
			return fmt.Errorf("MEDIA_S3_BUCKET is required when MEDIA_BACKEND is s3")
		}
	default:
		return fmt.Errorf("unsupported MEDIA_BACKEND %q (must be 'disk' or 's3')", c.Media.Backend)
	}
	for class, dir := range c.Media.Dirs {
		if strings.TrimSpace(dir) == "" {
			return fmt.Errorf("media directory for %q is empty", class)
		}
	}
	if err := validation.BaseURL(c.Media.S3.Endpoint, "MEDIA_S3_ENDPOINT", c.Environment == "production"); err != nil {
		return err
	}
	if err := validation.HTTPURL(c.Metrics.PushgatewayURL, "METRICS_PUSHGATEWAY_URL", false); err != nil {
		return err
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
