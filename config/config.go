package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yml"

var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

type Config struct {
	Taxiflow   AppConfig        `yaml:"taxiflow"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Fetcher    FetcherConfig    `yaml:"fetcher"`
	Reader     ReaderConfig     `yaml:"reader"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	Quality    QualityConfig    `yaml:"quality"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Writer     WriterConfig     `yaml:"writer"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer       int `yaml:"raw_buffer"`
	ProcessedBuffer int `yaml:"processed_buffer"`
}

// FetcherConfig drives downloads of the monthly TLC trip files.
type FetcherConfig struct {
	BaseURL           string        `yaml:"base_url"`
	DataDir           string        `yaml:"data_dir"`
	Months            MonthRange    `yaml:"months"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

type ReaderConfig struct {
	// Source is "local" (glob under DataDir) or "s3" (Storage.S3 bucket + Prefix).
	Source     string   `yaml:"source"`
	DataDir    string   `yaml:"data_dir"`
	Prefix     string   `yaml:"prefix"`
	Kinds      []string `yaml:"kinds"`
	MaxWorkers int      `yaml:"max_workers"`
	BatchSize  int      `yaml:"batch_size"`
}

type NormalizerConfig struct {
	ZeroFareTipPercentage float64 `yaml:"zero_fare_tip_percentage"`
	ZeroDurationSpeed     float64 `yaml:"zero_duration_speed"`
	TipPercentageCap      float64 `yaml:"tip_percentage_cap"`
	SpeedCap              float64 `yaml:"speed_cap"`
}

type QualityConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MaxDistance    float64 `yaml:"max_distance"`
	MinDuration    float64 `yaml:"min_duration_minutes"`
	MaxDuration    float64 `yaml:"max_duration_minutes"`
	MaxFareAmount  float64 `yaml:"max_fare_amount"`
	MaxTotalAmount float64 `yaml:"max_total_amount"`
}

type ProcessorConfig struct {
	MaxWorkers    int           `yaml:"max_workers"`
	BatchSize     int           `yaml:"batch_size"`
	BatchTimeout  time.Duration `yaml:"batch_timeout"`
	MaxRejections int           `yaml:"max_rejections"`
}

type WriterConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

type StorageConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Lake       LakeConfig       `yaml:"lake"`
	S3         S3Config         `yaml:"s3"`
	Kafka      KafkaConfig      `yaml:"kafka"`
}

type ClickHouseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type SQLiteConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LakeConfig writes hive partitioned parquet, to S3 when storage.s3 is
// enabled and to Dir otherwise.
type LakeConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Brokers   []string `yaml:"brokers"`
	Topic     string   `yaml:"topic"`
	BatchSize int      `yaml:"batch_size"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch     bool          `yaml:"cloudwatch"`
	Region         string        `yaml:"region"`
	Namespace      string        `yaml:"namespace"`
	DashboardName  string        `yaml:"dashboard_name"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

// DashboardConfig controls the HTTP monitor served while ingest runs.
type DashboardConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"`
	LogHistory     int           `yaml:"log_history"`
	MetricsHistory int           `yaml:"metrics_history"`
	SampleInterval time.Duration `yaml:"sample_interval"`
}

// Default returns the configuration used for keys missing from the file.
func Default() Config {
	return Config{
		Taxiflow: AppConfig{Name: "taxiflow", Version: "dev"},
		Channels: ChannelsConfig{RawBuffer: 64, ProcessedBuffer: 64},
		Fetcher: FetcherConfig{
			BaseURL:           "https://d37ci6vzurychx.cloudfront.net/trip-data",
			DataDir:           "data",
			RequestsPerSecond: 2,
			Timeout:           5 * time.Minute,
		},
		Reader: ReaderConfig{
			Source:     "local",
			DataDir:    "data",
			Kinds:      []string{"yellow", "green"},
			MaxWorkers: 4,
			BatchSize:  10000,
		},
		Quality: QualityConfig{
			MaxDistance:    200,
			MinDuration:    0.5,
			MaxDuration:    480,
			MaxFareAmount:  1000,
			MaxTotalAmount: 1000,
		},
		Processor: ProcessorConfig{
			MaxWorkers:    4,
			BatchSize:     50000,
			BatchTimeout:  5 * time.Second,
			MaxRejections: 1000,
		},
		Writer: WriterConfig{MaxWorkers: 2},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{Path: "taxiflow.db"},
			Lake:   LakeConfig{Dir: "lake", Prefix: "trips", Compression: "snappy"},
			Kafka:  KafkaConfig{Topic: "taxi-trips", BatchSize: 1000},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Metrics: MetricsConfig{Namespace: "TaxiFlow", ReportInterval: 30 * time.Second},
		Dashboard: DashboardConfig{
			Address:        ":8080",
			LogHistory:     200,
			MetricsHistory: 200,
			SampleInterval: 5 * time.Second,
		},
	}
}

// LoadConfig reads path (or the APP_ENV specific file when path is the
// default), applies environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, envConfigPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnv(config *Config) {
	if v := strings.TrimSpace(os.Getenv("CLICKHOUSE_CONNECTION_STRING")); v != "" {
		config.Storage.ClickHouse.DSN = v
		config.Storage.ClickHouse.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		config.Storage.Postgres.DSN = v
		config.Storage.Postgres.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		config.Storage.Kafka.Brokers = strings.Split(v, ",")
	}

	if config.Storage.S3.Enabled || config.Reader.Source == "s3" {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
}

// AnySinkEnabled reports whether at least one storage backend is configured.
func (c *Config) AnySinkEnabled() bool {
	s := c.Storage
	return s.ClickHouse.Enabled || s.Postgres.Enabled || s.SQLite.Enabled || s.Lake.Enabled || s.Kafka.Enabled
}

func validateConfig(cfg *Config) error {
	if cfg.Taxiflow.Name == "" {
		return fmt.Errorf("taxiflow.name is required")
	}
	if cfg.Taxiflow.Version == "" {
		return fmt.Errorf("taxiflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.ProcessedBuffer <= 0 {
		return fmt.Errorf("channels.processed_buffer must be greater than 0")
	}

	switch cfg.Reader.Source {
	case "local", "s3":
	default:
		return fmt.Errorf("reader.source must be local or s3, got '%s'", cfg.Reader.Source)
	}
	if cfg.Reader.MaxWorkers <= 0 {
		return fmt.Errorf("reader.max_workers must be greater than 0")
	}
	if cfg.Reader.BatchSize <= 0 {
		return fmt.Errorf("reader.batch_size must be greater than 0")
	}
	for _, k := range cfg.Reader.Kinds {
		if k != "yellow" && k != "green" {
			return fmt.Errorf("reader.kinds contains unknown taxi kind '%s'", k)
		}
	}

	if cfg.Normalizer.TipPercentageCap < 0 || cfg.Normalizer.SpeedCap < 0 {
		return fmt.Errorf("normalizer caps must not be negative")
	}

	if cfg.Quality.Enabled && cfg.Quality.MinDuration >= cfg.Quality.MaxDuration {
		return fmt.Errorf("quality.min_duration_minutes must be below quality.max_duration_minutes")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be greater than 0")
	}
	if cfg.Processor.BatchTimeout <= 0 {
		return fmt.Errorf("processor.batch_timeout must be greater than 0")
	}
	if cfg.Writer.MaxWorkers <= 0 {
		return fmt.Errorf("writer.max_workers must be greater than 0")
	}

	if cfg.Storage.ClickHouse.Enabled && cfg.Storage.ClickHouse.DSN == "" {
		return fmt.Errorf("storage.clickhouse.dsn is required when ClickHouse is enabled")
	}
	if cfg.Storage.Postgres.Enabled && cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when Postgres is enabled")
	}
	if cfg.Storage.SQLite.Enabled && cfg.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required when SQLite is enabled")
	}
	if cfg.Storage.Kafka.Enabled && (len(cfg.Storage.Kafka.Brokers) == 0 || cfg.Storage.Kafka.Topic == "") {
		return fmt.Errorf("storage.kafka.brokers and storage.kafka.topic are required when Kafka is enabled")
	}
	if IsProductionLike(AppEnvironment()) && !cfg.AnySinkEnabled() {
		return fmt.Errorf("at least one storage backend must be enabled in %s", AppEnvironment())
	}

	if cfg.Storage.S3.Enabled || cfg.Reader.Source == "s3" {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is used")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is used")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
