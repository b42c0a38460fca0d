package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/tally/pkg/archive"
	"github.com/platinummonkey/tally/pkg/cache"
	"github.com/platinummonkey/tally/pkg/observability"
	"github.com/platinummonkey/tally/pkg/storage"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file
const ConfigFileEnv = "TALLY_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Auth          AuthConfig          `yaml:"auth"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Aggregator    AggregatorConfig    `yaml:"aggregator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	CORSOrigins  []string `yaml:"cors_origins"`
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
}

// CacheConfig selects and tunes the dashboard result cache
type CacheConfig struct {
	Type       string        `yaml:"type"` // "memory", "redis" or "none"
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`

	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	KeyPrefix       string `yaml:"key_prefix"`
}

// AuthConfig maps bearer tokens to the account they act for
type AuthConfig struct {
	Tokens map[string]string `yaml:"tokens"`
}

// ArchiveConfig enables copying generated rollups to S3
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Prefix       string `yaml:"prefix"`
	CreateBucket bool   `yaml:"create_bucket"`
}

// AggregatorConfig holds the batch rollup schedule (standard 5-field cron, UTC)
type AggregatorConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	DailySchedule   string        `yaml:"daily_schedule"`
	WeeklySchedule  string        `yaml:"weekly_schedule"`
	MonthlySchedule string        `yaml:"monthly_schedule"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool          `yaml:"otel_enabled"`
	OTelEndpoint       string        `yaml:"otel_endpoint"`
	OTelServiceName    string        `yaml:"otel_service_name"`
	OTelServiceVersion string        `yaml:"otel_service_version"`
	OTelInsecure       bool          `yaml:"otel_insecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64       `yaml:"otel_sample_ratio"`
	OTelEnvironment    string        `yaml:"otel_environment"`
	OTelExportInterval time.Duration `yaml:"otel_export_interval"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			CORSOrigins:     []string{"http://localhost:5173"},
			MaxBodyBytes:    10 << 20,
		},
		Storage: storage.DefaultConfig(),
		Cache: CacheConfig{
			Type:       "memory",
			TTL:        10 * time.Minute,
			MaxEntries: cache.DefaultMaxEntries,
			RedisURL:   "redis://localhost:6379/0",
			KeyPrefix:  cache.DefaultKeyPrefix,
		},
		Auth: AuthConfig{Tokens: map[string]string{}},
		Archive: ArchiveConfig{
			Region: "us-east-1",
		},
		Aggregator: AggregatorConfig{
			Concurrency:     4,
			DailySchedule:   "5 0 * * *",
			WeeklySchedule:  "15 0 * * 1",
			MonthlySchedule: "30 0 1 * *",
			RunTimeout:      30 * time.Minute,
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "tally",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1.0,
			OTelExportInterval: 10 * time.Second,
		},
	}
}

// LoadConfig builds the configuration from defaults, the optional YAML file named by
// TALLY_CONFIG_FILE, then TALLY_* environment variables, and validates the result
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// mergeFile overlays the YAML document at path onto cfg
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	s := &c.Server
	s.Host = getEnv("TALLY_HOST", s.Host)
	s.Port = getEnv("TALLY_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("TALLY_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("TALLY_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("TALLY_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("TALLY_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("TALLY_HEALTH_PORT", s.HealthPort)
	if origins := getEnv("TALLY_CORS_ORIGINS", ""); origins != "" {
		s.CORSOrigins = splitList(origins)
	}
	s.MaxBodyBytes = int64(getEnvInt("TALLY_MAX_BODY_BYTES", int(s.MaxBodyBytes)))

	st := &c.Storage
	st.Type = getEnv("TALLY_STORAGE_TYPE", st.Type)
	st.PostgresURL = getEnv("TALLY_POSTGRES_URL", st.PostgresURL)
	if replicas := getEnv("TALLY_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		st.PostgresReplicaURLs = splitList(replicas)
	}
	st.PostgresMaxConns = getEnvInt("TALLY_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("TALLY_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("TALLY_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.PostgresMaxLifetime = getEnvDuration("TALLY_POSTGRES_MAX_LIFETIME", st.PostgresMaxLifetime)
	st.PostgresMaxIdleTime = getEnvDuration("TALLY_POSTGRES_MAX_IDLE_TIME", st.PostgresMaxIdleTime)
	st.AutoMigrate = getEnvBool("TALLY_AUTO_MIGRATE", st.AutoMigrate)

	ca := &c.Cache
	ca.Type = getEnv("TALLY_CACHE_TYPE", ca.Type)
	ca.TTL = getEnvDuration("TALLY_CACHE_TTL", ca.TTL)
	ca.MaxEntries = getEnvInt("TALLY_CACHE_MAX_ENTRIES", ca.MaxEntries)
	ca.RedisURL = getEnv("TALLY_REDIS_URL", ca.RedisURL)
	ca.RedisPassword = getEnv("TALLY_REDIS_PASSWORD", ca.RedisPassword)
	ca.RedisDB = getEnvInt("TALLY_REDIS_DB", ca.RedisDB)
	ca.RedisMaxRetries = getEnvInt("TALLY_REDIS_MAX_RETRIES", ca.RedisMaxRetries)
	ca.RedisPoolSize = getEnvInt("TALLY_REDIS_POOL_SIZE", ca.RedisPoolSize)
	ca.KeyPrefix = getEnv("TALLY_CACHE_KEY_PREFIX", ca.KeyPrefix)

	if raw := getEnv("TALLY_AUTH_TOKENS", ""); raw != "" {
		tokens, err := parseTokens(raw)
		if err != nil {
			return err
		}
		if c.Auth.Tokens == nil {
			c.Auth.Tokens = map[string]string{}
		}
		for token, account := range tokens {
			c.Auth.Tokens[token] = account
		}
	}

	ar := &c.Archive
	ar.Enabled = getEnvBool("TALLY_ARCHIVE_ENABLED", ar.Enabled)
	ar.Bucket = getEnv("TALLY_S3_BUCKET", ar.Bucket)
	ar.Region = getEnv("TALLY_S3_REGION", ar.Region)
	ar.Endpoint = getEnv("TALLY_S3_ENDPOINT", ar.Endpoint)
	ar.AccessKey = getEnv("TALLY_S3_ACCESS_KEY", ar.AccessKey)
	ar.SecretKey = getEnv("TALLY_S3_SECRET_KEY", ar.SecretKey)
	ar.UsePathStyle = getEnvBool("TALLY_S3_USE_PATH_STYLE", ar.UsePathStyle)
	ar.Prefix = getEnv("TALLY_S3_PREFIX", ar.Prefix)
	ar.CreateBucket = getEnvBool("TALLY_S3_CREATE_BUCKET", ar.CreateBucket)

	ag := &c.Aggregator
	ag.Concurrency = getEnvInt("TALLY_AGGREGATOR_CONCURRENCY", ag.Concurrency)
	ag.DailySchedule = getEnv("TALLY_DAILY_SCHEDULE", ag.DailySchedule)
	ag.WeeklySchedule = getEnv("TALLY_WEEKLY_SCHEDULE", ag.WeeklySchedule)
	ag.MonthlySchedule = getEnv("TALLY_MONTHLY_SCHEDULE", ag.MonthlySchedule)
	ag.RunTimeout = getEnvDuration("TALLY_AGGREGATOR_RUN_TIMEOUT", ag.RunTimeout)

	o := &c.Observability
	if level := getEnv("TALLY_LOG_LEVEL", ""); level != "" {
		parsed, err := observability.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("TALLY_LOG_LEVEL: %w", err)
		}
		o.LogLevel = parsed
	}
	o.MetricsEnabled = getEnvBool("TALLY_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("TALLY_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("TALLY_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("TALLY_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("TALLY_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("TALLY_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("TALLY_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
	o.OTelEnvironment = getEnv("TALLY_OTEL_ENVIRONMENT", o.OTelEnvironment)
	o.OTelExportInterval = getEnvDuration("TALLY_OTEL_EXPORT_INTERVAL", o.OTelExportInterval)

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return errors.New("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be postgres or memory)", c.Storage.Type)
	}

	switch c.Cache.Type {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisURL == "" {
			return errors.New("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be memory, redis, or none)", c.Cache.Type)
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache TTL must not be negative")
	}

	for token, account := range c.Auth.Tokens {
		if strings.TrimSpace(token) == "" || strings.TrimSpace(account) == "" {
			return errors.New("auth tokens must map a non-empty token to a non-empty account")
		}
	}

	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("S3 bucket is required when the archive is enabled")
	}

	if c.Aggregator.Concurrency < 1 {
		return errors.New("aggregator concurrency must be at least 1")
	}
	for name, spec := range map[string]string{
		"daily":   c.Aggregator.DailySchedule,
		"weekly":  c.Aggregator.WeeklySchedule,
		"monthly": c.Aggregator.MonthlySchedule,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		return errors.New("OpenTelemetry sample ratio must be between 0 and 1")
	}

	return nil
}

// OTel converts the observability settings for observability.InitOTel
func (c *Config) OTel() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
		Environment:    o.OTelEnvironment,
		ExportInterval: o.OTelExportInterval,
	}
}

// Redis converts the cache settings for cache.NewRedisClient
func (c *Config) Redis() cache.RedisConfig {
	return cache.RedisConfig{
		URL:        c.Cache.RedisURL,
		Password:   c.Cache.RedisPassword,
		DB:         c.Cache.RedisDB,
		MaxRetries: c.Cache.RedisMaxRetries,
		PoolSize:   c.Cache.RedisPoolSize,
		KeyPrefix:  c.Cache.KeyPrefix,
	}
}

// S3 converts the archive settings for archive.NewS3Client
func (c *Config) S3() archive.Config {
	a := c.Archive
	return archive.Config{
		Bucket:       a.Bucket,
		Region:       a.Region,
		Endpoint:     a.Endpoint,
		AccessKey:    a.AccessKey,
		SecretKey:    a.SecretKey,
		UsePathStyle: a.UsePathStyle,
		Prefix:       a.Prefix,
		CreateBucket: a.CreateBucket,
	}
}

// parseTokens reads "token=account" pairs separated by commas
func parseTokens(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range splitList(raw) {
		token, account, ok := strings.Cut(pair, "=")
		token, account = strings.TrimSpace(token), strings.TrimSpace(account)
		if !ok || token == "" || account == "" {
			return nil, fmt.Errorf("TALLY_AUTH_TOKENS: malformed entry %q (want token=account)", pair)
		}
		out[token] = account
	}
	return out, nil
}

// splitList splits a comma separated list, dropping empty entries
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
