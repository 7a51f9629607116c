// Package config loads and validates deployctl config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// InsecureSecretKeyPrefix marks the development SECRET_KEY shipped in sample
// env files. Production deploys must not run with it.
const InsecureSecretKeyPrefix = "django-insecure"

// Config holds deployctl configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for the application database.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the Redis URL used by the application cache (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// BaseDomain is the apex domain tenant subdomains hang off (e.g. zentoerp.com; localhost in dev).
	BaseDomain string `mapstructure:"BASE_DOMAIN"`
	// DevPort is appended to localhost tenant domains in development (e.g. 8000).
	DevPort string `mapstructure:"DEV_PORT"`
	// Env is the application environment: development, staging or production.
	Env string `mapstructure:"APP_ENV"`
	// SecretKey is the application secret; only inspected by verify, never logged.
	SecretKey string `mapstructure:"SECRET_KEY"`
	// AllowedHosts is the comma-separated host allowlist the app is configured with.
	AllowedHosts string `mapstructure:"ALLOWED_HOSTS"`
	// StaticSourceDirs is a comma-separated list of asset source directories.
	StaticSourceDirs string `mapstructure:"STATIC_SOURCE_DIRS"`
	// StaticRoot is the directory collected assets are written to.
	StaticRoot string `mapstructure:"STATIC_ROOT"`
	// HealthURL is the application health endpoint probed after deploy.
	HealthURL string `mapstructure:"HEALTH_URL"`
	// DBWaitAttempts bounds the wait-db retry loop.
	DBWaitAttempts int `mapstructure:"DB_WAIT_ATTEMPTS"`
	// DBWaitInterval is the initial backoff between wait-db attempts (e.g. "2s").
	DBWaitInterval string `mapstructure:"DB_WAIT_INTERVAL"`
	// HealthAttempts bounds the health probe retry loop.
	HealthAttempts int `mapstructure:"HEALTH_ATTEMPTS"`
	// BcryptCost is the bcrypt cost factor (4–31) for seeded admin passwords; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// Telemetry (optional). When Kafka brokers are set, deploy runs emit step events to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the Kafka topic for deploy events (default zento-deploy-events).
	KafkaTopic string `mapstructure:"DEPLOY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the telemetry worker pushes to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// OTLPEndpoint enables OpenTelemetry export when set (e.g. http://localhost:4317).
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("BASE_DOMAIN", "localhost")
	v.SetDefault("DEV_PORT", "8000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SECRET_KEY", "")
	v.SetDefault("ALLOWED_HOSTS", "")
	v.SetDefault("STATIC_SOURCE_DIRS", "static")
	v.SetDefault("STATIC_ROOT", "staticfiles")
	v.SetDefault("HEALTH_URL", "http://localhost:8000/health/")
	v.SetDefault("DB_WAIT_ATTEMPTS", 10)
	v.SetDefault("DB_WAIT_INTERVAL", "2s")
	v.SetDefault("HEALTH_ATTEMPTS", 5)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("DEPLOY_KAFKA_TOPIC", "zento-deploy-events")
	v.SetDefault("KAFKA_GROUP_ID", "zento-deploy-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.DBWaitAttempts < 1 {
		return nil, errors.New("config: DB_WAIT_ATTEMPTS must be at least 1")
	}
	if cfg.HealthAttempts < 1 {
		return nil, errors.New("config: HEALTH_ATTEMPTS must be at least 1")
	}

	if cfg.Production() && strings.HasPrefix(cfg.SecretKey, InsecureSecretKeyPrefix) {
		return nil, errors.New("config: SECRET_KEY is a development key; set a real one when APP_ENV=production")
	}

	return &cfg, nil
}

// Production reports whether the environment is production.
func (c *Config) Production() bool {
	return c != nil && c.Env == "production"
}

// DBWaitBackoff parses DBWaitInterval as a time.Duration. Returns 2s if unset or invalid.
func (c *Config) DBWaitBackoff() time.Duration {
	d, err := time.ParseDuration(c.DBWaitInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// AllowedHostsList returns the host allowlist from the comma-separated config.
func (c *Config) AllowedHostsList() []string {
	return splitList(c.AllowedHosts)
}

// StaticSourceList returns asset source directories in precedence order.
func (c *Config) StaticSourceList() []string {
	return splitList(c.StaticSourceDirs)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
