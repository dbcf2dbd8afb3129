package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/foodlens/quotagate/pkg/models"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
	Auth     AuthConfig
	Quota    QuotaConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	RateLimitBurst  int
}

// DatabaseConfig holds Postgres configuration for the postgres ledger
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN builds the pgx connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode, c.MaxConns, c.MinConns,
	)
}

// RedisConfig holds Redis configuration for the redis ledger
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// QueueConfig holds RabbitMQ configuration for usage events
type QueueConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// URL builds the AMQP connection URL.
func (c QueueConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d%s", c.User, c.Password, c.Host, c.Port, c.Vhost)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds the Prometheus scrape server configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// TracingConfig holds Jaeger tracing configuration
type TracingConfig struct {
	Enabled    bool
	Endpoint   string
	SampleRate float64
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// QuotaConfig holds quota enforcement configuration. Policies and
// benefit lists live here so reset cadence per (type, tier) is an
// operational decision, not code.
type QuotaConfig struct {
	// Store selects the ledger backend: memory, redis or postgres.
	Store string
	// FailOpen grants requests when the ledger is unreachable instead
	// of returning 503.
	FailOpen bool
	// JanitorInterval is how often expired records are swept. Zero
	// disables the janitor.
	JanitorInterval time.Duration
	// Retention is how long past its period end a record is kept
	// before the janitor may remove it.
	Retention time.Duration
	Policies  []PolicyConfig
	Benefits  map[string][]string
}

// PolicyConfig is one configured policy row. Limit -1 means unlimited,
// 0 means never allowed.
type PolicyConfig struct {
	QuotaType string
	Tier      string
	Limit     int64
	Period    time.Duration
}

// PolicyRows converts configured policies into model rows.
func (c QuotaConfig) PolicyRows() []models.Policy {
	rows := make([]models.Policy, 0, len(c.Policies))
	for _, p := range c.Policies {
		rows = append(rows, models.Policy{
			QuotaType:    models.QuotaType(p.QuotaType),
			Tier:         models.Tier(p.Tier),
			Limit:        p.Limit,
			PeriodLength: p.Period,
		})
	}
	return rows
}

// BenefitOverrides converts configured benefit lists into model keys.
func (c QuotaConfig) BenefitOverrides() map[models.QuotaType][]string {
	if len(c.Benefits) == 0 {
		return nil
	}
	out := make(map[models.QuotaType][]string, len(c.Benefits))
	for quotaType, list := range c.Benefits {
		out[models.QuotaType(quotaType)] = list
	}
	return out
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.rateLimitRPS", 50)
	v.SetDefault("server.rateLimitBurst", 100)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "quotagate")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Queue defaults
	v.SetDefault("queue.enabled", false)
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.sampleRate", 1.0)

	// Quota defaults
	v.SetDefault("quota.store", "memory")
	v.SetDefault("quota.failOpen", false)
	v.SetDefault("quota.janitorInterval", "10m")
	v.SetDefault("quota.retention", "720h") // 30 days
}
