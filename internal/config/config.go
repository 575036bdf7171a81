package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NewRelic  NewRelicConfig  `mapstructure:"newrelic"`
	Log       LogConfig       `mapstructure:"log"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `mapstructure:"port"`
	Env            string        `mapstructure:"env"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// IsDevelopment reports whether internal error detail may be exposed to callers.
func (s ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
}

// NewRelicConfig holds New Relic configuration.
type NewRelicConfig struct {
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
	Enabled    bool   `mapstructure:"enabled"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// BookingConfig holds the business rules of the booking lifecycle.
type BookingConfig struct {
	TaxRate          float64 `mapstructure:"tax_rate"`
	FullRefundHours  float64 `mapstructure:"full_refund_hours"`
	HalfChargeHours  float64 `mapstructure:"half_charge_hours"`
	MinDurationHours int     `mapstructure:"min_duration_hours"`
	MaxDurationHours int     `mapstructure:"max_duration_hours"`
	MinLat           float64 `mapstructure:"min_lat"`
	MaxLat           float64 `mapstructure:"max_lat"`
	MinLng           float64 `mapstructure:"min_lng"`
	MaxLng           float64 `mapstructure:"max_lng"`
}

// PaymentConfig holds payment gateway configuration.
type PaymentConfig struct {
	Currency        string        `mapstructure:"currency"`
	StripeSecretKey string        `mapstructure:"stripe_secret_key"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// KafkaConfig holds lifecycle event publishing configuration.
// Empty Brokers disables publishing.
type KafkaConfig struct {
	Brokers        string        `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SchedulerConfig holds background sweep configuration.
type SchedulerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	ExpireGrace time.Duration `mapstructure:"expire_grace"`
}

// LedgerConfig holds wallet ledger configuration.
type LedgerConfig struct {
	// DefaultCommission applies until a percentage is stored in settings.
	DefaultCommission float64 `mapstructure:"default_commission"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "production")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "dedicated_booking")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)

	v.SetDefault("newrelic.app_name", "dedicated-booking-service")
	v.SetDefault("newrelic.license_key", "")
	v.SetDefault("newrelic.enabled", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("booking.tax_rate", 0.18)
	v.SetDefault("booking.full_refund_hours", 24.0)
	v.SetDefault("booking.half_charge_hours", 2.0)
	v.SetDefault("booking.min_duration_hours", 1)
	v.SetDefault("booking.max_duration_hours", 24)
	v.SetDefault("booking.min_lat", -90.0)
	v.SetDefault("booking.max_lat", 90.0)
	v.SetDefault("booking.min_lng", -180.0)
	v.SetDefault("booking.max_lng", 180.0)

	v.SetDefault("payment.currency", "usd")
	v.SetDefault("payment.stripe_secret_key", "")
	v.SetDefault("payment.timeout", 10*time.Second)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "booking-events")
	v.SetDefault("kafka.publish_timeout", 2*time.Second)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", time.Minute)
	v.SetDefault("scheduler.expire_grace", 15*time.Minute)

	v.SetDefault("ledger.default_commission", 15.0)
}

// Load reads configuration from defaults, an optional config.yaml and the
// environment. Every key is overridable by its upper-cased env name with dots
// replaced by underscores, e.g. BOOKING_TAX_RATE or PAYMENT_STRIPE_SECRET_KEY.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the booking rules cannot operate with.
func (c *Config) Validate() error {
	b := c.Booking
	switch {
	case b.TaxRate < 0:
		return fmt.Errorf("booking.tax_rate must not be negative, got %v", b.TaxRate)
	case b.MinDurationHours < 1:
		return fmt.Errorf("booking.min_duration_hours must be at least 1, got %d", b.MinDurationHours)
	case b.MinDurationHours > b.MaxDurationHours:
		return fmt.Errorf("booking.min_duration_hours (%d) exceeds max_duration_hours (%d)", b.MinDurationHours, b.MaxDurationHours)
	case b.HalfChargeHours > b.FullRefundHours:
		return fmt.Errorf("booking.half_charge_hours (%v) exceeds full_refund_hours (%v)", b.HalfChargeHours, b.FullRefundHours)
	case b.MinLat > b.MaxLat || b.MinLng > b.MaxLng:
		return errors.New("booking coordinate bounds are inverted")
	case c.Ledger.DefaultCommission < 0 || c.Ledger.DefaultCommission > 100:
		return fmt.Errorf("ledger.default_commission must be within 0..100, got %v", c.Ledger.DefaultCommission)
	case c.Scheduler.Interval <= 0:
		return fmt.Errorf("scheduler.interval must be positive, got %s", c.Scheduler.Interval)
	}
	return nil
}
