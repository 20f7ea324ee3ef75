package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/Shopify/sarama"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/memberbill/memberbill/internal/types"
)

type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"required"`
	Auth       AuthConfig       `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	ClickHouse ClickHouseConfig `validate:"required"`
	Kafka      KafkaConfig      `validate:"required"`
	Payment    PaymentConfig    `validate:"required"`
	Invoicing  InvoicingConfig
	Logging    LoggingConfig `validate:"required"`
	Sentry     SentryConfig
	Pyroscope  PyroscopeConfig
	Notify     Notify
	Billing    BillingConfig
	Cron       CronConfig
	Export     ExportConfig
	Cache      CacheConfig
}

type DeploymentConfig struct {
	Mode types.RunMode `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type AuthConfig struct {
	Provider string       `mapstructure:"provider" default:"memberbill"`
	Secret   string       `mapstructure:"secret"`
	APIKey   APIKeyConfig `mapstructure:"api_key"`
}

type APIKeyConfig struct {
	Header string                   `mapstructure:"header" default:"x-api-key"`
	Keys   map[string]APIKeyDetails `mapstructure:"keys"`
}

type APIKeyDetails struct {
	TenantID string `mapstructure:"tenant_id"`
	UserID   string `mapstructure:"user_id"`
	Name     string `mapstructure:"name"`
	IsActive bool   `mapstructure:"is_active"`
}

type PostgresConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	User                   string `mapstructure:"user"`
	Password               string `mapstructure:"password"`
	DBName                 string `mapstructure:"dbname"`
	SSLMode                string `mapstructure:"sslmode"`
	MaxOpenConns           int    `mapstructure:"max_open_conns" default:"25"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns" default:"10"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes" default:"60"`
	AutoMigrate            bool   `mapstructure:"auto_migrate" default:"false"`
}

type ClickHouseConfig struct {
	Address  string `mapstructure:"address"`
	TLS      bool   `mapstructure:"tls"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type KafkaConfig struct {
	Brokers       []string             `mapstructure:"brokers"`
	ConsumerGroup string               `mapstructure:"consumer_group"`
	ClientID      string               `mapstructure:"client_id"`
	TLS           bool                 `mapstructure:"tls"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`
}

// InvoicingConfig points the billing engine at the downstream invoicing
// system. The memory provider raises invoices in process and suits local
// development.
type InvoicingConfig struct {
	Provider          string  `mapstructure:"provider" default:"memory"`
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" default:"30"`
	RetryMax          int     `mapstructure:"retry_max" default:"3"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" default:"25"`
}

type LoggingConfig struct {
	Level types.LogLevel `validate:"required"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled" default:"false"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" default:"1.0"`
}

type PyroscopeConfig struct {
	Enabled         bool     `mapstructure:"enabled" default:"false"`
	ServerAddress   string   `mapstructure:"server_address"`
	ApplicationName string   `mapstructure:"application_name" default:"memberbill"`
	BasicAuthUser   string   `mapstructure:"basic_auth_user"`
	BasicAuthPass   string   `mapstructure:"basic_auth_pass"`
	SampleRate      uint32   `mapstructure:"sample_rate" default:"100"`
	DisableGCRuns   bool     `mapstructure:"disable_gc_runs" default:"false"`
	ProfileTypes    []string `mapstructure:"profile_types"`
}

// BillingConfig carries tenant independent defaults for the billing and
// renewal engine. Per subscription settings always win over these.
type BillingConfig struct {
	DefaultReminderSchedule string `mapstructure:"default_reminder_schedule" default:"30,15,7"`
	GracePeriodDays         int    `mapstructure:"grace_period_days" default:"14"`
	BatchChunkSize          int    `mapstructure:"batch_chunk_size" default:"100"`
	DefaultCurrency         string `mapstructure:"default_currency" default:"usd"`

	// AuditStore selects where the audit trail lives: postgres commits
	// entries with the change they describe, clickhouse favors retention.
	AuditStore string `mapstructure:"audit_store" default:"postgres"`
}

// CronConfig controls the in-process scheduler. Each spec uses the standard
// cron expression format; an empty spec disables the job.
type CronConfig struct {
	Enabled                bool   `mapstructure:"enabled" default:"false"`
	ScheduledBillingsSpec  string `mapstructure:"scheduled_billings_spec" default:"0 2 * * *"`
	AutomaticRenewalsSpec  string `mapstructure:"automatic_renewals_spec" default:"30 2 * * *"`
	ScheduledRemindersSpec string `mapstructure:"scheduled_reminders_spec" default:"0 8 * * *"`
	OverdueRenewalsSpec    string `mapstructure:"overdue_renewals_spec" default:"0 3 * * *"`
	TenantID               string `mapstructure:"tenant_id"`
	EnvironmentID          string `mapstructure:"environment_id"`
}

type ExportConfig struct {
	Enabled     bool   `mapstructure:"enabled" default:"false"`
	Bucket      string `mapstructure:"bucket"`
	Region      string `mapstructure:"region"`
	KeyPrefix   string `mapstructure:"key_prefix" default:"exports"`
	Compression bool   `mapstructure:"compression" default:"true"`
	SSE         string `mapstructure:"sse"`
	KMSKeyID    string `mapstructure:"kms_key_id"`
}

type CacheConfig struct {
	Enabled           bool `mapstructure:"enabled" default:"true"`
	DefaultTTLMinutes int  `mapstructure:"default_ttl_minutes" default:"5"`
	CleanupMinutes    int  `mapstructure:"cleanup_minutes" default:"10"`
}

func NewConfig() (*Configuration, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/memberbill")

	v.SetEnvPrefix("MEMBERBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	} else {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := types.ParseReminderSchedule(c.Billing.DefaultReminderSchedule); err != nil {
		return err
	}
	if c.Billing.GracePeriodDays < 0 {
		return fmt.Errorf("billing grace period days must not be negative, got %d", c.Billing.GracePeriodDays)
	}
	if c.Billing.BatchChunkSize < 0 {
		return fmt.Errorf("billing batch chunk size must not be negative, got %d", c.Billing.BatchChunkSize)
	}
	if c.Invoicing.Provider == "http" && c.Invoicing.BaseURL == "" {
		return fmt.Errorf("invoicing base_url is required with the http provider")
	}
	return nil
}

// GetDefaultConfig returns a default configuration for local development
// This is useful for running scripts or other non-web applications
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Auth:       AuthConfig{Provider: "memberbill"},
		Payment:    PaymentConfig{PublishDestination: types.PublishToMemory, Topic: "payments"},
		Invoicing:  InvoicingConfig{Provider: "memory"},
		Billing: BillingConfig{
			DefaultReminderSchedule: types.DefaultReminderSchedule,
			GracePeriodDays:         14,
			BatchChunkSize:          types.DEFAULT_BATCH_CHUNK_SIZE,
			DefaultCurrency:         "usd",
			AuditStore:              "postgres",
		},
		Cache: CacheConfig{
			Enabled:           true,
			DefaultTTLMinutes: 5,
			CleanupMinutes:    10,
		},
	}
}

func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
