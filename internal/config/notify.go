package config

import (
	"time"

	"github.com/memberbill/memberbill/internal/types"
)

// Notify represents the configuration for the notification delivery system
type Notify struct {
	Enabled bool                          `mapstructure:"enabled"`
	Topic   string                        `mapstructure:"topic" default:"notifications"`
	PubSub  types.PubSubType              `mapstructure:"pubsub" default:"memory"`
	Svix    SvixConfig                    `mapstructure:"svix"`
	Tenants map[string]TenantNotifyConfig `mapstructure:"tenants"`

	// Delivery retry policy for the message router. Business errors are
	// never retried; these bounds apply to transport failures only.
	MaxRetries      int           `mapstructure:"max_retries" default:"3"`
	InitialInterval time.Duration `mapstructure:"initial_interval" default:"1s"`
	MaxInterval     time.Duration `mapstructure:"max_interval" default:"30s"`
	Multiplier      float64       `mapstructure:"multiplier" default:"2"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time" default:"5m"`
}

// SvixConfig configures hosted delivery through Svix. When disabled the
// per-tenant HTTP endpoints are used instead.
type SvixConfig struct {
	Enabled   bool   `mapstructure:"enabled" default:"false"`
	AuthToken string `mapstructure:"auth_token"`
	BaseURL   string `mapstructure:"base_url"`
}

// TenantNotifyConfig represents notification configuration for a specific tenant
type TenantNotifyConfig struct {
	Endpoint       string            `mapstructure:"endpoint"`
	Headers        map[string]string `mapstructure:"headers"`
	Enabled        bool              `mapstructure:"enabled"`
	ExcludedEvents []string          `mapstructure:"excluded_events"`
}
