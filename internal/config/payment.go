package config

import (
	"github.com/memberbill/memberbill/internal/types"
)

// PaymentConfig holds configuration for the payment confirmation pipeline.
// Confirmations from the upstream payment gateway are queued on Topic and
// consumed asynchronously by the consumer deployment mode.
type PaymentConfig struct {
	PublishDestination types.PublishDestination `mapstructure:"publish_destination" default:"kafka"`
	Topic              string                   `mapstructure:"topic" default:"payments"`
}
