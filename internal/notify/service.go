package notify

import (
	"fmt"

	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/notify/handler"
	"github.com/memberbill/memberbill/internal/notify/publisher"
	pubsubRouter "github.com/memberbill/memberbill/internal/pubsub/router"
)

// Service ties the sender and the delivery handler together and owns their
// lifecycle.
type Service struct {
	config  *config.Configuration
	sender  publisher.Sender
	handler handler.Handler
	logger  *logger.Logger
}

// NewService creates a new notification service
func NewService(
	cfg *config.Configuration,
	sender publisher.Sender,
	h handler.Handler,
	l *logger.Logger,
) *Service {
	return &Service{
		config:  cfg,
		sender:  sender,
		handler: h,
		logger:  l,
	}
}

// RegisterHandler attaches the delivery handler to the message router. It is
// a no-op when notifications are disabled.
func (s *Service) RegisterHandler(router *pubsubRouter.Router) {
	if !s.config.Notify.Enabled {
		s.logger.Info("notification delivery disabled")
		return
	}
	s.handler.RegisterHandler(router)
}

// Stop closes the sender side of the bus
func (s *Service) Stop() error {
	s.logger.Debug("stopping notification service")

	if err := s.sender.Close(); err != nil {
		s.logger.Errorw("failed to close notification sender", "error", err)
		return fmt.Errorf("failed to close notification sender: %w", err)
	}

	return nil
}
