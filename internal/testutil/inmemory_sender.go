package testutil

import (
	"context"
	"sync"

	"github.com/memberbill/memberbill/internal/notify/publisher"
)

// SentNotification is one captured SendTemplated call
type SentNotification struct {
	EventName  string
	EntityType string
	EntityID   string
	Payload    interface{}
}

// InMemorySender implements publisher.Sender by recording every notification
// instead of publishing it. FailAll simulates a broken notification bus so
// tests can assert business operations survive it.
type InMemorySender struct {
	mu      sync.Mutex
	sent    []SentNotification
	failAll bool
	closed  bool
}

var _ publisher.Sender = (*InMemorySender)(nil)

// NewInMemorySender creates a new capturing sender
func NewInMemorySender() *InMemorySender {
	return &InMemorySender{
		sent: make([]SentNotification, 0),
	}
}

// FailAll makes every subsequent SendTemplated call return an error
func (s *InMemorySender) FailAll(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAll = fail
}

// SendTemplated records the notification
func (s *InMemorySender) SendTemplated(ctx context.Context, eventName string, entityType string, entityID string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAll {
		return context.DeadlineExceeded
	}

	s.sent = append(s.sent, SentNotification{
		EventName:  eventName,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
	})
	return nil
}

// Close marks the sender closed
func (s *InMemorySender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Sent returns all captured notifications in send order. Test helper.
func (s *InMemorySender) Sent() []SentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := make([]SentNotification, len(s.sent))
	copy(sent, s.sent)
	return sent
}

// SentFor returns the captured notifications for one event name. Test helper.
func (s *InMemorySender) SentFor(eventName string) []SentNotification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []SentNotification
	for _, n := range s.sent {
		if n.EventName == eventName {
			matched = append(matched, n)
		}
	}
	return matched
}

// Clear drops all captured notifications
func (s *InMemorySender) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = make([]SentNotification, 0)
	s.failAll = false
}
