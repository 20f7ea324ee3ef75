package types

import (
	"encoding/json"
	"time"
)

// NotificationEvent is the envelope published on the notification bus.
// Delivery is fire and forget; a failed send never fails the operation
// that produced the event.
type NotificationEvent struct {
	ID            string          `json:"id"`
	EventName     string          `json:"event_name"`
	TenantID      string          `json:"tenant_id"`
	EnvironmentID string          `json:"environment_id"`
	UserID        string          `json:"user_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// Notification event names
const (
	// billing cycle events
	NotificationEventBillingScheduled = "billing.scheduled"
	NotificationEventBillingInvoiced  = "billing.invoiced"
	NotificationEventBillingPaid      = "billing.paid"
	NotificationEventBillingFailed    = "billing.failed"
	NotificationEventBillingCancelled = "billing.cancelled"

	// renewal events
	NotificationEventRenewalReminder  = "renewal.reminder"
	NotificationEventRenewalRenewed   = "renewal.renewed"
	NotificationEventRenewalGrace     = "renewal.grace_period"
	NotificationEventRenewalExpired   = "renewal.expired"
	NotificationEventRenewalCancelled = "renewal.cancelled"

	// review events
	NotificationEventManualReview = "billing.manual_review"

	// batch events
	NotificationEventBatchCompleted = "batch.completed"
)
