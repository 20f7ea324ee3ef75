package notifyDto

import "github.com/memberbill/memberbill/internal/api/dto"

// InternalBillingCycleEvent is the payload services put on the bus; the
// delivery handler hydrates the full record before sending.
type InternalBillingCycleEvent struct {
	BillingCycleID string `json:"billing_cycle_id"`
	TenantID       string `json:"tenant_id"`
}

type BillingCycleWebhookPayload struct {
	EventType    string                    `json:"event_type"`
	BillingCycle *dto.BillingCycleResponse `json:"billing_cycle"`
}

func NewBillingCycleWebhookPayload(billingCycle *dto.BillingCycleResponse, eventType string) *BillingCycleWebhookPayload {
	return &BillingCycleWebhookPayload{EventType: eventType, BillingCycle: billingCycle}
}
