package notifyDto

import "github.com/memberbill/memberbill/internal/api/dto"

type InternalRenewalEvent struct {
	RenewalID string `json:"renewal_id"`
	TenantID  string `json:"tenant_id"`
}

type RenewalWebhookPayload struct {
	EventType string               `json:"event_type"`
	Renewal   *dto.RenewalResponse `json:"renewal"`
}

func NewRenewalWebhookPayload(renewal *dto.RenewalResponse, eventType string) *RenewalWebhookPayload {
	return &RenewalWebhookPayload{EventType: eventType, Renewal: renewal}
}
