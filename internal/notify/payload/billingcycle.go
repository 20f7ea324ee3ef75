package payload

import (
	"context"
	"encoding/json"
	"fmt"

	ierr "github.com/memberbill/memberbill/internal/errors"
	notifyDto "github.com/memberbill/memberbill/internal/notify/dto"
)

type BillingCyclePayloadBuilder struct {
	services *Services
}

func NewBillingCyclePayloadBuilder(services *Services) PayloadBuilder {
	return &BillingCyclePayloadBuilder{
		services: services,
	}
}

// BuildPayload builds the notification payload for billing cycle events
func (b *BillingCyclePayloadBuilder) BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error) {
	var parsedPayload notifyDto.InternalBillingCycleEvent

	err := json.Unmarshal(data, &parsedPayload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to unmarshal billing cycle event payload").
			Mark(ierr.ErrValidation)
	}

	billingCycleID, tenantID := parsedPayload.BillingCycleID, parsedPayload.TenantID
	if billingCycleID == "" || tenantID == "" {
		return nil, ierr.NewError("invalid data for billing cycle event").
			WithHint("Please provide a valid billing cycle ID and tenant ID").
			WithReportableDetails(map[string]any{
				"expected": "string",
				"got":      fmt.Sprintf("%T", data),
			}).
			Mark(ierr.ErrValidation)
	}

	billingCycle, err := b.services.BillingCycleService.GetBillingCycle(ctx, billingCycleID)
	if err != nil {
		return nil, err
	}

	payload := notifyDto.NewBillingCycleWebhookPayload(billingCycle, eventType)

	return json.Marshal(payload)
}
