package payload

import (
	"context"
	"encoding/json"
	"fmt"

	ierr "github.com/memberbill/memberbill/internal/errors"
	notifyDto "github.com/memberbill/memberbill/internal/notify/dto"
)

type RenewalPayloadBuilder struct {
	services *Services
}

func NewRenewalPayloadBuilder(services *Services) PayloadBuilder {
	return &RenewalPayloadBuilder{
		services: services,
	}
}

// BuildPayload builds the notification payload for renewal events
func (b *RenewalPayloadBuilder) BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error) {
	var parsedPayload notifyDto.InternalRenewalEvent

	err := json.Unmarshal(data, &parsedPayload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to unmarshal renewal event payload").
			Mark(ierr.ErrValidation)
	}

	renewalID, tenantID := parsedPayload.RenewalID, parsedPayload.TenantID
	if renewalID == "" || tenantID == "" {
		return nil, ierr.NewError("invalid data for renewal event").
			WithHint("Please provide a valid renewal ID and tenant ID").
			WithReportableDetails(map[string]any{
				"expected": "string",
				"got":      fmt.Sprintf("%T", data),
			}).
			Mark(ierr.ErrValidation)
	}

	renewal, err := b.services.RenewalService.GetRenewal(ctx, renewalID)
	if err != nil {
		return nil, err
	}

	payload := notifyDto.NewRenewalWebhookPayload(renewal, eventType)

	return json.Marshal(payload)
}
