package payload

import (
	"context"
	"encoding/json"

	ierr "github.com/memberbill/memberbill/internal/errors"
	notifyDto "github.com/memberbill/memberbill/internal/notify/dto"
)

type BatchRunPayloadBuilder struct {
	services *Services
}

func NewBatchRunPayloadBuilder(services *Services) PayloadBuilder {
	return &BatchRunPayloadBuilder{
		services: services,
	}
}

// BuildPayload builds the notification payload for batch run events. The
// internal event already carries the whole summary, so no hydration happens.
func (b *BatchRunPayloadBuilder) BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error) {
	var parsedPayload notifyDto.InternalBatchRunEvent

	err := json.Unmarshal(data, &parsedPayload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Unable to unmarshal batch run event payload").
			Mark(ierr.ErrValidation)
	}

	if parsedPayload.BatchRunID == "" || parsedPayload.TenantID == "" {
		return nil, ierr.NewError("invalid data for batch run event").
			WithHint("Please provide a valid batch run ID and tenant ID").
			Mark(ierr.ErrValidation)
	}

	payload := notifyDto.NewBatchRunWebhookPayload(&parsedPayload, eventType)

	return json.Marshal(payload)
}
