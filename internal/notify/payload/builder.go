package payload

import (
	"context"
	"encoding/json"
)

// PayloadBuilder turns the internal event a service published into the
// payload delivered to the tenant endpoint.
type PayloadBuilder interface {
	BuildPayload(ctx context.Context, eventType string, data json.RawMessage) (json.RawMessage, error)
}
