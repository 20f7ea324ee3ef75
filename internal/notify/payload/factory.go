package payload

import (
	"fmt"

	"github.com/memberbill/memberbill/internal/types"
)

// PayloadBuilderFactory interface for getting event-specific payload builders
type PayloadBuilderFactory interface {
	GetBuilder(eventType string) (PayloadBuilder, error)
}

type payloadBuilderFactory struct {
	builders map[string]func() PayloadBuilder
	services *Services
}

// NewPayloadBuilderFactory creates a new factory with registered builders
func NewPayloadBuilderFactory(services *Services) PayloadBuilderFactory {
	f := &payloadBuilderFactory{
		builders: make(map[string]func() PayloadBuilder),
		services: services,
	}

	// Register billing cycle builders
	f.builders[types.NotificationEventBillingScheduled] = func() PayloadBuilder {
		return NewBillingCyclePayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventBillingInvoiced] = func() PayloadBuilder {
		return NewBillingCyclePayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventBillingPaid] = func() PayloadBuilder {
		return NewBillingCyclePayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventBillingFailed] = func() PayloadBuilder {
		return NewBillingCyclePayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventBillingCancelled] = func() PayloadBuilder {
		return NewBillingCyclePayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventManualReview] = func() PayloadBuilder {
		return NewBillingCyclePayloadBuilder(f.services)
	}

	// Register renewal builders
	f.builders[types.NotificationEventRenewalReminder] = func() PayloadBuilder {
		return NewRenewalPayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventRenewalRenewed] = func() PayloadBuilder {
		return NewRenewalPayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventRenewalGrace] = func() PayloadBuilder {
		return NewRenewalPayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventRenewalExpired] = func() PayloadBuilder {
		return NewRenewalPayloadBuilder(f.services)
	}
	f.builders[types.NotificationEventRenewalCancelled] = func() PayloadBuilder {
		return NewRenewalPayloadBuilder(f.services)
	}

	// Register batch builders
	f.builders[types.NotificationEventBatchCompleted] = func() PayloadBuilder {
		return NewBatchRunPayloadBuilder(f.services)
	}

	return f
}

// GetBuilder returns a payload builder for the given event type
func (f *payloadBuilderFactory) GetBuilder(eventType string) (PayloadBuilder, error) {
	builderFn, ok := f.builders[eventType]
	if !ok {
		return nil, fmt.Errorf("no builder registered for event type: %s", eventType)
	}

	return builderFn(), nil
}
