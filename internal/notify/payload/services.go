package payload

import "github.com/memberbill/memberbill/internal/service"

// Services container for all services needed by payload builders
type Services struct {
	BillingCycleService service.BillingCycleService
	RenewalService      service.RenewalService
	SubscriptionService service.SubscriptionService
}

// NewServices creates a new Services container
func NewServices(
	billingCycleService service.BillingCycleService,
	renewalService service.RenewalService,
	subscriptionService service.SubscriptionService,
) *Services {
	return &Services{
		BillingCycleService: billingCycleService,
		RenewalService:      renewalService,
		SubscriptionService: subscriptionService,
	}
}
