package types

import (
	"github.com/samber/lo"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// AuditEntityType identifies the record an audit event belongs to
type AuditEntityType string

const (
	AuditEntityTypeSubscription AuditEntityType = "subscription"
	AuditEntityTypeBillingCycle AuditEntityType = "billing_cycle"
	AuditEntityTypeRenewal      AuditEntityType = "renewal"
	AuditEntityTypeBatchRun     AuditEntityType = "batch_run"
	AuditEntityTypeInvoice      AuditEntityType = "invoice"
)

func (t AuditEntityType) String() string {
	return string(t)
}

func (t AuditEntityType) Validate() error {
	allowed := []AuditEntityType{
		AuditEntityTypeSubscription,
		AuditEntityTypeBillingCycle,
		AuditEntityTypeRenewal,
		AuditEntityTypeBatchRun,
		AuditEntityTypeInvoice,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid audit entity type").
			WithHint("Invalid audit entity type").
			WithReportableDetails(map[string]any{
				"entity_type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Audit event names. The log is append only; entries never mutate.
const (
	AuditEventCreated           = "created"
	AuditEventStateChanged      = "state_changed"
	AuditEventAmountsCalculated = "amounts_calculated"
	AuditEventInvoiceCreated    = "invoice_created"
	AuditEventInvoiceCancelled  = "invoice_cancelled"
	AuditEventPaymentRecorded   = "payment_recorded"
	AuditEventRetryScheduled    = "retry_scheduled"
	AuditEventReminderSent      = "reminder_sent"
	AuditEventRenewalChained    = "renewal_chained"
	AuditEventBatchStarted      = "batch_started"
	AuditEventBatchCompleted    = "batch_completed"
	AuditEventManualReview      = "manual_review_flagged"
)

// AuditLogFilter defines the query surface for the audit event log
type AuditLogFilter struct {
	*QueryFilter
	*TimeRangeFilter
	EntityType AuditEntityType `json:"entity_type,omitempty" form:"entity_type" validate:"omitempty"`
	EntityIDs  []string        `json:"entity_ids,omitempty" form:"entity_ids" validate:"omitempty"`
	Events     []string        `json:"events,omitempty" form:"events" validate:"omitempty"`
	ActorIDs   []string        `json:"actor_ids,omitempty" form:"actor_ids" validate:"omitempty"`
}

// NewAuditLogFilter creates a new audit log filter with default options
func NewAuditLogFilter() *AuditLogFilter {
	return &AuditLogFilter{
		QueryFilter: NewDefaultQueryFilter(),
	}
}

// NewNoLimitAuditLogFilter creates a new audit log filter without pagination
func NewNoLimitAuditLogFilter() *AuditLogFilter {
	return &AuditLogFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the audit log filter
func (f *AuditLogFilter) Validate() error {
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	if f.TimeRangeFilter != nil {
		if err := f.TimeRangeFilter.Validate(); err != nil {
			return err
		}
	}
	if f.EntityType != "" {
		if err := f.EntityType.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetLimit implements BaseFilter interface
func (f *AuditLogFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *AuditLogFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// GetSort implements BaseFilter interface
func (f *AuditLogFilter) GetSort() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetSort()
	}
	return f.QueryFilter.GetSort()
}

// GetOrder implements BaseFilter interface
func (f *AuditLogFilter) GetOrder() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOrder()
	}
	return f.QueryFilter.GetOrder()
}

// GetStatus implements BaseFilter interface
func (f *AuditLogFilter) GetStatus() string {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetStatus()
	}
	return f.QueryFilter.GetStatus()
}

// GetExpand implements BaseFilter interface
func (f *AuditLogFilter) GetExpand() Expand {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetExpand()
	}
	return f.QueryFilter.GetExpand()
}

// IsUnlimited implements BaseFilter interface
func (f *AuditLogFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
