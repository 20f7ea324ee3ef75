package types

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
)

// DEFAULT_BATCH_CHUNK_SIZE is the number of records committed per checkpoint
// during batch execution when the run does not override it.
const DEFAULT_BATCH_CHUNK_SIZE = 100

// DefaultRecentFailureLookbackDays is how far back the recently failed
// exclusion looks when a batch run enables it without a window.
const DefaultRecentFailureLookbackDays = 7

// BatchTargetKind selects which record type a batch run operates on
type BatchTargetKind string

const (
	BatchTargetBillingCycles BatchTargetKind = "billing_cycles"
	BatchTargetRenewals      BatchTargetKind = "renewals"
)

func (k BatchTargetKind) String() string {
	return string(k)
}

func (k BatchTargetKind) Validate() error {
	allowed := []BatchTargetKind{
		BatchTargetBillingCycles,
		BatchTargetRenewals,
	}
	if !lo.Contains(allowed, k) {
		return ierr.NewError("invalid batch target kind").
			WithHint("Batch target must be billing_cycles or renewals").
			WithReportableDetails(map[string]any{
				"target_kind": k,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BatchRunStatus is the lifecycle state of a batch run record
type BatchRunStatus string

const (
	BatchRunStatusPending             BatchRunStatus = "pending"
	BatchRunStatusRunning             BatchRunStatus = "running"
	BatchRunStatusCompleted           BatchRunStatus = "completed"
	BatchRunStatusCompletedWithErrors BatchRunStatus = "completed_with_errors"
	BatchRunStatusFailed              BatchRunStatus = "failed"
)

func (s BatchRunStatus) String() string {
	return string(s)
}

func (s BatchRunStatus) Validate() error {
	allowed := []BatchRunStatus{
		BatchRunStatusPending,
		BatchRunStatusRunning,
		BatchRunStatusCompleted,
		BatchRunStatusCompletedWithErrors,
		BatchRunStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid batch run status").
			WithHint("Invalid batch run status").
			WithReportableDetails(map[string]any{
				"status": s,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// AmountRange bounds record selection by monetary amount. Either side may be
// nil for an open interval; bounds are inclusive.
type AmountRange struct {
	Min *decimal.Decimal `json:"min,omitempty" form:"min" validate:"omitempty"`
	Max *decimal.Decimal `json:"max,omitempty" form:"max" validate:"omitempty"`
}

// Validate validates the amount range
func (r *AmountRange) Validate() error {
	if r == nil {
		return nil
	}
	if r.Min != nil && r.Min.IsNegative() {
		return ierr.NewError("amount range minimum must not be negative").
			WithHint("Amount range minimum must not be negative").
			Mark(ierr.ErrValidation)
	}
	if r.Min != nil && r.Max != nil && r.Max.LessThan(*r.Min) {
		return ierr.NewError("amount range maximum below minimum").
			WithHint("Amount range maximum must be greater than or equal to the minimum").
			WithReportableDetails(map[string]any{
				"min": r.Min,
				"max": r.Max,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Contains reports whether the amount falls inside the range
func (r *AmountRange) Contains(amount decimal.Decimal) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && amount.LessThan(*r.Min) {
		return false
	}
	if r.Max != nil && amount.GreaterThan(*r.Max) {
		return false
	}
	return true
}
