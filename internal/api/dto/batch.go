package dto

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/types"
	"github.com/memberbill/memberbill/internal/validator"
)

// MaxBatchErrorsReported caps the per record error list carried on a batch
// run response. The counts always cover the full run.
const MaxBatchErrorsReported = 25

// BatchRunRequest configures one batch selection or execution. It is
// ephemeral: nothing of it is persisted beyond the audit entry of the run.
type BatchRunRequest struct {
	TargetKind types.BatchTargetKind `json:"target_kind" validate:"required"`

	// Selection predicates. States apply to the target records; the date
	// range bounds billing dates for cycles and due dates for renewals.
	States        []string           `json:"states,omitempty"`
	DateFrom      *time.Time         `json:"date_from,omitempty"`
	DateTo        *time.Time         `json:"date_to,omitempty"`
	AmountRange   *types.AmountRange `json:"amount_range,omitempty"`
	SubscriberIDs []string           `json:"subscriber_ids,omitempty"`
	ProductIDs    []string           `json:"product_ids,omitempty"`
	Categories    []string           `json:"categories,omitempty"`

	// SkipRecentlyFailed excludes subscribers with a failed cycle inside the
	// lookback window
	SkipRecentlyFailed        bool `json:"skip_recently_failed"`
	RecentFailureLookbackDays int  `json:"recent_failure_lookback_days"`

	// Execution behavior
	BatchSize             int  `json:"batch_size"`
	AutoInvoice           bool `json:"auto_invoice"`
	AutoPayment           bool `json:"auto_payment"`
	AutoSendNotifications bool `json:"auto_send_notifications"`
	DryRun                bool `json:"dry_run"`
}

// BatchRecordError is one failed record inside a batch run
type BatchRecordError struct {
	RecordID string `json:"record_id"`
	ShortID  string `json:"short_id,omitempty"`
	Message  string `json:"message"`
}

// BatchPreviewRow is one selected record as shown in previews and exports
type BatchPreviewRow struct {
	RecordID          string          `json:"record_id"`
	SubscriberName    string          `json:"subscriber_name"`
	SubscriptionID    string          `json:"subscription_id"`
	ProductName       string          `json:"product_name"`
	Amount            decimal.Decimal `json:"amount"`
	Quantity          decimal.Decimal `json:"quantity"`
	BillingFrequency  string          `json:"billing_frequency"`
	NextBillingDate   time.Time       `json:"next_billing_date"`
	SubscriptionState string          `json:"subscription_state"`
	PriceIncreasePct  decimal.Decimal `json:"price_increase_pct"`
}

// BatchPreviewResponse summarizes a selection without mutating anything
type BatchPreviewResponse struct {
	TargetKind            types.BatchTargetKind      `json:"target_kind"`
	Count                 int                        `json:"count"`
	TotalAmount           decimal.Decimal            `json:"total_amount"`
	Currency              string                     `json:"currency,omitempty"`
	ByFrequency           map[string]int             `json:"by_frequency,omitempty"`
	ByState               map[string]int             `json:"by_state,omitempty"`
	ByAmountBand          map[string]int             `json:"by_amount_band,omitempty"`
	PriceIncreaseWarnings []*BatchPriceIncreaseAlert `json:"price_increase_warnings,omitempty"`
	Rows                  []*BatchPreviewRow         `json:"rows,omitempty"`
}

// BatchPriceIncreaseAlert flags a renewal whose quote rose past the warning
// threshold
type BatchPriceIncreaseAlert struct {
	RecordID         string          `json:"record_id"`
	SubscriptionID   string          `json:"subscription_id"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	RenewalPrice     decimal.Decimal `json:"renewal_price"`
	PriceIncreasePct decimal.Decimal `json:"price_increase_pct"`
}

// BatchRunResponse is the outcome of one execute call
type BatchRunResponse struct {
	RunID       string                `json:"run_id"`
	TargetKind  types.BatchTargetKind `json:"target_kind"`
	Status      types.BatchRunStatus  `json:"status"`
	DryRun      bool                  `json:"dry_run"`
	Total       int                   `json:"total"`
	Succeeded   int                   `json:"succeeded"`
	Failed      int                   `json:"failed"`
	TotalAmount decimal.Decimal       `json:"total_amount"`
	Errors      []*BatchRecordError   `json:"errors,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt time.Time             `json:"completed_at"`
}

// ArchivePreviewResponse reports where a preview export was archived
type ArchivePreviewResponse struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *BatchRunRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if err := r.TargetKind.Validate(); err != nil {
		return err
	}
	if err := r.AmountRange.Validate(); err != nil {
		return err
	}
	if r.BatchSize < 0 {
		return ierr.NewError("batch size must not be negative").
			WithHint("Batch size must be zero for the default or a positive count").
			Mark(ierr.ErrValidation)
	}
	if r.RecentFailureLookbackDays < 0 {
		return ierr.NewError("lookback days must not be negative").
			WithHint("Recent failure lookback must be zero for the default or a positive day count").
			Mark(ierr.ErrValidation)
	}
	if r.DateFrom != nil && r.DateTo != nil && r.DateTo.Before(*r.DateFrom) {
		return ierr.NewError("date range end before start").
			WithHint("Batch date range end must not precede its start").
			WithReportableDetails(map[string]any{
				"date_from": r.DateFrom,
				"date_to":   r.DateTo,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// EffectiveBatchSize resolves the chunk size, falling back to the given
// default when the request carries none
func (r *BatchRunRequest) EffectiveBatchSize(defaultSize int) int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	if defaultSize > 0 {
		return defaultSize
	}
	return types.DEFAULT_BATCH_CHUNK_SIZE
}

// EffectiveLookbackDays resolves the recently failed lookback window
func (r *BatchRunRequest) EffectiveLookbackDays() int {
	if r.RecentFailureLookbackDays > 0 {
		return r.RecentFailureLookbackDays
	}
	return types.DefaultRecentFailureLookbackDays
}
