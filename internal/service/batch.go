package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/memberbill/memberbill/internal/api/dto"
	"github.com/memberbill/memberbill/internal/domain/auditlog"
	"github.com/memberbill/memberbill/internal/domain/billingcycle"
	"github.com/memberbill/memberbill/internal/domain/product"
	"github.com/memberbill/memberbill/internal/domain/renewal"
	"github.com/memberbill/memberbill/internal/domain/subscriber"
	"github.com/memberbill/memberbill/internal/domain/subscription"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/metrics"
	notifyDto "github.com/memberbill/memberbill/internal/notify/dto"
	"github.com/memberbill/memberbill/internal/s3"
	"github.com/memberbill/memberbill/internal/types"
)

// BatchService selects billing cycles or renewals by operator criteria and
// runs them in bulk. Runs are ephemeral: only the audit log records that one
// happened.
type BatchService interface {
	// Preview summarizes the selection without mutating anything.
	Preview(ctx context.Context, req *dto.BatchRunRequest) (*dto.BatchPreviewResponse, error)

	// Execute processes the selection in chunks, committing between chunks so
	// a crash loses at most one chunk of work.
	Execute(ctx context.Context, req *dto.BatchRunRequest, asOf time.Time) (*dto.BatchRunResponse, error)

	// ExportPreviewCSV writes the selection as CSV and returns the row count.
	ExportPreviewCSV(ctx context.Context, req *dto.BatchRunRequest, w io.Writer) (int, error)

	// ArchivePreview uploads the CSV export to the configured object store.
	ArchivePreview(ctx context.Context, req *dto.BatchRunRequest) (*dto.ArchivePreviewResponse, error)
}

type batchService struct {
	ServiceParams
}

// NewBatchService creates a new batch orchestration service
func NewBatchService(params ServiceParams) BatchService {
	return &batchService{
		ServiceParams: params,
	}
}

// batchRecord is one selected target with its graph hydrated for predicate
// checks, previews and exports. Exactly one of cycle and renewalRecord is set.
type batchRecord struct {
	recordID       string
	shortID        string
	subscriptionID string
	dueDate        time.Time
	amount         decimal.Decimal

	cycle            *billingcycle.BillingCycle
	renewalRecord    *renewal.Renewal
	sub              *subscription.Subscription
	subscriberRecord *subscriber.Subscriber
	prod             *product.Product
}

func (r *batchRecord) state() string {
	if r.cycle != nil {
		return r.cycle.State.String()
	}
	return r.renewalRecord.State.String()
}

func (r *batchRecord) currency() string {
	if r.cycle != nil {
		return r.cycle.Currency
	}
	return r.renewalRecord.Currency
}

func (r *batchRecord) quantity() decimal.Decimal {
	if r.cycle != nil {
		return r.cycle.Quantity
	}
	return r.sub.Quantity
}

func (r *batchRecord) previewRow() *dto.BatchPreviewRow {
	row := &dto.BatchPreviewRow{
		RecordID:          r.recordID,
		SubscriberName:    r.subscriberRecord.Name,
		SubscriptionID:    r.sub.ID,
		ProductName:       r.prod.Name,
		Amount:            r.amount,
		Quantity:          r.quantity(),
		BillingFrequency:  r.sub.PeriodDefinition().String(),
		NextBillingDate:   r.dueDate,
		SubscriptionState: r.sub.State.String(),
	}
	if r.renewalRecord != nil {
		row.PriceIncreasePct = r.renewalRecord.PriceIncreasePct
	}
	return row
}

func (s *batchService) Preview(ctx context.Context, req *dto.BatchRunRequest) (*dto.BatchPreviewResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	records, err := s.selectRecords(ctx, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	response := &dto.BatchPreviewResponse{
		TargetKind:   req.TargetKind,
		Count:        len(records),
		ByFrequency:  make(map[string]int),
		ByState:      make(map[string]int),
		ByAmountBand: make(map[string]int),
	}

	uniformCurrency := true
	for _, rec := range records {
		response.TotalAmount = response.TotalAmount.Add(rec.amount)
		response.ByFrequency[rec.sub.PeriodDefinition().String()]++
		response.ByState[rec.state()]++
		response.ByAmountBand[amountBand(rec.amount)]++
		response.Rows = append(response.Rows, rec.previewRow())

		if response.Currency == "" {
			response.Currency = rec.currency()
		} else if !strings.EqualFold(response.Currency, rec.currency()) {
			uniformCurrency = false
		}

		if rec.renewalRecord != nil && rec.renewalRecord.PriceIncreaseWarning {
			response.PriceIncreaseWarnings = append(response.PriceIncreaseWarnings, &dto.BatchPriceIncreaseAlert{
				RecordID:         rec.recordID,
				SubscriptionID:   rec.sub.ID,
				CurrentPrice:     rec.renewalRecord.CurrentPrice,
				RenewalPrice:     rec.renewalRecord.RenewalPrice,
				PriceIncreasePct: rec.renewalRecord.PriceIncreasePct,
			})
		}
	}
	if !uniformCurrency {
		response.Currency = ""
	}

	return response, nil
}

func (s *batchService) Execute(ctx context.Context, req *dto.BatchRunRequest, asOf time.Time) (*dto.BatchRunResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.AutoPayment && !req.AutoInvoice {
		return nil, ierr.NewError("auto payment requires auto invoice").
			WithHint("Enable auto_invoice to record payments during a batch run").
			Mark(ierr.ErrValidation)
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	records, err := s.selectRecords(ctx, req, asOf)
	if err != nil {
		return nil, err
	}

	response := &dto.BatchRunResponse{
		RunID:      types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BATCH_RUN),
		TargetKind: req.TargetKind,
		Status:     types.BatchRunStatusRunning,
		DryRun:     req.DryRun,
		Total:      len(records),
		StartedAt:  time.Now().UTC(),
	}

	if req.DryRun {
		s.executeDryRun(ctx, records, response)
		s.finishRun(response)
		return response, nil
	}

	startEntry := auditlog.New(ctx, types.AuditEntityTypeBatchRun, response.RunID, types.AuditEventBatchStarted, map[string]interface{}{
		"target_kind":  req.TargetKind,
		"total":        len(records),
		"auto_invoice": req.AutoInvoice,
		"auto_payment": req.AutoPayment,
	})
	if err := s.AuditLogRepo.Insert(ctx, startEntry); err != nil {
		return nil, err
	}

	execCtx := ctx
	if !req.AutoSendNotifications {
		execCtx = types.SuppressNotifications(ctx)
	}

	chunkSize := req.EffectiveBatchSize(s.Config.Billing.BatchChunkSize)
	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		outcome := &chunkOutcome{}
		txErr := s.DB.WithTx(execCtx, func(txCtx context.Context) error {
			for _, rec := range chunk {
				amount, err := s.processRecord(txCtx, req, rec, asOf)
				if err != nil {
					outcome.failed++
					outcome.errors = append(outcome.errors, &dto.BatchRecordError{
						RecordID: rec.recordID,
						ShortID:  rec.shortID,
						Message:  err.Error(),
					})
					continue
				}
				outcome.succeeded++
				outcome.amount = outcome.amount.Add(amount)
			}
			return nil
		})
		if txErr != nil {
			// The chunk rolled back, so nothing counted inside it survived.
			s.Logger.Errorw("batch chunk commit failed",
				"run_id", response.RunID,
				"chunk_start", start,
				"error", txErr)
			response.Failed += len(chunk)
			for _, rec := range chunk {
				appendRecordError(response, &dto.BatchRecordError{
					RecordID: rec.recordID,
					ShortID:  rec.shortID,
					Message:  txErr.Error(),
				})
			}
			continue
		}

		response.Succeeded += outcome.succeeded
		response.Failed += outcome.failed
		response.TotalAmount = response.TotalAmount.Add(outcome.amount)
		for _, recordErr := range outcome.errors {
			appendRecordError(response, recordErr)
		}
	}

	s.finishRun(response)

	completion := auditlog.New(ctx, types.AuditEntityTypeBatchRun, response.RunID, types.AuditEventBatchCompleted, map[string]interface{}{
		"status":       response.Status,
		"total":        response.Total,
		"succeeded":    response.Succeeded,
		"failed":       response.Failed,
		"total_amount": response.TotalAmount,
	})
	if err := s.AuditLogRepo.Insert(ctx, completion); err != nil {
		s.Logger.Errorw("failed to record batch completion", "run_id", response.RunID, "error", err)
	}

	s.publishRunCompleted(ctx, response)

	s.Logger.Infow("batch run completed",
		"run_id", response.RunID,
		"target_kind", response.TargetKind,
		"total", response.Total,
		"succeeded", response.Succeeded,
		"failed", response.Failed)

	return response, nil
}

// csvExportHeader is the export contract consumed by downstream finance
// tooling. It carries a space after each comma, which encoding/csv would
// quote, so the header line is written verbatim.
const csvExportHeader = "Customer, Subscription, Product, Amount, Quantity, Billing Frequency, Next Billing Date, Subscription State\n"

func (s *batchService) ExportPreviewCSV(ctx context.Context, req *dto.BatchRunRequest, w io.Writer) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	records, err := s.selectRecords(ctx, req, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	if _, err := io.WriteString(w, csvExportHeader); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to write the export header").
			Mark(ierr.ErrSystem)
	}

	writer := csv.NewWriter(w)
	for _, rec := range records {
		row := rec.previewRow()
		fields := []string{
			row.SubscriberName,
			row.SubscriptionID,
			row.ProductName,
			row.Amount.String(),
			row.Quantity.String(),
			row.BillingFrequency,
			types.FormatDate(row.NextBillingDate),
			row.SubscriptionState,
		}
		if err := writer.Write(fields); err != nil {
			return 0, ierr.WithError(err).
				WithHint("Failed to write an export row").
				Mark(ierr.ErrSystem)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to flush the export").
			Mark(ierr.ErrSystem)
	}

	return len(records), nil
}

func (s *batchService) ArchivePreview(ctx context.Context, req *dto.BatchRunRequest) (*dto.ArchivePreviewResponse, error) {
	if s.S3 == nil {
		return nil, ierr.NewError("export archival is not configured").
			WithHint("Enable the export section of the configuration to archive previews").
			Mark(ierr.ErrConfiguration)
	}

	var buf bytes.Buffer
	rowCount, err := s.ExportPreviewCSV(ctx, req, &buf)
	if err != nil {
		return nil, err
	}

	exportID := types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BATCH_RUN)
	if err := s.S3.UploadDocument(ctx, s3.NewCSVDocument(exportID, buf.Bytes(), s3.DocumentTypeBatchExport)); err != nil {
		return nil, err
	}

	key, err := s.S3.ObjectKey(exportID, s3.DocumentTypeBatchExport)
	if err != nil {
		return nil, err
	}
	url, err := s.S3.GetPresignedUrl(ctx, exportID, s3.DocumentTypeBatchExport)
	if err != nil {
		return nil, err
	}

	return &dto.ArchivePreviewResponse{
		Bucket:    s.S3.Bucket(s3.DocumentTypeBatchExport),
		Key:       key,
		URL:       url,
		RowCount:  rowCount,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// selectRecords applies the run's selection criteria and returns the targets
// in deterministic order: due date, then record id.
func (s *batchService) selectRecords(ctx context.Context, req *dto.BatchRunRequest, asOf time.Time) ([]*batchRecord, error) {
	var records []*batchRecord
	var err error
	switch req.TargetKind {
	case types.BatchTargetRenewals:
		records, err = s.selectRenewals(ctx, req)
	default:
		records, err = s.selectBillingCycles(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if err := s.hydrate(ctx, records); err != nil {
		return nil, err
	}

	records, err = s.applyPredicates(ctx, req, records, asOf)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].dueDate.Equal(records[j].dueDate) {
			return records[i].dueDate.Before(records[j].dueDate)
		}
		return records[i].recordID < records[j].recordID
	})

	return dedupeRecords(records), nil
}

func (s *batchService) selectBillingCycles(ctx context.Context, req *dto.BatchRunRequest) ([]*batchRecord, error) {
	filter := &types.BillingCycleFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
	}
	if len(req.States) > 0 {
		for _, raw := range req.States {
			state := types.BillingCycleState(raw)
			if err := state.Validate(); err != nil {
				return nil, err
			}
			filter.States = append(filter.States, state)
		}
	} else {
		filter.States = []types.BillingCycleState{types.BillingCycleStateScheduled}
	}
	if req.DateFrom != nil {
		filter.BillingDateFrom = lo.ToPtr(types.FormatDate(*req.DateFrom))
	}
	if req.DateTo != nil {
		filter.BillingDateTo = lo.ToPtr(types.FormatDate(*req.DateTo))
	}

	cycles, err := s.BillingCycleRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	records := make([]*batchRecord, len(cycles))
	for i, cycle := range cycles {
		records[i] = &batchRecord{
			recordID:       cycle.ID,
			shortID:        cycle.ShortID,
			subscriptionID: cycle.SubscriptionID,
			dueDate:        cycle.BillingDate,
			amount:         cycle.TotalAmount,
			cycle:          cycle,
		}
	}
	return records, nil
}

func (s *batchService) selectRenewals(ctx context.Context, req *dto.BatchRunRequest) ([]*batchRecord, error) {
	filter := &types.RenewalFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
	}
	if len(req.States) > 0 {
		for _, raw := range req.States {
			state := types.RenewalState(raw)
			if err := state.Validate(); err != nil {
				return nil, err
			}
			filter.States = append(filter.States, state)
		}
	} else {
		filter.States = []types.RenewalState{
			types.RenewalStatePending,
			types.RenewalStateReminded,
			types.RenewalStateGracePeriod,
		}
	}
	if req.DateFrom != nil {
		filter.DueDateFrom = lo.ToPtr(types.FormatDate(*req.DateFrom))
	}
	if req.DateTo != nil {
		filter.DueDateTo = lo.ToPtr(types.FormatDate(*req.DateTo))
	}

	renewals, err := s.RenewalRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	records := make([]*batchRecord, len(renewals))
	for i, renewalRecord := range renewals {
		records[i] = &batchRecord{
			recordID:       renewalRecord.ID,
			shortID:        renewalRecord.ShortID,
			subscriptionID: renewalRecord.SubscriptionID,
			dueDate:        renewalRecord.DueDate,
			amount:         renewalRecord.RenewalPrice,
			renewalRecord:  renewalRecord,
		}
	}
	return records, nil
}

func (s *batchService) hydrate(ctx context.Context, records []*batchRecord) error {
	subs := make(map[string]*subscription.Subscription)
	subscribers := make(map[string]*subscriber.Subscriber)
	products := make(map[string]*product.Product)

	for _, rec := range records {
		sub, ok := subs[rec.subscriptionID]
		if !ok {
			var err error
			sub, err = s.SubRepo.Get(ctx, rec.subscriptionID)
			if err != nil {
				return err
			}
			subs[rec.subscriptionID] = sub
		}
		rec.sub = sub

		subscriberRecord, ok := subscribers[sub.SubscriberID]
		if !ok {
			var err error
			subscriberRecord, err = s.SubscriberRepo.Get(ctx, sub.SubscriberID)
			if err != nil {
				return err
			}
			subscribers[sub.SubscriberID] = subscriberRecord
		}
		rec.subscriberRecord = subscriberRecord

		prod, ok := products[sub.ProductID]
		if !ok {
			var err error
			prod, err = s.ProductRepo.Get(ctx, sub.ProductID)
			if err != nil {
				return err
			}
			products[sub.ProductID] = prod
		}
		rec.prod = prod
	}

	return nil
}

func (s *batchService) applyPredicates(ctx context.Context, req *dto.BatchRunRequest, records []*batchRecord, asOf time.Time) ([]*batchRecord, error) {
	var excluded map[string]bool
	if req.SkipRecentlyFailed {
		var err error
		excluded, err = s.recentlyFailedSubscribers(ctx, req.EffectiveLookbackDays(), asOf)
		if err != nil {
			return nil, err
		}
	}

	kept := make([]*batchRecord, 0, len(records))
	for _, rec := range records {
		if len(req.SubscriberIDs) > 0 && !lo.Contains(req.SubscriberIDs, rec.sub.SubscriberID) {
			continue
		}
		if len(req.ProductIDs) > 0 && !lo.Contains(req.ProductIDs, rec.sub.ProductID) {
			continue
		}
		if len(req.Categories) > 0 && !lo.Contains(req.Categories, rec.prod.Category) {
			continue
		}
		if !req.AmountRange.Contains(rec.amount) {
			continue
		}
		if excluded[rec.sub.SubscriberID] {
			continue
		}
		kept = append(kept, rec)
	}
	return kept, nil
}

// recentlyFailedSubscribers collects subscribers owning a cycle that is still
// failed and whose failure falls inside the lookback window.
func (s *batchService) recentlyFailedSubscribers(ctx context.Context, lookbackDays int, asOf time.Time) (map[string]bool, error) {
	failedCycles, err := s.BillingCycleRepo.List(ctx, &types.BillingCycleFilter{
		QueryFilter: types.NewNoLimitQueryFilter(),
		States:      []types.BillingCycleState{types.BillingCycleStateFailed},
	})
	if err != nil {
		return nil, err
	}

	cutoff := asOf.AddDate(0, 0, -lookbackDays)
	excluded := make(map[string]bool)
	subs := make(map[string]*subscription.Subscription)
	for _, cycle := range failedCycles {
		if cycle.FailedAt == nil || cycle.FailedAt.Before(cutoff) {
			continue
		}
		sub, ok := subs[cycle.SubscriptionID]
		if !ok {
			var err error
			sub, err = s.SubRepo.Get(ctx, cycle.SubscriptionID)
			if err != nil {
				s.Logger.Warnw("skipping failed cycle with unresolvable subscription",
					"billing_cycle_id", cycle.ID,
					"subscription_id", cycle.SubscriptionID,
					"error", err)
				continue
			}
			subs[cycle.SubscriptionID] = sub
		}
		excluded[sub.SubscriberID] = true
	}
	return excluded, nil
}

func dedupeRecords(records []*batchRecord) []*batchRecord {
	seen := make(map[string]bool, len(records))
	deduped := make([]*batchRecord, 0, len(records))
	for _, rec := range records {
		if seen[rec.recordID] {
			continue
		}
		seen[rec.recordID] = true
		deduped = append(deduped, rec)
	}
	return deduped
}

type chunkOutcome struct {
	succeeded int
	failed    int
	amount    decimal.Decimal
	errors    []*dto.BatchRecordError
}

func (s *batchService) processRecord(ctx context.Context, req *dto.BatchRunRequest, rec *batchRecord, asOf time.Time) (decimal.Decimal, error) {
	if rec.cycle != nil {
		return s.processCycleRecord(ctx, req, rec.cycle, asOf)
	}
	return s.processRenewalRecord(ctx, req, rec.renewalRecord, asOf)
}

func (s *batchService) processCycleRecord(ctx context.Context, req *dto.BatchRunRequest, cycle *billingcycle.BillingCycle, asOf time.Time) (decimal.Decimal, error) {
	billingCycleService := NewBillingCycleService(s.ServiceParams)

	// Without auto invoicing the run only refreshes amounts and leaves the
	// cycle scheduled for a later invoicing pass.
	if !req.AutoInvoice {
		resp, err := billingCycleService.CalculateAmounts(ctx, cycle.ID, true)
		if err != nil {
			return decimal.Zero, err
		}
		return resp.TotalAmount, nil
	}

	var resp *dto.BillingCycleResponse
	var err error
	if cycle.State == types.BillingCycleStateFailed {
		resp, err = billingCycleService.RetryBillingCycle(ctx, cycle.ID, asOf)
	} else {
		resp, err = billingCycleService.ProcessBillingCycle(ctx, cycle.ID, asOf)
	}
	if err != nil {
		return decimal.Zero, err
	}

	if req.AutoPayment {
		resp, err = billingCycleService.MarkBillingCyclePaid(ctx, resp.ID, &dto.MarkBillingCyclePaidRequest{
			PaymentRef: types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
			PaidAt:     &asOf,
		})
		if err != nil {
			return decimal.Zero, err
		}
	}

	return resp.TotalAmount, nil
}

func (s *batchService) processRenewalRecord(ctx context.Context, req *dto.BatchRunRequest, renewalRecord *renewal.Renewal, asOf time.Time) (decimal.Decimal, error) {
	renewalService := NewRenewalService(s.ServiceParams)
	resp, err := renewalService.ProcessRenewal(ctx, renewalRecord.ID, &dto.ProcessRenewalRequest{
		Method: types.RenewalProcessMethodBatch,
	}, asOf)
	if err != nil {
		return decimal.Zero, err
	}

	amount := resp.RenewalPrice
	if req.AutoInvoice && resp.BillingCycleID != "" {
		billingCycleService := NewBillingCycleService(s.ServiceParams)
		cycleResp, err := billingCycleService.ProcessBillingCycle(ctx, resp.BillingCycleID, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		amount = cycleResp.TotalAmount

		if req.AutoPayment {
			cycleResp, err = billingCycleService.MarkBillingCyclePaid(ctx, resp.BillingCycleID, &dto.MarkBillingCyclePaidRequest{
				PaymentRef: types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
				PaidAt:     &asOf,
			})
			if err != nil {
				return decimal.Zero, err
			}
			amount = cycleResp.TotalAmount
		}
	}

	return amount, nil
}

func (s *batchService) executeDryRun(ctx context.Context, records []*batchRecord, response *dto.BatchRunResponse) {
	for _, rec := range records {
		amount, err := s.dryRunRecord(ctx, rec)
		if err != nil {
			response.Failed++
			appendRecordError(response, &dto.BatchRecordError{
				RecordID: rec.recordID,
				ShortID:  rec.shortID,
				Message:  err.Error(),
			})
			continue
		}
		response.Succeeded++
		response.TotalAmount = response.TotalAmount.Add(amount)
	}
}

// dryRunRecord runs the guards and pricing a real run would, without touching
// collaborators or persisting anything.
func (s *batchService) dryRunRecord(ctx context.Context, rec *batchRecord) (decimal.Decimal, error) {
	pricingService := NewPricingService(s.ServiceParams)

	if rec.cycle != nil {
		if rec.cycle.State == types.BillingCycleStateFailed && !rec.cycle.CanRetry() {
			return decimal.Zero, ierr.NewError("billing cycle retry attempts exhausted").
				WithHint("Failed cycles can only be retried while attempts remain").
				Mark(ierr.ErrValidation)
		}
		if rec.cycle.State != types.BillingCycleStateScheduled && rec.cycle.State != types.BillingCycleStateFailed {
			return decimal.Zero, ierr.NewError("billing cycle is not processable").
				WithHint("Only scheduled cycles can be processed").
				WithReportableDetails(map[string]interface{}{
					"state": rec.cycle.State,
				}).
				Mark(ierr.ErrInvalidState)
		}

		quoteDate := time.Time{}
		firstCycle := rec.cycle.BillingType == types.BillingTypeInitial
		if firstCycle {
			quoteDate = rec.sub.StartDate
		}
		quote, err := pricingService.QuoteSubscriptionPeriod(ctx, rec.sub, rec.cycle.PeriodStart, rec.cycle.PeriodEnd, quoteDate, firstCycle)
		if err != nil {
			return decimal.Zero, err
		}
		return quote.Total, nil
	}

	if !rec.renewalRecord.State.IsProcessable() {
		return decimal.Zero, ierr.NewError("renewal is not in a processable state").
			WithHint("Only pending, reminded or grace period renewals can be processed").
			WithReportableDetails(map[string]interface{}{
				"state": rec.renewalRecord.State,
			}).
			Mark(ierr.ErrInvalidState)
	}
	if !rec.sub.IsActive() {
		return decimal.Zero, ierr.NewError("subscription is not active").
			WithHint("Renewals can only be processed for active subscriptions").
			WithReportableDetails(map[string]interface{}{
				"subscription_id": rec.sub.ID,
				"state":           rec.sub.State,
			}).
			Mark(ierr.ErrInvalidState)
	}

	nextDue, err := rec.sub.PeriodDefinition().NextOccurrence(rec.renewalRecord.DueDate)
	if err != nil {
		return decimal.Zero, err
	}
	quote, err := pricingService.QuoteSubscriptionPeriod(ctx, rec.sub, types.BeginningOfDay(rec.renewalRecord.DueDate), nextDue.AddDate(0, 0, -1), time.Time{}, false)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.NetAmount, nil
}

func (s *batchService) finishRun(response *dto.BatchRunResponse) {
	response.CompletedAt = time.Now().UTC()
	switch {
	case response.Failed == 0:
		response.Status = types.BatchRunStatusCompleted
	case response.Succeeded == 0:
		response.Status = types.BatchRunStatusFailed
	default:
		response.Status = types.BatchRunStatusCompletedWithErrors
	}
	metrics.RecordBatchRun(response.TargetKind.String(), response.DryRun, response.CompletedAt.Sub(response.StartedAt))
}

func appendRecordError(response *dto.BatchRunResponse, recordErr *dto.BatchRecordError) {
	if len(response.Errors) >= dto.MaxBatchErrorsReported {
		return
	}
	response.Errors = append(response.Errors, recordErr)
}

func amountBand(amount decimal.Decimal) string {
	switch {
	case amount.LessThan(decimal.NewFromInt(100)):
		return "0-100"
	case amount.LessThan(decimal.NewFromInt(500)):
		return "100-500"
	case amount.LessThan(decimal.NewFromInt(1000)):
		return "500-1000"
	case amount.LessThan(decimal.NewFromInt(5000)):
		return "1000-5000"
	default:
		return "5000+"
	}
}

func (s *batchService) publishRunCompleted(ctx context.Context, response *dto.BatchRunResponse) {
	if types.NotificationsSuppressed(ctx) {
		return
	}
	event := &notifyDto.InternalBatchRunEvent{
		BatchRunID: response.RunID,
		TenantID:   types.GetTenantID(ctx),
		Kind:       response.TargetKind.String(),
		DryRun:     response.DryRun,
		Processed:  response.Total,
		Succeeded:  response.Succeeded,
		Failed:     response.Failed,
	}
	if err := s.Sender.SendTemplated(ctx, types.NotificationEventBatchCompleted, "batch_run", response.RunID, event); err != nil {
		s.Logger.Errorf("failed to publish %s event: %v", types.NotificationEventBatchCompleted, err)
	}
}
