package notifyDto

// InternalBatchRunEvent carries the full run summary. Batch runs are not
// persisted, so the event is self-contained rather than hydrated on delivery.
type InternalBatchRunEvent struct {
	BatchRunID string `json:"batch_run_id"`
	TenantID   string `json:"tenant_id"`
	Kind       string `json:"kind"`
	DryRun     bool   `json:"dry_run"`
	Processed  int    `json:"processed"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
}

type BatchRunWebhookPayload struct {
	EventType string                 `json:"event_type"`
	Run       *InternalBatchRunEvent `json:"run"`
}

func NewBatchRunWebhookPayload(run *InternalBatchRunEvent, eventType string) *BatchRunWebhookPayload {
	return &BatchRunWebhookPayload{EventType: eventType, Run: run}
}
