package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/memberbill/memberbill/internal/types"
)

// AuditLog is one append only event in the billing audit trail. Entries are
// written alongside every state change and never updated or deleted.
type AuditLog struct {
	// ID is the unique identifier for the audit entry
	ID string `db:"id" json:"id" ch:"id"`

	// EntityType and EntityID identify the record the event belongs to
	EntityType types.AuditEntityType `db:"entity_type" json:"entity_type" ch:"entity_type"`
	EntityID   string                `db:"entity_id" json:"entity_id" ch:"entity_id"`

	// Event names what happened, for example state_changed or created
	Event string `db:"event" json:"event" ch:"event"`

	// FromState and ToState record a state transition, empty for other events
	FromState string `db:"from_state" json:"from_state" ch:"from_state"`
	ToState   string `db:"to_state" json:"to_state" ch:"to_state"`

	// Message is a one line human readable summary
	Message string `db:"message" json:"message" ch:"message"`

	// ActorID is the user or system process that caused the event
	ActorID string `db:"actor_id" json:"actor_id" ch:"actor_id"`

	// TenantID and EnvironmentID scope the event
	TenantID      string `db:"tenant_id" json:"tenant_id" ch:"tenant_id"`
	EnvironmentID string `db:"environment_id" json:"environment_id" ch:"environment_id"`

	// Timestamp is when the event happened, UTC
	Timestamp time.Time `db:"timestamp" json:"timestamp" ch:"timestamp"`

	// Details carries event specific fields as raw JSON
	Details json.RawMessage `db:"details" json:"details" ch:"details"`
}

// New builds an audit entry scoped by the context, stamped with the current
// time. Marshal failures of the details leave them empty rather than failing
// the business operation.
func New(ctx context.Context, entityType types.AuditEntityType, entityID, event string, details any) *AuditLog {
	var raw json.RawMessage
	if details != nil {
		raw, _ = json.Marshal(details)
	}
	return &AuditLog{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_AUDIT_LOG),
		EntityType:    entityType,
		EntityID:      entityID,
		Event:         event,
		ActorID:       types.GetUserID(ctx),
		TenantID:      types.GetTenantID(ctx),
		EnvironmentID: types.GetEnvironmentID(ctx),
		Timestamp:     time.Now().UTC(),
		Details:       raw,
	}
}

// NewTransition builds a state change entry with the transition recorded as
// first class fields
func NewTransition(ctx context.Context, entityType types.AuditEntityType, entityID, from, to, message string) *AuditLog {
	entry := New(ctx, entityType, entityID, types.AuditEventStateChanged, nil)
	entry.FromState = from
	entry.ToState = to
	entry.Message = message
	return entry
}
