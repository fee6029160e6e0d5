package privacy

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	// Escrow events
	AuditEventEscrowTransition AuditEventType = "escrow_transition"
	AuditEventEscrowVote       AuditEventType = "escrow_vote"

	// Key lifecycle events
	AuditEventKeyStateChange AuditEventType = "key_state_change"
	AuditEventKeyExport      AuditEventType = "key_export"
	AuditEventKeyImport      AuditEventType = "key_import"

	// Error events
	AuditEventValidationFailure     AuditEventType = "validation_failure"
	AuditEventRejectedAttempt       AuditEventType = "rejected_attempt"
	AuditEventReconstructionFailure AuditEventType = "reconstruction_failure"
)

// AuditEventReason represents why an event occurred
type AuditEventReason string

const (
	ReasonRequest         AuditEventReason = "request"
	ReasonVoteCast        AuditEventReason = "vote_cast"
	ReasonThresholdMet    AuditEventReason = "threshold_met"
	ReasonWindowExpired   AuditEventReason = "window_expired"
	ReasonExpiry          AuditEventReason = "expiry"
	ReasonRevocation      AuditEventReason = "revocation"
	ReasonDeletion        AuditEventReason = "deletion"
	ReasonExport          AuditEventReason = "export"
	ReasonImport          AuditEventReason = "import"
	ReasonValidationError AuditEventReason = "validation_error"
)

// AuditEvent is a single audit event of the privacy layer
type AuditEvent struct {
	EventID   string           `json:"event_id"`
	Timestamp time.Time        `json:"timestamp"`
	EventType AuditEventType   `json:"event_type"`
	Reason    AuditEventReason `json:"reason"`

	// Subject identifies the escrow record, deposit or viewing key
	Subject string `json:"subject,omitempty"`
	Actor   string `json:"actor,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// EscrowTransitionEvent records one escrow state change
type EscrowTransitionEvent struct {
	AuditEvent

	From      EscrowState `json:"from"`
	To        EscrowState `json:"to"`
	Approvals int         `json:"approvals"`
	Threshold int         `json:"threshold"`
}

// KeyStateChangeEvent records a viewing-key lifecycle change
type KeyStateChangeEvent struct {
	AuditEvent

	From KeyState `json:"from"`
	To   KeyState `json:"to"`
}

// ValidationFailureEvent contains details about refused operations
type ValidationFailureEvent struct {
	AuditEvent

	ValidationType string                 `json:"validation_type"`
	FailureReason  string                 `json:"failure_reason"`
	InputValues    map[string]interface{} `json:"input_values,omitempty"`
}

// AuditEventHandler receives audit events. Applications implement it to
// persist the escrow and key trail according to their own retention rules.
type AuditEventHandler interface {
	OnEscrowTransition(event *EscrowTransitionEvent)
	OnKeyStateChange(event *KeyStateChangeEvent)
	OnKeyExport(event *AuditEvent)
	OnValidationFailure(event *ValidationFailureEvent)
	OnError(event *AuditEvent)
}

// NullAuditHandler discards every event
type NullAuditHandler struct{}

func (n *NullAuditHandler) OnEscrowTransition(event *EscrowTransitionEvent)   {}
func (n *NullAuditHandler) OnKeyStateChange(event *KeyStateChangeEvent)       {}
func (n *NullAuditHandler) OnKeyExport(event *AuditEvent)                     {}
func (n *NullAuditHandler) OnValidationFailure(event *ValidationFailureEvent) {}
func (n *NullAuditHandler) OnError(event *AuditEvent)                         {}

// AuditEventBuilder helps construct audit events with proper defaults
type AuditEventBuilder struct {
	event *AuditEvent
}

// NewAuditEventBuilder creates a new audit event builder
func NewAuditEventBuilder(eventType AuditEventType, reason AuditEventReason) *AuditEventBuilder {
	return &AuditEventBuilder{
		event: &AuditEvent{
			EventID:   uuid.NewString(),
			Timestamp: time.Now().UTC(),
			EventType: eventType,
			Reason:    reason,
			Success:   true,
			Metadata:  make(map[string]interface{}),
		},
	}
}

// WithSubject sets the record or key the event concerns
func (b *AuditEventBuilder) WithSubject(subject string) *AuditEventBuilder {
	b.event.Subject = subject
	return b
}

// WithActor sets who triggered the event
func (b *AuditEventBuilder) WithActor(actor string) *AuditEventBuilder {
	b.event.Actor = actor
	return b
}

// WithTimestamp overrides the event time
func (b *AuditEventBuilder) WithTimestamp(ts time.Time) *AuditEventBuilder {
	b.event.Timestamp = ts.UTC()
	return b
}

// WithError marks the event as failed and sets error information
func (b *AuditEventBuilder) WithError(err error) *AuditEventBuilder {
	b.event.Success = false
	if err != nil {
		b.event.Error = err.Error()
	}
	return b
}

// WithMetadata adds metadata to the event
func (b *AuditEventBuilder) WithMetadata(key string, value interface{}) *AuditEventBuilder {
	b.event.Metadata[key] = value
	return b
}

// Build returns the constructed audit event
func (b *AuditEventBuilder) Build() *AuditEvent {
	return b.event
}

// BuildEscrowTransition returns an EscrowTransitionEvent
func (b *AuditEventBuilder) BuildEscrowTransition(from, to EscrowState, approvals, threshold int) *EscrowTransitionEvent {
	return &EscrowTransitionEvent{
		AuditEvent: *b.event,
		From:       from,
		To:         to,
		Approvals:  approvals,
		Threshold:  threshold,
	}
}

// BuildKeyStateChange returns a KeyStateChangeEvent
func (b *AuditEventBuilder) BuildKeyStateChange(from, to KeyState) *KeyStateChangeEvent {
	return &KeyStateChangeEvent{
		AuditEvent: *b.event,
		From:       from,
		To:         to,
	}
}

// BuildValidationFailure returns a ValidationFailureEvent
func (b *AuditEventBuilder) BuildValidationFailure(validationType, failureReason string, inputValues map[string]interface{}) *ValidationFailureEvent {
	return &ValidationFailureEvent{
		AuditEvent:     *b.event,
		ValidationType: validationType,
		FailureReason:  failureReason,
		InputValues:    inputValues,
	}
}

func auditOrNull(h AuditEventHandler) AuditEventHandler {
	if h == nil {
		return &NullAuditHandler{}
	}
	return h
}
