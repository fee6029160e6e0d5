package privacy

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditEventCreation(t *testing.T) {
	t.Run("BasicAuditEvent", func(t *testing.T) {
		event := NewAuditEventBuilder(AuditEventKeyExport, ReasonExport).
			WithSubject("vk-1").
			WithActor("ops").
			WithMetadata("format", "encrypted").
			Build()

		assert.NotEmpty(t, event.EventID)
		assert.Equal(t, AuditEventKeyExport, event.EventType)
		assert.Equal(t, ReasonExport, event.Reason)
		assert.Equal(t, "vk-1", event.Subject)
		assert.Equal(t, "ops", event.Actor)
		assert.True(t, event.Success)
		assert.Equal(t, "encrypted", event.Metadata["format"])
		assert.WithinDuration(t, time.Now(), event.Timestamp, time.Minute)
	})

	t.Run("EscrowTransitionEvent", func(t *testing.T) {
		ts := time.Date(2025, 3, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
		event := NewAuditEventBuilder(AuditEventEscrowTransition, ReasonThresholdMet).
			WithSubject("record-1").
			WithTimestamp(ts).
			BuildEscrowTransition(EscrowStateVoting, EscrowStateExecuted, 3, 3)

		assert.Equal(t, EscrowStateVoting, event.From)
		assert.Equal(t, EscrowStateExecuted, event.To)
		assert.Equal(t, 3, event.Approvals)
		assert.Equal(t, time.UTC, event.Timestamp.Location())
		assert.True(t, ts.Equal(event.Timestamp))
	})

	t.Run("KeyStateChangeEvent", func(t *testing.T) {
		event := NewAuditEventBuilder(AuditEventKeyStateChange, ReasonRevocation).
			BuildKeyStateChange(KeyStateActive, KeyStateRevoked)
		assert.Equal(t, KeyStateActive, event.From)
		assert.Equal(t, KeyStateRevoked, event.To)
	})

	t.Run("ErrorEvent", func(t *testing.T) {
		event := NewAuditEventBuilder(AuditEventRejectedAttempt, ReasonValidationError).
			WithError(errors.New("duplicate vote")).
			Build()
		assert.False(t, event.Success)
		assert.Equal(t, "duplicate vote", event.Error)

		nilErr := NewAuditEventBuilder(AuditEventRejectedAttempt, ReasonValidationError).WithError(nil).Build()
		assert.False(t, nilErr.Success)
		assert.Empty(t, nilErr.Error)
	})

	t.Run("ValidationFailureEvent", func(t *testing.T) {
		event := NewAuditEventBuilder(AuditEventValidationFailure, ReasonValidationError).
			BuildValidationFailure("deposit", "threshold above holders", map[string]interface{}{"threshold": 6})
		assert.Equal(t, "deposit", event.ValidationType)
		assert.Equal(t, 6, event.InputValues["threshold"])
	})
}

func TestAuditEventSerialization(t *testing.T) {
	event := NewAuditEventBuilder(AuditEventEscrowVote, ReasonVoteCast).
		WithSubject("record-7").
		WithActor("council-1").
		WithMetadata("decision", "approve").
		BuildEscrowTransition(EscrowStateVoting, EscrowStateVoting, 1, 3)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "escrow_vote", decoded["event_type"])
	assert.Equal(t, "vote_cast", decoded["reason"])
	assert.Equal(t, "record-7", decoded["subject"])
	assert.Equal(t, "voting", decoded["from"])
	assert.Equal(t, float64(1), decoded["approvals"])
	assert.NotContains(t, decoded, "error", "empty error is omitted")
}

func TestAuditEventIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewAuditEventBuilder(AuditEventKeyExport, ReasonExport).Build().EventID
		require.False(t, seen[id], "duplicate event ID %s", id)
		seen[id] = true
	}
}

func TestNullAuditHandler(t *testing.T) {
	h := auditOrNull(nil)
	require.IsType(t, &NullAuditHandler{}, h)

	b := NewAuditEventBuilder(AuditEventKeyExport, ReasonExport)
	assert.NotPanics(t, func() {
		h.OnEscrowTransition(b.BuildEscrowTransition(EscrowStateNone, EscrowStateRequest, 0, 3))
		h.OnKeyStateChange(b.BuildKeyStateChange(KeyStateActive, KeyStateExpired))
		h.OnKeyExport(b.Build())
		h.OnValidationFailure(b.BuildValidationFailure("x", "y", nil))
		h.OnError(b.Build())
	})

	rec := &recordingAuditHandler{}
	assert.Same(t, rec, auditOrNull(rec))
}
