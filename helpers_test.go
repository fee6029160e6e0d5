package privacy

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// toyParams is y² = x³ + 3 over F_211. The curve has exactly 199 points, so
// every non-identity point generates the whole group and discrete logs can be
// brute-forced in tests.
var toyParams = CurveParams{
	Name:     "toy211",
	FieldHex: "0xd3",
	FieldDec: "211",
	OrderHex: "0xc7",
	OrderDec: "199",
	B:        3,
	GxHex:    "0x1",
	GyHex:    "0x2",
}

func testSuite(t testing.TB) *Suite {
	t.Helper()
	s, err := DefaultSuite()
	require.NoError(t, err)
	return s
}

func toySuite(t testing.TB) *Suite {
	t.Helper()
	s, err := NewSuite(context.Background(), toyParams, MinGeneratorAttempts)
	require.NoError(t, err)
	return s
}

// testConfig disables timing padding and keeps PBKDF2 cheap
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Timing = TimingPolicy{}
	cfg.KeyExport = KeyExportConfig{Iterations: 20000, MinIterations: 10000}
	return cfg
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func scalar(s *Suite, v uint64) Element {
	return s.ScalarField().FromUint64(v)
}

// fakeClock is a settable clock shared by keys and escrow under test
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingAuditHandler collects events for assertions
type recordingAuditHandler struct {
	mu          sync.Mutex
	transitions []*EscrowTransitionEvent
	keyChanges  []*KeyStateChangeEvent
	exports     []*AuditEvent
	failures    []*ValidationFailureEvent
	errors      []*AuditEvent
}

func (h *recordingAuditHandler) OnEscrowTransition(event *EscrowTransitionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.transitions = append(h.transitions, event)
}

func (h *recordingAuditHandler) OnKeyStateChange(event *KeyStateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.keyChanges = append(h.keyChanges, event)
}

func (h *recordingAuditHandler) OnKeyExport(event *AuditEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exports = append(h.exports, event)
}

func (h *recordingAuditHandler) OnValidationFailure(event *ValidationFailureEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, event)
}

func (h *recordingAuditHandler) OnError(event *AuditEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, event)
}

func (h *recordingAuditHandler) transitionCount(from, to EscrowState) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.transitions {
		if e.EventType == AuditEventEscrowTransition && e.From == from && e.To == to {
			n++
		}
	}
	return n
}
