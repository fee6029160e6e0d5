package privacy

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// KeyState is the lifecycle state of a viewing key. Transitions are one-way:
// Active → Expired → Revoked, or Active → Revoked.
type KeyState int32

const (
	KeyStateActive KeyState = iota
	KeyStateExpired
	KeyStateRevoked
)

func (s KeyState) String() string {
	switch s {
	case KeyStateActive:
		return "active"
	case KeyStateExpired:
		return "expired"
	case KeyStateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// keySnapshot is the immutable published state of a key
type keySnapshot struct {
	state     KeyState
	expiresAt time.Time
	destroyed bool
}

// ViewingKey is an ECIES key pair with a hiding commitment blinding and an
// optional expiry. State reads are lock-free through an atomic snapshot;
// mutations are serialized by the key's mutex. Private key use takes the
// read side of the same lock so destruction cannot race a decryption.
type ViewingKey struct {
	id        string
	suite     *Suite
	createdAt time.Time

	mu       sync.RWMutex
	private  Element
	public   Point
	blinding Element

	snapshot atomic.Pointer[keySnapshot]

	logger    *logrus.Logger
	audit     AuditEventHandler
	clock     func() time.Time
	exportCfg KeyExportConfig
}

type keyOptions struct {
	id        string
	expiresAt time.Time
	logger    *logrus.Logger
	audit     AuditEventHandler
	clock     func() time.Time
	exportCfg KeyExportConfig
}

// KeyOption configures a viewing key
type KeyOption func(*keyOptions)

// WithKeyID sets the key identifier; a random UUID is used otherwise
func WithKeyID(id string) KeyOption {
	return func(o *keyOptions) { o.id = id }
}

// WithExpiry sets the initial expiry
func WithExpiry(t time.Time) KeyOption {
	return func(o *keyOptions) { o.expiresAt = t }
}

// WithKeyLogger sets the logger
func WithKeyLogger(l *logrus.Logger) KeyOption {
	return func(o *keyOptions) { o.logger = l }
}

// WithKeyAudit sets the audit handler
func WithKeyAudit(h AuditEventHandler) KeyOption {
	return func(o *keyOptions) { o.audit = h }
}

// WithKeyClock overrides time.Now, for expiry tests
func WithKeyClock(clock func() time.Time) KeyOption {
	return func(o *keyOptions) { o.clock = clock }
}

// WithExportConfig sets the key export policy
func WithExportConfig(cfg KeyExportConfig) KeyOption {
	return func(o *keyOptions) { o.exportCfg = cfg }
}

// GenerateViewingKey creates a fresh key pair and commitment blinding
func GenerateViewingKey(suite *Suite, opts ...KeyOption) (*ViewingKey, error) {
	if suite == nil {
		return nil, ErrInvalidInput.WithDetails("suite cannot be nil")
	}
	private, err := suite.ScalarField().RandomNonZero()
	if err != nil {
		return nil, err
	}
	blinding, err := suite.ScalarField().Random()
	if err != nil {
		return nil, err
	}
	return newViewingKey(suite, private, blinding, opts...)
}

// NewViewingKeyFromPrivate rebuilds a key from its private scalar and
// commitment blinding
func NewViewingKeyFromPrivate(suite *Suite, private, blinding Element, opts ...KeyOption) (*ViewingKey, error) {
	if suite == nil {
		return nil, ErrInvalidInput.WithDetails("suite cannot be nil")
	}
	fr := suite.ScalarField()
	if !private.f.sameAs(fr) || !blinding.f.sameAs(fr) {
		return nil, ErrFieldMismatch
	}
	if private.IsZero() {
		return nil, ErrInvalidInput.WithDetails("private key cannot be zero")
	}
	return newViewingKey(suite, private, blinding, opts...)
}

func newViewingKey(suite *Suite, private, blinding Element, opts ...KeyOption) (*ViewingKey, error) {
	o := keyOptions{
		logger:    logrus.StandardLogger(),
		clock:     time.Now,
		exportCfg: DefaultConfig().KeyExport,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	vk := &ViewingKey{
		id:        o.id,
		suite:     suite,
		createdAt: o.clock(),
		private:   private,
		public:    suite.Curve().ScalarBaseMult(private),
		blinding:  blinding,
		logger:    o.logger,
		audit:     auditOrNull(o.audit),
		clock:     o.clock,
		exportCfg: o.exportCfg,
	}
	vk.snapshot.Store(&keySnapshot{state: KeyStateActive, expiresAt: o.expiresAt})
	return vk, nil
}

// ID returns the key identifier
func (vk *ViewingKey) ID() string { return vk.id }

// PublicKey returns the public point
func (vk *ViewingKey) PublicKey() Point { return vk.public }

// CreatedAt returns the creation time
func (vk *ViewingKey) CreatedAt() time.Time { return vk.createdAt }

// ExpiresAt returns the expiry, zero when none is set
func (vk *ViewingKey) ExpiresAt() time.Time { return vk.snapshot.Load().expiresAt }

// State returns the effective state; a passed expiry reads as Expired
func (vk *ViewingKey) State() KeyState {
	return vk.effectiveState(vk.snapshot.Load())
}

func (vk *ViewingKey) effectiveState(snap *keySnapshot) KeyState {
	if snap.state != KeyStateActive {
		return snap.state
	}
	if !snap.expiresAt.IsZero() && !vk.clock().Before(snap.expiresAt) {
		return KeyStateExpired
	}
	return KeyStateActive
}

// Expire moves an active key to Expired
func (vk *ViewingKey) Expire() error {
	vk.mu.Lock()
	defer vk.mu.Unlock()
	snap := vk.snapshot.Load()
	from := vk.effectiveState(snap)
	if from != KeyStateActive {
		return ErrInvalidState.WithDetails("key %s is already %s", vk.id, from)
	}
	next := *snap
	next.state = KeyStateExpired
	vk.snapshot.Store(&next)
	vk.emitStateChange(from, KeyStateExpired, ReasonExpiry, "")
	return nil
}

// SetExpiry sets or shortens the expiry of an active key. Expiry can never
// be extended.
func (vk *ViewingKey) SetExpiry(t time.Time) error {
	vk.mu.Lock()
	defer vk.mu.Unlock()
	snap := vk.snapshot.Load()
	if vk.effectiveState(snap) != KeyStateActive {
		return ErrInvalidState.WithDetails("key %s is not active", vk.id)
	}
	if !snap.expiresAt.IsZero() && t.After(snap.expiresAt) {
		return ErrInvalidState.WithDetails("expiry of key %s cannot be extended", vk.id)
	}
	next := *snap
	next.expiresAt = t
	vk.snapshot.Store(&next)
	return nil
}

// Revoke moves the key to the terminal Revoked state
func (vk *ViewingKey) Revoke(reason string) error {
	vk.mu.Lock()
	defer vk.mu.Unlock()
	snap := vk.snapshot.Load()
	from := vk.effectiveState(snap)
	if from == KeyStateRevoked {
		return ErrInvalidState.WithDetails("key %s is already revoked", vk.id)
	}
	next := *snap
	next.state = KeyStateRevoked
	vk.snapshot.Store(&next)
	vk.emitStateChange(from, KeyStateRevoked, ReasonRevocation, reason)
	return nil
}

// Destroy revokes the key and wipes the private material
func (vk *ViewingKey) Destroy() {
	vk.mu.Lock()
	defer vk.mu.Unlock()
	snap := vk.snapshot.Load()
	if snap.destroyed {
		return
	}
	from := vk.effectiveState(snap)
	vk.private.Zeroize()
	vk.blinding.Zeroize()
	vk.snapshot.Store(&keySnapshot{state: KeyStateRevoked, expiresAt: snap.expiresAt, destroyed: true})
	vk.emitStateChange(from, KeyStateRevoked, ReasonDeletion, "destroyed")
}

// Encrypt seals plaintext to this key. Active and Expired keys may encrypt.
func (vk *ViewingKey) Encrypt(plaintext, aad []byte) (*EncryptedPayload, error) {
	if vk.State() == KeyStateRevoked {
		return nil, ErrKeyRevoked.WithContext("key_id", vk.id)
	}
	return vk.suite.Encrypt(vk.public, plaintext, aad)
}

// Decrypt opens a payload sealed to this key. Only Active keys decrypt;
// authentication failure never yields partial plaintext.
func (vk *ViewingKey) Decrypt(payload *EncryptedPayload, aad []byte) ([]byte, error) {
	vk.mu.RLock()
	defer vk.mu.RUnlock()
	switch vk.State() {
	case KeyStateExpired:
		return nil, ErrKeyExpired.WithContext("key_id", vk.id)
	case KeyStateRevoked:
		return nil, ErrKeyRevoked.WithContext("key_id", vk.id)
	}
	return vk.suite.decrypt(vk.private, vk.public, payload, aad)
}

// KeyCommitment returns Hash(x_hi, x_lo, y_hi, y_lo, blinding) over the
// 128-bit limbs of the public key. The blinding keeps the commitment from
// being matched against known public keys.
func (vk *ViewingKey) KeyCommitment() (Element, error) {
	vk.mu.RLock()
	defer vk.mu.RUnlock()
	if err := vk.refuseRevoked(vk.snapshot.Load()); err != nil {
		return Element{}, err
	}
	return keyCommitment(vk.suite, vk.public, vk.blinding)
}

// CommitmentBlinding returns the blinding needed to open KeyCommitment
func (vk *ViewingKey) CommitmentBlinding() Element {
	vk.mu.RLock()
	defer vk.mu.RUnlock()
	return vk.blinding
}

// VerifyKeyCommitment recomputes the commitment and compares in fixed time
func VerifyKeyCommitment(suite *Suite, public Point, blinding, commitment Element) (bool, error) {
	expected, err := keyCommitment(suite, public, blinding)
	if err != nil {
		return false, err
	}
	return SecureCompare(expected.Bytes(), commitment.Bytes()), nil
}

func keyCommitment(suite *Suite, public Point, blinding Element) (Element, error) {
	if public.c == nil || public.inf {
		return Element{}, ErrPointAtInfinity.WithDetails("public key")
	}
	if !blinding.f.sameAs(suite.ScalarField()) {
		return Element{}, ErrFieldMismatch.WithDetails("blinding")
	}
	limbs, err := pointLimbs(suite.ScalarField(), public)
	if err != nil {
		return Element{}, err
	}
	return suite.Hash(append(limbs, blinding)...)
}

// pointLimbs splits each coordinate into big-endian 128-bit halves so every
// limb is canonical in the scalar field
func pointLimbs(fr *Field, p Point) ([]Element, error) {
	enc := p.Bytes()
	limbs := make([]Element, 0, 4)
	buf := make([]byte, ElementSize)
	for off := 0; off < PointSize; off += ElementSize / 2 {
		for i := range buf {
			buf[i] = 0
		}
		copy(buf[ElementSize/2:], enc[off:off+ElementSize/2])
		e, err := fr.FromBytes(buf)
		if err != nil {
			return nil, err
		}
		limbs = append(limbs, e)
	}
	return limbs, nil
}

// ExportPrivate returns the raw private scalar. This path is discouraged:
// prefer ExportPrivateEncrypted.
func (vk *ViewingKey) ExportPrivate() ([]byte, error) {
	vk.mu.RLock()
	defer vk.mu.RUnlock()
	if err := vk.refuseRevoked(vk.snapshot.Load()); err != nil {
		return nil, err
	}
	vk.logger.WithFields(logrus.Fields{
		"key_id": vk.id,
		"state":  vk.State().String(),
	}).Warn("exporting raw viewing key material; use encrypted export instead")
	vk.audit.OnKeyExport(NewAuditEventBuilder(AuditEventKeyExport, ReasonExport).
		WithSubject(vk.id).
		WithMetadata("encrypted", false).
		Build())
	return vk.private.Bytes(), nil
}

// refuseRevoked fails for revoked and destroyed keys. Callers hold vk.mu.
func (vk *ViewingKey) refuseRevoked(snap *keySnapshot) error {
	if snap.destroyed {
		return ErrKeyRevoked.WithDetails("key %s was destroyed", vk.id)
	}
	if vk.effectiveState(snap) == KeyStateRevoked {
		return ErrKeyRevoked.WithContext("key_id", vk.id)
	}
	return nil
}

func (vk *ViewingKey) emitStateChange(from, to KeyState, reason AuditEventReason, detail string) {
	vk.logger.WithFields(logrus.Fields{
		"key_id": vk.id,
		"from":   from.String(),
		"to":     to.String(),
		"reason": detail,
	}).Info("viewing key state changed")
	b := NewAuditEventBuilder(AuditEventKeyStateChange, reason).WithSubject(vk.id)
	if detail != "" {
		b = b.WithMetadata("detail", detail)
	}
	vk.audit.OnKeyStateChange(b.BuildKeyStateChange(from, to))
}
