package privacy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Service is the narrow, typed entry point external collaborators use. It
// owns the viewing-key registry and the escrow manager and pads every
// verification and decryption outcome with the configured timing policy.
type Service struct {
	suite    *Suite
	cfg      *Config
	pedersen *PedersenScheme
	shamir   *Shamir
	registry *Registry
	escrow   *Escrow
	logger   *logrus.Logger
	audit    AuditEventHandler
	clock    func() time.Time
}

type serviceOptions struct {
	logger *logrus.Logger
	audit  AuditEventHandler
	clock  func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*serviceOptions)

// WithLogger sets the logger shared by the service components
func WithLogger(l *logrus.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = l }
}

// WithAuditHandler sets the audit handler shared by the service components
func WithAuditHandler(h AuditEventHandler) ServiceOption {
	return func(o *serviceOptions) { o.audit = h }
}

// WithClock overrides time.Now for escrow deadlines and key expiry
func WithClock(clock func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.clock = clock }
}

// NewService wires the components over a suite. A nil cfg uses DefaultConfig.
func NewService(suite *Suite, cfg *Config, opts ...ServiceOption) (*Service, error) {
	if suite == nil {
		return nil, ErrInvalidInput.WithDetails("suite cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := serviceOptions{logger: logrus.StandardLogger(), clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	o.audit = auditOrNull(o.audit)

	pedersen, err := NewPedersenScheme(suite)
	if err != nil {
		return nil, err
	}
	escrow, err := NewEscrow(suite, cfg.Escrow,
		WithEscrowLogger(o.logger),
		WithEscrowAudit(o.audit),
		WithEscrowClock(o.clock))
	if err != nil {
		return nil, err
	}
	return &Service{
		suite:    suite,
		cfg:      cfg,
		pedersen: pedersen,
		shamir:   NewShamir(suite),
		registry: NewRegistry(),
		escrow:   escrow,
		logger:   o.logger,
		audit:    o.audit,
		clock:    o.clock,
	}, nil
}

// NewServiceFromConfig builds a BN254 suite from cfg and wires a service
// over it. A nil cfg uses DefaultConfig.
func NewServiceFromConfig(ctx context.Context, cfg *Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	suite, err := NewSuiteFromConfig(ctx, BN254Params, cfg)
	if err != nil {
		return nil, err
	}
	return NewService(suite, cfg, opts...)
}

// Suite returns the underlying suite
func (s *Service) Suite() *Suite { return s.suite }

// Registry returns the viewing-key registry
func (s *Service) Registry() *Registry { return s.registry }

// Escrow returns the escrow manager
func (s *Service) Escrow() *Escrow { return s.escrow }

// NewViewingKey generates and registers a key that uses the service's
// logger, audit handler and export policy
func (s *Service) NewViewingKey(opts ...KeyOption) (*ViewingKey, error) {
	all := append([]KeyOption{
		WithKeyLogger(s.logger),
		WithKeyAudit(s.audit),
		WithExportConfig(s.cfg.KeyExport),
		WithKeyClock(s.clock),
	}, opts...)
	vk, err := GenerateViewingKey(s.suite, all...)
	if err != nil {
		return nil, err
	}
	if err := s.registry.Register(vk); err != nil {
		return nil, err
	}
	return vk, nil
}

// CurveCommit commits to value; a nil blinding draws one
func (s *Service) CurveCommit(value Element, blinding *Element) (*Commitment, Element, error) {
	return s.pedersen.Commit(value, blinding)
}

// CurveVerify opens a commitment
func (s *Service) CurveVerify(ctx context.Context, c *Commitment, value, blinding Element) bool {
	defer s.cfg.Timing.Apply(ctx)
	return s.pedersen.Open(c, value, blinding)
}

// Hash hashes up to seven scalar-field elements
func (s *Service) Hash(inputs ...Element) (Element, error) {
	return s.suite.Hash(inputs...)
}

// ShamirSplit splits a secret into total shares with the given threshold
func (s *Service) ShamirSplit(secret Element, threshold, total int) ([]*Share, error) {
	return s.shamir.Split(secret, threshold, total)
}

// ShamirReconstruct recovers a secret from at least threshold shares
func (s *Service) ShamirReconstruct(shares []*Share) (Element, error) {
	return s.shamir.Reconstruct(shares)
}

// ShamirVerifyShare checks a share against threshold-1 others
func (s *Service) ShamirVerifyShare(ctx context.Context, candidate *Share, others []*Share) (bool, error) {
	defer s.cfg.Timing.Apply(ctx)
	return s.shamir.VerifyShare(candidate, others)
}

// EciesEncrypt seals plaintext to a public key
func (s *Service) EciesEncrypt(recipient Point, plaintext, aad []byte) (*EncryptedPayload, error) {
	return s.suite.Encrypt(recipient, plaintext, aad)
}

// EciesDecrypt opens a payload with a registered viewing key
func (s *Service) EciesDecrypt(ctx context.Context, keyID string, payload *EncryptedPayload, aad []byte) ([]byte, error) {
	defer s.cfg.Timing.Apply(ctx)
	vk, err := s.registry.Lookup(keyID)
	if err != nil {
		return nil, err
	}
	return vk.Decrypt(payload, aad)
}

// KeyCommitment returns the hiding commitment of a registered key
func (s *Service) KeyCommitment(keyID string) (Element, error) {
	vk, err := s.registry.Lookup(keyID)
	if err != nil {
		return Element{}, err
	}
	return vk.KeyCommitment()
}

// KeyVerifyCommitment checks a key commitment opening
func (s *Service) KeyVerifyCommitment(ctx context.Context, public Point, blinding, commitment Element) (bool, error) {
	defer s.cfg.Timing.Apply(ctx)
	return VerifyKeyCommitment(s.suite, public, blinding, commitment)
}

// ExportEncrypted wraps a registered key under a password. iterations of
// zero uses the configured default.
func (s *Service) ExportEncrypted(keyID string, password []byte, iterations int) (*EncryptedKeyBlob, error) {
	vk, err := s.registry.Lookup(keyID)
	if err != nil {
		return nil, err
	}
	return vk.ExportPrivateEncrypted(password, iterations)
}

// ImportEncrypted unwraps a blob and registers the key under its original ID
func (s *Service) ImportEncrypted(blob *EncryptedKeyBlob, password []byte) (*ViewingKey, error) {
	vk, err := ImportPrivateEncrypted(s.suite, blob, password,
		WithKeyLogger(s.logger),
		WithKeyAudit(s.audit),
		WithExportConfig(s.cfg.KeyExport),
		WithKeyClock(s.clock))
	if err != nil {
		return nil, err
	}
	if err := s.registry.Register(vk); err != nil {
		vk.Destroy()
		return nil, err
	}
	return vk, nil
}

// EscrowDeposit escrows a secret with the given holders
func (s *Service) EscrowDeposit(secret Element, threshold int, holders []Holder) (*EscrowDeposit, error) {
	return s.escrow.Deposit(secret, threshold, holders)
}

// EscrowRequestReconstruction opens a reconstruction record
func (s *Service) EscrowRequestReconstruction(depositID, initiator, legalReference string, signature []byte) (*EscrowRecord, error) {
	return s.escrow.RequestReconstruction(depositID, initiator, legalReference, signature)
}

// EscrowVote records a holder's vote
func (s *Service) EscrowVote(recordID, voter string, decision Decision, share *Share, signature []byte) (*EscrowRecord, error) {
	return s.escrow.Vote(recordID, voter, decision, share, signature)
}

// EscrowExecute reconstructs the escrowed secret
func (s *Service) EscrowExecute(recordID, actor string) (Element, error) {
	return s.escrow.Execute(recordID, actor)
}
