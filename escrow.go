package privacy

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Role is an escrow holder role
type Role string

const (
	RoleUser              Role = "user"
	RoleComplianceCouncil Role = "compliance_council"
	RoleAuditor           Role = "auditor"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleComplianceCouncil, RoleAuditor:
		return true
	}
	return false
}

// CanInitiate reports whether holders of r may open a reconstruction request
func (r Role) CanInitiate() bool {
	return r == RoleUser || r == RoleComplianceCouncil
}

// Decision is a holder's vote
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// EscrowState is the reconstruction record state. Executed and Closed are
// terminal.
type EscrowState string

const (
	EscrowStateNone     EscrowState = ""
	EscrowStateRequest  EscrowState = "request"
	EscrowStateVoting   EscrowState = "voting"
	EscrowStateExecuted EscrowState = "executed"
	EscrowStateClosed   EscrowState = "closed"
)

// Terminal reports whether no further transition is possible
func (s EscrowState) Terminal() bool {
	return s == EscrowStateExecuted || s == EscrowStateClosed
}

// Holder is a named share holder
type Holder struct {
	Name       string
	Role       Role
	ViewingKey Point
	Verifier   VoteVerifier
}

// SealedShare is a share encrypted to its holder's viewing key
type SealedShare struct {
	Holder  string
	Index   int
	Payload *EncryptedPayload
}

// EscrowDeposit is an escrowed secret: one sealed share per holder.
// Commitments is the split's polynomial commitment every released share must
// open.
type EscrowDeposit struct {
	ID          string
	Threshold   int
	Holders     []Holder
	Sealed      []SealedShare
	Commitments *PolynomialCommitment
	CreatedAt   time.Time
}

// holder returns the holder and its share index
func (d *EscrowDeposit) holder(name string) (Holder, int, bool) {
	for i, h := range d.Holders {
		if h.Name == name {
			return h, i + 1, true
		}
	}
	return Holder{}, 0, false
}

// SealedShareFor returns the sealed share of a holder
func (d *EscrowDeposit) SealedShareFor(name string) (*SealedShare, error) {
	for i := range d.Sealed {
		if d.Sealed[i].Holder == name {
			s := d.Sealed[i]
			return &s, nil
		}
	}
	return nil, ErrNotFound.WithDetails("no share for holder %q", name)
}

// Transition is one entry of a record's append-only log
type Transition struct {
	From   EscrowState `json:"from"`
	To     EscrowState `json:"to"`
	At     time.Time   `json:"at"`
	Actor  string      `json:"actor,omitempty"`
	Reason string      `json:"reason"`
}

// Vote is a recorded, signature-checked vote
type Vote struct {
	Holder    string    `json:"holder"`
	Decision  Decision  `json:"decision"`
	At        time.Time `json:"at"`
	Signature []byte    `json:"signature"`
}

// EscrowRecord is an immutable view of a reconstruction request
type EscrowRecord struct {
	ID              string       `json:"id"`
	DepositID       string       `json:"deposit_id"`
	LegalReference  string       `json:"legal_reference"`
	ReferenceDigest Element      `json:"-"`
	Initiator       string       `json:"initiator"`
	Threshold       int          `json:"threshold"`
	OpenedAt        time.Time    `json:"opened_at"`
	Deadline        time.Time    `json:"deadline"`
	State           EscrowState  `json:"state"`
	Votes           []Vote       `json:"votes"`
	Transitions     []Transition `json:"transitions"`
}

// Approvals counts approving votes
func (r *EscrowRecord) Approvals() int {
	n := 0
	for _, v := range r.Votes {
		if v.Decision == DecisionApprove {
			n++
		}
	}
	return n
}

// escrowEntry is the mutable side of a record: writers hold mu, readers load
// the published snapshot
type escrowEntry struct {
	mu       sync.Mutex
	deposit  *EscrowDeposit
	released []*Share
	snapshot atomic.Pointer[EscrowRecord]
}

// Escrow manages deposits and their reconstruction records
type Escrow struct {
	suite     *Suite
	shamir    *Shamir
	validator *ThresholdValidator
	cfg       EscrowConfig
	logger    *logrus.Logger
	audit     AuditEventHandler
	clock     func() time.Time

	deposits sync.Map // id → *EscrowDeposit
	records  sync.Map // id → *escrowEntry
}

// EscrowOption configures an Escrow
type EscrowOption func(*Escrow)

// WithEscrowLogger sets the logger
func WithEscrowLogger(l *logrus.Logger) EscrowOption {
	return func(e *Escrow) { e.logger = l }
}

// WithEscrowAudit sets the audit handler
func WithEscrowAudit(h AuditEventHandler) EscrowOption {
	return func(e *Escrow) { e.audit = h }
}

// WithEscrowClock overrides time.Now
func WithEscrowClock(clock func() time.Time) EscrowOption {
	return func(e *Escrow) { e.clock = clock }
}

// WithThresholdValidator replaces the default parameter validator
func WithThresholdValidator(v *ThresholdValidator) EscrowOption {
	return func(e *Escrow) { e.validator = v }
}

// NewEscrow creates an escrow manager
func NewEscrow(suite *Suite, cfg EscrowConfig, opts ...EscrowOption) (*Escrow, error) {
	if suite == nil {
		return nil, ErrInvalidInput.WithDetails("suite cannot be nil")
	}
	if cfg.VotingWindow <= 0 || (cfg.MaxVotingWindow > 0 && cfg.VotingWindow > cfg.MaxVotingWindow) {
		return nil, ErrInvalidConfig.WithDetails("voting window %s", cfg.VotingWindow)
	}
	e := &Escrow{
		suite:     suite,
		shamir:    NewShamir(suite),
		validator: NewDefaultThresholdValidator(),
		cfg:       cfg,
		logger:    logrus.StandardLogger(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.audit = auditOrNull(e.audit)
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	return e, nil
}

// Deposit splits secret among holders (holder i receives index i+1) and
// seals each share to its holder's viewing key
func (e *Escrow) Deposit(secret Element, threshold int, holders []Holder) (*EscrowDeposit, error) {
	result := e.validator.ValidateEscrowConfiguration(holders, threshold)
	if err := result.Err(); err != nil {
		e.audit.OnValidationFailure(NewAuditEventBuilder(AuditEventValidationFailure, ReasonValidationError).
			WithError(err).
			BuildValidationFailure("escrow_parameters", err.Error(), map[string]interface{}{
				"holders":   len(holders),
				"threshold": threshold,
			}))
		return nil, err
	}
	for _, w := range result.Warnings {
		e.logger.WithField("threshold", threshold).Warn(w)
	}

	shares, err := e.shamir.Split(secret, threshold, len(holders))
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, s := range shares {
			s.Zeroize()
		}
	}()

	d := &EscrowDeposit{
		ID:          uuid.NewString(),
		Threshold:   threshold,
		Holders:     append([]Holder(nil), holders...),
		Sealed:      make([]SealedShare, len(holders)),
		Commitments: shares[0].Commitments,
		CreatedAt:   e.clock(),
	}
	for i, h := range holders {
		enc, err := shares[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		payload, err := e.suite.Encrypt(h.ViewingKey, enc, sealAAD(d.ID, h.Name))
		ZeroizeBytes(enc)
		if err != nil {
			return nil, err
		}
		d.Sealed[i] = SealedShare{Holder: h.Name, Index: shares[i].Index, Payload: payload}
	}
	e.deposits.Store(d.ID, d)

	e.logger.WithFields(logrus.Fields{
		"deposit_id": d.ID,
		"holders":    len(holders),
		"threshold":  threshold,
	}).Info("escrow deposit created")
	return d, nil
}

// OpenSealedShare decrypts a holder's sealed share with their viewing key
func (e *Escrow) OpenSealedShare(depositID string, sealed *SealedShare, vk *ViewingKey) (*Share, error) {
	if sealed == nil || vk == nil {
		return nil, ErrInvalidInput.WithDetails("sealed share and viewing key are required")
	}
	plain, err := vk.Decrypt(sealed.Payload, sealAAD(depositID, sealed.Holder))
	if err != nil {
		return nil, err
	}
	defer ZeroizeBytes(plain)
	share, err := e.shamir.UnmarshalShare(plain)
	if err != nil {
		return nil, err
	}
	if share.Index != sealed.Index {
		return nil, ErrInvalidShareIndex.WithDetails("sealed index %d, decrypted %d", sealed.Index, share.Index)
	}
	return share, nil
}

// GetDeposit returns a deposit by ID
func (e *Escrow) GetDeposit(id string) (*EscrowDeposit, error) {
	v, ok := e.deposits.Load(id)
	if !ok {
		return nil, ErrNotFound.WithDetails("deposit %s", id)
	}
	return v.(*EscrowDeposit), nil
}

// Record returns the current view of a reconstruction record without locking
func (e *Escrow) Record(id string) (*EscrowRecord, error) {
	entry, err := e.entry(id)
	if err != nil {
		return nil, err
	}
	return entry.snapshot.Load(), nil
}

// RequestReconstruction opens a reconstruction record citing a legal
// reference. The initiator must be a user or compliance council holder of the
// deposit and sign RequestDigest. The record passes through Request and is
// returned in Voting.
func (e *Escrow) RequestReconstruction(depositID, initiator, legalReference string, signature []byte) (*EscrowRecord, error) {
	d, err := e.GetDeposit(depositID)
	if err != nil {
		return nil, err
	}
	if legalReference == "" {
		return nil, e.reject("", initiator, "request", ErrInvalidInput.WithDetails("legal reference is required"))
	}
	h, _, ok := d.holder(initiator)
	if !ok {
		return nil, e.reject("", initiator, "request", ErrUnauthorized.WithDetails("%q is not a holder of deposit %s", initiator, depositID))
	}
	if !h.Role.CanInitiate() {
		return nil, e.reject("", initiator, "request", ErrUnauthorized.WithDetails("role %s cannot initiate recovery", h.Role))
	}
	if !h.Verifier.Verify(RequestDigest(depositID, initiator, legalReference), signature) {
		return nil, e.reject("", initiator, "request", ErrInvalidSignature.WithDetails("request by %q", initiator))
	}
	refDigest, err := e.suite.HashBytes([]byte(legalReference))
	if err != nil {
		return nil, err
	}

	now := e.clock()
	rec := &EscrowRecord{
		ID:              uuid.NewString(),
		DepositID:       depositID,
		LegalReference:  legalReference,
		ReferenceDigest: refDigest,
		Initiator:       initiator,
		Threshold:       d.Threshold,
		OpenedAt:        now,
		Deadline:        now.Add(e.cfg.VotingWindow),
	}
	entry := &escrowEntry{deposit: d}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.snapshot.Store(rec)
	e.records.Store(rec.ID, entry)

	e.transition(entry, EscrowStateRequest, initiator, string(ReasonRequest))
	e.transition(entry, EscrowStateVoting, initiator, "voting window opened")
	return entry.snapshot.Load(), nil
}

// Vote records a holder's signed decision. Approvals must release the
// holder's own share of the deposit, and the share must open the deposit
// commitment. The voter is authenticated before anything else: a signed vote
// at or after the deadline is refused and closes the record only if it is
// short of the threshold.
func (e *Escrow) Vote(recordID, voter string, decision Decision, share *Share, signature []byte) (*EscrowRecord, error) {
	entry, err := e.entry(recordID)
	if err != nil {
		return nil, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	rec := entry.snapshot.Load()
	if rec.State != EscrowStateVoting {
		return nil, e.reject(recordID, voter, "vote", ErrInvalidState.WithDetails("record is %s", rec.State))
	}
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, e.reject(recordID, voter, "vote", ErrInvalidInput.WithDetails("unknown decision %q", decision))
	}
	h, index, ok := entry.deposit.holder(voter)
	if !ok {
		return nil, e.reject(recordID, voter, "vote", ErrUnauthorized.WithDetails("%q is not a holder", voter))
	}

	var shareBytes []byte
	if decision == DecisionApprove {
		if share == nil {
			return nil, e.reject(recordID, voter, "vote", ErrInvalidInput.WithDetails("an approval must release the holder's share"))
		}
		if shareBytes, err = share.MarshalBinary(); err != nil {
			return nil, e.reject(recordID, voter, "vote", err)
		}
		defer ZeroizeBytes(shareBytes)
	} else if share != nil {
		return nil, e.reject(recordID, voter, "vote", ErrInvalidInput.WithDetails("a rejection cannot release a share"))
	}
	if !h.Verifier.Verify(VoteDigest(recordID, voter, decision, shareBytes), signature) {
		return nil, e.reject(recordID, voter, "vote", ErrInvalidSignature.WithDetails("vote by %q", voter))
	}

	if !e.clock().Before(rec.Deadline) {
		if rec.Approvals() < rec.Threshold {
			e.transition(entry, EscrowStateClosed, voter, string(ReasonWindowExpired))
		}
		return nil, e.reject(recordID, voter, "vote", ErrVotingClosed.WithDetails("deadline %s", rec.Deadline.Format(time.RFC3339)))
	}
	for _, v := range rec.Votes {
		if v.Holder == voter {
			return nil, e.reject(recordID, voter, "vote", ErrDuplicateVote.WithDetails("%q", voter))
		}
	}
	if decision == DecisionApprove {
		if err := e.checkReleasedShare(entry.deposit, index, share); err != nil {
			return nil, e.reject(recordID, voter, "vote", err)
		}
	}

	next := *rec
	next.Votes = append(append([]Vote(nil), rec.Votes...), Vote{
		Holder:    voter,
		Decision:  decision,
		At:        e.clock(),
		Signature: append([]byte(nil), signature...),
	})
	entry.snapshot.Store(&next)
	if decision == DecisionApprove {
		released := *share
		entry.released = append(entry.released, &released)
	}

	e.logger.WithFields(logrus.Fields{
		"record_id": recordID,
		"voter":     voter,
		"decision":  decision,
		"approvals": next.Approvals(),
		"threshold": next.Threshold,
	}).Info("escrow vote recorded")
	e.audit.OnEscrowTransition(NewAuditEventBuilder(AuditEventEscrowVote, ReasonVoteCast).
		WithSubject(recordID).
		WithActor(voter).
		WithMetadata("decision", string(decision)).
		BuildEscrowTransition(EscrowStateVoting, EscrowStateVoting, next.Approvals(), next.Threshold))
	return &next, nil
}

// Execute reconstructs the secret once Threshold approvals were recorded
// before the deadline. A record whose window expired short of the threshold
// is closed and the call fails; a record still open short of the threshold
// fails with an insufficient-data error and stays open. A reconstruction
// failure is reported to the audit handler and closes the record once the
// window has expired.
func (e *Escrow) Execute(recordID, actor string) (Element, error) {
	entry, err := e.entry(recordID)
	if err != nil {
		return Element{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	rec := entry.snapshot.Load()
	if rec.State != EscrowStateVoting {
		return Element{}, e.reject(recordID, actor, "execute", ErrInvalidState.WithDetails("record is %s", rec.State))
	}
	approvals := rec.Approvals()
	if approvals < rec.Threshold {
		if !e.clock().Before(rec.Deadline) {
			e.transition(entry, EscrowStateClosed, actor, string(ReasonWindowExpired))
			return Element{}, e.reject(recordID, actor, "execute", ErrVotingClosed.
				WithDetails("window expired with %d of %d approvals", approvals, rec.Threshold))
		}
		return Element{}, e.reject(recordID, actor, "execute", ErrInsufficientApprovals.
			WithDetails("%d of %d approvals", approvals, rec.Threshold))
	}

	secret, err := e.shamir.Reconstruct(entry.released)
	if err != nil {
		e.logger.WithField("record_id", recordID).WithError(err).Error("escrow reconstruction failed")
		e.audit.OnError(NewAuditEventBuilder(AuditEventReconstructionFailure, ReasonThresholdMet).
			WithSubject(recordID).
			WithActor(actor).
			WithMetadata("deposit_id", rec.DepositID).
			WithError(err).
			Build())
		if !e.clock().Before(rec.Deadline) {
			e.transition(entry, EscrowStateClosed, actor, string(ReasonWindowExpired))
		}
		return Element{}, err
	}
	for _, s := range entry.released {
		s.Zeroize()
	}
	entry.released = nil
	e.transition(entry, EscrowStateExecuted, actor, string(ReasonThresholdMet))
	return secret, nil
}

// CloseExpired closes a voting record whose deadline passed without enough
// approvals. It reports whether the record was closed.
func (e *Escrow) CloseExpired(recordID string) (bool, error) {
	entry, err := e.entry(recordID)
	if err != nil {
		return false, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	rec := entry.snapshot.Load()
	if rec.State != EscrowStateVoting || e.clock().Before(rec.Deadline) || rec.Approvals() >= rec.Threshold {
		return false, nil
	}
	e.transition(entry, EscrowStateClosed, "", string(ReasonWindowExpired))
	return true, nil
}

func (e *Escrow) checkReleasedShare(d *EscrowDeposit, index int, share *Share) error {
	if share == nil {
		return ErrInvalidInput.WithDetails("an approval must release the holder's share")
	}
	if err := e.shamir.checkShare(share); err != nil {
		return err
	}
	if share.Index != index {
		return ErrInvalidShareIndex.WithDetails("holder owns index %d, released %d", index, share.Index)
	}
	if share.Threshold != d.Threshold || share.Total != len(d.Holders) || !share.Commitments.Equal(d.Commitments) {
		return ErrInconsistentShares.WithDetails("released share does not belong to deposit %s", d.ID)
	}
	if !e.shamir.VerifyCommitted(share) {
		return ErrShareCommitmentMismatch.WithDetails("share %d of deposit %s", share.Index, d.ID)
	}
	return nil
}

func (e *Escrow) entry(id string) (*escrowEntry, error) {
	v, ok := e.records.Load(id)
	if !ok {
		return nil, ErrNotFound.WithDetails("escrow record %s", id)
	}
	return v.(*escrowEntry), nil
}

// transition appends to the log and publishes a new snapshot; entry.mu must
// be held
func (e *Escrow) transition(entry *escrowEntry, to EscrowState, actor, reason string) {
	cur := entry.snapshot.Load()
	next := *cur
	now := e.clock()
	next.State = to
	next.Transitions = append(append([]Transition(nil), cur.Transitions...), Transition{
		From:   cur.State,
		To:     to,
		At:     now,
		Actor:  actor,
		Reason: reason,
	})
	entry.snapshot.Store(&next)

	e.logger.WithFields(logrus.Fields{
		"record_id": next.ID,
		"from":      string(cur.State),
		"to":        string(to),
		"actor":     actor,
		"reason":    reason,
	}).Info("escrow transition")
	e.audit.OnEscrowTransition(NewAuditEventBuilder(AuditEventEscrowTransition, AuditEventReason(reason)).
		WithSubject(next.ID).
		WithActor(actor).
		WithTimestamp(now).
		WithMetadata("deposit_id", next.DepositID).
		BuildEscrowTransition(cur.State, to, next.Approvals(), next.Threshold))
}

// reject logs and audits a refused operation and returns err unchanged
func (e *Escrow) reject(recordID, actor, operation string, err error) error {
	e.logger.WithFields(logrus.Fields{
		"record_id": recordID,
		"actor":     actor,
		"operation": operation,
	}).WithError(err).Warn("escrow operation rejected")
	e.audit.OnValidationFailure(NewAuditEventBuilder(AuditEventRejectedAttempt, ReasonValidationError).
		WithSubject(recordID).
		WithActor(actor).
		WithError(err).
		BuildValidationFailure(operation, err.Error(), nil))
	return err
}

func sealAAD(depositID, holder string) []byte {
	out := make([]byte, 0, len(depositID)+len(holder)+1)
	out = append(out, depositID...)
	out = append(out, 0)
	return append(out, holder...)
}
