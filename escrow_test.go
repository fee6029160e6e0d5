package privacy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type escrowFixture struct {
	suite   *Suite
	escrow  *Escrow
	clock   *fakeClock
	audit   *recordingAuditHandler
	holders []Holder
	keys    map[string]*ViewingKey
	signers map[string]VoteSigner
}

var defaultEscrowRoles = []struct {
	name string
	role Role
	bls  bool
}{
	{"alice", RoleUser, false},
	{"council-1", RoleComplianceCouncil, true},
	{"council-2", RoleComplianceCouncil, true},
	{"auditor-1", RoleAuditor, false},
	{"auditor-2", RoleAuditor, false},
}

func newEscrowFixture(t *testing.T) *escrowFixture {
	t.Helper()
	s := testSuite(t)
	f := &escrowFixture{
		suite:   s,
		clock:   newFakeClock(),
		audit:   &recordingAuditHandler{},
		keys:    make(map[string]*ViewingKey),
		signers: make(map[string]VoteSigner),
	}
	esc, err := NewEscrow(s, EscrowConfig{VotingWindow: 72 * time.Hour, MaxVotingWindow: 30 * 24 * time.Hour},
		WithEscrowLogger(quietLogger()),
		WithEscrowAudit(f.audit),
		WithEscrowClock(f.clock.Now))
	require.NoError(t, err)
	f.escrow = esc

	for _, r := range defaultEscrowRoles {
		vk := newTestKey(t, s, WithKeyID(r.name+"-key"), WithKeyClock(f.clock.Now))
		var signer VoteSigner
		if r.bls {
			signer, err = NewBLSVoteSigner()
		} else {
			signer, err = NewSchnorrVoteSigner()
		}
		require.NoError(t, err)
		f.keys[r.name] = vk
		f.signers[r.name] = signer
		f.holders = append(f.holders, Holder{
			Name:       r.name,
			Role:       r.role,
			ViewingKey: vk.PublicKey(),
			Verifier:   signer.Verifier(),
		})
	}
	return f
}

func (f *escrowFixture) deposit(t *testing.T, secret Element, threshold int) *EscrowDeposit {
	t.Helper()
	d, err := f.escrow.Deposit(secret, threshold, f.holders)
	require.NoError(t, err)
	return d
}

func (f *escrowFixture) request(t *testing.T, d *EscrowDeposit, initiator string) *EscrowRecord {
	t.Helper()
	ref := "court-order-2025-117"
	sig, err := f.signers[initiator].Sign(RequestDigest(d.ID, initiator, ref))
	require.NoError(t, err)
	rec, err := f.escrow.RequestReconstruction(d.ID, initiator, ref, sig)
	require.NoError(t, err)
	return rec
}

func (f *escrowFixture) openShare(t *testing.T, d *EscrowDeposit, holder string) *Share {
	t.Helper()
	sealed, err := d.SealedShareFor(holder)
	require.NoError(t, err)
	share, err := f.escrow.OpenSealedShare(d.ID, sealed, f.keys[holder])
	require.NoError(t, err)
	return share
}

func (f *escrowFixture) approve(t *testing.T, d *EscrowDeposit, rec *EscrowRecord, holder string) (*EscrowRecord, error) {
	t.Helper()
	share := f.openShare(t, d, holder)
	enc, err := share.MarshalBinary()
	require.NoError(t, err)
	sig, err := f.signers[holder].Sign(VoteDigest(rec.ID, holder, DecisionApprove, enc))
	require.NoError(t, err)
	return f.escrow.Vote(rec.ID, holder, DecisionApprove, share, sig)
}

func (f *escrowFixture) reject(t *testing.T, rec *EscrowRecord, holder string) (*EscrowRecord, error) {
	t.Helper()
	sig, err := f.signers[holder].Sign(VoteDigest(rec.ID, holder, DecisionReject, nil))
	require.NoError(t, err)
	return f.escrow.Vote(rec.ID, holder, DecisionReject, nil, sig)
}

func TestEscrowThreeOfFiveExecutes(t *testing.T) {
	f := newEscrowFixture(t)
	secret, err := f.suite.ScalarField().Random()
	require.NoError(t, err)
	d := f.deposit(t, secret, 3)
	require.Len(t, d.Sealed, 5)

	rec := f.request(t, d, "council-1")
	assert.Equal(t, EscrowStateVoting, rec.State)
	assert.Equal(t, f.clock.Now().Add(72*time.Hour), rec.Deadline)
	expectedRef, err := f.suite.HashBytes([]byte(rec.LegalReference))
	require.NoError(t, err)
	assert.True(t, rec.ReferenceDigest.Equal(expectedRef))

	for _, h := range []string{"council-1", "auditor-1", "alice"} {
		_, err := f.approve(t, d, rec, h)
		require.NoError(t, err, "vote by %s", h)
	}

	got, err := f.escrow.Execute(rec.ID, "council-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))

	final, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateExecuted, final.State)
	assert.Equal(t, 3, final.Approvals())

	var path []EscrowState
	for _, tr := range final.Transitions {
		path = append(path, tr.To)
	}
	assert.Equal(t, []EscrowState{EscrowStateRequest, EscrowStateVoting, EscrowStateExecuted}, path)
	assert.Equal(t, EscrowStateNone, final.Transitions[0].From)
	assert.Equal(t, 1, f.audit.transitionCount(EscrowStateVoting, EscrowStateExecuted))

	_, err = f.escrow.Execute(rec.ID, "council-1")
	assert.ErrorIs(t, err, ErrInvalidState, "executed is terminal")
	_, err = f.approve(t, d, rec, "auditor-2")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEscrowClosesAtDeadline(t *testing.T) {
	f := newEscrowFixture(t)
	d := f.deposit(t, scalar(f.suite, 31337), 3)
	rec := f.request(t, d, "alice")

	for _, h := range []string{"council-1", "council-2"} {
		_, err := f.approve(t, d, rec, h)
		require.NoError(t, err)
	}

	_, err := f.escrow.Execute(rec.ID, "alice")
	assert.ErrorIs(t, err, ErrInsufficientApprovals)
	assert.True(t, IsKind(err, KindInsufficient))
	open, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateVoting, open.State, "an open record stays open")

	f.clock.Advance(72 * time.Hour)
	_, err = f.escrow.Execute(rec.ID, "alice")
	assert.ErrorIs(t, err, ErrVotingClosed)

	closed, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateClosed, closed.State)
	assert.Equal(t, string(ReasonWindowExpired), closed.Transitions[len(closed.Transitions)-1].Reason)

	_, err = f.escrow.Execute(rec.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = f.approve(t, d, rec, "auditor-1")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, f.audit.transitionCount(EscrowStateVoting, EscrowStateClosed))
}

func TestEscrowLateVoteClosesRecord(t *testing.T) {
	f := newEscrowFixture(t)
	d := f.deposit(t, scalar(f.suite, 5), 3)
	rec := f.request(t, d, "council-2")

	f.clock.Advance(73 * time.Hour)

	// unauthenticated calls change nothing
	_, err := f.escrow.Vote(rec.ID, "mallory", DecisionReject, nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionReject, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	open, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateVoting, open.State)

	_, err = f.approve(t, d, rec, "auditor-1")
	assert.ErrorIs(t, err, ErrVotingClosed)

	closed, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateClosed, closed.State)
	assert.Empty(t, closed.Votes)
}

func TestEscrowLateVoteKeepsThresholdRecord(t *testing.T) {
	f := newEscrowFixture(t)
	secret := scalar(f.suite, 6060)
	d := f.deposit(t, secret, 3)
	rec := f.request(t, d, "council-1")
	for _, h := range []string{"council-1", "council-2", "auditor-1"} {
		_, err := f.approve(t, d, rec, h)
		require.NoError(t, err)
	}
	f.clock.Advance(73 * time.Hour)

	_, err := f.escrow.Vote(rec.ID, "nobody", DecisionReject, nil, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.reject(t, rec, "auditor-2")
	assert.ErrorIs(t, err, ErrVotingClosed)
	_, err = f.approve(t, d, rec, "alice")
	assert.ErrorIs(t, err, ErrVotingClosed)

	current, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateVoting, current.State)
	assert.Len(t, current.Votes, 3)
	assert.Zero(t, f.audit.transitionCount(EscrowStateVoting, EscrowStateClosed))

	got, err := f.escrow.Execute(rec.ID, "council-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))
}

func TestEscrowRefusesTamperedShare(t *testing.T) {
	f := newEscrowFixture(t)
	secret := scalar(f.suite, 1234)
	d := f.deposit(t, secret, 3)
	rec := f.request(t, d, "alice")

	tampered := f.openShare(t, d, "alice")
	tampered.Value = tampered.Value.Add(f.suite.ScalarField().One())
	enc, err := tampered.MarshalBinary()
	require.NoError(t, err)
	sig, err := f.signers["alice"].Sign(VoteDigest(rec.ID, "alice", DecisionApprove, enc))
	require.NoError(t, err)
	_, err = f.escrow.Vote(rec.ID, "alice", DecisionApprove, tampered, sig)
	assert.ErrorIs(t, err, ErrShareCommitmentMismatch)

	for _, h := range []string{"council-1", "auditor-1", "auditor-2"} {
		_, err := f.approve(t, d, rec, h)
		require.NoError(t, err, "vote by %s", h)
	}
	current, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, current.Approvals())

	got, err := f.escrow.Execute(rec.ID, "alice")
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))
}

func TestEscrowReconstructionFailureCloses(t *testing.T) {
	f := newEscrowFixture(t)
	d := f.deposit(t, scalar(f.suite, 4321), 3)
	rec := f.request(t, d, "alice")
	for _, h := range []string{"alice", "council-1", "auditor-1"} {
		_, err := f.approve(t, d, rec, h)
		require.NoError(t, err)
	}

	// corrupt a share already accepted into the record
	entry, err := f.escrow.entry(rec.ID)
	require.NoError(t, err)
	entry.released[0].Value = entry.released[0].Value.Add(f.suite.ScalarField().One())

	_, err = f.escrow.Execute(rec.ID, "alice")
	assert.ErrorIs(t, err, ErrShareCommitmentMismatch)
	require.Len(t, f.audit.errors, 1)
	assert.Equal(t, AuditEventReconstructionFailure, f.audit.errors[0].EventType)
	assert.Equal(t, rec.ID, f.audit.errors[0].Subject)
	open, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateVoting, open.State, "retryable before the deadline")

	f.clock.Advance(72 * time.Hour)
	_, err = f.escrow.Execute(rec.ID, "alice")
	assert.ErrorIs(t, err, ErrShareCommitmentMismatch)
	assert.Len(t, f.audit.errors, 2)

	closed, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, EscrowStateClosed, closed.State)
	_, err = f.escrow.Execute(rec.ID, "alice")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEscrowExecuteAfterDeadlineWithThreshold(t *testing.T) {
	f := newEscrowFixture(t)
	secret := scalar(f.suite, 8080)
	d := f.deposit(t, secret, 3)
	rec := f.request(t, d, "alice")
	for _, h := range []string{"alice", "council-1", "auditor-2"} {
		_, err := f.approve(t, d, rec, h)
		require.NoError(t, err)
	}
	f.clock.Advance(100 * time.Hour)

	closed, err := f.escrow.CloseExpired(rec.ID)
	require.NoError(t, err)
	assert.False(t, closed, "a record at threshold is not closed")

	got, err := f.escrow.Execute(rec.ID, "alice")
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))
}

func TestEscrowCloseExpired(t *testing.T) {
	f := newEscrowFixture(t)
	d := f.deposit(t, scalar(f.suite, 1), 3)
	rec := f.request(t, d, "alice")

	closed, err := f.escrow.CloseExpired(rec.ID)
	require.NoError(t, err)
	assert.False(t, closed)

	f.clock.Advance(72 * time.Hour)
	closed, err = f.escrow.CloseExpired(rec.ID)
	require.NoError(t, err)
	assert.True(t, closed)

	_, err = f.escrow.CloseExpired("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEscrowRejectionsDoNotCloseEarly(t *testing.T) {
	f := newEscrowFixture(t)
	secret := scalar(f.suite, 77)
	d := f.deposit(t, secret, 3)
	rec := f.request(t, d, "council-1")

	for _, h := range []string{"alice", "auditor-2"} {
		after, err := f.reject(t, rec, h)
		require.NoError(t, err)
		assert.Equal(t, EscrowStateVoting, after.State)
	}
	for _, h := range []string{"council-1", "council-2", "auditor-1"} {
		_, err := f.approve(t, d, rec, h)
		require.NoError(t, err)
	}
	got, err := f.escrow.Execute(rec.ID, "council-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))

	final, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Len(t, final.Votes, 5)
	assert.Equal(t, 3, final.Approvals())
}

func TestEscrowVoteValidation(t *testing.T) {
	f := newEscrowFixture(t)
	d := f.deposit(t, scalar(f.suite, 12), 3)
	rec := f.request(t, d, "council-1")

	t.Run("Duplicate", func(t *testing.T) {
		_, err := f.approve(t, d, rec, "council-2")
		require.NoError(t, err)
		_, err = f.approve(t, d, rec, "council-2")
		assert.ErrorIs(t, err, ErrDuplicateVote)
		_, err = f.reject(t, rec, "council-2")
		assert.ErrorIs(t, err, ErrDuplicateVote)
	})

	t.Run("BadSignature", func(t *testing.T) {
		share := f.openShare(t, d, "auditor-1")
		enc, err := share.MarshalBinary()
		require.NoError(t, err)
		// signed by another holder's key
		sig, err := f.signers["auditor-2"].Sign(VoteDigest(rec.ID, "auditor-1", DecisionApprove, enc))
		require.NoError(t, err)
		_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionApprove, share, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)

		// signed over a rejection but cast as an approval
		sig, err = f.signers["auditor-1"].Sign(VoteDigest(rec.ID, "auditor-1", DecisionReject, nil))
		require.NoError(t, err)
		_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionApprove, share, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)

		_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionApprove, share, nil)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("WrongShare", func(t *testing.T) {
		stolen := f.openShare(t, d, "alice")
		enc, err := stolen.MarshalBinary()
		require.NoError(t, err)
		sig, err := f.signers["auditor-1"].Sign(VoteDigest(rec.ID, "auditor-1", DecisionApprove, enc))
		require.NoError(t, err)
		_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionApprove, stolen, sig)
		assert.ErrorIs(t, err, ErrInvalidShareIndex)
	})

	t.Run("ShareFromAnotherDeposit", func(t *testing.T) {
		other := f.deposit(t, scalar(f.suite, 12), 3)
		foreign := f.openShare(t, other, "auditor-1")
		enc, err := foreign.MarshalBinary()
		require.NoError(t, err)
		sig, err := f.signers["auditor-1"].Sign(VoteDigest(rec.ID, "auditor-1", DecisionApprove, enc))
		require.NoError(t, err)
		_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionApprove, foreign, sig)
		assert.ErrorIs(t, err, ErrInconsistentShares)
	})

	t.Run("ApprovalWithoutShare", func(t *testing.T) {
		sig, err := f.signers["auditor-1"].Sign(VoteDigest(rec.ID, "auditor-1", DecisionApprove, nil))
		require.NoError(t, err)
		_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionApprove, nil, sig)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("RejectionWithShare", func(t *testing.T) {
		share := f.openShare(t, d, "auditor-1")
		sig, err := f.signers["auditor-1"].Sign(VoteDigest(rec.ID, "auditor-1", DecisionReject, nil))
		require.NoError(t, err)
		_, err = f.escrow.Vote(rec.ID, "auditor-1", DecisionReject, share, sig)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("UnknownVoter", func(t *testing.T) {
		_, err := f.escrow.Vote(rec.ID, "mallory", DecisionReject, nil, []byte{1})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("UnknownDecision", func(t *testing.T) {
		_, err := f.escrow.Vote(rec.ID, "auditor-1", Decision("abstain"), nil, nil)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("UnknownRecord", func(t *testing.T) {
		_, err := f.escrow.Vote("missing", "auditor-1", DecisionReject, nil, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	current, err := f.escrow.Record(rec.ID)
	require.NoError(t, err)
	assert.Len(t, current.Votes, 1, "refused votes leave no trace")
	assert.NotEmpty(t, f.audit.failures)
}

func TestEscrowRequestValidation(t *testing.T) {
	f := newEscrowFixture(t)
	d := f.deposit(t, scalar(f.suite, 3), 3)
	ref := "warrant-9"

	t.Run("AuditorCannotInitiate", func(t *testing.T) {
		sig, err := f.signers["auditor-1"].Sign(RequestDigest(d.ID, "auditor-1", ref))
		require.NoError(t, err)
		_, err = f.escrow.RequestReconstruction(d.ID, "auditor-1", ref, sig)
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("NonHolder", func(t *testing.T) {
		_, err := f.escrow.RequestReconstruction(d.ID, "mallory", ref, []byte{0})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("MissingReference", func(t *testing.T) {
		sig, err := f.signers["alice"].Sign(RequestDigest(d.ID, "alice", ""))
		require.NoError(t, err)
		_, err = f.escrow.RequestReconstruction(d.ID, "alice", "", sig)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("BadSignature", func(t *testing.T) {
		sig, err := f.signers["alice"].Sign(RequestDigest(d.ID, "alice", "another-ref"))
		require.NoError(t, err)
		_, err = f.escrow.RequestReconstruction(d.ID, "alice", ref, sig)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("UnknownDeposit", func(t *testing.T) {
		_, err := f.escrow.RequestReconstruction("missing", "alice", ref, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEscrowDepositValidation(t *testing.T) {
	f := newEscrowFixture(t)
	secret := scalar(f.suite, 1)

	_, err := f.escrow.Deposit(secret, 1, f.holders)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	_, err = f.escrow.Deposit(secret, 6, f.holders)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	users := make([]Holder, len(f.holders))
	copy(users, f.holders)
	users[1].Role = RoleUser
	users[3].Role = RoleUser
	_, err = f.escrow.Deposit(secret, 3, users)
	assert.ErrorIs(t, err, ErrInvalidThreshold, "users alone would reach the threshold")

	dup := append([]Holder(nil), f.holders...)
	dup[4].Name = dup[0].Name
	_, err = f.escrow.Deposit(secret, 3, dup)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	noKey := append([]Holder(nil), f.holders...)
	noKey[2].ViewingKey = Point{}
	_, err = f.escrow.Deposit(secret, 3, noKey)
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	assert.Len(t, f.audit.failures, 5)
}

func TestEscrowSealedShares(t *testing.T) {
	f := newEscrowFixture(t)
	secret := scalar(f.suite, 99)
	d := f.deposit(t, secret, 3)

	sealed, err := d.SealedShareFor("alice")
	require.NoError(t, err)
	_, err = f.escrow.OpenSealedShare(d.ID, sealed, f.keys["council-1"])
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	// the AAD binds the share to its deposit and holder
	_, err = f.escrow.OpenSealedShare("other-deposit", sealed, f.keys["alice"])
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	relabelled := *sealed
	relabelled.Holder = "council-1"
	_, err = f.escrow.OpenSealedShare(d.ID, &relabelled, f.keys["alice"])
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = d.SealedShareFor("mallory")
	assert.ErrorIs(t, err, ErrNotFound)

	shares := make([]*Share, 0, 3)
	for _, h := range []string{"alice", "council-2", "auditor-2"} {
		shares = append(shares, f.openShare(t, d, h))
	}
	got, err := NewShamir(f.suite).Reconstruct(shares)
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))

	require.NoError(t, f.keys["alice"].Revoke("left the organization"))
	_, err = f.escrow.OpenSealedShare(d.ID, sealed, f.keys["alice"])
	assert.ErrorIs(t, err, ErrRevokedKey)
}

func TestEscrowConcurrentVotes(t *testing.T) {
	f := newEscrowFixture(t)
	secret := scalar(f.suite, 4242)
	d := f.deposit(t, secret, 3)
	rec := f.request(t, d, "alice")

	type ballot struct {
		holder string
		share  *Share
		sig    []byte
	}
	ballots := make([]ballot, 0, len(f.holders))
	for _, h := range f.holders {
		share := f.openShare(t, d, h.Name)
		enc, err := share.MarshalBinary()
		require.NoError(t, err)
		sig, err := f.signers[h.Name].Sign(VoteDigest(rec.ID, h.Name, DecisionApprove, enc))
		require.NoError(t, err)
		ballots = append(ballots, ballot{h.Name, share, sig})
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(ballots)*2)
	for _, b := range ballots {
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(b ballot) {
				defer wg.Done()
				_, err := f.escrow.Vote(rec.ID, b.holder, DecisionApprove, b.share, b.sig)
				errs <- err
			}(b)
		}
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrDuplicateVote):
			dup++
		}
	}
	assert.Equal(t, len(ballots), ok)
	assert.Equal(t, len(ballots), dup)

	got, err := f.escrow.Execute(rec.ID, "alice")
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))
}

func TestVoteSigners(t *testing.T) {
	digest := RequestDigest("d", "alice", "ref")

	schnorrSigner, err := NewSchnorrVoteSigner()
	require.NoError(t, err)
	blsSigner, err := NewBLSVoteSigner()
	require.NoError(t, err)

	for _, signer := range []VoteSigner{schnorrSigner, blsSigner} {
		v := signer.Verifier()
		t.Run(v.Scheme(), func(t *testing.T) {
			sig, err := signer.Sign(digest)
			require.NoError(t, err)
			assert.True(t, v.Verify(digest, sig))
			assert.False(t, v.Verify(RequestDigest("d", "alice", "other"), sig))
			assert.False(t, v.Verify(digest, nil))

			tampered := append([]byte(nil), sig...)
			tampered[len(tampered)-1] ^= 0x01
			assert.False(t, v.Verify(digest, tampered))
		})
	}

	parsed, err := NewSchnorrVoteVerifier(schnorrSigner.Verifier().(*SchnorrVoteVerifier).PublicKey())
	require.NoError(t, err)
	sig, err := schnorrSigner.Sign(digest)
	require.NoError(t, err)
	assert.True(t, parsed.Verify(digest, sig))

	_, err = NewSchnorrVoteVerifier([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewBLSVoteVerifier(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	assert.NotEqual(t, RequestDigest("ab", "c", "d"), RequestDigest("a", "bc", "d"))
	assert.NotEqual(t, VoteDigest("r", "v", DecisionApprove, nil), VoteDigest("r", "v", DecisionReject, nil))
}
