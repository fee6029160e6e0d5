package privacy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *fakeClock, *recordingAuditHandler) {
	t.Helper()
	clock := newFakeClock()
	audit := &recordingAuditHandler{}
	svc, err := NewService(testSuite(t), testConfig(),
		WithLogger(quietLogger()),
		WithAuditHandler(audit),
		WithClock(clock.Now))
	require.NoError(t, err)
	return svc, clock, audit
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	bad := testConfig()
	bad.Escrow.VotingWindow = 0
	_, err = NewService(testSuite(t), bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	svc, err := NewService(testSuite(t), nil, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Same(t, MustDefaultSuite(), svc.Suite())
	assert.NotNil(t, svc.Registry())
	assert.NotNil(t, svc.Escrow())
}

func TestNewServiceFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Curve.MaxGeneratorAttempts = MinGeneratorAttempts
	svc, err := NewServiceFromConfig(context.Background(), cfg, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NotSame(t, MustDefaultSuite(), svc.Suite())
	_, h := svc.Suite().PedersenGenerators()
	_, want := MustDefaultSuite().PedersenGenerators()
	assert.True(t, h.Equal(want))

	cfg.Curve.MaxGeneratorAttempts = 0
	_, err = NewServiceFromConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestServiceCommitAndHash(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	s := svc.Suite()

	c, blinding, err := svc.CurveCommit(scalar(s, 42), nil)
	require.NoError(t, err)
	assert.True(t, svc.CurveVerify(ctx, c, scalar(s, 42), blinding))
	assert.False(t, svc.CurveVerify(ctx, c, scalar(s, 43), blinding))

	fixed := scalar(s, 7)
	c1, _, err := svc.CurveCommit(scalar(s, 1), &fixed)
	require.NoError(t, err)
	c2, _, err := svc.CurveCommit(scalar(s, 1), &fixed)
	require.NoError(t, err)
	assert.True(t, c1.Equal(c2))

	h, err := svc.Hash(scalar(s, 1), scalar(s, 2))
	require.NoError(t, err)
	want, err := s.Hash(scalar(s, 1), scalar(s, 2))
	require.NoError(t, err)
	assert.True(t, h.Equal(want))

	_, err = svc.Hash()
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestServiceShamir(t *testing.T) {
	svc, _, _ := newTestService(t)
	secret := scalar(svc.Suite(), 123456789)

	shares, err := svc.ShamirSplit(secret, 3, 5)
	require.NoError(t, err)
	require.Len(t, shares, 5)

	got, err := svc.ShamirReconstruct([]*Share{shares[4], shares[0], shares[2]})
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))

	ok, err := svc.ShamirVerifyShare(context.Background(), shares[3], shares[:2])
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.ShamirReconstruct(shares[:2])
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestServiceViewingKeys(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	vk, err := svc.NewViewingKey(WithKeyID("ops-key"), WithExpiry(clock.Now().Add(time.Hour)))
	require.NoError(t, err)
	got, err := svc.Registry().Lookup("ops-key")
	require.NoError(t, err)
	assert.Same(t, vk, got)

	payload, err := svc.EciesEncrypt(vk.PublicKey(), []byte("quarterly report"), []byte("ctx"))
	require.NoError(t, err)
	plain, err := svc.EciesDecrypt(ctx, "ops-key", payload, []byte("ctx"))
	require.NoError(t, err)
	assert.Equal(t, []byte("quarterly report"), plain)

	_, err = svc.EciesDecrypt(ctx, "missing", payload, []byte("ctx"))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.EciesDecrypt(ctx, "ops-key", payload, []byte("other"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	commitment, err := svc.KeyCommitment("ops-key")
	require.NoError(t, err)
	ok, err := svc.KeyVerifyCommitment(ctx, vk.PublicKey(), vk.CommitmentBlinding(), commitment)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = svc.KeyCommitment("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	clock.Advance(2 * time.Hour)
	_, err = svc.EciesDecrypt(ctx, "ops-key", payload, []byte("ctx"))
	assert.ErrorIs(t, err, ErrKeyExpired)
	assert.Equal(t, KeyStateExpired, vk.State())
}

func TestServiceExportImport(t *testing.T) {
	svc, _, audit := newTestService(t)
	vk, err := svc.NewViewingKey(WithKeyID("vault-key"))
	require.NoError(t, err)
	commitment, err := vk.KeyCommitment()
	require.NoError(t, err)

	password := []byte("correct horse battery staple")
	blob, err := svc.ExportEncrypted("vault-key", password, 0)
	require.NoError(t, err)
	assert.Equal(t, 20000, blob.Iterations, "zero selects the configured default")
	require.Len(t, audit.exports, 1)

	_, err = svc.ExportEncrypted("vault-key", password, 5000)
	assert.ErrorIs(t, err, ErrWeakExportParameters)
	_, err = svc.ExportEncrypted("missing", password, 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ImportEncrypted(blob, password)
	assert.ErrorIs(t, err, ErrInvalidInput, "ID already registered")

	require.NoError(t, svc.Registry().Delete("vault-key"))
	_, err = svc.ImportEncrypted(blob, []byte("wrong"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	restored, err := svc.ImportEncrypted(blob, password)
	require.NoError(t, err)
	assert.Equal(t, "vault-key", restored.ID())
	assert.True(t, restored.PublicKey().Equal(vk.PublicKey()))
	got, err := svc.KeyCommitment("vault-key")
	require.NoError(t, err)
	assert.True(t, got.Equal(commitment))
}

func TestServiceEscrowFlow(t *testing.T) {
	svc, clock, audit := newTestService(t)
	s := svc.Suite()

	roles := []struct {
		name string
		role Role
	}{
		{"alice", RoleUser},
		{"council-1", RoleComplianceCouncil},
		{"auditor-1", RoleAuditor},
	}
	keys := make(map[string]*ViewingKey)
	signers := make(map[string]VoteSigner)
	var holders []Holder
	for _, r := range roles {
		vk, err := svc.NewViewingKey(WithKeyID(r.name))
		require.NoError(t, err)
		signer, err := NewSchnorrVoteSigner()
		require.NoError(t, err)
		keys[r.name], signers[r.name] = vk, signer
		holders = append(holders, Holder{Name: r.name, Role: r.role, ViewingKey: vk.PublicKey(), Verifier: signer.Verifier()})
	}

	secret := scalar(s, 987654321)
	d, err := svc.EscrowDeposit(secret, 2, holders)
	require.NoError(t, err)

	ref := "subpoena-44"
	sig, err := signers["council-1"].Sign(RequestDigest(d.ID, "council-1", ref))
	require.NoError(t, err)
	rec, err := svc.EscrowRequestReconstruction(d.ID, "council-1", ref, sig)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(DefaultEscrowVotingWindow), rec.Deadline)

	for _, name := range []string{"council-1", "auditor-1"} {
		sealed, err := d.SealedShareFor(name)
		require.NoError(t, err)
		share, err := svc.Escrow().OpenSealedShare(d.ID, sealed, keys[name])
		require.NoError(t, err)
		enc, err := share.MarshalBinary()
		require.NoError(t, err)
		sig, err := signers[name].Sign(VoteDigest(rec.ID, name, DecisionApprove, enc))
		require.NoError(t, err)
		_, err = svc.EscrowVote(rec.ID, name, DecisionApprove, share, sig)
		require.NoError(t, err)
	}

	got, err := svc.EscrowExecute(rec.ID, "council-1")
	require.NoError(t, err)
	assert.True(t, got.Equal(secret))
	assert.Equal(t, 1, audit.transitionCount(EscrowStateVoting, EscrowStateExecuted))
}
