package privacy

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/canopy-network/canopy/lib/crypto"
)

// Digest domains for signed escrow messages
const (
	requestDigestDomain = "canopy/privacy/escrow/request/v1"
	voteDigestDomain    = "canopy/privacy/escrow/vote/v1"
)

// Vote signature schemes
const (
	SchemeSchnorrBIP340 = "schnorr-bip340"
	SchemeBLS12381      = "bls12-381"
)

// VoteVerifier checks a holder's signature over a 32-byte escrow digest
type VoteVerifier interface {
	Scheme() string
	Verify(digest, signature []byte) bool
}

// VoteSigner produces signatures its paired verifier accepts
type VoteSigner interface {
	Sign(digest []byte) ([]byte, error)
	Verifier() VoteVerifier
}

// RequestDigest is the message an initiator signs to open a reconstruction
func RequestDigest(depositID, initiator, legalReference string) []byte {
	h := sha256.New()
	h.Write([]byte(requestDigestDomain))
	writeLengthPrefixed(h, []byte(depositID))
	writeLengthPrefixed(h, []byte(initiator))
	writeLengthPrefixed(h, []byte(legalReference))
	return h.Sum(nil)
}

// VoteDigest is the message a holder signs to vote. Approvals commit to the
// encoding of the released share; rejections pass nil.
func VoteDigest(recordID, voter string, decision Decision, share []byte) []byte {
	h := sha256.New()
	h.Write([]byte(voteDigestDomain))
	writeLengthPrefixed(h, []byte(recordID))
	writeLengthPrefixed(h, []byte(voter))
	writeLengthPrefixed(h, []byte(decision))
	writeLengthPrefixed(h, share)
	return h.Sum(nil)
}

// SchnorrVoteVerifier verifies BIP-340 signatures
type SchnorrVoteVerifier struct {
	pub *btcec.PublicKey
}

// NewSchnorrVoteVerifier parses a 32-byte x-only public key
func NewSchnorrVoteVerifier(xOnly []byte) (*SchnorrVoteVerifier, error) {
	pub, err := schnorr.ParsePubKey(xOnly)
	if err != nil {
		return nil, ErrInvalidInput.WithDetails("schnorr public key").WithCause(err)
	}
	return &SchnorrVoteVerifier{pub: pub}, nil
}

func (v *SchnorrVoteVerifier) Scheme() string { return SchemeSchnorrBIP340 }

func (v *SchnorrVoteVerifier) Verify(digest, signature []byte) bool {
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(digest, v.pub)
}

// PublicKey returns the x-only key encoding
func (v *SchnorrVoteVerifier) PublicKey() []byte {
	return schnorr.SerializePubKey(v.pub)
}

// SchnorrVoteSigner signs with a secp256k1 key
type SchnorrVoteSigner struct {
	key *btcec.PrivateKey
}

// NewSchnorrVoteSigner generates a fresh secp256k1 signing key
func NewSchnorrVoteSigner() (*SchnorrVoteSigner, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, ErrRandomnessGeneration.WithCause(err)
	}
	return &SchnorrVoteSigner{key: key}, nil
}

func (s *SchnorrVoteSigner) Sign(digest []byte) ([]byte, error) {
	sig, err := schnorr.Sign(s.key, digest)
	if err != nil {
		return nil, ErrCryptographicOperation.WithDetails("schnorr sign").WithCause(err)
	}
	return sig.Serialize(), nil
}

func (s *SchnorrVoteSigner) Verifier() VoteVerifier {
	return &SchnorrVoteVerifier{pub: s.key.PubKey()}
}

// BLSVoteVerifier verifies BLS12-381 signatures with a validator key
type BLSVoteVerifier struct {
	key crypto.PublicKeyI
}

// NewBLSVoteVerifier wraps a BLS public key
func NewBLSVoteVerifier(key crypto.PublicKeyI) (*BLSVoteVerifier, error) {
	if key == nil {
		return nil, ErrInvalidInput.WithDetails("bls public key cannot be nil")
	}
	return &BLSVoteVerifier{key: key}, nil
}

func (v *BLSVoteVerifier) Scheme() string { return SchemeBLS12381 }

func (v *BLSVoteVerifier) Verify(digest, signature []byte) bool {
	if len(signature) == 0 {
		return false
	}
	return v.key.VerifyBytes(digest, signature)
}

// BLSVoteSigner signs with a validator BLS key
type BLSVoteSigner struct {
	key *crypto.BLS12381PrivateKey
}

// NewBLSVoteSigner generates a fresh BLS12-381 key
func NewBLSVoteSigner() (*BLSVoteSigner, error) {
	k, err := crypto.NewBLS12381PrivateKey()
	if err != nil {
		return nil, ErrRandomnessGeneration.WithCause(err)
	}
	key, ok := k.(*crypto.BLS12381PrivateKey)
	if !ok {
		return nil, ErrCryptographicOperation.WithDetails("unexpected bls key type %T", k)
	}
	return &BLSVoteSigner{key: key}, nil
}

// NewBLSVoteSignerFromKey wraps an existing validator key
func NewBLSVoteSignerFromKey(key *crypto.BLS12381PrivateKey) *BLSVoteSigner {
	return &BLSVoteSigner{key: key}
}

func (s *BLSVoteSigner) Sign(digest []byte) ([]byte, error) {
	return s.key.Sign(digest), nil
}

func (s *BLSVoteSigner) Verifier() VoteVerifier {
	return &BLSVoteVerifier{key: s.key.PublicKey()}
}
