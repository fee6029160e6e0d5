package privacy

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ECIES constants
const (
	// EciesDomain is the HKDF info prefix; the recipient key follows it
	EciesDomain = "canopy/privacy/ecies/v1"

	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead

	nonceCounterSize = 4
	eciesKeySize     = chacha20poly1305.KeySize

	payloadHeaderSize = PointSize + NonceSize + TagSize
)

// EncryptedPayload is an ECIES ciphertext. The nonce is a 4-byte process
// counter followed by 8 random bytes, so an accidental repeat needs both a
// counter wrap and a random collision.
type EncryptedPayload struct {
	EphemeralPublicKey []byte `json:"ephemeral_public_key"`
	Nonce              []byte `json:"nonce"`
	Ciphertext         []byte `json:"ciphertext"`
	Tag                []byte `json:"tag"`
}

// Bytes encodes E‖nonce‖tag‖ciphertext
func (p *EncryptedPayload) Bytes() []byte {
	out := make([]byte, 0, payloadHeaderSize+len(p.Ciphertext))
	out = append(out, p.EphemeralPublicKey...)
	out = append(out, p.Nonce...)
	out = append(out, p.Tag...)
	out = append(out, p.Ciphertext...)
	return out
}

// ParseEncryptedPayload splits a Bytes encoding; points are validated on
// decryption
func ParseEncryptedPayload(data []byte) (*EncryptedPayload, error) {
	if len(data) < payloadHeaderSize {
		return nil, ErrInvalidInput.WithDetails("payload shorter than %d bytes", payloadHeaderSize)
	}
	p := &EncryptedPayload{
		EphemeralPublicKey: append([]byte(nil), data[:PointSize]...),
		Nonce:              append([]byte(nil), data[PointSize:PointSize+NonceSize]...),
		Tag:                append([]byte(nil), data[PointSize+NonceSize:payloadHeaderSize]...),
		Ciphertext:         append([]byte(nil), data[payloadHeaderSize:]...),
	}
	return p, nil
}

// Encrypt seals plaintext to a recipient public key. aad is authenticated
// but not encrypted and must be supplied again on decryption.
func (s *Suite) Encrypt(recipient Point, plaintext, aad []byte) (*EncryptedPayload, error) {
	return s.encryptFrom(rand.Reader, recipient, plaintext, aad)
}

func (s *Suite) encryptFrom(random io.Reader, recipient Point, plaintext, aad []byte) (*EncryptedPayload, error) {
	curve := s.curve
	if recipient.c == nil {
		return nil, ErrInvalidInput.WithDetails("recipient key is unset")
	}
	if !recipient.c.fp.sameAs(curve.fp) {
		return nil, ErrFieldMismatch.WithDetails("recipient key is on another curve")
	}
	if recipient.inf {
		return nil, ErrPointAtInfinity.WithDetails("recipient key")
	}
	if err := curve.validate(recipient); err != nil {
		return nil, err
	}

	k, err := curve.fr.RandomFrom(random)
	if err != nil {
		return nil, err
	}
	defer k.Zeroize()
	if k.IsZero() {
		return nil, ErrRandomnessGeneration.WithDetails("zero ephemeral scalar")
	}
	ephemeral := curve.ScalarBaseMult(k)
	shared := recipient.Mul(k)

	ephemeralBytes := ephemeral.Bytes()
	aead, err := s.deriveAEAD(shared, ephemeralBytes, recipient)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	binary.BigEndian.PutUint32(nonce[:nonceCounterSize], s.nextNonceCounter())
	if _, err := io.ReadFull(random, nonce[nonceCounterSize:]); err != nil {
		return nil, ErrRandomnessGeneration.WithCause(err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, eciesAAD(ephemeralBytes, nonce, aad))
	split := len(sealed) - TagSize
	return &EncryptedPayload{
		EphemeralPublicKey: ephemeralBytes,
		Nonce:              nonce,
		Ciphertext:         sealed[:split],
		Tag:                sealed[split:],
	}, nil
}

// decrypt opens a payload with a raw private scalar. Key state is enforced
// by the caller. Any authentication failure returns nil plaintext.
func (s *Suite) decrypt(private Element, recipient Point, payload *EncryptedPayload, aad []byte) ([]byte, error) {
	if payload == nil {
		return nil, ErrInvalidInput.WithDetails("payload cannot be nil")
	}
	if len(payload.Nonce) != NonceSize || len(payload.Tag) != TagSize {
		return nil, ErrInvalidInput.WithDetails("nonce or tag has the wrong length")
	}
	ephemeral, err := s.curve.PointFromBytes(payload.EphemeralPublicKey, false)
	if err != nil {
		return nil, err
	}
	shared := ephemeral.Mul(private)
	aead, err := s.deriveAEAD(shared, payload.EphemeralPublicKey, recipient)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(payload.Ciphertext)+TagSize)
	sealed = append(sealed, payload.Ciphertext...)
	sealed = append(sealed, payload.Tag...)
	plaintext, err := aead.Open(nil, payload.Nonce, sealed, eciesAAD(payload.EphemeralPublicKey, payload.Nonce, aad))
	if err != nil {
		return nil, ErrAuthenticationFailed.WithCause(err)
	}
	return plaintext, nil
}

// deriveAEAD runs HKDF-SHA256 over S.x‖S.y, salted with the ephemeral public
// key and bound to the recipient key through info
func (s *Suite) deriveAEAD(shared Point, ephemeralBytes []byte, recipient Point) (cipher.AEAD, error) {
	if shared.inf {
		return nil, ErrPointAtInfinity.WithDetails("shared secret")
	}
	ikm := shared.Bytes()
	defer ZeroizeBytes(ikm)

	info := make([]byte, 0, len(EciesDomain)+PointSize)
	info = append(info, EciesDomain...)
	info = append(info, recipient.Bytes()...)

	key := make([]byte, eciesKeySize)
	defer ZeroizeBytes(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, ephemeralBytes, info), key); err != nil {
		return nil, ErrCryptographicOperation.WithDetails("hkdf").WithCause(err)
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrCryptographicOperation.WithDetails("aead").WithCause(err)
	}
	return aead, nil
}

func eciesAAD(ephemeral, nonce, aad []byte) []byte {
	out := make([]byte, 0, len(ephemeral)+len(nonce)+len(aad))
	out = append(out, ephemeral...)
	out = append(out, nonce...)
	return append(out, aad...)
}
