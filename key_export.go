package privacy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// Key export format
const (
	KeyBlobVersion = 1
	KeyBlobKDF     = "pbkdf2-sha256"

	keyBlobSaltSize      = 16
	keyBlobPlaintextSize = 2*ElementSize + 8
)

// EncryptedKeyBlob is a password-wrapped viewing key
type EncryptedKeyBlob struct {
	Version    int    `json:"version"`
	KeyID      string `json:"key_id"`
	PublicKey  []byte `json:"public_key"`
	KDF        string `json:"kdf"`
	Iterations int    `json:"iterations"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// header binds every cleartext field to the ciphertext
func (b *EncryptedKeyBlob) header() []byte {
	out := make([]byte, 0, 16+len(b.KDF)+len(b.KeyID)+len(b.PublicKey))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(b.Version))
	out = append(out, n[:]...)
	binary.BigEndian.PutUint32(n[:], uint32(b.Iterations))
	out = append(out, n[:]...)
	binary.BigEndian.PutUint32(n[:], uint32(len(b.KDF)))
	out = append(out, n[:]...)
	out = append(out, b.KDF...)
	binary.BigEndian.PutUint32(n[:], uint32(len(b.KeyID)))
	out = append(out, n[:]...)
	out = append(out, b.KeyID...)
	return append(out, b.PublicKey...)
}

// ExportPrivateEncrypted wraps the private key and commitment blinding under
// a PBKDF2-SHA256 derived key with ChaCha20-Poly1305. iterations of zero
// selects the configured default; values below the configured minimum are
// refused.
func (vk *ViewingKey) ExportPrivateEncrypted(password []byte, iterations int) (*EncryptedKeyBlob, error) {
	if len(password) == 0 {
		return nil, ErrWeakExportParameters.WithDetails("password cannot be empty")
	}
	if iterations == 0 {
		iterations = vk.exportCfg.Iterations
	}
	if iterations < vk.exportCfg.MinIterations {
		return nil, ErrWeakExportParameters.WithDetails("%d iterations below minimum %d", iterations, vk.exportCfg.MinIterations)
	}

	vk.mu.RLock()
	defer vk.mu.RUnlock()
	snap := vk.snapshot.Load()
	if err := vk.refuseRevoked(snap); err != nil {
		return nil, err
	}

	blob := &EncryptedKeyBlob{
		Version:    KeyBlobVersion,
		KeyID:      vk.id,
		PublicKey:  vk.public.Bytes(),
		KDF:        KeyBlobKDF,
		Iterations: iterations,
		Salt:       make([]byte, keyBlobSaltSize),
		Nonce:      make([]byte, chacha20poly1305.NonceSize),
	}
	if _, err := io.ReadFull(rand.Reader, blob.Salt); err != nil {
		return nil, ErrRandomnessGeneration.WithCause(err)
	}
	if _, err := io.ReadFull(rand.Reader, blob.Nonce); err != nil {
		return nil, ErrRandomnessGeneration.WithCause(err)
	}

	plaintext := make([]byte, 0, keyBlobPlaintextSize)
	plaintext = append(plaintext, vk.private.Bytes()...)
	plaintext = append(plaintext, vk.blinding.Bytes()...)
	var expiry [8]byte
	expiresAt := snap.expiresAt
	if vk.effectiveState(snap) == KeyStateExpired && (expiresAt.IsZero() || expiresAt.After(vk.clock())) {
		// explicitly expired: the imported copy must read as Expired too
		expiresAt = vk.clock()
	}
	if !expiresAt.IsZero() {
		binary.BigEndian.PutUint64(expiry[:], uint64(expiresAt.UnixNano()))
	}
	plaintext = append(plaintext, expiry[:]...)
	defer ZeroizeBytes(plaintext)

	kek := pbkdf2.Key(password, blob.Salt, iterations, chacha20poly1305.KeySize, sha256.New)
	defer ZeroizeBytes(kek)
	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, ErrCryptographicOperation.WithCause(err)
	}
	blob.Ciphertext = aead.Seal(nil, blob.Nonce, plaintext, blob.header())

	vk.audit.OnKeyExport(NewAuditEventBuilder(AuditEventKeyExport, ReasonExport).
		WithSubject(vk.id).
		WithMetadata("encrypted", true).
		WithMetadata("iterations", iterations).
		Build())
	return blob, nil
}

// ImportPrivateEncrypted unwraps a blob produced by ExportPrivateEncrypted.
// Every failure is returned as a typed error and its cause is logged; the
// imported key keeps its original ID and expiry. Revoked keys are never
// exported and an expired key is exported with its expiry pinned, so an
// imported key is Active only if the exported one was.
func ImportPrivateEncrypted(suite *Suite, blob *EncryptedKeyBlob, password []byte, opts ...KeyOption) (*ViewingKey, error) {
	o := keyOptions{logger: logrus.StandardLogger(), exportCfg: DefaultConfig().KeyExport}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	vk, err := importPrivateEncrypted(suite, blob, password, o.exportCfg, opts)
	if err != nil {
		entry := o.logger.WithError(err)
		b := NewAuditEventBuilder(AuditEventKeyImport, ReasonImport).WithError(err)
		if blob != nil {
			entry = entry.WithField("key_id", blob.KeyID)
			b = b.WithSubject(blob.KeyID)
		}
		entry.Error("viewing key import failed")
		auditOrNull(o.audit).OnError(b.Build())
		return nil, err
	}
	return vk, nil
}

func importPrivateEncrypted(suite *Suite, blob *EncryptedKeyBlob, password []byte, cfg KeyExportConfig, opts []KeyOption) (*ViewingKey, error) {
	if suite == nil {
		return nil, ErrInvalidInput.WithDetails("suite cannot be nil")
	}
	if blob == nil {
		return nil, ErrInvalidInput.WithDetails("blob cannot be nil")
	}
	if blob.Version != KeyBlobVersion {
		return nil, ErrInvalidInput.WithDetails("unsupported key blob version %d", blob.Version)
	}
	if blob.KDF != KeyBlobKDF {
		return nil, ErrInvalidInput.WithDetails("unsupported kdf %q", blob.KDF)
	}
	if blob.Iterations < cfg.MinIterations {
		return nil, ErrWeakExportParameters.WithDetails("%d iterations below minimum %d", blob.Iterations, cfg.MinIterations)
	}
	if len(blob.Salt) != keyBlobSaltSize || len(blob.Nonce) != chacha20poly1305.NonceSize {
		return nil, ErrInvalidInput.WithDetails("salt or nonce has the wrong length")
	}

	kek := pbkdf2.Key(password, blob.Salt, blob.Iterations, chacha20poly1305.KeySize, sha256.New)
	defer ZeroizeBytes(kek)
	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, ErrCryptographicOperation.WithCause(err)
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, blob.header())
	if err != nil {
		return nil, ErrAuthenticationFailed.WithDetails("wrong password or corrupted blob").WithCause(err)
	}
	defer ZeroizeBytes(plaintext)
	if len(plaintext) != keyBlobPlaintextSize {
		return nil, ErrInvalidInput.WithDetails("unwrapped key has %d bytes", len(plaintext))
	}

	fr := suite.ScalarField()
	private, err := fr.FromBytes(plaintext[:ElementSize])
	if err != nil {
		return nil, err
	}
	blinding, err := fr.FromBytes(plaintext[ElementSize : 2*ElementSize])
	if err != nil {
		return nil, err
	}

	all := append([]KeyOption{WithKeyID(blob.KeyID), WithExportConfig(cfg)}, opts...)
	if nanos := binary.BigEndian.Uint64(plaintext[2*ElementSize:]); nanos != 0 {
		all = append(all, WithExpiry(time.Unix(0, int64(nanos))))
	}
	vk, err := NewViewingKeyFromPrivate(suite, private, blinding, all...)
	if err != nil {
		return nil, err
	}
	if !SecureCompare(vk.public.Bytes(), blob.PublicKey) {
		vk.Destroy()
		return nil, ErrKeyMismatch
	}
	return vk, nil
}
