package privacy

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash"
	"runtime"
)

// HashToScalar hashes data to a scalar-field element with domain separation.
// Each input is length-prefixed so concatenations cannot collide.
func HashToScalar(f *Field, domain string, data ...[]byte) Element {
	hasher := sha256.New()
	hasher.Write([]byte("CANOPY_PRIVACY_HASH_TO_SCALAR"))
	writeLengthPrefixed(hasher, []byte(domain))
	for _, d := range data {
		writeLengthPrefixed(hasher, d)
	}
	// widen to 64 bytes so the reduction bias is negligible
	first := hasher.Sum(nil)
	hasher.Write([]byte{0x01})
	second := hasher.Sum(nil)
	return f.FromBytesReduced(append(first, second...))
}

// writeLengthPrefixed writes a 4-byte big-endian length followed by data
func writeLengthPrefixed(h hash.Hash, data []byte) {
	var lengthBytes [4]byte
	binary.BigEndian.PutUint32(lengthBytes[:], uint32(len(data)))
	h.Write(lengthBytes[:])
	h.Write(data)
}

// SecureCompare performs constant-time comparison of byte slices
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ZeroizeBytes securely clears a byte slice
func ZeroizeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// ZeroizeElements clears a slice of field elements
func ZeroizeElements(elements []Element) {
	for i := range elements {
		elements[i].Zeroize()
	}
}

// BatchInvert inverts every element with a single Fermat inversion
// (Montgomery's trick). Zero inputs are rejected up front.
func BatchInvert(elements []Element) ([]Element, error) {
	n := len(elements)
	if n == 0 {
		return nil, nil
	}

	for i, e := range elements {
		if e.IsZero() {
			return nil, ErrZeroInverse.WithDetails("element at index %d is zero", i)
		}
	}

	// partials[i] = e0·e1·…·ei
	partials := make([]Element, n)
	partials[0] = elements[0]
	for i := 1; i < n; i++ {
		partials[i] = partials[i-1].Mul(elements[i])
	}

	allInv, err := partials[n-1].Inverse()
	if err != nil {
		return nil, fmt.Errorf("batch inversion: %w", err)
	}

	inverses := make([]Element, n)
	for i := n - 1; i > 0; i-- {
		inverses[i] = allInv.Mul(partials[i-1])
		allInv = allInv.Mul(elements[i])
	}
	inverses[0] = allInv

	return inverses, nil
}
