package privacy

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"math/big"

	"github.com/holiman/uint256"
)

// ElementSize is the fixed serialized width of every field element
const ElementSize = 32

// maxRandomAttempts bounds rejection sampling; for any supported modulus the
// acceptance probability per draw is above one half.
const maxRandomAttempts = 256

// Field is a prime field F_p of at most 255 bits. Square roots are only
// available when p ≡ 3 (mod 4). A Field is immutable after construction and
// safe for concurrent use.
type Field struct {
	name    string
	modulus uint256.Int
	bits    int
	topMask uint64 // mask for the most significant non-empty limb when sampling
	topLimb int
	pMinus2 uint256.Int
	sqrtExp uint256.Int // (p+1)/4
	hasSqrt bool
}

// NewField validates the modulus and builds the field
func NewField(name string, modulus *uint256.Int) (*Field, error) {
	if modulus == nil || modulus.IsZero() {
		return nil, ErrInvalidField.WithDetails("%s: modulus is zero", name)
	}
	bits := modulus.BitLen()
	if bits < 3 || bits > 255 {
		return nil, ErrInvalidField.WithDetails("%s: modulus has %d bits", name, bits)
	}
	if modulus[0]&1 != 1 {
		return nil, ErrInvalidField.WithDetails("%s: modulus must be odd", name)
	}
	if !modulus.ToBig().ProbablyPrime(32) {
		return nil, ErrInvalidField.WithDetails("%s: modulus is not prime", name)
	}

	f := &Field{name: name, bits: bits, hasSqrt: modulus[0]&3 == 3}
	f.modulus.Set(modulus)
	f.pMinus2.SubUint64(modulus, 2)
	f.sqrtExp.AddUint64(modulus, 1)
	f.sqrtExp.Rsh(&f.sqrtExp, 2)

	f.topLimb = (bits - 1) / 64
	shift := uint(bits - f.topLimb*64)
	if shift == 64 {
		f.topMask = ^uint64(0)
	} else {
		f.topMask = (uint64(1) << shift) - 1
	}
	return f, nil
}

// Name returns the field label
func (f *Field) Name() string { return f.name }

// Bits returns the bit length of the modulus
func (f *Field) Bits() int { return f.bits }

// HasSqrt reports whether Sqrt is supported
func (f *Field) HasSqrt() bool { return f.hasSqrt }

// Modulus returns a copy of the field prime
func (f *Field) Modulus() *uint256.Int { return f.modulus.Clone() }

// Zero returns the additive identity
func (f *Field) Zero() Element { return Element{f: f} }

// One returns the multiplicative identity
func (f *Field) One() Element { return f.FromUint64(1) }

// FromUint64 reduces a small integer into the field
func (f *Field) FromUint64(u uint64) Element {
	e := Element{f: f}
	e.v.SetUint64(u)
	e.v.Mod(&e.v, &f.modulus)
	return e
}

// FromBytes decodes a canonical 32-byte big-endian element
func (f *Field) FromBytes(data []byte) (Element, error) {
	if len(data) != ElementSize {
		return Element{}, ErrInvalidInput.WithDetails("field element must be %d bytes, got %d", ElementSize, len(data))
	}
	e := Element{f: f}
	e.v.SetBytes(data)
	if !e.v.Lt(&f.modulus) {
		return Element{}, ErrNonCanonical.WithContext("field", f.name)
	}
	return e, nil
}

// FromBytesReduced maps arbitrary bytes onto the field by reduction mod p.
// Only use this where a slight bias is acceptable (derivations, hashing).
func (f *Field) FromBytesReduced(data []byte) Element {
	n := new(big.Int).SetBytes(data)
	n.Mod(n, f.modulus.ToBig())
	e := Element{f: f}
	e.v.SetFromBig(n)
	return e
}

// FromBig decodes a canonical big integer
func (f *Field) FromBig(n *big.Int) (Element, error) {
	if n == nil || n.Sign() < 0 {
		return Element{}, ErrInvalidInput.WithDetails("negative or nil integer")
	}
	v, overflow := uint256.FromBig(n)
	if overflow || !v.Lt(&f.modulus) {
		return Element{}, ErrNonCanonical.WithContext("field", f.name)
	}
	return Element{f: f, v: *v}, nil
}

// Random draws a uniform element using rejection sampling
func (f *Field) Random() (Element, error) {
	return f.RandomFrom(rand.Reader)
}

// RandomFrom draws a uniform element from the given entropy source
func (f *Field) RandomFrom(r io.Reader) (Element, error) {
	buf := make([]byte, ElementSize)
	defer ZeroizeBytes(buf)
	for i := 0; i < maxRandomAttempts; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return Element{}, ErrRandomnessGeneration.WithCause(err)
		}
		e := Element{f: f}
		e.v.SetBytes(buf)
		for l := f.topLimb + 1; l < 4; l++ {
			e.v[l] = 0
		}
		e.v[f.topLimb] &= f.topMask
		if e.v.Lt(&f.modulus) {
			return e, nil
		}
	}
	return Element{}, ErrRandomnessGeneration.WithDetails("rejection sampling exhausted")
}

// RandomNonZero draws a uniform element of F_p \ {0}
func (f *Field) RandomNonZero() (Element, error) {
	for i := 0; i < maxRandomAttempts; i++ {
		e, err := f.Random()
		if err != nil {
			return Element{}, err
		}
		if !e.IsZero() {
			return e, nil
		}
	}
	return Element{}, ErrRandomnessGeneration.WithDetails("no non-zero element drawn")
}

// sameAs reports whether two fields share a modulus
func (f *Field) sameAs(o *Field) bool {
	return f == o || (f != nil && o != nil && f.modulus == o.modulus)
}

// Element is an integer in [0, p) of a specific field. It is an immutable
// value type; every operation returns a new Element. Mixing elements of
// different fields is a programming error and panics.
type Element struct {
	f *Field
	v uint256.Int
}

// Field returns the owning field
func (a Element) Field() *Field { return a.f }

func (a Element) mustMatch(b Element) *Field {
	if a.f == nil || !a.f.sameAs(b.f) {
		panic(ErrFieldMismatch)
	}
	return a.f
}

// Add returns a + b mod p
func (a Element) Add(b Element) Element {
	f := a.mustMatch(b)
	r := Element{f: f}
	r.v.AddMod(&a.v, &b.v, &f.modulus)
	return r
}

// Sub returns a - b mod p without branching on the operands
func (a Element) Sub(b Element) Element {
	f := a.mustMatch(b)
	r := Element{f: f}
	_, borrow := r.v.SubOverflow(&a.v, &b.v)
	mask := -boolToUint64(borrow)
	var corr uint256.Int
	for i := 0; i < 4; i++ {
		corr[i] = f.modulus[i] & mask
	}
	r.v.Add(&r.v, &corr)
	return r
}

// Neg returns -a mod p
func (a Element) Neg() Element {
	return a.f.Zero().Sub(a)
}

// Mul returns a * b mod p
func (a Element) Mul(b Element) Element {
	f := a.mustMatch(b)
	r := Element{f: f}
	r.v.MulMod(&a.v, &b.v, &f.modulus)
	return r
}

// Square returns a² mod p
func (a Element) Square() Element {
	return a.Mul(a)
}

// Exp returns a^e over a fixed schedule of nbits square-and-multiply steps;
// every step performs one square and one multiply regardless of the bit.
func (a Element) Exp(e *uint256.Int, nbits int) Element {
	r := a.f.One()
	for i := nbits - 1; i >= 0; i-- {
		r = r.Square()
		t := r.Mul(a)
		r = Select(bitAt(e, i), t, r)
	}
	return r
}

// Inverse returns a^(p-2), the Fermat inverse
func (a Element) Inverse() (Element, error) {
	if a.IsZero() {
		return Element{}, ErrZeroInverse
	}
	return a.Exp(&a.f.pMinus2, a.f.bits), nil
}

// Sqrt returns a square root of a when one exists. It always reports false
// for fields where p ≢ 3 (mod 4).
func (a Element) Sqrt() (Element, bool) {
	if !a.f.hasSqrt {
		return Element{}, false
	}
	r := a.Exp(&a.f.sqrtExp, a.f.bits)
	return r, r.Square().Equal(a)
}

// Equal compares limb-wise without early exit
func (a Element) Equal(b Element) bool {
	if !a.f.sameAs(b.f) {
		return false
	}
	var acc uint64
	for i := 0; i < 4; i++ {
		acc |= a.v[i] ^ b.v[i]
	}
	return acc == 0
}

// IsZero reports whether a is the additive identity
func (a Element) IsZero() bool {
	return a.v.IsZero()
}

// IsOdd reports the parity of the canonical representative
func (a Element) IsOdd() bool {
	return a.v[0]&1 == 1
}

// Bytes returns the canonical 32-byte big-endian encoding
func (a Element) Bytes() []byte {
	b := a.v.Bytes32()
	return b[:]
}

// Uint256 returns a copy of the canonical representative
func (a Element) Uint256() *uint256.Int {
	return a.v.Clone()
}

// BigInt returns the canonical representative as a big integer
func (a Element) BigInt() *big.Int {
	return a.v.ToBig()
}

// String returns the hex encoding
func (a Element) String() string {
	return hex.EncodeToString(a.Bytes())
}

// Zeroize clears the value in place
func (a *Element) Zeroize() {
	for i := range a.v {
		a.v[i] = 0
	}
}

// Select returns a when bit is 1 and b when bit is 0 using limb masks
func Select(bit uint64, a, b Element) Element {
	f := a.mustMatch(b)
	mask := -(bit & 1)
	r := Element{f: f}
	for i := 0; i < 4; i++ {
		r.v[i] = (a.v[i] & mask) | (b.v[i] &^ mask)
	}
	return r
}

func bitAt(e *uint256.Int, i int) uint64 {
	return (e[i/64] >> (uint(i) % 64)) & 1
}

func boolToUint64(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
