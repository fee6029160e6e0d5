package privacy

import (
	"crypto/subtle"
)

// Share bounds
const (
	MinShareIndex = 1
	MaxShareIndex = 255
	MinThreshold  = 2

	shareHeaderSize = 3
)

// ShareSize is the MarshalBinary length of a share of a threshold-t split:
// index, threshold, total, value and blinding, then the t coefficient
// commitments
func ShareSize(threshold int) int {
	return shareHeaderSize + 2*ElementSize + threshold*PointSize
}

// Share is one point (Index, Value) of a split together with Blinding, the
// matching point of the blinding polynomial. Commitments is common to every
// share of a split and lets each share be checked on its own; it hides the
// secret, so fewer than Threshold shares reveal nothing about it.
type Share struct {
	Index       int
	Value       Element
	Blinding    Element
	Threshold   int
	Total       int
	Commitments *PolynomialCommitment
}

// Zeroize clears the share value and blinding
func (s *Share) Zeroize() {
	s.Value.Zeroize()
	s.Blinding.Zeroize()
}

// MarshalBinary encodes the share in ShareSize(Threshold) bytes
func (s *Share) MarshalBinary() ([]byte, error) {
	if s.Index < MinShareIndex || s.Index > MaxShareIndex {
		return nil, ErrInvalidShareIndex.WithDetails("index %d", s.Index)
	}
	if s.Threshold < MinThreshold || s.Total > MaxShareIndex || s.Threshold > s.Total {
		return nil, ErrInvalidThreshold.WithDetails("threshold %d of %d", s.Threshold, s.Total)
	}
	if s.Commitments == nil || s.Commitments.Degree() != s.Threshold-1 {
		return nil, ErrInconsistentShares.WithDetails("share %d carries no commitment of degree %d", s.Index, s.Threshold-1)
	}
	out := make([]byte, 0, ShareSize(s.Threshold))
	out = append(out, byte(s.Index), byte(s.Threshold), byte(s.Total))
	out = append(out, s.Value.Bytes()...)
	out = append(out, s.Blinding.Bytes()...)
	out = append(out, s.Commitments.Bytes()...)
	return out, nil
}

// Shamir splits and reconstructs secrets of the suite's scalar field
type Shamir struct {
	suite    *Suite
	pedersen *PedersenScheme
}

// NewShamir creates a Shamir instance bound to a suite
func NewShamir(suite *Suite) *Shamir {
	// suite generators are validated when the suite is built
	g, h := suite.PedersenGenerators()
	return &Shamir{suite: suite, pedersen: &PedersenScheme{suite: suite, g: g, h: h}}
}

// UnmarshalShare decodes a MarshalBinary encoding
func (sh *Shamir) UnmarshalShare(data []byte) (*Share, error) {
	if len(data) < shareHeaderSize || len(data) != ShareSize(int(data[1])) {
		return nil, ErrInvalidInput.WithDetails("share encoding has %d bytes", len(data))
	}
	fr := sh.suite.ScalarField()
	s := &Share{
		Index:     int(data[0]),
		Threshold: int(data[1]),
		Total:     int(data[2]),
	}
	var err error
	off := shareHeaderSize
	if s.Value, err = fr.FromBytes(data[off : off+ElementSize]); err != nil {
		return nil, err
	}
	off += ElementSize
	if s.Blinding, err = fr.FromBytes(data[off : off+ElementSize]); err != nil {
		return nil, err
	}
	off += ElementSize
	if err := sh.checkShare(s); err != nil {
		return nil, err
	}
	if s.Commitments, err = sh.pedersen.PolynomialCommitmentFromBytes(data[off:]); err != nil {
		return nil, err
	}
	return s, nil
}

// Split shares secret among total holders so that any threshold of them
// reconstruct it. Shares are evaluated at x = 1..total and carry Pedersen
// commitments to the coefficients of the secret and blinding polynomials.
func (sh *Shamir) Split(secret Element, threshold, total int) ([]*Share, error) {
	fr := sh.suite.ScalarField()
	if !secret.f.sameAs(fr) {
		return nil, ErrFieldMismatch.WithDetails("secret")
	}
	if threshold < MinThreshold {
		return nil, ErrInvalidThreshold.WithDetails("threshold %d below %d", threshold, MinThreshold)
	}
	if total < threshold {
		return nil, ErrInvalidThreshold.WithDetails("total %d below threshold %d", total, threshold)
	}
	if total > MaxShareIndex {
		return nil, ErrInvalidThreshold.WithDetails("total %d exceeds %d", total, MaxShareIndex)
	}

	blinding, err := fr.Random()
	if err != nil {
		return nil, err
	}
	defer blinding.Zeroize()
	polynomial, err := NewRandomPolynomial(fr, threshold-1, secret)
	if err != nil {
		return nil, err
	}
	defer polynomial.Zeroize()
	blindingPolynomial, err := NewRandomPolynomial(fr, threshold-1, blinding)
	if err != nil {
		return nil, err
	}
	defer blindingPolynomial.Zeroize()

	commitments, err := sh.pedersen.CommitPolynomial(polynomial, blindingPolynomial)
	if err != nil {
		return nil, err
	}

	shares := make([]*Share, total)
	for i := 0; i < total; i++ {
		x := fr.FromUint64(uint64(i + 1))
		shares[i] = &Share{
			Index:       i + 1,
			Value:       polynomial.Evaluate(x),
			Blinding:    blindingPolynomial.Evaluate(x),
			Threshold:   threshold,
			Total:       total,
			Commitments: commitments,
		}
	}
	return shares, nil
}

// Reconstruct interpolates the secret at x = 0 from at least Threshold
// shares and checks that it opens the split commitment
func (sh *Shamir) Reconstruct(shares []*Share) (Element, error) {
	if len(shares) == 0 {
		return Element{}, ErrInsufficientShares.WithDetails("no shares supplied")
	}
	if err := sh.checkSet(shares); err != nil {
		return Element{}, err
	}
	t := shares[0].Threshold
	if len(shares) < t {
		return Element{}, ErrInsufficientShares.WithDetails("need %d, got %d", t, len(shares))
	}

	secret, ok, err := sh.openConstant(shares[:t])
	if err != nil {
		return Element{}, err
	}
	if !ok {
		secret.Zeroize()
		return Element{}, ErrShareCommitmentMismatch
	}
	return secret, nil
}

// VerifyShare checks candidate against at least Threshold-1 other shares of
// the same split. With fewer others it fails closed with an
// insufficient-data error. The candidate must open the split commitment at
// its index, the candidate plus Threshold-1 others must interpolate to the
// committed secret, and every further share must lie on the same polynomial.
func (sh *Shamir) VerifyShare(candidate *Share, others []*Share) (bool, error) {
	if candidate == nil {
		return false, ErrInvalidInput.WithDetails("candidate share cannot be nil")
	}
	all := make([]*Share, 0, len(others)+1)
	all = append(all, candidate)
	all = append(all, others...)
	if err := sh.checkSet(all); err != nil {
		return false, err
	}
	t := candidate.Threshold
	if len(others) < t-1 {
		return false, ErrInsufficientShares.WithDetails("verification needs %d other shares, got %d", t-1, len(others))
	}

	valid := sh.VerifyCommitted(candidate)
	basis := all[:t]
	secret, ok, err := sh.openConstant(basis)
	if err != nil {
		return false, err
	}
	secret.Zeroize()
	valid = valid && ok

	fr := sh.suite.ScalarField()
	consistent := 1
	for _, extra := range all[t:] {
		x := fr.FromUint64(uint64(extra.Index))
		y, err := sh.interpolate(basis, x, false)
		if err != nil {
			return false, err
		}
		consistent &= subtle.ConstantTimeCompare(y.Bytes(), extra.Value.Bytes())
	}
	return valid && consistent == 1, nil
}

// VerifyCommitted reports whether one share opens its split commitment at
// its own index. It needs no other share.
func (sh *Shamir) VerifyCommitted(s *Share) bool {
	if sh.checkShare(s) != nil || s.Commitments == nil || s.Commitments.Degree() != s.Threshold-1 {
		return false
	}
	x := sh.suite.ScalarField().FromUint64(uint64(s.Index))
	return sh.pedersen.VerifyEvaluation(s.Commitments, x, s.Value, s.Blinding)
}

// openConstant interpolates value and blinding at zero and checks them
// against C_0. The returned secret must be zeroized by the caller.
func (sh *Shamir) openConstant(basis []*Share) (Element, bool, error) {
	zero := sh.suite.ScalarField().Zero()
	secret, err := sh.interpolate(basis, zero, false)
	if err != nil {
		return Element{}, false, err
	}
	blinding, err := sh.interpolate(basis, zero, true)
	if err != nil {
		secret.Zeroize()
		return Element{}, false, err
	}
	defer blinding.Zeroize()
	return secret, sh.pedersen.Open(basis[0].Commitments.Constant(), secret, blinding), nil
}

func (sh *Shamir) interpolate(shares []*Share, at Element, blinding bool) (Element, error) {
	fr := sh.suite.ScalarField()
	xs := make([]Element, len(shares))
	ys := make([]Element, len(shares))
	for i, s := range shares {
		xs[i] = fr.FromUint64(uint64(s.Index))
		if blinding {
			ys[i] = s.Blinding
		} else {
			ys[i] = s.Value
		}
	}
	return interpolateAt(fr, xs, ys, at)
}

// checkShare validates one share's structure
func (sh *Shamir) checkShare(s *Share) error {
	if s == nil {
		return ErrInvalidInput.WithDetails("share cannot be nil")
	}
	if s.Index < MinShareIndex || s.Index > MaxShareIndex {
		return ErrInvalidShareIndex.WithDetails("index %d outside [%d,%d]", s.Index, MinShareIndex, MaxShareIndex)
	}
	if s.Threshold < MinThreshold || s.Threshold > s.Total || s.Total > MaxShareIndex {
		return ErrInvalidThreshold.WithDetails("threshold %d of %d", s.Threshold, s.Total)
	}
	if s.Index > s.Total {
		return ErrInvalidShareIndex.WithDetails("index %d exceeds total %d", s.Index, s.Total)
	}
	fr := sh.suite.ScalarField()
	if !s.Value.f.sameAs(fr) || !s.Blinding.f.sameAs(fr) {
		return ErrFieldMismatch.WithDetails("share %d", s.Index)
	}
	return nil
}

// checkSet validates every share, index uniqueness and that all shares come
// from the same split
func (sh *Shamir) checkSet(shares []*Share) error {
	var seen [MaxShareIndex + 1]bool
	for _, s := range shares {
		if err := sh.checkShare(s); err != nil {
			return err
		}
		if seen[s.Index] {
			return ErrDuplicateShareIndex.WithDetails("index %d", s.Index)
		}
		seen[s.Index] = true
	}
	ref := shares[0]
	if ref.Commitments == nil || ref.Commitments.Degree() != ref.Threshold-1 {
		return ErrInconsistentShares.WithDetails("share %d carries no commitment of degree %d", ref.Index, ref.Threshold-1)
	}
	for _, s := range shares[1:] {
		if s.Threshold != ref.Threshold || s.Total != ref.Total || !s.Commitments.Equal(ref.Commitments) {
			return ErrInconsistentShares.WithDetails("share %d differs from share %d", s.Index, ref.Index)
		}
	}
	return nil
}
