package privacy

import (
	"fmt"
)

// Commitment is a Pedersen commitment C = v·G + r·H. It is never the identity.
// Tag is an optional caller label (for example the ledger field committed to);
// it is not part of the encoding.
type Commitment struct {
	Point Point
	Tag   string
}

// Bytes returns the 64-byte point encoding
func (c *Commitment) Bytes() []byte {
	if c == nil {
		return nil
	}
	return c.Point.Bytes()
}

// Equal compares the points in fixed time; tags are ignored
func (c *Commitment) Equal(other *Commitment) bool {
	if c == nil || other == nil {
		return false
	}
	return c.Point.Equal(other.Point)
}

// String returns the hex encoding with the tag, if any
func (c *Commitment) String() string {
	if c.Tag == "" {
		return c.Point.String()
	}
	return fmt.Sprintf("%s:%s", c.Tag, c.Point.String())
}

// PedersenScheme commits to scalars with generators G and H of unknown
// relative discrete log
type PedersenScheme struct {
	suite *Suite
	g, h  Point
}

// NewPedersenScheme creates a scheme over the suite's generators
func NewPedersenScheme(suite *Suite) (*PedersenScheme, error) {
	if suite == nil {
		return nil, ErrInvalidInput.WithDetails("suite cannot be nil")
	}
	g, h := suite.PedersenGenerators()
	curve := suite.Curve()
	if err := curve.ValidateOrder(g); err != nil {
		return nil, ErrInvalidGenerator.WithDetails("G").WithCause(err)
	}
	if err := curve.ValidateOrder(h); err != nil {
		return nil, ErrInvalidGenerator.WithDetails("H").WithCause(err)
	}
	return &PedersenScheme{suite: suite, g: g, h: h}, nil
}

// Commit commits to value. A nil blinding draws a uniform one. The blinding
// actually used is returned; a result equal to the identity is rejected and
// the caller must retry with a fresh blinding.
func (ps *PedersenScheme) Commit(value Element, blinding *Element) (*Commitment, Element, error) {
	return ps.CommitTagged("", value, blinding)
}

// CommitTagged is Commit with a caller label attached to the commitment
func (ps *PedersenScheme) CommitTagged(tag string, value Element, blinding *Element) (*Commitment, Element, error) {
	fr := ps.suite.ScalarField()
	if !value.f.sameAs(fr) {
		return nil, Element{}, ErrFieldMismatch.WithDetails("value")
	}

	var r Element
	if blinding == nil {
		var err error
		r, err = fr.Random()
		if err != nil {
			return nil, Element{}, err
		}
	} else {
		if !blinding.f.sameAs(fr) {
			return nil, Element{}, ErrFieldMismatch.WithDetails("blinding")
		}
		r = *blinding
	}

	point := ps.compute(value, r)
	if point.IsInfinity() {
		return nil, Element{}, ErrDegenerateCommitment
	}
	return &Commitment{Point: point, Tag: tag}, r, nil
}

// Open recomputes the commitment and compares it in fixed time. Mismatched
// fields or a nil commitment simply fail to open.
func (ps *PedersenScheme) Open(c *Commitment, value, blinding Element) bool {
	fr := ps.suite.ScalarField()
	if c == nil || !value.f.sameAs(fr) || !blinding.f.sameAs(fr) {
		return false
	}
	expected := ps.compute(value, blinding)
	return expected.Equal(c.Point)
}

// CommitmentFromBytes decodes and validates a commitment; the identity and
// any point off the curve or subgroup are rejected
func (ps *PedersenScheme) CommitmentFromBytes(data []byte) (*Commitment, error) {
	p, err := ps.suite.Curve().PointFromBytes(data, false)
	if err != nil {
		return nil, err
	}
	return &Commitment{Point: p}, nil
}

// Add returns the commitment to (v1+v2, r1+r2)
func (ps *PedersenScheme) Add(a, b *Commitment) (*Commitment, error) {
	if a == nil || b == nil {
		return nil, ErrInvalidInput.WithDetails("commitment cannot be nil")
	}
	sum := a.Point.Add(b.Point)
	if sum.IsInfinity() {
		return nil, ErrDegenerateCommitment
	}
	return &Commitment{Point: sum}, nil
}

// Sub returns the commitment to (v1-v2, r1-r2)
func (ps *PedersenScheme) Sub(a, b *Commitment) (*Commitment, error) {
	if a == nil || b == nil {
		return nil, ErrInvalidInput.WithDetails("commitment cannot be nil")
	}
	diff := a.Point.Sub(b.Point)
	if diff.IsInfinity() {
		return nil, ErrDegenerateCommitment
	}
	return &Commitment{Point: diff}, nil
}

// VerifyBalance checks Σinputs − Σoutputs = excess·H, i.e. that the committed
// values balance and excess is the blinding difference
func (ps *PedersenScheme) VerifyBalance(inputs, outputs []*Commitment, excess Element) (bool, error) {
	if !excess.f.sameAs(ps.suite.ScalarField()) {
		return false, ErrFieldMismatch.WithDetails("excess")
	}
	acc := ps.suite.Curve().Infinity()
	for i, c := range inputs {
		if c == nil {
			return false, ErrInvalidInput.WithDetails("input %d is nil", i)
		}
		acc = acc.Add(c.Point)
	}
	for i, c := range outputs {
		if c == nil {
			return false, ErrInvalidInput.WithDetails("output %d is nil", i)
		}
		acc = acc.Sub(c.Point)
	}
	return acc.Equal(ps.h.Mul(excess)), nil
}

func (ps *PedersenScheme) compute(value, blinding Element) Point {
	return ps.g.Mul(value).Add(ps.h.Mul(blinding))
}

// PolynomialCommitment commits to the coefficients of a secret polynomial f
// and a blinding polynomial g of the same degree: C_j = f_j·G + g_j·H. An
// evaluation (x, f(x), g(x)) is checked against Σ C_j·x^j. The commitment
// hides f(0) whatever its entropy.
type PolynomialCommitment struct {
	points []Point
}

// CommitPolynomial commits to f with blinding polynomial g
func (ps *PedersenScheme) CommitPolynomial(f, g *Polynomial) (*PolynomialCommitment, error) {
	if f == nil || g == nil || f.Degree() != g.Degree() {
		return nil, ErrInvalidInput.WithDetails("value and blinding polynomials must have the same degree")
	}
	fr := ps.suite.ScalarField()
	if !f.field.sameAs(fr) || !g.field.sameAs(fr) {
		return nil, ErrFieldMismatch.WithDetails("polynomial")
	}
	points := make([]Point, len(f.coefficients))
	for j := range f.coefficients {
		points[j] = ps.compute(f.coefficients[j], g.coefficients[j])
	}
	return &PolynomialCommitment{points: points}, nil
}

// VerifyEvaluation reports whether (x, value, blinding) lies on the committed
// polynomials
func (ps *PedersenScheme) VerifyEvaluation(pc *PolynomialCommitment, x, value, blinding Element) bool {
	fr := ps.suite.ScalarField()
	if pc == nil || len(pc.points) == 0 || !x.f.sameAs(fr) || !value.f.sameAs(fr) || !blinding.f.sameAs(fr) {
		return false
	}
	// Horner over the points: Σ C_j·x^j
	acc := pc.points[len(pc.points)-1]
	for j := len(pc.points) - 2; j >= 0; j-- {
		acc = acc.Mul(x).Add(pc.points[j])
	}
	return acc.Equal(ps.compute(value, blinding))
}

// PolynomialCommitmentFromBytes decodes a concatenation of point encodings.
// A coefficient commitment may be the identity.
func (ps *PedersenScheme) PolynomialCommitmentFromBytes(data []byte) (*PolynomialCommitment, error) {
	if len(data) == 0 || len(data)%PointSize != 0 {
		return nil, ErrInvalidPointLength.WithDetails("polynomial commitment of %d bytes", len(data))
	}
	points := make([]Point, len(data)/PointSize)
	for j := range points {
		p, err := ps.suite.Curve().PointFromBytes(data[j*PointSize:(j+1)*PointSize], true)
		if err != nil {
			return nil, err
		}
		points[j] = p
	}
	return &PolynomialCommitment{points: points}, nil
}

// Degree returns the committed polynomials' degree
func (pc *PolynomialCommitment) Degree() int {
	return len(pc.points) - 1
}

// Constant returns C_0, the commitment to f(0) under blinding g(0)
func (pc *PolynomialCommitment) Constant() *Commitment {
	return &Commitment{Point: pc.points[0]}
}

// Bytes concatenates the point encodings
func (pc *PolynomialCommitment) Bytes() []byte {
	out := make([]byte, 0, len(pc.points)*PointSize)
	for _, p := range pc.points {
		out = append(out, p.Bytes()...)
	}
	return out
}

// Equal compares every coefficient commitment
func (pc *PolynomialCommitment) Equal(other *PolynomialCommitment) bool {
	if pc == nil || other == nil {
		return false
	}
	if pc == other {
		return true
	}
	if len(pc.points) != len(other.points) {
		return false
	}
	eq := true
	for j := range pc.points {
		eq = pc.points[j].Equal(other.points[j]) && eq
	}
	return eq
}
