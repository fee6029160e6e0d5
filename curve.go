package privacy

import (
	"crypto/subtle"

	"github.com/holiman/uint256"
)

// PointSize is the encoded size of an affine point: x‖y, 32 bytes each
const PointSize = 2 * ElementSize

// Curve is a short Weierstrass curve y² = x³ + b with a prime-order group.
// All arithmetic runs on a uniform schedule: scalar multiplication performs
// one doubling and one addition per bit of the group order.
type Curve struct {
	name      string
	fp        *Field // coordinates
	fr        *Field // scalars
	b         Element
	order     uint256.Int
	orderBits int
	g         Point
}

// NewCurve cross-verifies the parameters and builds the curve. Every failure
// is a critical configuration error.
func NewCurve(params CurveParams) (*Curve, error) {
	p, err := parseDual(params.Name+" field prime", params.FieldHex, params.FieldDec)
	if err != nil {
		return nil, err
	}
	n, err := parseDual(params.Name+" group order", params.OrderHex, params.OrderDec)
	if err != nil {
		return nil, err
	}
	if !p.Gt(n) {
		return nil, ErrCurveConstantMismatch.WithDetails("%s: field prime must exceed group order", params.Name)
	}

	fpField, err := NewField(params.Name+"/fp", p)
	if err != nil {
		return nil, err
	}
	if !fpField.HasSqrt() {
		return nil, ErrInvalidField.WithDetails("%s: coordinate field must be 3 mod 4", params.Name)
	}
	frField, err := NewField(params.Name+"/fr", n)
	if err != nil {
		return nil, err
	}
	if params.B == 0 {
		return nil, ErrCurveConstantMismatch.WithDetails("%s: b must be non-zero", params.Name)
	}

	c := &Curve{
		name:      params.Name,
		fp:        fpField,
		fr:        frField,
		b:         fpField.FromUint64(params.B),
		orderBits: n.BitLen(),
	}
	c.order.Set(n)

	gx, err := uint256.FromHex(params.GxHex)
	if err != nil {
		return nil, ErrInvalidGenerator.WithCause(err)
	}
	gy, err := uint256.FromHex(params.GyHex)
	if err != nil {
		return nil, ErrInvalidGenerator.WithCause(err)
	}
	if !gx.Lt(p) || !gy.Lt(p) {
		return nil, ErrInvalidGenerator.WithDetails("generator coordinates are not reduced")
	}
	c.g = Point{c: c, x: Element{f: fpField, v: *gx}, y: Element{f: fpField, v: *gy}}
	if err := c.ValidateOrder(c.g); err != nil {
		return nil, ErrInvalidGenerator.WithCause(err)
	}
	return c, nil
}

// Name returns the curve label
func (c *Curve) Name() string { return c.name }

// BaseField returns the coordinate field F_p
func (c *Curve) BaseField() *Field { return c.fp }

// ScalarField returns the scalar field F_n
func (c *Curve) ScalarField() *Field { return c.fr }

// Order returns a copy of the group order
func (c *Curve) Order() *uint256.Int { return c.order.Clone() }

// Generator returns the fixed base point
func (c *Curve) Generator() Point { return c.g }

// Infinity returns the point at infinity
func (c *Curve) Infinity() Point { return Point{c: c, inf: true} }

// NewPoint validates affine coordinates and returns the point
func (c *Curve) NewPoint(x, y Element) (Point, error) {
	if !x.f.sameAs(c.fp) || !y.f.sameAs(c.fp) {
		return Point{}, ErrFieldMismatch
	}
	p := Point{c: c, x: x, y: y}
	if err := c.validate(p); err != nil {
		return Point{}, err
	}
	return p, nil
}

// IsOnCurve checks y² = x³ + b
func (c *Curve) IsOnCurve(p Point) bool {
	if p.inf {
		return true
	}
	lhs := p.y.Square()
	rhs := p.x.Square().Mul(p.x).Add(c.b)
	return lhs.Equal(rhs)
}

// IsInSubgroup checks n·P = ∞
func (c *Curve) IsInSubgroup(p Point) bool {
	return c.mulRaw(p, &c.order, c.orderBits).inf
}

// ValidateOrder checks that a fixed generator is a finite curve point of
// exactly the group order
func (c *Curve) ValidateOrder(p Point) error {
	if p.inf {
		return ErrPointAtInfinity
	}
	if !c.IsOnCurve(p) {
		return ErrPointNotOnCurve
	}
	if !c.IsInSubgroup(p) {
		return ErrPointNotInSubgroup
	}
	return nil
}

func (c *Curve) validate(p Point) error {
	if !c.IsOnCurve(p) {
		return ErrPointNotOnCurve.WithContext("curve", c.name)
	}
	if !c.IsInSubgroup(p) {
		return ErrPointNotInSubgroup.WithContext("curve", c.name)
	}
	return nil
}

// PointFromBytes decodes x‖y. The all-zero string decodes to infinity only
// when allowInfinity is set; every other input must be canonical, on the
// curve and in the subgroup.
func (c *Curve) PointFromBytes(data []byte, allowInfinity bool) (Point, error) {
	if len(data) != PointSize {
		return Point{}, ErrInvalidPointLength.WithDetails("expected %d bytes, got %d", PointSize, len(data))
	}
	if isAllZero(data) {
		if !allowInfinity {
			return Point{}, ErrPointAtInfinity
		}
		return c.Infinity(), nil
	}
	x, err := c.fp.FromBytes(data[:ElementSize])
	if err != nil {
		return Point{}, err
	}
	y, err := c.fp.FromBytes(data[ElementSize:])
	if err != nil {
		return Point{}, err
	}
	p := Point{c: c, x: x, y: y}
	if err := c.validate(p); err != nil {
		return Point{}, err
	}
	return p, nil
}

// ScalarBaseMult computes k·G
func (c *Curve) ScalarBaseMult(k Element) Point {
	return c.g.Mul(k)
}

// mulRaw runs double-and-add-always over exactly nbits bits of k
func (c *Curve) mulRaw(p Point, k *uint256.Int, nbits int) Point {
	base := c.toJacobian(p)
	acc := c.jacobianInfinity()
	for i := nbits - 1; i >= 0; i-- {
		acc = c.double(acc)
		sum := c.add(acc, base)
		acc = selectJacobian(bitAt(k, i), sum, acc)
	}
	return c.toAffine(acc)
}

// Point is an affine curve point or the point at infinity. Points are
// immutable values produced by the curve's arithmetic.
type Point struct {
	c    *Curve
	x, y Element
	inf  bool
}

// Curve returns the owning curve
func (p Point) Curve() *Curve { return p.c }

// X returns the affine x-coordinate (zero for infinity)
func (p Point) X() Element { return p.x }

// Y returns the affine y-coordinate (zero for infinity)
func (p Point) Y() Element { return p.y }

// IsInfinity reports whether p is the identity
func (p Point) IsInfinity() bool { return p.inf }

// Add returns p + q
func (p Point) Add(q Point) Point {
	c := p.c
	return c.toAffine(c.add(c.toJacobian(p), c.toJacobian(q)))
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return p.Add(q.Neg())
}

// Double returns 2p
func (p Point) Double() Point {
	c := p.c
	return c.toAffine(c.double(c.toJacobian(p)))
}

// Neg returns -p
func (p Point) Neg() Point {
	if p.inf {
		return p
	}
	return Point{c: p.c, x: p.x, y: p.y.Neg()}
}

// Mul returns k·p for a scalar k of the curve's scalar field
func (p Point) Mul(k Element) Point {
	if !k.f.sameAs(p.c.fr) {
		panic(ErrFieldMismatch)
	}
	return p.c.mulRaw(p, &k.v, p.c.orderBits)
}

// Equal compares both coordinates in fixed time
func (p Point) Equal(q Point) bool {
	a := p.Bytes()
	b := q.Bytes()
	xEq := subtle.ConstantTimeCompare(a[:ElementSize], b[:ElementSize])
	yEq := subtle.ConstantTimeCompare(a[ElementSize:], b[ElementSize:])
	return xEq&yEq == 1
}

// Bytes returns x‖y big-endian; infinity encodes as 64 zero bytes
func (p Point) Bytes() []byte {
	out := make([]byte, PointSize)
	if p.inf {
		return out
	}
	copy(out[:ElementSize], p.x.Bytes())
	copy(out[ElementSize:], p.y.Bytes())
	return out
}

// String returns the hex encoding
func (p Point) String() string {
	if p.inf {
		return "infinity"
	}
	return p.x.String() + p.y.String()
}

// jacobian holds (X, Y, Z) with x = X/Z², y = Y/Z³; Z = 0 is infinity
type jacobian struct {
	x, y, z Element
}

func (c *Curve) jacobianInfinity() jacobian {
	return jacobian{x: c.fp.One(), y: c.fp.One(), z: c.fp.Zero()}
}

func (c *Curve) toJacobian(p Point) jacobian {
	if p.inf {
		return c.jacobianInfinity()
	}
	return jacobian{x: p.x, y: p.y, z: c.fp.One()}
}

func (c *Curve) toAffine(j jacobian) Point {
	if j.z.IsZero() {
		return c.Infinity()
	}
	zInv, _ := j.z.Inverse()
	zInv2 := zInv.Square()
	zInv3 := zInv2.Mul(zInv)
	return Point{c: c, x: j.x.Mul(zInv2), y: j.y.Mul(zInv3)}
}

// double uses dbl-2009-l for a = 0. Infinity maps to infinity since Z3 = 2·Y·Z.
func (c *Curve) double(p jacobian) jacobian {
	a := p.x.Square()
	b := p.y.Square()
	cc := b.Square()
	d := p.x.Add(b).Square().Sub(a).Sub(cc)
	d = d.Add(d)
	e := a.Add(a).Add(a)
	f := e.Square()
	x3 := f.Sub(d.Add(d))
	eightC := cc.Add(cc)
	eightC = eightC.Add(eightC)
	eightC = eightC.Add(eightC)
	y3 := e.Mul(d.Sub(x3)).Sub(eightC)
	z3 := p.y.Mul(p.z)
	z3 = z3.Add(z3)
	return jacobian{x: x3, y: y3, z: z3}
}

// add uses add-2007-bl and resolves the exceptional cases (either input at
// infinity, or p = q) with masked selects instead of branches. For p = -q
// the formula itself yields Z3 = 0.
func (c *Curve) add(p, q jacobian) jacobian {
	z1z1 := p.z.Square()
	z2z2 := q.z.Square()
	u1 := p.x.Mul(z2z2)
	u2 := q.x.Mul(z1z1)
	s1 := p.y.Mul(q.z).Mul(z2z2)
	s2 := q.y.Mul(p.z).Mul(z1z1)
	h := u2.Sub(u1)
	i := h.Add(h).Square()
	j := h.Mul(i)
	r := s2.Sub(s1)
	r = r.Add(r)
	v := u1.Mul(i)
	x3 := r.Square().Sub(j).Sub(v.Add(v))
	s1j := s1.Mul(j)
	y3 := r.Mul(v.Sub(x3)).Sub(s1j.Add(s1j))
	z3 := p.z.Add(q.z).Square().Sub(z1z1).Sub(z2z2).Mul(h)
	sum := jacobian{x: x3, y: y3, z: z3}

	dbl := c.double(p)
	pInf := boolToUint64(p.z.IsZero())
	qInf := boolToUint64(q.z.IsZero())
	same := boolToUint64(h.IsZero()) & boolToUint64(r.IsZero()) & (1 ^ pInf) & (1 ^ qInf)

	out := selectJacobian(same, dbl, sum)
	out = selectJacobian(qInf, p, out)
	out = selectJacobian(pInf, q, out)
	return out
}

func selectJacobian(bit uint64, a, b jacobian) jacobian {
	return jacobian{
		x: Select(bit, a.x, b.x),
		y: Select(bit, a.y, b.y),
		z: Select(bit, a.z, b.z),
	}
}

func isAllZero(data []byte) bool {
	var acc byte
	for _, b := range data {
		acc |= b
	}
	return acc == 0
}
