package privacy

// Polynomial is a secret polynomial over a prime field. It is never
// persisted and must be zeroized after use.
type Polynomial struct {
	field        *Field
	coefficients []Element
}

// NewRandomPolynomial creates a random polynomial of the given degree whose
// constant term is constantTerm
func NewRandomPolynomial(f *Field, degree int, constantTerm Element) (*Polynomial, error) {
	if degree < 0 {
		return nil, ErrInvalidInput.WithDetails("degree must be non-negative")
	}
	if !constantTerm.f.sameAs(f) {
		return nil, ErrFieldMismatch
	}

	coefficients := make([]Element, degree+1)
	coefficients[0] = constantTerm
	for i := 1; i <= degree; i++ {
		coeff, err := f.Random()
		if err != nil {
			ZeroizeElements(coefficients)
			return nil, err
		}
		coefficients[i] = coeff
	}

	return &Polynomial{
		field:        f,
		coefficients: coefficients,
	}, nil
}

// Evaluate uses Horner's rule: exactly one multiply and one add per
// coefficient, whatever the coefficient values
func (p *Polynomial) Evaluate(x Element) Element {
	result := p.field.Zero()
	for i := len(p.coefficients) - 1; i >= 0; i-- {
		result = result.Mul(x).Add(p.coefficients[i])
	}
	return result
}

// Degree returns the degree of the polynomial
func (p *Polynomial) Degree() int {
	return len(p.coefficients) - 1
}

// Zeroize clears the coefficients
func (p *Polynomial) Zeroize() {
	ZeroizeElements(p.coefficients)
	p.coefficients = nil
}

// interpolateAt evaluates the unique polynomial through (xs[i], ys[i]) at
// point at. xs must be distinct. Every basis term runs the same sequence of
// multiplications: the i = j factor is replaced by one through a masked
// select, and all denominators share one inversion.
func interpolateAt(f *Field, xs, ys []Element, at Element) (Element, error) {
	k := len(xs)
	if k == 0 || len(ys) != k {
		return Element{}, ErrInvalidInput.WithDetails("interpolation needs matching non-empty point sets")
	}
	one := f.One()
	nums := make([]Element, k)
	dens := make([]Element, k)
	for i := 0; i < k; i++ {
		num := one
		den := one
		for j := 0; j < k; j++ {
			self := boolToUint64(i == j)
			num = num.Mul(Select(self, one, at.Sub(xs[j])))
			den = den.Mul(Select(self, one, xs[i].Sub(xs[j])))
		}
		nums[i] = num
		dens[i] = den
	}

	inv, err := BatchInvert(dens)
	if err != nil {
		return Element{}, ErrInconsistentShares.WithCause(err)
	}

	result := f.Zero()
	for i := 0; i < k; i++ {
		result = result.Add(ys[i].Mul(nums[i]).Mul(inv[i]))
	}
	ZeroizeElements(nums)
	return result, nil
}
