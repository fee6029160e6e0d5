package privacy

import (
	"encoding/binary"

	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"
)

// Poseidon parameter bounds
const (
	PoseidonMinWidth   = 2
	PoseidonMaxWidth   = 8
	PoseidonFullRounds = 8
	PoseidonAlpha      = 5
)

// poseidonChainSeed labels the round-constant hash chain. Changing it changes
// every hash output.
const poseidonChainSeed = "poseidon-hashchain-v1"

// partial round counts per width, matching the security margins commonly used
// for a 254-bit field with alpha = 5
var poseidonPartialRounds = map[int]int{
	2: 56,
	3: 57,
	4: 56,
	5: 60,
	6: 60,
	7: 63,
	8: 64,
}

// PoseidonParams holds the validated constants for one permutation width.
//
// Compatibility boundary: round constants come from a Keccak-256 hash chain,
// not from the grain-LFSR reference tables. Hashes are stable and internally
// consistent but do NOT match circomlib or other reference Poseidon
// verifiers. Bit-exact interoperability requires substituting the reference
// constant and MDS tables through NewPoseidonParamsFromTables.
type PoseidonParams struct {
	field         *Field
	width         int
	fullRounds    int
	partialRounds int
	constants     []Element // (fullRounds+partialRounds)·width, round-major
	mds           [][]Element
}

// NewPoseidonParams derives constants and the Cauchy MDS matrix for a width
func NewPoseidonParams(f *Field, width int) (*PoseidonParams, error) {
	rp, ok := poseidonPartialRounds[width]
	if !ok {
		return nil, ErrUnsupportedWidth.WithDetails("width %d outside [%d,%d]", width, PoseidonMinWidth, PoseidonMaxWidth)
	}
	constants := deriveRoundConstants(f, width, PoseidonFullRounds, rp)
	mds, err := cauchyMatrix(f, width)
	if err != nil {
		return nil, err
	}
	return NewPoseidonParamsFromTables(f, width, PoseidonFullRounds, rp, constants, mds)
}

// NewPoseidonParamsFromTables validates externally supplied tables, for
// example the reference constants of a third-party verifier
func NewPoseidonParamsFromTables(f *Field, width, fullRounds, partialRounds int, constants []Element, mds [][]Element) (*PoseidonParams, error) {
	if width < PoseidonMinWidth || width > PoseidonMaxWidth {
		return nil, ErrUnsupportedWidth.WithDetails("width %d outside [%d,%d]", width, PoseidonMinWidth, PoseidonMaxWidth)
	}
	if fullRounds <= 0 || fullRounds%2 != 0 || partialRounds < 0 {
		return nil, ErrInvalidConfig.WithDetails("invalid round counts RF=%d RP=%d", fullRounds, partialRounds)
	}
	if err := checkAlpha(f); err != nil {
		return nil, err
	}
	// validate and keep private copies; the caller may reuse its slices
	constants = append([]Element(nil), constants...)
	mds = copyMatrix(mds)
	if len(constants) != (fullRounds+partialRounds)*width {
		return nil, ErrInvalidConfig.WithDetails("expected %d round constants, got %d", (fullRounds+partialRounds)*width, len(constants))
	}
	for _, c := range constants {
		if !c.f.sameAs(f) {
			return nil, ErrFieldMismatch
		}
	}
	if err := ValidateMDS(f, mds); err != nil {
		return nil, err
	}
	if len(mds) != width {
		return nil, ErrNotMDS.WithDetails("matrix is %dx%d, width is %d", len(mds), len(mds), width)
	}
	return &PoseidonParams{
		field:         f,
		width:         width,
		fullRounds:    fullRounds,
		partialRounds: partialRounds,
		constants:     constants,
		mds:           mds,
	}, nil
}

func copyMatrix(m [][]Element) [][]Element {
	if m == nil {
		return nil
	}
	out := make([][]Element, len(m))
	for i, row := range m {
		out[i] = append([]Element(nil), row...)
	}
	return out
}

// Width returns t
func (pp *PoseidonParams) Width() int { return pp.width }

// Rounds returns the full and partial round counts
func (pp *PoseidonParams) Rounds() (full, partial int) { return pp.fullRounds, pp.partialRounds }

// checkAlpha requires x⁵ to be a permutation, i.e. gcd(5, p-1) = 1
func checkAlpha(f *Field) error {
	var pm1, rem uint256.Int
	pm1.SubUint64(&f.modulus, 1)
	rem.Mod(&pm1, uint256.NewInt(PoseidonAlpha))
	if rem.IsZero() {
		return ErrInvalidField.WithDetails("%s: x^5 is not a permutation", f.name)
	}
	return nil
}

// deriveRoundConstants walks a Keccak-256 chain and rejection-samples each
// link into the field after masking to the modulus bit length
func deriveRoundConstants(f *Field, width, rf, rp int) []Element {
	seed := sha3.NewLegacyKeccak256()
	seed.Write([]byte(poseidonChainSeed))
	modBytes := f.modulus.Bytes32()
	seed.Write(modBytes[:])
	var params [12]byte
	binary.BigEndian.PutUint32(params[0:4], uint32(width))
	binary.BigEndian.PutUint32(params[4:8], uint32(rf))
	binary.BigEndian.PutUint32(params[8:12], uint32(rp))
	seed.Write(params[:])
	link := seed.Sum(nil)

	total := (rf + rp) * width
	constants := make([]Element, 0, total)
	for len(constants) < total {
		h := sha3.NewLegacyKeccak256()
		h.Write(link)
		link = h.Sum(nil)

		e := Element{f: f}
		e.v.SetBytes(link)
		for l := f.topLimb + 1; l < 4; l++ {
			e.v[l] = 0
		}
		e.v[f.topLimb] &= f.topMask
		if e.v.Lt(&f.modulus) {
			constants = append(constants, e)
		}
	}
	return constants
}

// cauchyMatrix builds M[i][j] = 1/(x_i + y_j) with x_i = i, y_j = t + j
func cauchyMatrix(f *Field, width int) ([][]Element, error) {
	m := make([][]Element, width)
	for i := 0; i < width; i++ {
		m[i] = make([]Element, width)
		for j := 0; j < width; j++ {
			inv, err := f.FromUint64(uint64(i + width + j)).Inverse()
			if err != nil {
				return nil, ErrNotMDS.WithCause(err)
			}
			m[i][j] = inv
		}
	}
	return m, nil
}

// ValidateMDS checks that the matrix is square and that every square
// submatrix is non-singular
func ValidateMDS(f *Field, m [][]Element) error {
	t := len(m)
	if t == 0 || t > PoseidonMaxWidth {
		return ErrNotMDS.WithDetails("unsupported dimension %d", t)
	}
	for i, row := range m {
		if len(row) != t {
			return ErrNotMDS.WithDetails("row %d has %d columns", i, len(row))
		}
		for _, e := range row {
			if !e.f.sameAs(f) {
				return ErrFieldMismatch
			}
		}
	}

	full := 1 << uint(t)
	for rows := 1; rows < full; rows++ {
		k := popcount(rows)
		for cols := 1; cols < full; cols++ {
			if popcount(cols) != k {
				continue
			}
			if !nonSingular(f, submatrix(m, rows, cols)) {
				return ErrNotMDS.WithDetails("submatrix rows=%b cols=%b is singular", rows, cols)
			}
		}
	}
	return nil
}

func submatrix(m [][]Element, rows, cols int) [][]Element {
	var out [][]Element
	for i := range m {
		if rows&(1<<uint(i)) == 0 {
			continue
		}
		var r []Element
		for j := range m[i] {
			if cols&(1<<uint(j)) != 0 {
				r = append(r, m[i][j])
			}
		}
		out = append(out, r)
	}
	return out
}

// nonSingular runs division-free elimination: each row below the pivot is
// replaced by pivot·row - row[col]·pivotRow, which preserves rank without
// computing inverses
func nonSingular(f *Field, m [][]Element) bool {
	k := len(m)
	for col := 0; col < k; col++ {
		pivot := -1
		for r := col; r < k; r++ {
			if !m[r][col].IsZero() {
				pivot = r
				break
			}
		}
		if pivot < 0 {
			return false
		}
		m[col], m[pivot] = m[pivot], m[col]
		p := m[col][col]
		for r := col + 1; r < k; r++ {
			factor := m[r][col]
			for c := col; c < k; c++ {
				m[r][c] = m[r][c].Mul(p).Sub(m[col][c].Mul(factor))
			}
		}
	}
	return true
}

func popcount(x int) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}
