package privacy

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// CurveParams describes a short Weierstrass curve y² = x³ + b over F_p with a
// prime-order group of order n. The primes are written twice, in hex and in
// decimal, and NewCurve refuses parameters where the two disagree.
type CurveParams struct {
	Name     string
	FieldHex string
	FieldDec string
	OrderHex string
	OrderDec string
	B        uint64
	GxHex    string
	GyHex    string
}

// BN254Params are the alt_bn128 G1 parameters used by the on-chain verifier
var BN254Params = CurveParams{
	Name:     "bn254",
	FieldHex: "0x30644e72e131a029b85045b68181585d97816a916871ca8d3c208c16d87cfd47",
	FieldDec: "21888242871839275222246405745257275088696311157297823662689037894645226208583",
	OrderHex: "0x30644e72e131a029b85045b68181585d2833e84879b9709143e1f593f0000001",
	OrderDec: "21888242871839275222246405745257275088548364400416034343698204186575808495617",
	B:        3,
	GxHex:    "0x1",
	GyHex:    "0x2",
}

// parseDual parses both representations of a constant and requires equality
func parseDual(label, hexLit, decLit string) (*uint256.Int, error) {
	fromHex, err := uint256.FromHex(hexLit)
	if err != nil {
		return nil, ErrCurveConstantMismatch.WithDetails("%s hex literal", label).WithCause(err)
	}
	fromDec, err := uint256.FromDecimal(decLit)
	if err != nil {
		return nil, ErrCurveConstantMismatch.WithDetails("%s decimal literal", label).WithCause(err)
	}
	if !fromHex.Eq(fromDec) {
		return nil, ErrCurveConstantMismatch.WithDetails("%s: hex and decimal literals differ", label)
	}
	return fromHex, nil
}

// crossCheckBN254 compares a constructed curve against gnark-crypto's
// independent BN254 definition
func crossCheckBN254(c *Curve) error {
	if c.fp.modulus.ToBig().Cmp(fp.Modulus()) != 0 {
		return ErrCurveConstantMismatch.WithDetails("field prime differs from gnark-crypto")
	}
	if c.order.ToBig().Cmp(fr.Modulus()) != 0 {
		return ErrCurveConstantMismatch.WithDetails("group order differs from gnark-crypto")
	}
	_, _, g1, _ := bn254.Generators()
	gx := g1.X.BigInt(new(big.Int))
	gy := g1.Y.BigInt(new(big.Int))
	if c.g.x.BigInt().Cmp(gx) != 0 || c.g.y.BigInt().Cmp(gy) != 0 {
		return ErrCurveConstantMismatch.WithDetails("generator differs from gnark-crypto")
	}
	return nil
}
