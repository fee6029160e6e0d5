package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// MinGeneratorAttempts is the lower bound on try-and-increment iterations.
// The chance that 1000 independent x-coordinates are all non-residues is
// about 2^-1000; exhausting the bound is still reported, never assumed away.
const MinGeneratorAttempts = 1000

// HashToCurveDomain separates generator derivation from every other hash use
const HashToCurveDomain = "canopy/privacy/hash-to-curve/v1"

// HashToCurve deterministically derives a curve point with unknown discrete
// log from a seed: x = SHA-256(domain‖len(seed)‖seed‖counter) mod p, retried
// with an incrementing counter until x³ + b is a square. The even root is
// taken. The loop honours ctx cancellation between attempts.
func (c *Curve) HashToCurve(ctx context.Context, domain, seed []byte, maxAttempts int) (Point, error) {
	if maxAttempts < MinGeneratorAttempts {
		return Point{}, ErrInvalidConfig.WithDetails("generator attempts %d below minimum %d", maxAttempts, MinGeneratorAttempts)
	}
	return c.tryAndIncrement(ctx, maxAttempts, func(counter uint32) (Point, bool) {
		return c.candidatePoint(domain, seed, counter)
	})
}

func (c *Curve) tryAndIncrement(ctx context.Context, attempts int, candidate func(uint32) (Point, bool)) (Point, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return Point{}, ErrGeneratorDerivation.WithDetails("cancelled after %d attempts", i).WithCause(err)
		}
		p, ok := candidate(uint32(i))
		if !ok {
			continue
		}
		if err := c.ValidateOrder(p); err != nil {
			continue
		}
		return p, nil
	}
	return Point{}, ErrGeneratorDerivation.WithContext("attempts", attempts).WithContext("curve", c.name)
}

func (c *Curve) candidatePoint(domain, seed []byte, counter uint32) (Point, bool) {
	hasher := sha256.New()
	hasher.Write([]byte(HashToCurveDomain))
	writeLengthPrefixed(hasher, domain)
	writeLengthPrefixed(hasher, seed)
	var ctr [4]byte
	binary.BigEndian.PutUint32(ctr[:], counter)
	hasher.Write(ctr[:])
	digest := hasher.Sum(nil)

	x := c.fp.FromBytesReduced(digest)
	rhs := x.Square().Mul(x).Add(c.b)
	y, ok := rhs.Sqrt()
	if !ok {
		return Point{}, false
	}
	if y.IsOdd() {
		y = y.Neg()
	}
	return Point{c: c, x: x, y: y}, true
}
