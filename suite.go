package privacy

import (
	"context"
	"sync"

	"go.uber.org/atomic"
)

// PedersenDomain separates the Pedersen H derivation from other generators
const PedersenDomain = "canopy/privacy/pedersen/v1"

// Suite bundles everything derived once from the curve parameters: the
// curve, the Pedersen generators and the per-width Poseidon parameters. A
// Suite is read-only after construction and safe for concurrent use. Callers
// receive it explicitly; DefaultSuite exists for the common BN254 case and
// tests build fresh instances with NewSuite.
type Suite struct {
	curve *Curve
	g, h  Point

	poseidon [PoseidonMaxWidth + 1]poseidonSlot

	// process-local message counter feeding the ECIES nonce prefix
	nonceCounter *atomic.Uint32
}

type poseidonSlot struct {
	once   sync.Once
	params *PoseidonParams
	err    error
}

var (
	defaultSuiteOnce sync.Once
	defaultSuite     *Suite
	defaultSuiteErr  error
)

// DefaultSuite returns the shared BN254 suite, building it on first use. A
// construction failure is sticky: every caller sees the same critical error.
func DefaultSuite() (*Suite, error) {
	defaultSuiteOnce.Do(func() {
		defaultSuite, defaultSuiteErr = NewSuite(context.Background(), BN254Params, DefaultCurveGeneratorAttempts)
	})
	return defaultSuite, defaultSuiteErr
}

// MustDefaultSuite is DefaultSuite for program initialization paths
func MustDefaultSuite() *Suite {
	s, err := DefaultSuite()
	if err != nil {
		panic(err)
	}
	return s
}

// NewSuite builds an independent suite. The BN254 parameters are also checked
// against gnark-crypto's definition.
func NewSuite(ctx context.Context, params CurveParams, generatorAttempts int) (*Suite, error) {
	curve, err := NewCurve(params)
	if err != nil {
		return nil, err
	}
	if params.Name == BN254Params.Name {
		if err := crossCheckBN254(curve); err != nil {
			return nil, err
		}
	}
	h, err := curve.HashToCurve(ctx, []byte(PedersenDomain), []byte("H"), generatorAttempts)
	if err != nil {
		return nil, err
	}
	if h.Equal(curve.Generator()) {
		return nil, ErrInvalidGenerator.WithDetails("derived H equals G")
	}
	return &Suite{
		curve:        curve,
		g:            curve.Generator(),
		h:            h,
		nonceCounter: atomic.NewUint32(0),
	}, nil
}

// NewSuiteFromConfig builds a suite whose generator derivation is bounded by
// cfg.Curve.MaxGeneratorAttempts. A nil cfg uses DefaultConfig.
func NewSuiteFromConfig(ctx context.Context, params CurveParams, cfg *Config) (*Suite, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewSuite(ctx, params, cfg.Curve.MaxGeneratorAttempts)
}

// Curve returns the curve engine
func (s *Suite) Curve() *Curve { return s.curve }

// ScalarField returns the field commitments, hashes and shares live in
func (s *Suite) ScalarField() *Field { return s.curve.fr }

// PedersenGenerators returns G and H
func (s *Suite) PedersenGenerators() (g, h Point) { return s.g, s.h }

// Poseidon returns the validated parameters for a width, deriving them once
func (s *Suite) Poseidon(width int) (*PoseidonParams, error) {
	if width < PoseidonMinWidth || width > PoseidonMaxWidth {
		return nil, ErrUnsupportedWidth.WithDetails("width %d outside [%d,%d]", width, PoseidonMinWidth, PoseidonMaxWidth)
	}
	slot := &s.poseidon[width]
	slot.once.Do(func() {
		slot.params, slot.err = NewPoseidonParams(s.curve.fr, width)
	})
	return slot.params, slot.err
}

// nextNonceCounter returns the next ECIES counter value
func (s *Suite) nextNonceCounter() uint32 {
	return s.nonceCounter.Inc()
}
