package privacy

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// TimingPolicy pads verification and decryption entry points with a fixed
// base delay plus uniform random jitter. It is applied on every outcome so the
// delay carries no information about which branch ran. The zero value is a
// no-op.
type TimingPolicy struct {
	BaseDelay time.Duration `json:"base_delay"`
	MaxJitter time.Duration `json:"max_jitter"`
}

// Delay draws one delay in [BaseDelay, BaseDelay+MaxJitter)
func (tp TimingPolicy) Delay() time.Duration {
	d := tp.BaseDelay
	if tp.MaxJitter > 0 {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(tp.MaxJitter)))
		if err == nil {
			d += time.Duration(j.Int64())
		} else {
			// entropy failure must not shorten the pad
			d += tp.MaxJitter / 2
		}
	}
	return d
}

// Apply sleeps for one drawn delay or until ctx is done
func (tp TimingPolicy) Apply(ctx context.Context) {
	d := tp.Delay()
	if d <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
