package sync

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before retrying after consecutive failed
// cycles. It is a pure mapping from attempt count to delay, kept separate
// from the I/O loop so the policy is testable on its own.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
	// rand returns a float64 in [0,1); overridable for deterministic tests.
	rand func() float64
}

// NewBackoff creates an exponential backoff policy with full jitter.
func NewBackoff(base, cap time.Duration) *Backoff {
	return &Backoff{Base: base, Cap: cap, rand: rand.Float64}
}

// Delay returns the sleep before retry attempt n (0-based). The upper
// envelope is min(cap, base<<n); the actual delay is jittered uniformly in
// (0, envelope], so repeated failures never synchronize across deployments.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	envelope := b.Base
	for i := 0; i < attempt; i++ {
		envelope *= 2
		if envelope >= b.Cap || envelope <= 0 {
			envelope = b.Cap
			break
		}
	}
	if envelope > b.Cap {
		envelope = b.Cap
	}

	jittered := time.Duration(float64(envelope) * b.rand())
	if jittered <= 0 {
		jittered = time.Millisecond
	}
	return jittered
}
