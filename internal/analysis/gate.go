package analysis

import "sync/atomic"

const (
	gatePending int32 = iota
	gateFired
)

// Gate is a one-shot latch. The zero value is pending.
type Gate struct {
	state atomic.Int32
}

// TryFire moves the gate from pending to fired. Exactly one caller ever
// receives true, however many race.
func (g *Gate) TryFire() bool {
	return g.state.CompareAndSwap(gatePending, gateFired)
}

// Fired reports whether some caller already won TryFire.
func (g *Gate) Fired() bool {
	return g.state.Load() == gateFired
}
