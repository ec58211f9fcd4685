package sim

import "sync/atomic"

// LED is the debug indicator.
type LED struct {
	on      atomic.Bool
	flashes atomic.Uint64
}

func (l *LED) On() {
	if !l.on.Swap(true) {
		l.flashes.Add(1)
	}
}

func (l *LED) Off() { l.on.Store(false) }

func (l *LED) IsOn() bool { return l.on.Load() }

// Flashes counts off-to-on transitions.
func (l *LED) Flashes() uint64 { return l.flashes.Load() }
