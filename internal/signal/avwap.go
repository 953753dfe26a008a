package signal

import (
	"time"

	"main/pkg/exception"
)

// Accumulator maintains one anchored-VWAP stream. It accumulates
// price×volume and volume monotonically from the session anchor and is
// reset only when a new anchor is armed.
type Accumulator struct {
	anchor time.Time
	cumPV  float64
	cumVol float64
}

// NewAccumulator creates an accumulator anchored at the given time.
func NewAccumulator(anchor time.Time) *Accumulator {
	return &Accumulator{anchor: anchor}
}

// Update folds one (price, volume) observation into the stream and
// returns the current AVWAP. ok is false while cumulative volume is
// zero: "no value yet" is distinct from a zero value and downstream
// must not act on it.
func (a *Accumulator) Update(price, volume float64) (value float64, ok bool, err error) {
	if volume < 0 {
		return 0, false, exception.ErrSignalNegativeVolume
	}
	a.cumPV += price * volume
	a.cumVol += volume
	return a.Value()
}

// Value returns the current AVWAP without mutating the stream.
func (a *Accumulator) Value() (float64, bool, error) {
	if a.cumVol <= 0 {
		return 0, false, nil
	}
	return a.cumPV / a.cumVol, true, nil
}

// Anchor returns the session anchor time.
func (a *Accumulator) Anchor() time.Time {
	return a.anchor
}

// Rearm resets the stream for a new session anchor.
func (a *Accumulator) Rearm(anchor time.Time) {
	a.anchor = anchor
	a.cumPV = 0
	a.cumVol = 0
}
