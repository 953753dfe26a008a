package signal

import (
	"time"

	"main/internal/model"
)

// Level is one AVWAP reading. Defined is false until the stream has
// seen volume.
type Level struct {
	Value   float64
	Defined bool
}

// Snapshot carries the three AVWAP levels evaluated on one tick cadence.
type Snapshot struct {
	Straddle Level
	Call     Level
	Put      Level
}

// Ready reports whether every level is defined.
func (s Snapshot) Ready() bool {
	return s.Straddle.Defined && s.Call.Defined && s.Put.Defined
}

// Engine drives the combined-straddle, call-only, and put-only anchored
// VWAP streams from the same quote updates so they stay time-aligned.
type Engine struct {
	straddle *Accumulator
	call     *Accumulator
	put      *Accumulator
}

// NewEngine creates the three accumulators anchored at the given time.
func NewEngine(anchor time.Time) *Engine {
	return &Engine{
		straddle: NewAccumulator(anchor),
		call:     NewAccumulator(anchor),
		put:      NewAccumulator(anchor),
	}
}

// UpdateQuotes folds the current ATM call and put quotes into all three
// streams. The straddle stream receives the combined price and volume.
func (e *Engine) UpdateQuotes(call, put model.OptionQuote) (Snapshot, error) {
	var snap Snapshot
	var err error

	snap.Straddle, err = updateLevel(e.straddle, call.LastPrice+put.LastPrice, call.Volume+put.Volume)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Call, err = updateLevel(e.call, call.LastPrice, call.Volume)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Put, err = updateLevel(e.put, put.LastPrice, put.Volume)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Snapshot returns the current levels without consuming a tick.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Straddle: readLevel(e.straddle),
		Call:     readLevel(e.call),
		Put:      readLevel(e.put),
	}
}

// Rearm resets every stream for a new session anchor.
func (e *Engine) Rearm(anchor time.Time) {
	e.straddle.Rearm(anchor)
	e.call.Rearm(anchor)
	e.put.Rearm(anchor)
}

func updateLevel(a *Accumulator, price, volume float64) (Level, error) {
	value, ok, err := a.Update(price, volume)
	if err != nil {
		return Level{}, err
	}
	return Level{Value: value, Defined: ok}, nil
}

func readLevel(a *Accumulator) Level {
	value, ok, _ := a.Value()
	return Level{Value: value, Defined: ok}
}
