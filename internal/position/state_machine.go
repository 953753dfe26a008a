// Package position implements the single-position lifecycle:
// Flat -> Entering -> Open -> Exiting -> Flat. Open can only be left
// through Exiting, and a half-closed exit stays in Exiting until every
// remaining leg is closed.
package position

import (
	"time"

	"github.com/yanun0323/logs"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/signal"
	"main/pkg/exception"
)

// State tracks the lifecycle of the condor position.
type State uint16

const (
	StateFlat State = iota
	StateEntering
	StateOpen
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateFlat:
		return "FLAT"
	case StateEntering:
		return "ENTERING"
	case StateOpen:
		return "OPEN"
	case StateExiting:
		return "EXITING"
	default:
		return "UNKNOWN"
	}
}

// Position is the live condor record. Owned exclusively by the machine
// until terminal; archived on exit completion.
type Position struct {
	ID            uint64
	Strikes       model.StrikeSet
	EntryStraddle float64
	EntryTime     time.Time
	LegOrders     map[enum.Leg]string

	// PendingExit lists legs still open while the machine is Exiting.
	PendingExit []enum.Leg
}

// Machine evaluates entry/exit decisions and enforces legal
// transitions.
type Machine struct {
	state   State
	pos     *Position
	nextID  uint64
	lotSize int
	numLots int

	prevStraddle    float64
	prevStraddleSet bool
}

// NewMachine creates a machine in Flat with the position sizing used
// for P&L.
func NewMachine(lotSize, numLots int) *Machine {
	return &Machine{state: StateFlat, lotSize: lotSize, numLots: numLots}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	return m.state
}

// Position returns the live position, or nil when flat.
func (m *Machine) Position() *Position {
	return m.pos
}

// EntrySignal reports whether all three entry conditions hold: the
// straddle, call, and put each trade below their AVWAP. Undefined AVWAP
// means insufficient data and never a trade.
func (m *Machine) EntrySignal(straddle, call, put float64, avwap signal.Snapshot) bool {
	if !avwap.Ready() {
		return false
	}
	return straddle < avwap.Straddle.Value && call < avwap.Call.Value && put < avwap.Put.Value
}

// BeginEntry moves Flat -> Entering.
func (m *Machine) BeginEntry() error {
	if m.state != StateFlat {
		return exception.ErrPositionInvalidTransition
	}
	m.state = StateEntering
	logs.Infof("position: FLAT -> ENTERING")
	return nil
}

// ConfirmEntry moves Entering -> Open, recording the straddle value
// observed at decision time (fills may differ; slippage is not modeled
// here).
func (m *Machine) ConfirmEntry(strikes model.StrikeSet, entryStraddle float64, legOrders map[enum.Leg]string, now time.Time) error {
	if m.state != StateEntering {
		return exception.ErrPositionInvalidTransition
	}
	m.nextID++
	m.pos = &Position{
		ID:            m.nextID,
		Strikes:       strikes,
		EntryStraddle: entryStraddle,
		EntryTime:     now,
		LegOrders:     legOrders,
	}
	m.state = StateOpen
	m.prevStraddleSet = false
	logs.Infof("position: ENTERING -> OPEN id=%d entry_straddle=%.2f", m.pos.ID, entryStraddle)
	return nil
}

// AbortEntry moves Entering -> Flat after a failed (and unwound) entry.
func (m *Machine) AbortEntry() error {
	if m.state != StateEntering {
		return exception.ErrPositionInvalidTransition
	}
	m.state = StateFlat
	logs.Infof("position: ENTERING -> FLAT (entry aborted)")
	return nil
}

// PnL returns the mark-to-market P&L of the open position. A credit
// structure profits as the straddle decays.
func (m *Machine) PnL(currentStraddle float64) (float64, error) {
	if m.state != StateOpen || m.pos == nil {
		return 0, exception.ErrPositionNotOpen
	}
	return (m.pos.EntryStraddle - currentStraddle) * float64(m.lotSize*m.numLots), nil
}

// ShouldExit is the AVWAP crossing detector: exit when the straddle
// crosses from below to at-or-above its AVWAP. On the first evaluation
// after entry there is no previous sample, and being at-or-above exits
// immediately. Each call records the straddle as the next previous
// sample.
func (m *Machine) ShouldExit(currentStraddle float64, avwap signal.Level) bool {
	if m.state != StateOpen {
		return false
	}
	prev, prevSet := m.prevStraddle, m.prevStraddleSet
	m.prevStraddle = currentStraddle
	m.prevStraddleSet = true

	if !avwap.Defined {
		return false
	}
	if !prevSet {
		return currentStraddle >= avwap.Value
	}
	return prev < avwap.Value && currentStraddle >= avwap.Value
}

// BeginExit moves Open -> Exiting and arms the pending legs. It is the
// only transition out of Open, so simultaneous risk and signal triggers
// collapse into one exit.
func (m *Machine) BeginExit() error {
	if m.state != StateExiting {
		if m.state != StateOpen || m.pos == nil {
			return exception.ErrPositionInvalidTransition
		}
		m.pos.PendingExit = enum.ExitOrder()
		m.state = StateExiting
		logs.Infof("position: OPEN -> EXITING id=%d", m.pos.ID)
	}
	return nil
}

// MarkLegsClosed removes closed legs from the pending set so a retried
// exit never re-closes them.
func (m *Machine) MarkLegsClosed(closed []enum.Leg) error {
	if m.state != StateExiting || m.pos == nil {
		return exception.ErrPositionInvalidTransition
	}
	remaining := m.pos.PendingExit[:0]
	for _, leg := range m.pos.PendingExit {
		done := false
		for _, c := range closed {
			if leg == c {
				done = true
				break
			}
		}
		if !done {
			remaining = append(remaining, leg)
		}
	}
	m.pos.PendingExit = remaining
	return nil
}

// ConfirmExit moves Exiting -> Flat once every leg is closed. A
// half-closed position is a live risk exposure: with legs still
// pending the machine stays Exiting and reports ExitRetryPending
// instead of reverting to Open.
func (m *Machine) ConfirmExit() (*Position, error) {
	if m.state != StateExiting || m.pos == nil {
		return nil, exception.ErrPositionInvalidTransition
	}
	if len(m.pos.PendingExit) > 0 {
		return nil, exception.ErrPositionExitRetryPending
	}
	archived := m.pos
	m.pos = nil
	m.state = StateFlat
	logs.Infof("position: EXITING -> FLAT id=%d", archived.ID)
	return archived, nil
}

// ForceFlat abandons any lifecycle state without order activity. Only
// the emergency protocol uses it, after cancel-all.
func (m *Machine) ForceFlat() {
	if m.state != StateFlat {
		logs.Errorf("position: %s -> FLAT (forced)", m.state)
	}
	m.pos = nil
	m.state = StateFlat
}
