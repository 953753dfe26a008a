// Package risk evaluates the open position against capital-based
// loss and profit thresholds, and gates re-entry after an emergency
// through a cool-off window.
package risk

import (
	"time"

	"github.com/yanun0323/logs"
)

// Trigger is the outcome of a risk evaluation.
type Trigger uint16

const (
	TriggerNone Trigger = iota
	TriggerStopLoss
	TriggerTarget
)

func (t Trigger) String() string {
	switch t {
	case TriggerNone:
		return "NONE"
	case TriggerStopLoss:
		return "STOP_LOSS"
	case TriggerTarget:
		return "TARGET"
	default:
		return "UNKNOWN"
	}
}

// Config defines the capital base and the loss/profit thresholds as
// percentages of capital.
type Config struct {
	Capital     float64       `json:"capital"`
	StopLossPct float64       `json:"stopLossPct"`
	TargetPct   float64       `json:"targetPct"`
	CoolOff     time.Duration `json:"coolOff"`
}

// Manager evaluates P&L against the configured thresholds. Both
// thresholds are inclusive: hitting the boundary exactly triggers.
type Manager struct {
	cfg          Config
	coolOffUntil time.Time
}

// NewManager creates a manager with static thresholds.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// StopLossThreshold returns the P&L at or below which the stop loss
// fires. Always non-positive.
func (m *Manager) StopLossThreshold() float64 {
	return -m.cfg.Capital * m.cfg.StopLossPct / 100
}

// TargetThreshold returns the P&L at or above which the profit target
// fires. Always non-negative.
func (m *Manager) TargetThreshold() float64 {
	return m.cfg.Capital * m.cfg.TargetPct / 100
}

// Check evaluates the open position's P&L. Stop loss is checked first
// so a pathological configuration where both thresholds are zero still
// resolves deterministically.
func (m *Manager) Check(pnl float64) Trigger {
	if pnl <= m.StopLossThreshold() {
		return TriggerStopLoss
	}
	if pnl >= m.TargetThreshold() {
		return TriggerTarget
	}
	return TriggerNone
}

// StartCoolOff blocks new entries until now + the configured window.
// Called by the emergency protocol after flattening.
func (m *Manager) StartCoolOff(now time.Time) {
	m.coolOffUntil = now.Add(m.cfg.CoolOff)
	logs.Infof("risk: cool-off until %s", m.coolOffUntil.Format(time.RFC3339))
}

// CanEnter reports whether new entries are allowed at the given time.
func (m *Manager) CanEnter(now time.Time) bool {
	return !now.Before(m.coolOffUntil)
}
