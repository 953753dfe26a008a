package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckThresholdsInclusive(t *testing.T) {
	m := NewManager(Config{Capital: 100000, StopLossPct: 5, TargetPct: 10})

	// stop loss at -5000, target at +10000, both inclusive
	assert.Equal(t, TriggerStopLoss, m.Check(-5000.01))
	assert.Equal(t, TriggerStopLoss, m.Check(-5000))
	assert.Equal(t, TriggerNone, m.Check(-4999.99))

	assert.Equal(t, TriggerNone, m.Check(9999.99))
	assert.Equal(t, TriggerTarget, m.Check(10000))
	assert.Equal(t, TriggerTarget, m.Check(10000.01))

	assert.Equal(t, TriggerNone, m.Check(0))
}

func TestCheckZeroThresholds(t *testing.T) {
	// both thresholds at zero: stop loss wins at exactly zero
	m := NewManager(Config{Capital: 100000})
	assert.Equal(t, TriggerStopLoss, m.Check(0))
	assert.Equal(t, TriggerStopLoss, m.Check(-1))
	assert.Equal(t, TriggerTarget, m.Check(1))
}

func TestCoolOffGate(t *testing.T) {
	m := NewManager(Config{Capital: 100000, CoolOff: 300 * time.Second})
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	assert.True(t, m.CanEnter(now), "no cool-off armed")

	m.StartCoolOff(now)
	assert.False(t, m.CanEnter(now))
	assert.False(t, m.CanEnter(now.Add(299*time.Second)))
	assert.True(t, m.CanEnter(now.Add(300*time.Second)))
}
