// Package obs collects lightweight in-process counters and latency
// stats for the trading loop. Everything is atomic; nothing allocates
// on the hot path.
package obs

import (
	"sync/atomic"
	"time"

	"main/internal/model"
)

const maxRiskTrigger = 2 // none, stop loss, target

// Metrics tracks per-session counters and cycle latencies.
type Metrics struct {
	eventCounts       [model.EventTypeCount]uint64
	riskTriggerCounts [maxRiskTrigger + 1]uint64
	journalDrops      uint64

	cycleLatency     LatencyStats
	orderFlowLatency LatencyStats
	riskEvalLatency  LatencyStats
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count uint64
	sum   uint64
	min   uint64
	max   uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Snapshot captures the current metrics values.
type Snapshot struct {
	EventCounts       map[model.EventType]uint64
	RiskTriggerCounts map[uint16]uint64
	JournalDrops      uint64
	CycleLatency      LatencySnapshot
	OrderFlowLatency  LatencySnapshot
	RiskEvalLatency   LatencySnapshot
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncEvent counts one journal event by type.
func (m *Metrics) IncEvent(t model.EventType) {
	if m == nil {
		return
	}
	idx := int(t)
	if idx >= 0 && idx < len(m.eventCounts) {
		atomic.AddUint64(&m.eventCounts[idx], 1)
	}
}

// IncRiskTrigger counts one risk evaluation outcome.
func (m *Metrics) IncRiskTrigger(trigger uint16) {
	if m == nil {
		return
	}
	idx := int(trigger)
	if idx >= 0 && idx < len(m.riskTriggerCounts) {
		atomic.AddUint64(&m.riskTriggerCounts[idx], 1)
	}
}

// IncJournalDrop records an event lost to a full journal queue.
func (m *Metrics) IncJournalDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.journalDrops, 1)
}

// ObserveCycle measures one full trading-cycle duration.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.cycleLatency.Observe(d)
}

// ObserveOrderFlow measures end-to-end multi-leg placement latency.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d)
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d)
}

// Snapshot returns a copy of the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	eventCounts := make(map[model.EventType]uint64)
	for i := range m.eventCounts {
		if v := atomic.LoadUint64(&m.eventCounts[i]); v > 0 {
			eventCounts[model.EventType(i)] = v
		}
	}
	triggerCounts := make(map[uint16]uint64)
	for i := range m.riskTriggerCounts {
		if v := atomic.LoadUint64(&m.riskTriggerCounts[i]); v > 0 {
			triggerCounts[uint16(i)] = v
		}
	}
	return Snapshot{
		EventCounts:       eventCounts,
		RiskTriggerCounts: triggerCounts,
		JournalDrops:      atomic.LoadUint64(&m.journalDrops),
		CycleLatency:      m.cycleLatency.Snapshot(),
		OrderFlowLatency:  m.orderFlowLatency.Snapshot(),
		RiskEvalLatency:   m.riskEvalLatency.Snapshot(),
	}
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	atomic.AddUint64(&l.count, 1)
	atomic.AddUint64(&l.sum, nanos)

	for {
		min := atomic.LoadUint64(&l.min)
		if min != 0 && nanos >= min {
			break
		}
		if atomic.CompareAndSwapUint64(&l.min, min, nanos) {
			break
		}
	}

	for {
		max := atomic.LoadUint64(&l.max)
		if nanos <= max {
			break
		}
		if atomic.CompareAndSwapUint64(&l.max, max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := atomic.LoadUint64(&l.count)
	if count == 0 {
		return LatencySnapshot{}
	}
	sum := atomic.LoadUint64(&l.sum)
	min := atomic.LoadUint64(&l.min)
	max := atomic.LoadUint64(&l.max)
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(min),
		Max:   time.Duration(max),
		Avg:   time.Duration(sum / count),
	}
}
