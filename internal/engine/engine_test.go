package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker"
	"main/internal/broker/paper"
	"main/internal/execution"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/position"
	"main/internal/risk"
	"main/internal/strikes"
	"main/pkg/exception"
)

// scriptMarket serves a synthetic chain whose ATM premiums follow a
// scripted path, one step per OptionChain call.
type scriptMarket struct {
	spot   float64
	expiry time.Time
	calls  []float64
	puts   []float64
	step   int
}

func (m *scriptMarket) SpotPrice(context.Context) (float64, error) { return m.spot, nil }

func (m *scriptMarket) LatestExpiry(context.Context, time.Time) (time.Time, error) {
	return m.expiry, nil
}

func (m *scriptMarket) OptionChain(context.Context, time.Time) (model.OptionChain, error) {
	i := m.step
	if i >= len(m.calls) {
		i = len(m.calls) - 1
	}
	m.step++

	var chain model.OptionChain
	for s := -40; s <= 40; s++ {
		strike := m.spot + float64(s)*100
		chain = append(chain,
			model.OptionQuote{
				ScripID: fmt.Sprintf("C%.0f", strike), Type: enum.OptionTypeCall,
				Strike: strike, LastPrice: m.calls[i], Volume: 10,
			},
			model.OptionQuote{
				ScripID: fmt.Sprintf("P%.0f", strike), Type: enum.OptionTypePut,
				Strike: strike, LastPrice: m.puts[i], Volume: 10,
			},
		)
	}
	return chain, nil
}

func (m *scriptMarket) Quote(context.Context, string) (model.OptionQuote, error) {
	return model.OptionQuote{}, nil
}

func testConfig(capital float64) ops.Loaded {
	return ops.Loaded{
		LotSize:            25,
		NumLots:            1,
		Anchor:             ops.TimeOfDay{Hour: 9, Minute: 15},
		SessionStart:       ops.TimeOfDay{Hour: 9, Minute: 20},
		SessionEnd:         ops.TimeOfDay{Hour: 15, Minute: 15},
		DataUpdateInterval: time.Millisecond,
		Location:           time.UTC,
		Risk:               risk.Config{Capital: capital, StopLossPct: 5, TargetPct: 10, CoolOff: 300 * time.Second},
		Execution:          execution.Config{MaxRetries: 2},
		Strikes:            strikes.Config{RiskFreeRate: 0.03, DefaultVol: 0.2},
		Regime:             strikes.Thresholds{Low: 0.15, High: 0.30},
	}
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func newTestEngine(t *testing.T, market broker.MarketData, capital float64) (*Engine, *paper.Broker) {
	t.Helper()
	placer := paper.NewBroker(paper.Config{Underlying: "NIFTY", Spot: 45000})
	e := New(testConfig(capital), Deps{
		Market:  market,
		Placer:  placer,
		Metrics: obs.NewMetrics(),
		Clock:   fixedClock(),
	})
	return e, placer
}

func cycles(t *testing.T, e *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.Cycle(context.Background()))
	}
}

func TestFullLifecycleEntryToSignalExit(t *testing.T) {
	market := &scriptMarket{
		spot:   45000,
		expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		// straddle path: 200, 180 (enter), 175, 190 (crossing exit)
		calls: []float64{110, 100, 95, 100},
		puts:  []float64{90, 80, 80, 90},
	}
	e, _ := newTestEngine(t, market, 100000)

	cycles(t, e, 1)
	assert.Equal(t, position.StateFlat, e.machine.State(), "first tick defines avwap, never below it")

	cycles(t, e, 1)
	require.Equal(t, position.StateOpen, e.machine.State(), "all three series below avwap")
	assert.Equal(t, 180.0, e.machine.Position().EntryStraddle)
	assert.Len(t, e.machine.Position().LegOrders, 4)

	cycles(t, e, 1)
	assert.Equal(t, position.StateOpen, e.machine.State(), "still below avwap, no crossing")

	cycles(t, e, 1)
	assert.Equal(t, position.StateFlat, e.machine.State(), "crossing above avwap exits")
	// entered at 180, exited at 190, one lot of 25
	assert.InDelta(t, -250.0, e.realizedPnL, 1e-9)
	assert.False(t, e.emergency)
}

func TestStopLossExitsWithoutCoolOff(t *testing.T) {
	market := &scriptMarket{
		spot:   45000,
		expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		// enter at 180 then blow out to 250: pnl -1750 vs -500 stop
		calls: []float64{110, 100, 150},
		puts:  []float64{90, 80, 100},
	}
	e, _ := newTestEngine(t, market, 10000)

	cycles(t, e, 2)
	require.Equal(t, position.StateOpen, e.machine.State())

	cycles(t, e, 1)
	assert.Equal(t, position.StateFlat, e.machine.State())
	assert.InDelta(t, -1750.0, e.realizedPnL, 1e-9)
	assert.True(t, e.riskMgr.CanEnter(e.deps.Clock()), "cool-off is reserved for the emergency protocol")
}

func TestFailedEntryUnwindsAndAborts(t *testing.T) {
	market := &scriptMarket{
		spot:   45000,
		expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		calls:  []float64{110, 100, 100},
		puts:   []float64{90, 80, 80},
	}
	e, placer := newTestEngine(t, market, 100000)

	cycles(t, e, 1)
	// every attempt of the first leg fails; nothing to unwind
	placer.FailNextOrders(2)
	err := e.Cycle(context.Background())
	assert.Error(t, err)
	assert.Equal(t, position.StateFlat, e.machine.State(), "aborted entry returns to flat")
	assert.False(t, e.emergency)
}

func TestExitRetryCompletesNextCycle(t *testing.T) {
	market := &scriptMarket{
		spot:   45000,
		expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		// enter at 180, then spike to 250 to force a stop-loss exit
		calls: []float64{110, 100, 150, 150},
		puts:  []float64{90, 80, 100, 100},
	}
	e, placer := newTestEngine(t, market, 10000)

	cycles(t, e, 2)
	require.Equal(t, position.StateOpen, e.machine.State())

	// the first exit leg fails every retry, so the cycle leaves the
	// position half-exited rather than reverting to open
	placer.FailNextOrders(2)
	err := e.Cycle(context.Background())
	assert.Error(t, err)
	require.Equal(t, position.StateExiting, e.machine.State())
	assert.Len(t, e.machine.Position().PendingExit, 4)

	// next cycle retries the pending legs and completes the exit
	require.NoError(t, e.Cycle(context.Background()))
	assert.Equal(t, position.StateFlat, e.machine.State())
}

func TestEmergencyForcesExitAndArmsCoolOff(t *testing.T) {
	market := &scriptMarket{
		spot:   45000,
		expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		calls:  []float64{110, 100, 100},
		puts:   []float64{90, 80, 80},
	}
	e, _ := newTestEngine(t, market, 100000)

	cycles(t, e, 2)
	require.Equal(t, position.StateOpen, e.machine.State())

	e.runEmergency(context.Background(), "unwind failed")
	assert.True(t, e.emergency)
	require.Equal(t, position.StateExiting, e.machine.State(), "a live position winds down, it is not abandoned")
	assert.Len(t, e.machine.Position().PendingExit, 4)
	assert.False(t, e.riskMgr.CanEnter(e.deps.Clock()), "re-entry blocked for the cool-off window")

	// the next cycle closes the legs through the normal exiting path
	require.NoError(t, e.Cycle(context.Background()))
	assert.Equal(t, position.StateFlat, e.machine.State())
	assert.Nil(t, e.machine.Position())
}

func TestEmergencyWithoutPositionGoesFlat(t *testing.T) {
	market := &scriptMarket{
		spot:   45000,
		expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		calls:  []float64{110},
		puts:   []float64{90},
	}
	e, _ := newTestEngine(t, market, 100000)

	cycles(t, e, 1)
	require.Equal(t, position.StateFlat, e.machine.State())

	e.runEmergency(context.Background(), "cycle panic")
	assert.Equal(t, position.StateFlat, e.machine.State())
	assert.Nil(t, e.machine.Position())
	assert.False(t, e.riskMgr.CanEnter(e.deps.Clock()))
}

// thinMarket returns only the ATM pair on chosen cycles, starving the
// selector of OTM candidates.
type thinMarket struct {
	scriptMarket
	thin map[int]bool
}

func (m *thinMarket) OptionChain(ctx context.Context, expiry time.Time) (model.OptionChain, error) {
	call := m.step
	chain, err := m.scriptMarket.OptionChain(ctx, expiry)
	if err != nil || !m.thin[call] {
		return chain, err
	}
	var atm model.OptionChain
	for _, q := range chain {
		if q.Strike == m.spot {
			atm = append(atm, q)
		}
	}
	return atm, nil
}

func TestThinChainStillFeedsSignals(t *testing.T) {
	market := &thinMarket{
		scriptMarket: scriptMarket{
			spot:   45000,
			expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
			calls:  []float64{110, 100, 100},
			puts:   []float64{90, 80, 80},
		},
		thin: map[int]bool{1: true},
	}
	e, _ := newTestEngine(t, market, 100000)

	cycles(t, e, 1)

	err := e.Cycle(context.Background())
	assert.ErrorIs(t, err, exception.ErrStrikeNoCandidate)
	assert.Equal(t, position.StateFlat, e.machine.State(), "no entry on a stale strike set")
	assert.InDelta(t, 190.0, e.signals.Snapshot().Straddle.Value, 1e-9,
		"the thin-chain cycle still feeds the accumulators")

	// entry proceeds once the chain recovers
	cycles(t, e, 1)
	assert.Equal(t, position.StateOpen, e.machine.State())
}

func TestRunEndsAfterSession(t *testing.T) {
	market := &scriptMarket{
		spot:   45000,
		expiry: time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC),
		calls:  []float64{110},
		puts:   []float64{90},
	}
	placer := paper.NewBroker(paper.Config{Underlying: "NIFTY", Spot: 45000})

	cfg := testConfig(100000)
	e := New(cfg, Deps{
		Market:  market,
		Placer:  placer,
		Metrics: obs.NewMetrics(),
		Clock: func() time.Time {
			// already past the close: the loop must end on its own
			return time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
		},
	})

	done := make(chan struct{})
	var summary Summary
	var err error
	go func() {
		summary, err = e.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not end after session close")
	}
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Cycles)
	assert.False(t, summary.Emergency)
}
