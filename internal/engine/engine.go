// Package engine runs the trading session: refresh market data, fold
// the AVWAP streams, drive the position lifecycle, place orders, and
// journal every decision. One Engine owns one session.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/bus"
	"main/internal/execution"
	"main/internal/journal"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/portfolio"
	"main/internal/position"
	"main/internal/pricing"
	"main/internal/risk"
	"main/internal/signal"
	"main/internal/strikes"
	"main/pkg/exception"
)

// Deps are the session's external surfaces. Clock defaults to
// time.Now; tests inject a fixed one.
type Deps struct {
	Market    broker.MarketData
	Placer    broker.OrderPlacer
	Writer    *journal.Writer
	Dashboard *journal.Dashboard
	PG        *journal.PGStore
	Metrics   *obs.Metrics
	Clock     func() time.Time
}

// Summary reports the session outcome.
type Summary struct {
	Cycles      int
	RealizedPnL float64
	Emergency   bool
}

// Engine is the per-session trading loop.
type Engine struct {
	cfg  ops.Loaded
	deps Deps

	signals  *signal.Engine
	machine  *position.Machine
	selector *strikes.Selector
	riskMgr  *risk.Manager
	exec     *execution.Engine
	queue    *bus.Queue

	expiry      time.Time
	current     model.StrikeSet
	hasStrikes  bool
	lastPnL     float64
	realizedPnL float64
	cycles      int
	emergency   bool
	regime      enum.Regime
	vol         *volEstimator
}

// New assembles a session engine.
func New(cfg ops.Loaded, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Metrics == nil {
		deps.Metrics = obs.NewMetrics()
	}
	anchor := cfg.Anchor.At(deps.Clock(), cfg.Location)
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		signals:  signal.NewEngine(anchor),
		machine:  position.NewMachine(cfg.LotSize, cfg.NumLots),
		selector: strikes.NewSelector(cfg.Strikes),
		riskMgr:  risk.NewManager(cfg.Risk),
		exec:     execution.NewEngine(deps.Placer, cfg.Execution),
		queue:    bus.NewQueue(1024),
		regime:   enum.RegimeMedium,
		vol:      newVolEstimator(cfg.DataUpdateInterval, cfg.Strikes.DefaultVol),
	}
}

// Run executes the session until the context ends or the trading
// window closes, then returns the summary.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	if e.deps.Writer != nil {
		if err := e.deps.Writer.Start(ctx); err != nil {
			return Summary{}, errors.Wrap(err, "start journal")
		}
		defer e.deps.Writer.Close()
	}

	pumpCtx, stopPump := context.WithCancel(context.Background())
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		e.queue.Run(pumpCtx, e.sink)
	}()
	defer func() {
		e.queue.Close()
		<-pumpDone
		stopPump()
	}()

	e.emit(model.EventSystemStart, fmt.Sprintf("session %s-%s anchor=%s", e.cfg.SessionStart, e.cfg.SessionEnd, e.cfg.Anchor), "")

	ticker := time.NewTicker(e.cfg.DataUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.shutdown(ctx)
			return e.summary(), ctx.Err()
		case <-ticker.C:
			now := e.deps.Clock()
			if e.afterSession(now) {
				e.shutdown(ctx)
				if e.emergency {
					return e.summary(), exception.ErrEmergencyFault
				}
				return e.summary(), nil
			}
			if !e.inSession(now) {
				continue
			}
			// An emergency flattens the book and arms the cool-off; the
			// loop keeps running and the cool-off gate blocks re-entry.
			if err := e.Cycle(ctx); err != nil {
				logs.Errorf("engine: cycle failed: %v", err)
			}
		}
	}
}

// Cycle runs one refresh-decide-act iteration. A panic anywhere in the
// cycle escalates to the emergency protocol instead of crashing with a
// live position.
func (e *Engine) Cycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("cycle panic: %v", r)
			e.runEmergency(ctx, fmt.Sprintf("panic: %v", r))
		}
	}()

	started := time.Now()
	defer func() { e.deps.Metrics.ObserveCycle(time.Since(started)) }()
	e.cycles++

	now := e.deps.Clock()
	spot, err := e.deps.Market.SpotPrice(ctx)
	if err != nil {
		return errors.Wrap(err, "spot price")
	}
	e.observeVol(spot)

	if e.expiry.IsZero() {
		e.expiry, err = e.deps.Market.LatestExpiry(ctx, now)
		if err != nil {
			return errors.Wrap(err, "resolve expiry")
		}
	}

	chain, err := e.deps.Market.OptionChain(ctx, e.expiry)
	if err != nil {
		return errors.Wrap(err, "option chain")
	}
	e.emit(model.EventDataUpdate, fmt.Sprintf("spot=%.2f chain=%d", spot, len(chain)), "")

	var selectErr error
	if e.machine.State() == position.StateFlat {
		e.regime = e.cfg.Regime.RegimeFromVol(e.vol.value())
		set, err := e.selector.Select(chain, spot, now, e.expiry, e.regime)
		if err != nil {
			// a transiently thin chain must not stall the anchor
			// accumulation: keep the streams fed off the prior ATM pair
			selectErr = errors.Wrap(err, "select strikes")
			if e.hasStrikes {
				e.refreshQuotes(chain)
			}
		} else {
			e.current = set
			e.hasStrikes = true
		}
	} else if e.hasStrikes {
		e.refreshQuotes(chain)
	}
	if !e.hasStrikes {
		return selectErr
	}

	snap, err := e.signals.UpdateQuotes(e.current.ATMCall, e.current.ATMPut)
	if err != nil {
		return errors.Wrap(err, "update signals")
	}
	straddle := e.current.Straddle()

	var stepErr error
	switch e.machine.State() {
	case position.StateFlat:
		if selectErr != nil {
			// no entry decision on a stale strike set
			stepErr = selectErr
		} else {
			stepErr = e.stepFlat(ctx, now, straddle, snap)
		}
	case position.StateOpen:
		stepErr = e.stepOpen(ctx, straddle, snap)
	case position.StateExiting:
		stepErr = e.stepExiting(ctx, straddle)
	}
	e.writeDashboard()
	return stepErr
}

func (e *Engine) stepFlat(ctx context.Context, now time.Time, straddle float64, snap signal.Snapshot) error {
	if !e.riskMgr.CanEnter(now) {
		return nil
	}
	if !e.machine.EntrySignal(straddle, e.current.ATMCall.LastPrice, e.current.ATMPut.LastPrice, snap) {
		return nil
	}
	e.emit(model.EventEntrySignal, fmt.Sprintf("straddle=%.2f avwap=%.2f regime=%s", straddle, snap.Straddle.Value, e.regime), "")

	if err := e.machine.BeginEntry(); err != nil {
		return err
	}
	e.emit(model.EventStateTransition, "FLAT -> ENTERING", "")

	flowStart := time.Now()
	qty := e.cfg.LotSize * e.cfg.NumLots
	placed, err := e.exec.EnterCondor(ctx, e.current, qty)
	e.deps.Metrics.ObserveOrderFlow(time.Since(flowStart))
	if err != nil {
		e.emit(model.EventPartialEntry, fmt.Sprintf("placed=%d/4: %v", len(placed), err), "")
		if uerr := e.exec.Unwind(ctx, e.current, qty, placed); uerr != nil {
			e.runEmergency(ctx, fmt.Sprintf("unwind failed: %v", uerr))
			return uerr
		}
		if aerr := e.machine.AbortEntry(); aerr != nil {
			return aerr
		}
		e.emit(model.EventStateTransition, "ENTERING -> FLAT (aborted)", "")
		return err
	}

	for leg, orderID := range placed {
		e.emit(model.EventOrderPlaced, leg.String(), orderID)
	}
	if err := e.machine.ConfirmEntry(e.current, straddle, placed, now); err != nil {
		return err
	}
	e.emit(model.EventStateTransition, fmt.Sprintf("ENTERING -> OPEN entry_straddle=%.2f", straddle), "")
	return nil
}

func (e *Engine) stepOpen(ctx context.Context, straddle float64, snap signal.Snapshot) error {
	pnl, err := e.machine.PnL(straddle)
	if err != nil {
		return err
	}
	e.lastPnL = pnl

	riskStart := time.Now()
	trigger := e.riskMgr.Check(pnl)
	e.deps.Metrics.ObserveRiskEval(time.Since(riskStart))
	e.deps.Metrics.IncRiskTrigger(uint16(trigger))

	exitBySignal := e.machine.ShouldExit(straddle, snap.Straddle)

	if trigger == risk.TriggerNone && !exitBySignal {
		return nil
	}
	if trigger != risk.TriggerNone {
		e.emit(model.EventRiskTrigger, fmt.Sprintf("%s pnl=%.2f", trigger, pnl), "")
	}
	if exitBySignal {
		e.emit(model.EventExitSignal, fmt.Sprintf("straddle=%.2f avwap=%.2f", straddle, snap.Straddle.Value), "")
	}

	if err := e.machine.BeginExit(); err != nil {
		return err
	}
	e.emit(model.EventStateTransition, "OPEN -> EXITING", "")
	return e.stepExiting(ctx, straddle)
}

func (e *Engine) stepExiting(ctx context.Context, straddle float64) error {
	pos := e.machine.Position()
	if pos == nil {
		return exception.ErrPositionNotOpen
	}
	qty := e.cfg.LotSize * e.cfg.NumLots

	closed, err := e.exec.ExitCondor(ctx, pos.Strikes, qty, pos.PendingExit)
	if merr := e.machine.MarkLegsClosed(closed); merr != nil {
		return merr
	}
	if err != nil {
		e.emit(model.EventExitRetryPending, fmt.Sprintf("closed=%d remaining=%d: %v", len(closed), len(pos.PendingExit), err), "")
		return err
	}

	archived, err := e.machine.ConfirmExit()
	if err != nil {
		if errors.Is(err, exception.ErrPositionExitRetryPending) {
			e.emit(model.EventExitRetryPending, fmt.Sprintf("remaining=%d", len(pos.PendingExit)), "")
		}
		return err
	}

	pnl := (archived.EntryStraddle - straddle) * float64(qty)
	e.realizedPnL += pnl
	e.lastPnL = 0
	e.emit(model.EventStateTransition, fmt.Sprintf("EXITING -> FLAT pnl=%.2f", pnl), "")
	return nil
}

// runEmergency is the last-resort protocol: cancel everything at the
// broker, force a live position into Exiting so later cycles close its
// legs, and block re-entry for the cool-off window. With no position
// record there is nothing to wind down and the machine goes Flat.
func (e *Engine) runEmergency(ctx context.Context, reason string) {
	e.emergency = true
	e.emit(model.EventEmergencyFault, reason, "")
	logs.Errorf("engine: emergency protocol: %s", reason)

	if err := e.exec.CancelAll(ctx); err != nil {
		logs.Errorf("engine: emergency cancel-all failed: %v", err)
	}
	switch e.machine.State() {
	case position.StateOpen:
		if err := e.machine.BeginExit(); err == nil {
			e.emit(model.EventStateTransition, "OPEN -> EXITING (emergency)", "")
		}
	case position.StateExiting:
		// already winding down, keep the pending legs
	default:
		e.machine.ForceFlat()
	}
	e.riskMgr.StartCoolOff(e.deps.Clock())
}

func (e *Engine) shutdown(ctx context.Context) {
	if e.machine.State() == position.StateOpen {
		if err := e.machine.BeginExit(); err == nil {
			e.emit(model.EventStateTransition, "OPEN -> EXITING (session end)", "")
		}
	}
	if e.machine.State() == position.StateExiting && e.hasStrikes {
		if err := e.stepExiting(ctx, e.current.Straddle()); err != nil {
			logs.Errorf("engine: session-end exit incomplete: %v", err)
		}
	}
	e.emit(model.EventSessionEnd, fmt.Sprintf("cycles=%d realized_pnl=%.2f", e.cycles, e.realizedPnL), "")
	e.writeDashboard()
}

// sink drains the event queue into the configured stores.
func (e *Engine) sink(event model.Event) {
	e.deps.Metrics.IncEvent(event.Type)
	if e.deps.Writer != nil {
		if err := e.deps.Writer.TryAppend(event); err != nil {
			e.deps.Metrics.IncJournalDrop()
		}
	}
	if e.deps.PG != nil {
		if err := e.deps.PG.Append(context.Background(), event); err != nil {
			logs.Errorf("engine: pg append failed: %v", err)
		}
	}
}

func (e *Engine) emit(t model.EventType, details, orderID string) {
	err := e.queue.TryPublish(model.Event{
		TsNano:  e.deps.Clock().UnixNano(),
		Type:    t,
		Details: details,
		OrderID: orderID,
	})
	if err != nil {
		e.deps.Metrics.IncJournalDrop()
	}
}

func (e *Engine) writeDashboard() {
	if e.deps.Dashboard == nil {
		return
	}
	snap := e.signals.Snapshot()
	var greeks pricing.Greeks
	if e.machine.State() == position.StateOpen && e.hasStrikes {
		yearsToExpiry := e.expiry.Sub(e.deps.Clock()).Seconds() / (365 * 24 * 3600)
		g, err := portfolio.CondorGreeks(e.current, e.cfg.LotSize*e.cfg.NumLots,
			e.vol.lastSpot, yearsToExpiry, e.cfg.Strikes.RiskFreeRate, e.vol.value())
		if err == nil {
			greeks = g
		}
	}
	row := journal.DashboardRow{
		TsNano:        e.deps.Clock().UnixNano(),
		State:         e.machine.State().String(),
		Spot:          e.vol.lastSpot,
		Straddle:      e.current.Straddle(),
		AvwapStraddle: snap.Straddle.Value,
		PnL:           e.lastPnL,
		Regime:        e.regime.String(),
		Greeks:        greeks,
		CoolOff:       !e.riskMgr.CanEnter(e.deps.Clock()),
	}
	if err := e.deps.Dashboard.Write(row); err != nil {
		logs.Errorf("engine: dashboard write failed: %v", err)
	}
}

// refreshQuotes re-reads the held legs' quotes from the latest chain
// so marks track the market while a position is on.
func (e *Engine) refreshQuotes(chain model.OptionChain) {
	byScrip := make(map[string]model.OptionQuote, len(chain))
	for _, q := range chain {
		byScrip[q.ScripID] = q
	}
	update := func(q *model.OptionQuote) {
		if fresh, ok := byScrip[q.ScripID]; ok {
			*q = fresh
		}
	}
	update(&e.current.ATMCall)
	update(&e.current.ATMPut)
	update(&e.current.ShortCall)
	update(&e.current.LongCall)
	update(&e.current.ShortPut)
	update(&e.current.LongPut)
}

func (e *Engine) inSession(now time.Time) bool {
	start := e.cfg.SessionStart.At(now, e.cfg.Location)
	end := e.cfg.SessionEnd.At(now, e.cfg.Location)
	return !now.Before(start) && now.Before(end)
}

func (e *Engine) afterSession(now time.Time) bool {
	return !now.Before(e.cfg.SessionEnd.At(now, e.cfg.Location))
}

func (e *Engine) observeVol(spot float64) {
	e.vol.observe(spot)
}

func (e *Engine) summary() Summary {
	return Summary{Cycles: e.cycles, RealizedPnL: e.realizedPnL, Emergency: e.emergency}
}

// volEstimator tracks an exponentially weighted variance of per-cycle
// log returns, annualized by the update interval. Until enough samples
// arrive it reports the configured default.
type volEstimator struct {
	perYear    float64
	defaultVol float64
	lastSpot   float64
	variance   float64
	samples    int
}

const (
	volDecay      = 0.94
	volMinSamples = 30
)

func newVolEstimator(interval time.Duration, defaultVol float64) *volEstimator {
	secs := interval.Seconds()
	if secs <= 0 {
		secs = 1
	}
	return &volEstimator{
		perYear:    365 * 24 * 3600 / secs,
		defaultVol: defaultVol,
	}
}

func (v *volEstimator) observe(spot float64) {
	if spot <= 0 {
		return
	}
	if v.lastSpot > 0 {
		r := math.Log(spot / v.lastSpot)
		v.variance = volDecay*v.variance + (1-volDecay)*r*r
		v.samples++
	}
	v.lastSpot = spot
}

func (v *volEstimator) value() float64 {
	if v.samples < volMinSamples {
		return v.defaultVol
	}
	return math.Sqrt(v.variance * v.perYear)
}
