// Package execution places multi-leg condor orders through a broker
// with bounded retries. Entry buys the protective longs before selling
// the shorts; exit buys the shorts back first. A failed entry hands the
// already-placed legs back so the caller can unwind them.
package execution

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// Config bounds the retry loop. Every placement attempt runs under its
// own AttemptTimeout; RetryBackoff separates consecutive attempts.
type Config struct {
	MaxRetries     int           `json:"maxRetries"`
	RetryBackoff   time.Duration `json:"retryBackoff"`
	AttemptTimeout time.Duration `json:"attemptTimeout"`
}

// Engine submits leg orders with retry and sequencing policy.
type Engine struct {
	placer broker.OrderPlacer
	cfg    Config
}

// NewEngine creates an engine. MaxRetries below one is clamped to one
// attempt.
func NewEngine(placer broker.OrderPlacer, cfg Config) *Engine {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Engine{placer: placer, cfg: cfg}
}

// entrySide maps a leg to the side it trades on entry.
func entrySide(leg enum.Leg) enum.OrderSide {
	if leg.IsShort() {
		return enum.OrderSideSell
	}
	return enum.OrderSideBuy
}

// PlaceLeg submits one leg, retrying up to MaxRetries attempts. A
// rejection or an empty order ID counts as a failed attempt like a
// transport error does. The result always carries the attempt count.
//
// The broker interface has no idempotency key, so a retry after a
// timed-out attempt that actually filled can duplicate the fill.
func (e *Engine) PlaceLeg(ctx context.Context, req model.OrderRequest) (model.LegResult, error) {
	if !req.Leg.IsAvailable() || !req.Side.IsAvailable() || !req.Style.IsAvailable() ||
		req.Quantity <= 0 || req.ScripID == "" {
		return model.LegResult{}, errors.Wrapf(exception.ErrExecutionInvalidRequest, "leg=%s scrip=%q qty=%d", req.Leg, req.ScripID, req.Quantity)
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 1 && e.cfg.RetryBackoff > 0 {
			timer := time.NewTimer(e.cfg.RetryBackoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return model.LegResult{Attempts: attempt - 1, Err: ctx.Err()}, ctx.Err()
			case <-timer.C:
			}
		}

		resp, err := e.place(ctx, req)
		switch {
		case err != nil:
			lastErr = err
		case !resp.OK:
			lastErr = errors.Wrapf(exception.ErrExecutionRejected, "reason=%q", resp.Reason)
		case resp.OrderID == "":
			lastErr = exception.ErrExecutionEmptyOrderID
		default:
			return model.LegResult{OrderID: resp.OrderID, Attempts: attempt}, nil
		}
		logs.Errorf("execution: %s %s attempt %d/%d failed: %v", req.Side, req.Leg, attempt, e.cfg.MaxRetries, lastErr)
	}

	err := errors.Wrapf(exception.ErrExecutionExhausted, "%s %s after %d attempts: %v", req.Side, req.Leg, e.cfg.MaxRetries, lastErr)
	return model.LegResult{Attempts: e.cfg.MaxRetries, Err: err}, err
}

func (e *Engine) place(ctx context.Context, req model.OrderRequest) (model.OrderResponse, error) {
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}
	return e.placer.PlaceOrder(ctx, req)
}

// EnterCondor places the four entry legs in sequence. On failure the
// returned map holds the legs already placed so the caller can Unwind
// them; the position must not be confirmed open.
func (e *Engine) EnterCondor(ctx context.Context, strikes model.StrikeSet, qty int) (map[enum.Leg]string, error) {
	placed := make(map[enum.Leg]string, 4)
	for _, leg := range enum.EntryOrder() {
		res, err := e.PlaceLeg(ctx, model.OrderRequest{
			Leg:      leg,
			ScripID:  strikes.Quote(leg).ScripID,
			Side:     entrySide(leg),
			Quantity: qty,
			Style:    enum.OrderStyleMarket,
		})
		if err != nil {
			return placed, errors.Wrapf(err, "enter %s", leg)
		}
		placed[leg] = res.OrderID
		logs.Infof("execution: entered %s order_id=%s attempts=%d", leg, res.OrderID, res.Attempts)
	}
	return placed, nil
}

// Unwind reverses the legs placed by a failed entry, shorts first. Legs
// absent from placed were never filled and are skipped. An unwind
// failure leaves live exposure and must escalate to the emergency
// protocol.
func (e *Engine) Unwind(ctx context.Context, strikes model.StrikeSet, qty int, placed map[enum.Leg]string) error {
	for _, leg := range enum.ExitOrder() {
		if _, ok := placed[leg]; !ok {
			continue
		}
		res, err := e.PlaceLeg(ctx, model.OrderRequest{
			Leg:      leg,
			ScripID:  strikes.Quote(leg).ScripID,
			Side:     entrySide(leg).Reverse(),
			Quantity: qty,
			Style:    enum.OrderStyleMarket,
		})
		if err != nil {
			return errors.Wrapf(err, "unwind %s", leg)
		}
		logs.Infof("execution: unwound %s order_id=%s", leg, res.OrderID)
	}
	return nil
}

// ExitCondor closes the pending legs in the given order, returning the
// legs that closed. On failure the caller marks the closed legs and
// retries the remainder on the next cycle, so no leg closes twice.
func (e *Engine) ExitCondor(ctx context.Context, strikes model.StrikeSet, qty int, pending []enum.Leg) ([]enum.Leg, error) {
	closed := make([]enum.Leg, 0, len(pending))
	for _, leg := range pending {
		res, err := e.PlaceLeg(ctx, model.OrderRequest{
			Leg:      leg,
			ScripID:  strikes.Quote(leg).ScripID,
			Side:     entrySide(leg).Reverse(),
			Quantity: qty,
			Style:    enum.OrderStyleMarket,
		})
		if err != nil {
			return closed, errors.Wrapf(err, "exit %s", leg)
		}
		closed = append(closed, leg)
		logs.Infof("execution: exited %s order_id=%s attempts=%d", leg, res.OrderID, res.Attempts)
	}
	return closed, nil
}

// CancelAll cancels every working order at the broker.
func (e *Engine) CancelAll(ctx context.Context) error {
	return e.placer.CancelAll(ctx)
}
