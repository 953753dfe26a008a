package execution

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// fakePlacer scripts per-scrip outcomes and records every request.
type fakePlacer struct {
	requests []model.OrderRequest
	// failures maps scrip id to the number of attempts that fail
	// before one succeeds.
	failures map[string]int
	// reject maps scrip id to a permanent broker rejection.
	reject map[string]string
	seen   map[string]int
	nextID int
}

func newFakePlacer() *fakePlacer {
	return &fakePlacer{
		failures: map[string]int{},
		reject:   map[string]string{},
		seen:     map[string]int{},
	}
}

func (f *fakePlacer) PlaceOrder(_ context.Context, req model.OrderRequest) (model.OrderResponse, error) {
	f.requests = append(f.requests, req)
	f.seen[req.ScripID]++
	if reason, ok := f.reject[req.ScripID]; ok {
		return model.OrderResponse{OK: false, Reason: reason}, nil
	}
	if f.seen[req.ScripID] <= f.failures[req.ScripID] {
		return model.OrderResponse{}, fmt.Errorf("connection reset")
	}
	f.nextID++
	return model.OrderResponse{OK: true, OrderID: fmt.Sprintf("ord-%d", f.nextID)}, nil
}

func (f *fakePlacer) CancelAll(context.Context) error { return nil }

func testStrikes() model.StrikeSet {
	return model.StrikeSet{
		ATMStrike: 45000,
		ATMCall:   model.OptionQuote{ScripID: "AC", Type: enum.OptionTypeCall, Strike: 45000},
		ATMPut:    model.OptionQuote{ScripID: "AP", Type: enum.OptionTypePut, Strike: 45000},
		ShortCall: model.OptionQuote{ScripID: "SC", Type: enum.OptionTypeCall, Strike: 45400},
		LongCall:  model.OptionQuote{ScripID: "LC", Type: enum.OptionTypeCall, Strike: 45800},
		ShortPut:  model.OptionQuote{ScripID: "SP", Type: enum.OptionTypePut, Strike: 44600},
		LongPut:   model.OptionQuote{ScripID: "LP", Type: enum.OptionTypePut, Strike: 44200},
	}
}

func testEngine(p *fakePlacer) *Engine {
	// zero backoff keeps tests instant
	return NewEngine(p, Config{MaxRetries: 3})
}

func TestPlaceLegRetriesThenSucceeds(t *testing.T) {
	p := newFakePlacer()
	p.failures["SC"] = 2

	res, err := testEngine(p).PlaceLeg(context.Background(), model.OrderRequest{
		Leg: enum.LegShortCall, ScripID: "SC", Side: enum.OrderSideSell, Quantity: 25, Style: enum.OrderStyleMarket,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "ord-1", res.OrderID)
}

func TestPlaceLegExhaustsRetries(t *testing.T) {
	p := newFakePlacer()
	p.failures["SC"] = 99

	res, err := testEngine(p).PlaceLeg(context.Background(), model.OrderRequest{
		Leg: enum.LegShortCall, ScripID: "SC", Side: enum.OrderSideSell, Quantity: 25, Style: enum.OrderStyleMarket,
	})
	assert.ErrorIs(t, err, exception.ErrExecutionExhausted)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 3, p.seen["SC"], "exactly maxRetries attempts")
}

func TestPlaceLegRejectionExhausts(t *testing.T) {
	p := newFakePlacer()
	p.reject["SC"] = "insufficient margin"

	_, err := testEngine(p).PlaceLeg(context.Background(), model.OrderRequest{
		Leg: enum.LegShortCall, ScripID: "SC", Side: enum.OrderSideSell, Quantity: 25, Style: enum.OrderStyleMarket,
	})
	assert.ErrorIs(t, err, exception.ErrExecutionExhausted)
}

func TestPlaceLegInvalidRequest(t *testing.T) {
	p := newFakePlacer()
	_, err := testEngine(p).PlaceLeg(context.Background(), model.OrderRequest{})
	assert.ErrorIs(t, err, exception.ErrExecutionInvalidRequest)
	assert.Empty(t, p.requests, "invalid requests never reach the broker")
}

func TestEnterCondorSequencing(t *testing.T) {
	p := newFakePlacer()
	placed, err := testEngine(p).EnterCondor(context.Background(), testStrikes(), 25)
	require.NoError(t, err)
	assert.Len(t, placed, 4)

	// longs bought before shorts are sold
	var order []string
	for _, r := range p.requests {
		order = append(order, r.ScripID)
		if r.Leg.IsShort() {
			assert.Equal(t, enum.OrderSideSell, r.Side)
		} else {
			assert.Equal(t, enum.OrderSideBuy, r.Side)
		}
		assert.Equal(t, 25, r.Quantity)
	}
	assert.Equal(t, []string{"LC", "LP", "SC", "SP"}, order)
}

func TestEnterCondorPartialFailureReturnsPlacedLegs(t *testing.T) {
	p := newFakePlacer()
	p.failures["SC"] = 99

	placed, err := testEngine(p).EnterCondor(context.Background(), testStrikes(), 25)
	assert.ErrorIs(t, err, exception.ErrExecutionExhausted)

	// both longs were placed before the short call failed
	assert.Len(t, placed, 2)
	assert.Contains(t, placed, enum.LegLongCall)
	assert.Contains(t, placed, enum.LegLongPut)

	// unwind reverses only the placed legs
	p2 := newFakePlacer()
	require.NoError(t, testEngine(p2).Unwind(context.Background(), testStrikes(), 25, placed))
	assert.Len(t, p2.requests, 2)
	for _, r := range p2.requests {
		assert.Equal(t, enum.OrderSideSell, r.Side, "long legs sell back on unwind")
	}
}

func TestExitCondorSkipsClosedLegs(t *testing.T) {
	p := newFakePlacer()

	// only two legs still pending: the shorts already closed
	pending := []enum.Leg{enum.LegLongCall, enum.LegLongPut}
	closed, err := testEngine(p).ExitCondor(context.Background(), testStrikes(), 25, pending)
	require.NoError(t, err)
	assert.Equal(t, pending, closed)
	assert.Len(t, p.requests, 2)
}

func TestExitCondorPartialFailure(t *testing.T) {
	p := newFakePlacer()
	p.failures["LC"] = 99

	pending := enum.ExitOrder()
	closed, err := testEngine(p).ExitCondor(context.Background(), testStrikes(), 25, pending)
	assert.ErrorIs(t, err, exception.ErrExecutionExhausted)

	// shorts closed before the long call failed
	assert.Equal(t, []enum.Leg{enum.LegShortCall, enum.LegShortPut}, closed)
}

func TestExitSidesReverseEntry(t *testing.T) {
	p := newFakePlacer()
	_, err := testEngine(p).ExitCondor(context.Background(), testStrikes(), 25, enum.ExitOrder())
	require.NoError(t, err)

	for _, r := range p.requests {
		if r.Leg.IsShort() {
			assert.Equal(t, enum.OrderSideBuy, r.Side, "shorts are bought back")
		} else {
			assert.Equal(t, enum.OrderSideSell, r.Side, "longs are sold")
		}
	}
}
