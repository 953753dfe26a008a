// Package broker defines the market-data and order surfaces the engine
// trades through. Implementations live in subpackages: rest speaks to
// a live brokerage, paper simulates one in process.
package broker

import (
	"context"
	"time"

	"main/internal/model"
)

// MarketData serves the quote snapshots the trading cycle consumes.
type MarketData interface {
	// SpotPrice returns the last traded price of the underlying.
	SpotPrice(ctx context.Context) (float64, error)

	// LatestExpiry resolves the nearest eligible option expiry at or
	// after now.
	LatestExpiry(ctx context.Context, now time.Time) (time.Time, error)

	// OptionChain returns every quoted strike for the expiry.
	OptionChain(ctx context.Context, expiry time.Time) (model.OptionChain, error)

	// Quote returns the latest quote for a single scrip.
	Quote(ctx context.Context, scripID string) (model.OptionQuote, error)
}

// TickStream pushes underlying trades for the AVWAP accumulators.
// Cancel the returned function to stop the stream; the channel closes
// after cancellation or stream failure.
type TickStream interface {
	SubscribeTicks(ctx context.Context, scripID string) (<-chan model.Tick, func(), error)
}

// OrderPlacer submits and cancels orders. PlaceOrder returns a
// rejection through OrderResponse.OK, not an error; errors mean the
// request never reached a decision.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResponse, error)
	CancelAll(ctx context.Context) error
}
