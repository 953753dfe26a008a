// Package paper simulates a brokerage in process: a random-walk spot,
// a Black-Scholes-quoted option chain, and always-filling orders with
// optional injected failures. It backs paper-trading mode and the
// engine tests.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/pricing"
	"main/pkg/exception"
)

// Config shapes the simulated market.
type Config struct {
	Underlying   string
	Spot         float64
	StrikeStep   float64
	ChainWidth   int
	Expiry       time.Time
	Vol          float64
	RiskFreeRate float64
	TickInterval time.Duration
	Seed         int64
}

// Broker is a thread-safe in-process simulator.
type Broker struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand

	spot      float64
	nextOrder int
	open      int

	failNext     int
	rejectReason string
}

// NewBroker creates a simulator seeded for reproducible runs.
func NewBroker(cfg Config) *Broker {
	if cfg.Spot == 0 {
		cfg.Spot = 45000
	}
	if cfg.StrikeStep == 0 {
		cfg.StrikeStep = 100
	}
	if cfg.ChainWidth == 0 {
		cfg.ChainWidth = 20
	}
	if cfg.Vol == 0 {
		cfg.Vol = 0.2
	}
	if cfg.TickInterval == 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	return &Broker{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		spot: cfg.Spot,
	}
}

// FailNextOrders injects n placement failures before orders fill again.
func (b *Broker) FailNextOrders(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = n
}

// RejectOrders makes every placement come back rejected with the given
// reason until cleared with an empty string.
func (b *Broker) RejectOrders(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectReason = reason
}

// Step advances the spot one random-walk increment.
func (b *Broker) Step() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spot *= 1 + b.rng.NormFloat64()*0.0005
	return b.spot
}

func (b *Broker) SpotPrice(context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spot, nil
}

func (b *Broker) LatestExpiry(_ context.Context, now time.Time) (time.Time, error) {
	if b.cfg.Expiry.Before(now) {
		return time.Time{}, exception.ErrBrokerNoExpiry
	}
	return b.cfg.Expiry, nil
}

// OptionChain quotes every strike off the closed-form model at the
// current spot.
func (b *Broker) OptionChain(_ context.Context, expiry time.Time) (model.OptionChain, error) {
	b.mu.Lock()
	spot := b.spot
	b.mu.Unlock()

	yearsToExpiry := expiry.Sub(time.Now()).Seconds() / (365 * 24 * 3600)
	if yearsToExpiry <= 0 {
		yearsToExpiry = 1.0 / 365
	}

	atm := b.cfg.StrikeStep * float64(int(spot/b.cfg.StrikeStep+0.5))
	chain := make(model.OptionChain, 0, 2*(2*b.cfg.ChainWidth+1))
	for i := -b.cfg.ChainWidth; i <= b.cfg.ChainWidth; i++ {
		strike := atm + float64(i)*b.cfg.StrikeStep
		for _, optType := range []enum.OptionType{enum.OptionTypeCall, enum.OptionTypePut} {
			premium, err := pricing.Price(optType, spot, strike, yearsToExpiry, b.cfg.RiskFreeRate, b.cfg.Vol)
			if err != nil {
				return nil, err
			}
			chain = append(chain, model.OptionQuote{
				ScripID:   scripID(b.cfg.Underlying, optType, strike),
				Type:      optType,
				Strike:    strike,
				LastPrice: premium,
				Volume:    float64(100 + b.rng.Intn(900)),
			})
		}
	}
	return chain, nil
}

func (b *Broker) Quote(ctx context.Context, scripID string) (model.OptionQuote, error) {
	chain, err := b.OptionChain(ctx, b.cfg.Expiry)
	if err != nil {
		return model.OptionQuote{}, err
	}
	for _, q := range chain {
		if q.ScripID == scripID {
			return q, nil
		}
	}
	return model.OptionQuote{}, exception.ErrBrokerResponse
}

func (b *Broker) PlaceOrder(_ context.Context, req model.OrderRequest) (model.OrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failNext > 0 {
		b.failNext--
		return model.OrderResponse{}, fmt.Errorf("paper: injected transport failure")
	}
	if b.rejectReason != "" {
		return model.OrderResponse{OK: false, Reason: b.rejectReason}, nil
	}

	b.nextOrder++
	b.open++
	return model.OrderResponse{OK: true, OrderID: fmt.Sprintf("paper-%d", b.nextOrder)}, nil
}

func (b *Broker) CancelAll(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = 0
	return nil
}

// SubscribeTicks emits synthetic underlying prints until the context
// ends.
func (b *Broker) SubscribeTicks(ctx context.Context, scripID string) (<-chan model.Tick, func(), error) {
	out := make(chan model.Tick, 64)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }

	go func() {
		defer close(out)
		ticker := time.NewTicker(b.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				b.mu.Lock()
				volume := float64(1 + b.rng.Intn(50))
				b.mu.Unlock()
				tick := model.Tick{
					ScripID: scripID,
					Price:   b.Step(),
					Volume:  volume,
					Time:    time.Now(),
				}
				select {
				case out <- tick:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}

func scripID(underlying string, optType enum.OptionType, strike float64) string {
	suffix := "CE"
	if optType == enum.OptionTypePut {
		suffix = "PE"
	}
	return fmt.Sprintf("%s%.0f%s", underlying, strike, suffix)
}
