package paper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
	"main/internal/model/enum"
)

func testBroker() *Broker {
	return NewBroker(Config{
		Underlying:   "NIFTY",
		Spot:         45000,
		RiskFreeRate: 0.03,
		Expiry:       time.Now().AddDate(0, 0, 14),
		TickInterval: time.Millisecond,
		Seed:         1,
	})
}

func TestOptionChainShape(t *testing.T) {
	b := testBroker()
	chain, err := b.OptionChain(context.Background(), b.cfg.Expiry)
	require.NoError(t, err)
	require.Len(t, chain, 2*(2*b.cfg.ChainWidth+1))

	byStrike := map[float64]map[enum.OptionType]model.OptionQuote{}
	for _, q := range chain {
		assert.Positive(t, q.LastPrice, "scrip %s", q.ScripID)
		assert.Positive(t, q.Volume)
		if byStrike[q.Strike] == nil {
			byStrike[q.Strike] = map[enum.OptionType]model.OptionQuote{}
		}
		byStrike[q.Strike][q.Type] = q
	}
	for strike, pair := range byStrike {
		assert.Len(t, pair, 2, "strike %.0f needs both a call and a put", strike)
	}

	// deep calls are worth more than far OTM calls
	lowCall, _ := b.Quote(context.Background(), scripID("NIFTY", enum.OptionTypeCall, 43000))
	highCall, _ := b.Quote(context.Background(), scripID("NIFTY", enum.OptionTypeCall, 47000))
	assert.Greater(t, lowCall.LastPrice, highCall.LastPrice)
}

func TestFailureInjection(t *testing.T) {
	b := testBroker()
	b.FailNextOrders(1)

	_, err := b.PlaceOrder(context.Background(), model.OrderRequest{})
	assert.Error(t, err)

	resp, err := b.PlaceOrder(context.Background(), model.OrderRequest{})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "paper-1", resp.OrderID)

	b.RejectOrders("margin")
	resp, err = b.PlaceOrder(context.Background(), model.OrderRequest{})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Equal(t, "margin", resp.Reason)
}

func TestSubscribeTicksEmitsAndStops(t *testing.T) {
	b := testBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks, unsubscribe, err := b.SubscribeTicks(ctx, "NIFTY")
	require.NoError(t, err)

	select {
	case tick := <-ticks:
		assert.Equal(t, "NIFTY", tick.ScripID)
		assert.Positive(t, tick.Price)
		assert.Positive(t, tick.Volume)
	case <-time.After(time.Second):
		t.Fatal("no tick emitted")
	}

	unsubscribe()
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ticks:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("tick channel not closed after unsubscribe")
		}
	}
}
