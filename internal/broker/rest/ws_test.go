package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/model"
)

func TestTickFrameDecoding(t *testing.T) {
	frame := []byte(`{"scripId":"NIFTY","ltp":"23412.55","ltq":"75","ts":1767340800000}`)
	var payload tickPayload
	require.NoError(t, sonic.ConfigFastest.Unmarshal(frame, &payload))

	tick, err := payload.toModel()
	require.NoError(t, err)
	assert.Equal(t, "NIFTY", tick.ScripID)
	assert.InDelta(t, 23412.55, tick.Price, 1e-9)
	assert.InDelta(t, 75.0, tick.Volume, 1e-9)
	assert.Equal(t, int64(1767340800000), tick.Time.UnixMilli())
}

func TestTickFrameMalformedPriceRejected(t *testing.T) {
	var payload tickPayload
	err := sonic.ConfigFastest.Unmarshal([]byte(`{"scripId":"NIFTY","ltp":"not-a-price","ltq":"1"}`), &payload)
	if err == nil {
		_, err = payload.toModel()
	}
	assert.Error(t, err, "a non-numeric print must not reach the tick channel")
}

func TestSpotPricePrefersAttachedTicks(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"code":0,"data":{"scripId":"NIFTY","lastPrice":"44000"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Underlying: "NIFTY"}, srv.Client())

	ticks := make(chan model.Tick, 1)
	c.AttachTicks(ticks)
	ticks <- model.Tick{ScripID: "NIFTY", Price: 45123.5, Volume: 10, Time: time.Now()}
	close(ticks)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tickSpot == 45123.5
	}, time.Second, time.Millisecond)

	spot, err := c.SpotPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45123.5, spot)
	assert.Zero(t, atomic.LoadInt32(&hits), "a fresh stream print short-circuits the quote endpoint")
}

func TestSpotPriceFallsBackToQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/md/quote", r.URL.Path)
		w.Write([]byte(`{"code":0,"data":{"scripId":"NIFTY","lastPrice":"44000.5"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Underlying: "NIFTY"}, srv.Client())
	spot, err := c.SpotPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 44000.5, spot)
}
