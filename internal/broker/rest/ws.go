package rest

import (
	"context"
	"time"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"github.com/yanun0323/pkg/ws"

	"main/internal/model"
)

// TickFeed streams trade prints over the brokerage websocket.
type TickFeed struct {
	wss *ws.WebSocket
}

// NewTickFeed dials the websocket endpoint. Start must be called
// before subscribing.
func NewTickFeed(ctx context.Context, cfg Config) *TickFeed {
	return &TickFeed{wss: ws.New(ctx, cfg.WsURL)}
}

func (f *TickFeed) Start(ctx context.Context) error {
	if err := f.wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	return nil
}

func (f *TickFeed) Close() {
	f.wss.Close()
}

type tickSubscribeRequest struct {
	Method string   `json:"method"`
	Scrips []string `json:"scrips"`
	ID     int64    `json:"id"`
}

type tickSubscribeResponse struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

type tickPayload struct {
	ScripID string          `json:"scripId"`
	Price   decimal.Decimal `json:"ltp"`
	Volume  decimal.Decimal `json:"ltq"`
	TimeMs  int64           `json:"ts"`
}

// SubscribeTicks subscribes the scrip and fans its trades into the
// returned channel. Malformed frames are dropped with a log line
// rather than killing the stream.
func (f *TickFeed) SubscribeTicks(ctx context.Context, scripID string) (<-chan model.Tick, func(), error) {
	if err := f.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, conn *ws.WebSocket) error {
			payload := tickSubscribeRequest{Method: "SUBSCRIBE", Scrips: []string{scripID}, ID: 1}
			if err := conn.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write subscribe payload").With("payload", payload)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp tickSubscribeResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != 1 {
				return false, nil
			}
			if resp.Error != "" {
				return false, errors.Errorf("subscribe rejected: %s", resp.Error)
			}
			return true, nil
		},
	}, true); err != nil {
		return nil, nil, errors.Wrap(err, "send and wait")
	}

	ch, cancel := f.wss.Subscribe()
	out := make(chan model.Tick, 256)

	go func() {
		defer cancel()
		defer close(out)
		for {
			select {
			case <-sys.Shutdown():
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}

				raw, ok := ws.ReadMessage[tickPayload](m)
				if !ok || raw.ScripID != scripID {
					continue
				}
				tick, err := raw.toModel()
				if err != nil {
					logs.Errorf("rest: drop malformed tick: %v", err)
					continue
				}

				select {
				case out <- tick:
				default:
					// slow consumer drops the oldest signal value
					// implicitly by losing this print
				}
			}
		}
	}()

	return out, cancel, nil
}

func (p tickPayload) toModel() (model.Tick, error) {
	price, err := toFloat(p.Price)
	if err != nil {
		return model.Tick{}, errors.Wrap(err, "parse price")
	}
	volume, err := toFloat(p.Volume)
	if err != nil {
		return model.Tick{}, errors.Wrap(err, "parse volume")
	}
	return model.Tick{
		ScripID: p.ScripID,
		Price:   price,
		Volume:  volume,
		Time:    time.UnixMilli(p.TimeMs),
	}, nil
}
