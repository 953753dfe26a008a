// Package rest implements the broker surfaces over an HTTP brokerage
// API with md5-signed requests, plus a websocket tick stream.
package rest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"main/internal/model"
	"main/internal/model/enum"
	"main/pkg/exception"
)

// Config carries endpoint and credential settings. Credentials come
// from the deployment config; the client never persists them.
type Config struct {
	BaseURL    string `json:"baseUrl"`
	WsURL      string `json:"wsUrl"`
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	ClientID   string `json:"clientId"`
	Underlying string `json:"underlying"`
	Exchange   string `json:"exchange"`
}

// Client speaks the brokerage REST API. It implements the market-data
// and order-placement broker surfaces. With a tick stream attached,
// SpotPrice serves the live print instead of polling the quote
// endpoint.
type Client struct {
	cfg    Config
	client *http.Client

	mu         sync.Mutex
	tickSpot   float64
	tickSeenAt time.Time
}

// NewClient creates a REST client over the given HTTP client.
func NewClient(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, client: client}
}

type response[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type quotePayload struct {
	ScripID    string          `json:"scripId"`
	OptionType string          `json:"optionType"`
	Strike     decimal.Decimal `json:"strikePrice"`
	LastPrice  decimal.Decimal `json:"lastPrice"`
	Volume     decimal.Decimal `json:"volume"`
}

type expiryPayload struct {
	Expiries []string `json:"expiries"`
}

type orderPayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
	Reason  string `json:"reason"`
}

func toFloat(d decimal.Decimal) (float64, error) {
	return strconv.ParseFloat(d.String(), 64)
}

func (q quotePayload) toModel() (model.OptionQuote, error) {
	strike, err := toFloat(q.Strike)
	if err != nil {
		return model.OptionQuote{}, errors.Wrap(err, "parse strike")
	}
	last, err := toFloat(q.LastPrice)
	if err != nil {
		return model.OptionQuote{}, errors.Wrap(err, "parse last price")
	}
	volume, err := toFloat(q.Volume)
	if err != nil {
		return model.OptionQuote{}, errors.Wrap(err, "parse volume")
	}

	var optType enum.OptionType
	switch q.OptionType {
	case "CE", "CALL":
		optType = enum.OptionTypeCall
	case "PE", "PUT":
		optType = enum.OptionTypePut
	}
	return model.OptionQuote{
		ScripID:   q.ScripID,
		Type:      optType,
		Strike:    strike,
		LastPrice: last,
		Volume:    volume,
	}, nil
}

// tickSpotStaleAfter bounds how long a stream print stands in for the
// quote endpoint once the websocket goes quiet.
const tickSpotStaleAfter = 5 * time.Second

// AttachTicks drains underlying prints into the spot cache. The
// goroutine ends when the channel closes.
func (c *Client) AttachTicks(ticks <-chan model.Tick) {
	go func() {
		for tick := range ticks {
			c.mu.Lock()
			c.tickSpot = tick.Price
			c.tickSeenAt = time.Now()
			c.mu.Unlock()
		}
	}()
}

// SpotPrice returns the underlying's last traded price: the freshest
// stream print when one is attached and recent, otherwise the quote
// endpoint.
func (c *Client) SpotPrice(ctx context.Context) (float64, error) {
	c.mu.Lock()
	spot, seenAt := c.tickSpot, c.tickSeenAt
	c.mu.Unlock()
	if spot > 0 && time.Since(seenAt) < tickSpotStaleAfter {
		return spot, nil
	}

	var data response[quotePayload]
	if err := c.get(ctx, "/md/quote", url.Values{"scripId": {c.cfg.Underlying}}, &data); err != nil {
		return 0, err
	}
	if data.Code != 0 {
		return 0, errors.Wrapf(exception.ErrBrokerResponse, "code=%d msg=%q", data.Code, data.Message)
	}
	return toFloat(data.Data.LastPrice)
}

// LatestExpiry resolves the monthly expiry: the latest expiry within
// the current month, or the nearest future expiry when the current
// month has none left.
func (c *Client) LatestExpiry(ctx context.Context, now time.Time) (time.Time, error) {
	var data response[expiryPayload]
	if err := c.get(ctx, "/md/expiries", url.Values{"underlying": {c.cfg.Underlying}}, &data); err != nil {
		return time.Time{}, err
	}
	if data.Code != 0 {
		return time.Time{}, errors.Wrapf(exception.ErrBrokerResponse, "code=%d msg=%q", data.Code, data.Message)
	}

	var monthly, nearest time.Time
	for _, raw := range data.Data.Expiries {
		exp, err := time.ParseInLocation("2006-01-02", raw, now.Location())
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "parse expiry %q", raw)
		}
		// expiries settle at end of day
		exp = exp.Add(24*time.Hour - time.Nanosecond)
		if exp.Before(now) {
			continue
		}
		if exp.Year() == now.Year() && exp.Month() == now.Month() && exp.After(monthly) {
			monthly = exp
		}
		if nearest.IsZero() || exp.Before(nearest) {
			nearest = exp
		}
	}
	if !monthly.IsZero() {
		return monthly, nil
	}
	if nearest.IsZero() {
		return time.Time{}, exception.ErrBrokerNoExpiry
	}
	return nearest, nil
}

// OptionChain returns every quoted strike for the expiry.
func (c *Client) OptionChain(ctx context.Context, expiry time.Time) (model.OptionChain, error) {
	var data response[[]quotePayload]
	if err := c.get(ctx, "/md/chain", url.Values{
		"underlying": {c.cfg.Underlying},
		"expiry":     {expiry.Format("2006-01-02")},
	}, &data); err != nil {
		return nil, err
	}
	if data.Code != 0 {
		return nil, errors.Wrapf(exception.ErrBrokerResponse, "code=%d msg=%q", data.Code, data.Message)
	}

	chain := make(model.OptionChain, 0, len(data.Data))
	for _, q := range data.Data {
		quote, err := q.toModel()
		if err != nil {
			return nil, errors.Wrapf(err, "scrip %s", q.ScripID)
		}
		chain = append(chain, quote)
	}
	return chain, nil
}

// Quote returns the latest quote for one scrip.
func (c *Client) Quote(ctx context.Context, scripID string) (model.OptionQuote, error) {
	var data response[quotePayload]
	if err := c.get(ctx, "/md/quote", url.Values{"scripId": {scripID}}, &data); err != nil {
		return model.OptionQuote{}, err
	}
	if data.Code != 0 {
		return model.OptionQuote{}, errors.Wrapf(exception.ErrBrokerResponse, "code=%d msg=%q", data.Code, data.Message)
	}
	return data.Data.toModel()
}

func restSide(side enum.OrderSide) string {
	switch side {
	case enum.OrderSideSell:
		return "S"
	default:
		return "B"
	}
}

func restStyle(style enum.OrderStyle) string {
	switch style {
	case enum.OrderStyleLimit:
		return "L"
	default:
		return "MKT"
	}
}

// PlaceOrder submits one leg. Broker rejections come back through
// OrderResponse.OK with the reason; only transport and protocol
// failures return an error.
func (c *Client) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderResponse, error) {
	body := map[string]string{
		"access_id": c.cfg.APIKey,
		"client_id": c.cfg.ClientID,
		"tm":        strconv.FormatInt(time.Now().Unix(), 10),
		"exchange":  c.cfg.Exchange,
		"scrip_id":  req.ScripID,
		"side":      restSide(req.Side),
		"qty":       strconv.Itoa(req.Quantity),
		"style":     restStyle(req.Style),
	}

	var data response[orderPayload]
	if err := c.post(ctx, "/trade/order/place", body, &data); err != nil {
		return model.OrderResponse{}, err
	}
	if data.Code != 0 {
		return model.OrderResponse{OK: false, Reason: data.Message}, nil
	}
	if data.Data.Status == "REJECTED" {
		return model.OrderResponse{OK: false, Reason: data.Data.Reason}, nil
	}
	return model.OrderResponse{OK: true, OrderID: data.Data.OrderID}, nil
}

// CancelAll cancels every working order for the client.
func (c *Client) CancelAll(ctx context.Context) error {
	body := map[string]string{
		"access_id": c.cfg.APIKey,
		"client_id": c.cfg.ClientID,
		"tm":        strconv.FormatInt(time.Now().Unix(), 10),
	}

	var data response[struct{}]
	if err := c.post(ctx, "/trade/order/cancel_all", body, &data); err != nil {
		return err
	}
	if data.Code != 0 {
		return errors.Wrapf(exception.ErrBrokerResponse, "code=%d msg=%q", data.Code, data.Message)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	return c.do(r, out)
}

func (c *Client) post(ctx context.Context, path string, body map[string]string, out any) error {
	payload, err := sonic.ConfigFastest.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal body")
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("authorization", sign(body, c.cfg.Secret))
	return c.do(r, out)
}

// sign hashes the sorted k=v pairs plus the secret, matching the
// brokerage's md5 scheme.
func sign(body map[string]string, secret string) string {
	pairs := make([]string, 0, len(body)+1)
	for k, v := range body {
		pairs = append(pairs, fmt.Sprintf("%s=%s", k, v))
	}
	pairs = append(pairs, fmt.Sprintf("secret_key=%s", secret))
	sort.Strings(pairs)
	hash := md5.Sum([]byte(strings.Join(pairs, "&")))
	return hex.EncodeToString(hash[:])
}

func (c *Client) do(r *http.Request, out any) error {
	resp, err := c.client.Do(r)
	if err != nil {
		return errors.Wrap(err, "http do")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(exception.ErrBrokerResponse, "status=%d", resp.StatusCode)
	}
	if err := sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}
