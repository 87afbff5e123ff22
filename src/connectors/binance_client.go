// REST API CLIENT FOR BINANCE USDT-M FUTURES
// RESTY ONLY, NO INTERNAL RETRY: the gateway owns retries so the adaptive
// limiter can observe every attempt.
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const defaultFuturesBaseURL = "https://fapi.binance.com"

// BinanceClient talks to the USDT-M futures REST API with HMAC-SHA256
// signed requests.
type BinanceClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *resty.Client
	now       func() time.Time
}

func NewBinanceClient(apiKey, apiSecret, baseURL string) *BinanceClient {
	if baseURL == "" {
		baseURL = defaultFuturesBaseURL
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15 * time.Second)

	return &BinanceClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      httpClient,
		now:       time.Now,
	}
}

func (c *BinanceClient) Name() string { return "binance" }

func (c *BinanceClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *BinanceClient) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, Response, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	query += "&signature=" + c.sign(query)

	req := c.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(query)

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, Response{}, err
	}

	out := Response{Status: resp.StatusCode(), Headers: resp.Header()}
	raw := resp.Body()

	if resp.StatusCode() != http.StatusOK {
		return raw, out, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}
	return raw, out, nil
}

func (c *BinanceClient) doPublic(ctx context.Context, path string, params url.Values) ([]byte, Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(path)
	if err != nil {
		return nil, Response{}, err
	}

	out := Response{Status: resp.StatusCode(), Headers: resp.Header()}
	raw := resp.Body()

	if resp.StatusCode() != http.StatusOK {
		return raw, out, fmt.Errorf("HTTP %d: %s", resp.StatusCode(), string(raw))
	}
	return raw, out, nil
}

// GetKlines fetches candles starting at startMs. Binance returns arrays:
// [openTime, open, high, low, close, volume, closeTime, ...].
func (c *BinanceClient) GetKlines(ctx context.Context, symbol, interval string, startMs int64, limit int) ([]Kline, Response, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if startMs > 0 {
		params.Set("startTime", strconv.FormatInt(startMs, 10))
	}

	raw, resp, err := c.doPublic(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, resp, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, resp, fmt.Errorf("decode klines: %w", err)
	}

	klines := make([]Kline, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			continue
		}
		k, err := parseKlineRow(row)
		if err != nil {
			return nil, resp, err
		}
		klines = append(klines, k)
	}
	return klines, resp, nil
}

func parseKlineRow(row []interface{}) (Kline, error) {
	openTime, ok := row[0].(float64)
	if !ok {
		return Kline{}, fmt.Errorf("unexpected kline open time: %v", row[0])
	}
	closeTime, ok := row[6].(float64)
	if !ok {
		return Kline{}, fmt.Errorf("unexpected kline close time: %v", row[6])
	}

	fields := make([]decimal.Decimal, 5)
	for i := 1; i <= 5; i++ {
		s, ok := row[i].(string)
		if !ok {
			return Kline{}, fmt.Errorf("unexpected kline field %d: %v", i, row[i])
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Kline{}, fmt.Errorf("parse kline field %d: %w", i, err)
		}
		fields[i-1] = d
	}

	return Kline{
		OpenTimeMs:  int64(openTime),
		CloseTimeMs: int64(closeTime),
		Open:        fields[0],
		High:        fields[1],
		Low:         fields[2],
		Close:       fields[3],
		Volume:      fields[4],
	}, nil
}

func (c *BinanceClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderState, Response, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", req.Side)
	params.Set("type", req.Type)
	params.Set("quantity", req.Quantity.String())
	params.Set("newClientOrderId", req.ClientOrderID)
	if req.Price != nil {
		params.Set("price", req.Price.String())
		params.Set("timeInForce", "GTC")
	}
	if req.StopPrice != nil {
		params.Set("stopPrice", req.StopPrice.String())
	}
	if req.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	raw, resp, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/order", params)
	if err != nil {
		return OrderState{}, resp, err
	}
	return decodeOrderState(raw, resp)
}

func (c *BinanceClient) CancelOrder(ctx context.Context, symbol, clientOrderID string) (Response, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)

	_, resp, err := c.doSigned(ctx, http.MethodDelete, "/fapi/v1/order", params)
	return resp, err
}

func (c *BinanceClient) GetOrder(ctx context.Context, symbol, clientOrderID string) (OrderState, Response, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientOrderID)

	raw, resp, err := c.doSigned(ctx, http.MethodGet, "/fapi/v1/order", params)
	if err != nil {
		return OrderState{}, resp, err
	}
	return decodeOrderState(raw, resp)
}

func decodeOrderState(raw []byte, resp Response) (OrderState, Response, error) {
	var body struct {
		ClientOrderID string `json:"clientOrderId"`
		OrderID       int64  `json:"orderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Status        string `json:"status"`
		ExecutedQty   string `json:"executedQty"`
		AvgPrice      string `json:"avgPrice"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return OrderState{}, resp, fmt.Errorf("decode order: %w", err)
	}

	executed, _ := decimal.NewFromString(body.ExecutedQty)
	avg, _ := decimal.NewFromString(body.AvgPrice)

	var payload map[string]interface{}
	_ = json.Unmarshal(raw, &payload)

	return OrderState{
		ClientOrderID:   body.ClientOrderID,
		ExchangeOrderID: strconv.FormatInt(body.OrderID, 10),
		Symbol:          body.Symbol,
		Side:            body.Side,
		Status:          body.Status,
		ExecutedQty:     executed,
		AvgPrice:        avg,
		Raw:             payload,
	}, resp, nil
}

func (c *BinanceClient) GetAccount(ctx context.Context) (AccountState, Response, error) {
	raw, resp, err := c.doSigned(ctx, http.MethodGet, "/fapi/v2/account", nil)
	if err != nil {
		return AccountState{}, resp, err
	}

	var body struct {
		TotalWalletBalance string `json:"totalWalletBalance"`
		Positions          []struct {
			Symbol      string `json:"symbol"`
			PositionAmt string `json:"positionAmt"`
			EntryPrice  string `json:"entryPrice"`
			Leverage    string `json:"leverage"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return AccountState{}, resp, fmt.Errorf("decode account: %w", err)
	}

	equity, err := decimal.NewFromString(body.TotalWalletBalance)
	if err != nil {
		return AccountState{}, resp, fmt.Errorf("parse wallet balance: %w", err)
	}

	positions := make(map[string]Position)
	for _, p := range body.Positions {
		qty, err := decimal.NewFromString(p.PositionAmt)
		if err != nil || qty.IsZero() {
			continue
		}
		entry, _ := decimal.NewFromString(p.EntryPrice)
		lev, _ := strconv.Atoi(p.Leverage)
		positions[p.Symbol] = Position{
			Symbol:     p.Symbol,
			BaseQty:    qty,
			EntryPrice: entry,
			Leverage:   lev,
		}
	}

	return AccountState{EquityUSDT: equity, Positions: positions}, resp, nil
}

func (c *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) (Response, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	_, resp, err := c.doSigned(ctx, http.MethodPost, "/fapi/v1/leverage", params)
	return resp, err
}
