package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupMockExchange(t *testing.T) *httptest.Server {
	t.Helper()
	handler := http.NewServeMux()

	handler.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Mbx-Used-Weight-1m", "42")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`[
			[1748822400000, "65000.10", "65100.00", "64900.00", "65050.00", "123.456", 1748823299999, "0", 100, "0", "0", "0"],
			[1748823300000, "65050.00", "65200.00", "65000.00", "65150.00", "98.765", 1748824199999, "0", 90, "0", "0", "0"]
		]`))
	})

	handler.HandleFunc("/fapi/v1/order", func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("X-MBX-APIKEY"))
		require.NotEmpty(t, r.URL.Query().Get("signature"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{
			"clientOrderId": "asv8-BTCUSDT-BUY-15m-1748823300000-ab12cd34",
			"orderId": 987654,
			"symbol": "BTCUSDT",
			"side": "BUY",
			"status": "FILLED",
			"executedQty": "0.010",
			"avgPrice": "65100.00"
		}`))
	})

	return httptest.NewServer(handler)
}

func TestGetKlinesParsesRowsAndHeaders(t *testing.T) {
	srv := setupMockExchange(t)
	defer srv.Close()

	client := NewBinanceClient("", "", srv.URL)
	klines, resp, err := client.GetKlines(context.Background(), "BTCUSDT", "15m", 0, 2)
	require.NoError(t, err)
	require.Len(t, klines, 2)

	first := klines[0]
	require.Equal(t, int64(1748822400000), first.OpenTimeMs)
	require.Equal(t, int64(1748823299999), first.CloseTimeMs)
	require.True(t, first.Open.Equal(decimal.RequireFromString("65000.10")))
	require.True(t, first.Volume.Equal(decimal.RequireFromString("123.456")))

	// the rate limiter reads these off every response
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "42", resp.Headers.Get("X-Mbx-Used-Weight-1m"))
}

func TestPlaceOrderSignsAndDecodes(t *testing.T) {
	srv := setupMockExchange(t)
	defer srv.Close()

	client := NewBinanceClient("test-key", "test-secret", srv.URL)
	state, resp, err := client.PlaceOrder(context.Background(), OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          "BUY",
		Type:          "MARKET",
		Quantity:      decimal.NewFromFloat(0.01),
		ClientOrderID: "asv8-BTCUSDT-BUY-15m-1748823300000-ab12cd34",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Equal(t, "FILLED", state.Status)
	require.Equal(t, "987654", state.ExchangeOrderID)
	require.True(t, state.AvgPrice.Equal(decimal.RequireFromString("65100.00")))
}

func TestPaperClientFillsAndStaysIdempotent(t *testing.T) {
	paper := NewPaperClient(decimal.NewFromInt(500), nil)
	paper.SetMarkPrice("BTCUSDT", decimal.RequireFromString("65000"))

	req := OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          "BUY",
		Type:          "MARKET",
		Quantity:      decimal.NewFromFloat(0.01),
		ClientOrderID: "cid-paper-1",
	}

	first, _, err := paper.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "FILLED", first.Status)

	// a retry with the same client order id returns the original fill
	second, _, err := paper.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ExchangeOrderID, second.ExchangeOrderID)

	account, _, err := paper.GetAccount(context.Background())
	require.NoError(t, err)
	require.Len(t, account.Positions, 1)
	require.True(t, account.Positions["BTCUSDT"].BaseQty.Equal(decimal.NewFromFloat(0.01)))
}
