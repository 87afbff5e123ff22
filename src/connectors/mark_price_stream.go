package connectors

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const defaultFuturesWsURL = "wss://fstream.binance.com/ws"

// MarkPriceStream subscribes to the futures mark-price stream and keeps the
// latest price per symbol. The software stop watcher reads it between ticks.
type MarkPriceStream struct {
	url     string
	symbols []string

	mu     sync.RWMutex
	prices map[string]decimal.Decimal

	dial func(ctx context.Context, url string) (wsConn, error)
}

type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

func NewMarkPriceStream(wsURL string, symbols []string) *MarkPriceStream {
	if wsURL == "" {
		wsURL = defaultFuturesWsURL
	}
	return &MarkPriceStream{
		url:     wsURL,
		symbols: symbols,
		prices:  make(map[string]decimal.Decimal),
		dial: func(ctx context.Context, url string) (wsConn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// Price returns the last seen mark price for a symbol.
func (s *MarkPriceStream) Price(symbol string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[strings.ToUpper(symbol)]
	return p, ok
}

// Run connects and consumes until the context is canceled, reconnecting
// with a fixed delay on failure.
func (s *MarkPriceStream) Run(ctx context.Context) {
	for {
		if err := s.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).WithField("component", "mark_price_stream").
				Warn("Stream dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *MarkPriceStream) consume(ctx context.Context) error {
	conn, err := s.dial(ctx, s.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	params := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		params = append(params, strings.ToLower(sym)+"@markPrice@1s")
	}
	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(raw)
	}
}

func (s *MarkPriceStream) handleMessage(raw []byte) {
	var msg struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Mark   string `json:"p"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Event != "markPriceUpdate" || msg.Symbol == "" {
		return
	}

	price, err := decimal.NewFromString(msg.Mark)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.prices[msg.Symbol] = price
	s.mu.Unlock()
}
