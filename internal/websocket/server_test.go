package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"spotbook/internal/config"
	"spotbook/internal/network"
	"spotbook/internal/sdk"
	"spotbook/internal/sdk/sdktest"
	"spotbook/internal/store"
	"spotbook/internal/types"
)

type testEnv struct {
	fake   *sdktest.Fake
	root   *store.RootStore
	server *Server
	http   *httptest.Server
}

type noPrices struct{}

func (noPrices) LatestPrices(context.Context, []string) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{}, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	bundle, err := config.LoadBundle()
	if err != nil {
		t.Fatalf("LoadBundle() error = %v", err)
	}
	fake := &sdktest.Fake{}
	app := config.Default().App
	app.BalanceInterval = time.Hour
	app.MarketPriceInterval = time.Hour
	app.OracleInterval = time.Hour

	root := store.New(network.New(bundle, fake), noPrices{}, app, nil)
	s := NewServer(root, Options{Port: "0", PushInterval: 10 * time.Millisecond, Top: 10, ClientMessagesPerSecond: 100}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go s.broadcastMessages(ctx)
	go s.startDataPush(ctx)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		cancel()
		s.closeClients()
		ts.Close()
	})
	return &testEnv{fake: fake, root: root, server: s, http: ts}
}

func (e *testEnv) selectBTC(t *testing.T) {
	t.Helper()
	if _, err := e.root.ChangeMarket(context.Background(), "BTC-USDC"); err != nil {
		t.Fatalf("ChangeMarket() error = %v", err)
	}
	e.fake.SubscriptionsOf("active_buy")[0].PushOrders([]sdk.Order{
		{ID: "b1", OrderType: types.Buy, Price: "60000000000000", Amount: "100000000", InitialAmount: "100000000", Status: "Active"},
		{ID: "b2", OrderType: types.Buy, Price: "59000000000000", Amount: "50000000", InitialAmount: "50000000", Status: "Active"},
	})
	e.fake.SubscriptionsOf("active_sell")[0].PushOrders([]sdk.Order{
		{ID: "s1", OrderType: types.Sell, Price: "61000000000000", Amount: "100000000", InitialAmount: "100000000", Status: "Active"},
	})
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType reads until a message of the given type arrives
func readType(t *testing.T, conn *websocket.Conn, kind MessageType, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var head struct {
			Type MessageType `json:"type"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			t.Fatalf("invalid message %s: %v", data, err)
		}
		if head.Type == kind {
			if err := json.Unmarshal(data, v); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", kind, err)
			}
			return
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrderbookMessageOnConnect(t *testing.T) {
	env := newTestEnv(t)
	env.selectBTC(t)

	conn := env.dial(t)
	var msg OrderbookMessage
	readType(t, conn, MessageTypeOrderbook, &msg)

	if msg.Market != "BTC-USDC" || msg.State != store.StateLive.String() {
		t.Errorf("Expected live BTC-USDC book, got %s %s", msg.Market, msg.State)
	}
	if len(msg.Buys) != 2 || len(msg.Sells) != 1 {
		t.Fatalf("Expected 2 buys and 1 sell, got %d and %d", len(msg.Buys), len(msg.Sells))
	}
	if msg.Buys[0].Price != "60000" || msg.Buys[0].Quantity != "1" {
		t.Errorf("Expected best buy 1 @ 60000, got %s @ %s", msg.Buys[0].Quantity, msg.Buys[0].Price)
	}
	if msg.Buys[1].Cumulative != "1.5" {
		t.Errorf("Expected cumulative depth 1.5, got %s", msg.Buys[1].Cumulative)
	}
	if !msg.SpreadValid || msg.SpreadPrice == "" {
		t.Errorf("Expected a valid spread, got %+v", msg)
	}

	var stats StatsMessage
	readType(t, conn, MessageTypeStats, &stats)
	if stats.BestBuy != "60000" || stats.BestSell != "61000" || stats.MidPrice != "60500" {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestClientMessages(t *testing.T) {
	env := newTestEnv(t)
	env.selectBTC(t)
	conn := env.dial(t)
	waitFor(t, func() bool { return env.server.ClientCount() == 1 })

	group := int32(3)
	send := func(msg ClientMessage) {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("WriteJSON() error = %v", err)
		}
	}

	send(ClientMessage{Type: "set_decimal_group", DecimalGroup: &group})
	waitFor(t, func() bool { return env.root.OrderBook.DecimalGroup() == 3 })

	send(ClientMessage{Type: "set_filter", Filter: "sell"})
	waitFor(t, func() bool { return env.root.OrderBook.OrderFilter() == types.FilterSell })

	send(ClientMessage{Type: "change_market", Market: "ETH-USDC"})
	waitFor(t, func() bool { return env.root.Trade.MarketSymbol() == "ETH-USDC" })

	send(ClientMessage{Type: "subscribe"})
	var errMsg ErrorMessage
	readType(t, conn, MessageTypeError, &errMsg)
	if !strings.Contains(errMsg.Error, "unknown message type") {
		t.Errorf("Expected unknown message error, got %q", errMsg.Error)
	}
}

func TestToastBroadcast(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)
	waitFor(t, func() bool { return env.server.ClientCount() == 1 })

	env.root.Notifications.Error("Something went wrong")

	var msg ToastMessage
	readType(t, conn, MessageTypeToast, &msg)
	if msg.Toast.Text != "Something went wrong" || msg.Toast.Type != store.ToastError {
		t.Errorf("Unexpected toast %+v", msg.Toast)
	}
}

func TestClientCountOnDisconnect(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dial(t)
	waitFor(t, func() bool { return env.server.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return env.server.ClientCount() == 0 })
}

func TestAPI(t *testing.T) {
	env := newTestEnv(t)
	env.selectBTC(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"markets", http.MethodGet, "/api/markets", http.StatusOK},
		{"orderbook", http.MethodGet, "/api/orderbook?top=1", http.StatusOK},
		{"bad top", http.MethodGet, "/api/orderbook?top=x", http.StatusBadRequest},
		{"stats", http.MethodGet, "/api/stats", http.StatusOK},
		{"trades", http.MethodGet, "/api/trades", http.StatusOK},
		{"candles", http.MethodGet, "/api/candles", http.StatusOK},
		{"balances", http.MethodGet, "/api/balances", http.StatusOK},
		{"leaderboard", http.MethodGet, "/api/leaderboard", http.StatusOK},
		{"notifications", http.MethodGet, "/api/notifications", http.StatusOK},
		{"select unknown market", http.MethodPost, "/api/markets/DOGE-USDC", http.StatusBadRequest},
		{"wrong method", http.MethodPost, "/api/orderbook", http.StatusMethodNotAllowed},
		{"wrong method on market select", http.MethodGet, "/api/markets/ETH-USDC", http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/orders", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAPIOrderbookTop(t *testing.T) {
	env := newTestEnv(t)
	env.selectBTC(t)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orderbook?top=1", nil))

	var msg OrderbookMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(msg.Buys) != 1 || msg.Buys[0].Price != "60000" {
		t.Errorf("Expected only the best buy, got %+v", msg.Buys)
	}
}

func TestAPIMarketsSelected(t *testing.T) {
	env := newTestEnv(t)
	env.selectBTC(t)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/markets/eth-usdc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	var markets []marketResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &markets); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, m := range markets {
		if m.Selected != (m.Symbol == "ETH-USDC") {
			t.Errorf("Unexpected selection for %s: %v", m.Symbol, m.Selected)
		}
		if m.MarketPrice != "0.00" {
			t.Errorf("Expected placeholder price before polling, got %s", m.MarketPrice)
		}
	}
}

func BenchmarkBuildOrderbookMessage(b *testing.B) {
	bundle, err := config.LoadBundle()
	if err != nil {
		b.Fatalf("LoadBundle() error = %v", err)
	}
	market, _ := bundle.MarketBySymbol("BTC-USDC")

	levels := make([]types.PriceLevel, 15)
	for i := range levels {
		levels[i] = types.PriceLevel{
			Price:         decimal.NewFromInt(int64(60000-i) * 1000000000),
			Quantity:      decimal.NewFromInt(100000000),
			QuoteQuantity: decimal.NewFromInt(60000000000),
			Orders:        1,
		}
	}
	snap := store.OrderBookSnapshot{Market: market, State: store.StateLive, Buys: levels, Sells: levels}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buildOrderbookMessage(snap, 0)
	}
}
