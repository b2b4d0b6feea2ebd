package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/config"
	"spotbook/internal/sdk"
	"spotbook/internal/types"
)

func newRoot(t *testing.T, f fixture) *RootStore {
	t.Helper()
	app := config.Default().App
	app.BalanceInterval = time.Hour
	app.MarketPriceInterval = time.Hour
	app.OracleInterval = time.Hour
	return New(f.net, &stubPrices{}, app, nil)
}

func TestRootChangeMarket(t *testing.T) {
	f := newFixture(t)
	r := newRoot(t, f)
	ctx := context.Background()

	market, err := r.ChangeMarket(ctx, "eth-usdc")
	if err != nil {
		t.Fatalf("ChangeMarket() error = %v", err)
	}
	if market.ContractID != f.eth.ContractID {
		t.Errorf("Expected ETH-USDC, got %s", market.Symbol())
	}
	if f.fake.ActiveMarket() != f.eth.ContractID {
		t.Errorf("Expected SDK active market set, got %s", f.fake.ActiveMarket())
	}
	if m, _ := r.OrderBook.Market(); m.ContractID != f.eth.ContractID {
		t.Errorf("Expected order book on ETH-USDC, got %s", m.Symbol())
	}

	if _, err := r.ChangeMarket(ctx, f.btc.ContractID); err != nil {
		t.Fatalf("ChangeMarket(by id) error = %v", err)
	}
	if r.Trade.MarketSymbol() != "BTC-USDC" {
		t.Errorf("Expected BTC-USDC selected, got %s", r.Trade.MarketSymbol())
	}
	if sub := f.fake.SubscriptionsOf("active_buy")[0]; sub.Unsubscribes() != 1 {
		t.Errorf("Expected previous market unsubscribed once, got %d", sub.Unsubscribes())
	}

	if _, err := r.ChangeMarket(ctx, "DOGE-USDC"); err == nil {
		t.Error("Expected error for unknown market")
	}
}

func TestRootConcurrentChangeMarket(t *testing.T) {
	f := newFixture(t)
	r := newRoot(t, f)
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		var wg sync.WaitGroup
		for _, symbol := range []string{"BTC-USDC", "ETH-USDC"} {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				if _, err := r.ChangeMarket(ctx, symbol); err != nil {
					t.Errorf("ChangeMarket(%s) error = %v", symbol, err)
				}
			}(symbol)
		}
		wg.Wait()

		selected, _ := r.Trade.Market()
		book, _ := r.OrderBook.Market()
		if selected.ContractID != book.ContractID {
			t.Fatalf("iteration %d: Expected order book on %s, got %s", i, selected.Symbol(), book.Symbol())
		}
		if f.fake.ActiveMarket() != book.ContractID {
			t.Fatalf("iteration %d: Expected SDK active market %s, got %s", i, book.ContractID, f.fake.ActiveMarket())
		}
	}
}

func TestRootConnectAndDisconnect(t *testing.T) {
	f := newFixture(t)
	btc := f.token(t, "BTC")
	f.fake.WalletBalances = map[string]decimal.Decimal{btc.AssetID: decimal.NewFromInt(100000000)}
	f.fake.Leaderboard = []sdk.TraderVolume{{ID: "1", WalletID: "0xabc", TotalCount: 1}}
	r := newRoot(t, f)
	ctx := context.Background()

	r.ConnectByAddress(ctx, "0xABC")

	if !r.Account.IsConnected() || r.Account.Address() != "0xabc" {
		t.Errorf("Expected connected as 0xabc, got %q", r.Account.Address())
	}
	if !r.Balances.Initialized() || !r.Balances.Balance(btc.AssetID).Equal(decimal.NewFromInt(100000000)) {
		t.Error("Expected balances loaded on connect")
	}
	if rows := r.Leaderboard.Rows(); len(rows) == 0 || !rows[0].IsYour {
		t.Errorf("Expected leaderboard reloaded with the me row, got %+v", rows)
	}
	for _, tok := range r.Swap.Tokens() {
		if tok.Symbol == "BTC" && tok.Balance != "1.0000" {
			t.Errorf("Expected swap options to show the BTC balance, got %s", tok.Balance)
		}
	}

	r.Disconnect(ctx)

	if r.Account.IsConnected() {
		t.Error("Expected disconnected")
	}
	if r.Balances.Initialized() || len(r.Balances.Balances()) != 0 {
		t.Error("Expected balances cleared on disconnect")
	}
	if r.Leaderboard.Initialized() {
		t.Error("Expected leaderboard reset on disconnect")
	}
}

func TestRootRun(t *testing.T) {
	f := newFixture(t)
	r := newRoot(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitFor(t, r.Initialized)
	if r.Trade.MarketSymbol() != "BTC-USDC" {
		t.Errorf("Expected default market BTC-USDC, got %s", r.Trade.MarketSymbol())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Run to return after cancel")
	}

	if r.Initialized() {
		t.Error("Expected initialized cleared after Run returns")
	}
	for _, sub := range f.fake.Subscriptions() {
		if sub.Unsubscribes() != 1 {
			t.Errorf("Expected %s subscription torn down on exit, got %d", sub.Kind, sub.Unsubscribes())
		}
	}
}

func TestTradeStoreNextMarket(t *testing.T) {
	f := newFixture(t)
	s := NewTradeStore(f.net)

	first, ok := s.NextMarket()
	if !ok || first.ContractID != f.btc.ContractID {
		t.Fatalf("Expected first market without a selection, got %s", first.Symbol())
	}

	if _, err := s.SetMarket(f.eth.Symbol()); err != nil {
		t.Fatalf("SetMarket() error = %v", err)
	}
	next, _ := s.NextMarket()
	if next.ContractID != f.btc.ContractID {
		t.Errorf("Expected wrap around to BTC-USDC, got %s", next.Symbol())
	}
}

func TestSettingsStore(t *testing.T) {
	s := NewSettingsStore()

	if s.OrderKind() != OrderMarket || s.TimeInForce() != sdk.LimitGTC {
		t.Errorf("Unexpected defaults %s %s", s.OrderKind(), s.TimeInForce())
	}
	if err := s.SetOrderKind(OrderLimit); err != nil || s.OrderKind() != OrderLimit {
		t.Errorf("SetOrderKind(limit) = %v, kind %s", err, s.OrderKind())
	}
	if err := s.SetOrderKind("stop"); err == nil {
		t.Error("Expected error for unknown order type")
	}
	if err := s.SetTimeInForce(sdk.LimitFOK); err != nil || s.TimeInForce() != sdk.LimitFOK {
		t.Errorf("SetTimeInForce(FOK) = %v, tif %s", err, s.TimeInForce())
	}
	if err := s.SetTimeInForce("GTD"); err == nil {
		t.Error("Expected error for unknown time in force")
	}
}

func TestSnapshotMarket(t *testing.T) {
	f := newFixture(t)
	r := newRoot(t, f)
	if _, err := r.ChangeMarket(context.Background(), "BTC-USDC"); err != nil {
		t.Fatalf("ChangeMarket() error = %v", err)
	}
	f.fake.SubscriptionsOf("active_buy")[0].PushOrders([]sdk.Order{order("b", "", types.Buy, "60000000000000", "100000000")})

	snap := r.OrderBook.Snapshot(10)
	if snap.Market.ContractID != f.btc.ContractID || snap.State != StateLive || len(snap.Buys) != 1 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}
