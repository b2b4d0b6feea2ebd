package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"spotbook/internal/config"
	"spotbook/internal/network"
	"spotbook/internal/sdk"
	"spotbook/internal/sdk/sdktest"
	"spotbook/internal/store"
	"spotbook/internal/types"
)

type noPrices struct{}

func (noPrices) LatestPrices(context.Context, []string) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{}, nil
}

func newTestModel(t *testing.T) (Model, *store.RootStore, *sdktest.Fake) {
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

	ctx := context.Background()
	if _, err := root.ChangeMarket(ctx, "BTC-USDC"); err != nil {
		t.Fatalf("ChangeMarket() error = %v", err)
	}
	fake.SubscriptionsOf("active_buy")[0].PushOrders([]sdk.Order{
		{ID: "b1", OrderType: types.Buy, Price: "60000000000000", Amount: "100000000", InitialAmount: "100000000", Status: "Active"},
	})
	fake.SubscriptionsOf("active_sell")[0].PushOrders([]sdk.Order{
		{ID: "s1", OrderType: types.Sell, Price: "61000000000000", Amount: "100000000", InitialAmount: "100000000", Status: "Active"},
	})

	return NewModel(ctx, root, Options{Top: 10, RefreshInterval: time.Hour}), root, fake
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Expected Model, got %T", next)
	}
	return model, cmd
}

func TestPrecisionKeys(t *testing.T) {
	m, root, _ := newTestModel(t)

	tests := []struct {
		key  string
		want int32
	}{
		{"+", 1},
		{"+", 2},
		{"-", 1},
		{"-", 0},
		{"-", 9},
	}
	for i, tt := range tests {
		m, _ = update(t, m, key(tt.key))
		if got := root.OrderBook.DecimalGroup(); got != tt.want {
			t.Errorf("step %d (%s): expected group %d, got %d", i, tt.key, tt.want, got)
		}
	}
}

func TestFilterKey(t *testing.T) {
	m, root, _ := newTestModel(t)

	want := types.NextOrderFilter(root.OrderBook.OrderFilter())
	m, _ = update(t, m, key("f"))
	if got := root.OrderBook.OrderFilter(); got != want {
		t.Errorf("Expected filter %s, got %s", want, got)
	}
	if m.snap.Filter != want {
		t.Errorf("Expected view refreshed with filter %s, got %s", want, m.snap.Filter)
	}
}

func TestTabChangesMarket(t *testing.T) {
	m, root, _ := newTestModel(t)

	m, cmd := update(t, m, key("tab"))
	if cmd == nil {
		t.Fatal("Expected a market change command")
	}
	if !strings.Contains(m.status, "ETH-USDC") {
		t.Errorf("Expected pending status for ETH-USDC, got %q", m.status)
	}

	m, _ = update(t, m, cmd())
	if root.Trade.MarketSymbol() != "ETH-USDC" {
		t.Errorf("Expected ETH-USDC selected, got %s", root.Trade.MarketSymbol())
	}
	if m.snap.Market.Symbol() != "ETH-USDC" || m.status != "switched to ETH-USDC" {
		t.Errorf("Expected view on ETH-USDC, got %s with status %q", m.snap.Market.Symbol(), m.status)
	}
}

func TestQuitKeys(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		m, _, _ := newTestModel(t)
		_, cmd := update(t, m, key(k))
		if cmd == nil {
			t.Fatalf("%s: expected quit command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected QuitMsg", k)
		}
	}
}

func TestView(t *testing.T) {
	m, _, _ := newTestModel(t)
	out := m.View()

	for _, want := range []string{"BTC-USDC", "60,000", "61,000", "spread", "no trades yet"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}
}

func TestTickRefreshes(t *testing.T) {
	m, _, fake := newTestModel(t)

	fake.SubscriptionsOf("active_buy")[0].PushOrders([]sdk.Order{
		{ID: "b1", OrderType: types.Buy, Price: "60000000000000", Amount: "100000000", InitialAmount: "100000000", Status: "Active"},
		{ID: "b2", OrderType: types.Buy, Price: "59000000000000", Amount: "100000000", InitialAmount: "100000000", Status: "Active"},
	})
	if len(m.snap.Buys) != 1 {
		t.Fatalf("Expected stale snapshot before tick, got %d buys", len(m.snap.Buys))
	}

	m, cmd := update(t, m, tickMsg(time.Now()))
	if len(m.snap.Buys) != 2 {
		t.Errorf("Expected 2 buys after tick, got %d", len(m.snap.Buys))
	}
	if cmd == nil {
		t.Error("Expected the next tick scheduled")
	}
}
