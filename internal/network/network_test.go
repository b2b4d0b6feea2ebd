package network

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"spotbook/internal/config"
	"spotbook/internal/sdk"
	"spotbook/internal/sdk/sdktest"
	"spotbook/internal/types"
	"spotbook/internal/wallet"
)

func newTestNetwork(t *testing.T) (*Network, *sdktest.Fake, types.Market) {
	t.Helper()
	bundle, err := config.LoadBundle()
	if err != nil {
		t.Fatalf("LoadBundle() error = %v", err)
	}
	market, ok := bundle.MarketBySymbol("BTC-USDC")
	if !ok {
		t.Fatal("BTC-USDC market missing from bundle")
	}
	fake := &sdktest.Fake{}
	return New(bundle, fake), fake, market
}

// runs before TestInitOnce; test functions in a file run in source order
func TestGetInstanceBeforeInit(t *testing.T) {
	if _, err := GetInstance(); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
}

func TestInitOnce(t *testing.T) {
	bundle, err := config.LoadBundle()
	if err != nil {
		t.Fatalf("LoadBundle() error = %v", err)
	}

	n, err := Init(bundle, &sdktest.Fake{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	got, err := GetInstance()
	if err != nil || got != n {
		t.Errorf("GetInstance() = %p, %v; want %p", got, err, n)
	}

	if _, err := Init(bundle, &sdktest.Fake{}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Errorf("Expected ErrAlreadyInitialized on second Init, got %v", err)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	n, fake, _ := newTestNetwork(t)

	if _, err := n.GetBalances(context.Background()); !errors.Is(err, sdk.ErrNoSigner) {
		t.Errorf("Expected ErrNoSigner before connect, got %v", err)
	}

	n.ConnectByAddress("0xABC")
	if n.GetAddress() != "0xabc" {
		t.Errorf("Expected address 0xabc, got %s", n.GetAddress())
	}
	if _, ok := fake.Signer().(wallet.ReadOnly); !ok {
		t.Errorf("Expected read-only signer on the SDK, got %T", fake.Signer())
	}

	n.Disconnect()
	if n.GetAddress() != "" || fake.Signer() != nil {
		t.Error("Expected session to be cleared after disconnect")
	}
}

func TestFetchSpotOrders(t *testing.T) {
	n, fake, market := newTestNetwork(t)
	fake.ActiveOrders = map[types.OrderType][]sdk.Order{
		types.Buy: {
			{ID: "0x1", Market: market.ContractID, OrderType: types.Buy, Asset: market.BaseToken.AssetID, Amount: "100000000", Price: "60000000000000"},
		},
	}

	orders, err := n.FetchSpotOrders(context.Background(), sdk.ActiveOrdersParams{OrderType: types.Buy, Limit: 100})
	if err != nil {
		t.Fatalf("FetchSpotOrders() error = %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(orders))
	}
	if orders[0].MarketSymbol() != "BTC-USDC" {
		t.Errorf("Expected BTC-USDC, got %s", orders[0].MarketSymbol())
	}

	fake.ActiveOrders[types.Buy][0].Market = "0xunknown"
	if _, err := n.FetchSpotOrders(context.Background(), sdk.ActiveOrdersParams{OrderType: types.Buy}); err == nil {
		t.Error("Expected error for unknown market")
	}
}

func TestFetchLastTrade(t *testing.T) {
	n, fake, market := newTestNetwork(t)

	_, ok, err := n.FetchLastTrade(context.Background(), market.ContractID)
	if err != nil || ok {
		t.Errorf("Expected no trade, got ok=%v err=%v", ok, err)
	}

	fake.Trades = map[string][]sdk.TradeEvent{
		market.ContractID: {{ID: "t2", TradePrice: "2"}, {ID: "t1", TradePrice: "1"}},
	}
	trade, ok, err := n.FetchLastTrade(context.Background(), market.ContractID)
	if err != nil || !ok || trade.ID != "t2" {
		t.Errorf("Expected newest trade t2, got %+v ok=%v err=%v", trade, ok, err)
	}
}

func TestPassThroughErrors(t *testing.T) {
	n, fake, _ := newTestNetwork(t)
	boom := errors.New("boom")
	fake.WriteErr = boom

	if _, err := n.CancelSpotOrder(context.Background(), "0x1"); !errors.Is(err, boom) {
		t.Errorf("Expected write error to propagate, got %v", err)
	}
	if _, err := n.MintToken(context.Background(), types.Token{}, decimal.NewFromInt(1)); !errors.Is(err, boom) {
		t.Errorf("Expected write error to propagate, got %v", err)
	}
}
