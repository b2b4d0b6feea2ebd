package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

var (
	testBTC  = Token{Name: "Bitcoin", Symbol: "BTC", Decimals: 8, AssetID: "0xAB"}
	testUSDC = Token{Name: "USD Coin", Symbol: "USDC", Decimals: 6, AssetID: "0xCD"}
	testMkt  = Market{ContractID: "0xmarket", BaseToken: testBTC, QuoteToken: testUSDC, PriceDecimals: 9}
)

func TestNewSpotMarketOrder(t *testing.T) {
	o, err := NewSpotMarketOrder(OrderParams{
		ID:            "1",
		Type:          Buy,
		Price:         "60000000000000", // 60000.0
		InitialAmount: "200000000",      // 2 BTC
		Amount:        "50000000",       // 0.5 BTC
	}, testMkt)
	if err != nil {
		t.Fatalf("NewSpotMarketOrder() error = %v", err)
	}

	// 0.5 BTC * 60000 = 30000 USDC = 30000_000000 raw
	if got := o.CurrentQuoteAmount(); !got.Equal(decimal.NewFromInt(30000_000000)) {
		t.Errorf("Expected current quote amount 30000000000, got %s", got)
	}
	if got := o.InitialQuoteAmount(); !got.Equal(decimal.NewFromInt(120000_000000)) {
		t.Errorf("Expected initial quote amount 120000000000, got %s", got)
	}
	if got := o.FilledPercent(); !got.Equal(decimal.NewFromInt(75)) {
		t.Errorf("Expected 75%% filled, got %s", got)
	}
	if got := o.FormatPrice(); got != "60,000" {
		t.Errorf("Expected formatted price 60,000, got %s", got)
	}
	if got := o.FormatAmount(); got != "0.5" {
		t.Errorf("Expected formatted amount 0.5, got %s", got)
	}
	if o.MarketSymbol() != "BTC-USDC" {
		t.Errorf("Expected BTC-USDC, got %s", o.MarketSymbol())
	}
}

func TestNewSpotMarketOrderInvalid(t *testing.T) {
	if _, err := NewSpotMarketOrder(OrderParams{ID: "x", Price: "abc", Amount: "1"}, testMkt); err == nil {
		t.Error("Expected error for malformed price")
	}
}

func TestNewSpotMarketTradeSide(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		expected TradeSide
	}{
		{name: "Seller", user: "0xSELLER", expected: TradeSell},
		{name: "Buyer", user: "0xbuyer", expected: TradeBuy},
		{name: "Neither", user: "0xother", expected: ""},
		{name: "Disconnected", user: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade, err := NewSpotMarketTrade(TradeParams{
				ID:         "t1",
				Buyer:      "0xBuyer",
				Seller:     "0xseller",
				TradeSize:  "100000000",
				TradePrice: "61000500000000",
				Timestamp:  time.Unix(1700000000, 0),
			}, testMkt, tt.user)
			if err != nil {
				t.Fatalf("NewSpotMarketTrade() error = %v", err)
			}
			if trade.Side != tt.expected {
				t.Errorf("Expected side %q, got %q", tt.expected, trade.Side)
			}
			if trade.FormatPrice() != "61,000.5" {
				t.Errorf("Expected price 61,000.5, got %s", trade.FormatPrice())
			}
			if trade.FormatTradeAmount() != "1" {
				t.Errorf("Expected amount 1, got %s", trade.FormatTradeAmount())
			}
		})
	}
}

func TestPrecisionStepping(t *testing.T) {
	if got := NextPrecision(2, 2); got != 0 {
		t.Errorf("Expected wrap to 0, got %d", got)
	}
	if got := PreviousPrecision(0, 3); got != 3 {
		t.Errorf("Expected wrap to 3, got %d", got)
	}
	if got := ClampPrecision(-1, 9); got != 0 {
		t.Errorf("Expected clamp to 0, got %d", got)
	}
	if got := ClampPrecision(12, 9); got != 9 {
		t.Errorf("Expected clamp to 9, got %d", got)
	}
}

func TestOrderFilterCycle(t *testing.T) {
	f := FilterSellAndBuy
	f = NextOrderFilter(f)
	if f != FilterBuy {
		t.Errorf("Expected buy filter, got %s", f)
	}
	f = NextOrderFilter(NextOrderFilter(f))
	if f != FilterSellAndBuy {
		t.Errorf("Expected wrap to all, got %s", f)
	}
	if ParseOrderFilter("sell") != FilterSell {
		t.Error("Expected sell filter from wire name")
	}
}
