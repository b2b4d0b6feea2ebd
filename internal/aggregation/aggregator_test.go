package aggregation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"spotbook/internal/types"
)

var (
	testBase  = types.Token{Symbol: "BTC", Decimals: 8}
	testQuote = types.Token{Symbol: "USDC", Decimals: 6}
)

func order(id, price, amount string, priceDecimals int32) types.SpotMarketOrder {
	return types.SpotMarketOrder{
		ID:            id,
		BaseToken:     testBase,
		QuoteToken:    testQuote,
		PriceDecimals: priceDecimals,
		Price:         decimal.RequireFromString(price),
		InitialAmount: decimal.RequireFromString(amount),
		CurrentAmount: decimal.RequireFromString(amount),
	}
}

func TestNew(t *testing.T) {
	agg := New(9, 2)

	if agg == nil {
		t.Fatal("New() returned nil")
	}

	if agg.GetPrecision() != 2 {
		t.Errorf("Expected precision 2, got %d", agg.GetPrecision())
	}
}

func TestSetPrecisionClamps(t *testing.T) {
	agg := New(9, 0)

	agg.SetPrecision(12)
	if agg.GetPrecision() != 9 {
		t.Errorf("Expected precision clamped to 9, got %d", agg.GetPrecision())
	}

	agg.SetPrecision(-3)
	if agg.GetPrecision() != 0 {
		t.Errorf("Expected precision clamped to 0, got %d", agg.GetPrecision())
	}
}

func TestGroupSellRoundsUp(t *testing.T) {
	// one price decimal: raw 100 is 10.0, raw 104 is 10.4; whole units ceil to the next 10 raw
	tests := []struct {
		name     string
		orders   []types.SpotMarketOrder
		expected []types.PriceLevel
	}{
		{
			name: "pair inside one bucket merges",
			orders: []types.SpotMarketOrder{
				order("a", "101", "5", 1),
				order("b", "104", "3", 1),
			},
			expected: []types.PriceLevel{
				{Price: decimal.NewFromInt(110), Quantity: decimal.NewFromInt(8), Orders: 2},
			},
		},
		{
			name: "exact bucket boundary stays put",
			orders: []types.SpotMarketOrder{
				order("a", "100", "5", 1),
				order("b", "104", "3", 1),
			},
			expected: []types.PriceLevel{
				{Price: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(5), Orders: 1},
				{Price: decimal.NewFromInt(110), Quantity: decimal.NewFromInt(3), Orders: 1},
			},
		},
		{
			name: "boundary joins the bucket below it",
			orders: []types.SpotMarketOrder{
				order("a", "110", "5", 1),
				order("b", "104", "3", 1),
			},
			expected: []types.PriceLevel{
				{Price: decimal.NewFromInt(110), Quantity: decimal.NewFromInt(8), Orders: 2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Group(tt.orders, 1, 0, types.RoundUp)

			if len(result) != len(tt.expected) {
				t.Fatalf("Expected %d buckets, got %d", len(tt.expected), len(result))
			}
			for i, want := range tt.expected {
				got := result[i]
				if !got.Price.Equal(want.Price) {
					t.Errorf("bucket %d: Expected price %s, got %s", i, want.Price, got.Price)
				}
				if !got.Quantity.Equal(want.Quantity) {
					t.Errorf("bucket %d: Expected amount %s, got %s", i, want.Quantity, got.Quantity)
				}
				if got.Orders != want.Orders {
					t.Errorf("bucket %d: Expected %d orders, got %d", i, want.Orders, got.Orders)
				}
			}
		})
	}
}

func TestAggregateBuys(t *testing.T) {
	tests := []struct {
		name      string
		precision int32
		orders    []types.SpotMarketOrder
		expected  int
	}{
		{
			name:      "No aggregation needed - precision 1",
			precision: 1,
			orders: []types.SpotMarketOrder{
				order("1", "50000100000000", "100", 9),
				order("2", "50000200000000", "150", 9),
			},
			expected: 2,
		},
		{
			name:      "Aggregation needed - precision 0",
			precision: 0,
			orders: []types.SpotMarketOrder{
				order("1", "50000100000000", "100", 9),
				order("2", "50000900000000", "150", 9),
			},
			expected: 1, // Both floor to 50000
		},
		{
			name:      "Empty orders",
			precision: 0,
			orders:    []types.SpotMarketOrder{},
			expected:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := New(9, tt.precision)
			result := agg.AggregateBuys(tt.orders)

			if len(result) != tt.expected {
				t.Errorf("Expected %d aggregated levels, got %d", tt.expected, len(result))
			}

			if len(result) == 1 && len(tt.orders) > 1 {
				expectedQty := decimal.Zero
				for _, o := range tt.orders {
					expectedQty = expectedQty.Add(o.CurrentAmount)
				}

				if !result[0].Quantity.Equal(expectedQty) {
					t.Errorf("Expected aggregated quantity %s, got %s", expectedQty, result[0].Quantity)
				}
				if !result[0].Price.Equal(decimal.RequireFromString("50000000000000")) {
					t.Errorf("Expected floored price 50000000000000, got %s", result[0].Price)
				}
			}
		})
	}
}

func TestAggregateSells(t *testing.T) {
	agg := New(9, 0)
	result := agg.AggregateSells([]types.SpotMarketOrder{
		order("1", "50001100000000", "100", 9),
		order("2", "50001900000000", "150", 9),
	})

	if len(result) != 1 {
		t.Fatalf("Expected 1 aggregated level, got %d", len(result))
	}
	if !result[0].Price.Equal(decimal.RequireFromString("50002000000000")) {
		t.Errorf("Expected ceiled price 50002000000000, got %s", result[0].Price)
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		name      string
		price     string
		precision int32
		mode      types.RoundingMode
		expected  string
	}{
		{name: "Round down whole units", price: "50000900000000", precision: 0, mode: types.RoundDown, expected: "50000000000000"},
		{name: "Round up whole units", price: "50000100000000", precision: 0, mode: types.RoundUp, expected: "50001000000000"},
		{name: "Round up two decimals", price: "1234561000000", precision: 2, mode: types.RoundUp, expected: "1234570000000"},
		{name: "Already aligned up", price: "50000000000000", precision: 0, mode: types.RoundUp, expected: "50000000000000"},
		{name: "Full precision unchanged", price: "123456789", precision: 9, mode: types.RoundDown, expected: "123456789"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundPrice(decimal.RequireFromString(tt.price), 9, tt.precision, tt.mode)
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestGroupingProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for precision := int32(0); precision <= 9; precision++ {
		orders := make([]types.SpotMarketOrder, 200)
		total := decimal.Zero
		for i := range orders {
			price := decimal.NewFromInt(rng.Int63n(1_000_000_000_000) + 1)
			amount := decimal.NewFromInt(rng.Int63n(1_000_000) + 1)
			orders[i] = types.SpotMarketOrder{
				BaseToken: testBase, QuoteToken: testQuote, PriceDecimals: 9,
				Price: price, InitialAmount: amount, CurrentAmount: amount,
			}
			total = total.Add(amount)
		}

		agg := New(9, precision)
		buys := agg.AggregateBuys(orders)
		sells := agg.AggregateSells(orders)

		for _, side := range [][]types.PriceLevel{buys, sells} {
			sum := decimal.Zero
			for _, level := range side {
				sum = sum.Add(level.Quantity)
			}
			if !sum.Equal(total) {
				t.Fatalf("precision %d: expected conserved total %s, got %s", precision, total, sum)
			}
		}

		for i := 1; i < len(buys); i++ {
			if buys[i].Price.GreaterThan(buys[i-1].Price) {
				t.Fatalf("precision %d: buy levels not non-increasing at %d", precision, i)
			}
		}
		for i := 1; i < len(sells); i++ {
			if sells[i].Price.LessThan(sells[i-1].Price) {
				t.Fatalf("precision %d: sell levels not non-decreasing at %d", precision, i)
			}
		}

		for _, o := range orders {
			down := RoundPrice(o.Price, 9, precision, types.RoundDown)
			up := RoundPrice(o.Price, 9, precision, types.RoundUp)
			if down.GreaterThan(o.Price) {
				t.Fatalf("precision %d: buy rounding went up for %s", precision, o.Price)
			}
			if up.LessThan(o.Price) {
				t.Fatalf("precision %d: sell rounding went down for %s", precision, o.Price)
			}
		}
	}
}

func TestCumulative(t *testing.T) {
	levels := []types.PriceLevel{
		{Quantity: decimal.NewFromInt(1)},
		{Quantity: decimal.NewFromInt(2)},
		{Quantity: decimal.NewFromInt(3)},
	}

	got := Cumulative(levels)
	want := []int64{1, 3, 6}
	for i, w := range want {
		if !got[i].Equal(decimal.NewFromInt(w)) {
			t.Errorf("Expected cumulative %d at %d, got %s", w, i, got[i])
		}
	}
}

func TestFilterOrders(t *testing.T) {
	orders := []types.SpotMarketOrder{
		order("0xABC", "1", "1", 9),
		order("0xdef", "1", "1", 9),
	}

	filtered := FilterOrders(orders, NewBlockedSet("0xabc"))

	if len(filtered) != 1 || filtered[0].ID != "0xdef" {
		t.Errorf("Expected only 0xdef to remain, got %+v", filtered)
	}
}

func TestOHLCV(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	trade := func(offset time.Duration, price, size string) types.SpotMarketTrade {
		return types.SpotMarketTrade{
			BaseToken:     testBase,
			PriceDecimals: 9,
			TradePrice:    decimal.RequireFromString(price),
			TradeSize:     decimal.RequireFromString(size),
			Timestamp:     base.Add(offset),
		}
	}

	// newest first, as the indexer returns them
	trades := []types.SpotMarketTrade{
		trade(70*time.Second, "9000000000", "100000000"),
		trade(30*time.Second, "12000000000", "100000000"),
		trade(10*time.Second, "8000000000", "100000000"),
		trade(0, "10000000000", "200000000"),
	}

	candles, histogram := OHLCV(trades, time.Minute)

	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}

	first := candles[0]
	if !first.Open.Equal(decimal.NewFromInt(10)) || !first.High.Equal(decimal.NewFromInt(12)) ||
		!first.Low.Equal(decimal.NewFromInt(8)) || !first.Close.Equal(decimal.NewFromInt(12)) {
		t.Errorf("Unexpected first candle %+v", first)
	}
	if !first.Volume.Equal(decimal.NewFromInt(4)) {
		t.Errorf("Expected volume 4, got %s", first.Volume)
	}
	if histogram[0].Color != histogramUpColor {
		t.Errorf("Expected up colour for rising candle, got %s", histogram[0].Color)
	}
	if candles[1].Time != base.Add(time.Minute).Unix() {
		t.Errorf("Expected second candle at %d, got %d", base.Add(time.Minute).Unix(), candles[1].Time)
	}
}

// Benchmarks

func BenchmarkAggregateBuys(b *testing.B) {
	agg := New(9, 0)

	orders := make([]types.SpotMarketOrder, 1000)
	for i := 0; i < 1000; i++ {
		orders[i] = types.SpotMarketOrder{
			BaseToken: testBase, QuoteToken: testQuote, PriceDecimals: 9,
			Price:         decimal.NewFromInt(int64(50000-i)*1_000_000_000 + 500_000_000),
			CurrentAmount: decimal.NewFromInt(100),
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		agg.AggregateBuys(orders)
	}
}

func BenchmarkAggregateSells(b *testing.B) {
	agg := New(9, 0)

	orders := make([]types.SpotMarketOrder, 1000)
	for i := 0; i < 1000; i++ {
		orders[i] = types.SpotMarketOrder{
			BaseToken: testBase, QuoteToken: testQuote, PriceDecimals: 9,
			Price:         decimal.NewFromInt(int64(50001+i)*1_000_000_000 + 500_000_000),
			CurrentAmount: decimal.NewFromInt(100),
		}
	}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		agg.AggregateSells(orders)
	}
}
