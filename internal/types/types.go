package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is the fixed-point scale of every on-chain price
const DefaultDecimals int32 = 9

// OrderType is the side of an order
type OrderType string

const (
	Buy  OrderType = "Buy"
	Sell OrderType = "Sell"
)

// RoundingMode selects how prices collapse into a bucket
type RoundingMode int

const (
	// RoundDown floors prices, used for the buy side
	RoundDown RoundingMode = iota
	// RoundUp ceils prices, used for the sell side
	RoundUp
)

// RoundingFor returns the bucketing mode for a side
func RoundingFor(side OrderType) RoundingMode {
	if side == Buy {
		return RoundDown
	}
	return RoundUp
}

// OrderFilter selects which sides of the book are displayed
type OrderFilter int

const (
	FilterSellAndBuy OrderFilter = iota
	FilterBuy
	FilterSell
)

// AvailableOrderFilters lists filters in display order
var AvailableOrderFilters = []OrderFilter{FilterSellAndBuy, FilterBuy, FilterSell}

func (f OrderFilter) String() string {
	switch f {
	case FilterBuy:
		return "buy"
	case FilterSell:
		return "sell"
	default:
		return "all"
	}
}

// ParseOrderFilter maps a wire name back to a filter, defaulting to both sides
func ParseOrderFilter(s string) OrderFilter {
	switch s {
	case "buy":
		return FilterBuy
	case "sell":
		return FilterSell
	default:
		return FilterSellAndBuy
	}
}

// NextOrderFilter cycles through the available filters
func NextOrderFilter(current OrderFilter) OrderFilter {
	for i, f := range AvailableOrderFilters {
		if f == current {
			return AvailableOrderFilters[(i+1)%len(AvailableOrderFilters)]
		}
	}
	return AvailableOrderFilters[0]
}

// PriceLevel is one bucket of the grouped order book. Price and quantities are raw fixed-point values.
type PriceLevel struct {
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	QuoteQuantity decimal.Decimal
	Orders        int
}

// NextPrecision returns a finer grouping precision, wrapping to 0 past max
func NextPrecision(current, max int32) int32 {
	if current+1 > max {
		return 0
	}
	return current + 1
}

// PreviousPrecision returns a coarser grouping precision, wrapping to max below 0
func PreviousPrecision(current, max int32) int32 {
	if current-1 < 0 {
		return max
	}
	return current - 1
}

// ClampPrecision bounds a grouping precision to [0, max]
func ClampPrecision(p, max int32) int32 {
	if p < 0 {
		return 0
	}
	if p > max {
		return max
	}
	return p
}

// Stats holds statistical information about the order book
type Stats struct {
	LastPushTime time.Time
	BuyPushes    int64
	SellPushes   int64
	BuyOrders    int
	SellOrders   int
	BestBuy      decimal.Decimal
	BestSell     decimal.Decimal
	Spread       decimal.Decimal
	SpreadValid  bool

	// Liquidity depth metrics (in base asset units)
	BidLiquidity05Pct decimal.Decimal // Total bid size within 0.5% of mid
	AskLiquidity05Pct decimal.Decimal // Total ask size within 0.5% of mid
	BidLiquidity2Pct  decimal.Decimal // Total bid size within 2% of mid
	AskLiquidity2Pct  decimal.Decimal // Total ask size within 2% of mid

	TotalBuyQty  decimal.Decimal
	TotalSellQty decimal.Decimal
	TotalDelta   decimal.Decimal // TotalBuyQty - TotalSellQty (positive = more bids)
}
