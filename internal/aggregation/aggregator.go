package aggregation

import (
	"strings"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"spotbook/internal/types"
)

const btreeDegree = 32

// Aggregator groups order book sides at a decimal precision
type Aggregator struct {
	priceDecimals int32
	precision     int32
}

// New creates a new Aggregator for prices scaled by priceDecimals
func New(priceDecimals, precision int32) *Aggregator {
	return &Aggregator{
		priceDecimals: priceDecimals,
		precision:     types.ClampPrecision(precision, priceDecimals),
	}
}

// SetPrecision updates the grouping precision, clamped to [0, priceDecimals]
func (a *Aggregator) SetPrecision(precision int32) {
	a.precision = types.ClampPrecision(precision, a.priceDecimals)
}

// GetPrecision returns the current grouping precision
func (a *Aggregator) GetPrecision() int32 {
	return a.precision
}

// AggregateBuys groups buy orders (floors prices) sorted by price descending
func (a *Aggregator) AggregateBuys(orders []types.SpotMarketOrder) []types.PriceLevel {
	tree := group(orders, a.priceDecimals, a.precision, types.RoundDown)
	levels := make([]types.PriceLevel, 0, tree.Len())
	tree.Descend(func(level *types.PriceLevel) bool {
		levels = append(levels, *level)
		return true
	})
	return levels
}

// AggregateSells groups sell orders (ceils prices) sorted by price ascending
func (a *Aggregator) AggregateSells(orders []types.SpotMarketOrder) []types.PriceLevel {
	tree := group(orders, a.priceDecimals, a.precision, types.RoundUp)
	levels := make([]types.PriceLevel, 0, tree.Len())
	tree.Ascend(func(level *types.PriceLevel) bool {
		levels = append(levels, *level)
		return true
	})
	return levels
}

// Group collapses orders into price buckets at precision decimal places, ascending by price.
// Every order's remaining amount lands in exactly one bucket.
func Group(orders []types.SpotMarketOrder, priceDecimals, precision int32, mode types.RoundingMode) []types.PriceLevel {
	tree := group(orders, priceDecimals, types.ClampPrecision(precision, priceDecimals), mode)
	levels := make([]types.PriceLevel, 0, tree.Len())
	tree.Ascend(func(level *types.PriceLevel) bool {
		levels = append(levels, *level)
		return true
	})
	return levels
}

func group(orders []types.SpotMarketOrder, priceDecimals, precision int32, mode types.RoundingMode) *btree.BTreeG[*types.PriceLevel] {
	tree := btree.NewG(btreeDegree, func(a, b *types.PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	})

	for _, order := range orders {
		rounded := RoundPrice(order.Price, priceDecimals, precision, mode)

		if existing, ok := tree.Get(&types.PriceLevel{Price: rounded}); ok {
			existing.Quantity = existing.Quantity.Add(order.CurrentAmount)
			existing.QuoteQuantity = existing.QuoteQuantity.Add(order.CurrentQuoteAmount())
			existing.Orders++
			continue
		}

		tree.ReplaceOrInsert(&types.PriceLevel{
			Price:         rounded,
			Quantity:      order.CurrentAmount,
			QuoteQuantity: order.CurrentQuoteAmount(),
			Orders:        1,
		})
	}

	return tree
}

// RoundPrice rounds a raw price to precision human decimal places.
// RoundDown floors (buy side), RoundUp ceils (sell side).
func RoundPrice(price decimal.Decimal, priceDecimals, precision int32, mode types.RoundingMode) decimal.Decimal {
	shift := priceDecimals - precision
	if shift <= 0 {
		return price
	}

	scaled := price.Shift(-shift)
	if mode == types.RoundUp {
		scaled = scaled.Ceil()
	} else {
		scaled = scaled.Floor()
	}
	return scaled.Shift(shift)
}

// Cumulative returns running quantity totals in the order the levels are given
func Cumulative(levels []types.PriceLevel) []decimal.Decimal {
	out := make([]decimal.Decimal, len(levels))
	total := decimal.Zero
	for i, level := range levels {
		total = total.Add(level.Quantity)
		out[i] = total
	}
	return out
}

// FilterOrders drops orders whose id is in the blocked set
func FilterOrders(orders []types.SpotMarketOrder, blocked map[string]struct{}) []types.SpotMarketOrder {
	if len(blocked) == 0 {
		return orders
	}

	filtered := make([]types.SpotMarketOrder, 0, len(orders))
	for _, order := range orders {
		if _, skip := blocked[normalizeID(order.ID)]; skip {
			continue
		}
		filtered = append(filtered, order)
	}
	return filtered
}

// NewBlockedSet builds a case-insensitive order id set for FilterOrders
func NewBlockedSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[normalizeID(id)] = struct{}{}
	}
	return set
}

func normalizeID(id string) string {
	return strings.ToLower(id)
}
