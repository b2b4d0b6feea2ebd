package aggregation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/types"
	"spotbook/internal/units"
)

const (
	histogramUpColor   = "#26a69a"
	histogramDownColor = "#ef5350"
)

// Candle is one OHLCV bar in human units
type Candle struct {
	Time   int64 // unix seconds at the bar start
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// HistogramPoint is one volume bar for the chart
type HistogramPoint struct {
	Time  int64
	Value decimal.Decimal
	Color string
}

// OHLCV buckets trades into candles of the given interval, ascending by time
func OHLCV(trades []types.SpotMarketTrade, interval time.Duration) ([]Candle, []HistogramPoint) {
	if len(trades) == 0 || interval <= 0 {
		return nil, nil
	}

	sorted := make([]types.SpotMarketTrade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	candles := make([]Candle, 0)
	for _, trade := range sorted {
		bar := trade.Timestamp.Truncate(interval).Unix()
		price := units.FormatUnits(trade.TradePrice, trade.PriceDecimals)
		size := units.FormatUnits(trade.TradeSize, trade.BaseToken.Decimals)

		if n := len(candles); n > 0 && candles[n-1].Time == bar {
			c := &candles[n-1]
			if price.GreaterThan(c.High) {
				c.High = price
			}
			if price.LessThan(c.Low) {
				c.Low = price
			}
			c.Close = price
			c.Volume = c.Volume.Add(size)
			continue
		}

		candles = append(candles, Candle{
			Time:   bar,
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: size,
		})
	}

	histogram := make([]HistogramPoint, len(candles))
	for i, c := range candles {
		color := histogramUpColor
		if c.Close.LessThan(c.Open) {
			color = histogramDownColor
		}
		histogram[i] = HistogramPoint{Time: c.Time, Value: c.Volume, Color: color}
	}

	return candles, histogram
}
