package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"spotbook/internal/aggregation"
	"spotbook/internal/logger"
	"spotbook/internal/metrics"
	"spotbook/internal/network"
	"spotbook/internal/sdk"
	"spotbook/internal/types"
	"spotbook/internal/units"
)

// LoadState is the lifecycle of the order book for the selected market
type LoadState int

const (
	StateUninitialized LoadState = iota
	StateLoading
	StateLive
)

func (s LoadState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLive:
		return "live"
	default:
		return "uninitialized"
	}
}

const ohlcvInterval = time.Minute

var (
	half           = decimal.NewFromFloat(0.5)
	depth05Percent = decimal.NewFromFloat(0.005)
	depth2Percent  = decimal.NewFromFloat(0.02)
)

// OrderBookOptions configures subscriptions and polling
type OrderBookOptions struct {
	OrderLimit          int
	TradeLimit          int
	BlockedOrders       []string
	MarketPriceInterval time.Duration
}

// OrderBookSnapshot is a consistent read of the order book for views
type OrderBookSnapshot struct {
	Market         types.Market
	State          LoadState
	DecimalGroup   int32
	Filter         types.OrderFilter
	Buys           []types.PriceLevel
	Sells          []types.PriceLevel
	TotalBuy       decimal.Decimal
	TotalSell      decimal.Decimal
	Spread         decimal.Decimal
	SpreadValid    bool
	SpreadPrice    string
	SpreadPercent  string
	LastTradePrice decimal.Decimal
	MarketPrice    string
	Stats          types.Stats
}

// OrderBookStore tracks the live order book, trades and market prices of the selected market
type OrderBookStore struct {
	net     *network.Network
	account *AccountStore
	opts    OrderBookOptions
	blocked map[string]struct{}
	log     *logrus.Entry
	metrics *metrics.Metrics

	mu         sync.RWMutex
	market     types.Market
	hasMarket  bool
	generation uint64
	buySub     sdk.Subscription
	sellSub    sdk.Subscription
	tradeSub   sdk.Subscription

	buyOrders  []types.SpotMarketOrder
	sellOrders []types.SpotMarketOrder
	buyLoaded  bool
	sellLoaded bool

	decimalGroup int32
	filter       types.OrderFilter

	trades              []types.SpotMarketTrade
	candles             []aggregation.Candle
	histogram           []aggregation.HistogramPoint
	initialLoadComplete bool

	stats        types.Stats
	marketPrices map[string]string

	pricesUpdater *IntervalUpdater
}

// NewOrderBookStore creates the store. Nothing is subscribed until SetMarket.
func NewOrderBookStore(net *network.Network, account *AccountStore, opts OrderBookOptions, m *metrics.Metrics) *OrderBookStore {
	s := &OrderBookStore{
		net:          net,
		account:      account,
		opts:         opts,
		blocked:      aggregation.NewBlockedSet(opts.BlockedOrders...),
		log:          logger.WithComponent("orderbook"),
		metrics:      m,
		marketPrices: make(map[string]string),
	}
	s.pricesUpdater = NewIntervalUpdater("market_prices", opts.MarketPriceInterval, s.UpdateMarketPrices, m)
	return s
}

// Run polls market prices until ctx is done, then tears the subscriptions down
func (s *OrderBookStore) Run(ctx context.Context) {
	s.pricesUpdater.Run(ctx)
	s.Close()
}

// SetMarket switches the book to market. The previous subscriptions are torn down exactly once
// before the new ones are opened, and pushes still in flight for them are discarded.
func (s *OrderBookStore) SetMarket(ctx context.Context, market types.Market) error {
	gen := s.teardown(func() {
		s.market = market
		s.hasMarket = true
		s.decimalGroup = market.Precision
	})

	s.log.WithField("market", market.Symbol()).Info("switching market")

	params := sdk.ActiveOrdersParams{
		Market: []string{market.ContractID},
		Asset:  market.BaseToken.AssetID,
		Limit:  s.opts.OrderLimit,
	}

	buyParams := params
	buyParams.OrderType = types.Buy
	buySub, err := s.net.SubscribeSpotActiveOrders(ctx, buyParams, func(orders []sdk.Order) {
		s.handleOrders(gen, types.Buy, orders)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to buy orders: %w", err)
	}

	sellParams := params
	sellParams.OrderType = types.Sell
	sellSub, err := s.net.SubscribeSpotActiveOrders(ctx, sellParams, func(orders []sdk.Order) {
		s.handleOrders(gen, types.Sell, orders)
	})
	if err != nil {
		buySub.Unsubscribe()
		return fmt.Errorf("failed to subscribe to sell orders: %w", err)
	}

	tradeSub, err := s.net.SubscribeSpotTradeOrderEvents(ctx, sdk.TradeEventsParams{
		Market: []string{market.ContractID},
		Limit:  s.opts.TradeLimit,
	}, func(trades []sdk.TradeEvent) {
		s.handleTrades(gen, trades)
	})
	if err != nil {
		s.log.WithError(err).Error("failed to subscribe to trades")
	}

	s.mu.Lock()
	if s.generation != gen {
		// a newer SetMarket or Close won the race
		s.mu.Unlock()
		for _, sub := range []sdk.Subscription{buySub, sellSub, tradeSub} {
			if sub != nil {
				sub.Unsubscribe()
			}
		}
		return nil
	}
	s.buySub, s.sellSub, s.tradeSub = buySub, sellSub, tradeSub
	s.mu.Unlock()

	s.pricesUpdater.Update()
	return nil
}

// Close tears the current subscriptions down
func (s *OrderBookStore) Close() {
	s.teardown(func() {})
}

// teardown bumps the generation, resets per-market state and unsubscribes the previous streams
func (s *OrderBookStore) teardown(reset func()) uint64 {
	s.mu.Lock()
	old := []sdk.Subscription{s.buySub, s.sellSub, s.tradeSub}
	s.buySub, s.sellSub, s.tradeSub = nil, nil, nil
	s.generation++
	gen := s.generation

	s.buyOrders, s.sellOrders = nil, nil
	s.buyLoaded, s.sellLoaded = false, false
	s.trades, s.candles, s.histogram = nil, nil, nil
	s.initialLoadComplete = false
	s.stats = types.Stats{}
	reset()
	s.mu.Unlock()

	for _, sub := range old {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
	return gen
}

func (s *OrderBookStore) handleOrders(gen uint64, side types.OrderType, raw []sdk.Order) {
	stream := "active_sell"
	if side == types.Buy {
		stream = "active_buy"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.metrics.RecordStalePush(stream)
		return
	}

	orders := make([]types.SpotMarketOrder, 0, len(raw))
	for _, r := range raw {
		order, err := types.NewSpotMarketOrder(r.Params(), s.market)
		if err != nil {
			s.log.WithError(err).Warn("skipping malformed order")
			continue
		}
		orders = append(orders, order)
	}
	orders = aggregation.FilterOrders(orders, s.blocked)

	if side == types.Buy {
		s.buyOrders = orders
		s.buyLoaded = true
		s.stats.BuyPushes++
	} else {
		s.sellOrders = orders
		s.sellLoaded = true
		s.stats.SellPushes++
	}
	s.stats.LastPushTime = time.Now()
	s.metrics.RecordPush(stream)
}

func (s *OrderBookStore) handleTrades(gen uint64, raw []sdk.TradeEvent) {
	address := ""
	if s.account != nil {
		address = s.account.Address()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.metrics.RecordStalePush("trades")
		return
	}

	trades := make([]types.SpotMarketTrade, 0, len(raw))
	for _, r := range raw {
		trade, err := types.NewSpotMarketTrade(r.Params(), s.market, address)
		if err != nil {
			s.log.WithError(err).Warn("skipping malformed trade")
			continue
		}
		trades = append(trades, trade)
	}

	s.trades = trades
	s.candles, s.histogram = aggregation.OHLCV(trades, ohlcvInterval)
	s.initialLoadComplete = true
	s.metrics.RecordPush("trades")
}

// UpdateMarketPrices refreshes the last trade price of every market, formatted at market precision
func (s *OrderBookStore) UpdateMarketPrices(ctx context.Context) error {
	prices := make(map[string]string)
	for _, m := range s.net.GetMarkets() {
		trade, ok, err := s.net.FetchLastTrade(ctx, m.ContractID)
		if err != nil {
			return fmt.Errorf("failed to fetch last trade for %s: %w", m.Symbol(), err)
		}

		price := decimal.Zero
		if ok {
			if price, err = units.ParseString(trade.TradePrice); err != nil {
				return fmt.Errorf("invalid trade price %q for %s: %w", trade.TradePrice, m.Symbol(), err)
			}
		}
		prices[strings.ToLower(m.ContractID)] = units.ToFormat(units.FormatUnits(price, types.DefaultDecimals), m.Precision)
	}

	s.mu.Lock()
	s.marketPrices = prices
	s.mu.Unlock()
	return nil
}

// Market returns the selected market. ok is false before the first SetMarket.
func (s *OrderBookStore) Market() (types.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market, s.hasMarket
}

// State returns the load state of the book
func (s *OrderBookStore) State() LoadState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state()
}

func (s *OrderBookStore) state() LoadState {
	switch {
	case !s.hasMarket:
		return StateUninitialized
	case s.buyLoaded || s.sellLoaded:
		return StateLive
	default:
		return StateLoading
	}
}

// SideLoaded reports whether the side received its first push
func (s *OrderBookStore) SideLoaded(side types.OrderType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if side == types.Buy {
		return s.buyLoaded
	}
	return s.sellLoaded
}

// DecimalGroup returns the grouping precision
func (s *OrderBookStore) DecimalGroup() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decimalGroup
}

// SetDecimalGroup sets the grouping precision, clamped to the market's price decimals
func (s *OrderBookStore) SetDecimalGroup(group int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decimalGroup = types.ClampPrecision(group, s.priceDecimals())
}

// OrderFilter returns which sides the views show
func (s *OrderBookStore) OrderFilter() types.OrderFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetOrderFilter selects which sides the views show
func (s *OrderBookStore) SetOrderFilter(filter types.OrderFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = filter
}

func (s *OrderBookStore) priceDecimals() int32 {
	if s.market.PriceDecimals == 0 {
		return types.DefaultDecimals
	}
	return s.market.PriceDecimals
}

// BuyOrders returns the buy side grouped at the decimal group, best price first
func (s *OrderBookStore) BuyOrders() []types.PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregation.New(s.priceDecimals(), s.decimalGroup).AggregateBuys(s.buyOrders)
}

// SellOrders returns the sell side grouped at the decimal group, best price first
func (s *OrderBookStore) SellOrders() []types.PriceLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return aggregation.New(s.priceDecimals(), s.decimalGroup).AggregateSells(s.sellOrders)
}

// TotalBuy is the summed initial quote amount of the buy side
func (s *OrderBookStore) TotalBuy() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalBuy()
}

func (s *OrderBookStore) totalBuy() decimal.Decimal {
	total := decimal.Zero
	for _, o := range s.buyOrders {
		total = total.Add(o.InitialQuoteAmount())
	}
	return total
}

// TotalSell is the summed initial base amount of the sell side
func (s *OrderBookStore) TotalSell() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalSell()
}

func (s *OrderBookStore) totalSell() decimal.Decimal {
	total := decimal.Zero
	for _, o := range s.sellOrders {
		total = total.Add(o.InitialAmount)
	}
	return total
}

func (s *OrderBookStore) maxBuyPrice() decimal.Decimal {
	best := decimal.Zero
	for i, o := range s.buyOrders {
		if i == 0 || o.Price.GreaterThan(best) {
			best = o.Price
		}
	}
	return best
}

func (s *OrderBookStore) minSellPrice() decimal.Decimal {
	best := decimal.Zero
	for i, o := range s.sellOrders {
		if i == 0 || o.Price.LessThan(best) {
			best = o.Price
		}
	}
	return best
}

// Spread returns min sell minus max buy in raw price units. ok is false when either side is empty.
func (s *OrderBookStore) Spread() (spread decimal.Decimal, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spread()
}

func (s *OrderBookStore) spread() (decimal.Decimal, bool) {
	maxBuy, minSell := s.maxBuyPrice(), s.minSellPrice()
	return minSell.Sub(maxBuy), !maxBuy.IsZero() && !minSell.IsZero()
}

// SpreadPrice renders the spread with four significant digits
func (s *OrderBookStore) SpreadPrice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spreadPrice()
}

func (s *OrderBookStore) spreadPrice() string {
	spread, _ := s.spread()
	return units.ToSignificant(units.FormatUnits(spread, s.priceDecimals()), 4)
}

// SpreadPercent renders the spread as a percentage of the best buy price
func (s *OrderBookStore) SpreadPercent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spreadPercent()
}

func (s *OrderBookStore) spreadPercent() string {
	spread, _ := s.spread()
	return units.ToFormat(units.RatioOf(spread, s.maxBuyPrice()), 2)
}

// Trades returns the latest trades, newest first
func (s *OrderBookStore) Trades() []types.SpotMarketTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.SpotMarketTrade(nil), s.trades...)
}

// LastTradePrice returns the raw price of the newest trade, zero when there is none
func (s *OrderBookStore) LastTradePrice() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastTradePrice()
}

func (s *OrderBookStore) lastTradePrice() decimal.Decimal {
	if len(s.trades) == 0 {
		return decimal.Zero
	}
	return s.trades[0].TradePrice
}

// OHLCV returns one-minute candles and the matching volume histogram
func (s *OrderBookStore) OHLCV() ([]aggregation.Candle, []aggregation.HistogramPoint) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]aggregation.Candle(nil), s.candles...), append([]aggregation.HistogramPoint(nil), s.histogram...)
}

// IsTradesLoading reports whether the first trade push is still pending
func (s *OrderBookStore) IsTradesLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.initialLoadComplete
}

// MarketPrice returns the formatted last price of the selected market
func (s *OrderBookStore) MarketPrice() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marketPrices[strings.ToLower(s.market.ContractID)]
}

// MarketPriceByContractID returns the formatted last price of a market, empty before the first poll
func (s *OrderBookStore) MarketPriceByContractID(contractID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marketPrices[strings.ToLower(contractID)]
}

// MarketPrices returns formatted last prices keyed by lowercase contract id
func (s *OrderBookStore) MarketPrices() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.marketPrices))
	for k, v := range s.marketPrices {
		out[k] = v
	}
	return out
}

// Stats returns the book statistics with liquidity depth in human units
func (s *OrderBookStore) Stats() types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computeStats()
}

func (s *OrderBookStore) computeStats() types.Stats {
	stats := s.stats
	stats.BuyOrders = len(s.buyOrders)
	stats.SellOrders = len(s.sellOrders)

	priceDecimals := s.priceDecimals()
	baseDecimals := s.market.BaseToken.Decimals
	bestBuy := units.FormatUnits(s.maxBuyPrice(), priceDecimals)
	bestSell := units.FormatUnits(s.minSellPrice(), priceDecimals)
	stats.BestBuy = bestBuy
	stats.BestSell = bestSell

	spread, valid := s.spread()
	stats.Spread = units.FormatUnits(spread, priceDecimals)
	stats.SpreadValid = valid

	totalBuy := decimal.Zero
	for _, o := range s.buyOrders {
		totalBuy = totalBuy.Add(units.FormatUnits(o.CurrentAmount, baseDecimals))
	}
	totalSell := decimal.Zero
	for _, o := range s.sellOrders {
		totalSell = totalSell.Add(units.FormatUnits(o.CurrentAmount, baseDecimals))
	}
	stats.TotalBuyQty = totalBuy
	stats.TotalSellQty = totalSell
	stats.TotalDelta = totalBuy.Sub(totalSell)

	if !valid {
		return stats
	}

	midPrice := bestBuy.Add(bestSell).Mul(half)
	minBuy05 := midPrice.Sub(midPrice.Mul(depth05Percent))
	minBuy2 := midPrice.Sub(midPrice.Mul(depth2Percent))
	maxSell05 := midPrice.Add(midPrice.Mul(depth05Percent))
	maxSell2 := midPrice.Add(midPrice.Mul(depth2Percent))

	for _, o := range s.buyOrders {
		price := units.FormatUnits(o.Price, priceDecimals)
		qty := units.FormatUnits(o.CurrentAmount, baseDecimals)
		if price.GreaterThanOrEqual(minBuy05) {
			stats.BidLiquidity05Pct = stats.BidLiquidity05Pct.Add(qty)
		}
		if price.GreaterThanOrEqual(minBuy2) {
			stats.BidLiquidity2Pct = stats.BidLiquidity2Pct.Add(qty)
		}
	}

	for _, o := range s.sellOrders {
		price := units.FormatUnits(o.Price, priceDecimals)
		qty := units.FormatUnits(o.CurrentAmount, baseDecimals)
		if price.LessThanOrEqual(maxSell05) {
			stats.AskLiquidity05Pct = stats.AskLiquidity05Pct.Add(qty)
		}
		if price.LessThanOrEqual(maxSell2) {
			stats.AskLiquidity2Pct = stats.AskLiquidity2Pct.Add(qty)
		}
	}

	return stats
}

// Snapshot returns a consistent view of the book. Sides hidden by the filter are empty;
// top > 0 keeps only the best top levels per side.
func (s *OrderBookStore) Snapshot(top int) OrderBookSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg := aggregation.New(s.priceDecimals(), s.decimalGroup)
	var buys, sells []types.PriceLevel
	if s.filter != types.FilterSell {
		buys = agg.AggregateBuys(s.buyOrders)
	}
	if s.filter != types.FilterBuy {
		sells = agg.AggregateSells(s.sellOrders)
	}
	if top > 0 {
		if len(buys) > top {
			buys = buys[:top]
		}
		if len(sells) > top {
			sells = sells[:top]
		}
	}

	spread, valid := s.spread()
	return OrderBookSnapshot{
		Market:         s.market,
		State:          s.state(),
		DecimalGroup:   s.decimalGroup,
		Filter:         s.filter,
		Buys:           buys,
		Sells:          sells,
		TotalBuy:       s.totalBuy(),
		TotalSell:      s.totalSell(),
		Spread:         spread,
		SpreadValid:    valid,
		SpreadPrice:    s.spreadPrice(),
		SpreadPercent:  s.spreadPercent(),
		LastTradePrice: s.lastTradePrice(),
		MarketPrice:    s.marketPrices[strings.ToLower(s.market.ContractID)],
		Stats:          s.computeStats(),
	}
}
