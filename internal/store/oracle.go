package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/metrics"
	"spotbook/internal/network"
	"spotbook/internal/oracle"
	"spotbook/internal/units"
)

// PriceSource returns the latest raw index prices keyed by "0x" + feed id
type PriceSource interface {
	LatestPrices(ctx context.Context, feedIDs []string) (map[string]decimal.Decimal, error)
}

// OracleStore keeps index prices for every token with a price feed
type OracleStore struct {
	net    *network.Network
	trade  *TradeStore
	source PriceSource

	mu          sync.RWMutex
	prices      map[string]decimal.Decimal
	initialized bool

	updater *IntervalUpdater
}

func NewOracleStore(net *network.Network, trade *TradeStore, source PriceSource, interval time.Duration, m *metrics.Metrics) *OracleStore {
	s := &OracleStore{
		net:    net,
		trade:  trade,
		source: source,
		prices: make(map[string]decimal.Decimal),
	}
	s.updater = NewIntervalUpdater("oracle", interval, s.Update, m)
	return s
}

// Run polls token prices until ctx is cancelled
func (s *OracleStore) Run(ctx context.Context) {
	s.updater.Run(ctx)
}

// Update fetches prices for every token whose feed id is not the zero feed
func (s *OracleStore) Update(ctx context.Context) error {
	var feeds []string
	for _, t := range s.net.GetTokenList() {
		if oracle.IsZeroFeed(t.PriceFeed) {
			continue
		}
		feeds = append(feeds, t.PriceFeed)
	}

	prices, err := s.source.LatestPrices(ctx, feeds)
	if err != nil {
		return fmt.Errorf("failed to fetch oracle prices: %w", err)
	}

	s.mu.Lock()
	s.prices = prices
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// Initialized reports whether the first price poll finished
func (s *OracleStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Prices returns raw index prices keyed by "0x" + feed id
func (s *OracleStore) Prices() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out
}

// TokenIndexPrice returns the feed price at the 9 decimal price scale, zero when the feed has no price.
// Hermes reports 8 decimals, so the value gains one.
func (s *OracleStore) TokenIndexPrice(priceFeed string) decimal.Decimal {
	s.mu.RLock()
	price, ok := s.prices[strings.ToLower(priceFeed)]
	s.mu.RUnlock()
	if !ok || price.IsZero() {
		return decimal.Zero
	}
	return units.ParseUnits(price, 1)
}

// MarketIndexPrice returns the index price of the selected market's base token
func (s *OracleStore) MarketIndexPrice() decimal.Decimal {
	market, ok := s.trade.Market()
	if !ok {
		return decimal.Zero
	}
	return s.TokenIndexPrice(market.BaseToken.PriceFeed)
}
