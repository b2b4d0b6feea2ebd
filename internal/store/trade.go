package store

import (
	"fmt"
	"strings"
	"sync"

	"spotbook/internal/network"
	"spotbook/internal/types"
)

// TradeStore holds the selected market
type TradeStore struct {
	net *network.Network

	mu        sync.RWMutex
	market    types.Market
	hasMarket bool
}

func NewTradeStore(net *network.Network) *TradeStore {
	return &TradeStore{net: net}
}

// SetMarket selects a market by contract id or BASE-QUOTE symbol and makes it the SDK's active market
func (s *TradeStore) SetMarket(idOrSymbol string) (types.Market, error) {
	market, ok := s.net.GetMarketByID(idOrSymbol)
	if !ok {
		market, ok = s.net.Bundle().MarketBySymbol(strings.ToUpper(idOrSymbol))
	}
	if !ok {
		return types.Market{}, fmt.Errorf("unknown market %q", idOrSymbol)
	}

	s.mu.Lock()
	s.market = market
	s.hasMarket = true
	s.mu.Unlock()

	s.net.SetActiveMarket(market.ContractID)
	return market, nil
}

// Market returns the selected market. ok is false before the first SetMarket.
func (s *TradeStore) Market() (types.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market, s.hasMarket
}

// MarketSymbol returns BASE-QUOTE of the selected market, empty when none
func (s *TradeStore) MarketSymbol() string {
	m, ok := s.Market()
	if !ok {
		return ""
	}
	return m.Symbol()
}

// Markets lists every configured market
func (s *TradeStore) Markets() []types.Market {
	return s.net.GetMarkets()
}

// NextMarket returns the market after the selected one, wrapping around
func (s *TradeStore) NextMarket() (types.Market, bool) {
	markets := s.Markets()
	if len(markets) == 0 {
		return types.Market{}, false
	}

	current, ok := s.Market()
	if !ok {
		return markets[0], true
	}
	for i, m := range markets {
		if strings.EqualFold(m.ContractID, current.ContractID) {
			return markets[(i+1)%len(markets)], true
		}
	}
	return markets[0], true
}
