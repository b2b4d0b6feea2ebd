package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/oracle"
)

type stubPrices struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	err    error
	asked  [][]string
}

func (s *stubPrices) LatestPrices(_ context.Context, feedIDs []string) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asked = append(s.asked, feedIDs)
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]decimal.Decimal, len(s.prices))
	for k, v := range s.prices {
		out[k] = v
	}
	return out, nil
}

func TestOracleUpdate(t *testing.T) {
	f := newFixture(t)
	btc := f.token(t, "BTC")
	source := &stubPrices{prices: map[string]decimal.Decimal{
		btc.PriceFeed: decimal.NewFromInt(6000012345678),
	}}

	trade := NewTradeStore(f.net)
	s := NewOracleStore(f.net, trade, source, time.Hour, nil)

	if err := s.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !s.Initialized() {
		t.Error("Expected oracle initialized after update")
	}

	if len(source.asked) != 1 {
		t.Fatalf("Expected one price request, got %d", len(source.asked))
	}
	for _, id := range source.asked[0] {
		if oracle.IsZeroFeed(id) {
			t.Errorf("Expected zero feed to be skipped, got %s", id)
		}
	}
	if len(source.asked[0]) != 3 {
		t.Errorf("Expected 3 feeds requested, got %v", source.asked[0])
	}

	want := decimal.NewFromInt(60000123456780)
	if got := s.TokenIndexPrice(btc.PriceFeed); !got.Equal(want) {
		t.Errorf("Expected index price %s, got %s", want, got)
	}
	if got := s.TokenIndexPrice(f.token(t, "ETH").PriceFeed); !got.IsZero() {
		t.Errorf("Expected zero for a feed without price, got %s", got)
	}

	if !s.MarketIndexPrice().IsZero() {
		t.Error("Expected zero market index price without a market")
	}
	if _, err := trade.SetMarket("btc-usdc"); err != nil {
		t.Fatalf("SetMarket() error = %v", err)
	}
	if got := s.MarketIndexPrice(); !got.Equal(want) {
		t.Errorf("Expected market index price %s, got %s", want, got)
	}
}

func TestOracleUpdateErrorKeepsPrices(t *testing.T) {
	f := newFixture(t)
	btc := f.token(t, "BTC")
	source := &stubPrices{prices: map[string]decimal.Decimal{btc.PriceFeed: decimal.NewFromInt(1)}}
	s := NewOracleStore(f.net, NewTradeStore(f.net), source, time.Hour, nil)

	if err := s.Update(context.Background()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	source.err = errors.New("hermes down")
	if err := s.Update(context.Background()); err == nil {
		t.Fatal("Expected update error")
	}
	if len(s.Prices()) != 1 {
		t.Errorf("Expected previous prices kept, got %v", s.Prices())
	}
}
