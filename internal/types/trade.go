package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/units"
)

// TradeSide is the connected user's side of a trade, empty when the user is neither party
type TradeSide string

const (
	TradeBuy  TradeSide = "BUY"
	TradeSell TradeSide = "SELL"
)

// SpotMarketTrade is a matched trade event
type SpotMarketTrade struct {
	ID            string
	Market        string
	BaseToken     Token
	QuoteToken    Token
	PriceDecimals int32
	Buyer         string
	Seller        string
	TradeSize     decimal.Decimal // raw base units
	TradePrice    decimal.Decimal // raw, PriceDecimals scale
	Timestamp     time.Time
	Side          TradeSide
}

// TradeParams carries the raw string fields of a trade event
type TradeParams struct {
	ID         string
	Market     string
	Buyer      string
	Seller     string
	TradeSize  string
	TradePrice string
	Timestamp  time.Time
}

// NewSpotMarketTrade parses a trade event, resolving the user's side against userAddress
func NewSpotMarketTrade(p TradeParams, market Market, userAddress string) (SpotMarketTrade, error) {
	size, err := units.ParseString(p.TradeSize)
	if err != nil {
		return SpotMarketTrade{}, fmt.Errorf("invalid trade size %q for trade %s: %w", p.TradeSize, p.ID, err)
	}
	price, err := units.ParseString(p.TradePrice)
	if err != nil {
		return SpotMarketTrade{}, fmt.Errorf("invalid trade price %q for trade %s: %w", p.TradePrice, p.ID, err)
	}

	priceDecimals := market.PriceDecimals
	if priceDecimals == 0 {
		priceDecimals = DefaultDecimals
	}

	return SpotMarketTrade{
		ID:            p.ID,
		Market:        p.Market,
		BaseToken:     market.BaseToken,
		QuoteToken:    market.QuoteToken,
		PriceDecimals: priceDecimals,
		Buyer:         p.Buyer,
		Seller:        p.Seller,
		TradeSize:     size,
		TradePrice:    price,
		Timestamp:     p.Timestamp,
		Side:          sideFor(userAddress, p.Buyer, p.Seller),
	}, nil
}

func sideFor(user, buyer, seller string) TradeSide {
	if user == "" {
		return ""
	}
	switch {
	case strings.EqualFold(user, seller):
		return TradeSell
	case strings.EqualFold(user, buyer):
		return TradeBuy
	}
	return ""
}

func (t SpotMarketTrade) FormatPrice() string {
	return units.ToSignificant(units.FormatUnits(t.TradePrice, t.PriceDecimals), 2)
}

func (t SpotMarketTrade) FormatTradeAmount() string {
	return units.ToSignificant(units.FormatUnits(t.TradeSize, t.BaseToken.Decimals), 2)
}

// MarketSymbol returns BASE-QUOTE
func (t SpotMarketTrade) MarketSymbol() string {
	return t.BaseToken.Symbol + "-" + t.QuoteToken.Symbol
}
