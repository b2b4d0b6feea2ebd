package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/units"
)

// SpotMarketOrder is an active order as reported by the indexer. It is never mutated; every push
// replaces the whole list.
type SpotMarketOrder struct {
	ID            string
	Market        string
	Type          OrderType
	Trader        string
	BaseToken     Token
	QuoteToken    Token
	PriceDecimals int32
	Price         decimal.Decimal // raw, PriceDecimals scale
	InitialAmount decimal.Decimal // raw base units
	CurrentAmount decimal.Decimal // raw base units remaining
	Status        string
	Timestamp     time.Time
}

// OrderParams carries the raw string fields of an indexer order
type OrderParams struct {
	ID            string
	Market        string
	Type          OrderType
	Trader        string
	Price         string
	InitialAmount string
	Amount        string
	Status        string
	Timestamp     time.Time
}

// NewSpotMarketOrder parses raw indexer fields against a market's tokens
func NewSpotMarketOrder(p OrderParams, market Market) (SpotMarketOrder, error) {
	price, err := units.ParseString(p.Price)
	if err != nil {
		return SpotMarketOrder{}, fmt.Errorf("invalid price %q for order %s: %w", p.Price, p.ID, err)
	}
	amount, err := units.ParseString(p.Amount)
	if err != nil {
		return SpotMarketOrder{}, fmt.Errorf("invalid amount %q for order %s: %w", p.Amount, p.ID, err)
	}
	initial := amount
	if p.InitialAmount != "" {
		initial, err = units.ParseString(p.InitialAmount)
		if err != nil {
			return SpotMarketOrder{}, fmt.Errorf("invalid initial amount %q for order %s: %w", p.InitialAmount, p.ID, err)
		}
	}

	priceDecimals := market.PriceDecimals
	if priceDecimals == 0 {
		priceDecimals = DefaultDecimals
	}

	return SpotMarketOrder{
		ID:            p.ID,
		Market:        p.Market,
		Type:          p.Type,
		Trader:        p.Trader,
		BaseToken:     market.BaseToken,
		QuoteToken:    market.QuoteToken,
		PriceDecimals: priceDecimals,
		Price:         price,
		InitialAmount: initial,
		CurrentAmount: amount,
		Status:        p.Status,
		Timestamp:     p.Timestamp,
	}, nil
}

// QuoteAmount converts a raw base amount into raw quote units at the order price
func (o SpotMarketOrder) QuoteAmount(base decimal.Decimal) decimal.Decimal {
	scale := o.BaseToken.Decimals + o.PriceDecimals - o.QuoteToken.Decimals
	return base.Mul(o.Price).Shift(-scale).Truncate(0)
}

func (o SpotMarketOrder) InitialQuoteAmount() decimal.Decimal {
	return o.QuoteAmount(o.InitialAmount)
}

func (o SpotMarketOrder) CurrentQuoteAmount() decimal.Decimal {
	return o.QuoteAmount(o.CurrentAmount)
}

// FilledAmount is the part of the order already matched
func (o SpotMarketOrder) FilledAmount() decimal.Decimal {
	return o.InitialAmount.Sub(o.CurrentAmount)
}

// FilledPercent is the matched share of the initial amount, 0..100
func (o SpotMarketOrder) FilledPercent() decimal.Decimal {
	return units.RatioOf(o.FilledAmount(), o.InitialAmount)
}

func (o SpotMarketOrder) FormatPrice() string {
	return units.ToSignificant(units.FormatUnits(o.Price, o.PriceDecimals), 2)
}

func (o SpotMarketOrder) FormatAmount() string {
	return units.ToSignificant(units.FormatUnits(o.CurrentAmount, o.BaseToken.Decimals), 2)
}

func (o SpotMarketOrder) FormatQuoteAmount() string {
	return units.ToSignificant(units.FormatUnits(o.CurrentQuoteAmount(), o.QuoteToken.Decimals), 2)
}

// MarketSymbol returns BASE-QUOTE
func (o SpotMarketOrder) MarketSymbol() string {
	return o.BaseToken.Symbol + "-" + o.QuoteToken.Symbol
}
