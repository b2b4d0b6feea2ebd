package types

import (
	"strings"
)

// Token describes a tradable asset from the bundled config
type Token struct {
	Name      string
	Symbol    string
	Decimals  int32
	AssetID   string
	PriceFeed string
	Precision int32
}

// SameAsset compares asset ids case-insensitively
func (t Token) SameAsset(assetID string) bool {
	return strings.EqualFold(t.AssetID, assetID)
}

// Market is a spot market resolved against the token list
type Market struct {
	ContractID    string
	Name          string
	Owner         string
	BaseToken     Token
	QuoteToken    Token
	PriceDecimals int32
	Precision     int32
	Version       int
}

// Symbol returns BASE-QUOTE
func (m Market) Symbol() string {
	return m.BaseToken.Symbol + "-" + m.QuoteToken.Symbol
}
