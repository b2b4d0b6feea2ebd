package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"spotbook/internal/types"
)

// CurrentBundleVersion is the only bundled config version this build accepts
const CurrentBundleVersion = "1.6.2"

// ErrVersionMismatch is returned when the bundled config version differs from CurrentBundleVersion
var ErrVersionMismatch = errors.New("config version mismatch")

//go:embed config.json
var bundledJSON []byte

// Bundle is the static token/market document shipped with the binary
type Bundle struct {
	Version      string          `json:"version"`
	ContractVer  int             `json:"contractVer"`
	NetworkURL   string          `json:"networkUrl"`
	IndexerURL   string          `json:"indexerUrl"`
	IndexerWSURL string          `json:"indexerWsUrl"`
	SentioURL    string          `json:"sentioUrl"`
	Contracts    BundleContracts `json:"contracts"`
	TokenList    []BundleToken   `json:"tokens"`
	MarketList   []BundleMarket  `json:"markets"`

	tokens          []types.Token
	tokensBySymbol  map[string]types.Token
	tokensByAssetID map[string]types.Token
	markets         []types.Market
	marketsByID     map[string]types.Market
}

// BundleContracts holds the on-chain contract addresses
type BundleContracts struct {
	Orderbook  string `json:"orderbook"`
	MultiAsset string `json:"multiAsset"`
}

// BundleToken is a token entry of the bundle
type BundleToken struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Decimals  int32  `json:"decimals"`
	AssetID   string `json:"assetId"`
	PriceFeed string `json:"priceFeed"`
	Precision int32  `json:"precision"`
}

// BundleMarket is a market entry of the bundle
type BundleMarket struct {
	MarketName         string `json:"marketName"`
	Owner              string `json:"owner"`
	BaseAssetID        string `json:"baseAssetId"`
	BaseAssetDecimals  int32  `json:"baseAssetDecimals"`
	QuoteAssetID       string `json:"quoteAssetId"`
	QuoteAssetDecimals int32  `json:"quoteAssetDecimals"`
	PriceDecimals      int32  `json:"priceDecimals"`
	Precision          int32  `json:"precision"`
	Version            int    `json:"version"`
	ContractID         string `json:"contractId"`
}

// LoadBundle parses the embedded config document
func LoadBundle() (*Bundle, error) {
	return ParseBundle(bundledJSON)
}

// ParseBundle parses a config document and asserts its version
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode config bundle: %w", err)
	}

	if b.Version != CurrentBundleVersion {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrVersionMismatch, CurrentBundleVersion, b.Version)
	}

	if err := b.index(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Bundle) index() error {
	b.tokens = make([]types.Token, 0, len(b.TokenList))
	b.tokensBySymbol = make(map[string]types.Token, len(b.TokenList))
	b.tokensByAssetID = make(map[string]types.Token, len(b.TokenList))

	for _, t := range b.TokenList {
		token := types.Token{
			Name:      t.Name,
			Symbol:    t.Symbol,
			Decimals:  t.Decimals,
			AssetID:   t.AssetID,
			PriceFeed: t.PriceFeed,
			Precision: t.Precision,
		}
		b.tokens = append(b.tokens, token)
		b.tokensBySymbol[t.Symbol] = token
		b.tokensByAssetID[strings.ToLower(t.AssetID)] = token
	}

	b.markets = make([]types.Market, 0, len(b.MarketList))
	b.marketsByID = make(map[string]types.Market, len(b.MarketList))

	for _, m := range b.MarketList {
		base, ok := b.tokensByAssetID[strings.ToLower(m.BaseAssetID)]
		if !ok {
			return fmt.Errorf("market %s: unknown base asset %s", m.MarketName, m.BaseAssetID)
		}
		quote, ok := b.tokensByAssetID[strings.ToLower(m.QuoteAssetID)]
		if !ok {
			return fmt.Errorf("market %s: unknown quote asset %s", m.MarketName, m.QuoteAssetID)
		}

		priceDecimals := m.PriceDecimals
		if priceDecimals == 0 {
			priceDecimals = types.DefaultDecimals
		}

		market := types.Market{
			ContractID:    m.ContractID,
			Name:          m.MarketName,
			Owner:         m.Owner,
			BaseToken:     base,
			QuoteToken:    quote,
			PriceDecimals: priceDecimals,
			Precision:     types.ClampPrecision(m.Precision, priceDecimals),
			Version:       m.Version,
		}
		b.markets = append(b.markets, market)
		b.marketsByID[strings.ToLower(m.ContractID)] = market
	}

	return nil
}

// Tokens returns all configured tokens in bundle order
func (b *Bundle) Tokens() []types.Token {
	return b.tokens
}

// TokenBySymbol looks a token up by exact symbol
func (b *Bundle) TokenBySymbol(symbol string) (types.Token, bool) {
	t, ok := b.tokensBySymbol[symbol]
	return t, ok
}

// TokenByAssetID looks a token up by asset id, case-insensitively
func (b *Bundle) TokenByAssetID(assetID string) (types.Token, bool) {
	t, ok := b.tokensByAssetID[strings.ToLower(assetID)]
	return t, ok
}

// Markets returns all configured markets in bundle order
func (b *Bundle) Markets() []types.Market {
	return b.markets
}

// MarketByID looks a market up by contract id, case-insensitively
func (b *Bundle) MarketByID(contractID string) (types.Market, bool) {
	m, ok := b.marketsByID[strings.ToLower(contractID)]
	return m, ok
}

// MarketBySymbol looks a market up by its BASE-QUOTE symbol
func (b *Bundle) MarketBySymbol(symbol string) (types.Market, bool) {
	for _, m := range b.markets {
		if strings.EqualFold(m.Symbol(), symbol) {
			return m, true
		}
	}
	return types.Market{}, false
}
