package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/network"
	"spotbook/internal/sdk"
	"spotbook/internal/types"
	"spotbook/internal/units"
)

const (
	swapOrderLimit  = 100
	swapSlippage    = 100
	defaultSwapText = "0.00"
)

// ErrNotEnoughTokens is returned when fewer than two swappable tokens exist
var ErrNotEnoughTokens = errors.New("swap needs at least two tokens")

// TokenOption is a swappable token with its formatted wallet balance
type TokenOption struct {
	types.Token
	Balance string
}

// SwapStore holds the swap form
type SwapStore struct {
	net      *network.Network
	balances *BalanceStore
	oracle   *OracleStore
	toaster  types.Toaster
	log      *logrus.Entry

	mu             sync.RWMutex
	tokens         []TokenOption
	sellToken      TokenOption
	buyToken       TokenOption
	payAmount      string
	receiveAmount  string
	sellTokenPrice string
	buyTokenPrice  string
}

func NewSwapStore(net *network.Network, balances *BalanceStore, oracle *OracleStore, toaster types.Toaster) *SwapStore {
	s := &SwapStore{
		net:           net,
		balances:      balances,
		oracle:        oracle,
		toaster:       toaster,
		log:           logger.WithComponent("swap"),
		payAmount:     defaultSwapText,
		receiveAmount: defaultSwapText,
	}
	s.UpdateTokens()
	return s
}

// UpdateTokens reloads the token options and resets the pair to the first two
func (s *SwapStore) UpdateTokens() {
	tokens := s.tokenOptions()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = tokens
	s.sellToken, s.buyToken = TokenOption{}, TokenOption{}
	if len(tokens) > 0 {
		s.sellToken = tokens[0]
	}
	if len(tokens) > 1 {
		s.buyToken = tokens[1]
	}
	s.sellTokenPrice = s.priceOf(s.sellToken.Token)
	s.buyTokenPrice = s.priceOf(s.buyToken.Token)
}

func (s *SwapStore) tokenOptions() []TokenOption {
	var out []TokenOption
	for _, t := range s.net.GetTokenList() {
		if t.Symbol == nativeSymbol {
			continue
		}
		out = append(out, TokenOption{
			Token:   t,
			Balance: units.ToFormat(units.FormatUnits(s.balances.Balance(t.AssetID), t.Decimals), 4),
		})
	}
	return out
}

// priceOf renders the oracle price with two decimals, "0" for tokens without a feed
func (s *SwapStore) priceOf(t types.Token) string {
	if t.PriceFeed == "" {
		return "0"
	}
	return units.ToFormat(units.FormatUnits(s.oracle.TokenIndexPrice(t.PriceFeed), types.DefaultDecimals), 2)
}

// Tokens lists the swappable tokens
func (s *SwapStore) Tokens() []TokenOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]TokenOption(nil), s.tokens...)
}

// SellToken returns the token being paid
func (s *SwapStore) SellToken() TokenOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sellToken
}

// BuyToken returns the token being received
func (s *SwapStore) BuyToken() TokenOption {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buyToken
}

// Prices returns the formatted USD prices of both tokens
func (s *SwapStore) Prices() (sell, buy string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sellTokenPrice, s.buyTokenPrice
}

// Amounts returns the pay and receive inputs
func (s *SwapStore) Amounts() (pay, receive string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payAmount, s.receiveAmount
}

// SetSellToken selects the paid token and refreshes its price
func (s *SwapStore) SetSellToken(t TokenOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellToken = t
	s.sellTokenPrice = s.priceOf(t.Token)
}

// SetBuyToken selects the received token and refreshes its price
func (s *SwapStore) SetBuyToken(t TokenOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buyToken = t
	s.buyTokenPrice = s.priceOf(t.Token)
}

// SetPayAmount stores the pay input as typed
func (s *SwapStore) SetPayAmount(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payAmount = v
}

// SetReceiveAmount stores the receive input as typed
func (s *SwapStore) SetReceiveAmount(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiveAmount = v
}

// SwitchTokens swaps the pair. The old receive amount becomes the pay amount and the new receive amount
// is converted at the old prices.
func (s *SwapStore) SwitchTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()

	sellPrice := parseAmount(s.sellTokenPrice)
	buyPrice := parseAmount(s.buyTokenPrice)
	receive := parseAmount(s.receiveAmount)

	s.sellToken, s.buyToken = s.buyToken, s.sellToken
	s.sellTokenPrice, s.buyTokenPrice = s.buyTokenPrice, s.sellTokenPrice

	s.payAmount = s.receiveAmount
	next := decimal.Zero
	if !sellPrice.IsZero() {
		next = receive.Mul(buyPrice).Div(sellPrice)
	}
	s.receiveAmount = next.StringFixed(4)
}

// Swap fills resting buy orders of the buy token, depositing the receive amount
func (s *SwapStore) Swap(ctx context.Context) (string, error) {
	s.mu.RLock()
	sell, buy := s.sellToken, s.buyToken
	pay, receive, buyPrice := s.payAmount, s.receiveAmount, s.buyTokenPrice
	s.mu.RUnlock()

	if sell.AssetID == "" || buy.AssetID == "" {
		return "", s.fail(ErrNotEnoughTokens)
	}

	orders, err := s.net.FetchSpotOrders(ctx, sdk.ActiveOrdersParams{
		Asset:     buy.AssetID,
		OrderType: types.Buy,
		Limit:     swapOrderLimit,
	})
	if err != nil {
		return "", s.fail(fmt.Errorf("failed to fetch orders to fill: %w", err))
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}

	res, err := s.net.FulfillOrderManyWithDeposit(ctx, sdk.FulfillOrderManyParams{
		Amount:    units.ParseUnits(parseAmount(pay), sell.Decimals),
		AssetType: sdk.AssetBase,
		OrderType: types.Buy,
		LimitType: sdk.LimitGTC,
		Price:     units.ParseUnits(parseAmount(buyPrice), types.DefaultDecimals),
		Slippage:  decimal.NewFromInt(swapSlippage),
		Orders:    ids,
	}, sdk.AssetAmount{
		AssetID: buy.AssetID,
		Amount:  units.ParseUnits(parseAmount(receive), buy.Decimals).String(),
	})
	if err != nil {
		return "", s.fail(fmt.Errorf("failed to swap %s for %s: %w", sell.Symbol, buy.Symbol, err))
	}

	s.toaster.Success("Order Created", res.TransactionID)
	s.balances.Refresh()
	return res.TransactionID, nil
}

func (s *SwapStore) fail(err error) error {
	s.log.WithError(err).Error("swap failed")
	s.toaster.Error("We were unable to complete the swap at this time")
	return err
}

// parseAmount reads a formatted amount, ignoring thousands separators. Garbage reads as zero.
func parseAmount(v string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(v), ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}
