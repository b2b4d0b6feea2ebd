package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/metrics"
	"spotbook/internal/network"
	"spotbook/internal/sdk"
	"spotbook/internal/types"
	"spotbook/internal/units"
	"spotbook/internal/wallet"
)

const (
	nativeSymbol = "ETH"
	quoteSymbol  = "USDC"

	transferSentText    = "Withdrawal request has been sent!"
	transferFailedText  = "We were unable to withdraw your token at this time"
	confirmInWalletText = "Please, confirm operation in your wallet"
)

// ContractBalance is the liquid market balance backing a token
type ContractBalance struct {
	Amount decimal.Decimal
	Type   sdk.AssetType
}

// BalanceStore tracks wallet balances of known tokens and the user's market balance
type BalanceStore struct {
	net     *network.Network
	toaster types.Toaster
	log     *logrus.Entry

	mu            sync.RWMutex
	balances      map[string]decimal.Decimal
	marketBalance sdk.UserMarketBalance
	initialized   bool

	updater *IntervalUpdater
}

func NewBalanceStore(net *network.Network, toaster types.Toaster, interval time.Duration, m *metrics.Metrics) *BalanceStore {
	s := &BalanceStore{
		net:      net,
		toaster:  toaster,
		log:      logger.WithComponent("balances"),
		balances: make(map[string]decimal.Decimal),
	}
	s.updater = NewIntervalUpdater("balances", interval, s.Update, m)
	return s
}

// Run polls balances until ctx is done
func (s *BalanceStore) Run(ctx context.Context) {
	s.updater.Run(ctx)
}

// Refresh triggers an immediate poll
func (s *BalanceStore) Refresh() {
	s.updater.Update()
}

// Update fetches wallet and market balances. It is a no-op without a connected wallet.
func (s *BalanceStore) Update(ctx context.Context) error {
	address := s.net.GetAddress()
	if address == "" {
		return nil
	}

	balances, err := s.net.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch wallet balances: %w", err)
	}

	known := make(map[string]decimal.Decimal, len(balances))
	for assetID, balance := range balances {
		if _, ok := s.net.GetTokenByAssetID(assetID); !ok {
			continue
		}
		known[strings.ToLower(assetID)] = balance
	}

	marketBalance, mbErr := s.net.FetchSpotUserMarketBalance(ctx, address)
	if mbErr != nil {
		s.log.WithError(mbErr).Warn("failed to fetch market balance")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// the wallet may have disconnected while fetching
	if s.net.GetAddress() != address {
		return nil
	}
	for assetID, balance := range known {
		s.balances[assetID] = balance
	}
	if mbErr == nil {
		s.marketBalance = marketBalance
	}
	s.initialized = true
	return nil
}

// Clear drops every balance and marks the store uninitialized
func (s *BalanceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances = make(map[string]decimal.Decimal)
	s.marketBalance = sdk.UserMarketBalance{}
	s.initialized = false
}

// Initialized reports whether the first balance poll finished
func (s *BalanceStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Balances returns raw wallet balances keyed by lowercase asset id
func (s *BalanceStore) Balances() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out
}

// Balance returns the raw balance of assetID, zero when unknown
func (s *BalanceStore) Balance(assetID string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[strings.ToLower(assetID)]
}

// FormatBalance renders the wallet balance of assetID with two significant digits
func (s *BalanceStore) FormatBalance(assetID string, decimals int32) string {
	return units.ToSignificant(units.FormatUnits(s.Balance(assetID), decimals), 2)
}

// NativeBalance returns the raw gas token balance
func (s *BalanceStore) NativeBalance() decimal.Decimal {
	token, ok := s.net.GetTokenBySymbol(nativeSymbol)
	if !ok {
		return decimal.Zero
	}
	return s.Balance(token.AssetID)
}

// NonZeroAssetIDs lists assets with a positive balance, sorted
func (s *BalanceStore) NonZeroAssetIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, b := range s.balances {
		if b.IsPositive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MarketBalance returns the last polled market contract balance
func (s *BalanceStore) MarketBalance() sdk.UserMarketBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marketBalance
}

// ContractBalanceInfo returns the liquid market balance for a token. The quote token maps to the quote
// side, everything else to the base side.
func (s *BalanceStore) ContractBalanceInfo(assetID string) ContractBalance {
	token, _ := s.net.GetTokenByAssetID(assetID)
	mb := s.MarketBalance()
	if token.Symbol == quoteSymbol {
		return ContractBalance{Amount: mb.Liquid.Quote, Type: sdk.AssetQuote}
	}
	return ContractBalance{Amount: mb.Liquid.Base, Type: sdk.AssetBase}
}

// FormatContractBalanceInfo renders the liquid market balance of assetID with two significant digits
func (s *BalanceStore) FormatContractBalanceInfo(assetID string, decimals int32) string {
	return units.ToSignificant(units.FormatUnits(s.ContractBalanceInfo(assetID).Amount, decimals), 2)
}

// Deposit moves a human amount of assetID from the wallet into the market contract
func (s *BalanceStore) Deposit(ctx context.Context, assetID string, amount decimal.Decimal) error {
	token, ok := s.net.GetTokenByAssetID(assetID)
	if !ok {
		return s.fail(fmt.Errorf("unknown asset %s", assetID), transferFailedText)
	}

	s.askWalletConfirmation()
	if _, err := s.net.DepositSpotBalance(ctx, token, units.ParseUnits(amount, token.Decimals)); err != nil {
		return s.fail(fmt.Errorf("failed to deposit %s: %w", token.Symbol, err), transferFailedText)
	}
	s.toaster.Success(transferSentText, "")
	s.Refresh()
	return nil
}

// Withdraw moves a human amount of assetID from the market contract back to the wallet
func (s *BalanceStore) Withdraw(ctx context.Context, assetID string, amount decimal.Decimal) error {
	token, ok := s.net.GetTokenByAssetID(assetID)
	if !ok {
		return s.fail(fmt.Errorf("unknown asset %s", assetID), transferFailedText)
	}

	info := s.ContractBalanceInfo(assetID)
	s.askWalletConfirmation()
	if _, err := s.net.WithdrawSpotBalance(ctx, info.Type, units.ParseUnits(amount, token.Decimals)); err != nil {
		return s.fail(fmt.Errorf("failed to withdraw %s: %w", token.Symbol, err), transferFailedText)
	}
	s.toaster.Success(transferSentText, "")
	s.Refresh()
	return nil
}

// askWalletConfirmation prompts the user when the transfer waits on an external wallet
func (s *BalanceStore) askWalletConfirmation() {
	if _, ok := s.net.Signer().(*wallet.RemoteSigner); ok {
		s.toaster.Info(confirmInWalletText)
	}
}

// WithdrawAll withdraws every liquid market balance
func (s *BalanceStore) WithdrawAll(ctx context.Context) error {
	if _, err := s.net.WithdrawSpotBalanceAll(ctx); err != nil {
		return s.fail(fmt.Errorf("failed to withdraw all: %w", err), transferFailedText)
	}
	s.toaster.Success(transferSentText, "")
	s.Refresh()
	return nil
}

func (s *BalanceStore) fail(err error, text string) error {
	s.log.WithError(err).Error("balance operation failed")
	s.toaster.Error(text)
	return err
}
