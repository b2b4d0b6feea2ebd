// Package network is the process-wide facade over the order book SDK, the wallet session and the
// bundled token/market config. Every operation is a pass-through: errors propagate unchanged.
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"spotbook/internal/config"
	"spotbook/internal/logger"
	"spotbook/internal/sdk"
	"spotbook/internal/types"
	"spotbook/internal/wallet"
)

var (
	// ErrNotInitialized is returned by GetInstance before Init
	ErrNotInitialized = errors.New("network not initialized")
	// ErrAlreadyInitialized is returned by a second Init
	ErrAlreadyInitialized = errors.New("network already initialized")
)

var (
	instance *Network
	initOnce sync.Once
)

// Network owns the single wallet session and SDK client of the process
type Network struct {
	bundle *config.Bundle
	sdk    sdk.OrderBookSDK
	log    *logrus.Entry

	mu     sync.RWMutex
	signer sdk.Signer
}

// New creates a facade without registering it as the process instance
func New(bundle *config.Bundle, client sdk.OrderBookSDK) *Network {
	return &Network{
		bundle: bundle,
		sdk:    client,
		log:    logger.WithComponent("network"),
	}
}

// Init registers the process instance. It succeeds exactly once.
func Init(bundle *config.Bundle, client sdk.OrderBookSDK) (*Network, error) {
	err := ErrAlreadyInitialized
	initOnce.Do(func() {
		instance = New(bundle, client)
		err = nil
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// GetInstance returns the process instance registered by Init
func GetInstance() (*Network, error) {
	if instance == nil {
		return nil, ErrNotInitialized
	}
	return instance, nil
}

// Bundle returns the token/market config
func (n *Network) Bundle() *config.Bundle {
	return n.bundle
}

func (n *Network) SetActiveMarket(contractID string) {
	n.sdk.SetActiveMarket(contractID)
}

func (n *Network) ActiveMarket() string {
	return n.sdk.ActiveMarket()
}

// Connect attaches a signing wallet to the session
func (n *Network) Connect(signer sdk.Signer) {
	n.mu.Lock()
	n.signer = signer
	n.mu.Unlock()

	n.sdk.SetSigner(signer)
	n.log.WithField("address", signer.Address()).Info("wallet connected")
}

// ConnectByAddress starts a read-only session for address
func (n *Network) ConnectByAddress(address string) {
	n.Connect(wallet.ReadOnly(address))
}

func (n *Network) Disconnect() {
	n.mu.Lock()
	n.signer = nil
	n.mu.Unlock()

	n.sdk.SetSigner(nil)
	n.log.Info("wallet disconnected")
}

// Signer returns the session signer, nil when disconnected
func (n *Network) Signer() sdk.Signer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.signer
}

// GetAddress returns the connected address, empty when disconnected
func (n *Network) GetAddress() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.signer == nil {
		return ""
	}
	return n.signer.Address()
}

// GetBalances returns the connected wallet's raw balances keyed by lowercase asset id
func (n *Network) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	address := n.GetAddress()
	if address == "" {
		return nil, sdk.ErrNoSigner
	}
	return n.sdk.FetchWalletBalances(ctx, address)
}

func (n *Network) GetTokenList() []types.Token {
	return n.bundle.Tokens()
}

func (n *Network) GetTokenBySymbol(symbol string) (types.Token, bool) {
	return n.bundle.TokenBySymbol(symbol)
}

func (n *Network) GetTokenByAssetID(assetID string) (types.Token, bool) {
	return n.bundle.TokenByAssetID(assetID)
}

func (n *Network) GetMarkets() []types.Market {
	return n.bundle.Markets()
}

func (n *Network) GetMarketByID(contractID string) (types.Market, bool) {
	return n.bundle.MarketByID(contractID)
}

func (n *Network) CreateSpotOrder(ctx context.Context, params sdk.CreateOrderParams) (sdk.WriteResult, error) {
	return n.sdk.CreateOrder(ctx, params)
}

func (n *Network) CreateSpotOrderWithDeposit(ctx context.Context, params sdk.CreateOrderParams, deposit sdk.AssetAmount) (sdk.WriteResult, error) {
	return n.sdk.CreateOrderWithDeposit(ctx, params, deposit)
}

// SwapTokens fulfills a list of resting orders
func (n *Network) SwapTokens(ctx context.Context, params sdk.FulfillOrderManyParams) (sdk.WriteResult, error) {
	return n.sdk.FulfillOrderMany(ctx, params)
}

func (n *Network) FulfillOrderManyWithDeposit(ctx context.Context, params sdk.FulfillOrderManyParams, deposit sdk.AssetAmount) (sdk.WriteResult, error) {
	return n.sdk.FulfillOrderManyWithDeposit(ctx, params, deposit)
}

func (n *Network) CancelSpotOrder(ctx context.Context, orderID string) (sdk.WriteResult, error) {
	return n.sdk.CancelOrder(ctx, orderID)
}

func (n *Network) MintToken(ctx context.Context, token types.Token, amount decimal.Decimal) (sdk.WriteResult, error) {
	return n.sdk.MintToken(ctx, token, amount)
}

func (n *Network) WithdrawSpotBalance(ctx context.Context, assetType sdk.AssetType, amount decimal.Decimal) (sdk.WriteResult, error) {
	return n.sdk.WithdrawAssets(ctx, assetType, amount)
}

func (n *Network) WithdrawSpotBalanceAll(ctx context.Context) (sdk.WriteResult, error) {
	return n.sdk.WithdrawAllAssets(ctx)
}

func (n *Network) DepositSpotBalance(ctx context.Context, token types.Token, amount decimal.Decimal) (sdk.WriteResult, error) {
	return n.sdk.Deposit(ctx, token, amount)
}

func (n *Network) SubscribeSpotOrders(ctx context.Context, params sdk.OrdersParams, handler sdk.OrdersHandler) (sdk.Subscription, error) {
	return n.sdk.SubscribeOrders(ctx, params, handler)
}

func (n *Network) SubscribeSpotActiveOrders(ctx context.Context, params sdk.ActiveOrdersParams, handler sdk.OrdersHandler) (sdk.Subscription, error) {
	return n.sdk.SubscribeActiveOrders(ctx, params, handler)
}

func (n *Network) SubscribeSpotTradeOrderEvents(ctx context.Context, params sdk.TradeEventsParams, handler sdk.TradesHandler) (sdk.Subscription, error) {
	return n.sdk.SubscribeTradeOrderEvents(ctx, params, handler)
}

func (n *Network) FetchSpotMarketPrice(ctx context.Context, market string) (decimal.Decimal, error) {
	return n.sdk.FetchMarketPrice(ctx, market)
}

// FetchSpotOrders fetches one side of the active book and resolves each order against its market
func (n *Network) FetchSpotOrders(ctx context.Context, params sdk.ActiveOrdersParams) ([]types.SpotMarketOrder, error) {
	orders, err := n.sdk.FetchActiveOrders(ctx, params)
	if err != nil {
		return nil, err
	}

	out := make([]types.SpotMarketOrder, 0, len(orders))
	for _, o := range orders {
		market, ok := n.bundle.MarketByID(o.Market)
		if !ok {
			return nil, fmt.Errorf("order %s: unknown market %s", o.ID, o.Market)
		}
		order, err := types.NewSpotMarketOrder(o.Params(), market)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, nil
}

// FetchLastTrade returns the most recent trade on market. ok is false when the market never traded.
func (n *Network) FetchLastTrade(ctx context.Context, market string) (trade sdk.TradeEvent, ok bool, err error) {
	trades, err := n.sdk.FetchTrades(ctx, sdk.TradeEventsParams{Market: []string{market}, Limit: 1})
	if err != nil {
		return sdk.TradeEvent{}, false, err
	}
	if len(trades) == 0 {
		return sdk.TradeEvent{}, false, nil
	}
	return trades[0], true, nil
}

func (n *Network) FetchSpotVolume(ctx context.Context) (sdk.Volume, error) {
	return n.sdk.FetchVolume(ctx)
}

func (n *Network) FetchSpotMatcherFee(ctx context.Context) (decimal.Decimal, error) {
	return n.sdk.FetchMatcherFee(ctx)
}

func (n *Network) FetchSpotProtocolFee(ctx context.Context) ([]sdk.ProtocolFee, error) {
	return n.sdk.FetchProtocolFee(ctx)
}

func (n *Network) FetchSpotProtocolFeeForUser(ctx context.Context, user string) (sdk.ProtocolFee, error) {
	return n.sdk.FetchProtocolFeeForUser(ctx, user)
}

func (n *Network) FetchSpotProtocolFeeAmountForUser(ctx context.Context, amount decimal.Decimal, user string) (sdk.ProtocolFeeAmount, error) {
	return n.sdk.FetchProtocolFeeAmountForUser(ctx, amount, user)
}

func (n *Network) FetchSpotUserMarketBalance(ctx context.Context, trader string) (sdk.UserMarketBalance, error) {
	return n.sdk.FetchUserMarketBalance(ctx, trader)
}

func (n *Network) FetchUserMarketBalanceByContracts(ctx context.Context, trader string, contracts []string) ([]sdk.UserMarketBalance, error) {
	return n.sdk.FetchUserMarketBalanceByContracts(ctx, trader, contracts)
}

func (n *Network) GetSortedLeaderboard(ctx context.Context, params sdk.LeaderboardParams) ([]sdk.TraderVolume, error) {
	return n.sdk.GetSortedLeaderboard(ctx, params)
}

func (n *Network) GetSortedLeaderboardPnl(ctx context.Context, params sdk.PnlLeaderboardParams) ([]sdk.TraderPnl, error) {
	return n.sdk.GetSortedLeaderboardPnl(ctx, params)
}

func (n *Network) FetchLeaderboardPnl(ctx context.Context, wallets []string) ([]sdk.TraderPnl, error) {
	return n.sdk.FetchLeaderboardPnl(ctx, wallets)
}

func (n *Network) FetchAllTimeStats(ctx context.Context) (sdk.AllTimeStats, error) {
	return n.sdk.FetchAllTimeStats(ctx)
}

// Health reports the SDK transport health
func (n *Network) Health() sdk.HealthStatus {
	return n.sdk.Health()
}

// Close shuts the SDK transport down
func (n *Network) Close() error {
	return n.sdk.Close()
}
