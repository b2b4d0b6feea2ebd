// Package store holds the client state derived from the network facade: the live order book, balances,
// oracle prices, leaderboard, swap and faucet forms, settings and notifications.
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"spotbook/internal/config"
	"spotbook/internal/logger"
	"spotbook/internal/metrics"
	"spotbook/internal/network"
	"spotbook/internal/sdk"
	"spotbook/internal/types"
)

// RootStore owns every store and coordinates the cross-store updates
type RootStore struct {
	net     *network.Network
	app     config.AppConfig
	metrics *metrics.Metrics
	log     *logrus.Entry

	initialized atomic.Bool
	// serializes market switches so Trade and OrderBook always agree
	marketMu sync.Mutex

	Notifications *NotificationStore
	Account       *AccountStore
	Trade         *TradeStore
	Settings      *SettingsStore
	OrderBook     *OrderBookStore
	Balances      *BalanceStore
	Oracle        *OracleStore
	Leaderboard   *LeaderboardStore
	Swap          *SwapStore
	Faucet        *FaucetStore
}

// New builds the store tree. Nothing is fetched until Run.
func New(net *network.Network, prices PriceSource, app config.AppConfig, m *metrics.Metrics) *RootStore {
	r := &RootStore{
		net:     net,
		app:     app,
		metrics: m,
		log:     logger.WithComponent("root"),
	}

	r.Notifications = NewNotificationStore(defaultToastCapacity, m)
	r.Account = NewAccountStore(net)
	r.Trade = NewTradeStore(net)
	r.Settings = NewSettingsStore()
	r.OrderBook = NewOrderBookStore(net, r.Account, OrderBookOptions{
		OrderLimit:          app.OrderLimit,
		TradeLimit:          app.TradeLimit,
		BlockedOrders:       app.BlockedOrders,
		MarketPriceInterval: app.MarketPriceInterval,
	}, m)
	r.Balances = NewBalanceStore(net, r.Notifications, app.BalanceInterval, m)
	r.Oracle = NewOracleStore(net, r.Trade, prices, app.OracleInterval, m)
	r.Leaderboard = NewLeaderboardStore(net, r.Account)
	r.Swap = NewSwapStore(net, r.Balances, r.Oracle, r.Notifications)
	r.Faucet = NewFaucetStore(net, r.Account, r.Balances, r.Notifications)
	return r
}

// Network returns the facade the stores are built on
func (r *RootStore) Network() *network.Network {
	return r.net
}

// Initialized reports whether Run has selected the default market and started the pollers
func (r *RootStore) Initialized() bool {
	return r.initialized.Load()
}

// ChangeMarket selects a market by id or symbol and resubscribes the order book to it
func (r *RootStore) ChangeMarket(ctx context.Context, idOrSymbol string) (types.Market, error) {
	r.marketMu.Lock()
	defer r.marketMu.Unlock()

	market, err := r.Trade.SetMarket(idOrSymbol)
	if err != nil {
		return types.Market{}, err
	}
	if err := r.OrderBook.SetMarket(ctx, market); err != nil {
		r.Notifications.Error("Failed to load the " + market.Symbol() + " order book")
		return market, fmt.Errorf("failed to switch to %s: %w", market.Symbol(), err)
	}
	r.Balances.Refresh()
	return market, nil
}

// Connect attaches a signing wallet and reloads the user-dependent stores
func (r *RootStore) Connect(ctx context.Context, signer sdk.Signer) {
	r.Account.Connect(signer)
	r.onAddressChange(ctx)
}

// ConnectByAddress starts a read-only session for address
func (r *RootStore) ConnectByAddress(ctx context.Context, address string) {
	r.Account.ConnectByAddress(address)
	r.onAddressChange(ctx)
}

// Disconnect drops the wallet and clears everything derived from it
func (r *RootStore) Disconnect(ctx context.Context) {
	r.Account.Disconnect()
	r.Balances.Clear()
	r.Leaderboard.Disconnect()
	r.Swap.UpdateTokens()
	if err := r.Leaderboard.OnAddressChange(ctx); err != nil {
		r.log.WithError(err).Warn("failed to reload leaderboard")
	}
}

func (r *RootStore) onAddressChange(ctx context.Context) {
	if err := r.Balances.Update(ctx); err != nil {
		r.log.WithError(err).Warn("failed to load balances")
	}
	r.Swap.UpdateTokens()
	if err := r.Leaderboard.OnAddressChange(ctx); err != nil {
		r.log.WithError(err).Warn("failed to reload leaderboard")
	}
}

// Run selects the default market and runs the pollers until ctx is done
func (r *RootStore) Run(ctx context.Context) error {
	if _, err := r.ChangeMarket(ctx, r.app.DefaultMarket); err != nil {
		return err
	}
	r.initialized.Store(true)
	defer r.initialized.Store(false)

	r.log.WithField("market", r.Trade.MarketSymbol()).Info("stores initialized")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.OrderBook.Run(gctx)
		return nil
	})
	g.Go(func() error {
		r.Balances.Run(gctx)
		return nil
	})
	g.Go(func() error {
		r.Oracle.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := r.Leaderboard.Init(gctx); err != nil {
			r.log.WithError(err).Warn("failed to load leaderboard")
		}
		if _, err := r.Leaderboard.FetchAllTimeStats(gctx); err != nil {
			r.log.WithError(err).Warn("failed to load all-time stats")
		}
		<-gctx.Done()
		r.Leaderboard.Close()
		return nil
	})

	return g.Wait()
}
