// Package sdktest provides an in-memory OrderBookSDK for tests.
package sdktest

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"spotbook/internal/sdk"
	"spotbook/internal/types"
)

var _ sdk.OrderBookSDK = (*Fake)(nil)

// Write records one write operation
type Write struct {
	Function string
	Params   any
}

// Subscription is a stream opened on the fake. Tests push through it.
type Subscription struct {
	Kind   string
	Params any

	orders       sdk.OrdersHandler
	trades       sdk.TradesHandler
	unsubscribes atomic.Int32
}

func (s *Subscription) Unsubscribe() {
	s.unsubscribes.Add(1)
}

// Unsubscribes reports how many times Unsubscribe was called
func (s *Subscription) Unsubscribes() int {
	return int(s.unsubscribes.Load())
}

// PushOrders delivers orders as the transport would, even after Unsubscribe
func (s *Subscription) PushOrders(orders []sdk.Order) {
	if s.orders != nil {
		s.orders(orders)
	}
}

// PushTrades delivers trades as the transport would, even after Unsubscribe
func (s *Subscription) PushTrades(trades []sdk.TradeEvent) {
	if s.trades != nil {
		s.trades(trades)
	}
}

// Fake is a scriptable OrderBookSDK. Set fields before use; read results through the accessors.
type Fake struct {
	ActiveOrders   map[types.OrderType][]sdk.Order
	Orders         []sdk.Order
	Trades         map[string][]sdk.TradeEvent // by market contract, newest first
	WalletBalances map[string]decimal.Decimal
	MarketBalances map[string]sdk.UserMarketBalance // by market contract
	Leaderboard    []sdk.TraderVolume
	Pnl            []sdk.TraderPnl
	Stats          sdk.AllTimeStats

	// FetchErr is returned by every fetch, WriteErr by every write
	FetchErr error
	WriteErr error

	mu             sync.Mutex
	activeMarket   string
	signer         sdk.Signer
	connected      bool
	writes         []Write
	subs           []*Subscription
	leaderboardReq []sdk.LeaderboardParams
	pnlReq         []sdk.PnlLeaderboardParams
	pnlWallets     [][]string
}

func (f *Fake) GetName() sdk.NetworkName { return sdk.Fuel }

func (f *Fake) SetActiveMarket(contractID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeMarket = contractID
}

func (f *Fake) ActiveMarket() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeMarket
}

func (f *Fake) SetSigner(signer sdk.Signer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signer = signer
}

// Signer returns the attached signer
func (f *Fake) Signer() sdk.Signer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signer
}

func (f *Fake) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Health() sdk.HealthStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sdk.HealthStatus{Connected: f.connected, Subscriptions: len(f.subs)}
}

func (f *Fake) write(function string, params any) (sdk.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteErr != nil {
		return sdk.WriteResult{}, f.WriteErr
	}
	if f.signer == nil {
		return sdk.WriteResult{}, sdk.ErrNoSigner
	}
	f.writes = append(f.writes, Write{Function: function, Params: params})
	return sdk.WriteResult{TransactionID: "0xtx"}, nil
}

// Writes returns the recorded writes in order
func (f *Fake) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

func (f *Fake) CreateOrder(_ context.Context, params sdk.CreateOrderParams) (sdk.WriteResult, error) {
	return f.write("open_order", params)
}

func (f *Fake) CreateOrderWithDeposit(_ context.Context, params sdk.CreateOrderParams, deposit sdk.AssetAmount) (sdk.WriteResult, error) {
	return f.write("open_order_with_deposit", []any{params, deposit})
}

func (f *Fake) FulfillOrderMany(_ context.Context, params sdk.FulfillOrderManyParams) (sdk.WriteResult, error) {
	return f.write("fulfill_order_many", params)
}

func (f *Fake) FulfillOrderManyWithDeposit(_ context.Context, params sdk.FulfillOrderManyParams, deposit sdk.AssetAmount) (sdk.WriteResult, error) {
	return f.write("fulfill_order_many_with_deposit", []any{params, deposit})
}

func (f *Fake) CancelOrder(_ context.Context, orderID string) (sdk.WriteResult, error) {
	return f.write("cancel_order", orderID)
}

func (f *Fake) MintToken(_ context.Context, token types.Token, amount decimal.Decimal) (sdk.WriteResult, error) {
	return f.write("mint", sdk.AssetAmount{AssetID: token.AssetID, Amount: amount.String()})
}

func (f *Fake) Deposit(_ context.Context, token types.Token, amount decimal.Decimal) (sdk.WriteResult, error) {
	return f.write("deposit", sdk.AssetAmount{AssetID: token.AssetID, Amount: amount.String()})
}

func (f *Fake) WithdrawAssets(_ context.Context, assetType sdk.AssetType, amount decimal.Decimal) (sdk.WriteResult, error) {
	return f.write("withdraw", []any{assetType, amount.String()})
}

func (f *Fake) WithdrawAllAssets(context.Context) (sdk.WriteResult, error) {
	return f.write("withdraw_all", nil)
}

func (f *Fake) subscribe(sub *Subscription) (sdk.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	f.subs = append(f.subs, sub)
	return sub, nil
}

// Subscriptions returns every subscription opened so far, in order
func (f *Fake) Subscriptions() []*Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Subscription(nil), f.subs...)
}

// SubscriptionsOf returns the subscriptions of one kind: "orders", "active_buy", "active_sell" or "trades"
func (f *Fake) SubscriptionsOf(kind string) []*Subscription {
	var out []*Subscription
	for _, s := range f.Subscriptions() {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func (f *Fake) SubscribeOrders(_ context.Context, params sdk.OrdersParams, handler sdk.OrdersHandler) (sdk.Subscription, error) {
	return f.subscribe(&Subscription{Kind: "orders", Params: params, orders: handler})
}

func (f *Fake) SubscribeActiveOrders(_ context.Context, params sdk.ActiveOrdersParams, handler sdk.OrdersHandler) (sdk.Subscription, error) {
	kind := "active_sell"
	if params.OrderType == types.Buy {
		kind = "active_buy"
	}
	return f.subscribe(&Subscription{Kind: kind, Params: params, orders: handler})
}

func (f *Fake) SubscribeTradeOrderEvents(_ context.Context, params sdk.TradeEventsParams, handler sdk.TradesHandler) (sdk.Subscription, error) {
	return f.subscribe(&Subscription{Kind: "trades", Params: params, trades: handler})
}

func (f *Fake) FetchMarketPrice(_ context.Context, market string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return decimal.Zero, f.FetchErr
	}
	trades := f.Trades[market]
	if len(trades) == 0 {
		return decimal.Zero, nil
	}
	return decimal.RequireFromString(trades[0].TradePrice), nil
}

func (f *Fake) FetchActiveOrders(_ context.Context, params sdk.ActiveOrdersParams) ([]sdk.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	var out []sdk.Order
	for _, o := range f.ActiveOrders[params.OrderType] {
		if params.Asset != "" && !strings.EqualFold(o.Asset, params.Asset) {
			continue
		}
		out = append(out, o)
		if params.Limit > 0 && len(out) == params.Limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) FetchOrders(_ context.Context, params sdk.OrdersParams) ([]sdk.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	var out []sdk.Order
	for _, o := range f.Orders {
		if params.OrderType != "" && o.OrderType != params.OrderType {
			continue
		}
		if params.Asset != "" && !strings.EqualFold(o.Asset, params.Asset) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *Fake) FetchTrades(_ context.Context, params sdk.TradeEventsParams) ([]sdk.TradeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	var out []sdk.TradeEvent
	for _, market := range params.Market {
		out = append(out, f.Trades[market]...)
	}
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (f *Fake) FetchVolume(context.Context) (sdk.Volume, error) {
	return sdk.Volume{}, f.FetchErr
}

func (f *Fake) FetchMatcherFee(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, f.FetchErr
}

func (f *Fake) FetchProtocolFee(context.Context) ([]sdk.ProtocolFee, error) {
	return nil, f.FetchErr
}

func (f *Fake) FetchProtocolFeeForUser(context.Context, string) (sdk.ProtocolFee, error) {
	return sdk.ProtocolFee{}, f.FetchErr
}

func (f *Fake) FetchProtocolFeeAmountForUser(context.Context, decimal.Decimal, string) (sdk.ProtocolFeeAmount, error) {
	return sdk.ProtocolFeeAmount{}, f.FetchErr
}

func (f *Fake) FetchUserMarketBalance(_ context.Context, trader string) (sdk.UserMarketBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return sdk.UserMarketBalance{}, f.FetchErr
	}
	b := f.MarketBalances[f.activeMarket]
	b.ContractID = f.activeMarket
	return b, nil
}

func (f *Fake) FetchUserMarketBalanceByContracts(_ context.Context, trader string, contracts []string) ([]sdk.UserMarketBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	out := make([]sdk.UserMarketBalance, 0, len(contracts))
	for _, c := range contracts {
		b := f.MarketBalances[c]
		b.ContractID = c
		out = append(out, b)
	}
	return out, nil
}

func (f *Fake) FetchWalletBalances(context.Context, string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	out := make(map[string]decimal.Decimal, len(f.WalletBalances))
	for k, v := range f.WalletBalances {
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

// GetSortedLeaderboard pages Leaderboard. A search returns the rows whose wallet contains it.
func (f *Fake) GetSortedLeaderboard(_ context.Context, params sdk.LeaderboardParams) ([]sdk.TraderVolume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaderboardReq = append(f.leaderboardReq, params)
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}

	var rows []sdk.TraderVolume
	for _, r := range f.Leaderboard {
		if params.Search != "" && !strings.Contains(strings.ToLower(r.WalletID), strings.ToLower(params.Search)) {
			continue
		}
		rows = append(rows, r)
	}

	start := params.Page * params.Limit
	if start >= len(rows) {
		return nil, nil
	}
	end := start + params.Limit
	if params.Limit == 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], nil
}

// LeaderboardRequests returns the params of every volume leaderboard call
func (f *Fake) LeaderboardRequests() []sdk.LeaderboardParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sdk.LeaderboardParams(nil), f.leaderboardReq...)
}

func (f *Fake) GetSortedLeaderboardPnl(_ context.Context, params sdk.PnlLeaderboardParams) ([]sdk.TraderPnl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnlReq = append(f.pnlReq, params)
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return append([]sdk.TraderPnl(nil), f.Pnl...), nil
}

// PnlRequests returns the params of every pnl leaderboard call
func (f *Fake) PnlRequests() []sdk.PnlLeaderboardParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sdk.PnlLeaderboardParams(nil), f.pnlReq...)
}

func (f *Fake) FetchLeaderboardPnl(_ context.Context, wallets []string) ([]sdk.TraderPnl, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnlWallets = append(f.pnlWallets, wallets)
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	var out []sdk.TraderPnl
	for _, p := range f.Pnl {
		for _, w := range wallets {
			if strings.EqualFold(p.User, w) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

func (f *Fake) FetchAllTimeStats(context.Context) (sdk.AllTimeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Stats, f.FetchErr
}
