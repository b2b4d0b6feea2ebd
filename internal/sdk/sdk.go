package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/types"
)

// NetworkName represents supported SDK backends
type NetworkName string

const (
	Fuel NetworkName = "fuel"
)

var (
	// ErrNoSigner is returned by write operations when no wallet is connected
	ErrNoSigner = errors.New("no signer connected")
	// ErrNoReader is returned by contract reads when no read bridge is configured
	ErrNoReader = errors.New("no contract reader configured")
	// ErrNotConnected is returned when the subscription transport is down
	ErrNotConnected = errors.New("subscription transport not connected")
)

// OrderBookSDK defines the contract of the on-chain order book client
type OrderBookSDK interface {
	// GetName returns the backend name
	GetName() NetworkName

	// SetActiveMarket selects the market contract used by writes
	SetActiveMarket(contractID string)

	// ActiveMarket returns the selected market contract id
	ActiveMarket() string

	// SetSigner attaches the wallet used for writes; nil detaches it
	SetSigner(signer Signer)

	// Connect establishes the subscription transport
	Connect(ctx context.Context) error

	// Close closes the subscription transport gracefully
	Close() error

	// IsConnected returns the subscription transport status
	IsConnected() bool

	// Health returns connection health information
	Health() HealthStatus

	CreateOrder(ctx context.Context, params CreateOrderParams) (WriteResult, error)
	CreateOrderWithDeposit(ctx context.Context, params CreateOrderParams, deposit AssetAmount) (WriteResult, error)
	FulfillOrderMany(ctx context.Context, params FulfillOrderManyParams) (WriteResult, error)
	FulfillOrderManyWithDeposit(ctx context.Context, params FulfillOrderManyParams, deposit AssetAmount) (WriteResult, error)
	CancelOrder(ctx context.Context, orderID string) (WriteResult, error)
	MintToken(ctx context.Context, token types.Token, amount decimal.Decimal) (WriteResult, error)
	Deposit(ctx context.Context, token types.Token, amount decimal.Decimal) (WriteResult, error)
	WithdrawAssets(ctx context.Context, assetType AssetType, amount decimal.Decimal) (WriteResult, error)
	WithdrawAllAssets(ctx context.Context) (WriteResult, error)

	// SubscribeOrders pushes the full order list matching params on every change
	SubscribeOrders(ctx context.Context, params OrdersParams, handler OrdersHandler) (Subscription, error)

	// SubscribeActiveOrders pushes the full active order list of one side on every change
	SubscribeActiveOrders(ctx context.Context, params ActiveOrdersParams, handler OrdersHandler) (Subscription, error)

	// SubscribeTradeOrderEvents pushes the latest trades, newest first, on every change
	SubscribeTradeOrderEvents(ctx context.Context, params TradeEventsParams, handler TradesHandler) (Subscription, error)

	FetchMarketPrice(ctx context.Context, market string) (decimal.Decimal, error)
	FetchActiveOrders(ctx context.Context, params ActiveOrdersParams) ([]Order, error)
	FetchOrders(ctx context.Context, params OrdersParams) ([]Order, error)
	FetchTrades(ctx context.Context, params TradeEventsParams) ([]TradeEvent, error)
	FetchVolume(ctx context.Context) (Volume, error)
	FetchMatcherFee(ctx context.Context) (decimal.Decimal, error)
	FetchProtocolFee(ctx context.Context) ([]ProtocolFee, error)
	FetchProtocolFeeForUser(ctx context.Context, user string) (ProtocolFee, error)
	FetchProtocolFeeAmountForUser(ctx context.Context, amount decimal.Decimal, user string) (ProtocolFeeAmount, error)
	FetchUserMarketBalance(ctx context.Context, trader string) (UserMarketBalance, error)
	FetchUserMarketBalanceByContracts(ctx context.Context, trader string, contracts []string) ([]UserMarketBalance, error)

	// FetchWalletBalances returns raw wallet balances keyed by lowercase asset id
	FetchWalletBalances(ctx context.Context, owner string) (map[string]decimal.Decimal, error)

	GetSortedLeaderboard(ctx context.Context, params LeaderboardParams) ([]TraderVolume, error)
	GetSortedLeaderboardPnl(ctx context.Context, params PnlLeaderboardParams) ([]TraderPnl, error)
	FetchLeaderboardPnl(ctx context.Context, wallets []string) ([]TraderPnl, error)
	FetchAllTimeStats(ctx context.Context) (AllTimeStats, error)
}

// Subscription is a live push stream
type Subscription interface {
	// Unsubscribe stops the stream. Calling it more than once is a no-op.
	Unsubscribe()
}

type OrdersHandler func(orders []Order)

type TradesHandler func(trades []TradeEvent)

// Signer hands contract calls to the external wallet connector
type Signer interface {
	// Address returns the b256 address of the connected wallet
	Address() string

	// SendCalls submits the calls as one transaction and returns its id
	SendCalls(ctx context.Context, calls []ContractCall) (string, error)
}

// Reader performs read-only contract calls through the wallet connector bridge
type Reader interface {
	ReadCall(ctx context.Context, call ContractCall) (json.RawMessage, error)
}

// ContractCall is one contract method invocation handed to the signer
type ContractCall struct {
	ContractID string         `json:"contractId"`
	Function   string         `json:"function"`
	Args       map[string]any `json:"args,omitempty"`
	Forward    *AssetAmount   `json:"forward,omitempty"`
}

// AssetAmount is a raw amount of one asset
type AssetAmount struct {
	AssetID string `json:"assetId"`
	Amount  string `json:"amount"`
}

// WriteResult is the outcome of a submitted transaction
type WriteResult struct {
	TransactionID string
}

// AssetType selects the side of a market balance
type AssetType string

const (
	AssetBase  AssetType = "Base"
	AssetQuote AssetType = "Quote"
)

// LimitType is the time in force of a fulfill-many order
type LimitType string

const (
	LimitGTC LimitType = "GTC"
	LimitIOC LimitType = "IOC"
	LimitFOK LimitType = "FOK"
)

// SortSide is the direction of a leaderboard sort
type SortSide string

const (
	SortAsc  SortSide = "ASC"
	SortDesc SortSide = "DESC"
)

// Order is a raw indexer order. Numeric fields are fixed-point integer strings.
type Order struct {
	ID            string
	Market        string
	OrderType     types.OrderType
	Trader        string
	Asset         string
	Amount        string
	InitialAmount string
	Price         string
	Status        string
	Timestamp     time.Time
}

// Params returns the fields needed to build a types.SpotMarketOrder
func (o Order) Params() types.OrderParams {
	return types.OrderParams{
		ID:            o.ID,
		Market:        o.Market,
		Type:          o.OrderType,
		Trader:        o.Trader,
		Price:         o.Price,
		InitialAmount: o.InitialAmount,
		Amount:        o.Amount,
		Status:        o.Status,
		Timestamp:     o.Timestamp,
	}
}

// TradeEvent is a raw indexer trade
type TradeEvent struct {
	ID         string
	Market     string
	Buyer      string
	Seller     string
	TradeSize  string
	TradePrice string
	Timestamp  time.Time
}

// Params returns the fields needed to build a types.SpotMarketTrade
func (t TradeEvent) Params() types.TradeParams {
	return types.TradeParams{
		ID:         t.ID,
		Market:     t.Market,
		Buyer:      t.Buyer,
		Seller:     t.Seller,
		TradeSize:  t.TradeSize,
		TradePrice: t.TradePrice,
		Timestamp:  t.Timestamp,
	}
}

// ActiveOrdersParams filters the active order book of one side
type ActiveOrdersParams struct {
	Market    []string
	Asset     string
	OrderType types.OrderType
	Limit     int
	Offset    int
}

// OrdersParams filters orders of any status
type OrdersParams struct {
	Market    []string
	Asset     string
	OrderType types.OrderType
	Status    []string
	User      string
	Limit     int
	Offset    int
}

// TradeEventsParams filters trade events
type TradeEventsParams struct {
	Market []string
	Limit  int
	Since  time.Time
}

// CreateOrderParams opens a limit order on the active market. Amount and price are raw.
type CreateOrderParams struct {
	Amount    decimal.Decimal
	Price     decimal.Decimal
	OrderType types.OrderType
}

// FulfillOrderManyParams matches against a list of resting orders. Amount and price are raw.
type FulfillOrderManyParams struct {
	Amount    decimal.Decimal
	AssetType AssetType
	OrderType types.OrderType
	LimitType LimitType
	Price     decimal.Decimal
	Slippage  decimal.Decimal
	Orders    []string
}

// AssetPair holds raw base and quote amounts
type AssetPair struct {
	Base  decimal.Decimal
	Quote decimal.Decimal
}

// UserMarketBalance is a trader's balance inside one market contract
type UserMarketBalance struct {
	ContractID string
	Liquid     AssetPair
	Locked     AssetPair
}

// Volume is the 24h market summary in raw units
type Volume struct {
	Low24h    decimal.Decimal
	High24h   decimal.Decimal
	Volume24h decimal.Decimal
}

// ProtocolFee is one fee tier
type ProtocolFee struct {
	MakerFee        decimal.Decimal
	TakerFee        decimal.Decimal
	VolumeThreshold decimal.Decimal
}

// ProtocolFeeAmount is the fee for a given order amount
type ProtocolFeeAmount struct {
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
}

// LeaderboardParams pages the volume leaderboard
type LeaderboardParams struct {
	Limit            int
	Page             int
	Search           string
	CurrentTimestamp int64
	Interval         int64 // seconds, 0 means all time
	Side             SortSide
}

// PnlLeaderboardParams pages the pnl leaderboard
type PnlLeaderboardParams struct {
	Limit    int
	Page     int
	Side     SortSide
	Timeline string
}

// TraderVolume is one volume leaderboard row. ID is the rank as displayed.
type TraderVolume struct {
	ID           string
	WalletID     string
	TraderVolume decimal.Decimal
	TotalCount   int
	IsYour       bool
}

// TraderPnl holds a trader's pnl per timeline
type TraderPnl struct {
	User     string
	PnlDay   decimal.Decimal
	PnlWeek  decimal.Decimal
	PnlMonth decimal.Decimal
	PnlAll   decimal.Decimal
}

// AllTimeStats is the exchange-wide summary
type AllTimeStats struct {
	TotalVolume decimal.Decimal
	TotalTrades int64
}

// HealthStatus represents connection health information
type HealthStatus struct {
	Connected     bool
	LastPing      time.Time
	MessageCount  int64
	ErrorCount    int64
	Subscriptions int
	ReconnectTime *time.Time
}
