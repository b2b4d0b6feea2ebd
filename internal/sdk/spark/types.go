package spark

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spotbook/internal/sdk"
	"spotbook/internal/types"
)

// graphql-transport-ws message types
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
	msgPing           = "ping"
	msgPong           = "pong"

	wsSubprotocol = "graphql-transport-ws"
)

// WSMessage is a graphql-transport-ws frame
type WSMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// GraphQLRequest is the body of an HTTP query and the payload of a subscribe frame
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLResponse is the body of an HTTP query and the payload of a next frame
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

type GraphQLError struct {
	Message string `json:"message"`
}

// OrderResponse is an order row of the indexer
type OrderResponse struct {
	ID            string `json:"id"`
	Market        string `json:"market"`
	OrderType     string `json:"orderType"`
	Trader        string `json:"trader"`
	Asset         string `json:"asset"`
	Amount        string `json:"amount"`
	InitialAmount string `json:"initialAmount"`
	Price         string `json:"price"`
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
}

// TradeResponse is a trade event row of the indexer
type TradeResponse struct {
	ID         string `json:"id"`
	Market     string `json:"market"`
	Buyer      string `json:"buyer"`
	Seller     string `json:"seller"`
	TradeSize  string `json:"tradeSize"`
	TradePrice string `json:"tradePrice"`
	Timestamp  string `json:"timestamp"`
}

// ActiveOrdersData holds whichever side the query selected
type ActiveOrdersData struct {
	ActiveBuyOrder  []OrderResponse `json:"ActiveBuyOrder"`
	ActiveSellOrder []OrderResponse `json:"ActiveSellOrder"`
}

type OrdersData struct {
	Order []OrderResponse `json:"Order"`
}

type TradesData struct {
	TradeOrderEvent []TradeResponse `json:"TradeOrderEvent"`
}

// BalancesData is the node response of the wallet balances query
type BalancesData struct {
	Balances struct {
		Nodes []struct {
			AssetID string `json:"assetId"`
			Amount  string `json:"amount"`
		} `json:"nodes"`
	} `json:"balances"`
}

// AccountResponse is the decoded result of the market contract account read
type AccountResponse struct {
	Liquid struct {
		Base  decimal.Decimal `json:"base"`
		Quote decimal.Decimal `json:"quote"`
	} `json:"liquid"`
	Locked struct {
		Base  decimal.Decimal `json:"base"`
		Quote decimal.Decimal `json:"quote"`
	} `json:"locked"`
}

type FeeResponse struct {
	MakerFee        decimal.Decimal `json:"makerFee"`
	TakerFee        decimal.Decimal `json:"takerFee"`
	VolumeThreshold decimal.Decimal `json:"volumeThreshold"`
}

// LeaderboardRow is a row of the volume leaderboard query
type LeaderboardRow struct {
	ID           decimal.Decimal `json:"id"`
	WalletID     string          `json:"walletId"`
	TraderVolume decimal.Decimal `json:"traderVolume"`
	TotalCount   decimal.Decimal `json:"totalCount"`
}

// PnlRow is a row of the pnl queries
type PnlRow struct {
	User     string          `json:"user"`
	PnlDay   decimal.Decimal `json:"pnl1"`
	PnlWeek  decimal.Decimal `json:"pnl7"`
	PnlMonth decimal.Decimal `json:"pnl31"`
	PnlAll   decimal.Decimal `json:"pnlInfinity"`
}

type StatsRow struct {
	TotalVolume decimal.Decimal `json:"total_volume"`
	TotalTrades decimal.Decimal `json:"total_trades"`
}

const orderFields = `id market orderType trader asset amount initialAmount price status timestamp`

const tradeFields = `id market tradeSize tradePrice buyer seller timestamp`

// activeOrdersDocument builds the query or subscription document for one side
func activeOrdersDocument(operation string, side types.OrderType) string {
	table, direction := "ActiveSellOrder", "asc"
	if side == types.Buy {
		table, direction = "ActiveBuyOrder", "desc"
	}
	return operation + ` ($limit: Int, $offset: Int, $where: ` + table + `_bool_exp) {
  ` + table + `(limit: $limit, offset: $offset, where: $where, order_by: {price: ` + direction + `}) { ` + orderFields + ` }
}`
}

func ordersDocument(operation string) string {
	return operation + ` ($limit: Int, $offset: Int, $where: Order_bool_exp) {
  Order(limit: $limit, offset: $offset, where: $where, order_by: {timestamp: desc}) { ` + orderFields + ` }
}`
}

func tradesDocument(operation string) string {
	return operation + ` ($limit: Int, $where: TradeOrderEvent_bool_exp) {
  TradeOrderEvent(limit: $limit, where: $where, order_by: {timestamp: desc}) { ` + tradeFields + ` }
}`
}

const balancesQuery = `query Balances($filter: BalanceFilterInput) {
  balances(filter: $filter, first: 100) { nodes { assetId amount } }
}`

func activeOrdersVariables(p sdk.ActiveOrdersParams) map[string]any {
	where := map[string]any{}
	if len(p.Market) > 0 {
		where["market"] = map[string]any{"_in": p.Market}
	}
	if p.Asset != "" {
		where["asset"] = map[string]any{"_eq": p.Asset}
	}
	return map[string]any{"limit": p.Limit, "offset": p.Offset, "where": where}
}

func ordersVariables(p sdk.OrdersParams) map[string]any {
	where := map[string]any{}
	if len(p.Market) > 0 {
		where["market"] = map[string]any{"_in": p.Market}
	}
	if p.Asset != "" {
		where["asset"] = map[string]any{"_eq": p.Asset}
	}
	if p.OrderType != "" {
		where["orderType"] = map[string]any{"_eq": string(p.OrderType)}
	}
	if len(p.Status) > 0 {
		where["status"] = map[string]any{"_in": p.Status}
	}
	if p.User != "" {
		where["trader"] = map[string]any{"_eq": p.User}
	}
	return map[string]any{"limit": p.Limit, "offset": p.Offset, "where": where}
}

func tradesVariables(p sdk.TradeEventsParams) map[string]any {
	where := map[string]any{}
	if len(p.Market) > 0 {
		where["market"] = map[string]any{"_in": p.Market}
	}
	if !p.Since.IsZero() {
		where["timestamp"] = map[string]any{"_gt": p.Since.UTC().Format(time.RFC3339)}
	}
	return map[string]any{"limit": p.Limit, "where": where}
}

func convertOrders(rows []OrderResponse) []sdk.Order {
	orders := make([]sdk.Order, len(rows))
	for i, r := range rows {
		orders[i] = sdk.Order{
			ID:            r.ID,
			Market:        r.Market,
			OrderType:     types.OrderType(r.OrderType),
			Trader:        r.Trader,
			Asset:         r.Asset,
			Amount:        r.Amount,
			InitialAmount: r.InitialAmount,
			Price:         r.Price,
			Status:        r.Status,
			Timestamp:     parseTimestamp(r.Timestamp),
		}
	}
	return orders
}

func convertTrades(rows []TradeResponse) []sdk.TradeEvent {
	trades := make([]sdk.TradeEvent, len(rows))
	for i, r := range rows {
		trades[i] = sdk.TradeEvent{
			ID:         r.ID,
			Market:     r.Market,
			Buyer:      r.Buyer,
			Seller:     r.Seller,
			TradeSize:  r.TradeSize,
			TradePrice: r.TradePrice,
			Timestamp:  parseTimestamp(r.Timestamp),
		}
	}
	return trades
}

// parseTimestamp accepts RFC3339 or unix seconds, returning zero time otherwise
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if !strings.ContainsAny(s, "-:T") {
		if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Time{}
}
