package spark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"spotbook/internal/logger"
	"spotbook/internal/metrics"
	"spotbook/internal/sdk"
	"spotbook/internal/sentio"
	"spotbook/internal/types"
)

// Config holds the endpoints and contracts of a Spark deployment
type Config struct {
	IndexerURL         string
	IndexerWSURL       string
	NetworkURL         string
	OrderbookContract  string
	MultiAssetContract string
	Markets            []string
	Reader             sdk.Reader
	Sentio             *sentio.Client
	HTTPClient         *http.Client
	Metrics            *metrics.Metrics
}

var _ sdk.OrderBookSDK = (*Client)(nil)

// Client implements the OrderBookSDK interface for the Spark order book on Fuel
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *logrus.Entry
	metrics    *metrics.Metrics

	mu           sync.RWMutex
	activeMarket string
	signer       sdk.Signer

	connMu  sync.Mutex
	writeMu sync.Mutex
	wsConn  *websocket.Conn
	done    chan struct{}
	subsMu  sync.RWMutex
	subs    map[string]*subscription

	health atomic.Value // stores sdk.HealthStatus
}

// NewClient creates a new Spark client
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	c := &Client{
		cfg:        cfg,
		httpClient: httpClient,
		log:        logger.WithComponent("spark"),
		metrics:    cfg.Metrics,
		subs:       make(map[string]*subscription),
	}

	c.health.Store(sdk.HealthStatus{})
	return c
}

// GetName returns the backend name
func (c *Client) GetName() sdk.NetworkName {
	return sdk.Fuel
}

func (c *Client) SetActiveMarket(contractID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeMarket = contractID
}

func (c *Client) ActiveMarket() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeMarket
}

func (c *Client) SetSigner(signer sdk.Signer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signer = signer
}

func (c *Client) currentSigner() sdk.Signer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.signer
}

// Health returns connection health information
func (c *Client) Health() sdk.HealthStatus {
	status, _ := c.health.Load().(sdk.HealthStatus)
	c.subsMu.RLock()
	status.Subscriptions = len(c.subs)
	c.subsMu.RUnlock()
	return status
}

// graphql posts a GraphQL document and decodes the data field into out
func (c *Client) graphql(ctx context.Context, url, operation string, req GraphQLRequest, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(operation, time.Since(start).Seconds(), err)
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", operation, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.incrementErrorCount()
		return fmt.Errorf("failed to fetch %s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.incrementErrorCount()
		return fmt.Errorf("failed to fetch %s: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var gqlResp GraphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		c.incrementErrorCount()
		return fmt.Errorf("failed to decode %s: %w", operation, err)
	}
	if err := graphqlError(gqlResp.Errors); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}

	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s data: %w", operation, err)
	}
	return nil
}

func graphqlError(errs []GraphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Message
	}
	return errors.New("graphql: " + strings.Join(msgs, "; "))
}

// FetchActiveOrders fetches one side of the active order book
func (c *Client) FetchActiveOrders(ctx context.Context, params sdk.ActiveOrdersParams) ([]sdk.Order, error) {
	var data ActiveOrdersData
	req := GraphQLRequest{
		Query:     activeOrdersDocument("query", params.OrderType),
		Variables: activeOrdersVariables(params),
	}
	if err := c.graphql(ctx, c.cfg.IndexerURL, "active_orders", req, &data); err != nil {
		return nil, err
	}

	if params.OrderType == types.Buy {
		return convertOrders(data.ActiveBuyOrder), nil
	}
	return convertOrders(data.ActiveSellOrder), nil
}

// FetchOrders fetches orders of any status
func (c *Client) FetchOrders(ctx context.Context, params sdk.OrdersParams) ([]sdk.Order, error) {
	var data OrdersData
	req := GraphQLRequest{Query: ordersDocument("query"), Variables: ordersVariables(params)}
	if err := c.graphql(ctx, c.cfg.IndexerURL, "orders", req, &data); err != nil {
		return nil, err
	}
	return convertOrders(data.Order), nil
}

// FetchTrades fetches trade events, newest first
func (c *Client) FetchTrades(ctx context.Context, params sdk.TradeEventsParams) ([]sdk.TradeEvent, error) {
	var data TradesData
	req := GraphQLRequest{Query: tradesDocument("query"), Variables: tradesVariables(params)}
	if err := c.graphql(ctx, c.cfg.IndexerURL, "trades", req, &data); err != nil {
		return nil, err
	}
	return convertTrades(data.TradeOrderEvent), nil
}

// FetchMarketPrice returns the raw price of the last trade on market, zero when there is none
func (c *Client) FetchMarketPrice(ctx context.Context, market string) (decimal.Decimal, error) {
	trades, err := c.FetchTrades(ctx, sdk.TradeEventsParams{Market: []string{market}, Limit: 1})
	if err != nil {
		return decimal.Zero, err
	}
	if len(trades) == 0 {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(trades[0].TradePrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid trade price %q: %w", trades[0].TradePrice, err)
	}
	return price, nil
}

// FetchVolume summarises the last 24h of trades on the active market
func (c *Client) FetchVolume(ctx context.Context) (sdk.Volume, error) {
	trades, err := c.FetchTrades(ctx, sdk.TradeEventsParams{
		Market: []string{c.ActiveMarket()},
		Limit:  1000,
		Since:  time.Now().Add(-24 * time.Hour),
	})
	if err != nil {
		return sdk.Volume{}, err
	}

	var v sdk.Volume
	for i, t := range trades {
		price, err := decimal.NewFromString(t.TradePrice)
		if err != nil {
			continue
		}
		size, err := decimal.NewFromString(t.TradeSize)
		if err != nil {
			continue
		}
		if i == 0 || price.LessThan(v.Low24h) {
			v.Low24h = price
		}
		if price.GreaterThan(v.High24h) {
			v.High24h = price
		}
		v.Volume24h = v.Volume24h.Add(size)
	}
	return v, nil
}

// FetchWalletBalances queries the node for the owner's wallet balances
func (c *Client) FetchWalletBalances(ctx context.Context, owner string) (map[string]decimal.Decimal, error) {
	var data BalancesData
	req := GraphQLRequest{
		Query:     balancesQuery,
		Variables: map[string]any{"filter": map[string]any{"owner": owner}},
	}
	if err := c.graphql(ctx, c.cfg.NetworkURL, "balances", req, &data); err != nil {
		return nil, err
	}

	balances := make(map[string]decimal.Decimal, len(data.Balances.Nodes))
	for _, node := range data.Balances.Nodes {
		amount, err := decimal.NewFromString(node.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid balance %q for %s: %w", node.Amount, node.AssetID, err)
		}
		balances[strings.ToLower(node.AssetID)] = amount
	}
	return balances, nil
}

// read performs a read-only contract call and decodes its result
func (c *Client) read(ctx context.Context, call sdk.ContractCall, out any) error {
	if c.cfg.Reader == nil {
		return sdk.ErrNoReader
	}

	start := time.Now()
	raw, err := c.cfg.Reader.ReadCall(ctx, call)
	c.metrics.RecordRequest(call.Function, time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", call.Function, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", call.Function, err)
	}
	return nil
}

func (c *Client) FetchMatcherFee(ctx context.Context) (decimal.Decimal, error) {
	var fee decimal.Decimal
	err := c.read(ctx, sdk.ContractCall{ContractID: c.ActiveMarket(), Function: "matcher_fee"}, &fee)
	return fee, err
}

func (c *Client) FetchProtocolFee(ctx context.Context) ([]sdk.ProtocolFee, error) {
	var rows []FeeResponse
	if err := c.read(ctx, sdk.ContractCall{ContractID: c.ActiveMarket(), Function: "protocol_fee"}, &rows); err != nil {
		return nil, err
	}

	fees := make([]sdk.ProtocolFee, len(rows))
	for i, r := range rows {
		fees[i] = sdk.ProtocolFee{MakerFee: r.MakerFee, TakerFee: r.TakerFee, VolumeThreshold: r.VolumeThreshold}
	}
	return fees, nil
}

func (c *Client) FetchProtocolFeeForUser(ctx context.Context, user string) (sdk.ProtocolFee, error) {
	var r FeeResponse
	call := sdk.ContractCall{
		ContractID: c.ActiveMarket(),
		Function:   "protocol_fee_user",
		Args:       map[string]any{"user": user},
	}
	if err := c.read(ctx, call, &r); err != nil {
		return sdk.ProtocolFee{}, err
	}
	return sdk.ProtocolFee{MakerFee: r.MakerFee, TakerFee: r.TakerFee, VolumeThreshold: r.VolumeThreshold}, nil
}

func (c *Client) FetchProtocolFeeAmountForUser(ctx context.Context, amount decimal.Decimal, user string) (sdk.ProtocolFeeAmount, error) {
	var r FeeResponse
	call := sdk.ContractCall{
		ContractID: c.ActiveMarket(),
		Function:   "protocol_fee_user_amount",
		Args:       map[string]any{"amount": amount.String(), "user": user},
	}
	if err := c.read(ctx, call, &r); err != nil {
		return sdk.ProtocolFeeAmount{}, err
	}
	return sdk.ProtocolFeeAmount{MakerFee: r.MakerFee, TakerFee: r.TakerFee}, nil
}

// FetchUserMarketBalance reads the trader's account on the active market
func (c *Client) FetchUserMarketBalance(ctx context.Context, trader string) (sdk.UserMarketBalance, error) {
	return c.fetchAccount(ctx, c.ActiveMarket(), trader)
}

// FetchUserMarketBalanceByContracts reads the trader's account on each contract
func (c *Client) FetchUserMarketBalanceByContracts(ctx context.Context, trader string, contracts []string) ([]sdk.UserMarketBalance, error) {
	balances := make([]sdk.UserMarketBalance, 0, len(contracts))
	for _, contract := range contracts {
		b, err := c.fetchAccount(ctx, contract, trader)
		if err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, nil
}

func (c *Client) fetchAccount(ctx context.Context, contract, trader string) (sdk.UserMarketBalance, error) {
	var r AccountResponse
	call := sdk.ContractCall{ContractID: contract, Function: "account", Args: map[string]any{"user": trader}}
	if err := c.read(ctx, call, &r); err != nil {
		return sdk.UserMarketBalance{}, err
	}
	return sdk.UserMarketBalance{
		ContractID: contract,
		Liquid:     sdk.AssetPair{Base: r.Liquid.Base, Quote: r.Liquid.Quote},
		Locked:     sdk.AssetPair{Base: r.Locked.Base, Quote: r.Locked.Quote},
	}, nil
}

// incrementErrorCount increments the error count in health
func (c *Client) incrementErrorCount() {
	status, _ := c.health.Load().(sdk.HealthStatus)
	status.ErrorCount++
	c.health.Store(status)
}

// incrementMessageCount increments the message count and ping time in health
func (c *Client) incrementMessageCount() {
	status, _ := c.health.Load().(sdk.HealthStatus)
	status.MessageCount++
	status.LastPing = time.Now()
	c.health.Store(status)
}

// updateConnectionStatus updates the connection status in health
func (c *Client) updateConnectionStatus(connected bool) {
	status, _ := c.health.Load().(sdk.HealthStatus)
	status.Connected = connected
	if !connected {
		now := time.Now()
		status.ReconnectTime = &now
	}
	c.health.Store(status)
}
