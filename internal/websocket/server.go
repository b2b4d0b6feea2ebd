package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"spotbook/internal/aggregation"
	"spotbook/internal/logger"
	"spotbook/internal/metrics"
	"spotbook/internal/store"
	"spotbook/internal/types"
	"spotbook/internal/units"
)

type MessageType string

const (
	MessageTypeOrderbook MessageType = "orderbook"
	MessageTypeStats     MessageType = "stats"
	MessageTypeToast     MessageType = "toast"
	MessageTypeError     MessageType = "error"
)

// ClientMessage represents messages sent from client to server
type ClientMessage struct {
	Type         string `json:"type"`
	DecimalGroup *int32 `json:"decimalGroup,omitempty"`
	Filter       string `json:"filter,omitempty"`
	Market       string `json:"market,omitempty"`
}

type OrderbookMessage struct {
	Type           MessageType  `json:"type"`
	Market         string       `json:"market"`
	State          string       `json:"state"`
	DecimalGroup   int32        `json:"decimalGroup"`
	Filter         string       `json:"filter"`
	Buys           []PriceLevel `json:"buys"`
	Sells          []PriceLevel `json:"sells"`
	TotalBuy       string       `json:"totalBuy"`
	TotalSell      string       `json:"totalSell"`
	SpreadPrice    string       `json:"spreadPrice"`
	SpreadPercent  string       `json:"spreadPercent"`
	SpreadValid    bool         `json:"spreadValid"`
	LastTradePrice string       `json:"lastTradePrice"`
	MarketPrice    string       `json:"marketPrice"`
	Timestamp      int64        `json:"timestamp"`
}

type StatsMessage struct {
	Type                MessageType `json:"type"`
	Market              string      `json:"market"`
	BestBuy             string      `json:"bestBuy"`
	BestSell            string      `json:"bestSell"`
	MidPrice            string      `json:"midPrice"`
	Spread              string      `json:"spread"`
	BidLiquidity05Pct   string      `json:"bidLiquidity05Pct"`
	AskLiquidity05Pct   string      `json:"askLiquidity05Pct"`
	DeltaLiquidity05Pct string      `json:"deltaLiquidity05Pct"`
	BidLiquidity2Pct    string      `json:"bidLiquidity2Pct"`
	AskLiquidity2Pct    string      `json:"askLiquidity2Pct"`
	DeltaLiquidity2Pct  string      `json:"deltaLiquidity2Pct"`
	TotalBuyQty         string      `json:"totalBuyQty"`
	TotalSellQty        string      `json:"totalSellQty"`
	TotalDelta          string      `json:"totalDelta"`
	BuyPushes           int64       `json:"buyPushes"`
	SellPushes          int64       `json:"sellPushes"`
	Timestamp           int64       `json:"timestamp"`
}

type ToastMessage struct {
	Type  MessageType `json:"type"`
	Toast store.Toast `json:"toast"`
}

type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

// PriceLevel is a grouped level in human units
type PriceLevel struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Total      string `json:"total"`
	Cumulative string `json:"cumulative"`
	Orders     int    `json:"orders"`
}

// Options configures the view server
type Options struct {
	Port                    string
	PushInterval            time.Duration
	Top                     int
	ClientMessagesPerSecond float64
}

type client struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	writeMu sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(v)
}

// Server pushes order book snapshots to websocket clients and serves the store state over HTTP
type Server struct {
	root       *store.RootStore
	opts       Options
	metrics    *metrics.Metrics
	log        *logrus.Entry
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	clientsMux sync.RWMutex
	broadcast  chan interface{}
	handler    http.Handler
}

var _ types.View = (*Server)(nil)

func NewServer(root *store.RootStore, opts Options, m *metrics.Metrics) *Server {
	if opts.PushInterval <= 0 {
		opts.PushInterval = 200 * time.Millisecond
	}
	if opts.ClientMessagesPerSecond <= 0 {
		opts.ClientMessagesPerSecond = 5
	}

	s := &Server{
		root:      root,
		opts:      opts,
		metrics:   m,
		log:       logger.WithComponent("view"),
		clients:   make(map[*client]bool),
		broadcast: make(chan interface{}, 100),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.handler = s.routes()

	root.Notifications.OnToast(func(t store.Toast) {
		select {
		case s.broadcast <- ToastMessage{Type: MessageTypeToast, Toast: t}:
		default:
		}
	})
	return s
}

// Handler returns the HTTP routes, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.opts.Port,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.broadcastMessages(ctx)
	go s.startDataPush(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.opts.Port).Info("view server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.closeClients()
		return err
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(s.opts.ClientMessagesPerSecond), int(s.opts.ClientMessagesPerSecond)+1),
	}
	s.addClient(c)
	s.log.WithField("remote", r.RemoteAddr).Info("websocket client connected")

	defer func() {
		s.removeClient(c)
		s.log.WithField("remote", r.RemoteAddr).Info("websocket client disconnected")
	}()

	if snap, ok := s.snapshot(); ok {
		now := time.Now().UnixMilli()
		_ = c.writeJSON(buildOrderbookMessage(snap, now))
		_ = c.writeJSON(buildStatsMessage(snap, now))
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		if !c.limiter.Allow() {
			s.metrics.RecordDroppedClientMessage()
			continue
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			s.log.WithError(err).Debug("invalid client message")
			_ = c.writeJSON(ErrorMessage{Type: MessageTypeError, Error: "invalid message"})
			continue
		}

		if err := s.handleClientMessage(r.Context(), clientMsg); err != nil {
			_ = c.writeJSON(ErrorMessage{Type: MessageTypeError, Error: err.Error()})
		}
	}
}

func (s *Server) handleClientMessage(ctx context.Context, msg ClientMessage) error {
	switch msg.Type {
	case "set_decimal_group":
		if msg.DecimalGroup == nil {
			return errors.New("decimalGroup is required")
		}
		s.root.OrderBook.SetDecimalGroup(*msg.DecimalGroup)
	case "set_filter":
		s.root.OrderBook.SetOrderFilter(types.ParseOrderFilter(msg.Filter))
	case "change_market":
		if msg.Market == "" {
			return errors.New("market is required")
		}
		s.log.WithField("market", msg.Market).Info("market change request")
		if _, err := s.root.ChangeMarket(context.WithoutCancel(ctx), msg.Market); err != nil {
			return err
		}
	default:
		s.log.WithField("type", msg.Type).Debug("unknown message type")
		return errors.New("unknown message type " + msg.Type)
	}
	return nil
}

func (s *Server) addClient(c *client) {
	s.clientsMux.Lock()
	s.clients[c] = true
	n := len(s.clients)
	s.clientsMux.Unlock()
	s.metrics.SetViewClients(n)
}

func (s *Server) removeClient(c *client) {
	s.clientsMux.Lock()
	if !s.clients[c] {
		s.clientsMux.Unlock()
		return
	}
	delete(s.clients, c)
	n := len(s.clients)
	s.clientsMux.Unlock()

	c.conn.Close()
	s.metrics.SetViewClients(n)
}

func (s *Server) closeClients() {
	s.clientsMux.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMux.RUnlock()

	for _, c := range clients {
		s.removeClient(c)
	}
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

func (s *Server) broadcastMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.broadcast:
			s.clientsMux.RLock()
			clients := make([]*client, 0, len(s.clients))
			for c := range s.clients {
				clients = append(clients, c)
			}
			s.clientsMux.RUnlock()

			for _, c := range clients {
				if err := c.writeJSON(msg); err != nil {
					s.log.WithError(err).Debug("dropping client after write error")
					s.removeClient(c)
				}
			}
		}
	}
}

func (s *Server) startDataPush(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.ClientCount() == 0 {
			continue
		}

		snap, ok := s.snapshot()
		if !ok {
			continue
		}

		timestamp := time.Now().UnixMilli()
		for _, msg := range []interface{}{buildOrderbookMessage(snap, timestamp), buildStatsMessage(snap, timestamp)} {
			select {
			case s.broadcast <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Server) snapshot() (store.OrderBookSnapshot, bool) {
	snap := s.root.OrderBook.Snapshot(s.opts.Top)
	return snap, snap.State != store.StateUninitialized
}

func buildOrderbookMessage(snap store.OrderBookSnapshot, timestamp int64) OrderbookMessage {
	market := snap.Market
	return OrderbookMessage{
		Type:           MessageTypeOrderbook,
		Market:         market.Symbol(),
		State:          snap.State.String(),
		DecimalGroup:   snap.DecimalGroup,
		Filter:         snap.Filter.String(),
		Buys:           wireLevels(snap.Buys, market),
		Sells:          wireLevels(snap.Sells, market),
		TotalBuy:       units.FormatUnits(snap.TotalBuy, market.QuoteToken.Decimals).String(),
		TotalSell:      units.FormatUnits(snap.TotalSell, market.BaseToken.Decimals).String(),
		SpreadPrice:    snap.SpreadPrice,
		SpreadPercent:  snap.SpreadPercent,
		SpreadValid:    snap.SpreadValid,
		LastTradePrice: units.FormatUnits(snap.LastTradePrice, market.PriceDecimals).String(),
		MarketPrice:    snap.MarketPrice,
		Timestamp:      timestamp,
	}
}

// wireLevels converts raw levels to human units with a running base total
func wireLevels(levels []types.PriceLevel, market types.Market) []PriceLevel {
	cumulative := aggregation.Cumulative(levels)
	out := make([]PriceLevel, 0, len(levels))
	for i, l := range levels {
		out = append(out, PriceLevel{
			Price:      units.FormatUnits(l.Price, market.PriceDecimals).String(),
			Quantity:   units.FormatUnits(l.Quantity, market.BaseToken.Decimals).String(),
			Total:      units.FormatUnits(l.QuoteQuantity, market.QuoteToken.Decimals).String(),
			Cumulative: units.FormatUnits(cumulative[i], market.BaseToken.Decimals).String(),
			Orders:     l.Orders,
		})
	}
	return out
}

func buildStatsMessage(snap store.OrderBookSnapshot, timestamp int64) StatsMessage {
	stats := snap.Stats
	mid := decimal.Zero
	if stats.SpreadValid {
		mid = stats.BestBuy.Add(stats.BestSell).Div(decimal.NewFromInt(2))
	}

	return StatsMessage{
		Type:                MessageTypeStats,
		Market:              snap.Market.Symbol(),
		BestBuy:             stats.BestBuy.String(),
		BestSell:            stats.BestSell.String(),
		MidPrice:            mid.String(),
		Spread:              stats.Spread.String(),
		BidLiquidity05Pct:   stats.BidLiquidity05Pct.String(),
		AskLiquidity05Pct:   stats.AskLiquidity05Pct.String(),
		DeltaLiquidity05Pct: stats.BidLiquidity05Pct.Sub(stats.AskLiquidity05Pct).String(),
		BidLiquidity2Pct:    stats.BidLiquidity2Pct.String(),
		AskLiquidity2Pct:    stats.AskLiquidity2Pct.String(),
		DeltaLiquidity2Pct:  stats.BidLiquidity2Pct.Sub(stats.AskLiquidity2Pct).String(),
		TotalBuyQty:         stats.TotalBuyQty.String(),
		TotalSellQty:        stats.TotalSellQty.String(),
		TotalDelta:          stats.TotalDelta.String(),
		BuyPushes:           stats.BuyPushes,
		SellPushes:          stats.SellPushes,
		Timestamp:           timestamp,
	}
}
