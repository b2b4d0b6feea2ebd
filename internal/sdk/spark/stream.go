package spark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"spotbook/internal/sdk"
	"spotbook/internal/types"
)

const handshakeTimeout = 10 * time.Second

// subscription is one graphql-transport-ws operation multiplexed on the shared connection
type subscription struct {
	id      string
	client  *Client
	deliver func(GraphQLResponse)
	active  atomic.Bool
	once    sync.Once
}

// Unsubscribe stops the stream. Pushes already read are dropped once it returns.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.active.Store(false)
		s.client.unsubscribe(s.id)
	})
}

// Connect establishes the graphql-transport-ws connection to the indexer
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.wsConn != nil {
		return nil
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     []string{wsSubprotocol},
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.IndexerWSURL, nil)
	if err != nil {
		c.incrementErrorCount()
		return fmt.Errorf("websocket connection failed: %w", err)
	}

	if err := conn.WriteJSON(WSMessage{Type: msgConnectionInit}); err != nil {
		conn.Close()
		c.incrementErrorCount()
		return fmt.Errorf("failed to send connection_init: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		c.incrementErrorCount()
		return fmt.Errorf("failed to read connection_ack: %w", err)
	}
	if ack.Type != msgConnectionAck {
		conn.Close()
		c.incrementErrorCount()
		return fmt.Errorf("unexpected handshake message %q", ack.Type)
	}
	_ = conn.SetReadDeadline(time.Time{})

	c.wsConn = conn
	c.done = make(chan struct{})
	c.updateConnectionStatus(true)
	c.log.Info("indexer websocket connected")

	go c.readMessages(conn, c.done)

	return nil
}

// Close closes the WebSocket connection
func (c *Client) Close() error {
	c.connMu.Lock()
	conn, done := c.wsConn, c.done
	c.wsConn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	select {
	case <-done:
	default:
		close(done)
	}

	c.writeMu.Lock()
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	if err != nil {
		c.log.WithError(err).Warn("error sending close message")
	}

	c.subsMu.Lock()
	c.subs = make(map[string]*subscription)
	c.subsMu.Unlock()

	c.updateConnectionStatus(false)
	return conn.Close()
}

// IsConnected checks if the WebSocket connection is active
func (c *Client) IsConnected() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.wsConn != nil
}

func (c *Client) writeJSON(msg WSMessage) error {
	c.connMu.Lock()
	conn := c.wsConn
	c.connMu.Unlock()

	if conn == nil {
		return sdk.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// readMessages continuously reads WebSocket messages and dispatches them to subscriptions
func (c *Client) readMessages(conn *websocket.Conn, done chan struct{}) {
	defer c.dropConnection(conn)

	for {
		select {
		case <-done:
			return
		default:
		}

		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-done:
			default:
				c.incrementErrorCount()
				c.log.WithError(err).Error("websocket read error")
			}
			return
		}

		c.incrementMessageCount()

		switch msg.Type {
		case msgPing:
			if err := c.writeJSON(WSMessage{Type: msgPong}); err != nil {
				c.log.WithError(err).Warn("failed to answer ping")
			}
		case msgNext:
			c.dispatch(msg)
		case msgError:
			c.incrementErrorCount()
			c.log.WithField("subscription", msg.ID).Errorf("subscription error: %s", string(msg.Payload))
		case msgComplete:
			c.subsMu.Lock()
			delete(c.subs, msg.ID)
			c.subsMu.Unlock()
		}
	}
}

func (c *Client) dispatch(msg WSMessage) {
	c.subsMu.RLock()
	sub, ok := c.subs[msg.ID]
	c.subsMu.RUnlock()

	if !ok || !sub.active.Load() {
		return
	}

	var resp GraphQLResponse
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		c.incrementErrorCount()
		c.log.WithError(err).Error("failed to decode subscription payload")
		return
	}
	if err := graphqlError(resp.Errors); err != nil {
		c.incrementErrorCount()
		c.log.WithError(err).WithField("subscription", msg.ID).Error("subscription returned errors")
		return
	}

	sub.deliver(resp)
}

// dropConnection forgets a connection that stopped reading along with every stream it carried
func (c *Client) dropConnection(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.wsConn != conn {
		c.connMu.Unlock()
		return
	}
	c.wsConn = nil
	conn.Close()

	// cleared before a reconnect can register new streams
	c.subsMu.Lock()
	ended := len(c.subs)
	for _, sub := range c.subs {
		sub.active.Store(false)
	}
	c.subs = make(map[string]*subscription)
	c.subsMu.Unlock()
	c.updateConnectionStatus(false)
	c.connMu.Unlock()

	if ended > 0 {
		c.log.WithField("subscriptions", ended).Warn("indexer connection lost, active streams ended")
	}
}

// subscribe registers a new operation, connecting first if needed
func (c *Client) subscribe(ctx context.Context, req GraphQLRequest, deliver func(GraphQLResponse)) (sdk.Subscription, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	sub := &subscription{id: uuid.NewString(), client: c, deliver: deliver}
	sub.active.Store(true)

	c.subsMu.Lock()
	c.subs[sub.id] = sub
	c.subsMu.Unlock()

	payload, err := json.Marshal(req)
	if err != nil {
		c.removeSubscription(sub.id)
		return nil, fmt.Errorf("failed to encode subscription: %w", err)
	}

	if err := c.writeJSON(WSMessage{ID: sub.id, Type: msgSubscribe, Payload: payload}); err != nil {
		c.removeSubscription(sub.id)
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return sub, nil
}

func (c *Client) removeSubscription(id string) bool {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	_, ok := c.subs[id]
	delete(c.subs, id)
	return ok
}

func (c *Client) unsubscribe(id string) {
	if !c.removeSubscription(id) {
		return
	}
	if err := c.writeJSON(WSMessage{ID: id, Type: msgComplete}); err != nil && !errors.Is(err, sdk.ErrNotConnected) {
		c.log.WithError(err).WithField("subscription", id).Warn("failed to send complete")
	}
}

// SubscribeActiveOrders streams one side of the active order book
func (c *Client) SubscribeActiveOrders(ctx context.Context, params sdk.ActiveOrdersParams, handler sdk.OrdersHandler) (sdk.Subscription, error) {
	req := GraphQLRequest{
		Query:     activeOrdersDocument("subscription", params.OrderType),
		Variables: activeOrdersVariables(params),
	}

	return c.subscribe(ctx, req, func(resp GraphQLResponse) {
		var data ActiveOrdersData
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			c.log.WithError(err).Error("failed to decode active orders")
			return
		}
		if params.OrderType == types.Buy {
			handler(convertOrders(data.ActiveBuyOrder))
			return
		}
		handler(convertOrders(data.ActiveSellOrder))
	})
}

// SubscribeOrders streams orders of any status
func (c *Client) SubscribeOrders(ctx context.Context, params sdk.OrdersParams, handler sdk.OrdersHandler) (sdk.Subscription, error) {
	req := GraphQLRequest{Query: ordersDocument("subscription"), Variables: ordersVariables(params)}

	return c.subscribe(ctx, req, func(resp GraphQLResponse) {
		var data OrdersData
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			c.log.WithError(err).Error("failed to decode orders")
			return
		}
		handler(convertOrders(data.Order))
	})
}

// SubscribeTradeOrderEvents streams the latest trades
func (c *Client) SubscribeTradeOrderEvents(ctx context.Context, params sdk.TradeEventsParams, handler sdk.TradesHandler) (sdk.Subscription, error) {
	req := GraphQLRequest{Query: tradesDocument("subscription"), Variables: tradesVariables(params)}

	return c.subscribe(ctx, req, func(resp GraphQLResponse) {
		var data TradesData
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			c.log.WithError(err).Error("failed to decode trades")
			return
		}
		handler(convertTrades(data.TradeOrderEvent))
	})
}
