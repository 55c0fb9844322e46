package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	MainnetWSURL = "wss://api.hyperliquid.xyz/ws"
	TestnetWSURL = "wss://api.hyperliquid-testnet.xyz/ws"

	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// L2BookCallback receives book snapshots for a subscribed coin.
type L2BookCallback func(book *L2Book)

// MidsCallback receives the all-mids map: coin -> mid price string.
type MidsCallback func(mids map[string]string)

// TradeEvent is one trade from the trades channel.
type TradeEvent struct {
	Coin string `json:"coin"`
	Side string `json:"side"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Time int64  `json:"time"`
}

// TradesCallback receives trades for a subscribed coin.
type TradesCallback func(trades []TradeEvent)

// UserEventCallback receives raw user events (fills, liquidations).
type UserEventCallback func(event json.RawMessage)

// WSClient maintains one websocket connection with per-channel
// dispatch. Subscriptions survive reconnects.
type WSClient struct {
	url    string
	logger *logrus.Entry

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	subs      []wsSubscription

	bookCallbacks  map[string]L2BookCallback
	tradeCallbacks map[string]TradesCallback
	midsCallback   MidsCallback
	userCallback   UserEventCallback

	writeMu sync.Mutex
	done    chan struct{}
}

type wsSubscription map[string]interface{}

type wsMessage struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// NewWSClient creates a websocket client for the given network.
func NewWSClient(testnet bool) *WSClient {
	url := MainnetWSURL
	if testnet {
		url = TestnetWSURL
	}
	return &WSClient{
		url:            url,
		logger:         logrus.WithField("component", "hyperliquid-ws"),
		bookCallbacks:  make(map[string]L2BookCallback),
		tradeCallbacks: make(map[string]TradesCallback),
		done:           make(chan struct{}),
	}
}

// Connect dials the websocket and starts the read loop.
func (w *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	w.mu.Lock()
	w.conn = conn
	w.connected = true
	subs := make([]wsSubscription, len(w.subs))
	copy(subs, w.subs)
	w.mu.Unlock()

	// Replay subscriptions after reconnect.
	for _, sub := range subs {
		if err := w.send(map[string]interface{}{"method": "subscribe", "subscription": sub}); err != nil {
			w.logger.WithError(err).Warn("failed to replay subscription")
		}
	}

	go w.readLoop()
	go w.pingLoop()
	return nil
}

// Close shuts the connection down.
func (w *WSClient) Close() error {
	close(w.done)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

func (w *WSClient) send(v interface{}) error {
	w.mu.RLock()
	conn := w.conn
	w.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("websocket not connected")
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(v)
}

func (w *WSClient) subscribe(sub wsSubscription) error {
	w.mu.Lock()
	w.subs = append(w.subs, sub)
	w.mu.Unlock()
	return w.send(map[string]interface{}{"method": "subscribe", "subscription": sub})
}

// SubscribeL2Book streams book snapshots for one coin.
func (w *WSClient) SubscribeL2Book(coin string, cb L2BookCallback) error {
	w.mu.Lock()
	w.bookCallbacks[coin] = cb
	w.mu.Unlock()
	return w.subscribe(wsSubscription{"type": "l2Book", "coin": coin})
}

// SubscribeAllMids streams the mid price of every market.
func (w *WSClient) SubscribeAllMids(cb MidsCallback) error {
	w.mu.Lock()
	w.midsCallback = cb
	w.mu.Unlock()
	return w.subscribe(wsSubscription{"type": "allMids"})
}

// SubscribeTrades streams trades for one coin.
func (w *WSClient) SubscribeTrades(coin string, cb TradesCallback) error {
	w.mu.Lock()
	w.tradeCallbacks[coin] = cb
	w.mu.Unlock()
	return w.subscribe(wsSubscription{"type": "trades", "coin": coin})
}

// SubscribeUserEvents streams fills and account events for a user.
func (w *WSClient) SubscribeUserEvents(user string, cb UserEventCallback) error {
	w.mu.Lock()
	w.userCallback = cb
	w.mu.Unlock()
	return w.subscribe(wsSubscription{"type": "userEvents", "user": user})
}

func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if err := w.send(map[string]string{"method": "ping"}); err != nil {
				w.logger.WithError(err).Debug("ping failed")
			}
		}
	}
}

func (w *WSClient) readLoop() {
	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.connected = false
			w.mu.Unlock()
			select {
			case <-w.done:
			default:
				w.logger.WithError(err).Warn("websocket read failed")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			w.logger.WithError(err).Debug("undecodable websocket message")
			continue
		}
		w.dispatch(&msg)
	}
}

func (w *WSClient) dispatch(msg *wsMessage) {
	switch msg.Channel {
	case "l2Book":
		var book L2Book
		if err := json.Unmarshal(msg.Data, &book); err != nil {
			return
		}
		w.mu.RLock()
		cb := w.bookCallbacks[book.Coin]
		w.mu.RUnlock()
		if cb != nil {
			cb(&book)
		}
	case "allMids":
		var payload struct {
			Mids map[string]string `json:"mids"`
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return
		}
		w.mu.RLock()
		cb := w.midsCallback
		w.mu.RUnlock()
		if cb != nil {
			cb(payload.Mids)
		}
	case "trades":
		var trades []TradeEvent
		if err := json.Unmarshal(msg.Data, &trades); err != nil || len(trades) == 0 {
			return
		}
		w.mu.RLock()
		cb := w.tradeCallbacks[trades[0].Coin]
		w.mu.RUnlock()
		if cb != nil {
			cb(trades)
		}
	case "user", "userEvents":
		w.mu.RLock()
		cb := w.userCallback
		w.mu.RUnlock()
		if cb != nil {
			cb(msg.Data)
		}
	case "subscriptionResponse", "pong":
		// acknowledgements carry no data
	default:
		w.logger.WithField("channel", msg.Channel).Debug("unhandled channel")
	}
}
