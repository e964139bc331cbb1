// Package oracle supplies collateral asset prices and market conditions
// from the external price oracle, with a Redis cache in front.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// PriceTick is one streamed price observation.
type PriceTick struct {
	Asset string  `json:"asset"`
	Price float64 `json:"price"`
	TsMs  int64   `json:"ts"`
}

// Time converts the tick's millisecond timestamp.
func (t PriceTick) Time() time.Time {
	return time.UnixMilli(t.TsMs)
}

// TickHandler is called for every price tick received.
type TickHandler func(PriceTick)

// wsCommand is the subscribe/unsubscribe message sent to the oracle.
type wsCommand struct {
	Type   string   `json:"type"`
	Assets []string `json:"assets"`
}

// WSClient streams price ticks from the oracle WebSocket endpoint. It
// manages the connection lifecycle, subscriptions, and dispatches ticks to
// registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscription to restore on reconnect.
	assets []string

	handlers  []TickHandler
	handlerMu sync.RWMutex

	done chan struct{}
	lost chan struct{}
}

// NewWSClient creates a client for the given oracle WebSocket URL.
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Lost is closed when the read loop exits, signalling the connection
// dropped. Only valid after Connect.
func (w *WSClient) Lost() <-chan struct{} {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lost
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. A previous subscription is restored after reconnect.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("oracle/ws: client closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("oracle/ws: connect: %w", err)
	}

	w.conn = conn
	w.lost = make(chan struct{})

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop(conn, w.lost)
	go w.pingLoop(conn)

	if len(w.assets) > 0 {
		if err := w.sendCommand(wsCommand{Type: "subscribe", Assets: w.assets}); err != nil {
			return fmt.Errorf("oracle/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe requests ticks for the given assets and remembers them for
// reconnection.
func (w *WSClient) Subscribe(ctx context.Context, assets []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("oracle/ws: not connected")
	}

	if err := w.sendCommand(wsCommand{Type: "subscribe", Assets: assets}); err != nil {
		return fmt.Errorf("oracle/ws: subscribe: %w", err)
	}
	w.assets = assets
	return nil
}

// OnTick registers a handler called for every received price tick.
func (w *WSClient) OnTick(handler TickHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Close shuts down the connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// sendCommand sends a JSON command. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads tick messages until the connection drops or Close is
// called.
func (w *WSClient) readLoop(conn *websocket.Conn, lost chan struct{}) {
	defer close(lost)

	for {
		select {
		case <-w.done:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var tick PriceTick
		if err := json.Unmarshal(data, &tick); err != nil || tick.Asset == "" {
			continue
		}

		w.handlerMu.RLock()
		handlers := w.handlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(tick)
		}
	}
}

// pingLoop keeps the connection alive.
func (w *WSClient) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
