// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package websocket

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/intelstream/internal/broadcast"
	"github.com/tomtom215/intelstream/internal/logging"
	"github.com/tomtom215/intelstream/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client message types.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Message is the JSON frame exchanged with clients.
type Message struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client adapts a WebSocket connection to broadcast.EventWriter.
// gorilla/websocket allows one concurrent writer, so every write holds mu.
type Client struct {
	conn *websocket.Conn

	mu       sync.Mutex
	lastPing time.Time
}

// NewClient wraps conn.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, lastPing: time.Now()}
}

// WriteEvent implements broadcast.EventWriter. A ping is interleaved when the
// stream is busy enough that no keep-alive has been sent for a ping period,
// so the read deadline keeps moving.
func (c *Client) WriteEvent(ev broadcast.Event) error {
	if err := c.writeJSON(Message{Type: ev.Name, ID: ev.ID, Data: ev.Data}); err != nil {
		return err
	}
	metrics.WSMessagesSent.Inc()

	c.mu.Lock()
	due := time.Since(c.lastPing) >= pingPeriod
	c.mu.Unlock()
	if due {
		return c.WriteKeepAlive()
	}
	return nil
}

// WriteKeepAlive implements broadcast.EventWriter with a ping control frame.
func (c *Client) WriteKeepAlive() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastPing = time.Now()
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		metrics.WSErrors.WithLabelValues("ping").Inc()
		return err
	}
	return nil
}

func (c *Client) writeJSON(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		metrics.WSErrors.WithLabelValues("write").Inc()
		return err
	}
	return nil
}

// readPump consumes client frames until the connection fails, answering
// application pings. It calls done when it returns.
func (c *Client) readPump(done context.CancelFunc) {
	defer done()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				metrics.WSErrors.WithLabelValues("read").Inc()
				logging.Warn().Err(err).Msg("unexpected websocket close error")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			if err := c.writeJSON(Message{Type: MessageTypePong}); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// Serve streams sub over conn until ctx is done, the client goes away, or the
// subscription ends. It closes conn before returning.
func Serve(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription) error {
	client := NewClient(conn)

	metrics.WSConnections.Inc()
	defer metrics.WSConnections.Dec()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		client.readPump(cancel)
	}()

	err := sub.Stream(ctx, client)
	client.writeClose()
	_ = conn.Close() // best-effort; unblocks readPump
	<-readDone

	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// NewUpgrader returns an upgrader accepting the given origins. An empty
// list or "*" accepts any origin.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}
