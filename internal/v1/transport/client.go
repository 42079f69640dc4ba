// Package transport owns the WebSocket edge: accepting connections, the
// per-client read/write pumps, the hub-level frame router, and the heartbeat
// supervisor that reaps unresponsive connections.
package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ringline/ringline/internal/v1/logging"
	"github.com/ringline/ringline/internal/v1/room"
	"github.com/ringline/ringline/internal/v1/types"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// readLimit caps a single inbound WebSocket message. It sits well above
	// the frame cap so oversized frames still reach the hub, which drops them
	// without killing the channel; only runaway messages close the connection.
	readLimit = 2 * room.MaxFrameSize
)

// wsConnection defines the interface for WebSocket connection operations.
// This abstraction allows for easy testing by enabling mock implementations.
// In production it is satisfied by *websocket.Conn from gorilla/websocket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
}

// FrameRouter is the hub-side contract a Client needs: somewhere to hand
// inbound frames, and somewhere to report its disconnection.
type FrameRouter interface {
	Route(ctx context.Context, client *Client, data []byte)
	HandleClientDisconnect(client *Client)
}

// Client represents one live client channel. It owns the per-connection
// metadata (current room, display name, liveness flag) and the send path
// that serializes outbound JSON frames.
//
// Frames queued on one Client are delivered in queueing order; no ordering
// across clients is promised beyond what the room state machine sequences.
type Client struct {
	conn   wsConnection
	send   chan []byte
	router FrameRouter

	id types.ConnIDType

	mu          sync.RWMutex
	displayName types.DisplayNameType
	roomName    types.RoomNameType
	alive       bool
	closed      bool

	closeOnce sync.Once
}

// NewClient wires a client around an accepted connection. Pumps are started
// separately so tests can drive the client synchronously.
func NewClient(conn wsConnection, router FrameRouter, id types.ConnIDType) *Client {
	c := &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		router: router,
		id:     id,
		alive:  true,
	}
	conn.SetReadLimit(readLimit)
	conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})
	return c
}

// --- types.ClientInterface ---

func (c *Client) GetID() types.ConnIDType {
	return c.id
}

func (c *Client) GetDisplayName() types.DisplayNameType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

func (c *Client) SetDisplayName(name types.DisplayNameType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayName = name
}

func (c *Client) GetRoomName() types.RoomNameType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomName
}

func (c *Client) SetRoomName(name types.RoomNameType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomName = name
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SendFrame serializes the frame and queues it for the write pump. Sends to
// a closed or saturated client are dropped; the connection will be reaped by
// the supervisor or its own read error.
func (c *Client) SendFrame(frame any) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	data, err := json.Marshal(frame)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal outbound frame", zap.Error(err))
		return
	}

	// The closed check above races with CloseWithReason closing the channel.
	defer func() {
		if r := recover(); r != nil {
			logging.GetLogger().Debug("Dropped frame to closing client", zap.String("connId", string(c.id)))
		}
	}()

	select {
	case c.send <- data:
	default:
		logging.Warn(context.Background(), "Client send channel full, dropping frame", zap.String("connId", string(c.id)))
	}
}

// CloseWithReason requests channel shutdown. The reason travels in the close
// control frame. Closing the send channel lets the write pump drain queued
// frames, emit the close frame, and tear down the connection, which in turn
// unblocks the read pump into the disconnect path.
func (c *Client) CloseWithReason(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)

		close(c.send)
	})
}

// --- Liveness (heartbeat supervisor support) ---

func (c *Client) markAlive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alive = true
}

// consumeAlive returns the liveness flag and clears it, so a connection that
// never pongs reads false on the next sweep.
func (c *Client) consumeAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	alive := c.alive
	c.alive = false
	return alive
}

// Ping sends a low-level ping control frame. A pong from the peer restores
// the liveness flag via the pong handler.
func (c *Client) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// --- Pumps ---

// ReadPump continuously processes inbound WebSocket frames until the
// connection errors or closes, then routes the client through the leave path.
func (c *Client) ReadPump() {
	defer func() {
		c.router.HandleClientDisconnect(c)
		c.conn.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		ctx := context.WithValue(context.Background(), logging.ConnIDKey, string(c.id))
		c.router.Route(ctx, c, data)
	}
}

// WritePump serializes all writes to the connection. When the send channel
// closes it emits a close frame and drops the connection.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.GetLogger().Debug("Error writing message", zap.Error(err))
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
