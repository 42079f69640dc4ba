package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ringline/ringline/internal/v1/config"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var errConnClosed = errors.New("connection closed")

type inboundMessage struct {
	messageType int
	data        []byte
}

type controlMessage struct {
	messageType int
	data        []byte
}

// mockConn implements wsConnection. Inbound frames are fed through a channel
// so tests can drive the read pump; writes and control frames are recorded.
type mockConn struct {
	inbound chan inboundMessage

	mu          sync.Mutex
	written     [][]byte
	writtenType []int
	control     []controlMessage
	pongHandler func(string) error
	readLimit   int64
	closed      bool
	closeOnce   sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{inbound: make(chan inboundMessage, 16)}
}

func (c *mockConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.inbound
	if !ok {
		return 0, nil, errConnClosed
	}
	return msg.messageType, msg.data, nil
}

func (c *mockConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.writtenType = append(c.writtenType, messageType)
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *mockConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.control = append(c.control, controlMessage{messageType: messageType, data: append([]byte(nil), data...)})
	return nil
}

func (c *mockConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.inbound)
	})
	return nil
}

func (c *mockConn) SetWriteDeadline(time.Time) error { return nil }

func (c *mockConn) SetReadLimit(limit int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLimit = limit
}

func (c *mockConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

// feed queues one inbound text frame for the read pump.
func (c *mockConn) feed(data string) {
	c.inbound <- inboundMessage{messageType: websocket.TextMessage, data: []byte(data)}
}

func (c *mockConn) writtenMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

func (c *mockConn) controlMessages() []controlMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]controlMessage, len(c.control))
	copy(out, c.control)
	return out
}

func (c *mockConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *mockConn) firePong() {
	c.mu.Lock()
	h := c.pongHandler
	c.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

// newTestHub builds a hub with fast timers and no bus or rate limiter.
func newTestHub() *Hub {
	return NewHub(&config.Config{
		DevelopmentMode:   true,
		HeartbeatInterval: 10 * time.Millisecond,
		RingInterval:      10 * time.Millisecond,
		RingMaxResends:    2,
	}, nil, nil)
}

// popFrame pulls the next queued outbound frame off a client and decodes it.
func popFrame(t *testing.T, c *Client) map[string]any {
	t.Helper()
	select {
	case data, ok := <-c.send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal outbound frame: %v", err)
		}
		return m
	case <-time.After(waitFor):
		t.Fatal("no outbound frame")
		return nil
	}
}

// noFrame asserts nothing is queued on the client.
func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data, ok := <-c.send:
		// A closed, drained channel delivers a zero value; only a real
		// queued frame is a failure.
		if ok {
			t.Fatalf("unexpected outbound frame: %s", data)
		}
	default:
	}
}
