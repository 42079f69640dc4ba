package room

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ringline/ringline/internal/v1/types"
)

// Polling bounds for assert.Eventually in timer and bus tests.
const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// mockClient implements types.ClientInterface and records every frame sent to it.
type mockClient struct {
	mu          sync.Mutex
	id          types.ConnIDType
	name        types.DisplayNameType
	roomName    types.RoomNameType
	closed      bool
	closeReason string
	frames      []any
}

func newMockClient(id string) *mockClient {
	return &mockClient{id: types.ConnIDType(id)}
}

func (m *mockClient) GetID() types.ConnIDType { return m.id }

func (m *mockClient) GetDisplayName() types.DisplayNameType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

func (m *mockClient) SetDisplayName(name types.DisplayNameType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
}

func (m *mockClient) GetRoomName() types.RoomNameType {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomName
}

func (m *mockClient) SetRoomName(name types.RoomNameType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomName = name
}

func (m *mockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockClient) SendFrame(frame any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.frames = append(m.frames, frame)
}

func (m *mockClient) CloseWithReason(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.closeReason = reason
}

// markDead simulates a channel that died without the disconnect path running yet.
func (m *mockClient) markDead() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// sentFrames returns a snapshot of everything sent to this client.
func (m *mockClient) sentFrames() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.frames))
	copy(out, m.frames)
	return out
}

// lastFrame returns the most recent frame, or nil.
func (m *mockClient) lastFrame() any {
	frames := m.sentFrames()
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

// frameTypes returns the type field of every sent frame, in order.
func (m *mockClient) frameTypes(t *testing.T) []string {
	t.Helper()
	frames := m.sentFrames()
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, frameType(t, f))
	}
	return out
}

// frameType extracts the type field from any outbound frame struct.
func frameType(t *testing.T, frame any) string {
	t.Helper()
	m := frameAsMap(t, frame)
	typ, _ := m["type"].(string)
	return typ
}

// frameAsMap round-trips a frame through JSON for field assertions.
func frameAsMap(t *testing.T, frame any) map[string]any {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return m
}

// mockBus implements types.BusService and records published event names.
type mockBus struct {
	mu     sync.Mutex
	events []string
}

func (b *mockBus) PublishEvent(_ context.Context, event string, _ any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *mockBus) Ping(_ context.Context) error { return nil }

func (b *mockBus) Close() error { return nil }

func (b *mockBus) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	copy(out, b.events)
	return out
}
