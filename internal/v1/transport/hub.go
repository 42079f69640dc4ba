package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ringline/ringline/internal/v1/config"
	"github.com/ringline/ringline/internal/v1/logging"
	"github.com/ringline/ringline/internal/v1/metrics"
	"github.com/ringline/ringline/internal/v1/ratelimit"
	"github.com/ringline/ringline/internal/v1/room"
	"github.com/ringline/ringline/internal/v1/types"
)

// Hub is the central coordinator: it owns the room registry and the set of
// live clients, demultiplexes inbound frames, and runs the heartbeat
// supervisor. Rooms serialize their own state; the hub lock only guards the
// two registries.
type Hub struct {
	mu      sync.Mutex
	rooms   map[types.RoomNameType]*room.Room
	clients map[types.ConnIDType]*Client

	bus         types.BusService
	rateLimiter *ratelimit.RateLimiter
	devMode     bool

	roomOpts          room.Options
	heartbeatInterval time.Duration
}

// NewHub creates a Hub configured from the validated environment.
func NewHub(cfg *config.Config, busService types.BusService, rateLimiter *ratelimit.RateLimiter) *Hub {
	return &Hub{
		rooms:       make(map[types.RoomNameType]*room.Room),
		clients:     make(map[types.ConnIDType]*Client),
		bus:         busService,
		rateLimiter: rateLimiter,
		devMode:     cfg.DevelopmentMode,
		roomOpts: room.Options{
			RingInterval:   cfg.RingInterval,
			RingMaxResends: cfg.RingMaxResends,
		},
		heartbeatInterval: cfg.HeartbeatInterval,
	}
}

// ServeWs upgrades an HTTP request to a WebSocket connection and hands the
// resulting client its pumps. Room membership is established later by a join
// frame, not by the URL.
func (h *Hub) ServeWs(c *gin.Context) {
	if h.rateLimiter != nil && !h.devMode {
		if !h.rateLimiter.CheckWebSocket(c) {
			return // Response already written by CheckWebSocket
		}
	}

	conn, err := h.upgradeWebSocket(c)
	if err != nil {
		return
	}

	h.HandleConnection(conn)
}

// HandleConnection registers an established connection and starts its pumps.
func (h *Hub) HandleConnection(conn wsConnection) *Client {
	client := NewClient(conn, h, types.ConnIDType(uuid.New().String()))

	h.mu.Lock()
	h.clients[client.GetID()] = client
	h.mu.Unlock()

	metrics.IncConnection()
	logging.Info(context.Background(), "Client connected", zap.String("connId", string(client.GetID())))

	go client.WritePump()
	go client.ReadPump()
	return client
}

// Route demultiplexes one inbound frame. Each frame is an independent
// transaction: malformed input is dropped, precondition failures answer with
// error or busy frames, and nothing propagates a panic out of the hub.
func (h *Hub) Route(ctx context.Context, client *Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "Recovered from panic while routing frame", zap.Any("panic", r))
		}
	}()

	if len(data) > room.MaxFrameSize {
		metrics.FramesTotal.WithLabelValues("oversized", "dropped").Inc()
		return
	}

	var env room.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		metrics.FramesTotal.WithLabelValues("malformed", "dropped").Inc()
		return
	}

	switch {
	case env.Type == room.TypeJoin:
		h.handleJoin(ctx, client, &env)

	case env.Type == room.TypeLeaveRoom:
		h.handleLeaveRoom(ctx, client)

	case room.IsCallType(env.Type):
		rm := h.lookupRoom(client.GetRoomName())
		if rm == nil {
			client.SendFrame(room.ErrNotInRoom)
			metrics.FramesTotal.WithLabelValues(env.Type, "not-in-room").Inc()
			return
		}
		rm.Route(ctx, client, &env)

	default:
		client.SendFrame(room.ErrUnknownType)
		metrics.FramesTotal.WithLabelValues("unknown", "rejected").Inc()
	}
}

// handleJoin admits the client to the named room, leaving its current room
// first when switching. A join without a room key is malformed and dropped.
func (h *Hub) handleJoin(ctx context.Context, client *Client, env *room.Envelope) {
	if env.Room == "" {
		metrics.FramesTotal.WithLabelValues(room.TypeJoin, "malformed").Inc()
		return
	}

	name := env.Name
	if name == "" {
		name = "peer"
	}

	target := types.RoomNameType(env.Room)
	if current := client.GetRoomName(); current != "" && current != target {
		if rm := h.lookupRoom(current); rm != nil {
			rm.HandleLeave(ctx, client)
		}
	}

	rm := h.getOrCreateRoom(target)
	rm.HandleJoin(ctx, client, types.DisplayNameType(name))
	h.ensureRoomRegistered(rm)
	metrics.FramesTotal.WithLabelValues(room.TypeJoin, "ok").Inc()
}

// handleLeaveRoom runs the leave path and always replies left, making
// leave-room idempotent and safe outside a room.
func (h *Hub) handleLeaveRoom(ctx context.Context, client *Client) {
	if rm := h.lookupRoom(client.GetRoomName()); rm != nil {
		rm.HandleLeave(ctx, client)
	}
	client.SendFrame(room.LeftFrame{Type: room.TypeLeft})
	metrics.FramesTotal.WithLabelValues(room.TypeLeaveRoom, "ok").Inc()
}

// HandleClientDisconnect routes a closed connection through the room leave
// path and unregisters it. Invoked from the read pump on any channel error,
// including supervisor-initiated termination.
func (h *Hub) HandleClientDisconnect(client *Client) {
	client.CloseWithReason("")

	if rm := h.lookupRoom(client.GetRoomName()); rm != nil {
		rm.HandleDisconnect(client)
	}

	h.mu.Lock()
	_, registered := h.clients[client.GetID()]
	delete(h.clients, client.GetID())
	h.mu.Unlock()

	if registered {
		metrics.DecConnection()
		logging.Info(context.Background(), "Client disconnected", zap.String("connId", string(client.GetID())))
	}
}

// lookupRoom resolves a room by name; empty names resolve to nil.
func (h *Hub) lookupRoom(name types.RoomNameType) *room.Room {
	if name == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[name]
}

// getOrCreateRoom lazily creates rooms on first join.
func (h *Hub) getOrCreateRoom(name types.RoomNameType) *room.Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rm, ok := h.rooms[name]; ok {
		return rm
	}

	logging.Info(context.Background(), "Creating room", zap.String("room", string(name)))
	rm := room.NewRoom(name, h.roomOpts, h.removeRoomIfEmpty, h.bus)
	h.rooms[name] = rm

	metrics.ActiveRooms.Inc()
	h.publishRoomEvent("room.created", name)
	return rm
}

// ensureRoomRegistered re-inserts a room that removeRoomIfEmpty deleted while
// a join against it was in flight: the last member's leave can empty the room
// between getOrCreateRoom and the join taking the room lock. The join admitted
// a member, so the room is live again; without re-insertion that member would
// resolve to no room on every subsequent frame.
func (h *Hub) ensureRoomRegistered(rm *room.Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rm.IsEmpty() {
		return
	}
	if _, ok := h.rooms[rm.Name()]; ok {
		return
	}

	logging.Info(context.Background(), "Re-registering room removed mid-join", zap.String("room", string(rm.Name())))
	h.rooms[rm.Name()] = rm
	metrics.ActiveRooms.Inc()
	h.publishRoomEvent("room.created", rm.Name())
}

// removeRoomIfEmpty destroys a room once its member set is empty. Wired as
// the room's onEmpty callback, it re-checks under the hub lock so a join that
// raced the last leave wins.
func (h *Hub) removeRoomIfEmpty(name types.RoomNameType) {
	h.mu.Lock()
	rm, ok := h.rooms[name]
	if !ok || !rm.IsEmpty() {
		h.mu.Unlock()
		return
	}
	delete(h.rooms, name)
	h.mu.Unlock()

	metrics.ActiveRooms.Dec()
	metrics.RoomMembers.DeleteLabelValues(string(name))
	logging.Info(context.Background(), "Removed empty room", zap.String("room", string(name)))
	h.publishRoomEvent("room.destroyed", name)
}

func (h *Hub) publishRoomEvent(event string, name types.RoomNameType) {
	if h.bus == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.bus.PublishEvent(ctx, event, map[string]string{"room": string(name)}); err != nil {
			logging.Warn(ctx, "Bus publish failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

// Run drives the heartbeat supervisor until the context is cancelled. Each
// sweep terminates connections that failed to pong since the previous sweep,
// then clears every liveness flag and pings. Termination is best-effort;
// residual state is caught by the next sweep.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweep()
		}
	}
}

// sweep performs one supervisor pass over all connections.
func (h *Hub) sweep() {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	for _, c := range snapshot {
		if !c.consumeAlive() {
			logging.Info(context.Background(), "Reaping unresponsive connection", zap.String("connId", string(c.GetID())))
			metrics.HeartbeatReapsTotal.Inc()
			c.CloseWithReason("heartbeat timeout")
			continue
		}
		if err := c.Ping(); err != nil {
			// The read pump will notice the dead connection shortly.
			logging.GetLogger().Debug("Ping failed", zap.String("connId", string(c.GetID())), zap.Error(err))
		}
	}
}

// Shutdown gracefully closes every connection; the resulting disconnect paths
// tear down rooms and calls with the usual leave semantics.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	logging.Info(ctx, "Shutting down hub", zap.Int("connections", len(snapshot)))
	for _, c := range snapshot {
		c.CloseWithReason("server shutting down")
	}
	return nil
}
