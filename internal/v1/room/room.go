package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/ringline/ringline/internal/v1/logging"
	"github.com/ringline/ringline/internal/v1/metrics"
	"github.com/ringline/ringline/internal/v1/types"
)

// Options carries the timing knobs a Room needs. Zero values fall back to the
// production defaults; tests shrink them to keep timer scenarios fast.
type Options struct {
	RingInterval   time.Duration
	RingMaxResends int
}

const (
	defaultRingInterval   = 800 * time.Millisecond
	defaultRingMaxResends = 6
)

func (o Options) withDefaults() Options {
	if o.RingInterval <= 0 {
		o.RingInterval = defaultRingInterval
	}
	if o.RingMaxResends <= 0 {
		o.RingMaxResends = defaultRingMaxResends
	}
	return o
}

// Room is a named rendezvous scope: a set of member connections plus at most
// one active call. All state transitions for one room are serialized behind
// its mutex, which is what upholds the single-call rule, unique display
// names, and pending-queue ordering without finer-grained locking.
type Room struct {
	name types.RoomNameType
	opts Options

	mu      sync.Mutex
	members map[types.ConnIDType]types.ClientInterface
	// order preserves join order for deterministic callee selection and
	// stable peer listings.
	order []types.ConnIDType

	activeCall *Call

	onEmpty func(types.RoomNameType)
	bus     types.BusService

	// publishChan bounds concurrent best-effort bus publishes.
	publishChan chan struct{}
}

// NewRoom creates a Room. The onEmpty callback fires (outside the room lock)
// whenever the member set becomes empty.
func NewRoom(name types.RoomNameType, opts Options, onEmpty func(types.RoomNameType), busService types.BusService) *Room {
	return &Room{
		name:        name,
		opts:        opts.withDefaults(),
		members:     make(map[types.ConnIDType]types.ClientInterface),
		onEmpty:     onEmpty,
		bus:         busService,
		publishChan: make(chan struct{}, 100),
	}
}

// Name returns the room key.
func (r *Room) Name() types.RoomNameType {
	return r.name
}

// IsEmpty reports whether the room has no members.
func (r *Room) IsEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

// MemberNames returns the display names of current members in join order.
func (r *Room) MemberNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.memberNamesLocked()
}

func (r *Room) memberNamesLocked() []string {
	names := make([]string, 0, len(r.order))
	for _, id := range r.order {
		if m, ok := r.members[id]; ok {
			names = append(names, string(m.GetDisplayName()))
		}
	}
	return names
}

// ActiveCallID returns the current call identifier, or empty if none.
func (r *Room) ActiveCallID() types.CallIDType {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeCall == nil {
		return ""
	}
	return r.activeCall.ID
}

// addMemberLocked admits a client and records its join order position.
func (r *Room) addMemberLocked(client types.ClientInterface) {
	id := client.GetID()
	if _, exists := r.members[id]; !exists {
		r.order = append(r.order, id)
	}
	r.members[id] = client
	client.SetRoomName(r.name)
	metrics.RoomMembers.WithLabelValues(string(r.name)).Set(float64(len(r.members)))
}

// removeMemberLocked drops a client from the member set. It does not touch
// the active call; callers end the call first when the client participates.
func (r *Room) removeMemberLocked(id types.ConnIDType) {
	if _, ok := r.members[id]; !ok {
		return
	}
	delete(r.members, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	metrics.RoomMembers.WithLabelValues(string(r.name)).Set(float64(len(r.members)))
}

// sweepDeadMembersLocked evicts members whose channel already closed but whose
// disconnect path has not run yet. Each eviction follows the normal leave
// semantics: the call ends first if the member participates, then peers are
// notified.
func (r *Room) sweepDeadMembersLocked() {
	for _, id := range append([]types.ConnIDType(nil), r.order...) {
		m, ok := r.members[id]
		if !ok || !m.IsClosed() {
			continue
		}
		r.departLocked(m)
	}
}

// departLocked runs the common leave path for one member: end the active call
// with reason "left" if the member participates, remove it, and notify the
// remaining members.
func (r *Room) departLocked(client types.ClientInterface) {
	id := client.GetID()
	if _, ok := r.members[id]; !ok {
		return
	}

	if r.activeCall != nil && r.activeCall.isParticipant(id) {
		r.endCallLocked(types.EndReasonLeft)
	}

	name := client.GetDisplayName()
	r.removeMemberLocked(id)
	client.SetRoomName("")

	r.broadcastLocked(PeerLeftFrame{Type: TypePeerLeft, Name: string(name)}, set.New[types.ConnIDType]())
}

// broadcastLocked sends a frame to every member except those in exclude, in
// join order. Sends are non-blocking, so holding the room lock is safe.
func (r *Room) broadcastLocked(frame any, exclude set.Set[types.ConnIDType]) {
	for _, id := range r.order {
		if exclude.Has(id) {
			continue
		}
		if m, ok := r.members[id]; ok {
			m.SendFrame(frame)
		}
	}
}

// endCallLocked transitions the active call to ended: cancels the ring timer,
// broadcasts end to all members before the active slot is cleared, and
// discards the pending queue.
func (r *Room) endCallLocked(reason string) {
	call := r.activeCall
	if call == nil {
		return
	}

	call.stopRingTimer()
	call.State = types.CallStateEnded

	r.broadcastLocked(EndFrame{Type: TypeEnd, CallID: string(call.ID), Reason: reason}, set.New[types.ConnIDType]())

	call.pending = nil
	r.activeCall = nil

	metrics.ActiveCalls.Dec()
	metrics.CallsEndedTotal.WithLabelValues(reason).Inc()
	if d := call.answeredDuration(); d > 0 {
		metrics.CallDurationSeconds.Observe(d.Seconds())
	}

	logging.Info(context.Background(), "Call ended",
		zap.String("room", string(r.name)),
		zap.String("callId", string(call.ID)),
		zap.String("reason", reason))

	r.publishEvent(EventCallEndedPayload{
		Room:   string(r.name),
		CallID: string(call.ID),
		Reason: reason,
	})
}

// notifyIfEmptyLocked returns the onEmpty callback to run after the lock is
// released, or nil. Running it under the lock would deadlock against the hub.
func (r *Room) notifyIfEmptyLocked() func() {
	if len(r.members) > 0 || r.onEmpty == nil {
		return nil
	}
	cb := r.onEmpty
	name := r.name
	return func() { cb(name) }
}

// --- Bus events (best effort, never under the room lock's critical path) ---

// EventCallRingingPayload is published when a call enters ringing.
type EventCallRingingPayload struct {
	Room   string `json:"room"`
	CallID string `json:"call_id"`
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

// EventCallStartedPayload is published when a call crosses the START barrier.
type EventCallStartedPayload struct {
	Room   string `json:"room"`
	CallID string `json:"call_id"`
}

// EventCallEndedPayload is published when a call ends.
type EventCallEndedPayload struct {
	Room   string `json:"room"`
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

// publishEvent ships a lifecycle event to the bus in the background. The
// semaphore bounds in-flight publishes; beyond that, events are dropped.
func (r *Room) publishEvent(payload any) {
	if r.bus == nil {
		return
	}

	var event string
	switch payload.(type) {
	case EventCallRingingPayload:
		event = "call.ringing"
	case EventCallStartedPayload:
		event = "call.started"
	case EventCallEndedPayload:
		event = "call.ended"
	default:
		return
	}

	select {
	case r.publishChan <- struct{}{}:
	default:
		logging.Warn(context.Background(), "Bus publish queue full, dropping event", zap.String("event", event))
		return
	}

	go func() {
		defer func() { <-r.publishChan }()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.bus.PublishEvent(ctx, event, payload); err != nil {
			logging.Warn(ctx, "Bus publish failed", zap.String("event", event), zap.Error(err))
		}
	}()
}
