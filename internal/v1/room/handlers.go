package room

import (
	"context"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/ringline/ringline/internal/v1/logging"
	"github.com/ringline/ringline/internal/v1/metrics"
	"github.com/ringline/ringline/internal/v1/types"
)

// HandleJoin admits a client under the given display name. Joining is also
// the re-join path: a member may change its name, and a join that collides
// with another member's name replaces that member atomically (the prior
// holder is closed with reason "replaced" and its departure is broadcast
// before the new admission is announced).
func (r *Room) HandleJoin(ctx context.Context, client types.ClientInterface, name types.DisplayNameType) {
	r.mu.Lock()

	r.sweepDeadMembersLocked()

	id := client.GetID()
	_, rejoining := r.members[id]

	if rejoining && client.GetDisplayName() == name {
		// Same connection, same name: just refresh its view of the room.
		client.SendFrame(RoomStateFrame{Type: TypeRoomState, Room: string(r.name), Peers: r.memberNamesLocked()})
		r.mu.Unlock()
		return
	}

	if rejoining {
		// Name change: announce the old identity's departure first.
		r.broadcastLocked(PeerLeftFrame{Type: TypePeerLeft, Name: string(client.GetDisplayName())}, set.New(id))
	}

	// Evict any other member holding the requested name.
	for _, oid := range append([]types.ConnIDType(nil), r.order...) {
		m, ok := r.members[oid]
		if !ok || oid == id || m.GetDisplayName() != name {
			continue
		}
		logging.Info(ctx, "Replacing member with colliding display name",
			zap.String("room", string(r.name)), zap.String("name", string(name)))
		r.departLocked(m)
		m.CloseWithReason("replaced")
	}

	client.SetDisplayName(name)
	r.addMemberLocked(client)

	client.SendFrame(RoomStateFrame{Type: TypeRoomState, Room: string(r.name), Peers: r.memberNamesLocked()})
	r.broadcastLocked(PeerJoinedFrame{Type: TypePeerJoined, Name: string(name)}, set.New(id))

	r.mu.Unlock()

	logging.Info(ctx, "Client joined room",
		zap.String("room", string(r.name)), zap.String("name", string(name)))
}

// HandleLeave runs the leave path for an explicit leave-room frame. The left
// reply is owed even when the client was not a member.
func (r *Room) HandleLeave(ctx context.Context, client types.ClientInterface) {
	r.mu.Lock()
	r.departLocked(client)
	onEmpty := r.notifyIfEmptyLocked()
	r.mu.Unlock()

	if onEmpty != nil {
		onEmpty()
	}
}

// HandleDisconnect runs the leave path when a client's channel closes, errors,
// or is terminated by the heartbeat supervisor. Safe to call for non-members.
func (r *Room) HandleDisconnect(client types.ClientInterface) {
	r.mu.Lock()
	r.departLocked(client)
	onEmpty := r.notifyIfEmptyLocked()
	r.mu.Unlock()

	if onEmpty != nil {
		onEmpty()
	}
}

// HandleInvite creates the room's call if admission passes: no active call,
// and at least one other member to ring. The caller is told invite-ok before
// the callee is rung.
func (r *Room) HandleInvite(ctx context.Context, client types.ClientInterface) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeCall != nil {
		client.SendFrame(BusyFrame{Type: TypeBusy, Reason: BusyReasonCallActive})
		return
	}

	callee := r.pickCalleeLocked(client.GetID())
	if callee == nil {
		client.SendFrame(BusyFrame{Type: TypeBusy, Reason: BusyReasonNoPeer})
		return
	}

	call := newCall(client, callee)
	r.activeCall = call

	client.SendFrame(InviteOKFrame{Type: TypeInviteOK, CallID: string(call.ID)})
	callee.SendFrame(RingFrame{Type: TypeRing, CallID: string(call.ID), From: string(call.CallerName)})
	r.armRingResendLocked(call)

	metrics.ActiveCalls.Inc()
	logging.Info(ctx, "Call ringing",
		zap.String("room", string(r.name)),
		zap.String("callId", string(call.ID)),
		zap.String("caller", string(call.CallerName)))

	r.publishEvent(EventCallRingingPayload{
		Room:   string(r.name),
		CallID: string(call.ID),
		Caller: string(call.CallerName),
		Callee: string(callee.GetDisplayName()),
	})
}

// pickCalleeLocked returns the first live member other than the caller, in
// join order. With two-party rooms there is at most one candidate.
func (r *Room) pickCalleeLocked(caller types.ConnIDType) types.ClientInterface {
	for _, id := range r.order {
		if id == caller {
			continue
		}
		if m, ok := r.members[id]; ok && !m.IsClosed() {
			return m
		}
	}
	return nil
}

// HandleRingAck stops the ring resends and tells the caller the callee's
// device is ringing. Repeated acks are no-ops.
func (r *Room) HandleRingAck(ctx context.Context, client types.ClientInterface, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.activeCall
	if !call.matches(callID) || call.Started {
		return
	}
	if call.Acked {
		return
	}

	call.Acked = true
	call.stopRingTimer()

	if caller, ok := r.members[call.CallerID]; ok {
		caller.SendFrame(RingingFrame{Type: TypeRinging, CallID: string(call.ID)})
	}
}

// HandleAccept crosses the START barrier: the call becomes connecting, both
// participants learn their roles, and the pending queue is flushed in arrival
// order, strictly after both start frames are queued.
func (r *Room) HandleAccept(ctx context.Context, client types.ClientInterface, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.activeCall
	if !call.matches(callID) || call.Started {
		return
	}

	call.stopRingTimer()
	call.Started = true
	call.State = types.CallStateConnecting
	call.startedAt = nowFunc()

	caller, callerPresent := r.members[call.CallerID]
	callee, calleePresent := r.members[call.CalleeID]

	if callerPresent {
		caller.SendFrame(StartFrame{Type: TypeStart, CallID: string(call.ID), Role: callRoleFor(true)})
	}
	if calleePresent {
		callee.SendFrame(StartFrame{Type: TypeStart, CallID: string(call.ID), Role: callRoleFor(false)})
	}

	for _, p := range call.drainPending() {
		if dest, ok := r.members[p.dest]; ok {
			dest.SendFrame(p.frame)
		}
	}

	logging.Info(ctx, "Call started",
		zap.String("room", string(r.name)), zap.String("callId", string(call.ID)))

	r.publishEvent(EventCallStartedPayload{Room: string(r.name), CallID: string(call.ID)})
}

// HandleDecline ends a not-yet-started call with reason "declined".
func (r *Room) HandleDecline(ctx context.Context, client types.ClientInterface, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.activeCall
	if !call.matches(callID) || call.Started {
		return
	}

	r.endCallLocked(types.EndReasonDeclined)
}

// HandleHangup ends the call with reason "hangup", in any non-ended state.
func (r *Room) HandleHangup(ctx context.Context, client types.ClientInterface, callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.activeCall.matches(callID) {
		return
	}

	r.endCallLocked(types.EndReasonHangup)
}

// HandleSignal relays or buffers an offer/answer/ice frame. Before the START
// barrier the frame is buffered for the other participant; after it, the
// frame is forwarded immediately. Stale call IDs and frames from
// non-participants are dropped silently.
func (r *Room) HandleSignal(ctx context.Context, client types.ClientInterface, env *Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.activeCall
	if !call.matches(env.CallID) {
		return
	}

	destID, ok := call.otherParticipant(client.GetID())
	if !ok {
		return
	}

	frame := signalFrameFromEnvelope(env)

	if !call.Started {
		call.enqueuePending(destID, frame)
		return
	}

	if dest, present := r.members[destID]; present {
		dest.SendFrame(frame)
	}
}
