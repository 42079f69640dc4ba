package room

import (
	"time"

	"github.com/google/uuid"

	"github.com/ringline/ringline/internal/v1/types"
)

// pendingSignal is one buffered pre-START signaling frame, tagged with the
// destination it resolved to at the time of receipt.
type pendingSignal struct {
	dest  types.ConnIDType
	frame SignalFrame
}

// Call is the state machine for one rendezvous attempt between two members of
// the same room. All fields are guarded by the owning Room's mutex; a Call
// never outlives its Room and is discarded once it reaches the ended state.
type Call struct {
	ID         types.CallIDType
	CallerID   types.ConnIDType
	CalleeID   types.ConnIDType
	CallerName types.DisplayNameType

	State   types.CallState
	Started bool
	Acked   bool

	// ringAttempts counts resend timer fires for this call.
	ringAttempts int
	ringTimer    *time.Timer

	createdAt time.Time
	startedAt time.Time

	// pending holds forward-ready signaling captured before the START barrier,
	// in arrival order. Non-empty only while ringing.
	pending []pendingSignal
}

// newCall creates a fresh ringing call between caller and callee. Call IDs
// are never reused.
func newCall(caller, callee types.ClientInterface) *Call {
	return &Call{
		ID:         types.CallIDType(uuid.New().String()),
		CallerID:   caller.GetID(),
		CalleeID:   callee.GetID(),
		CallerName: caller.GetDisplayName(),
		State:      types.CallStateRinging,
		createdAt:  time.Now(),
	}
}

// isParticipant reports whether the connection is the caller or callee.
func (c *Call) isParticipant(id types.ConnIDType) bool {
	return id == c.CallerID || id == c.CalleeID
}

// otherParticipant returns the peer of the given participant.
func (c *Call) otherParticipant(id types.ConnIDType) (types.ConnIDType, bool) {
	switch id {
	case c.CallerID:
		return c.CalleeID, true
	case c.CalleeID:
		return c.CallerID, true
	}
	return "", false
}

// matches reports whether an inbound call_id references this call.
func (c *Call) matches(callID string) bool {
	return c != nil && string(c.ID) == callID
}

// enqueuePending buffers a pre-START signaling frame for its destination.
func (c *Call) enqueuePending(dest types.ConnIDType, frame SignalFrame) {
	c.pending = append(c.pending, pendingSignal{dest: dest, frame: frame})
}

// drainPending returns the buffered frames in arrival order and empties the queue.
func (c *Call) drainPending() []pendingSignal {
	drained := c.pending
	c.pending = nil
	return drained
}

// stopRingTimer discards any scheduled resend. Stale fires are additionally
// guarded by re-validation in the timer callback, so this is an optimization
// rather than the correctness mechanism.
func (c *Call) stopRingTimer() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
}

// answeredDuration returns how long the call was connected, or zero if it
// never reached the START barrier.
func (c *Call) answeredDuration() time.Duration {
	if !c.Started || c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}
