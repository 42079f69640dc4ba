package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ringline/ringline/internal/v1/logging"
	"github.com/ringline/ringline/internal/v1/metrics"
	"github.com/ringline/ringline/internal/v1/types"
)

// nowFunc is swappable for tests.
var nowFunc = time.Now

// armRingResendLocked schedules the next ring resend for the call. The fire
// carries the call ID it was armed for and re-validates against current state
// under the room lock, so a fire that lost the race with ack, accept, or call
// end is a no-op even without explicit cancellation.
func (r *Room) armRingResendLocked(call *Call) {
	callID := call.ID
	call.ringTimer = time.AfterFunc(r.opts.RingInterval, func() {
		r.onRingTimer(callID)
	})
}

// onRingTimer handles one ring resend fire. While the call is still ringing
// and unacknowledged it re-delivers ring to the callee and reschedules, up to
// the resend bound. Exhausting the bound ends the call with reason "timeout"
// so a caller ringing an absent peer is not left pending forever.
func (r *Room) onRingTimer(callID types.CallIDType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := r.activeCall
	if call == nil || call.ID != callID || call.Started || call.Acked ||
		call.State != types.CallStateRinging {
		return
	}

	if call.ringAttempts >= r.opts.RingMaxResends {
		logging.Info(context.Background(), "Ring resends exhausted, timing out call",
			zap.String("room", string(r.name)),
			zap.String("callId", string(call.ID)),
			zap.Int("attempts", call.ringAttempts))
		r.endCallLocked(types.EndReasonTimeout)
		return
	}

	call.ringAttempts++
	metrics.RingResendsTotal.Inc()

	if callee, ok := r.members[call.CalleeID]; ok {
		callee.SendFrame(RingFrame{Type: TypeRing, CallID: string(call.ID), From: string(call.CallerName)})
	}

	r.armRingResendLocked(call)
}
