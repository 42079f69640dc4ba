package room

import (
	"context"

	"github.com/ringline/ringline/internal/v1/metrics"
	"github.com/ringline/ringline/internal/v1/types"
)

// Route dispatches one in-room frame to its handler. The caller (the hub)
// has already resolved the room from the client's membership and filtered
// join/leave-room and unknown types; everything arriving here is a call
// operation from a current member.
//
// Each dispatch performs exactly one state transition or relay. Frames whose
// call_id does not reference the active call are dropped silently.
func (r *Room) Route(ctx context.Context, client types.ClientInterface, env *Envelope) {
	status := "ok"

	switch env.Type {
	case TypeInvite:
		r.HandleInvite(ctx, client)
	case TypeRingAck:
		if env.CallID == "" {
			status = "malformed"
			break
		}
		r.HandleRingAck(ctx, client, env.CallID)
	case TypeAccept:
		if env.CallID == "" {
			status = "malformed"
			break
		}
		r.HandleAccept(ctx, client, env.CallID)
	case TypeDecline:
		if env.CallID == "" {
			status = "malformed"
			break
		}
		r.HandleDecline(ctx, client, env.CallID)
	case TypeHangup:
		if env.CallID == "" {
			status = "malformed"
			break
		}
		r.HandleHangup(ctx, client, env.CallID)
	case TypeOffer, TypeAnswer, TypeIce:
		if env.CallID == "" || !env.hasPayload() {
			status = "malformed"
			break
		}
		r.HandleSignal(ctx, client, env)
	default:
		// Unreachable when called through the hub; kept as a guard.
		client.SendFrame(ErrUnknownType)
		status = "unknown"
	}

	metrics.FramesTotal.WithLabelValues(env.Type, status).Inc()
}
