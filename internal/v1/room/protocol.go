// Package room implements the rendezvous core: room membership, the
// single-active-call admission rule, the RING→START→END call state machine
// with timed ring resends, and the gated relay of opaque WebRTC signaling.
package room

import (
	"encoding/json"

	"github.com/ringline/ringline/internal/v1/types"
)

// MaxFrameSize is the inbound frame cap. Larger frames are dropped silently.
const MaxFrameSize = 64 * 1024

// Client -> server frame types.
const (
	TypeJoin      = "join"
	TypeInvite    = "invite"
	TypeRingAck   = "ring-ack"
	TypeAccept    = "accept"
	TypeDecline   = "decline"
	TypeHangup    = "hangup"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeIce       = "ice"
	TypeLeaveRoom = "leave-room"
)

// Server -> client frame types.
const (
	TypeRoomState  = "room-state"
	TypePeerJoined = "peer-joined"
	TypePeerLeft   = "peer-left"
	TypeInviteOK   = "invite-ok"
	TypeRing       = "ring"
	TypeRinging    = "ringing"
	TypeStart      = "start"
	TypeEnd        = "end"
	TypeBusy       = "busy"
	TypeError      = "error"
	TypeLeft       = "left"
)

// Busy reasons.
const (
	BusyReasonCallActive = "call-active"
	BusyReasonNoPeer     = "no-peer"
)

// Envelope is the inbound frame shape. All client frames are flat JSON
// objects carrying a type field plus the fields their type requires. The sdp
// and candidate payloads stay raw; the server never inspects them.
type Envelope struct {
	Type      string          `json:"type"`
	Room      string          `json:"room,omitempty"`
	Name      string          `json:"name,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// --- Server -> client frames ---

// RoomStateFrame is sent to a joiner after admission.
type RoomStateFrame struct {
	Type  string   `json:"type"`
	Room  string   `json:"room"`
	Peers []string `json:"peers"`
}

// PeerJoinedFrame is broadcast to existing members when someone joins.
type PeerJoinedFrame struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// PeerLeftFrame is broadcast to remaining members when someone leaves.
type PeerLeftFrame struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// InviteOKFrame acknowledges a successful invite to the caller.
type InviteOKFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
}

// RingFrame notifies the callee of an incoming call. Re-sent until acked.
type RingFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	From   string `json:"from"`
}

// RingingFrame tells the caller the callee's device acknowledged the ring.
type RingingFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
}

// StartFrame marks the START barrier for one participant.
type StartFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Role   string `json:"role"`
}

// EndFrame is broadcast to all room members when a call ends.
type EndFrame struct {
	Type   string `json:"type"`
	CallID string `json:"call_id"`
	Reason string `json:"reason"`
}

// BusyFrame rejects an invite without changing state.
type BusyFrame struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// ErrorFrame reports a protocol error to the sender.
type ErrorFrame struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

// LeftFrame is the reply to leave-room.
type LeftFrame struct {
	Type string `json:"type"`
}

// SignalFrame is a relayed offer/answer/ice frame. The call_id and the raw
// payload fields are preserved byte for byte.
type SignalFrame struct {
	Type      string          `json:"type"`
	CallID    string          `json:"call_id"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// hasPayload reports whether a signaling envelope carries the field its type
// requires: candidate for ice, sdp for offer and answer.
func (env *Envelope) hasPayload() bool {
	if env.Type == TypeIce {
		return len(env.Candidate) > 0
	}
	return len(env.SDP) > 0
}

// signalFrameFromEnvelope rebuilds the relayed frame from an inbound envelope.
func signalFrameFromEnvelope(env *Envelope) SignalFrame {
	return SignalFrame{
		Type:      env.Type,
		CallID:    env.CallID,
		SDP:       env.SDP,
		Candidate: env.Candidate,
	}
}

// IsSignalType reports whether a frame type is relayed WebRTC signaling.
func IsSignalType(frameType string) bool {
	switch frameType {
	case TypeOffer, TypeAnswer, TypeIce:
		return true
	}
	return false
}

// IsCallType reports whether a frame type is handled by the room router and
// therefore requires membership in a room.
func IsCallType(frameType string) bool {
	switch frameType {
	case TypeInvite, TypeRingAck, TypeAccept, TypeDecline, TypeHangup,
		TypeOffer, TypeAnswer, TypeIce:
		return true
	}
	return false
}

// ErrNotInRoom and ErrUnknownType are the canonical error frame messages.
var (
	ErrNotInRoom   = ErrorFrame{Type: TypeError, Msg: "not in room"}
	ErrUnknownType = ErrorFrame{Type: TypeError, Msg: "unknown message type"}
)

// callRoleFor maps a participant position to its start frame role.
func callRoleFor(isCaller bool) string {
	if isCaller {
		return types.CallRoleInitiator
	}
	return types.CallRoleCallee
}
