package types

import (
	"context"
)

// --- Core Domain Types ---

// ConnIDType is the stable identifier assigned to a client connection at accept time.
type ConnIDType string

// RoomNameType is the key of a rendezvous room. Non-empty.
type RoomNameType string

// DisplayNameType is the human-readable name a client claims inside a room.
type DisplayNameType string

// CallIDType is the opaque token gating all frames related to a single call.
type CallIDType string

// CallState enumerates the lifecycle of a call attempt.
type CallState string

const (
	// CallStateRinging is the window from invite until accept/decline/hangup/leave.
	// Signaling frames are buffered.
	CallStateRinging CallState = "ringing"
	// CallStateConnecting is the window from accept onward. Signaling is relayed live.
	CallStateConnecting CallState = "connecting"
	// CallStateEnded is terminal. The call object is discarded after entering it.
	CallStateEnded CallState = "ended"
)

// End reasons broadcast in the end frame.
const (
	EndReasonDeclined = "declined"
	EndReasonHangup   = "hangup"
	EndReasonTimeout  = "timeout"
	EndReasonLeft     = "left"
)

// Call roles delivered in the start frame.
const (
	CallRoleInitiator = "initiator"
	CallRoleCallee    = "callee"
)

// --- Shared Interfaces ---

// ClientInterface defines the behavior the room package needs from a WebSocket
// client. This keeps the room package free of any dependency on the transport
// package and lets tests substitute mock clients.
type ClientInterface interface {
	GetID() ConnIDType
	GetDisplayName() DisplayNameType
	SetDisplayName(DisplayNameType)
	GetRoomName() RoomNameType
	SetRoomName(RoomNameType)
	IsClosed() bool

	// SendFrame serializes the frame to JSON and queues it for delivery.
	// It never blocks; frames to a saturated or closed client are dropped.
	SendFrame(frame any)

	// CloseWithReason requests connection shutdown with a close reason
	// (e.g. "replaced"). Safe to call more than once.
	CloseWithReason(reason string)
}

// BusService defines the interface for the optional Redis event firehose.
// A nil BusService means single-instance mode with no external event stream.
type BusService interface {
	PublishEvent(ctx context.Context, event string, payload any) error
	Ping(ctx context.Context) error
	Close() error
}
