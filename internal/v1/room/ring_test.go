package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRingTestRoom() *Room {
	return NewRoom("r1", Options{
		RingInterval:   10 * time.Millisecond,
		RingMaxResends: 2,
	}, nil, nil)
}

func (m *mockClient) countFrames(t *testing.T, frameType string) int {
	t.Helper()
	n := 0
	for _, typ := range m.frameTypes(t) {
		if typ == frameType {
			n++
		}
	}
	return n
}

func TestRingResend_RedeliversWhileUnacked(t *testing.T) {
	r := newRingTestRoom()
	alice, bob := joinPair(t, r)
	callID := invite(t, r, alice)

	assert.Eventually(t, func() bool {
		return bob.countFrames(t, TypeRing) >= 2
	}, waitFor, tick, "unacked ring must be re-sent")

	r.HandleHangup(context.Background(), alice, callID)
}

func TestRingResend_TimesOutAfterExhaustion(t *testing.T) {
	r := newRingTestRoom()
	alice, bob := joinPair(t, r)
	callID := invite(t, r, alice)

	assert.Eventually(t, func() bool {
		return string(r.ActiveCallID()) == ""
	}, waitFor, tick, "call must end after resends are exhausted")

	// Initial ring plus the bounded resends, nothing beyond.
	assert.Equal(t, 3, bob.countFrames(t, TypeRing))

	for _, c := range []*mockClient{alice, bob} {
		end := frameAsMap(t, c.lastFrame())
		require.Equal(t, TypeEnd, end["type"])
		assert.Equal(t, "timeout", end["reason"])
		assert.Equal(t, callID, end["call_id"])
	}
}

func TestRingResend_StopsAfterAck(t *testing.T) {
	r := newRingTestRoom()
	alice, bob := joinPair(t, r)
	callID := invite(t, r, alice)

	r.HandleRingAck(context.Background(), bob, callID)
	rings := bob.countFrames(t, TypeRing)

	// An acked call may ring indefinitely; no further resends and no timeout.
	assert.Never(t, func() bool {
		return bob.countFrames(t, TypeRing) > rings || string(r.ActiveCallID()) == ""
	}, 100*time.Millisecond, tick)

	r.HandleHangup(context.Background(), alice, callID)
}

func TestRingResend_StopsAfterAccept(t *testing.T) {
	r := newRingTestRoom()
	alice, bob := joinPair(t, r)
	callID := invite(t, r, alice)

	r.HandleAccept(context.Background(), bob, callID)
	rings := bob.countFrames(t, TypeRing)

	assert.Never(t, func() bool {
		return bob.countFrames(t, TypeRing) > rings
	}, 100*time.Millisecond, tick)

	assert.Equal(t, callID, string(r.ActiveCallID()))
	r.HandleHangup(context.Background(), bob, callID)
}

func TestRingResend_StaleFireAfterEndIsNoop(t *testing.T) {
	r := newRingTestRoom()
	alice, bob := joinPair(t, r)

	first := invite(t, r, alice)
	r.HandleDecline(context.Background(), bob, first)

	second := invite(t, r, alice)
	require.NotEqual(t, first, second)
	r.HandleRingAck(context.Background(), bob, second)

	// Fires armed for the first call must never touch the second one.
	assert.Never(t, func() bool {
		return string(r.ActiveCallID()) != second
	}, 100*time.Millisecond, tick)

	r.HandleHangup(context.Background(), alice, second)
}
