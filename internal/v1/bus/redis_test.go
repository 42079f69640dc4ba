package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := NewService(mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, mr
}

func TestNewService_FailsWhenUnreachable(t *testing.T) {
	_, err := NewService("127.0.0.1:1", "")
	assert.Error(t, err)
}

func TestPublishEvent_WrapsPayloadInEnvelope(t *testing.T) {
	svc, mr := newTestService(t)

	// Subscribe out-of-band so the publish has an observer.
	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = sub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pubsub := sub.Subscribe(ctx, EventChannel)
	t.Cleanup(func() { _ = pubsub.Close() })
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	payload := map[string]string{"room": "lobby", "call_id": "abc"}
	require.NoError(t, svc.PublishEvent(ctx, EventCallRinging, payload))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var env EventEnvelope
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
	assert.Equal(t, EventCallRinging, env.Event)
	assert.NotZero(t, env.Timestamp)

	var inner map[string]string
	require.NoError(t, json.Unmarshal(env.Payload, &inner))
	assert.Equal(t, payload, inner)
}

func TestPublishEvent_NilServiceIsNoop(t *testing.T) {
	var svc *Service
	assert.NoError(t, svc.PublishEvent(context.Background(), EventRoomCreated, nil))
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

func TestPublishEvent_UnmarshalablePayload(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.PublishEvent(context.Background(), EventCallEnded, make(chan int))
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	svc, mr := newTestService(t)

	assert.NoError(t, svc.Ping(context.Background()))

	mr.Close()
	assert.Error(t, svc.Ping(context.Background()))
}
