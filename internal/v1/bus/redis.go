// Package bus publishes signaling lifecycle events to Redis for external
// consumers (dashboards, auditing pipelines). It is strictly fire-and-forget:
// the server never consumes these events itself, and calls between server
// instances are never relayed through it.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/ringline/ringline/internal/v1/metrics"
)

// EventChannel is the Redis channel all lifecycle events are published to.
const EventChannel = "ringline:events"

// Lifecycle event names.
const (
	EventRoomCreated   = "room.created"
	EventRoomDestroyed = "room.destroyed"
	EventCallRinging   = "call.ringing"
	EventCallStarted   = "call.started"
	EventCallEnded     = "call.ended"
)

// EventEnvelope is the container every published event is wrapped in.
type EventEnvelope struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"` // Unix milliseconds
}

// Service handles all interaction with the Redis cluster.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a Redis connection and verifies it immediately.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	slog.Info("Connected to Redis event firehose", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// PublishEvent wraps the payload in an EventEnvelope and publishes it on the
// event channel. Failures trip the circuit breaker; callers treat the publish
// as best-effort.
func (s *Service) PublishEvent(ctx context.Context, event string, payload any) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		innerBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}

		msg := EventEnvelope{
			Event:     event,
			Payload:   innerBytes,
			Timestamp: time.Now().UnixMilli(),
		}

		data, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event envelope: %w", err)
		}

		return nil, s.client.Publish(ctx, EventChannel, data).Err()
	})

	if err != nil {
		return fmt.Errorf("bus publish failed: %w", err)
	}
	return nil
}

// Ping verifies Redis connectivity. Used by the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Ping(ctx).Err()
}

// Close releases the Redis connection pool.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
