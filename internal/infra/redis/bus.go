package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"live-quiz-service/internal/domain"
)

const roomChannelPrefix = "quiz:room:"

// Deliverer hands an event to the connections of a room held by this process.
type Deliverer interface {
	Deliver(pin string, event domain.Event)
}

// Bus fans room events out across instances with Redis pub/sub. Every
// instance holds a single pattern subscription, so it receives each event of
// a room once and in publish order.
type Bus struct {
	client *redis.Client
	logger *slog.Logger
}

func NewBus(client *redis.Client, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{client: client, logger: logger}
}

func (b *Bus) Publish(ctx context.Context, pin string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, roomChannelPrefix+pin, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Subscribe opens the room subscription and returns once Redis confirmed it.
func (b *Bus) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := b.client.PSubscribe(ctx, roomChannelPrefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe rooms: %w", err)
	}
	return &Subscription{ps: ps, logger: b.logger}, nil
}

// Subscription relays bus messages to local rooms.
type Subscription struct {
	ps     *redis.PubSub
	logger *slog.Logger
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Run delivers messages until ctx is done or the subscription is closed.
func (s *Subscription) Run(ctx context.Context, local Deliverer) error {
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Warn("bad bus message", "channel", msg.Channel, "err", err)
				continue
			}
			event := domain.Event{Type: env.Type}
			if len(env.Payload) > 0 {
				event.Payload = env.Payload
			}
			local.Deliver(strings.TrimPrefix(msg.Channel, roomChannelPrefix), event)
		}
	}
}

func (s *Subscription) Close() error {
	return s.ps.Close()
}
