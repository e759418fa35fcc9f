package memory

import (
	"context"

	"live-quiz-service/internal/domain"
)

// Deliverer hands an event to the connections of a room held by this process.
type Deliverer interface {
	Deliver(pin string, event domain.Event)
}

// Bus is the single-instance fan-out: publishing delivers straight to the
// local room, synchronously and in call order.
type Bus struct {
	local Deliverer
}

func NewBus(local Deliverer) *Bus {
	return &Bus{local: local}
}

func (b *Bus) Publish(_ context.Context, pin string, event domain.Event) error {
	b.local.Deliver(pin, event)
	return nil
}
