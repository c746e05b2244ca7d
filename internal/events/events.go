package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"roombook/internal/model"
)

// Type names a domain event.
type Type string

const (
	BookingCreated       Type = "booking.created"
	BookingUpdated       Type = "booking.updated"
	BookingCancelled     Type = "booking.cancelled"
	BookingStatusChanged Type = "booking.status_changed"
	UserRegistered       Type = "user.registered"
	UserApproved         Type = "user.approved"
	UserDenied           Type = "user.denied"
)

// Event carries the reservation or user a change happened to.
type Event struct {
	Type        Type
	Reservation *model.Reservation
	User        *model.User
	Actor       *model.User
	CreatedAt   time.Time
}

// Handler reacts to an event.
type Handler func(ctx context.Context, event Event) error

// Bus is an in-process pub/sub. Handlers run synchronously in
// subscription order; a failing handler is logged and does not stop the rest.
type Bus struct {
	subscribers map[Type][]Handler
	mu          sync.RWMutex
	logger      zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{subscribers: make(map[Type][]Handler), logger: logger}
}

// Subscribe registers handler for each of the given types.
func (b *Bus) Subscribe(handler Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], handler)
	}
}

// Publish delivers the event to its subscribers.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn().Err(err).Str("event", string(event.Type)).Msg("Event handler failed")
		}
	}
}
