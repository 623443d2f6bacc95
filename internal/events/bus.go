// Package events carries mutation notifications between components. A
// successful booking creation or payment emits an event; subscribers such as
// the tentative-booking registry and the journal react to it instead of
// polling a refresh counter.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type Type string

const (
	BookingCreated   Type = "booking.created"
	PaymentConfirmed Type = "payment.confirmed"
)

type Event struct {
	Type          Type                 `json:"type"`
	BookingID     string               `json:"booking_id"`
	Method        models.PaymentMethod `json:"payment_method,omitempty"`
	Amount        float64              `json:"amount,omitempty"`
	TransactionID string               `json:"transaction_id,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// Publisher pushes events beyond this process. The kafka producer implements
// it; tests use stubs.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type Bus struct {
	mu        sync.RWMutex
	subs      []func(Event)
	publisher Publisher
	logger    *logger.Logger
}

func NewBus(publisher Publisher, log *logger.Logger) *Bus {
	return &Bus{publisher: publisher, logger: log}
}

// Subscribe registers an in-process listener. Listeners run on the emitting
// goroutine and must not block.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Emit notifies in-process subscribers, then publishes outward. A publish
// failure is logged and otherwise dropped: notification is best effort and
// must never fail the mutation it reports.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	subs := make([]func(Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}

	if b.publisher != nil {
		if err := b.publisher.Publish(ctx, event); err != nil {
			b.logger.Error("KAFKA", fmt.Sprintf("failed to publish %s for booking %s: %v", event.Type, event.BookingID, err))
		}
	}
}
