// Package booking creates tentative bookings against venue responses.
package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ms-booking/internal/backend"
	"ms-booking/internal/events"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Error is a failed booking creation, carrying the backend's message when
// one was provided. Recoverable: the caller stays where it is and retries.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("booking creation failed: %s: %v", e.Message, e.Err)
	}
	return "booking creation failed: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrCreateInFlight rejects a second create for a response that already has
// one running. Rejected, not queued: a rapid double click must not produce
// two bookings.
var ErrCreateInFlight = errors.New("booking creation already in progress for this response")

type Backend interface {
	CreateBooking(ctx context.Context, responseID string, method models.PaymentMethod, idempotencyKey string) (*models.Booking, error)
}

type ResponseLock interface {
	Acquire(ctx context.Context, responseID, attemptID string) (bool, error)
	Release(ctx context.Context, responseID, attemptID string) error
}

type Initiator struct {
	backend Backend
	lock    ResponseLock
	bus     *events.Bus
	logger  *logger.Logger

	mu       sync.Mutex
	inFlight map[string]bool
}

func NewInitiator(b Backend, lock ResponseLock, bus *events.Bus, log *logger.Logger) *Initiator {
	return &Initiator{
		backend:  b,
		lock:     lock,
		bus:      bus,
		logger:   log,
		inFlight: make(map[string]bool),
	}
}

// Create books the given response with the chosen method and returns the new
// tentative booking. The method is recorded at creation time even though it
// is confirmed again at payment time; the backend expects both.
func (i *Initiator) Create(ctx context.Context, responseID string, method models.PaymentMethod) (*models.Booking, error) {
	if responseID == "" {
		return nil, &Error{Message: "no venue response selected"}
	}

	i.mu.Lock()
	if i.inFlight[responseID] {
		i.mu.Unlock()
		i.logger.Warn("BOOKING", fmt.Sprintf("rejected concurrent create for response %s", responseID))
		return nil, ErrCreateInFlight
	}
	i.inFlight[responseID] = true
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		delete(i.inFlight, responseID)
		i.mu.Unlock()
	}()

	// One key per attempt: the backend can deduplicate a retried request,
	// and the redis lock holder is identifiable.
	attemptID := uuid.NewString()

	if i.lock != nil {
		ok, err := i.lock.Acquire(ctx, responseID, attemptID)
		if err != nil {
			return nil, &Error{Message: backend.GenericFailureMessage, Err: fmt.Errorf("booking lock: %w", err)}
		}
		if !ok {
			return nil, &Error{Message: "another booking attempt for this venue is already in progress"}
		}
	}

	created, err := i.backend.CreateBooking(ctx, responseID, method, attemptID)
	if err != nil {
		if i.lock != nil {
			_ = i.lock.Release(context.WithoutCancel(ctx), responseID, attemptID)
		}
		return nil, wrapCreateError(err)
	}

	// On success the lock is left to expire by TTL: the response now has a
	// booking, so eligibility filtering keeps it out of the catalog anyway.

	i.logger.LogBooking("CREATE", created.ID, fmt.Sprintf("tentative booking created for response %s via %s", responseID, method))

	if i.bus != nil {
		i.bus.Emit(ctx, events.Event{
			Type:      events.BookingCreated,
			BookingID: created.ID,
			Method:    method,
			Amount:    created.TotalAmount,
		})
	}
	return created, nil
}

func wrapCreateError(err error) error {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return &Error{Message: statusErr.Message(), Err: err}
	}
	var transportErr *backend.TransportError
	if errors.As(err, &transportErr) {
		return &Error{Message: transportErr.Message(), Err: err}
	}
	return &Error{Message: backend.GenericFailureMessage, Err: err}
}
