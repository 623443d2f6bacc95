// Package payment owns the payment sub-flow: method selection, credential
// validation, submission and the interpretation of the result.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-booking/internal/backend"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

type State int

const (
	MethodSelection State = iota
	DetailsEntry
	Submitting
	Success
	Failure
)

func (s State) String() string {
	switch s {
	case MethodSelection:
		return "MethodSelection"
	case DetailsEntry:
		return "DetailsEntry"
	case Submitting:
		return "Submitting"
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Error is a failed payment submission. The underlying booking stays
// Tentative; the user retries with their fields intact.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("payment failed: %s: %v", e.Message, e.Err)
	}
	return "payment failed: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ErrSubmitInFlight rejects a second submit while one is running. Rejected,
// never queued: a payment must not be sent twice.
var ErrSubmitInFlight = errors.New("a payment submission is already in flight")

// ErrAlreadyPaid rejects a submit after the orchestrator reached Success.
// There is no edge out of Success back to Submitting; without this guard a
// request racing the step transition could charge the booking twice.
var ErrAlreadyPaid = errors.New("payment already confirmed for this booking")

// ErrUnresolvedBooking means the caller tried to pay before a booking id
// existed. The workflow controller prevents this; the check is a backstop.
var ErrUnresolvedBooking = errors.New("no booking id resolved for payment")

type Gateway interface {
	Pay(ctx context.Context, bookingID string, payload models.PayRequest) (*models.PayReceipt, error)
}

// Orchestrator is the per-session payment state machine:
// MethodSelection -> DetailsEntry -> Submitting -> Success | Failure.
type Orchestrator struct {
	gateway      Gateway
	logger       *logger.Logger
	confirmDelay time.Duration

	mu         sync.Mutex
	state      State
	method     models.PaymentMethod
	fields     Fields
	lastError  string
	submitting bool
}

func NewOrchestrator(gateway Gateway, confirmDelay time.Duration, log *logger.Logger) *Orchestrator {
	if confirmDelay <= 0 {
		confirmDelay = 2500 * time.Millisecond
	}
	return &Orchestrator{
		gateway:      gateway,
		logger:       log,
		confirmDelay: confirmDelay,
		state:        MethodSelection,
	}
}

// SelectMethod picks a payment method and wipes anything entered for the
// previous one. No credential carry-over between methods.
func (o *Orchestrator) SelectMethod(method models.PaymentMethod) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.method = method
	o.fields = Fields{}
	o.lastError = ""
	o.state = DetailsEntry
}

// EnterFields records the credential inputs. Kept across failed submissions
// so a retry loses nothing.
func (o *Orchestrator) EnterFields(fields Fields) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields = fields
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) Method() models.PaymentMethod {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.method
}

func (o *Orchestrator) FieldsEntered() Fields {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fields
}

func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// Submit validates the entered fields and sends the payment. At most one
// submission may be in flight; a concurrent attempt is rejected outright.
func (o *Orchestrator) Submit(ctx context.Context, bookingID string) (*models.PayReceipt, error) {
	if bookingID == "" {
		return nil, ErrUnresolvedBooking
	}

	o.mu.Lock()
	if o.state == Success {
		o.mu.Unlock()
		o.logger.Warn("PAYMENT", fmt.Sprintf("rejected resubmit for already-paid booking %s", bookingID))
		return nil, ErrAlreadyPaid
	}
	if o.submitting {
		o.mu.Unlock()
		o.logger.Warn("PAYMENT", fmt.Sprintf("rejected concurrent submit for booking %s", bookingID))
		return nil, ErrSubmitInFlight
	}

	payload, err := Validate(o.method, o.fields)
	if err != nil {
		var vErr *ValidationError
		if errors.As(err, &vErr) {
			o.lastError = vErr.Message
		}
		o.state = DetailsEntry
		o.mu.Unlock()
		return nil, err
	}

	o.submitting = true
	o.state = Submitting
	o.mu.Unlock()

	o.logger.LogPayment("SUBMIT", bookingID, fmt.Sprintf("submitting %s payment", payload.PaymentMethod))
	receipt, payErr := o.gateway.Pay(ctx, bookingID, payload)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.submitting = false

	// The session was closed mid-flight: stop listening to the result and
	// commit nothing. The booking's real state comes back via the registry.
	if ctx.Err() != nil {
		o.state = DetailsEntry
		return nil, &Error{Message: backend.GenericFailureMessage, Err: ctx.Err()}
	}

	if payErr != nil {
		wrapped := wrapPayError(payErr)
		o.lastError = wrapped.Message
		o.state = DetailsEntry
		o.logger.Error("PAYMENT", fmt.Sprintf("payment for booking %s failed: %v", bookingID, payErr))
		return nil, wrapped
	}

	o.state = Success
	o.lastError = ""
	o.logger.LogPayment("SUCCESS", bookingID, "payment confirmed")
	return receipt, nil
}

// AwaitClose holds the success screen up for the configured delay, or until
// the session is closed, whichever comes first.
func (o *Orchestrator) AwaitClose(ctx context.Context) error {
	timer := time.NewTimer(o.confirmDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wrapPayError(err error) *Error {
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
