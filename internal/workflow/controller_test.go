package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-booking/internal/backend"
	"ms-booking/internal/booking"
	"ms-booking/internal/events"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/registry"
	"ms-booking/internal/workflow"
)

type fakeLoader struct {
	snapshot backend.Snapshot
	err      error
}

func (f *fakeLoader) LoadSnapshot(ctx context.Context) (*backend.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap := f.snapshot
	return &snap, nil
}

type fakeCreator struct {
	mu      sync.Mutex
	booking *models.Booking
	err     error
	calls   []string
}

func (f *fakeCreator) Create(ctx context.Context, responseID string, method models.PaymentMethod) (*models.Booking, error) {
	f.mu.Lock()
	f.calls = append(f.calls, responseID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	created := *f.booking
	return &created, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	receipt  *models.PayReceipt
	err      error
	paid     []string
	payloads []models.PayRequest
}

func (f *fakeGateway) Pay(ctx context.Context, bookingID string, payload models.PayRequest) (*models.PayReceipt, error) {
	f.mu.Lock()
	f.paid = append(f.paid, bookingID)
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.receipt != nil {
		return f.receipt, nil
	}
	return &models.PayReceipt{BookingID: bookingID}, nil
}

func (f *fakeGateway) payCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paid)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type fixture struct {
	controller *workflow.Controller
	creator    *fakeCreator
	gateway    *fakeGateway
	published  *recordingPublisher
}

// staticFetcher feeds the registry a fixed booking list on refresh.
type staticFetcher struct {
	bookings []models.Booking
}

func (f *staticFetcher) Bookings(ctx context.Context) ([]models.Booking, error) {
	return f.bookings, nil
}

func response(id string) models.VenueResponse {
	return models.VenueResponse{
		ID: id,
		VenueRequest: models.VenueRequest{
			ID:        "req-" + id,
			Organizer: "u1",
			EventName: "Team Offsite",
		},
		Venue:       models.Venue{ID: "v1", Name: "Lakeside Hall"},
		TotalAmount: 42000,
	}
}

func newFixture(t *testing.T, snapshot backend.Snapshot) *fixture {
	t.Helper()
	log := logger.NewLogger()
	published := &recordingPublisher{}
	bus := events.NewBus(published, log)
	creator := &fakeCreator{}
	gateway := &fakeGateway{}
	reg := registry.New(&staticFetcher{bookings: snapshot.Bookings}, log)

	controller := workflow.NewController(
		&fakeLoader{snapshot: snapshot},
		creator, reg, gateway, bus,
		30*time.Millisecond, log,
	)
	return &fixture{controller: controller, creator: creator, gateway: gateway, published: published}
}

func baseSnapshot() backend.Snapshot {
	return backend.Snapshot{
		Responses: []models.VenueResponse{response("r1"), response("r2")},
		Bookings:  nil,
		User:      models.User{ID: "u1", FirstName: "Amina", Email: "amina@example.com"},
	}
}

func TestFreshBookingToConfirmation(t *testing.T) {
	fx := newFixture(t, baseSnapshot())
	fx.creator.booking = &models.Booking{
		ID:          "b-created",
		Organizer:   "u1",
		Response:    response("r1"),
		Status:      models.StatusTentative,
		TotalAmount: 42000,
	}

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SelectingResponse", view.Step)

	eligible, err := fx.controller.Eligible(view.SessionID)
	require.NoError(t, err)
	require.Len(t, eligible, 2)

	view, err = fx.controller.SelectResponse(view.SessionID, "r1")
	require.NoError(t, err)
	assert.Equal(t, "AwaitingBooking", view.Step)
	assert.Equal(t, "response", view.SubjectKind)

	view, err = fx.controller.SubmitBooking(view.SessionID, models.MethodMPesa)
	require.NoError(t, err)
	assert.Equal(t, "AwaitingPayment", view.Step)
	assert.Equal(t, "b-created", view.BookingID)
	assert.Equal(t, []string{"r1"}, fx.creator.calls)

	view, err = fx.controller.Pay(view.SessionID, payment.Fields{PhoneNumber: "254700111222"})
	require.NoError(t, err)
	assert.Equal(t, "Confirmed", view.Step)
	assert.Empty(t, view.LastError)

	// The payment must have gone to the booking that was just created, not to
	// anything derived from the selected response.
	require.Equal(t, []string{"b-created"}, fx.gateway.paid)
	assert.Equal(t, "254700111222", fx.gateway.payloads[0].PhoneNumber)
	assert.Equal(t, models.MethodMPesa, fx.gateway.payloads[0].PaymentMethod)

	fx.published.mu.Lock()
	require.Len(t, fx.published.events, 1)
	assert.Equal(t, events.PaymentConfirmed, fx.published.events[0].Type)
	assert.Equal(t, "b-created", fx.published.events[0].BookingID)
	fx.published.mu.Unlock()

	// After the confirmation delay the session tears itself down.
	sessionID := view.SessionID
	require.Eventually(t, func() bool {
		_, err := fx.controller.State(sessionID)
		return errors.Is(err, workflow.ErrSessionNotFound)
	}, time.Second, 10*time.Millisecond)
}

func TestResumeTentativeBookingWithFailedPayment(t *testing.T) {
	snapshot := baseSnapshot()
	snapshot.Bookings = []models.Booking{{
		ID:          "b2",
		Organizer:   "u1",
		Response:    response("r2"),
		Status:      models.StatusTentative,
		TotalAmount: 42000,
	}}
	fx := newFixture(t, snapshot)
	fx.gateway.err = &backend.StatusError{Op: "Pay", StatusCode: 402, Msg: "Insufficient funds"}

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)

	tentative, err := fx.controller.Tentative(view.SessionID)
	require.NoError(t, err)
	require.Len(t, tentative, 1)

	view, err = fx.controller.SelectBooking(view.SessionID, "b2")
	require.NoError(t, err)
	assert.Equal(t, "AwaitingPayment", view.Step)
	assert.Equal(t, "booking", view.SubjectKind)
	assert.Equal(t, "b2", view.BookingID)

	view, err = fx.controller.SelectMethod(view.SessionID, models.MethodPayPal)
	require.NoError(t, err)

	view, err = fx.controller.Pay(view.SessionID, payment.Fields{Email: "user@example.com"})
	require.Error(t, err)

	var pErr *payment.Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "Insufficient funds", pErr.Message)

	// A failed payment is terminal to the attempt, not to the step.
	assert.Equal(t, "AwaitingPayment", view.Step)
	assert.Equal(t, "Insufficient funds", view.LastError)
	assert.Equal(t, []string{"b2"}, fx.gateway.paid)

	fx.published.mu.Lock()
	assert.Empty(t, fx.published.events)
	fx.published.mu.Unlock()
}

func TestFailedCreationStaysOnBookingStep(t *testing.T) {
	fx := newFixture(t, baseSnapshot())
	fx.creator.err = &booking.Error{Message: "Response already booked"}

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)

	view, err = fx.controller.SelectResponse(view.SessionID, "r1")
	require.NoError(t, err)

	view, err = fx.controller.SubmitBooking(view.SessionID, models.MethodMPesa)
	require.Error(t, err)

	assert.Equal(t, "AwaitingBooking", view.Step)
	assert.Equal(t, "Response already booked", view.LastError)
	assert.Zero(t, fx.gateway.payCount())

	// Paying now must be rejected: no booking exists yet.
	_, err = fx.controller.Pay(view.SessionID, payment.Fields{PhoneNumber: "254700111222"})
	require.ErrorIs(t, err, workflow.ErrWrongStep)
}

func TestValidationFailureNeverReachesGateway(t *testing.T) {
	snapshot := baseSnapshot()
	snapshot.Bookings = []models.Booking{{
		ID:        "b2",
		Organizer: "u1",
		Response:  response("r2"),
		Status:    models.StatusTentative,
	}}
	fx := newFixture(t, snapshot)

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)

	view, err = fx.controller.SelectBooking(view.SessionID, "b2")
	require.NoError(t, err)

	view, err = fx.controller.SelectMethod(view.SessionID, models.MethodMPesa)
	require.NoError(t, err)

	view, err = fx.controller.Pay(view.SessionID, payment.Fields{PhoneNumber: "0712345678"})
	require.Error(t, err)

	var vErr *payment.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, payment.MsgInvalidPhone, view.LastError)
	assert.Equal(t, "AwaitingPayment", view.Step)
	assert.Zero(t, fx.gateway.payCount())
}

func TestSelectResponseRejectsIneligible(t *testing.T) {
	snapshot := baseSnapshot()
	// r2 already has a booking, any status makes it ineligible.
	snapshot.Bookings = []models.Booking{{
		ID:        "b-old",
		Organizer: "u1",
		Response:  response("r2"),
		Status:    models.StatusCancelled,
	}}
	fx := newFixture(t, snapshot)

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)

	_, err = fx.controller.SelectResponse(view.SessionID, "r2")
	require.ErrorIs(t, err, workflow.ErrNotEligible)

	_, err = fx.controller.SelectResponse(view.SessionID, "nonexistent")
	require.ErrorIs(t, err, workflow.ErrNotEligible)
}

func TestSelectBookingUnknownID(t *testing.T) {
	fx := newFixture(t, baseSnapshot())

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)

	_, err = fx.controller.SelectBooking(view.SessionID, "missing")
	require.ErrorIs(t, err, workflow.ErrBookingNotFound)
}

func TestStepOrderIsEnforced(t *testing.T) {
	fx := newFixture(t, baseSnapshot())

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)

	_, err = fx.controller.SubmitBooking(view.SessionID, models.MethodMPesa)
	require.ErrorIs(t, err, workflow.ErrWrongStep)

	_, err = fx.controller.SelectMethod(view.SessionID, models.MethodMPesa)
	require.ErrorIs(t, err, workflow.ErrWrongStep)

	_, err = fx.controller.Pay(view.SessionID, payment.Fields{PhoneNumber: "254700111222"})
	require.ErrorIs(t, err, workflow.ErrWrongStep)

	// A second selection after the first is equally out of order.
	_, err = fx.controller.SelectResponse(view.SessionID, "r1")
	require.NoError(t, err)
	_, err = fx.controller.SelectResponse(view.SessionID, "r2")
	require.ErrorIs(t, err, workflow.ErrWrongStep)
}

func TestUnknownSession(t *testing.T) {
	fx := newFixture(t, baseSnapshot())

	_, err := fx.controller.State("no-such-session")
	require.ErrorIs(t, err, workflow.ErrSessionNotFound)

	_, err = fx.controller.SelectResponse("no-such-session", "r1")
	require.ErrorIs(t, err, workflow.ErrSessionNotFound)
}

func TestOpenFailsWhenLoadFails(t *testing.T) {
	log := logger.NewLogger()
	controller := workflow.NewController(
		&fakeLoader{err: &backend.TransportError{Op: "Responses", Err: errors.New("connection refused")}},
		&fakeCreator{}, registry.New(&staticFetcher{}, log), &fakeGateway{},
		events.NewBus(nil, log), time.Millisecond, log,
	)

	_, err := controller.Open(context.Background())
	require.Error(t, err)
	var transportErr *backend.TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestCloseDiscardsSession(t *testing.T) {
	fx := newFixture(t, baseSnapshot())

	view, err := fx.controller.Open(context.Background())
	require.NoError(t, err)

	fx.controller.Close(view.SessionID)
	fx.controller.Close(view.SessionID) // idempotent

	_, err = fx.controller.State(view.SessionID)
	require.ErrorIs(t, err, workflow.ErrSessionNotFound)
}
