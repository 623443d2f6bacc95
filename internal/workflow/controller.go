// Package workflow is the top-level booking state machine. It decides which
// subject is active, sequences booking creation strictly before payment, and
// exposes the current step to the surface driving it.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"ms-booking/internal/backend"
	"ms-booking/internal/booking"
	"ms-booking/internal/catalog"
	"ms-booking/internal/events"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
)

var (
	ErrSessionNotFound = errors.New("workflow session not found")
	ErrNotEligible     = errors.New("venue response is not eligible for booking")
	ErrBookingNotFound = errors.New("tentative booking not found")
	ErrWrongStep       = errors.New("operation not valid in the current step")
	ErrSessionClosed   = errors.New("workflow session is closed")
)

type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context) (*backend.Snapshot, error)
}

type BookingCreator interface {
	Create(ctx context.Context, responseID string, method models.PaymentMethod) (*models.Booking, error)
}

type TentativeSource interface {
	SetOrganizer(organizerID string, bookings []models.Booking)
	Tentative() []models.Booking
	Get(bookingID string) (*models.Booking, bool)
	Refresh(ctx context.Context) error
}

type Controller struct {
	loader       SnapshotLoader
	initiator    BookingCreator
	registry     TentativeSource
	gateway      payment.Gateway
	bus          *events.Bus
	logger       *logger.Logger
	confirmDelay time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewController(loader SnapshotLoader, initiator BookingCreator, registry TentativeSource, gateway payment.Gateway, bus *events.Bus, confirmDelay time.Duration, log *logger.Logger) *Controller {
	return &Controller{
		loader:       loader,
		initiator:    initiator,
		registry:     registry,
		gateway:      gateway,
		bus:          bus,
		logger:       log,
		confirmDelay: confirmDelay,
		sessions:     make(map[string]*Session),
	}
}

// Open starts a workflow session: responses, bookings and the current user
// are fetched concurrently and joined before the first step is offered. The
// session gets its own lifetime context, detached from the opening request,
// cancelled only by Close or completion.
func (c *Controller) Open(ctx context.Context) (View, error) {
	snap, err := c.loader.LoadSnapshot(ctx)
	if err != nil {
		return View{}, fmt.Errorf("failed to load booking data: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	session := &Session{
		ID:       uuid.NewString(),
		ctx:      sessionCtx,
		cancel:   cancel,
		step:     SelectingResponse,
		orch:     payment.NewOrchestrator(c.gateway, c.confirmDelay, c.logger),
		snapshot: *snap,
	}

	c.registry.SetOrganizer(snap.User.ID, snap.Bookings)

	c.mu.Lock()
	c.sessions[session.ID] = session
	c.mu.Unlock()

	c.logger.LogWorkflow(session.ID, fmt.Sprintf("session opened for organizer %s (%d responses, %d bookings)",
		snap.User.ID, len(snap.Responses), len(snap.Bookings)))

	session.mu.Lock()
	defer session.mu.Unlock()
	return session.view(), nil
}

func (c *Controller) session(sessionID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Eligible lists the responses the session's organizer can still book.
func (c *Controller) Eligible(sessionID string) ([]models.VenueResponse, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.ListEligible(s.snapshot.Responses, s.snapshot.Bookings, s.snapshot.User.ID), nil
}

// Tentative lists the organizer's resumable bookings from the registry.
func (c *Controller) Tentative(sessionID string) ([]models.Booking, error) {
	if _, err := c.session(sessionID); err != nil {
		return nil, err
	}
	return c.registry.Tentative(), nil
}

// SelectResponse enters the fresh-booking path: the chosen response becomes
// the active subject and the session awaits booking creation.
func (c *Controller) SelectResponse(sessionID, responseID string) (View, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != SelectingResponse {
		return s.view(), fmt.Errorf("%w: step is %s", ErrWrongStep, s.step)
	}

	eligible := catalog.ListEligible(s.snapshot.Responses, s.snapshot.Bookings, s.snapshot.User.ID)
	var selected *models.VenueResponse
	for i := range eligible {
		if eligible[i].ID == responseID {
			selected = &eligible[i]
			break
		}
	}
	if selected == nil {
		return s.view(), ErrNotEligible
	}

	if err := s.transition(AwaitingBooking); err != nil {
		return s.view(), err
	}
	s.subject = SubjectResponse{Response: *selected}
	s.lastError = ""
	c.logger.LogWorkflow(s.ID, fmt.Sprintf("response %s selected, awaiting booking", responseID))
	return s.view(), nil
}

// SelectBooking enters the resume path: a tentative booking from the
// registry goes straight to payment, skipping creation entirely.
func (c *Controller) SelectBooking(sessionID, bookingID string) (View, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != SelectingResponse {
		return s.view(), fmt.Errorf("%w: step is %s", ErrWrongStep, s.step)
	}

	booking, ok := c.registry.Get(bookingID)
	if !ok {
		return s.view(), ErrBookingNotFound
	}

	if err := s.transition(AwaitingPayment); err != nil {
		return s.view(), err
	}
	s.subject = SubjectBooking{Booking: *booking}
	s.lastError = ""
	c.logger.LogWorkflow(s.ID, fmt.Sprintf("tentative booking %s resumed, awaiting payment", bookingID))
	return s.view(), nil
}

// SubmitBooking creates the tentative booking for the selected response.
// Only on success does the session move to payment; the created booking's id
// is tracked explicitly from here on.
func (c *Controller) SubmitBooking(sessionID string, method models.PaymentMethod) (View, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if s.step != AwaitingBooking {
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("%w: step is %s", ErrWrongStep, s.step)
	}
	subject, ok := s.subject.(SubjectResponse)
	if !ok {
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("%w: no response subject", ErrWrongStep)
	}
	ctx := s.ctx
	s.mu.Unlock()

	created, createErr := c.initiator.Create(ctx, subject.Response.ID, method)

	s.mu.Lock()
	defer s.mu.Unlock()

	// Session closed while the request was in flight: commit nothing. If the
	// booking was created anyway it exists server-side and will reappear as
	// tentative on the next load; that is the designed recovery path.
	if ctx.Err() != nil {
		if created != nil {
			c.logger.Warn("WORKFLOW", fmt.Sprintf("session %s closed mid-create; booking %s will resurface via the registry", s.ID, created.ID))
		}
		return s.view(), ErrSessionClosed
	}

	if createErr != nil {
		s.lastError = userMessage(createErr)
		c.logger.LogWorkflow(s.ID, fmt.Sprintf("booking creation failed: %v", createErr))
		return s.view(), createErr
	}

	if err := s.transition(AwaitingPayment); err != nil {
		return s.view(), err
	}
	s.bookingID = created.ID
	s.subject = SubjectBooking{Booking: *created}
	s.lastError = ""
	s.orch.SelectMethod(method)
	c.logger.LogWorkflow(s.ID, fmt.Sprintf("booking %s created, awaiting payment via %s", created.ID, method))
	return s.view(), nil
}

// SelectMethod (re)chooses the payment method on the payment step. Needed on
// the resume path, where no method was chosen at creation; allowed on the
// fresh path too, where it overrides the one recorded at creation.
func (c *Controller) SelectMethod(sessionID string, method models.PaymentMethod) (View, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != AwaitingPayment {
		return s.view(), fmt.Errorf("%w: step is %s", ErrWrongStep, s.step)
	}
	s.orch.SelectMethod(method)
	return s.view(), nil
}

// Pay validates the entered credentials and submits the payment for the
// resolved booking id. Success confirms the booking, emits the mutation
// event and schedules the delayed close; failure leaves the session on the
// payment step with everything the user typed intact.
func (c *Controller) Pay(sessionID string, fields payment.Fields) (View, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if s.step != AwaitingPayment {
		defer s.mu.Unlock()
		return s.view(), fmt.Errorf("%w: step is %s", ErrWrongStep, s.step)
	}

	bookingID := s.resolveBookingID()
	if bookingID == "" {
		defer s.mu.Unlock()
		return s.view(), payment.ErrUnresolvedBooking
	}

	var amount float64
	if sb, ok := s.subject.(SubjectBooking); ok {
		amount = sb.Booking.TotalAmount
	}
	ctx := s.ctx
	orch := s.orch
	orch.EnterFields(fields)
	s.mu.Unlock()

	receipt, payErr := orch.Submit(ctx, bookingID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ctx.Err() != nil {
		return s.view(), ErrSessionClosed
	}

	if payErr != nil {
		s.lastError = userMessage(payErr)
		return s.view(), payErr
	}

	if err := s.transition(Confirmed); err != nil {
		return s.view(), err
	}
	s.lastError = ""
	c.logger.LogWorkflow(s.ID, fmt.Sprintf("booking %s confirmed", bookingID))

	c.bus.Emit(ctx, events.Event{
		Type:          events.PaymentConfirmed,
		BookingID:     bookingID,
		Method:        orch.Method(),
		Amount:        amount,
		TransactionID: receipt.TransactionID,
	})

	// Let the success message be read, then tear the session down.
	go func() {
		if err := orch.AwaitClose(ctx); err != nil {
			return
		}
		c.Close(sessionID)
	}()

	return s.view(), nil
}

// State returns the current session view.
func (c *Controller) State(sessionID string) (View, error) {
	s, err := c.session(sessionID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Close tears a session down and cancels anything it still has in flight.
// Safe to call twice.
func (c *Controller) Close(sessionID string) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if ok {
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()

	if ok {
		s.cancel()
		c.logger.LogWorkflow(sessionID, "session closed")
	}
}

// userMessage pulls the user-facing text out of the workflow error taxonomy.
func userMessage(err error) string {
	var vErr *payment.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	var pErr *payment.Error
	if errors.As(err, &pErr) {
		return pErr.Message
	}
	var bErr *booking.Error
	if errors.As(err, &bErr) {
		return bErr.Message
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message()
	}
	return backend.GenericFailureMessage
}
