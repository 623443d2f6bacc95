package workflow

import (
	"context"
	"fmt"
	"sync"

	"ms-booking/internal/backend"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
)

type Step int

const (
	SelectingResponse Step = iota
	AwaitingBooking
	AwaitingPayment
	Confirmed
)

func (s Step) String() string {
	switch s {
	case SelectingResponse:
		return "SelectingResponse"
	case AwaitingBooking:
		return "AwaitingBooking"
	case AwaitingPayment:
		return "AwaitingPayment"
	case Confirmed:
		return "Confirmed"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Subject is what the session is booking against: a fresh venue response, or
// a tentative booking resumed from the registry. Sealed; only the two
// variants below implement it.
type Subject interface {
	isSubject()
}

type SubjectResponse struct {
	Response models.VenueResponse
}

func (SubjectResponse) isSubject() {}

type SubjectBooking struct {
	Booking models.Booking
}

func (SubjectBooking) isSubject() {}

// Session is one in-progress booking/payment attempt. Created when the
// booking surface opens, discarded when it closes or completes. Its context
// is cancelled on close so no in-flight step can commit afterwards.
type Session struct {
	ID     string
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	step      Step
	subject   Subject
	bookingID string // explicitly tracked after creation, preferred over the subject's id
	orch      *payment.Orchestrator
	snapshot  backend.Snapshot
	lastError string
}

// transition is the single place session steps change. Anything not listed
// here is a bug, not a state.
func (s *Session) transition(to Step) error {
	allowed := false
	switch s.step {
	case SelectingResponse:
		allowed = to == AwaitingBooking || to == AwaitingPayment
	case AwaitingBooking:
		allowed = to == AwaitingPayment
	case AwaitingPayment:
		allowed = to == Confirmed
	case Confirmed:
		allowed = false
	}
	if !allowed {
		return fmt.Errorf("invalid transition %s -> %s", s.step, to)
	}
	s.step = to
	return nil
}

// resolveBookingID prefers the explicitly tracked id over the subject's.
// Some flows set the explicit id right after creation while the subject
// still holds older data; using the subject first would risk a stale id.
func (s *Session) resolveBookingID() string {
	if s.bookingID != "" {
		return s.bookingID
	}
	if sb, ok := s.subject.(SubjectBooking); ok {
		return sb.Booking.ID
	}
	return ""
}

// View is the session state as presented to the API layer.
type View struct {
	SessionID    string      `json:"session_id"`
	Step         string      `json:"step"`
	SubjectKind  string      `json:"subject_kind,omitempty"`
	ResponseID   string      `json:"response_id,omitempty"`
	BookingID    string      `json:"booking_id,omitempty"`
	Method       string      `json:"payment_method,omitempty"`
	PaymentState string      `json:"payment_state"`
	LastError    string      `json:"last_error,omitempty"`
	Organizer    models.User `json:"organizer"`
}

func (s *Session) view() View {
	v := View{
		SessionID:    s.ID,
		Step:         s.step.String(),
		BookingID:    s.resolveBookingID(),
		Method:       string(s.orch.Method()),
		PaymentState: s.orch.State().String(),
		LastError:    s.lastError,
		Organizer:    s.snapshot.User,
	}
	switch subject := s.subject.(type) {
	case SubjectResponse:
		v.SubjectKind = "response"
		v.ResponseID = subject.Response.ID
	case SubjectBooking:
		v.SubjectKind = "booking"
		if v.ResponseID == "" {
			v.ResponseID = subject.Booking.Response.ID
		}
	}
	if v.LastError == "" {
		v.LastError = s.orch.LastError()
	}
	return v
}
