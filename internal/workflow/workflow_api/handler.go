package workflow_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/backend"
	"ms-booking/internal/booking"
	"ms-booking/internal/confirmation"
	"ms-booking/internal/journal"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"
	"ms-booking/internal/workflow"
)

type Handler struct {
	Controller *workflow.Controller
	Journal    *journal.Journal
	QR         *confirmation.Generator
	Logger     *logger.Logger
}

func NewHandler(controller *workflow.Controller, jrnl *journal.Journal, qr *confirmation.Generator, log *logger.Logger) *Handler {
	return &Handler{
		Controller: controller,
		Journal:    jrnl,
		QR:         qr,
		Logger:     log,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/v1/booking-sessions", h.OpenSession)
	r.Get("/api/v1/booking-sessions/{sessionId}", h.SessionState)
	r.Delete("/api/v1/booking-sessions/{sessionId}", h.CloseSession)
	r.Get("/api/v1/booking-sessions/{sessionId}/eligible-responses", h.EligibleResponses)
	r.Get("/api/v1/booking-sessions/{sessionId}/tentative-bookings", h.TentativeBookings)
	r.Post("/api/v1/booking-sessions/{sessionId}/select-response", h.SelectResponse)
	r.Post("/api/v1/booking-sessions/{sessionId}/select-booking", h.SelectBooking)
	r.Post("/api/v1/booking-sessions/{sessionId}/booking", h.SubmitBooking)
	r.Post("/api/v1/booking-sessions/{sessionId}/payment-method", h.SelectMethod)
	r.Post("/api/v1/booking-sessions/{sessionId}/pay", h.Pay)
	r.Get("/api/v1/journal", h.RecentJournal)
	r.Get("/api/v1/bookings/{bookingId}/confirmation.png", h.ConfirmationQR)
}

func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "OpenSession: received request")

	view, err := h.Controller.Open(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("OpenSession: failed to open session: %v", err))
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("Could not open booking session", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Booking session opened", view))
}

func (h *Handler) SessionState(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	view, err := h.Controller.State(sessionID)
	if err != nil {
		h.writeWorkflowError(w, "SessionState", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Session state", view))
}

func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	h.Logger.Info("API", fmt.Sprintf("CloseSession: sessionId=%s", sessionID))

	h.Controller.Close(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) EligibleResponses(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	responses, err := h.Controller.Eligible(sessionID)
	if err != nil {
		h.writeWorkflowError(w, "EligibleResponses", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Eligible venue responses", responses))
}

func (h *Handler) TentativeBookings(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	bookings, err := h.Controller.Tentative(sessionID)
	if err != nil {
		h.writeWorkflowError(w, "TentativeBookings", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tentative bookings", bookings))
}

func (h *Handler) SelectResponse(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var body struct {
		ResponseID string `json:"response_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	view, err := h.Controller.SelectResponse(sessionID, body.ResponseID)
	if err != nil {
		h.writeWorkflowError(w, "SelectResponse", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Response selected", view))
}

func (h *Handler) SelectBooking(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var body struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	view, err := h.Controller.SelectBooking(sessionID, body.BookingID)
	if err != nil {
		h.writeWorkflowError(w, "SelectBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tentative booking resumed", view))
}

func (h *Handler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var body struct {
		PaymentMethod models.PaymentMethod `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	view, err := h.Controller.SubmitBooking(sessionID, body.PaymentMethod)
	if err != nil {
		h.writeWorkflowError(w, "SubmitBooking", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tentative booking created", view))
}

func (h *Handler) SelectMethod(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var body struct {
		PaymentMethod models.PaymentMethod `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	view, err := h.Controller.SelectMethod(sessionID, body.PaymentMethod)
	if err != nil {
		h.writeWorkflowError(w, "SelectMethod", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment method selected", view))
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	var body struct {
		PhoneNumber string `json:"phone_number"`
		Email       string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	view, err := h.Controller.Pay(sessionID, payment.Fields{
		PhoneNumber: body.PhoneNumber,
		Email:       body.Email,
	})
	if err != nil {
		h.writeWorkflowError(w, "Pay", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment confirmed", view))
}

func (h *Handler) RecentJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Journal.Recent(r.Context(), 50)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RecentJournal: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not read journal", err.Error()))
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Journal entries", entries))
}

// ConfirmationQR renders the proof-of-payment QR for a confirmed booking,
// sourced from the journal's payment.confirmed entry.
func (h *Handler) ConfirmationQR(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")

	entries, err := h.Journal.ByBooking(r.Context(), bookingID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ConfirmationQR: journal lookup failed: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not read journal", err.Error()))
		return
	}

	var confirmed *journal.Entry
	for i := range entries {
		if entries[i].EventType == "payment.confirmed" {
			confirmed = &entries[i]
		}
	}
	if confirmed == nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Booking is not confirmed", "no confirmed payment recorded"))
		return
	}

	png, err := h.QR.GenerateEncryptedQR(confirmation.Receipt{
		BookingID:     confirmed.BookingID,
		TransactionID: confirmed.TransactionID,
		Method:        confirmed.Method,
		Amount:        confirmed.Amount,
		ConfirmedAt:   confirmed.RecordedAt,
	})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ConfirmationQR: failed to generate QR: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not generate confirmation", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// writeWorkflowError maps the workflow error taxonomy onto HTTP statuses.
func (h *Handler) writeWorkflowError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))

	status := http.StatusBadGateway
	message := "Operation failed"

	var vErr *payment.ValidationError
	var pErr *payment.Error
	var bErr *booking.Error

	switch {
	case errors.Is(err, workflow.ErrSessionNotFound):
		status, message = http.StatusNotFound, "Session not found"
	case errors.Is(err, workflow.ErrBookingNotFound):
		status, message = http.StatusNotFound, "Tentative booking not found"
	case errors.Is(err, workflow.ErrNotEligible):
		status, message = http.StatusConflict, "Venue response is not available for booking"
	case errors.Is(err, workflow.ErrWrongStep), errors.Is(err, workflow.ErrSessionClosed):
		status, message = http.StatusConflict, "Operation not valid in the current step"
	case errors.Is(err, payment.ErrSubmitInFlight), errors.Is(err, booking.ErrCreateInFlight):
		status, message = http.StatusConflict, "Another attempt is already in progress"
	case errors.Is(err, payment.ErrAlreadyPaid):
		status, message = http.StatusConflict, "Payment already confirmed for this booking"
	case errors.As(err, &vErr):
		status, message = http.StatusBadRequest, vErr.Message
	case errors.As(err, &pErr):
		status, message = upstreamStatus(err), pErr.Message
	case errors.As(err, &bErr):
		status, message = upstreamStatus(err), bErr.Message
	}

	utils.WriteJSON(w, status, utils.ErrorResponse(message, err.Error()))
}

// upstreamStatus keeps the upstream's 4xx when a payment or booking error
// wraps one, so a user-level rejection is not reported as a gateway fault.
// Everything else (transport failures, upstream 5xx) is a 502 from here.
func upstreamStatus(err error) int {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
		return statusErr.StatusCode
	}
	return http.StatusBadGateway
}
