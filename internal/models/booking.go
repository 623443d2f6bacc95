package models

import (
	"time"
)

type BookingStatus string

const (
	StatusTentative BookingStatus = "Tentative"
	StatusConfirmed BookingStatus = "Confirmed"
	StatusCancelled BookingStatus = "Cancelled"
)

type PaymentMethod string

const (
	MethodMPesa  PaymentMethod = "M-Pesa"
	MethodPayPal PaymentMethod = "PayPal"
)

// PaymentAttempt is recorded by the backend on a successful pay call. Failed
// attempts never make it into this list.
type PaymentAttempt struct {
	Method        PaymentMethod `json:"paymentMethod"`
	Credential    string        `json:"credential,omitempty"`
	Amount        float64       `json:"amount"`
	TransactionID string        `json:"transactionId,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Outcome       string        `json:"outcome,omitempty"`
}

// Booking is the organizer's commitment against exactly one venue response.
// It starts Tentative and becomes Confirmed once a payment goes through.
type Booking struct {
	ID          string           `json:"_id"`
	Organizer   string           `json:"organizer"`
	Response    VenueResponse    `json:"response"`
	Status      BookingStatus    `json:"status"`
	TotalAmount float64          `json:"totalAmount"`
	AmountPaid  float64          `json:"amountPaid"`
	Payments    []PaymentAttempt `json:"payments,omitempty"`
	CreatedAt   time.Time        `json:"createdAt,omitempty"`
}

// CreateBookingRequest is the POST /bookings body.
type CreateBookingRequest struct {
	ResponseID    string        `json:"responseId"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
}

// PayRequest is the POST /bookings/:id/pay body. Exactly one of PhoneNumber
// or Email is set, matching the chosen method.
type PayRequest struct {
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PhoneNumber   string        `json:"phoneNumber,omitempty"`
	Email         string        `json:"email,omitempty"`
}

// PayReceipt is what a 2xx pay response carries. The backend may omit the
// transaction id; the booking is confirmed either way.
type PayReceipt struct {
	BookingID     string  `json:"bookingId,omitempty"`
	TransactionID string  `json:"transactionId,omitempty"`
	AmountPaid    float64 `json:"amountPaid,omitempty"`
}
