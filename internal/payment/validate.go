package payment

import (
	"regexp"
	"strings"

	"ms-booking/internal/models"
)

// M-Pesa numbers are exactly the country code 254 followed by nine digits.
var mpesaPhone = regexp.MustCompile(`^254\d{9}$`)

// Fixed user-facing validation messages, one per rule.
const (
	MsgInvalidPhone      = "Please enter a valid M-Pesa phone number in the format 254XXXXXXXXX"
	MsgInvalidEmail      = "Please enter a valid PayPal email address"
	MsgUnsupportedMethod = "Please choose a supported payment method"
)

// ValidationError is locally detected bad input. It never reaches the
// network and always blocks submission.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Message
}

// Fields holds the credential inputs for whichever method is chosen.
type Fields struct {
	PhoneNumber string
	Email       string
}

// Validate checks the method-specific credential and builds the pay payload.
// The PayPal rule is deliberately just "contains @": the backend does the
// real vetting, and tightening it here would reject addresses it accepts.
func Validate(method models.PaymentMethod, fields Fields) (models.PayRequest, error) {
	switch method {
	case models.MethodMPesa:
		if !mpesaPhone.MatchString(fields.PhoneNumber) {
			return models.PayRequest{}, &ValidationError{Message: MsgInvalidPhone}
		}
		return models.PayRequest{
			PaymentMethod: models.MethodMPesa,
			PhoneNumber:   fields.PhoneNumber,
		}, nil

	case models.MethodPayPal:
		if !strings.Contains(fields.Email, "@") {
			return models.PayRequest{}, &ValidationError{Message: MsgInvalidEmail}
		}
		return models.PayRequest{
			PaymentMethod: models.MethodPayPal,
			Email:         fields.Email,
		}, nil

	default:
		return models.PayRequest{}, &ValidationError{Message: MsgUnsupportedMethod}
	}
}
