package models

import (
	"time"
)

// VenueRequest is the organizer's original request a venue owner responded to.
type VenueRequest struct {
	ID                 string      `json:"_id"`
	Organizer          string      `json:"organizer"`
	EventName          string      `json:"eventName"`
	EventDates         []time.Time `json:"eventDates"`
	ExpectedAttendance int         `json:"expectedAttendance"`
}

type Venue struct {
	ID       string `json:"_id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

type DailyRate struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// VenueResponse is a venue owner's priced reply to a venue request. It is
// produced by the backend and never mutated on this side.
type VenueResponse struct {
	ID           string       `json:"_id"`
	VenueRequest VenueRequest `json:"venueRequest"`
	Venue        Venue        `json:"venue"`
	DailyRates   []DailyRate  `json:"dailyRates"`
	TotalAmount  float64      `json:"totalAmount"`
}
