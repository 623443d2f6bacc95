// Package catalog computes which venue responses are still open for booking.
package catalog

import (
	"ms-booking/internal/models"
)

// ListEligible returns the responses the given organizer can still book:
// responses to their own requests that no booking, tentative or otherwise,
// references yet. Pure function; identical inputs give identical output.
func ListEligible(responses []models.VenueResponse, bookings []models.Booking, organizerID string) []models.VenueResponse {
	booked := make(map[string]bool, len(bookings))
	for _, b := range bookings {
		booked[b.Response.ID] = true
	}

	eligible := []models.VenueResponse{}
	for _, r := range responses {
		if r.VenueRequest.Organizer != organizerID {
			continue
		}
		if booked[r.ID] {
			continue
		}
		eligible = append(eligible, r)
	}
	return eligible
}
