package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-booking/internal/catalog"
	"ms-booking/internal/models"
)

func response(id, organizer string) models.VenueResponse {
	return models.VenueResponse{
		ID: id,
		VenueRequest: models.VenueRequest{
			ID:        "req-" + id,
			Organizer: organizer,
			EventName: "Annual Gala",
		},
		Venue:       models.Venue{ID: "venue-" + id, Name: "Harbor Hall"},
		TotalAmount: 15000,
	}
}

func bookingFor(responseID string, status models.BookingStatus) models.Booking {
	return models.Booking{
		ID:       "booking-" + responseID,
		Response: models.VenueResponse{ID: responseID},
		Status:   status,
	}
}

func TestListEligibleFiltersByOrganizer(t *testing.T) {
	responses := []models.VenueResponse{
		response("r1", "u1"),
		response("r2", "u2"),
		response("r3", "u1"),
	}

	eligible := catalog.ListEligible(responses, nil, "u1")

	assert.Len(t, eligible, 2)
	assert.Equal(t, "r1", eligible[0].ID)
	assert.Equal(t, "r3", eligible[1].ID)
}

func TestListEligibleExcludesBookedResponses(t *testing.T) {
	responses := []models.VenueResponse{
		response("r1", "u1"),
		response("r2", "u1"),
		response("r3", "u1"),
	}

	// Any booking status removes the response from the catalog, not just
	// confirmed ones.
	for _, status := range []models.BookingStatus{models.StatusTentative, models.StatusConfirmed, models.StatusCancelled} {
		bookings := []models.Booking{bookingFor("r2", status)}

		eligible := catalog.ListEligible(responses, bookings, "u1")

		assert.Len(t, eligible, 2, "status %s should exclude r2", status)
		for _, r := range eligible {
			assert.NotEqual(t, "r2", r.ID)
		}
	}
}

func TestListEligibleEmptyInputs(t *testing.T) {
	assert.Empty(t, catalog.ListEligible(nil, nil, "u1"))
	assert.Empty(t, catalog.ListEligible([]models.VenueResponse{}, []models.Booking{}, "u1"))
}

func TestListEligibleIsDeterministic(t *testing.T) {
	responses := []models.VenueResponse{
		response("r1", "u1"),
		response("r2", "u1"),
	}
	bookings := []models.Booking{bookingFor("r1", models.StatusTentative)}

	first := catalog.ListEligible(responses, bookings, "u1")
	second := catalog.ListEligible(responses, bookings, "u1")

	assert.Equal(t, first, second)
}
