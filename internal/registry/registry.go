// Package registry tracks the organizer's tentative bookings. It always
// re-fetches from the backend after a mutation instead of patching a local
// cache, so it is eventually consistent with in-flight changes elsewhere.
package registry

import (
	"context"
	"fmt"
	"sync"

	"ms-booking/internal/events"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// ListMine filters bookings down to the organizer's tentative ones. Pure.
func ListMine(bookings []models.Booking, organizerID string) []models.Booking {
	mine := []models.Booking{}
	for _, b := range bookings {
		if b.Organizer != organizerID {
			continue
		}
		if b.Status != models.StatusTentative {
			continue
		}
		mine = append(mine, b)
	}
	return mine
}

type Fetcher interface {
	Bookings(ctx context.Context) ([]models.Booking, error)
}

type Registry struct {
	backend Fetcher
	logger  *logger.Logger

	mu        sync.Mutex
	seq       uint64
	organizer string
	bookings  []models.Booking
}

func New(backend Fetcher, log *logger.Logger) *Registry {
	return &Registry{backend: backend, logger: log}
}

// SetOrganizer scopes the registry to one organizer and seeds it with an
// already-fetched booking list (the initial load).
func (r *Registry) SetOrganizer(organizerID string, bookings []models.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.organizer = organizerID
	r.bookings = ListMine(bookings, organizerID)
}

// Tentative returns a snapshot of the current tentative bookings.
func (r *Registry) Tentative() []models.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Booking, len(r.bookings))
	copy(out, r.bookings)
	return out
}

// Get finds one tentative booking by id.
func (r *Registry) Get(bookingID string) (*models.Booking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bookings {
		if b.ID == bookingID {
			found := b
			return &found, true
		}
	}
	return nil, false
}

// Refresh re-fetches bookings from the backend. Refreshes may overlap; each
// one takes a sequence number at issue time, and a completion whose number
// is no longer current is discarded so an out-of-order response can never
// overwrite a newer one.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.seq++
	issued := r.seq
	organizer := r.organizer
	r.mu.Unlock()

	bookings, err := r.backend.Bookings(ctx)
	if err != nil {
		return fmt.Errorf("registry refresh: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seq != issued {
		r.logger.Debug("REGISTRY", fmt.Sprintf("discarding stale refresh %d (current %d)", issued, r.seq))
		return nil
	}
	r.bookings = ListMine(bookings, organizer)
	r.logger.Info("REGISTRY", fmt.Sprintf("refreshed: %d tentative bookings", len(r.bookings)))
	return nil
}

// Bind subscribes the registry to mutation events. Each event triggers an
// asynchronous re-fetch; a failed refresh is logged and swallowed, the next
// mutation or manual refresh will catch the registry up.
func (r *Registry) Bind(bus *events.Bus) {
	bus.Subscribe(func(e events.Event) {
		go func() {
			if err := r.Refresh(context.Background()); err != nil {
				r.logger.Warn("REGISTRY", fmt.Sprintf("refresh after %s failed: %v", e.Type, err))
			}
		}()
	})
}
