package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// Client talks to the EventEase backend. Every request carries the session
// cookie it was constructed with; authentication itself lives upstream.
type Client struct {
	baseURL       string
	sessionCookie string
	http          *http.Client
	logger        *logger.Logger
}

func NewClient(baseURL, sessionCookie string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL:       baseURL,
		sessionCookie: sessionCookie,
		http:          &http.Client{Timeout: timeout},
		logger:        log,
	}
}

// Snapshot is the joined result of the three initial-load fetches.
type Snapshot struct {
	Responses []models.VenueResponse
	Bookings  []models.Booking
	User      models.User
}

// LoadSnapshot fetches responses, bookings and the current user concurrently
// and joins them. Any single failure fails the load.
func (c *Client) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		responses, err := c.Responses(gctx)
		if err != nil {
			return err
		}
		snap.Responses = responses
		return nil
	})
	g.Go(func() error {
		bookings, err := c.Bookings(gctx)
		if err != nil {
			return err
		}
		snap.Bookings = bookings
		return nil
	})
	g.Go(func() error {
		user, err := c.CurrentUser(gctx)
		if err != nil {
			return err
		}
		snap.User = *user
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Client) Responses(ctx context.Context) ([]models.VenueResponse, error) {
	var responses []models.VenueResponse
	if err := c.getJSON(ctx, "Responses", "/venue-request-responses", &responses); err != nil {
		return nil, err
	}
	return responses, nil
}

func (c *Client) Bookings(ctx context.Context) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := c.getJSON(ctx, "Bookings", "/bookings", &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var envelope models.CurrentUserEnvelope
	if err := c.getJSON(ctx, "CurrentUser", "/current-user", &envelope); err != nil {
		return nil, err
	}
	return &envelope.User, nil
}

// CreateBooking issues POST /bookings. The idempotency key guards against a
// duplicate booking when a retry races a slow first attempt.
func (c *Client) CreateBooking(ctx context.Context, responseID string, method models.PaymentMethod, idempotencyKey string) (*models.Booking, error) {
	body := models.CreateBookingRequest{
		ResponseID:    responseID,
		PaymentMethod: method,
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/bookings", body)
	if err != nil {
		return nil, err
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "CreateBooking", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError("CreateBooking", resp)
	}

	var booking models.Booking
	if err := json.NewDecoder(resp.Body).Decode(&booking); err != nil {
		return nil, fmt.Errorf("CreateBooking: failed to decode response: %w", err)
	}
	c.logger.LogBooking("CREATE", booking.ID, fmt.Sprintf("created with status %s", booking.Status))
	return &booking, nil
}

// Pay issues POST /bookings/:id/pay. A 2xx means the booking is confirmed,
// whatever the body looks like; the receipt is best effort.
func (c *Client) Pay(ctx context.Context, bookingID string, payload models.PayRequest) (*models.PayReceipt, error) {
	path := fmt.Sprintf("/bookings/%s/pay", bookingID)
	req, err := c.newRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "Pay", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newStatusError("Pay", resp)
	}

	receipt := &models.PayReceipt{BookingID: bookingID}
	raw, err := io.ReadAll(resp.Body)
	if err == nil && len(raw) > 0 {
		// Tolerate backends that return an empty or non-JSON success body.
		_ = json.Unmarshal(raw, receipt)
		if receipt.BookingID == "" {
			receipt.BookingID = bookingID
		}
	}
	c.logger.LogPayment("PAY", bookingID, "payment accepted by backend")
	return receipt, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.sessionCookie != "" {
		req.Header.Set("Cookie", c.sessionCookie)
	}
	return req, nil
}
