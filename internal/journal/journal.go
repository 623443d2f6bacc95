// Package journal keeps a local audit trail of successful mutations:
// bookings created and payments confirmed. Failed attempts are deliberately
// not recorded; they live only in the session's error state.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-booking/internal/events"
	"ms-booking/internal/logger"
)

type Entry struct {
	bun.BaseModel `bun:"table:booking_journal"`

	ID            string    `bun:"id,pk"`
	EventType     string    `bun:"event_type,notnull"`
	BookingID     string    `bun:"booking_id,notnull"`
	Method        string    `bun:"payment_method"`
	Amount        float64   `bun:"amount"`
	TransactionID string    `bun:"transaction_id,nullzero"`
	RecordedAt    time.Time `bun:"recorded_at,notnull"`
}

type Journal struct {
	db     *bun.DB
	logger *logger.Logger
}

// Open creates the journal on a sqlite file (or :memory: in tests).
func Open(path string, log *logger.Logger) (*Journal, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	return &Journal{db: db, logger: log}, nil
}

func (j *Journal) Init(ctx context.Context) error {
	_, err := j.db.NewCreateTable().
		Model((*Entry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create journal table: %w", err)
	}
	return nil
}

func (j *Journal) Record(ctx context.Context, event events.Event) error {
	entry := &Entry{
		ID:            uuid.NewString(),
		EventType:     string(event.Type),
		BookingID:     event.BookingID,
		Method:        string(event.Method),
		Amount:        event.Amount,
		TransactionID: event.TransactionID,
		RecordedAt:    event.Timestamp,
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}

	_, err := j.db.NewInsert().Model(entry).Exec(ctx)
	return err
}

// Recent returns the latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := j.db.NewSelect().
		Model(&entries).
		Order("recorded_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ByBooking returns every journaled mutation for one booking, oldest first.
func (j *Journal) ByBooking(ctx context.Context, bookingID string) ([]Entry, error) {
	var entries []Entry
	err := j.db.NewSelect().
		Model(&entries).
		Where("booking_id = ?", bookingID).
		Order("recorded_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Bind subscribes the journal to the mutation bus. Write failures are
// logged; the journal must never fail the mutation it records.
func (j *Journal) Bind(bus *events.Bus) {
	bus.Subscribe(func(e events.Event) {
		if err := j.Record(context.Background(), e); err != nil {
			j.logger.Error("JOURNAL", fmt.Sprintf("failed to record %s for booking %s: %v", e.Type, e.BookingID, err))
		}
	})
}

func (j *Journal) Close() error {
	return j.db.Close()
}
