package infra

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/7FIl/CS-Bot/domain/model"
)

// Datastore is the record-store boundary the lifecycle engine talks to.
// Not-found is a nil/false return, never an error; connectivity and auth
// failures come back as *StoreError. No method retries on its own.
type Datastore interface {
	// Append one ticket row. TicketNumber must already be resolved by the
	// caller; the store assigns no keys.
	SaveTicket(ctx context.Context, t *model.Ticket) error
	// Targeted lookup by order id. Returns (nil, nil) when no row matches
	// or the matching row is malformed.
	GetTicketByOrderID(ctx context.Context, orderID string) (*model.Ticket, error)
	// Overwrite the status cell of the row matching the order id.
	// Returns (false, nil) when no row matches.
	UpdateTicketStatus(ctx context.Context, orderID string, status model.Status) (bool, error)
	// The last limit tickets. Malformed rows are skipped.
	ListTickets(ctx context.Context, limit int) ([]model.Ticket, error)
	// Ticket-number column of the last window rows, for number allocation.
	// Non-numeric and missing cells contribute 0.
	RecentTicketNumbers(ctx context.Context, window int) ([]int64, error)

	// Bulk read of the FAQ table. Rows missing required columns are skipped.
	LoadFAQ(ctx context.Context) ([]model.FAQEntry, error)
	// Append one FAQ row (operator console only).
	AppendFAQ(ctx context.Context, e *model.FAQEntry) error
	// Remove the FAQ row with the given trigger id. Returns (false, nil)
	// when no row matches.
	DeleteFAQ(ctx context.Context, triggerID string) (bool, error)
}

// StoreError wraps a network or authentication failure reaching the backing
// store. Transition handlers surface it to the actor as retryable.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// NewDatastore picks the backend from DB_DRIVER: "sheets" for the Google
// Sheets system of record, "dynamodb" for the DynamoDB variant, anything
// else gets the local sqlite database.
func NewDatastore(ctx context.Context) (Datastore, error) {
	switch os.Getenv("DB_DRIVER") {
	case "sheets":
		return NewSheetStore(ctx)
	case "dynamodb":
		return NewDynamoDB(ctx)
	default:
		return NewDataBase()
	}
}

func timeNow() time.Time {
	tz := os.Getenv("TICKET_TIMEZONE")
	if tz == "" {
		tz = "Asia/Jakarta"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}

// TimestampNow is the zone-local creation time string written into the
// timestamp column.
func TimestampNow() string {
	return timeNow().Format("2006-01-02 15:04:05")
}
