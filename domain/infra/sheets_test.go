package infra

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSheet emulates the two tabs at the values-API level, including the
// per-tab header row and positional addressing.
type fakeSheet struct {
	tickets [][]interface{} // data rows only, header implied
	faq     [][]interface{} // row 0 is the header
	getErr  error

	appended []string
	updated  map[string][][]interface{}
	cleared  []string
}

func newFakeSheet() *fakeSheet {
	return &fakeSheet{
		faq:     [][]interface{}{{"trigger_id", "button_label", "response_text"}},
		updated: map[string][][]interface{}{},
	}
}

func (f *fakeSheet) Get(_ context.Context, readRange string) ([][]interface{}, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	switch {
	case strings.HasPrefix(readRange, "FAQ!"):
		return f.faq, nil
	case strings.Contains(readRange, "!E2:E"):
		var col [][]interface{}
		for _, row := range f.tickets {
			col = append(col, []interface{}{cell(row, 4)})
		}
		return col, nil
	case strings.Contains(readRange, "!B2:B"):
		var col [][]interface{}
		for _, row := range f.tickets {
			col = append(col, []interface{}{cell(row, 1)})
		}
		return col, nil
	case strings.HasSuffix(readRange, "!A2:H"):
		return f.tickets, nil
	default:
		// Single-row fetch like Leads!A3:H3.
		var rowNum int
		if _, err := fmt.Sscanf(readRange[strings.Index(readRange, "!A")+2:], "%d", &rowNum); err != nil {
			return nil, fmt.Errorf("unexpected range %q", readRange)
		}
		idx := rowNum - 2
		if idx < 0 || idx >= len(f.tickets) {
			return nil, nil
		}
		return [][]interface{}{f.tickets[idx]}, nil
	}
}

func cell(row []interface{}, i int) interface{} {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func (f *fakeSheet) Append(_ context.Context, writeRange string, row []interface{}) error {
	f.appended = append(f.appended, writeRange)
	if strings.HasPrefix(writeRange, "FAQ!") {
		f.faq = append(f.faq, row)
	} else {
		f.tickets = append(f.tickets, row)
	}
	return nil
}

func (f *fakeSheet) Update(_ context.Context, writeRange string, values [][]interface{}) error {
	f.updated[writeRange] = values
	// Mirror status writes back into the tickets tab so re-reads observe
	// them, like the real spreadsheet does.
	var rowNum int
	if _, err := fmt.Sscanf(writeRange[strings.Index(writeRange, "!G")+2:], "%d", &rowNum); err == nil {
		idx := rowNum - 2
		if idx >= 0 && idx < len(f.tickets) && len(f.tickets[idx]) > 6 {
			f.tickets[idx][6] = values[0][0]
		}
	}
	return nil
}

func (f *fakeSheet) Clear(_ context.Context, clearRange string) error {
	f.cleared = append(f.cleared, clearRange)
	var rowNum int
	if _, err := fmt.Sscanf(clearRange[strings.Index(clearRange, "!A")+2:], "%d", &rowNum); err == nil {
		if rowNum >= 2 && rowNum-1 < len(f.faq) {
			f.faq[rowNum-1] = []interface{}{"", "", ""}
		}
	}
	return nil
}

func newTestSheetStore(api sheetAPI) *SheetStore {
	return &SheetStore{api: api, ticketsTab: "Leads", faqTab: "FAQ"}
}

func ticketRow(number int64, orderID, status string) []interface{} {
	return []interface{}{
		"2026-08-30 10:00:00", number, "U_REQ", "Alex", orderID, "refund", status, "ts-" + orderID,
	}
}

func TestSheetSaveAndGetRoundTrip(t *testing.T) {
	sheet := newFakeSheet()
	store := newTestSheetStore(sheet)
	ctx := context.Background()

	err := store.SaveTicket(ctx, &model.Ticket{
		Timestamp:     "2026-08-30 10:00:00",
		TicketNumber:  7,
		RequesterTag:  "U_REQ",
		RequesterName: "Alex",
		OrderID:       "ORD-7",
		IssueType:     "refund",
		Status:        model.StatusPending,
		ThreadID:      "ts-ORD-7",
	})
	require.NoError(t, err)

	got, err := store.GetTicketByOrderID(ctx, "ORD-7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.TicketNumber)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, "ts-ORD-7", got.ThreadID)
}

func TestSheetGetUnknownOrderID(t *testing.T) {
	store := newTestSheetStore(newFakeSheet())

	got, err := store.GetTicketByOrderID(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSheetGetNormalizesLegacyStatus(t *testing.T) {
	sheet := newFakeSheet()
	sheet.tickets = append(sheet.tickets,
		ticketRow(1, "ORD-1", "Closed"),
		ticketRow(2, "ORD-2", "Resolved"),
	)
	store := newTestSheetStore(sheet)

	got, err := store.GetTicketByOrderID(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, got.Status)

	got, err = store.GetTicketByOrderID(context.Background(), "ORD-2")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Status)
}

func TestSheetUpdateStatusWritesStatusCell(t *testing.T) {
	sheet := newFakeSheet()
	sheet.tickets = append(sheet.tickets, ticketRow(1, "ORD-1", "PENDING"), ticketRow(2, "ORD-2", "PENDING"))
	store := newTestSheetStore(sheet)

	ok, err := store.UpdateTicketStatus(context.Background(), "ORD-2", model.StatusInProgress)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, sheet.updated, "Leads!G3")

	got, _ := store.GetTicketByOrderID(context.Background(), "ORD-2")
	assert.Equal(t, model.StatusInProgress, got.Status)
}

func TestSheetUpdateStatusMiss(t *testing.T) {
	store := newTestSheetStore(newFakeSheet())

	ok, err := store.UpdateTicketStatus(context.Background(), "NOPE", model.StatusClosed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSheetRecentTicketNumbers(t *testing.T) {
	sheet := newFakeSheet()
	for i := int64(1); i <= 60; i++ {
		sheet.tickets = append(sheet.tickets, ticketRow(i, fmt.Sprintf("ORD-%d", i), "PENDING"))
	}
	// A hand-edited garbage cell maps to 0 rather than failing the scan.
	sheet.tickets = append(sheet.tickets, ticketRow(0, "ORD-X", "PENDING"))
	sheet.tickets[len(sheet.tickets)-1][1] = "not-a-number"

	store := newTestSheetStore(sheet)
	numbers, err := store.RecentTicketNumbers(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, numbers, 50)
	assert.Equal(t, int64(0), numbers[len(numbers)-1])
	assert.Equal(t, int64(60), numbers[len(numbers)-2])
}

func TestSheetListSkipsMalformedRows(t *testing.T) {
	sheet := newFakeSheet()
	sheet.tickets = append(sheet.tickets,
		ticketRow(1, "ORD-1", "PENDING"),
		[]interface{}{"only", "three", "cells"},
		ticketRow(2, "", "PENDING"), // no order id
		ticketRow(3, "ORD-3", "IN_PROGRESS"),
	)
	store := newTestSheetStore(sheet)

	tickets, err := store.ListTickets(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "ORD-1", tickets[0].OrderID)
	assert.Equal(t, "ORD-3", tickets[1].OrderID)
}

func TestSheetStoreErrWrapsFailures(t *testing.T) {
	sheet := newFakeSheet()
	sheet.getErr = errors.New("quota exceeded")
	store := newTestSheetStore(sheet)

	_, err := store.GetTicketByOrderID(context.Background(), "ORD-1")
	var serr *StoreError
	assert.ErrorAs(t, err, &serr)
}

func TestSheetFAQLifecycle(t *testing.T) {
	sheet := newFakeSheet()
	store := newTestSheetStore(sheet)
	ctx := context.Background()

	require.NoError(t, store.AppendFAQ(ctx, &model.FAQEntry{TriggerID: "shipping", ButtonLabel: "Where is my order?", ResponseText: "Tracking link."}))
	require.NoError(t, store.AppendFAQ(ctx, &model.FAQEntry{TriggerID: "refund", ButtonLabel: "Refunds", ResponseText: "5 business days."}))

	entries, err := store.LoadFAQ(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	ok, err := store.DeleteFAQ(ctx, "SHIPPING")
	require.NoError(t, err)
	assert.True(t, ok)

	// The cleared row stays in the sheet but drops out of reads.
	entries, err = store.LoadFAQ(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "refund", entries[0].TriggerID)

	ok, err = store.DeleteFAQ(ctx, "shipping")
	require.NoError(t, err)
	assert.False(t, ok)
}
