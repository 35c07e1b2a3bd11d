package infra

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/7FIl/CS-Bot/domain/model"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// sheetAPI is the slice of the Sheets values surface the store uses, kept as
// an interface so tests can stand in a fake spreadsheet.
type sheetAPI interface {
	Get(ctx context.Context, readRange string) ([][]interface{}, error)
	Append(ctx context.Context, writeRange string, row []interface{}) error
	Update(ctx context.Context, writeRange string, values [][]interface{}) error
	Clear(ctx context.Context, clearRange string) error
}

// SheetStore persists tickets and FAQ entries in a shared Google
// spreadsheet. Ticket rows are positional: timestamp, ticket_number,
// requester_tag, requester_name, order_id, issue_type, status, thread_id,
// with the header in row 1. FAQ rows are addressed by header name instead,
// since that tab is edited by hand.
type SheetStore struct {
	api        sheetAPI
	ticketsTab string
	faqTab     string
}

const (
	ticketOrderIDColumn = "E"
	ticketStatusColumn  = "G" // column 7, fixed by the sheet layout
	firstDataRow        = 2
)

func NewSheetStore(ctx context.Context) (*SheetStore, error) {
	spreadsheetID := os.Getenv("GOOGLE_SHEETS_ID")
	if spreadsheetID == "" {
		return nil, fmt.Errorf("GOOGLE_SHEETS_ID is not set")
	}
	credentials := os.Getenv("CREDENTIALS_FILE")
	if credentials == "" {
		credentials = "credentials.json"
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentials),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	ticketsTab := os.Getenv("LEADS_TAB_NAME")
	if ticketsTab == "" {
		ticketsTab = "Leads"
	}
	faqTab := os.Getenv("FAQ_TAB_NAME")
	if faqTab == "" {
		faqTab = "FAQ"
	}
	return &SheetStore{
		api:        &googleSheets{svc: svc, spreadsheetID: spreadsheetID},
		ticketsTab: ticketsTab,
		faqTab:     faqTab,
	}, nil
}

func (s *SheetStore) SaveTicket(ctx context.Context, t *model.Ticket) error {
	row := []interface{}{
		t.Timestamp,
		t.TicketNumber,
		t.RequesterTag,
		t.RequesterName,
		t.OrderID,
		t.IssueType,
		string(t.Status),
		t.ThreadID,
	}
	if err := s.api.Append(ctx, s.ticketsTab+"!A:H", row); err != nil {
		return storeErr("append ticket", err)
	}
	return nil
}

// findTicketRow fetches only the order-id column and returns the sheet row
// number of the first match, or 0. Single-column reads keep the payload
// bounded by row count rather than full table width.
func (s *SheetStore) findTicketRow(ctx context.Context, orderID string) (int, error) {
	readRange := fmt.Sprintf("%s!%s%d:%s", s.ticketsTab, ticketOrderIDColumn, firstDataRow, ticketOrderIDColumn)
	rows, err := s.api.Get(ctx, readRange)
	if err != nil {
		return 0, storeErr("find ticket", err)
	}
	want := strings.TrimSpace(orderID)
	for i, row := range rows {
		if len(row) > 0 && cellString(row, 0) == want {
			return firstDataRow + i, nil
		}
	}
	return 0, nil
}

func (s *SheetStore) GetTicketByOrderID(ctx context.Context, orderID string) (*model.Ticket, error) {
	rowNum, err := s.findTicketRow(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if rowNum == 0 {
		return nil, nil
	}
	readRange := fmt.Sprintf("%s!A%d:H%d", s.ticketsTab, rowNum, rowNum)
	rows, err := s.api.Get(ctx, readRange)
	if err != nil {
		return nil, storeErr("get ticket", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return parseTicketRow(rows[0]), nil
}

func (s *SheetStore) UpdateTicketStatus(ctx context.Context, orderID string, status model.Status) (bool, error) {
	rowNum, err := s.findTicketRow(ctx, orderID)
	if err != nil {
		return false, err
	}
	if rowNum == 0 {
		return false, nil
	}
	writeRange := fmt.Sprintf("%s!%s%d", s.ticketsTab, ticketStatusColumn, rowNum)
	if err := s.api.Update(ctx, writeRange, [][]interface{}{{string(status)}}); err != nil {
		return false, storeErr("update ticket status", err)
	}
	return true, nil
}

func (s *SheetStore) ListTickets(ctx context.Context, limit int) ([]model.Ticket, error) {
	readRange := fmt.Sprintf("%s!A%d:H", s.ticketsTab, firstDataRow)
	rows, err := s.api.Get(ctx, readRange)
	if err != nil {
		return nil, storeErr("list tickets", err)
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	tickets := make([]model.Ticket, 0, len(rows))
	for _, row := range rows {
		if t := parseTicketRow(row); t != nil {
			tickets = append(tickets, *t)
		}
	}
	return tickets, nil
}

func (s *SheetStore) RecentTicketNumbers(ctx context.Context, window int) ([]int64, error) {
	readRange := fmt.Sprintf("%s!B%d:B", s.ticketsTab, firstDataRow)
	rows, err := s.api.Get(ctx, readRange)
	if err != nil {
		return nil, storeErr("recent ticket numbers", err)
	}
	if window > 0 && len(rows) > window {
		rows = rows[len(rows)-window:]
	}
	numbers := make([]int64, 0, len(rows))
	for _, row := range rows {
		numbers = append(numbers, cellInt(row, 0))
	}
	return numbers, nil
}

func (s *SheetStore) LoadFAQ(ctx context.Context) ([]model.FAQEntry, error) {
	cols, rows, err := s.faqTable(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]model.FAQEntry, 0, len(rows))
	for _, row := range rows {
		e := model.FAQEntry{
			TriggerID:    cellString(row, cols.trigger),
			ButtonLabel:  cellString(row, cols.label),
			ResponseText: cellString(row, cols.response),
		}
		// Blank triggers cover both malformed rows and rows cleared by
		// DeleteFAQ.
		if e.TriggerID == "" || e.ButtonLabel == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *SheetStore) AppendFAQ(ctx context.Context, e *model.FAQEntry) error {
	row := []interface{}{e.TriggerID, e.ButtonLabel, e.ResponseText}
	if err := s.api.Append(ctx, s.faqTab+"!A:C", row); err != nil {
		return storeErr("append faq", err)
	}
	return nil
}

// DeleteFAQ clears the matching row at the values level. The sheet keeps an
// empty row behind; LoadFAQ skips it.
func (s *SheetStore) DeleteFAQ(ctx context.Context, triggerID string) (bool, error) {
	cols, rows, err := s.faqTable(ctx)
	if err != nil {
		return false, err
	}
	want := strings.TrimSpace(strings.ToLower(triggerID))
	for i, row := range rows {
		if strings.ToLower(cellString(row, cols.trigger)) != want {
			continue
		}
		rowNum := firstDataRow + i
		clearRange := fmt.Sprintf("%s!A%d:Z%d", s.faqTab, rowNum, rowNum)
		if err := s.api.Clear(ctx, clearRange); err != nil {
			return false, storeErr("delete faq", err)
		}
		return true, nil
	}
	return false, nil
}

type faqColumns struct {
	trigger, label, response int
}

// faqTable reads the FAQ tab and resolves the three required columns from
// the header row, tolerating extra or reordered columns.
func (s *SheetStore) faqTable(ctx context.Context) (faqColumns, [][]interface{}, error) {
	rows, err := s.api.Get(ctx, s.faqTab+"!A1:Z")
	if err != nil {
		return faqColumns{}, nil, storeErr("load faq", err)
	}
	if len(rows) == 0 {
		return faqColumns{}, nil, fmt.Errorf("faq tab %q has no header row", s.faqTab)
	}
	cols := faqColumns{trigger: -1, label: -1, response: -1}
	for i := range rows[0] {
		switch cellString(rows[0], i) {
		case "trigger_id":
			cols.trigger = i
		case "button_label":
			cols.label = i
		case "response_text":
			cols.response = i
		}
	}
	if cols.trigger < 0 || cols.label < 0 || cols.response < 0 {
		return faqColumns{}, nil, fmt.Errorf("faq tab %q is missing a required column", s.faqTab)
	}
	return cols, rows[1:], nil
}

// parseTicketRow decodes one positional ticket row. Rows without the seven
// required cells or without an order id are treated as malformed and
// dropped, so one corrupt row cannot block reads.
func parseTicketRow(row []interface{}) *model.Ticket {
	if len(row) < 7 {
		return nil
	}
	orderID := cellString(row, 4)
	if orderID == "" {
		return nil
	}
	return &model.Ticket{
		Timestamp:     cellString(row, 0),
		TicketNumber:  cellInt(row, 1),
		RequesterTag:  cellString(row, 2),
		RequesterName: cellString(row, 3),
		OrderID:       orderID,
		IssueType:     cellString(row, 5),
		Status:        model.NormalizeStatus(cellString(row, 6)),
		ThreadID:      cellString(row, 7),
	}
}

func cellString(row []interface{}, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", row[i]))
}

func cellInt(row []interface{}, i int) int64 {
	n, err := strconv.ParseInt(cellString(row, i), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// googleSheets adapts the generated Sheets client to sheetAPI.
type googleSheets struct {
	svc           *sheets.Service
	spreadsheetID string
}

func (g *googleSheets) Get(ctx context.Context, readRange string) ([][]interface{}, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleSheets) Append(ctx context.Context, writeRange string, row []interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, writeRange, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (g *googleSheets) Update(ctx context.Context, writeRange string, values [][]interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, writeRange, &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").Context(ctx).Do()
	return err
}

func (g *googleSheets) Clear(ctx context.Context, clearRange string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}
