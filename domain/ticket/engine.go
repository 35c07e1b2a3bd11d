package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/7FIl/CS-Bot/domain/infra"
	"github.com/7FIl/CS-Bot/domain/model"
)

// Gateway is the chat-platform side-effect sink. The engine treats every
// call made after a committed status write as best effort: failures are
// logged, never rolled back.
type Gateway interface {
	// OpenThread creates the per-ticket discussion thread and returns its id.
	OpenThread(ctx context.Context, t *model.Ticket, description string) (string, error)
	// NotifyStaff announces a new ticket to the staff channel.
	NotifyStaff(ctx context.Context, t *model.Ticket, description string) error
	// AddStaffToThread introduces the claiming staff member in the thread.
	AddStaffToThread(ctx context.Context, threadID, staffID string) error
	// ArchiveThread closes out the discussion thread.
	ArchiveThread(ctx context.Context, threadID, actorID string, status model.Status) error
}

// StaffFunc reports whether the user holds a staff role.
type StaffFunc func(ctx context.Context, userID string) (bool, error)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrAlreadyTaken    = errors.New("ticket already taken")
	ErrStaffHandling   = errors.New("ticket is being handled by staff")
	ErrTicketFinalized = errors.New("ticket is already resolved or closed")
	ErrNotTicketOwner  = errors.New("only the requester can close this ticket")
	ErrNotStaff        = errors.New("staff role required")
	ErrControlExpired  = errors.New("ticket controls have expired")
)

// ValidationError rejects malformed creation input before any store write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// CreateRequest is the ticket-creation form payload.
type CreateRequest struct {
	RequesterTag  string
	RequesterName string
	OrderID       string
	IssueType     string
	Description   string
}

func (r *CreateRequest) Validate() error {
	r.RequesterName = strings.TrimSpace(r.RequesterName)
	r.OrderID = strings.TrimSpace(r.OrderID)
	r.IssueType = strings.TrimSpace(r.IssueType)
	r.Description = strings.TrimSpace(r.Description)

	if r.RequesterTag == "" {
		return &ValidationError{Field: "requester", Reason: "missing"}
	}
	if err := requireLength("name", r.RequesterName, 100); err != nil {
		return err
	}
	if err := requireLength("order id", r.OrderID, 50); err != nil {
		return err
	}
	if err := requireLength("issue type", r.IssueType, 100); err != nil {
		return err
	}
	return requireLength("description", r.Description, 1000)
}

func requireLength(field, value string, max int) error {
	if value == "" {
		return &ValidationError{Field: field, Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("longer than %d characters", max)}
	}
	return nil
}

// Engine is the ticket lifecycle state machine. Every transition re-reads
// the authoritative status from the store before deciding; a per-order-id
// mutex serializes transitions on the same ticket within this process. The
// store offers no compare-and-swap, so races across processes remain
// possible and are accepted.
type Engine struct {
	ds       infra.Datastore
	alloc    *Allocator
	controls *Controls
	gateway  Gateway
	isStaff  StaffFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEngine(ds infra.Datastore, alloc *Allocator, controls *Controls, gateway Gateway, isStaff StaffFunc) *Engine {
	return &Engine{
		ds:       ds,
		alloc:    alloc,
		controls: controls,
		gateway:  gateway,
		isStaff:  isStaff,
		locks:    map[string]*sync.Mutex{},
	}
}

// allowedTransitions are the legal lifecycle edges. RESOLVED and CLOSED are
// terminal.
var allowedTransitions = map[model.Status][]model.Status{
	model.StatusPending:    {model.StatusInProgress, model.StatusClosed, model.StatusResolved},
	model.StatusInProgress: {model.StatusResolved},
}

func transitionAllowed(current, next model.Status) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (e *Engine) orderLock(orderID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[orderID] = l
	}
	return l
}

// dropLock reclaims the per-order mutex. Terminal states accept no further
// transitions, so a caller still blocked on the old mutex can only reach the
// status guards and be rejected.
func (e *Engine) dropLock(orderID string) {
	e.mu.Lock()
	delete(e.locks, orderID)
	e.mu.Unlock()
}

// Create validates the request, allocates a ticket number, opens the
// discussion thread, and persists the PENDING row. The thread is opened
// before the write so its id lands in the persisted row and survives a
// restart; staff notification afterwards is best effort.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*model.Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := &model.Ticket{
		Timestamp:     infra.TimestampNow(),
		TicketNumber:  e.alloc.Next(ctx),
		RequesterTag:  req.RequesterTag,
		RequesterName: req.RequesterName,
		OrderID:       req.OrderID,
		IssueType:     req.IssueType,
		Status:        model.StatusPending,
	}

	threadID, err := e.gateway.OpenThread(ctx, t, req.Description)
	if err != nil {
		return nil, fmt.Errorf("open thread failed: %w", err)
	}
	t.ThreadID = threadID

	if err := e.ds.SaveTicket(ctx, t); err != nil {
		slog.Error("ticket row not persisted, thread orphaned",
			slog.String("order_id", t.OrderID), slog.String("thread_id", threadID), slog.Any("err", err))
		return nil, err
	}

	e.controls.Register(&Control{
		OrderID:      t.OrderID,
		ThreadID:     threadID,
		RequesterTag: t.RequesterTag,
	})

	if err := e.gateway.NotifyStaff(ctx, t, req.Description); err != nil {
		slog.Error("NotifyStaff failed", slog.String("order_id", t.OrderID), slog.Any("err", err))
	}
	return t, nil
}

// Status looks up a ticket for display.
func (e *Engine) Status(ctx context.Context, orderID string) (*model.Ticket, error) {
	t, err := e.ds.GetTicketByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

// Take moves a PENDING ticket to IN_PROGRESS and records the claiming
// staff member. A racing second claim observes the committed IN_PROGRESS
// and is rejected without touching claimed_by.
func (e *Engine) Take(ctx context.Context, orderID, staffID string) (*model.Ticket, error) {
	if err := e.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}

	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.ds.GetTicketByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTicketNotFound
	}
	if t.Status.Terminal() {
		return nil, ErrTicketFinalized
	}
	if !transitionAllowed(t.Status, model.StatusInProgress) {
		return nil, ErrAlreadyTaken
	}

	if err := e.writeStatus(ctx, orderID, model.StatusInProgress); err != nil {
		return nil, err
	}
	t.Status = model.StatusInProgress

	// Staff actions survive control expiry: rebuild the control from the
	// persisted row when needed. Only claimed_by is unrecoverable after a
	// restart.
	if ctl := e.controls.Get(orderID); ctl != nil {
		ctl.ClaimedBy = staffID
	} else {
		e.controls.Register(&Control{
			OrderID:      t.OrderID,
			ThreadID:     t.ThreadID,
			RequesterTag: t.RequesterTag,
			ClaimedBy:    staffID,
		})
	}

	if err := e.gateway.AddStaffToThread(ctx, t.ThreadID, staffID); err != nil {
		slog.Error("AddStaffToThread failed", slog.String("order_id", orderID), slog.Any("err", err))
	}
	return t, nil
}

// Close is the requester-terminated path: only the original requester may
// close, and only while the ticket is still PENDING. Triggering an expired
// control is rejected rather than guessed at.
func (e *Engine) Close(ctx context.Context, orderID, actorID string) (*model.Ticket, error) {
	if e.controls.Get(orderID) == nil {
		return nil, ErrControlExpired
	}

	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.ds.GetTicketByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTicketNotFound
	}
	if t.RequesterTag != actorID {
		return nil, ErrNotTicketOwner
	}
	if t.Status.Terminal() {
		return nil, ErrTicketFinalized
	}
	if t.Status == model.StatusInProgress {
		return nil, ErrStaffHandling
	}
	if !transitionAllowed(t.Status, model.StatusClosed) {
		return nil, ErrTicketFinalized
	}

	if err := e.writeStatus(ctx, orderID, model.StatusClosed); err != nil {
		return nil, err
	}
	t.Status = model.StatusClosed
	e.controls.Drop(orderID)
	e.dropLock(orderID)

	if err := e.gateway.ArchiveThread(ctx, t.ThreadID, actorID, model.StatusClosed); err != nil {
		slog.Error("ArchiveThread failed", slog.String("order_id", orderID), slog.Any("err", err))
	}
	return t, nil
}

// Resolve is the staff-terminated path, allowed from any non-terminal
// state.
func (e *Engine) Resolve(ctx context.Context, orderID, staffID string) (*model.Ticket, error) {
	if err := e.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}

	lock := e.orderLock(orderID)
	lock.Lock()
	defer lock.Unlock()

	t, err := e.ds.GetTicketByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTicketNotFound
	}
	if t.Status.Terminal() {
		return nil, ErrTicketFinalized
	}

	if err := e.writeStatus(ctx, orderID, model.StatusResolved); err != nil {
		return nil, err
	}
	t.Status = model.StatusResolved
	e.controls.Drop(orderID)
	e.dropLock(orderID)

	if err := e.gateway.ArchiveThread(ctx, t.ThreadID, staffID, model.StatusResolved); err != nil {
		slog.Error("ArchiveThread failed", slog.String("order_id", orderID), slog.Any("err", err))
	}
	return t, nil
}

// Control exposes the live control for an order id, or nil.
func (e *Engine) Control(orderID string) *Control {
	return e.controls.Get(orderID)
}

func (e *Engine) writeStatus(ctx context.Context, orderID string, status model.Status) error {
	ok, err := e.ds.UpdateTicketStatus(ctx, orderID, status)
	if err != nil {
		return err
	}
	if !ok {
		// The row vanished between read and write; expected outcome, not a
		// fault.
		slog.Info("status update matched no row", slog.String("order_id", orderID), slog.String("status", string(status)))
		return ErrTicketNotFound
	}
	return nil
}

func (e *Engine) requireStaff(ctx context.Context, userID string) error {
	ok, err := e.isStaff(ctx, userID)
	if err != nil {
		return fmt.Errorf("staff check failed: %w", err)
	}
	if !ok {
		return ErrNotStaff
	}
	return nil
}
