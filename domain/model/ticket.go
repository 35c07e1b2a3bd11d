package model

import (
	"strings"
	"time"
)

// Status is a ticket lifecycle token, persisted verbatim into the store's
// status column.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// NormalizeStatus maps raw status cells onto the canonical token set.
// Historical rows contain mixed-case terminal tokens ("Closed", "Resolved")
// written by the old user-close and admin-resolve paths; reads accept them,
// writes only ever emit the canonical uppercase tokens.
func NormalizeStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PENDING":
		return StatusPending
	case "IN_PROGRESS":
		return StatusInProgress
	case "RESOLVED":
		return StatusResolved
	case "CLOSED":
		return StatusClosed
	}
	return Status(strings.TrimSpace(raw))
}

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Ticket is one row in the Tickets table. Column order is fixed:
// timestamp, ticket_number, requester_tag, requester_name, order_id,
// issue_type, status, thread_id. OrderID is the natural key used for status
// lookups and updates.
type Ticket struct {
	ID            uint   `gorm:"primary_key"`
	Timestamp     string `gorm:"type:varchar(30)"`
	TicketNumber  int64  `gorm:"index"`
	RequesterTag  string `gorm:"type:varchar(50)"`
	RequesterName string `gorm:"type:varchar(100)"`
	OrderID       string `gorm:"type:varchar(50);index"`
	IssueType     string `gorm:"type:varchar(100)"`
	Status        Status `gorm:"type:varchar(20)"`
	ThreadID      string `gorm:"type:varchar(50)"`
	CreatedAt     time.Time
}
