package events

import (
	"time"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketAssigned      EventType = "ticket_assigned"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  int64     `json:"ticket_id"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Code     string                `json:"code"`
	Title    string                `json:"title"`
	Priority domain.TicketPriority `json:"priority"`
	OwnerID  int64                 `json:"owner_id"`
	// LineUserID is set when the ticket arrived through the LINE channel.
	LineUserID string `json:"line_user_id,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	Code      string              `json:"code"`
	OwnerID   int64               `json:"owner_id"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Code       string                `json:"code"`
	Title      string                `json:"title"`
	Priority   domain.TicketPriority `json:"priority"`
	AssigneeID int64                 `json:"assignee_id"`
}
