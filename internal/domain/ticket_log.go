package domain

import "time"

// TicketAction captures what a log entry records.
type TicketAction string

const (
	ActionCreated         TicketAction = "CREATED"
	ActionStatusChange    TicketAction = "STATUS_CHANGE"
	ActionAssigneeChange  TicketAction = "ASSIGNEE_CHANGE"
	ActionPriorityChange  TicketAction = "PRIORITY_CHANGE"
	ActionDetailsUpdated  TicketAction = "DETAILS_UPDATED"
	ActionAttachmentAdded TicketAction = "ATTACHMENT_ADDED"
)

// TicketLog is an immutable history entry for a ticket.
type TicketLog struct {
	ID        int64
	TicketID  int64
	ActorID   *int64
	Action    TicketAction
	OldValue  map[string]any
	NewValue  map[string]any
	Comment   *string
	CreatedAt time.Time

	Actor *UserSummary
}
