package dto

import (
	"time"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// VerifyLinkRequest completes linking from the chat side.
type VerifyLinkRequest struct {
	LineUserID        string `json:"lineUserId"`
	VerificationToken string `json:"verificationToken"`
}

// LinkingSessionResponse is returned by initiate.
type LinkingSessionResponse struct {
	LinkingURL string    `json:"linkingUrl"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// LinkingStatusResponse describes the caller's link.
type LinkingStatusResponse struct {
	Linked     bool              `json:"linked"`
	Status     domain.LinkStatus `json:"status"`
	LineUserID *string           `json:"lineUserId,omitempty"`
	LinkedAt   *time.Time        `json:"linkedAt,omitempty"`
}

// SendTicketStatusRequest asks for a status card push.
type SendTicketStatusRequest struct {
	LineUserID  string              `json:"lineUserId"`
	TicketID    int64               `json:"ticketId"`
	TicketCode  string              `json:"ticketCode"`
	Status      domain.TicketStatus `json:"status"`
	StatusLabel string              `json:"statusLabel"`
}

// BulkNotificationRequest sends one payload to many users.
type BulkNotificationRequest struct {
	UserIDs   []int64 `json:"userIds"`
	Type      string  `json:"type"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	ActionURL string  `json:"actionUrl"`
}

// SendResultResponse is one delivery outcome.
type SendResultResponse struct {
	Success        bool   `json:"success"`
	Reason         string `json:"reason,omitempty"`
	Error          string `json:"error,omitempty"`
	NotificationID int64  `json:"notificationId,omitempty"`
}

// BulkItemResponse pairs a user with its outcome.
type BulkItemResponse struct {
	UserID int64 `json:"userId"`
	SendResultResponse
}

// BulkResultResponse summarises a bulk send.
type BulkResultResponse struct {
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Results    []BulkItemResponse `json:"results"`
}

// RetryResultResponse summarises a retry pass.
type RetryResultResponse struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// NotificationResponse is one history entry.
type NotificationResponse struct {
	ID           int64                     `json:"id"`
	Type         string                    `json:"type"`
	Title        string                    `json:"title"`
	Message      string                    `json:"message"`
	Status       domain.NotificationStatus `json:"status"`
	ErrorMessage *string                   `json:"errorMessage,omitempty"`
	RetryCount   int                       `json:"retryCount"`
	CreatedAt    time.Time                 `json:"createdAt"`
}
