package domain

import "time"

// NotificationStatus is the delivery outcome of a push attempt.
type NotificationStatus string

const (
	NotificationSent   NotificationStatus = "SENT"
	NotificationFailed NotificationStatus = "FAILED"
)

// MaxNotificationRetries caps how often a FAILED record is re-sent.
const MaxNotificationRetries = 3

// NotificationRecord logs one outbound push to a LINE user.
type NotificationRecord struct {
	ID           int64
	LineUserID   string
	Type         string
	Title        string
	Message      string
	ActionURL    string
	Status       NotificationStatus
	ErrorMessage *string
	RetryCount   int
	// RetryKey is sent as X-Line-Retry-Key so re-sends are idempotent on the platform side.
	RetryKey  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
