package domain

import "time"

// LinkStatus is the state of a LINE account link.
type LinkStatus string

const (
	LinkStatusPending  LinkStatus = "PENDING"
	LinkStatusVerified LinkStatus = "VERIFIED"
	LinkStatusUnlinked LinkStatus = "UNLINKED"
	// LinkStatusNone is reported for users without a usable link row.
	LinkStatusNone LinkStatus = "NONE"
)

// LineAccountLink binds a local user to a LINE user id.
// There is at most one row per user, and at most one VERIFIED row per LINE user id.
type LineAccountLink struct {
	ID                int64
	UserID            int64
	LineUserID        *string
	Status            LinkStatus
	VerificationToken *string
	TokenExpiresAt    *time.Time
	LinkedAt          *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsVerified reports whether notifications may be delivered through the link.
func (l *LineAccountLink) IsVerified() bool {
	return l != nil && l.Status == LinkStatusVerified && l.LineUserID != nil && *l.LineUserID != ""
}

// PendingExpired reports whether a PENDING link's token has lapsed at now.
func (l *LineAccountLink) PendingExpired(now time.Time) bool {
	if l == nil || l.Status != LinkStatusPending {
		return false
	}
	return l.TokenExpiresAt == nil || !now.Before(*l.TokenExpiresAt)
}
