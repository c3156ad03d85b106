package domain

import "time"

// User is anyone who files or works tickets. Guest users are synthesized
// for chat-channel submitters without a linked account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	PhoneNumber  *string
	LineID       *string
	IsGuest      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary projects the user for embedding in other reads.
func (u *User) Summary() *UserSummary {
	if u == nil {
		return nil
	}
	return &UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
