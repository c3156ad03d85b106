package dto

import (
	"time"

	"github.com/repairdesk/repairdesk/internal/domain"
)

// UserRegisterRequest is the self sign-up payload. The role is assigned by
// the server and never read from the request.
type UserRegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserSummaryResponse is the public projection of a user, used for the
// signed-in account and for ticket owners and assignees.
type UserSummaryResponse struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
}

// NewUserSummary projects u.
func NewUserSummary(u *domain.User) UserSummaryResponse {
	return UserSummaryResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// AuthResponse carries the bearer token for the Authorization header.
type AuthResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// NewAuthResponse wraps a signed access token.
func NewAuthResponse(token string, expiresAt time.Time) AuthResponse {
	return AuthResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt}
}
