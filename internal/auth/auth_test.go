package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/mock"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 15)
	token, exp, err := tm.GenerateToken(42, domain.RoleIT)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if d := time.Until(exp); d <= 14*time.Minute || d > 15*time.Minute {
		t.Errorf("expiry in %v, want about 15m", d)
	}

	claims, err := tm.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.UserID != 42 || claims.Role != domain.RoleIT || claims.Subject != "42" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewTokenManager("other", 15).ParseToken(token); err == nil {
		t.Error("token signed with another secret must be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", 1)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.GenerateToken(1, domain.RoleUser)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	tm.now = time.Now
	if _, err := tm.ParseToken(token); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if ComparePassword(hash, "correct horse") != nil {
		t.Error("matching password rejected")
	}
	if err := ComparePassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("wrong password error = %v, want ErrPasswordMismatch", err)
	}
	if err := ComparePassword("not-a-hash", "x"); err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("malformed hash error = %v", err)
	}
}

func TestHashPasswordCostOutOfRange(t *testing.T) {
	hash, err := HashPassword("pw", bcrypt.MaxCost+1)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if cost, _ := bcrypt.Cost([]byte(hash)); cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestGuestPasswordHash(t *testing.T) {
	a, err := GuestPasswordHash(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GuestPasswordHash() error = %v", err)
	}
	b, _ := GuestPasswordHash(bcrypt.MinCost)
	if a == b {
		t.Error("guest hashes should differ")
	}
	for _, guess := range []string{"", "guest", "password"} {
		if ComparePassword(a, guess) == nil {
			t.Errorf("guest password guessed by %q", guess)
		}
	}
}

func TestTicketPolicy(t *testing.T) {
	assignee := int64(3)
	ticket := &domain.Ticket{UserID: 1, AssigneeID: &assignee}
	owner := &Principal{UserID: 1, Role: domain.RoleUser}
	stranger := &Principal{UserID: 2, Role: domain.RoleUser}
	tech := &Principal{UserID: 3, Role: domain.RoleUser}
	admin := &Principal{UserID: 9, Role: domain.RoleAdmin}

	tests := []struct {
		name             string
		p                *Principal
		view, modify, rm bool
	}{
		{"owner", owner, true, true, true},
		{"stranger", stranger, false, false, false},
		{"assignee", tech, false, true, false},
		{"admin", admin, true, true, true},
		{"anonymous", nil, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanViewTicket(tt.p, ticket); got != tt.view {
				t.Errorf("CanViewTicket = %v, want %v", got, tt.view)
			}
			if got := CanModifyTicket(tt.p, ticket); got != tt.modify {
				t.Errorf("CanModifyTicket = %v, want %v", got, tt.modify)
			}
			if got := CanDeleteTicket(tt.p, ticket); got != tt.rm {
				t.Errorf("CanDeleteTicket = %v, want %v", got, tt.rm)
			}
		})
	}
}

func TestMiddlewareUsesStoredRole(t *testing.T) {
	store := mock.NewStore()
	user := store.AddUser(domain.User{Name: "demoted", Email: "d@example.com", Role: domain.RoleUser})
	tm := NewTokenManager("secret", 60)
	token, _, err := tm.GenerateToken(user.ID, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	mw := NewAuthMiddleware(tm, store.Users())
	app.Get("/staff", mw.Handle, RequireRole(domain.RoleAdmin, domain.RoleIT), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/me", mw.Handle, RequireAuthenticated(), func(c *fiber.Ctx) error {
		p, _ := PrincipalFromContext(c)
		return c.SendString(p.User.Name)
	})

	tests := []struct {
		name, path, header string
		want               int
	}{
		{"no header", "/me", "", fiber.StatusUnauthorized},
		{"not bearer", "/me", "Basic abc", fiber.StatusUnauthorized},
		{"garbage token", "/me", "Bearer nope", fiber.StatusUnauthorized},
		{"valid", "/me", "Bearer " + token, fiber.StatusOK},
		{"token role ignored", "/staff", "Bearer " + token, fiber.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
