package service

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/repairdesk/repairdesk/internal/config"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/mock"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

func newAuthService(store *mock.Store) *AuthService {
	return NewAuthService(config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 30,
		BcryptCost:            bcrypt.MinCost,
		StaffEmails:           []string{"tech@example.com"},
	}, AuthDependencies{UserRepo: store.Users()})
}

func TestRegisterAndLogin(t *testing.T) {
	store := mock.NewStore()
	svc := newAuthService(store)
	ctx := context.Background()

	reg, err := svc.Register(ctx, " Somchai ", "Somchai@Example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.User.Email != "somchai@example.com" || reg.User.Name != "Somchai" || reg.User.Role != domain.RoleUser {
		t.Errorf("user = %+v", reg.User)
	}
	if reg.Token == "" || reg.ExpiresAt.IsZero() {
		t.Error("register should issue a token")
	}

	login, err := svc.Login(ctx, "SOMCHAI@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	claims, err := svc.TokenManager().ParseToken(login.Token)
	if err != nil || claims.UserID != reg.User.ID {
		t.Errorf("claims = %+v, err %v", claims, err)
	}

	_, err = svc.Login(ctx, "somchai@example.com", "wrong-password")
	requireCode(t, err, apperrors.CodeUnauthorized)
	_, err = svc.Login(ctx, "nobody@example.com", "hunter2hunter2")
	requireCode(t, err, apperrors.CodeUnauthorized)
}

func TestRegisterStaffEmail(t *testing.T) {
	svc := newAuthService(mock.NewStore())
	reg, err := svc.Register(context.Background(), "Tech", "TECH@example.com", "longenough")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if reg.User.Role != domain.RoleIT {
		t.Errorf("role = %s, want IT", reg.User.Role)
	}
}

func TestRegisterValidation(t *testing.T) {
	store := mock.NewStore()
	svc := newAuthService(store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "a@example.com", "")
	requireCode(t, err, apperrors.CodeValidation)

	_, err = svc.Register(ctx, "A", "a@example.com", "short")
	requireCode(t, err, apperrors.CodeValidation)

	if _, err := svc.Register(ctx, "A", "a@example.com", "longenough"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	_, err = svc.Register(ctx, "B", "A@example.com", "longenough")
	requireCode(t, err, apperrors.CodeConflict)
}

func TestGuestsCannotLogIn(t *testing.T) {
	store := mock.NewStore()
	svc := newAuthService(store)
	lineID := "Uguest"
	store.AddUser(domain.User{Name: "LINE User", Email: "line-guest@lineoa.local", IsGuest: true, LineID: &lineID})

	_, err := svc.Login(context.Background(), "line-guest@lineoa.local", "")
	requireCode(t, err, apperrors.CodeUnauthorized)
}
