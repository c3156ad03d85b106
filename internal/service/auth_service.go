package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/auth"
	"github.com/repairdesk/repairdesk/internal/config"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/repository"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

const minPasswordLength = 8

// AuthResult is returned by register and login.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users       repository.UserRepository
	tokenMgr    *auth.TokenManager
	bcryptCost  int
	staffEmails []string
	logger      *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:       deps.UserRepo,
		tokenMgr:    auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost:  cfg.BcryptCost,
		staffEmails: cfg.StaffEmails,
		logger:      logger,
	}
}

// Register creates an account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	var missing []string
	if name == "" {
		missing = append(missing, "name")
	}
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}
	if len(password) < minPasswordLength {
		return nil, apperrors.NewValidationError("password too short", map[string]any{"minLength": minPasswordLength})
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	role := domain.RoleUser
	if slices.Contains(s.staffEmails, email) {
		role = domain.RoleIT
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, err
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.String("role", string(role)))
	return s.issue(user)
}

// Login authenticates by email and password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, err
	}
	if user.IsGuest {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: exp}, nil
}
