package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/config"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/repository"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// LinkingService runs the token handshake that binds a user to a LINE identity.
type LinkingService struct {
	links    repository.LineLinkRepository
	logger   *zap.Logger
	baseURL  string
	tokenTTL time.Duration
	now      func() time.Time
	newToken func() string
}

// LinkingDependencies bundles collaborators for the linking service.
type LinkingDependencies struct {
	LinkRepo repository.LineLinkRepository
	Logger   *zap.Logger
	Config   config.LineConfig
	Now      func() time.Time
}

// LinkingSession is handed to the user to complete linking from the chat side.
type LinkingSession struct {
	LinkingURL string
	Token      string
	ExpiresAt  time.Time
}

// LinkingStatus summarises a user's link.
type LinkingStatus struct {
	Linked     bool
	Status     domain.LinkStatus
	LineUserID *string
	LinkedAt   *time.Time
}

// NewLinkingService constructs the service.
func NewLinkingService(deps LinkingDependencies) *LinkingService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ttl := deps.Config.LinkTokenTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LinkingService{
		links:    deps.LinkRepo,
		logger:   logger,
		baseURL:  deps.Config.LinkingBaseURL,
		tokenTTL: ttl,
		now:      now,
		newToken: uuid.NewString,
	}
}

// InitiateLinking issues a single-use token. A pending or unlinked row for the
// user is replaced; an active VERIFIED link is a conflict.
func (s *LinkingService) InitiateLinking(ctx context.Context, userID int64) (*LinkingSession, error) {
	token := s.newToken()
	expiresAt := s.now().Add(s.tokenTTL)

	link, err := s.links.UpsertPending(ctx, userID, token, expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewConflict("account already linked to LINE", map[string]any{"userId": userID})
		}
		return nil, fmt.Errorf("store pending link: %w", err)
	}

	linkingURL, err := s.linkingURL(token)
	if err != nil {
		return nil, err
	}
	s.logger.Info("line linking initiated", zap.Int64("user_id", userID), zap.Int64("link_id", link.ID))
	return &LinkingSession{LinkingURL: linkingURL, Token: token, ExpiresAt: expiresAt}, nil
}

// VerifyLink consumes the token and binds lineUserID to the user.
func (s *LinkingService) VerifyLink(ctx context.Context, userID int64, lineUserID, token string) (*domain.LineAccountLink, error) {
	lineUserID = strings.TrimSpace(lineUserID)
	token = strings.TrimSpace(token)
	var missing []string
	if lineUserID == "" {
		missing = append(missing, "lineUserId")
	}
	if token == "" {
		missing = append(missing, "verificationToken")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}

	existing, err := s.links.GetVerifiedByLineUserID(ctx, lineUserID)
	switch {
	case err == nil && existing.UserID != userID:
		return nil, apperrors.NewConflict("LINE account already linked to another user", nil)
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("lookup line identity: %w", err)
	}

	now := s.now()
	link, err := s.links.Verify(ctx, userID, lineUserID, token, now)
	switch {
	case err == nil:
		s.logger.Info("line account linked", zap.Int64("user_id", userID))
		return link, nil
	case errors.Is(err, repository.ErrDuplicate):
		return nil, apperrors.NewConflict("LINE account already linked to another user", nil)
	case errors.Is(err, pgx.ErrNoRows):
		return nil, s.verifyMiss(ctx, userID, token, now)
	default:
		return nil, fmt.Errorf("verify link: %w", err)
	}
}

// verifyMiss explains why the conditional update matched nothing.
func (s *LinkingService) verifyMiss(ctx context.Context, userID int64, token string, now time.Time) error {
	current, err := s.links.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("pending link", nil)
		}
		return err
	}
	if current.Status == domain.LinkStatusPending &&
		current.VerificationToken != nil && *current.VerificationToken == token &&
		current.PendingExpired(now) {
		return apperrors.NewUnauthorized("linking token expired")
	}
	return apperrors.NewNotFound("pending link", nil)
}

// GetLinkingStatus reports the user's link. Expired pending links read as NONE.
func (s *LinkingService) GetLinkingStatus(ctx context.Context, userID int64) (*LinkingStatus, error) {
	link, err := s.links.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &LinkingStatus{Status: domain.LinkStatusNone}, nil
		}
		return nil, err
	}
	if link.PendingExpired(s.now()) {
		return &LinkingStatus{Status: domain.LinkStatusNone}, nil
	}
	status := &LinkingStatus{Status: link.Status}
	if link.IsVerified() {
		status.Linked = true
		status.LineUserID = link.LineUserID
		status.LinkedAt = link.LinkedAt
	}
	return status, nil
}

// UnlinkAccount marks a verified link UNLINKED. Calling it again is a no-op.
func (s *LinkingService) UnlinkAccount(ctx context.Context, userID int64) error {
	n, err := s.links.Unlink(ctx, userID)
	if err != nil {
		return fmt.Errorf("unlink account: %w", err)
	}
	if n > 0 {
		s.logger.Info("line account unlinked", zap.Int64("user_id", userID))
	}
	return nil
}

// UnlinkExternalIdentity marks every link for lineUserID UNLINKED.
func (s *LinkingService) UnlinkExternalIdentity(ctx context.Context, lineUserID string) (int64, error) {
	return s.links.UnlinkByLineUserID(ctx, lineUserID)
}

func (s *LinkingService) linkingURL(token string) (string, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse linking base url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
