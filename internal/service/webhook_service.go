package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/config"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/line"
	"github.com/repairdesk/repairdesk/internal/observability"
	"github.com/repairdesk/repairdesk/internal/repository"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// WebhookProcessedMessage is returned for every authenticated webhook call.
const WebhookProcessedMessage = "Webhook processed"

// Per-event outcomes, also used as metric labels.
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// WebhookAck summarises a webhook call.
type WebhookAck struct {
	Message   string
	Processed int
	Skipped   int
	Failed    int
}

// StatusUpdate asks for a status card to be pushed to a LINE user.
type StatusUpdate struct {
	LineUserID  string
	TicketID    int64
	Code        string
	Status      domain.TicketStatus
	StatusLabel string
}

// WebhookService authenticates and routes LINE platform events.
type WebhookService struct {
	channelSecret string
	linking       *LinkingService
	notifier      *NotificationService
	seen          repository.WebhookEventStore
	dedupTTL      time.Duration
	newTicketURL  string
	myTicketsURL  string
	logger        *zap.Logger
	metrics       *observability.Metrics
}

// WebhookDependencies bundles collaborators for the webhook service.
type WebhookDependencies struct {
	Linking  *LinkingService
	Notifier *NotificationService
	// EventStore guards against redelivered events. Nil disables the guard.
	EventStore repository.WebhookEventStore
	Config     config.LineConfig
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewWebhookService constructs the service.
func NewWebhookService(deps WebhookDependencies) *WebhookService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ticketsURL := strings.TrimRight(deps.Config.TicketURLBase, "/")
	return &WebhookService{
		channelSecret: deps.Config.ChannelSecret,
		linking:       deps.Linking,
		notifier:      deps.Notifier,
		seen:          deps.EventStore,
		dedupTTL:      deps.Config.EventDedupTTL,
		newTicketURL:  ticketsURL + "/new",
		myTicketsURL:  ticketsURL,
		logger:        logger,
		metrics:       deps.Metrics,
	}
}

// HandleWebhook verifies the signature over the raw body, then handles each
// event in order. A failing event is logged and does not affect the others.
func (s *WebhookService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookAck, error) {
	if !line.VerifySignature(s.channelSecret, body, signature) {
		s.metrics.RecordWebhookEvent("", "rejected")
		return nil, apperrors.NewUnauthorized("invalid webhook signature")
	}

	payload, err := line.ParseWebhook(body)
	if err != nil {
		return nil, apperrors.NewValidationError("malformed webhook body", nil)
	}

	ack := &WebhookAck{Message: WebhookProcessedMessage}
	for _, event := range payload.Events {
		info := line.Describe(event)
		if s.alreadySeen(ctx, info) {
			ack.Skipped++
			s.metrics.RecordWebhookEvent(info.Type, outcomeDuplicate)
			continue
		}
		if err := s.handleEvent(ctx, event, info); err != nil {
			s.forget(ctx, info)
			ack.Failed++
			s.metrics.RecordWebhookEvent(info.Type, outcomeFailed)
			s.logger.Error("webhook event failed",
				zap.String("type", info.Type),
				zap.String("event_id", info.WebhookEventID),
				zap.Bool("redelivery", info.Redelivery),
				zap.Error(err))
			continue
		}
		ack.Processed++
		s.metrics.RecordWebhookEvent(info.Type, outcomeProcessed)
	}
	return ack, nil
}

// alreadySeen claims the event id. Store errors let the event through.
func (s *WebhookService) alreadySeen(ctx context.Context, info line.EventInfo) bool {
	if s.seen == nil || info.WebhookEventID == "" {
		return false
	}
	first, err := s.seen.MarkSeen(ctx, info.WebhookEventID, s.dedupTTL)
	if err != nil {
		s.logger.Warn("webhook dedup unavailable", zap.String("event_id", info.WebhookEventID), zap.Error(err))
		return false
	}
	return !first
}

// forget releases the claim of a failed event so the platform's redelivery is handled.
func (s *WebhookService) forget(ctx context.Context, info line.EventInfo) {
	if s.seen == nil || info.WebhookEventID == "" {
		return
	}
	if err := s.seen.Forget(ctx, info.WebhookEventID); err != nil {
		s.logger.Warn("webhook dedup release failed", zap.String("event_id", info.WebhookEventID), zap.Error(err))
	}
}

func (s *WebhookService) handleEvent(ctx context.Context, event webhook.EventInterface, info line.EventInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s event: %v", info.Type, r)
		}
	}()

	userID := info.UserID
	switch e := event.(type) {
	case webhook.FollowEvent:
		s.logger.Info("line user followed", zap.String("line_user_id", userID))
	case webhook.UnfollowEvent:
		if userID == "" {
			return nil
		}
		n, err := s.linking.UnlinkExternalIdentity(ctx, userID)
		if err != nil {
			return fmt.Errorf("unlink %s: %w", userID, err)
		}
		s.logger.Info("line user unfollowed", zap.String("line_user_id", userID), zap.Int64("unlinked", n))
	case webhook.MessageEvent:
		if _, ok := line.TextOf(e); !ok || userID == "" {
			return nil
		}
		menu := line.MenuMessage(s.newTicketURL, s.myTicketsURL)
		result := s.notifier.Deliver(ctx, userID, NotificationPayload{
			Type:    NotificationMenu,
			Title:   "Menu",
			Message: "What would you like to do?",
			Rich:    &menu,
		})
		if !result.Success {
			return fmt.Errorf("menu reply: %s", result.Error)
		}
	case webhook.PostbackEvent:
		data := ""
		if e.Postback != nil {
			data = e.Postback.Data
		}
		s.logger.Info("line postback", zap.String("line_user_id", userID), zap.String("data", data))
	default:
		s.logger.Debug("unhandled line event", zap.String("type", info.Type))
	}
	return nil
}

// SendTicketStatusUpdate pushes a status card. Failures are reported in the result only.
func (s *WebhookService) SendTicketStatusUpdate(ctx context.Context, update StatusUpdate) SendResult {
	if strings.TrimSpace(update.LineUserID) == "" {
		return SendResult{Error: "lineUserId is required"}
	}
	label := update.StatusLabel
	if label == "" {
		label = StatusLabel(update.Status)
	}
	payload := statusNotification(update.Code, update.Status, label, s.notifier.TicketURL(update.TicketID))
	return s.notifier.Deliver(ctx, update.LineUserID, payload)
}
