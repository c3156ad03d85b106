package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/events"
	"github.com/repairdesk/repairdesk/internal/line"
	"github.com/repairdesk/repairdesk/internal/observability"
	"github.com/repairdesk/repairdesk/internal/repository"
)

// ReasonNotLinked is reported when the target user has no verified LINE link.
const ReasonNotLinked = "not linked"

const (
	retryBatchSize      = 10
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Notification types recorded on NotificationRecord.Type.
const (
	NotificationGeneral        = "GENERAL"
	NotificationTicketCreated  = "TICKET_CREATED"
	NotificationTicketAssigned = "TICKET_ASSIGNED"
	NotificationTicketStatus   = "TICKET_STATUS"
	NotificationMenu           = "MENU"
)

var defaultStatusLabels = map[domain.TicketStatus]string{
	domain.TicketStatusOpen:       "Waiting for a technician",
	domain.TicketStatusInProgress: "Repair in progress",
	domain.TicketStatusDone:       "Repair completed",
}

// StatusLabel returns the display label for a ticket status.
func StatusLabel(status domain.TicketStatus) string {
	if label, ok := defaultStatusLabels[status]; ok {
		return label
	}
	return string(status)
}

// NotificationPayload is what a caller wants delivered.
type NotificationPayload struct {
	Type      string
	Title     string
	Message   string
	ActionURL string
	// Rich is sent verbatim instead of the composed text when set.
	Rich *line.Message
}

// SendResult is the outcome of one delivery. Send never returns an error;
// failures are reported here.
type SendResult struct {
	Success        bool
	Reason         string
	Error          string
	NotificationID int64
}

// BulkItem is one entry of a bulk send.
type BulkItem struct {
	UserID int64
	SendResult
}

// BulkResult summarises SendBulk.
type BulkResult struct {
	Total      int
	Successful int
	Failed     int
	Results    []BulkItem
}

// RetryResult summarises one retry pass.
type RetryResult struct {
	Processed int
	Succeeded int
	Failed    int
}

// NotificationService pushes LINE messages to linked users and records each attempt.
type NotificationService struct {
	links         repository.LineLinkRepository
	records       repository.NotificationRepository
	pusher        line.Pusher
	dispatcher    events.Dispatcher
	logger        *zap.Logger
	metrics       *observability.Metrics
	ticketURLBase string
	newRetryKey   func() string
}

// NotificationDependencies bundles collaborators for the notification service.
type NotificationDependencies struct {
	LinkRepo         repository.LineLinkRepository
	NotificationRepo repository.NotificationRepository
	Pusher           line.Pusher
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	TicketURLBase    string
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pusher := deps.Pusher
	if pusher == nil {
		pusher = line.DisabledPusher{}
	}
	return &NotificationService{
		links:         deps.LinkRepo,
		records:       deps.NotificationRepo,
		pusher:        pusher,
		dispatcher:    deps.Dispatcher,
		logger:        logger,
		metrics:       deps.Metrics,
		ticketURLBase: strings.TrimRight(deps.TicketURLBase, "/"),
		newRetryKey:   uuid.NewString,
	}
}

// RegisterHandlers subscribes to ticket events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
}

// Send delivers payload to the LINE identity linked to userID.
func (n *NotificationService) Send(ctx context.Context, userID int64, payload NotificationPayload) SendResult {
	link, err := n.links.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SendResult{Reason: ReasonNotLinked}
		}
		n.logger.Warn("lookup line link", zap.Int64("user_id", userID), zap.Error(err))
		return SendResult{Error: err.Error()}
	}
	if !link.IsVerified() {
		return SendResult{Reason: ReasonNotLinked}
	}
	return n.Deliver(ctx, *link.LineUserID, payload)
}

// Deliver pushes payload to a LINE user id and records a SENT or FAILED row.
// A record that cannot be written is logged and does not change the outcome.
func (n *NotificationService) Deliver(ctx context.Context, lineUserID string, payload NotificationPayload) SendResult {
	if payload.Type == "" {
		payload.Type = NotificationGeneral
	}
	msg := composeMessage(payload)
	record := &domain.NotificationRecord{
		LineUserID: lineUserID,
		Type:       payload.Type,
		Title:      payload.Title,
		Message:    payload.Message,
		ActionURL:  payload.ActionURL,
		Status:     domain.NotificationSent,
		RetryKey:   n.newRetryKey(),
	}

	pushErr := n.pusher.Push(ctx, lineUserID, msg, record.RetryKey)
	if pushErr != nil {
		errText := pushErr.Error()
		record.Status = domain.NotificationFailed
		record.ErrorMessage = &errText
		n.logger.Warn("line push failed",
			zap.String("type", payload.Type),
			zap.String("line_user_id", lineUserID),
			zap.Error(pushErr))
	}
	n.metrics.RecordNotification(payload.Type, string(record.Status))

	if err := n.records.Create(ctx, record); err != nil {
		n.logger.Error("record notification", zap.String("type", payload.Type), zap.Error(err))
	}

	result := SendResult{Success: pushErr == nil, NotificationID: record.ID}
	if pushErr != nil {
		result.Error = pushErr.Error()
	}
	return result
}

// SendBulk sends to each user in order; one failure does not stop the rest.
func (n *NotificationService) SendBulk(ctx context.Context, userIDs []int64, payload NotificationPayload) BulkResult {
	result := BulkResult{Total: len(userIDs), Results: make([]BulkItem, 0, len(userIDs))}
	for _, id := range userIDs {
		item := BulkItem{UserID: id, SendResult: n.Send(ctx, id, payload)}
		if item.Success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, item)
	}
	return result
}

// RetryFailedNotifications re-sends up to 10 FAILED records below the retry
// cap, oldest first, as plain text with the stored link. Each attempt
// increments the record's retry count.
func (n *NotificationService) RetryFailedNotifications(ctx context.Context) (RetryResult, error) {
	records, err := n.records.ListRetryable(ctx, domain.MaxNotificationRetries, retryBatchSize)
	if err != nil {
		return RetryResult{}, fmt.Errorf("list retryable notifications: %w", err)
	}

	var result RetryResult
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		result.Processed++
		retryKey := record.RetryKey
		if retryKey == "" {
			retryKey = n.newRetryKey()
		}
		msg := line.NewTextMessage(composeText(record.Title, record.Message, record.ActionURL))

		status := domain.NotificationSent
		var errText *string
		if pushErr := n.pusher.Push(ctx, record.LineUserID, msg, retryKey); pushErr != nil {
			status = domain.NotificationFailed
			text := pushErr.Error()
			errText = &text
			result.Failed++
		} else {
			result.Succeeded++
		}
		n.metrics.RecordNotification(record.Type, string(status))

		if err := n.records.RecordRetry(ctx, record.ID, status, errText, domain.MaxNotificationRetries); err != nil {
			n.logger.Warn("record notification retry", zap.Int64("notification_id", record.ID), zap.Error(err))
		}
	}
	if result.Processed > 0 {
		n.logger.Info("notification retry pass",
			zap.Int("processed", result.Processed),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

// ListForUser returns the newest notifications sent to the user's linked identity.
func (n *NotificationService) ListForUser(ctx context.Context, userID int64, limit int) ([]domain.NotificationRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	link, err := n.links.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []domain.NotificationRecord{}, nil
		}
		return nil, err
	}
	if link.LineUserID == nil || *link.LineUserID == "" {
		return []domain.NotificationRecord{}, nil
	}
	return n.records.ListByLineUserID(ctx, *link.LineUserID, limit)
}

// TicketURL is the "view details" link for a ticket.
func (n *NotificationService) TicketURL(ticketID int64) string {
	if n.ticketURLBase == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d", n.ticketURLBase, ticketID)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	card := line.TicketCard{
		Heading:   "✅ Ticket received",
		Code:      payload.Code,
		Title:     payload.Title,
		Priority:  string(payload.Priority),
		ActionURL: n.TicketURL(event.TicketID),
	}.Message()
	notification := NotificationPayload{
		Type:      NotificationTicketCreated,
		Title:     "Ticket received",
		Message:   fmt.Sprintf("Your ticket %s (%s) has been received.", payload.Code, payload.Title),
		ActionURL: n.TicketURL(event.TicketID),
		Rich:      &card,
	}

	var result SendResult
	if payload.LineUserID != "" {
		result = n.Deliver(ctx, payload.LineUserID, notification)
	} else {
		result = n.Send(ctx, payload.OwnerID, notification)
	}
	return resultErr(result)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	card := line.TicketCard{
		Code:      payload.Code,
		Title:     payload.Title,
		Priority:  string(payload.Priority),
		ActionURL: n.TicketURL(event.TicketID),
	}.Message()
	return resultErr(n.Send(ctx, payload.AssigneeID, NotificationPayload{
		Type:      NotificationTicketAssigned,
		Title:     "New job assigned",
		Message:   fmt.Sprintf("%s: %s", payload.Code, payload.Title),
		ActionURL: n.TicketURL(event.TicketID),
		Rich:      &card,
	}))
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketStatusChangedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T", event.Payload)
	}
	return resultErr(n.Send(ctx, payload.OwnerID, statusNotification(
		payload.Code, payload.NewStatus, StatusLabel(payload.NewStatus), n.TicketURL(event.TicketID))))
}

func statusNotification(code string, status domain.TicketStatus, label, actionURL string) NotificationPayload {
	card := line.StatusCard{
		Code:        code,
		Status:      string(status),
		StatusLabel: label,
		ActionURL:   actionURL,
	}.Message()
	return NotificationPayload{
		Type:      NotificationTicketStatus,
		Title:     "Ticket " + code,
		Message:   "Status: " + label,
		ActionURL: actionURL,
		Rich:      &card,
	}
}

// resultErr turns a failed delivery into an error for the event dispatcher's log.
// Not being linked is expected and is not an error.
func resultErr(result SendResult) error {
	if result.Success || result.Reason == ReasonNotLinked {
		return nil
	}
	return errors.New(result.Error)
}

func composeMessage(payload NotificationPayload) line.Message {
	if payload.Rich != nil {
		return *payload.Rich
	}
	return line.NewTextMessage(composeText(payload.Title, payload.Message, payload.ActionURL))
}

func composeText(title, message, actionURL string) string {
	var b strings.Builder
	b.WriteString("📬 ")
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(message)
	if actionURL != "" {
		b.WriteString("\n\n👉 View details: ")
		b.WriteString(actionURL)
	}
	return b.String()
}
