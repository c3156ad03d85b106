package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/repairdesk/repairdesk/internal/api/dto"
	"github.com/repairdesk/repairdesk/internal/auth"
	"github.com/repairdesk/repairdesk/internal/line"
	"github.com/repairdesk/repairdesk/internal/service"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// LineHandler serves account linking, the webhook and notification endpoints.
type LineHandler struct {
	linking  *service.LinkingService
	webhook  *service.WebhookService
	notifier *service.NotificationService
}

// NewLineHandler constructs handler.
func NewLineHandler(linking *service.LinkingService, webhook *service.WebhookService, notifier *service.NotificationService) *LineHandler {
	return &LineHandler{linking: linking, webhook: webhook, notifier: notifier}
}

// InitiateLinking POST /api/line-oa/linking/initiate.
func (h *LineHandler) InitiateLinking(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	session, err := h.linking.InitiateLinking(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LinkingSessionResponse{
		LinkingURL: session.LinkingURL,
		Token:      session.Token,
		ExpiresAt:  session.ExpiresAt,
	}})
}

// VerifyLink POST /api/line-oa/linking/verify.
func (h *LineHandler) VerifyLink(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.VerifyLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	link, err := h.linking.VerifyLink(c.UserContext(), principal.UserID, req.LineUserID, req.VerificationToken)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LinkingStatusResponse{
		Linked:     true,
		Status:     link.Status,
		LineUserID: link.LineUserID,
		LinkedAt:   link.LinkedAt,
	}})
}

// LinkingStatus GET /api/line-oa/linking/status.
func (h *LineHandler) LinkingStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	status, err := h.linking.GetLinkingStatus(c.UserContext(), principal.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.LinkingStatusResponse{
		Linked:     status.Linked,
		Status:     status.Status,
		LineUserID: status.LineUserID,
		LinkedAt:   status.LinkedAt,
	}})
}

// Unlink DELETE /api/line-oa/linking.
func (h *LineHandler) Unlink(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.linking.UnlinkAccount(c.UserContext(), principal.UserID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"linked": false}})
}

// Webhook POST /api/line-oa/webhook. The signature covers the raw body, so
// it is handed over unparsed.
func (h *LineHandler) Webhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	ack, err := h.webhook.HandleWebhook(c.UserContext(), body, c.Get(line.SignatureHeader))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": ack.Message})
}

// Notifications GET /api/line-oa/notifications.
func (h *LineHandler) Notifications(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	records, err := h.notifier.ListForUser(c.UserContext(), principal.UserID, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	items := make([]dto.NotificationResponse, 0, len(records))
	for _, r := range records {
		items = append(items, dto.NotificationResponse{
			ID:           r.ID,
			Type:         r.Type,
			Title:        r.Title,
			Message:      r.Message,
			Status:       r.Status,
			ErrorMessage: r.ErrorMessage,
			RetryCount:   r.RetryCount,
			CreatedAt:    r.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// SendTicketStatus POST /api/line-oa/send-ticket-status.
func (h *LineHandler) SendTicketStatus(c *fiber.Ctx) error {
	var req dto.SendTicketStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var missing []string
	if strings.TrimSpace(req.LineUserID) == "" {
		missing = append(missing, "lineUserId")
	}
	if strings.TrimSpace(req.TicketCode) == "" {
		missing = append(missing, "ticketCode")
	}
	if strings.TrimSpace(string(req.Status)) == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}

	result := h.webhook.SendTicketStatusUpdate(c.UserContext(), service.StatusUpdate{
		LineUserID:  req.LineUserID,
		TicketID:    req.TicketID,
		Code:        req.TicketCode,
		Status:      req.Status,
		StatusLabel: req.StatusLabel,
	})
	return c.JSON(fiber.Map{"data": sendResultResponse(result)})
}

// SendBulk POST /api/line-oa/notifications/bulk.
func (h *LineHandler) SendBulk(c *fiber.Ctx) error {
	var req dto.BulkNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	var missing []string
	if len(req.UserIDs) == 0 {
		missing = append(missing, "userIds")
	}
	if strings.TrimSpace(req.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(req.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return apperrors.NewValidationError("missing required fields", map[string]any{"fields": missing})
	}

	result := h.notifier.SendBulk(c.UserContext(), req.UserIDs, service.NotificationPayload{
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		ActionURL: req.ActionURL,
	})
	items := make([]dto.BulkItemResponse, 0, len(result.Results))
	for _, item := range result.Results {
		items = append(items, dto.BulkItemResponse{UserID: item.UserID, SendResultResponse: sendResultResponse(item.SendResult)})
	}
	return c.JSON(fiber.Map{"data": dto.BulkResultResponse{
		Total:      result.Total,
		Successful: result.Successful,
		Failed:     result.Failed,
		Results:    items,
	}})
}

// RetryNotifications POST /api/line-oa/notifications/retry.
func (h *LineHandler) RetryNotifications(c *fiber.Ctx) error {
	result, err := h.notifier.RetryFailedNotifications(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RetryResultResponse{
		Processed: result.Processed,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
	}})
}

func sendResultResponse(r service.SendResult) dto.SendResultResponse {
	return dto.SendResultResponse{
		Success:        r.Success,
		Reason:         r.Reason,
		Error:          r.Error,
		NotificationID: r.NotificationID,
	}
}
