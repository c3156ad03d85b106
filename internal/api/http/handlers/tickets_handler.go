package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/repairdesk/repairdesk/internal/api/dto"
	"github.com/repairdesk/repairdesk/internal/auth"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/service"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// LineUserIDHeader identifies the LINE user on unauthenticated submissions.
const LineUserIDHeader = "X-Line-User-Id"

const filesField = "files"

// UploadLimits bounds the files accepted with a ticket request.
type UploadLimits struct {
	MaxFiles     int
	MaxFileBytes int64
}

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
	limits  UploadLimits
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, limits UploadLimits) *TicketsHandler {
	if limits.MaxFiles <= 0 {
		limits.MaxFiles = 3
	}
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = 5 * 1024 * 1024
	}
	return &TicketsHandler{service: ticketService, limits: limits}
}

// CreateTicket POST /api/tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	req, files, err := h.parseCreateRequest(c)
	if err != nil {
		return err
	}
	input, err := createInput(req)
	if err != nil {
		return err
	}
	result, err := h.service.Create(c.UserContext(), principal.UserID, input, files)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": createdResponse(result)})
}

// CreateLineTicket POST /api/tickets/line-oa. The caller is identified by
// the LINE user id header rather than a session.
func (h *TicketsHandler) CreateLineTicket(c *fiber.Ctx) error {
	req, files, err := h.parseCreateRequest(c)
	if err != nil {
		return err
	}
	input, err := createInput(req)
	if err != nil {
		return err
	}
	lineUserID := c.Get(LineUserIDHeader)
	contact := service.ExternalContact{Phone: req.PhoneNumber, LineID: req.LineID}

	result, err := h.service.CreateFromExternalChannel(c.UserContext(), input, contact, lineUserID, files)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": createdResponse(result)})
}

// ListTickets GET /api/tickets. Staff see every ticket, others their own.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	filter := service.TicketListFilter{}
	if !principal.IsStaff() {
		filter.OwnerID = &principal.UserID
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(part)))
			}
		}
	}

	tickets, err := h.service.FindAll(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ticket, err := h.loadTicket(c)
	if err != nil {
		return err
	}
	if !auth.CanViewTicket(principal, ticket) {
		return apperrors.NewForbidden("not allowed to view this ticket")
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// UpdateTicket PUT /api/tickets/:id. Accepts JSON or multipart with extra files.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	principal, ticket, err := h.loadTicket(c)
	if err != nil {
		return err
	}
	if !auth.CanModifyTicket(principal, ticket) {
		return apperrors.NewForbidden("not allowed to modify this ticket")
	}

	req, files, err := h.parseUpdateRequest(c)
	if err != nil {
		return err
	}
	input, err := updateInput(req)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	updated, err := h.service.Update(ctx, principal.UserID, ticket.ID, input)
	if err != nil {
		return err
	}
	var outcomes []service.AttachmentOutcome
	if len(files) > 0 {
		if outcomes, err = h.service.AddAttachments(ctx, principal.UserID, ticket.ID, files); err != nil {
			return err
		}
		if updated, err = h.service.FindOne(ctx, ticket.ID); err != nil {
			return err
		}
	}

	resp := ticketResponse(updated)
	resp.AttachmentErrors = attachmentErrors(outcomes)
	return c.JSON(fiber.Map{"data": resp})
}

// DeleteTicket DELETE /api/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	principal, ticket, err := h.loadTicket(c)
	if err != nil {
		return err
	}
	if !auth.CanDeleteTicket(principal, ticket) {
		return apperrors.NewForbidden("not allowed to delete this ticket")
	}
	if err := h.service.Remove(c.UserContext(), ticket.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": ticket.ID, "deleted": true}})
}

func (h *TicketsHandler) loadTicket(c *fiber.Ctx) (*auth.Principal, *domain.Ticket, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return nil, nil, apperrors.NewUnauthorized("user required")
	}
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, nil, apperrors.NewValidationError("invalid ticket id", map[string]any{"id": c.Params("id")})
	}
	ticket, err := h.service.FindOne(c.UserContext(), id)
	if err != nil {
		return nil, nil, err
	}
	return principal, ticket, nil
}

func isMultipart(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm)
}

func (h *TicketsHandler) parseCreateRequest(c *fiber.Ctx) (dto.CreateTicketRequest, []service.AttachmentFile, error) {
	var req dto.CreateTicketRequest
	if !isMultipart(c) {
		if err := c.BodyParser(&req); err != nil {
			return req, nil, apperrors.NewValidationError("invalid payload", nil)
		}
		return req, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return req, nil, apperrors.NewValidationError("invalid multipart form", nil)
	}
	value := func(key string) string {
		if vals := form.Value[key]; len(vals) > 0 {
			return vals[0]
		}
		return ""
	}
	req = dto.CreateTicketRequest{
		Title:              value("title"),
		Description:        value("description"),
		EquipmentName:      value("equipmentName"),
		EquipmentID:        value("equipmentId"),
		Location:           value("location"),
		Category:           value("category"),
		ProblemCategory:    value("problemCategory"),
		ProblemSubcategory: value("problemSubcategory"),
		Priority:           value("priority"),
		Notes:              value("notes"),
		RequiredDate:       value("requiredDate"),
		PhoneNumber:        value("phoneNumber"),
		LineID:             value("lineId"),
	}
	if raw := strings.TrimSpace(value("assignee")); raw != "" && raw != "null" {
		var ref dto.AssigneeRequest
		if err := json.Unmarshal([]byte(raw), &ref); err == nil {
			req.Assignee = &ref
		}
	}

	files, err := h.readFiles(form)
	return req, files, err
}

func (h *TicketsHandler) parseUpdateRequest(c *fiber.Ctx) (dto.UpdateTicketRequest, []service.AttachmentFile, error) {
	var req dto.UpdateTicketRequest
	if !isMultipart(c) {
		if err := c.BodyParser(&req); err != nil {
			return req, nil, apperrors.NewValidationError("invalid payload", nil)
		}
		return req, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return req, nil, apperrors.NewValidationError("invalid multipart form", nil)
	}
	value := func(key string) *string {
		if vals, ok := form.Value[key]; ok && len(vals) > 0 {
			v := vals[0]
			return &v
		}
		return nil
	}
	req = dto.UpdateTicketRequest{
		Title:              value("title"),
		Description:        value("description"),
		EquipmentName:      value("equipmentName"),
		EquipmentID:        value("equipmentId"),
		Location:           value("location"),
		Category:           value("category"),
		ProblemCategory:    value("problemCategory"),
		ProblemSubcategory: value("problemSubcategory"),
		Priority:           value("priority"),
		Status:             value("status"),
		Notes:              value("notes"),
		RequiredDate:       value("requiredDate"),
	}
	if raw := value("assignee"); raw != nil {
		if err := req.SetAssignee([]byte(*raw)); err != nil {
			req.Assignee = &dto.AssigneeRequest{}
		}
	}

	files, err := h.readFiles(form)
	return req, files, err
}

// readFiles applies the upload policy: files that are not images or PDFs are
// dropped, while too many or oversized files reject the request.
func (h *TicketsHandler) readFiles(form *multipart.Form) ([]service.AttachmentFile, error) {
	headers := form.File[filesField]
	if len(headers) > h.limits.MaxFiles {
		return nil, apperrors.NewValidationError("too many files", map[string]any{"maxFiles": h.limits.MaxFiles})
	}
	files := make([]service.AttachmentFile, 0, len(headers))
	for _, fh := range headers {
		mimeType := fh.Header.Get(fiber.HeaderContentType)
		if !allowedUpload(mimeType) {
			continue
		}
		if fh.Size > h.limits.MaxFileBytes {
			return nil, apperrors.NewValidationError("file too large", map[string]any{
				"fileName": fh.Filename,
				"maxBytes": h.limits.MaxFileBytes,
			})
		}
		data, err := readUpload(fh, h.limits.MaxFileBytes)
		if err != nil {
			return nil, apperrors.NewValidationError("unreadable upload", map[string]any{"fileName": fh.Filename})
		}
		files = append(files, service.AttachmentFile{FileName: fh.Filename, MimeType: mimeType, Data: data})
	}
	return files, nil
}

func allowedUpload(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.HasPrefix(mimeType, "image/") || mimeType == "application/pdf"
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds %d bytes", fh.Filename, limit)
	}
	return data, nil
}

func createInput(req dto.CreateTicketRequest) (service.TicketCreateInput, error) {
	requiredDate, err := parseDate(req.RequiredDate)
	if err != nil {
		return service.TicketCreateInput{}, err
	}
	input := service.TicketCreateInput{
		Title:              req.Title,
		Description:        req.Description,
		EquipmentName:      req.EquipmentName,
		EquipmentID:        req.EquipmentID,
		Location:           req.Location,
		Category:           req.Category,
		ProblemCategory:    req.ProblemCategory,
		ProblemSubcategory: req.ProblemSubcategory,
		Priority:           req.Priority,
		Notes:              req.Notes,
		RequiredDate:       requiredDate,
	}
	if req.Assignee != nil {
		input.Assignee = &service.AssigneeRef{ID: string(req.Assignee.ID), Name: req.Assignee.Name}
	}
	return input, nil
}

func updateInput(req dto.UpdateTicketRequest) (service.TicketUpdateInput, error) {
	input := service.TicketUpdateInput{
		Title:              req.Title,
		Description:        req.Description,
		EquipmentName:      req.EquipmentName,
		EquipmentID:        req.EquipmentID,
		Location:           req.Location,
		Category:           req.Category,
		ProblemCategory:    req.ProblemCategory,
		ProblemSubcategory: req.ProblemSubcategory,
		Priority:           req.Priority,
		Status:             req.Status,
		Notes:              req.Notes,
	}
	if req.RequiredDate != nil {
		requiredDate, err := parseDate(*req.RequiredDate)
		if err != nil {
			return input, err
		}
		input.RequiredDate = requiredDate
	}
	if req.AssigneeSet {
		input.Assignee.Present = true
		if req.Assignee != nil {
			input.Assignee.Ref = &service.AssigneeRef{ID: string(req.Assignee.ID), Name: req.Assignee.Name}
		}
	}
	return input, nil
}

func parseDate(val string) (*time.Time, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, val); err == nil {
			return &t, nil
		}
	}
	return nil, apperrors.NewValidationError("invalid requiredDate", map[string]any{"requiredDate": val})
}

func createdResponse(result *service.TicketResult) dto.TicketResponse {
	resp := ticketResponse(result.Ticket)
	resp.AttachmentErrors = attachmentErrors(result.Attachments)
	return resp
}

func attachmentErrors(outcomes []service.AttachmentOutcome) []dto.AttachmentErrorResponse {
	var out []dto.AttachmentErrorResponse
	for _, o := range outcomes {
		if o.Stored() {
			continue
		}
		msg := "not stored"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		out = append(out, dto.AttachmentErrorResponse{FileName: o.FileName, Error: msg})
	}
	return out
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	attachments := make([]dto.AttachmentResponse, 0, len(ticket.Attachments))
	for _, att := range ticket.Attachments {
		attachments = append(attachments, dto.AttachmentResponse{
			ID:        att.ID,
			FileName:  att.FileName,
			FileURL:   att.FileURL,
			FileSize:  att.FileSize,
			MimeType:  att.MimeType,
			CreatedAt: att.CreatedAt,
		})
	}
	logs := make([]dto.TicketLogResponse, 0, len(ticket.Logs))
	for _, entry := range ticket.Logs {
		logs = append(logs, dto.TicketLogResponse{
			ID:        entry.ID,
			Action:    entry.Action,
			OldValue:  entry.OldValue,
			NewValue:  entry.NewValue,
			Comment:   entry.Comment,
			Actor:     userSummary(entry.Actor),
			CreatedAt: entry.CreatedAt,
		})
	}
	return dto.TicketResponse{
		ID:                 ticket.ID,
		Code:               ticket.Code,
		Title:              ticket.Title,
		Description:        ticket.Description,
		EquipmentName:      ticket.EquipmentName,
		EquipmentID:        ticket.EquipmentID,
		Location:           ticket.Location,
		Category:           ticket.Category,
		ProblemCategory:    ticket.ProblemCategory,
		ProblemSubcategory: ticket.ProblemSubcategory,
		Priority:           ticket.Priority,
		Status:             ticket.Status,
		UserID:             ticket.UserID,
		AssigneeID:         ticket.AssigneeID,
		Notes:              ticket.Notes,
		RequiredDate:       ticket.RequiredDate,
		CreatedAt:          ticket.CreatedAt,
		UpdatedAt:          ticket.UpdatedAt,
		User:               userSummary(ticket.Owner),
		Assignee:           userSummary(ticket.Assignee),
		Attachments:        attachments,
		Logs:               logs,
	}
}

func userSummary(u *domain.UserSummary) *dto.UserSummaryResponse {
	if u == nil {
		return nil
	}
	return &dto.UserSummaryResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
