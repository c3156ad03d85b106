package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/repairdesk/repairdesk/internal/auth"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/events"
	"github.com/repairdesk/repairdesk/internal/observability"
	"github.com/repairdesk/repairdesk/internal/repository"
	"github.com/repairdesk/repairdesk/internal/storage"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	attachments repository.AttachmentRepository
	logs        repository.TicketLogRepository
	users       repository.UserRepository
	links       repository.LineLinkRepository
	storage     storage.Gateway
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	bcryptCost  int
	now         func() time.Time
	random      func() int
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo     repository.TicketRepository
	AttachmentRepo repository.AttachmentRepository
	LogRepo        repository.TicketLogRepository
	UserRepo       repository.UserRepository
	LinkRepo       repository.LineLinkRepository
	Storage        storage.Gateway
	Dispatcher     events.Dispatcher
	Logger         *zap.Logger
	Metrics        *observability.Metrics
	// BcryptCost hashes the unusable passwords of synthesized guest users.
	BcryptCost int
	Now        func() time.Time
}

// AttachmentFile is one uploaded file accompanying a ticket request.
type AttachmentFile struct {
	FileName string
	MimeType string
	Data     []byte
}

// AttachmentOutcome reports what happened to one uploaded file.
type AttachmentOutcome struct {
	FileName   string
	Attachment *domain.Attachment
	Err        error
}

// Stored reports whether the file was stored and recorded.
func (o AttachmentOutcome) Stored() bool {
	return o.Err == nil && o.Attachment != nil
}

// TicketResult is the outcome of a create call.
type TicketResult struct {
	Ticket      *domain.Ticket
	Attachments []AttachmentOutcome
	External    bool
	LineUserID  string
}

// TicketListFilter narrows FindAll.
type TicketListFilter struct {
	OwnerID  *int64
	Statuses []domain.TicketStatus
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher(logger)
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		attachments: deps.AttachmentRepo,
		logs:        deps.LogRepo,
		users:       deps.UserRepo,
		links:       deps.LinkRepo,
		storage:     deps.Storage,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     deps.Metrics,
		bcryptCost:  deps.BcryptCost,
		now:         now,
		random:      func() int { return rand.Intn(10000) },
	}
}

// GenerateTicketCode formats TKT-<year>-<last 6 digits of epoch millis><4-digit random>.
func GenerateTicketCode(now time.Time, random int) string {
	return fmt.Sprintf("TKT-%d-%06d%04d", now.Year(), now.UnixMilli()%1_000_000, random%10000)
}

// Create files a ticket for ownerID. Attachments are stored best-effort;
// failures are reported per file and never fail the call.
func (s *TicketService) Create(ctx context.Context, ownerID int64, input TicketCreateInput, files []AttachmentFile) (*TicketResult, error) {
	normalized, err := NormalizeTicketInput(input)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, ownerID, normalized, files, "")
}

// CreateFromExternalChannel files a ticket submitted through LINE without a
// session. The owner is the user linked to lineUserID, or a guest user
// synthesized for that identity.
func (s *TicketService) CreateFromExternalChannel(ctx context.Context, input TicketCreateInput, contact ExternalContact, lineUserID string, files []AttachmentFile) (*TicketResult, error) {
	lineUserID = strings.TrimSpace(lineUserID)
	if lineUserID == "" {
		return nil, apperrors.NewValidationError("LINE user id is required", map[string]any{"fields": []string{"lineUserId"}})
	}
	normalized, err := NormalizeTicketInput(input)
	if err != nil {
		return nil, err
	}
	normalized.Notes = foldContactNotes(normalized.Notes, contact, lineUserID)

	ownerID, err := s.resolveExternalOwner(ctx, lineUserID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, ownerID, normalized, files, lineUserID)
}

func (s *TicketService) create(ctx context.Context, ownerID int64, in NormalizedTicket, files []AttachmentFile, lineUserID string) (*TicketResult, error) {
	if in.AssigneeID != nil {
		if err := s.ensureUserExists(ctx, *in.AssigneeID); err != nil {
			return nil, err
		}
	}

	ticket := &domain.Ticket{
		Title:              in.Title,
		Description:        in.Description,
		EquipmentName:      in.EquipmentName,
		EquipmentID:        in.EquipmentID,
		Location:           in.Location,
		Category:           in.Category,
		ProblemCategory:    in.ProblemCategory,
		ProblemSubcategory: in.ProblemSubcategory,
		Priority:           in.Priority,
		Status:             domain.TicketStatusOpen,
		UserID:             ownerID,
		AssigneeID:         in.AssigneeID,
		Notes:              in.Notes,
		RequiredDate:       in.RequiredDate,
	}

	ticket.Code = GenerateTicketCode(s.now(), s.random())
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.logger.Error("ticket code collision", zap.String("code", ticket.Code))
			return nil, apperrors.NewInternalError(fmt.Errorf("ticket code %s already exists: %w", ticket.Code, err))
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	outcomes := s.storeAttachments(ctx, ticket, files)

	s.recordLog(ctx, ticket.ID, &ownerID, domain.ActionCreated, nil, map[string]any{
		"code":     ticket.Code,
		"status":   ticket.Status,
		"priority": ticket.Priority,
	})
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		ActorID:  &ownerID,
		Payload: events.TicketCreatedPayload{
			Code:       ticket.Code,
			Title:      ticket.Title,
			Priority:   ticket.Priority,
			OwnerID:    ownerID,
			LineUserID: lineUserID,
		},
	})
	if ticket.AssigneeID != nil {
		s.publishAssigned(ctx, ticket, &ownerID)
	}

	result := &TicketResult{
		Ticket:      ticket,
		Attachments: outcomes,
		External:    lineUserID != "",
		LineUserID:  lineUserID,
	}
	if full, err := s.FindOne(ctx, ticket.ID); err == nil {
		result.Ticket = full
	} else {
		s.logger.Warn("reload created ticket", zap.Int64("ticket_id", ticket.ID), zap.Error(err))
	}
	return result, nil
}

// resolveExternalOwner maps a LINE identity to a local user, creating a guest if needed.
func (s *TicketService) resolveExternalOwner(ctx context.Context, lineUserID string) (int64, error) {
	link, err := s.links.GetVerifiedByLineUserID(ctx, lineUserID)
	switch {
	case err == nil && link.IsVerified():
		return link.UserID, nil
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("lookup line link: %w", err)
	}

	guest, err := s.users.GetGuestByLineID(ctx, lineUserID)
	if err == nil {
		return guest.ID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup guest user: %w", err)
	}

	hash, err := auth.GuestPasswordHash(s.bcryptCost)
	if err != nil {
		return 0, err
	}
	suffix := lastN(lineUserID, 8)
	identity := lineUserID
	guest = &domain.User{
		Name:         "LINE User " + suffix,
		Email:        "line-" + suffix + "@lineoa.local",
		PasswordHash: hash,
		Role:         domain.RoleUser,
		LineID:       &identity,
		IsGuest:      true,
	}
	err = s.users.Create(ctx, guest)
	if errors.Is(err, repository.ErrDuplicate) {
		// Either a concurrent submission created this guest, or another
		// identity shares the suffix and owns the short email.
		if existing, getErr := s.users.GetGuestByLineID(ctx, lineUserID); getErr == nil {
			return existing.ID, nil
		}
		guest.Email = "line-" + lineUserID + "@lineoa.local"
		err = s.users.Create(ctx, guest)
	}
	if err != nil {
		return 0, fmt.Errorf("create guest user: %w", err)
	}
	s.logger.Info("guest user created for line identity", zap.Int64("user_id", guest.ID))
	return guest.ID, nil
}

// Update applies the fields present in input.
func (s *TicketService) Update(ctx context.Context, actorID, ticketID int64, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	before := *ticket

	changed, err := applyUpdate(ticket, input)
	if err != nil {
		return nil, err
	}
	if input.Assignee.Present {
		ticket.AssigneeID = parseAssigneeID(input.Assignee.Ref)
		if ticket.AssigneeID != nil && !sameID(before.AssigneeID, ticket.AssigneeID) {
			if err := s.ensureUserExists(ctx, *ticket.AssigneeID); err != nil {
				return nil, err
			}
		}
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": ticketID})
		}
		return nil, fmt.Errorf("update ticket: %w", err)
	}

	s.recordChanges(ctx, actorID, &before, ticket, changed)
	return s.FindOne(ctx, ticketID)
}

func applyUpdate(ticket *domain.Ticket, in TicketUpdateInput) ([]string, error) {
	var changed []string
	setText := func(field string, dst *string, src *string) error {
		if src == nil {
			return nil
		}
		v := strings.TrimSpace(*src)
		if v == "" {
			return apperrors.NewValidationError(field+" must not be empty", map[string]any{"fields": []string{field}})
		}
		if *dst != v {
			*dst = v
			changed = append(changed, field)
		}
		return nil
	}
	if err := setText("title", &ticket.Title, in.Title); err != nil {
		return nil, err
	}
	if err := setText("description", &ticket.Description, in.Description); err != nil {
		return nil, err
	}
	if err := setText("equipmentName", &ticket.EquipmentName, in.EquipmentName); err != nil {
		return nil, err
	}
	if in.Location != nil {
		ticket.Location = orDefault(*in.Location, domain.DefaultLocation)
		changed = append(changed, "location")
	}
	if in.Category != nil {
		ticket.Category = orDefault(*in.Category, domain.DefaultCategory)
		changed = append(changed, "category")
	}
	if in.EquipmentID != nil {
		ticket.EquipmentID = optionalText(*in.EquipmentID)
		changed = append(changed, "equipmentId")
	}
	if in.Notes != nil {
		ticket.Notes = optionalText(*in.Notes)
		changed = append(changed, "notes")
	}
	if in.RequiredDate != nil {
		ticket.RequiredDate = in.RequiredDate
		changed = append(changed, "requiredDate")
	}
	if in.Priority != nil {
		p := domain.TicketPriority(*in.Priority)
		if !p.Valid() {
			return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": *in.Priority})
		}
		ticket.Priority = p
	}
	if in.ProblemCategory != nil {
		c := domain.ProblemCategory(*in.ProblemCategory)
		if !c.Valid() {
			return nil, apperrors.NewValidationError("unknown problem category", map[string]any{"problemCategory": *in.ProblemCategory})
		}
		ticket.ProblemCategory = c
		changed = append(changed, "problemCategory")
	}
	if in.ProblemSubcategory != nil {
		sub := domain.ProblemSubcategory(*in.ProblemSubcategory)
		if !sub.Valid() {
			return nil, apperrors.NewValidationError("unknown problem subcategory", map[string]any{"problemSubcategory": *in.ProblemSubcategory})
		}
		ticket.ProblemSubcategory = sub
		changed = append(changed, "problemSubcategory")
	}
	if in.Status != nil {
		status := strings.TrimSpace(*in.Status)
		if status == "" {
			return nil, apperrors.NewValidationError("status must not be empty", map[string]any{"fields": []string{"status"}})
		}
		ticket.Status = domain.TicketStatus(status)
	}
	return changed, nil
}

func (s *TicketService) recordChanges(ctx context.Context, actorID int64, before, after *domain.Ticket, changed []string) {
	if before.Status != after.Status {
		s.recordLog(ctx, after.ID, &actorID, domain.ActionStatusChange,
			map[string]any{"status": before.Status}, map[string]any{"status": after.Status})
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: after.ID,
			ActorID:  &actorID,
			Payload: events.TicketStatusChangedPayload{
				Code:      after.Code,
				OwnerID:   after.UserID,
				OldStatus: before.Status,
				NewStatus: after.Status,
			},
		})
	}
	if before.Priority != after.Priority {
		s.recordLog(ctx, after.ID, &actorID, domain.ActionPriorityChange,
			map[string]any{"priority": before.Priority}, map[string]any{"priority": after.Priority})
	}
	if !sameID(before.AssigneeID, after.AssigneeID) {
		s.recordLog(ctx, after.ID, &actorID, domain.ActionAssigneeChange,
			map[string]any{"assigneeId": before.AssigneeID}, map[string]any{"assigneeId": after.AssigneeID})
		if after.AssigneeID != nil {
			s.publishAssigned(ctx, after, &actorID)
		}
	}
	if len(changed) > 0 {
		s.recordLog(ctx, after.ID, &actorID, domain.ActionDetailsUpdated, nil, map[string]any{"fields": changed})
	}
}

// AddAttachments stores files against an existing ticket.
func (s *TicketService) AddAttachments(ctx context.Context, actorID, ticketID int64, files []AttachmentFile) ([]AttachmentOutcome, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	outcomes := s.storeAttachments(ctx, ticket, files)
	var names []string
	for _, o := range outcomes {
		if o.Stored() {
			names = append(names, o.FileName)
		}
	}
	if len(names) > 0 {
		s.recordLog(ctx, ticketID, &actorID, domain.ActionAttachmentAdded, nil, map[string]any{"files": names})
	}
	return outcomes, nil
}

// FindAll lists tickets newest first with owner, assignee and attachments.
func (s *TicketService) FindAll(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.List(ctx, repository.TicketFilter{
		UserID:   filter.OwnerID,
		Statuses: filter.Statuses,
	})
	if err != nil {
		return nil, err
	}
	for i := range tickets {
		attachments, err := s.attachments.ListByTicket(ctx, tickets[i].ID)
		if err != nil {
			return nil, err
		}
		tickets[i].Attachments = attachments
	}
	return tickets, nil
}

// FindOne returns a ticket with attachments and its log history, oldest entry first.
func (s *TicketService) FindOne(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.getTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Attachments, err = s.attachments.ListByTicket(ctx, id); err != nil {
		return nil, err
	}
	if ticket.Logs, err = s.logs.ListByTicket(ctx, id); err != nil {
		return nil, err
	}
	return ticket, nil
}

// Remove deletes the ticket. Stored blobs are removed best-effort afterwards.
func (s *TicketService) Remove(ctx context.Context, id int64) error {
	if _, err := s.getTicket(ctx, id); err != nil {
		return err
	}
	attachments, err := s.attachments.ListByTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return err
	}
	for _, att := range attachments {
		if err := s.storage.Delete(ctx, att.StorageKey); err != nil {
			s.logger.Warn("delete attachment blob", zap.String("key", att.StorageKey), zap.Error(err))
		}
	}
	return nil
}

func (s *TicketService) storeAttachments(ctx context.Context, ticket *domain.Ticket, files []AttachmentFile) []AttachmentOutcome {
	outcomes := make([]AttachmentOutcome, 0, len(files))
	for i, file := range files {
		outcome := AttachmentOutcome{FileName: file.FileName}
		key := storage.ObjectKey(ticket.Code, s.now(), i, file.FileName)

		obj, err := s.storage.Put(ctx, key, file.Data, file.MimeType)
		if err != nil {
			outcome.Err = err
			s.attachmentFailed(ticket, file, err)
			outcomes = append(outcomes, outcome)
			continue
		}

		attachment := &domain.Attachment{
			TicketID:   ticket.ID,
			FileName:   file.FileName,
			FileURL:    obj.URL,
			StorageKey: obj.Key,
			FileSize:   int64(len(file.Data)),
			MimeType:   file.MimeType,
		}
		if err := s.attachments.Create(ctx, attachment); err != nil {
			outcome.Err = err
			s.attachmentFailed(ticket, file, err)
			if delErr := s.storage.Delete(ctx, obj.Key); delErr != nil {
				s.logger.Warn("remove orphaned blob", zap.String("key", obj.Key), zap.Error(delErr))
			}
			outcomes = append(outcomes, outcome)
			continue
		}
		outcome.Attachment = attachment
		ticket.Attachments = append(ticket.Attachments, *attachment)
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

func (s *TicketService) attachmentFailed(ticket *domain.Ticket, file AttachmentFile, err error) {
	s.metrics.RecordAttachmentFailure()
	s.logger.Warn("attachment not stored",
		zap.String("ticket_code", ticket.Code),
		zap.String("file", file.FileName),
		zap.Error(err))
}

func (s *TicketService) getTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) ensureUserExists(ctx context.Context, id int64) error {
	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewValidationError("assignee not found", map[string]any{"assigneeId": id})
		}
		return err
	}
	return nil
}

func (s *TicketService) publishAssigned(ctx context.Context, ticket *domain.Ticket, actorID *int64) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		ActorID:  actorID,
		Payload: events.TicketAssignedPayload{
			Code:       ticket.Code,
			Title:      ticket.Title,
			Priority:   ticket.Priority,
			AssigneeID: *ticket.AssigneeID,
		},
	})
}

func (s *TicketService) recordLog(ctx context.Context, ticketID int64, actorID *int64, action domain.TicketAction, oldValue, newValue map[string]any) {
	entry := &domain.TicketLog{
		TicketID: ticketID,
		ActorID:  actorID,
		Action:   action,
		OldValue: oldValue,
		NewValue: newValue,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		s.logger.Warn("record ticket log", zap.Int64("ticket_id", ticketID), zap.String("action", string(action)), zap.Error(err))
	}
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	_ = s.dispatcher.Publish(ctx, event)
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
