// Package mock provides in-memory fakes of the repositories, the LINE pusher
// and attachment storage. The fakes enforce the same conditional update
// semantics the SQL does so service tests exercise real outcomes.
package mock

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/repository"
)

// Store holds every in-memory table behind one lock.
type Store struct {
	mu sync.Mutex

	// Now stamps created_at and updated_at. Defaults to time.Now.
	Now func() time.Time

	// DuplicateTicketCodes makes the next N ticket inserts fail as a code collision.
	DuplicateTicketCodes int
	// AttachmentCreateErr fails every attachment insert when set.
	AttachmentCreateErr error
	// NotificationCreateErr fails every notification insert when set.
	NotificationCreateErr error
	// SeenErr fails the webhook event guard when set.
	SeenErr error

	nextID        int64
	users         map[int64]*domain.User
	tickets       map[int64]*domain.Ticket
	attachments   map[int64]*domain.Attachment
	logs          []domain.TicketLog
	links         map[int64]*domain.LineAccountLink
	notifications map[int64]*domain.NotificationRecord
	seen          map[string]struct{}
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Now:           time.Now,
		users:         map[int64]*domain.User{},
		tickets:       map[int64]*domain.Ticket{},
		attachments:   map[int64]*domain.Attachment{},
		links:         map[int64]*domain.LineAccountLink{},
		notifications: map[int64]*domain.NotificationRecord{},
		seen:          map[string]struct{}{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return userRepo{s} }

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// Attachments returns the attachment repository view.
func (s *Store) Attachments() repository.AttachmentRepository { return attachmentRepo{s} }

// Logs returns the ticket log repository view.
func (s *Store) Logs() repository.TicketLogRepository { return logRepo{s} }

// Links returns the LINE link repository view.
func (s *Store) Links() repository.LineLinkRepository { return linkRepo{s} }

// Notifications returns the notification repository view.
func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }

// WebhookEvents returns the webhook event guard.
func (s *Store) WebhookEvents() repository.WebhookEventStore { return eventStore{s} }

// AddUser inserts a user directly and returns it with its id.
func (s *Store) AddUser(u domain.User) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	if u.Role == "" {
		u.Role = domain.RoleUser
	}
	u.CreatedAt, u.UpdatedAt = s.Now(), s.Now()
	s.users[u.ID] = &u
	copied := u
	return &copied
}

// AllUsers returns every user ordered by id.
func (s *Store) AllUsers() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TicketCount returns the number of stored tickets.
func (s *Store) TicketCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tickets)
}

// AttachmentCount returns the number of stored attachment rows.
func (s *Store) AttachmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attachments)
}

// LinkFor returns a copy of the user's link row, or nil.
func (s *Store) LinkFor(userID int64) *domain.LineAccountLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.links[userID]; ok {
		copied := *l
		return &copied
	}
	return nil
}

// PutLink stores a link row as is, for arranging tests.
func (s *Store) PutLink(l domain.LineAccountLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.id()
	}
	s.links[l.UserID] = &l
}

// NotificationRecords returns every record ordered by id.
func (s *Store) NotificationRecords() []domain.NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NotificationRecord, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LogsFor returns the log entries of a ticket in insertion order.
func (s *Store) LogsFor(ticketID int64) []domain.TicketLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TicketLog
	for _, l := range s.logs {
		if l.TicketID == ticketID {
			out = append(out, l)
		}
	}
	return out
}

func (s *Store) summary(id int64) *domain.UserSummary {
	if u, ok := s.users[id]; ok {
		return u.Summary()
	}
	return nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	user.ID = s.id()
	user.CreatedAt, user.UpdatedAt = s.Now(), s.Now()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (r userRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if u, ok := r.s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r userRepo) GetGuestByLineID(_ context.Context, lineUserID string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.IsGuest && u.LineID != nil && *u.LineID == lineUserID {
			copied := *u
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DuplicateTicketCodes > 0 {
		s.DuplicateTicketCodes--
		return repository.ErrDuplicate
	}
	for _, t := range s.tickets {
		if t.Code == ticket.Code {
			return repository.ErrDuplicate
		}
	}
	ticket.ID = s.id()
	ticket.CreatedAt, ticket.UpdatedAt = s.Now(), s.Now()
	copied := *ticket
	copied.Attachments, copied.Logs, copied.Owner, copied.Assignee = nil, nil, nil, nil
	s.tickets[ticket.ID] = &copied
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	ticket.UpdatedAt = s.Now()
	copied := *ticket
	copied.Attachments, copied.Logs, copied.Owner, copied.Assignee = nil, nil, nil, nil
	s.tickets[ticket.ID] = &copied
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id int64) (*domain.Ticket, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return s.project(t), nil
}

func (s *Store) project(t *domain.Ticket) *domain.Ticket {
	copied := *t
	copied.Owner = s.summary(t.UserID)
	if t.AssigneeID != nil {
		copied.Assignee = s.summary(*t.AssigneeID)
	}
	return &copied
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if filter.UserID != nil && t.UserID != *filter.UserID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		out = append(out, *s.project(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r ticketRepo) Delete(_ context.Context, id int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(s.tickets, id)
	for attID, a := range s.attachments {
		if a.TicketID == id {
			delete(s.attachments, attID)
		}
	}
	s.logs = slices.DeleteFunc(s.logs, func(l domain.TicketLog) bool { return l.TicketID == id })
	return nil
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) Create(_ context.Context, attachment *domain.Attachment) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AttachmentCreateErr != nil {
		return s.AttachmentCreateErr
	}
	if _, ok := s.tickets[attachment.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	attachment.ID = s.id()
	attachment.CreatedAt = s.Now()
	copied := *attachment
	s.attachments[attachment.ID] = &copied
	return nil
}

func (r attachmentRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.Attachment, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Attachment{}
	for _, a := range s.attachments {
		if a.TicketID == ticketID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type logRepo struct{ s *Store }

func (r logRepo) Create(_ context.Context, entry *domain.TicketLog) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = s.id()
	entry.CreatedAt = s.Now()
	s.logs = append(s.logs, *entry)
	return nil
}

func (r logRepo) ListByTicket(_ context.Context, ticketID int64) ([]domain.TicketLog, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.TicketLog{}
	for _, l := range s.logs {
		if l.TicketID != ticketID {
			continue
		}
		if l.ActorID != nil {
			l.Actor = s.summary(*l.ActorID)
		}
		out = append(out, l)
	}
	return out, nil
}

type linkRepo struct{ s *Store }

func (r linkRepo) UpsertPending(_ context.Context, userID int64, token string, expiresAt time.Time) (*domain.LineAccountLink, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	link, ok := s.links[userID]
	if ok && link.Status == domain.LinkStatusVerified {
		return nil, pgx.ErrNoRows
	}
	if !ok {
		link = &domain.LineAccountLink{ID: s.id(), UserID: userID, CreatedAt: now}
		s.links[userID] = link
	}
	tok, exp := token, expiresAt
	link.Status = domain.LinkStatusPending
	link.LineUserID = nil
	link.VerificationToken = &tok
	link.TokenExpiresAt = &exp
	link.LinkedAt = nil
	link.UpdatedAt = now
	copied := *link
	return &copied, nil
}

func (r linkRepo) GetByUserID(_ context.Context, userID int64) (*domain.LineAccountLink, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.links[userID]; ok {
		copied := *l
		return &copied, nil
	}
	return nil, pgx.ErrNoRows
}

func (r linkRepo) GetVerifiedByLineUserID(_ context.Context, lineUserID string) (*domain.LineAccountLink, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.Status == domain.LinkStatusVerified && l.LineUserID != nil && *l.LineUserID == lineUserID {
			copied := *l
			return &copied, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r linkRepo) Verify(_ context.Context, userID int64, lineUserID, token string, now time.Time) (*domain.LineAccountLink, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[userID]
	if !ok || link.Status != domain.LinkStatusPending ||
		link.VerificationToken == nil || *link.VerificationToken != token ||
		link.TokenExpiresAt == nil || !link.TokenExpiresAt.After(now) {
		return nil, pgx.ErrNoRows
	}
	for _, other := range s.links {
		if other.UserID != userID && other.Status == domain.LinkStatusVerified &&
			other.LineUserID != nil && *other.LineUserID == lineUserID {
			return nil, repository.ErrDuplicate
		}
	}
	id, linkedAt := lineUserID, now
	link.Status = domain.LinkStatusVerified
	link.LineUserID = &id
	link.VerificationToken = nil
	link.TokenExpiresAt = nil
	link.LinkedAt = &linkedAt
	link.UpdatedAt = s.Now()
	copied := *link
	return &copied, nil
}

func (r linkRepo) Unlink(_ context.Context, userID int64) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[userID]
	if !ok || link.Status != domain.LinkStatusVerified {
		return 0, nil
	}
	link.Status = domain.LinkStatusUnlinked
	link.UpdatedAt = s.Now()
	return 1, nil
}

func (r linkRepo) UnlinkByLineUserID(_ context.Context, lineUserID string) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.links {
		if l.LineUserID != nil && *l.LineUserID == lineUserID && l.Status != domain.LinkStatusUnlinked {
			l.Status = domain.LinkStatusUnlinked
			l.UpdatedAt = s.Now()
			n++
		}
	}
	return n, nil
}

type notificationRepo struct{ s *Store }

func (r notificationRepo) Create(_ context.Context, record *domain.NotificationRecord) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.NotificationCreateErr != nil {
		return s.NotificationCreateErr
	}
	record.ID = s.id()
	record.CreatedAt, record.UpdatedAt = s.Now(), s.Now()
	copied := *record
	s.notifications[record.ID] = &copied
	return nil
}

func (r notificationRepo) ListRetryable(_ context.Context, maxRetries, limit int) ([]domain.NotificationRecord, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NotificationRecord
	for _, n := range s.notifications {
		if n.Status == domain.NotificationFailed && n.RetryCount < maxRetries {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r notificationRepo) RecordRetry(_ context.Context, id int64, status domain.NotificationStatus, errMsg *string, maxRetries int) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok || n.RetryCount >= maxRetries {
		return pgx.ErrNoRows
	}
	n.Status = status
	if errMsg != nil {
		msg := *errMsg
		n.ErrorMessage = &msg
	}
	n.RetryCount++
	n.UpdatedAt = s.Now()
	return nil
}

func (r notificationRepo) ListByLineUserID(_ context.Context, lineUserID string, limit int) ([]domain.NotificationRecord, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.NotificationRecord
	for _, n := range s.notifications {
		if n.LineUserID == lineUserID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type eventStore struct{ s *Store }

func (e eventStore) MarkSeen(_ context.Context, eventID string, _ time.Duration) (bool, error) {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SeenErr != nil {
		return false, s.SeenErr
	}
	if _, ok := s.seen[eventID]; ok {
		return false, nil
	}
	s.seen[eventID] = struct{}{}
	return true, nil
}

func (e eventStore) Forget(_ context.Context, eventID string) error {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SeenErr != nil {
		return s.SeenErr
	}
	delete(s.seen, eventID)
	return nil
}
