package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/repairdesk/repairdesk/internal/config"
	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/events"
	"github.com/repairdesk/repairdesk/internal/mock"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

const testSecret = "channel-secret"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store    *mock.Store
	blobs    *mock.Storage
	pusher   *mock.Pusher
	clock    *clock
	tickets  *TicketService
	linking  *LinkingService
	notifier *NotificationService
	webhook  *WebhookService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)}
	store := mock.NewStore()
	store.Now = clk.Now
	blobs := mock.NewStorage()
	pusher := &mock.Pusher{}
	dispatcher := events.NewInMemoryDispatcher(nil)

	lineCfg := config.LineConfig{
		ChannelSecret:  testSecret,
		LinkingBaseURL: "https://desk.example.com/line-oa/link",
		LinkTokenTTL:   10 * time.Minute,
		TicketURLBase:  "https://desk.example.com/tickets",
		EventDedupTTL:  time.Hour,
	}

	env := &testEnv{store: store, blobs: blobs, pusher: pusher, clock: clk}
	env.tickets = NewTicketService(TicketDependencies{
		TicketRepo:     store.Tickets(),
		AttachmentRepo: store.Attachments(),
		LogRepo:        store.Logs(),
		UserRepo:       store.Users(),
		LinkRepo:       store.Links(),
		Storage:        blobs,
		Dispatcher:     dispatcher,
		BcryptCost:     bcrypt.MinCost,
		Now:            clk.Now,
	})
	env.linking = NewLinkingService(LinkingDependencies{
		LinkRepo: store.Links(),
		Config:   lineCfg,
		Now:      clk.Now,
	})
	env.notifier = NewNotificationService(NotificationDependencies{
		LinkRepo:         store.Links(),
		NotificationRepo: store.Notifications(),
		Pusher:           pusher,
		Dispatcher:       dispatcher,
		TicketURLBase:    lineCfg.TicketURLBase,
	})
	env.notifier.RegisterHandlers()
	env.webhook = NewWebhookService(WebhookDependencies{
		Linking:    env.linking,
		Notifier:   env.notifier,
		EventStore: store.WebhookEvents(),
		Config:     lineCfg,
	})
	return env
}

func (e *testEnv) user(t *testing.T, name string, role domain.Role) *domain.User {
	t.Helper()
	return e.store.AddUser(domain.User{Name: name, Email: name + "@example.com", Role: role})
}

// link puts a VERIFIED link for userID directly into the store.
func (e *testEnv) link(userID int64, lineUserID string) {
	id := lineUserID
	linkedAt := e.clock.Now()
	e.store.PutLink(domain.LineAccountLink{
		UserID:     userID,
		LineUserID: &id,
		Status:     domain.LinkStatusVerified,
		LinkedAt:   &linkedAt,
	})
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !apperrors.HasCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

func errorDetails(t *testing.T, err error) map[string]any {
	t.Helper()
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("error %v is not a DomainError", err)
	}
	return domainErr.Details
}

func validInput() TicketCreateInput {
	return TicketCreateInput{
		Title:         "Printer jams on every page",
		Description:   "Second floor printer jams after one page",
		EquipmentName: "HP LaserJet 4200",
	}
}
