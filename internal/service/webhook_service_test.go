package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/repairdesk/repairdesk/internal/domain"
	"github.com/repairdesk/repairdesk/internal/line"
	"github.com/repairdesk/repairdesk/internal/line/linetest"
	apperrors "github.com/repairdesk/repairdesk/pkg/util/errorutil"
)

func webhookBody(events ...string) []byte {
	return linetest.Body(events...)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	body := webhookBody(linetest.TextEvent("e1", "Ua", "hello"))
	signature := linetest.Sign(testSecret, body)

	tampered := append([]byte(nil), body...)
	tampered[len(tampered)-2] = ' '

	for name, tc := range map[string]struct {
		body      []byte
		signature string
	}{
		"missing signature": {body, ""},
		"tampered body":     {tampered, signature},
		"wrong secret":      {body, linetest.Sign("other-secret", body)},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := env.webhook.HandleWebhook(context.Background(), tc.body, tc.signature)
			requireCode(t, err, apperrors.CodeUnauthorized)
		})
	}
	if len(env.pusher.Calls()) != 0 {
		t.Error("rejected webhooks must not trigger pushes")
	}
}

func TestHandleWebhookTamperedUnfollowLeavesLinkAlone(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "member", domain.RoleUser)
	env.link(u.ID, "Umember")

	signed := webhookBody(linetest.UserEvent(line.EventFollow, "e1", "Umember"))
	tampered := webhookBody(linetest.UserEvent(line.EventUnfollow, "e1", "Umember"))

	_, err := env.webhook.HandleWebhook(context.Background(), tampered, linetest.Sign(testSecret, signed))
	requireCode(t, err, apperrors.CodeUnauthorized)

	if link := env.store.LinkFor(u.ID); link.Status != domain.LinkStatusVerified {
		t.Errorf("link status = %s, want VERIFIED", link.Status)
	}
	if records := env.store.NotificationRecords(); len(records) != 0 {
		t.Errorf("records = %+v, want none", records)
	}
	if len(env.pusher.Calls()) != 0 {
		t.Error("tampered webhook must not push")
	}
}

func TestHandleWebhookMalformedBody(t *testing.T) {
	env := newTestEnv(t)
	body := []byte(`{"events":[`)
	_, err := env.webhook.HandleWebhook(context.Background(), body, linetest.Sign(testSecret, body))
	requireCode(t, err, apperrors.CodeValidation)
}

func TestHandleWebhookRepliesWithMenu(t *testing.T) {
	env := newTestEnv(t)
	body := webhookBody(linetest.TextEvent("e1", "Uchat", "help"))

	ack, err := env.webhook.HandleWebhook(context.Background(), body, linetest.Sign(testSecret, body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if ack.Message != WebhookProcessedMessage || ack.Processed != 1 {
		t.Errorf("ack = %+v", ack)
	}
	calls := env.pusher.Calls()
	if len(calls) != 1 || calls[0].To != "Uchat" || calls[0].Message.AltText != "Repair desk menu" {
		t.Fatalf("pushes = %+v, want the menu", calls)
	}
	raw, err := calls[0].Message.FlexJSON()
	if err != nil {
		t.Fatalf("menu flex: %v", err)
	}
	var menu map[string]any
	if err := json.Unmarshal(raw, &menu); err != nil {
		t.Fatalf("menu flex: %v", err)
	}
	footer, _ := json.Marshal(menu["footer"])
	for _, url := range []string{"https://desk.example.com/tickets/new", "https://desk.example.com/tickets"} {
		if !strings.Contains(string(footer), url) {
			t.Errorf("menu footer %s should link %s", footer, url)
		}
	}
	records := env.store.NotificationRecords()
	if len(records) != 1 || records[0].Type != NotificationMenu {
		t.Errorf("records = %+v", records)
	}
}

func TestHandleWebhookUnfollowUnlinks(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "leaver", domain.RoleUser)
	env.link(u.ID, "Uleaver")

	body := webhookBody(linetest.UserEvent(line.EventUnfollow, "e-unfollow", "Uleaver"))
	ack, err := env.webhook.HandleWebhook(context.Background(), body, linetest.Sign(testSecret, body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if ack.Processed != 1 {
		t.Errorf("ack = %+v", ack)
	}
	if link := env.store.LinkFor(u.ID); link.Status != domain.LinkStatusUnlinked {
		t.Errorf("link status = %s, want UNLINKED", link.Status)
	}
}

func TestHandleWebhookIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	env.pusher.FailTo = map[string]error{"Ubroken": errors.New("blocked")}

	body := webhookBody(
		linetest.TextEvent("e1", "Ubroken", "hi"),
		linetest.UserEvent(line.EventFollow, "e2", "Unew"),
		linetest.TextEvent("e3", "Ufine", "hi"),
		linetest.PostbackEvent("e4", "Ufine", "action=menu"),
		`{"type":"somethingNew","webhookEventId":"e5"}`,
	)
	ack, err := env.webhook.HandleWebhook(context.Background(), body, linetest.Sign(testSecret, body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if ack.Failed != 1 || ack.Processed != 4 {
		t.Errorf("ack = %+v, want 1 failed and 4 processed", ack)
	}
	calls := env.pusher.Calls()
	if len(calls) != 2 || calls[1].To != "Ufine" {
		t.Errorf("pushes = %+v", calls)
	}
}

func TestHandleWebhookSkipsRedeliveredEvents(t *testing.T) {
	env := newTestEnv(t)
	body := webhookBody(linetest.TextEvent("dup-1", "Uchat", "hi"))
	sig := linetest.Sign(testSecret, body)
	ctx := context.Background()

	if _, err := env.webhook.HandleWebhook(ctx, body, sig); err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	ack, err := env.webhook.HandleWebhook(ctx, body, sig)
	if err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if ack.Skipped != 1 || ack.Processed != 0 || ack.Message != WebhookProcessedMessage {
		t.Errorf("ack = %+v, want the event skipped", ack)
	}
	if len(env.pusher.Calls()) != 1 {
		t.Errorf("pushes = %d, want 1", len(env.pusher.Calls()))
	}
}

func TestHandleWebhookRetriesFailedEventOnRedelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pusher.FailTo = map[string]error{"Uchat": errors.New("temporarily unavailable")}

	event := linetest.TextEvent("flaky-1", "Uchat", "hi")
	body := webhookBody(event)
	ack, err := env.webhook.HandleWebhook(ctx, body, linetest.Sign(testSecret, body))
	if err != nil {
		t.Fatalf("first delivery error = %v", err)
	}
	if ack.Failed != 1 {
		t.Fatalf("ack = %+v, want the event failed", ack)
	}

	env.pusher.FailTo = nil
	redelivery := webhookBody(linetest.Redelivered(event))
	ack, err = env.webhook.HandleWebhook(ctx, redelivery, linetest.Sign(testSecret, redelivery))
	if err != nil {
		t.Fatalf("redelivery error = %v", err)
	}
	if ack.Processed != 1 || ack.Skipped != 0 {
		t.Errorf("ack = %+v, want the redelivered event handled", ack)
	}
	calls := env.pusher.Calls()
	if len(calls) != 2 || calls[1].To != "Uchat" {
		t.Errorf("pushes = %+v", calls)
	}
}

func TestHandleWebhookProceedsWhenGuardUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.store.SeenErr = errors.New("redis: connection refused")
	body := webhookBody(linetest.TextEvent("e1", "Uchat", "hi"))

	ack, err := env.webhook.HandleWebhook(context.Background(), body, linetest.Sign(testSecret, body))
	if err != nil {
		t.Fatalf("HandleWebhook() error = %v", err)
	}
	if ack.Processed != 1 || len(env.pusher.Calls()) != 1 {
		t.Errorf("ack = %+v, the event should still be handled", ack)
	}
}

func TestSendTicketStatusUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result := env.webhook.SendTicketStatusUpdate(ctx, StatusUpdate{LineUserID: " "})
	if result.Success || result.Error == "" {
		t.Errorf("result = %+v, want an error for a missing LINE user", result)
	}

	result = env.webhook.SendTicketStatusUpdate(ctx, StatusUpdate{
		LineUserID: "Uowner",
		TicketID:   7,
		Code:       "TKT-2025-0000000001",
		Status:     domain.TicketStatusInProgress,
	})
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	msg := env.pusher.Calls()[0].Message
	if msg.AltText != "Ticket TKT-2025-0000000001: Repair in progress" {
		t.Errorf("alt text = %q", msg.AltText)
	}
	if raw, _ := msg.FlexJSON(); !strings.Contains(string(raw), "https://desk.example.com/tickets/7") {
		t.Error("status card should link the ticket")
	}

	env.webhook.SendTicketStatusUpdate(ctx, StatusUpdate{
		LineUserID: "Uowner", Code: "TKT-1", Status: "DONE", StatusLabel: "Picked up",
	})
	if got := env.pusher.Calls()[1].Message.AltText; got != "Ticket TKT-1: Picked up" {
		t.Errorf("custom label alt text = %q", got)
	}
}

// A user links through the chat, files a ticket from LINE and gets told when
// it is done.
func TestLinkFileAndFollowTicket(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := env.user(t, "member", domain.RoleUser)
	tech := env.user(t, "tech", domain.RoleIT)

	session, err := env.linking.InitiateLinking(ctx, member.ID)
	if err != nil {
		t.Fatalf("InitiateLinking() error = %v", err)
	}
	if _, err := env.linking.VerifyLink(ctx, member.ID, "Umember", session.Token); err != nil {
		t.Fatalf("VerifyLink() error = %v", err)
	}

	created, err := env.tickets.CreateFromExternalChannel(ctx, validInput(), ExternalContact{Phone: "021234567"}, "Umember", nil)
	if err != nil {
		t.Fatalf("CreateFromExternalChannel() error = %v", err)
	}
	if created.Ticket.UserID != member.ID {
		t.Fatalf("owner = %d, want the linked member", created.Ticket.UserID)
	}

	done := string(domain.TicketStatusDone)
	if _, err := env.tickets.Update(ctx, tech.ID, created.Ticket.ID, TicketUpdateInput{Status: &done}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	calls := env.pusher.Calls()
	if len(calls) != 2 {
		t.Fatalf("pushes = %d, want confirmation and status", len(calls))
	}
	for _, c := range calls {
		if c.To != "Umember" {
			t.Errorf("push to %s, want Umember", c.To)
		}
	}
	history, err := env.notifier.ListForUser(ctx, member.ID, 10)
	if err != nil || len(history) != 2 || history[0].Type != NotificationTicketStatus {
		t.Errorf("history = %+v, err %v", history, err)
	}
}
