package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/repairdesk/repairdesk/internal/domain"
)

func TestSendToUnlinkedUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "noline", domain.RoleUser)
	ctx := context.Background()

	result := env.notifier.Send(ctx, u.ID, NotificationPayload{Title: "Hi", Message: "there"})
	if result.Success || result.Reason != ReasonNotLinked {
		t.Errorf("result = %+v, want not linked", result)
	}

	// A pending link is not a delivery target either.
	if _, err := env.linking.InitiateLinking(ctx, u.ID); err != nil {
		t.Fatalf("InitiateLinking() error = %v", err)
	}
	result = env.notifier.Send(ctx, u.ID, NotificationPayload{Title: "Hi", Message: "there"})
	if result.Reason != ReasonNotLinked {
		t.Errorf("result = %+v, want not linked", result)
	}

	if len(env.pusher.Calls()) != 0 || len(env.store.NotificationRecords()) != 0 {
		t.Error("nothing may be pushed or recorded for an unlinked user")
	}
}

func TestSendRecordsOutcome(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "linked", domain.RoleUser)
	env.link(u.ID, "Ulinked")
	ctx := context.Background()

	ok := env.notifier.Send(ctx, u.ID, NotificationPayload{
		Title:     "Maintenance",
		Message:   "Network down at 18:00",
		ActionURL: "https://desk.example.com/news/1",
	})
	if !ok.Success || ok.NotificationID == 0 {
		t.Fatalf("result = %+v, want success with a record id", ok)
	}
	calls := env.pusher.Calls()
	if len(calls) != 1 || calls[0].To != "Ulinked" || calls[0].RetryKey == "" {
		t.Fatalf("push calls = %+v", calls)
	}
	wantText := "📬 Maintenance\n\nNetwork down at 18:00\n\n👉 View details: https://desk.example.com/news/1"
	if calls[0].Message.Text != wantText {
		t.Errorf("text = %q, want %q", calls[0].Message.Text, wantText)
	}

	env.pusher.SetErr(errors.New("line api: 500"))
	failed := env.notifier.Send(ctx, u.ID, NotificationPayload{Title: "Again", Message: "x"})
	if failed.Success || failed.Error != "line api: 500" {
		t.Errorf("result = %+v, want failure", failed)
	}

	records := env.store.NotificationRecords()
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Status != domain.NotificationSent || records[0].Type != NotificationGeneral {
		t.Errorf("first record = %+v", records[0])
	}
	if records[1].Status != domain.NotificationFailed || records[1].ErrorMessage == nil || *records[1].ErrorMessage != "line api: 500" {
		t.Errorf("second record = %+v", records[1])
	}
	if records[0].RetryKey == records[1].RetryKey {
		t.Error("each delivery should get its own retry key")
	}
}

func TestSendIgnoresRecordFailure(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "linked", domain.RoleUser)
	env.link(u.ID, "Ulinked")
	env.store.NotificationCreateErr = errors.New("db down")

	result := env.notifier.Send(context.Background(), u.ID, NotificationPayload{Title: "t", Message: "m"})
	if !result.Success {
		t.Errorf("result = %+v, push succeeded so the send should too", result)
	}
	if result.NotificationID != 0 {
		t.Errorf("notification id = %d, want 0 when nothing was recorded", result.NotificationID)
	}
}

func TestSendBulk(t *testing.T) {
	env := newTestEnv(t)
	a := env.user(t, "a", domain.RoleUser)
	b := env.user(t, "b", domain.RoleUser)
	c := env.user(t, "c", domain.RoleUser)
	env.link(a.ID, "Ua")
	env.link(c.ID, "Uc")
	env.pusher.FailTo = map[string]error{"Uc": errors.New("blocked")}

	result := env.notifier.SendBulk(context.Background(), []int64{a.ID, b.ID, c.ID}, NotificationPayload{Title: "t", Message: "m"})
	if result.Total != 3 || result.Successful != 1 || result.Failed != 2 {
		t.Fatalf("result = %+v", result)
	}
	if result.Results[0].UserID != a.ID || !result.Results[0].Success {
		t.Errorf("first = %+v", result.Results[0])
	}
	if result.Results[1].Reason != ReasonNotLinked {
		t.Errorf("second = %+v, want not linked", result.Results[1])
	}
	if result.Results[2].Error != "blocked" {
		t.Errorf("third = %+v", result.Results[2])
	}
}

func TestRetryFailedNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.pusher.SetErr(errors.New("timeout"))
	for i := 0; i < 12; i++ {
		env.notifier.Deliver(ctx, "Uretry", NotificationPayload{Title: "t", Message: "m"})
		env.clock.Advance(time.Second)
	}
	failedKeys := map[int64]string{}
	for _, r := range env.store.NotificationRecords() {
		failedKeys[r.ID] = r.RetryKey
	}
	env.pusher.SetErr(nil)
	before := len(env.pusher.Calls())

	result, err := env.notifier.RetryFailedNotifications(ctx)
	if err != nil {
		t.Fatalf("RetryFailedNotifications() error = %v", err)
	}
	if result.Processed != 10 || result.Succeeded != 10 || result.Failed != 0 {
		t.Fatalf("result = %+v, want one batch of 10", result)
	}

	retried := env.pusher.Calls()[before:]
	seenKeys := map[string]bool{}
	for _, k := range failedKeys {
		seenKeys[k] = true
	}
	for _, call := range retried {
		if !seenKeys[call.RetryKey] {
			t.Errorf("retry used a fresh key %q", call.RetryKey)
		}
		if call.Message.Text != "📬 t\n\nm" {
			t.Errorf("retry text = %q", call.Message.Text)
		}
	}

	records := env.store.NotificationRecords()
	for i, r := range records {
		wantStatus := domain.NotificationSent
		if i >= 10 {
			wantStatus = domain.NotificationFailed
		}
		if r.Status != wantStatus {
			t.Errorf("record %d status = %s, want %s (oldest first)", i, r.Status, wantStatus)
		}
	}

	result, err = env.notifier.RetryFailedNotifications(ctx)
	if err != nil || result.Processed != 2 {
		t.Errorf("second pass = %+v, err %v; want the remaining 2", result, err)
	}
}

func TestRetryStopsAtCap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.pusher.SetErr(errors.New("still down"))
	env.notifier.Deliver(ctx, "Ucap", NotificationPayload{Title: "t", Message: "m"})

	for pass := 1; pass <= domain.MaxNotificationRetries; pass++ {
		result, err := env.notifier.RetryFailedNotifications(ctx)
		if err != nil {
			t.Fatalf("pass %d error = %v", pass, err)
		}
		if result.Processed != 1 || result.Failed != 1 {
			t.Fatalf("pass %d result = %+v", pass, result)
		}
	}
	result, err := env.notifier.RetryFailedNotifications(ctx)
	if err != nil || result.Processed != 0 {
		t.Errorf("pass past the cap = %+v, err %v; want nothing processed", result, err)
	}

	record := env.store.NotificationRecords()[0]
	if record.RetryCount != domain.MaxNotificationRetries || record.Status != domain.NotificationFailed {
		t.Errorf("record = %+v", record)
	}
	if pushes := len(env.pusher.Calls()); pushes != 1+domain.MaxNotificationRetries {
		t.Errorf("pushes = %d", pushes)
	}
}

func TestRetryKeepsTheDetailsLink(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "owner", domain.RoleUser)
	env.link(u.ID, "Uowner")
	ctx := context.Background()

	env.pusher.SetErr(errors.New("rate limited"))
	result := env.webhook.SendTicketStatusUpdate(ctx, StatusUpdate{
		LineUserID: "Uowner", TicketID: 7, Code: "TKT-2025-0000000001", Status: domain.TicketStatusDone,
	})
	if result.Success {
		t.Fatalf("result = %+v, want a failed delivery", result)
	}
	if record := env.store.NotificationRecords()[0]; record.ActionURL != "https://desk.example.com/tickets/7" {
		t.Fatalf("record action url = %q", record.ActionURL)
	}

	env.pusher.SetErr(nil)
	if _, err := env.notifier.RetryFailedNotifications(ctx); err != nil {
		t.Fatalf("RetryFailedNotifications() error = %v", err)
	}
	calls := env.pusher.Calls()
	want := "📬 Ticket TKT-2025-0000000001\n\nStatus: Repair completed\n\n👉 View details: https://desk.example.com/tickets/7"
	if got := calls[len(calls)-1].Message.Text; got != want {
		t.Errorf("retry text = %q, want %q", got, want)
	}
}

func TestListForUser(t *testing.T) {
	env := newTestEnv(t)
	u := env.user(t, "reader", domain.RoleUser)
	other := env.user(t, "other", domain.RoleUser)
	ctx := context.Background()

	got, err := env.notifier.ListForUser(ctx, u.ID, 0)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("ListForUser() without link = %v, err %v; want empty list", got, err)
	}

	env.link(u.ID, "Ureader")
	env.link(other.ID, "Uother")
	for i := 0; i < 3; i++ {
		env.notifier.Send(ctx, u.ID, NotificationPayload{Title: "t", Message: strings.Repeat("m", i+1)})
	}
	env.notifier.Send(ctx, other.ID, NotificationPayload{Title: "t", Message: "other"})

	got, err = env.notifier.ListForUser(ctx, u.ID, 2)
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(got) != 2 || got[0].Message != "mmm" || got[1].Message != "mm" {
		t.Errorf("history = %+v, want newest two", got)
	}
}

func TestTicketEventsNotifyLinkedUsers(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "owner", domain.RoleUser)
	tech := env.user(t, "tech", domain.RoleIT)
	env.link(owner.ID, "Uowner")
	env.link(tech.ID, "Utech")
	ctx := context.Background()

	input := validInput()
	input.Assignee = &AssigneeRef{ID: itoa(tech.ID)}
	created, err := env.tickets.Create(ctx, owner.ID, input, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	status := string(domain.TicketStatusDone)
	if _, err := env.tickets.Update(ctx, tech.ID, created.Ticket.ID, TicketUpdateInput{Status: &status}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	calls := env.pusher.Calls()
	if len(calls) != 3 {
		t.Fatalf("pushes = %d, want created, assigned and status", len(calls))
	}
	if calls[0].To != "Uowner" || !calls[0].Message.IsFlex() {
		t.Errorf("created push = %+v", calls[0])
	}
	if calls[1].To != "Utech" || !strings.HasPrefix(calls[1].Message.AltText, "Job "+created.Ticket.Code) {
		t.Errorf("assigned push = %+v", calls[1])
	}
	if calls[2].To != "Uowner" || calls[2].Message.AltText != "Ticket "+created.Ticket.Code+": Repair completed" {
		t.Errorf("status push = %+v", calls[2])
	}

	var types []string
	for _, r := range env.store.NotificationRecords() {
		types = append(types, r.Type)
	}
	want := []string{NotificationTicketCreated, NotificationTicketAssigned, NotificationTicketStatus}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Errorf("record types = %v, want %v", types, want)
	}
}

func TestExternalTicketConfirmsToSubmitter(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.tickets.CreateFromExternalChannel(context.Background(), validInput(), ExternalContact{}, "Uguest", nil)
	if err != nil {
		t.Fatalf("CreateFromExternalChannel() error = %v", err)
	}
	calls := env.pusher.Calls()
	if len(calls) != 1 || calls[0].To != "Uguest" {
		t.Fatalf("pushes = %+v, want one confirmation to the submitter", calls)
	}
	if raw, _ := calls[0].Message.FlexJSON(); !strings.Contains(string(raw), result.Ticket.Code) {
		t.Error("confirmation should carry the ticket code")
	}
}

func TestStatusLabel(t *testing.T) {
	tests := map[domain.TicketStatus]string{
		domain.TicketStatusOpen:       "Waiting for a technician",
		domain.TicketStatusInProgress: "Repair in progress",
		domain.TicketStatusDone:       "Repair completed",
		"ON_HOLD":                     "ON_HOLD",
	}
	for status, want := range tests {
		if got := StatusLabel(status); got != want {
			t.Errorf("StatusLabel(%s) = %q, want %q", status, got, want)
		}
	}
}
